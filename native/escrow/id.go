package escrow

import ethcrypto "github.com/ethereum/go-ethereum/crypto"

// DeriveListingID computes a content-derived identifier from the seller and a
// caller-chosen salt (typically a hash of the off-chain listing metadata).
// Callers may also supply their own ids as long as they stay unique.
func DeriveListingID(seller [20]byte, salt [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash(seller[:], salt[:])
}
