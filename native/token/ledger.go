package token

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
)

// Storage is the subset of state functionality the ledger needs.
type Storage interface {
	KVPut(key, value []byte) error
	KVGet(key []byte) ([]byte, bool, error)
}

// Ledger keeps balances and allowances for every fungible asset the engine
// settles in, addressed by (asset, holder). It mirrors the standard
// fungible-asset surface: direct transfer, allowance-gated transfer-from and
// balance queries. A failed transfer moves nothing.
type Ledger struct {
	storage Storage
}

// NewLedger creates a ledger on top of the supplied storage.
func NewLedger(storage Storage) *Ledger {
	return &Ledger{storage: storage}
}

func balanceKey(token, addr [20]byte) []byte {
	buf := make([]byte, 0, len("token/balance/")+40)
	buf = append(buf, "token/balance/"...)
	buf = append(buf, token[:]...)
	buf = append(buf, addr[:]...)
	return buf
}

func allowanceKey(token, owner, spender [20]byte) []byte {
	buf := make([]byte, 0, len("token/allowance/")+60)
	buf = append(buf, "token/allowance/"...)
	buf = append(buf, token[:]...)
	buf = append(buf, owner[:]...)
	buf = append(buf, spender[:]...)
	return buf
}

func (l *Ledger) load(key []byte) (*big.Int, error) {
	raw, ok, err := l.storage.KVGet(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(raw), nil
}

func (l *Ledger) store(key []byte, value *big.Int) error {
	return l.storage.KVPut(key, value.Bytes())
}

// BalanceOf returns the holder's balance of the asset.
func (l *Ledger) BalanceOf(token, addr [20]byte) (*big.Int, error) {
	return l.load(balanceKey(token, addr))
}

// Mint credits freshly issued units to the recipient. Only wiring code and
// tests call this; the engines never create value.
func (l *Ledger) Mint(token, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("token: invalid mint amount")
	}
	balance, err := l.load(balanceKey(token, to))
	if err != nil {
		return err
	}
	return l.store(balanceKey(token, to), new(big.Int).Add(balance, amount))
}

// Approve sets the spender's allowance over the owner's balance.
func (l *Ledger) Approve(token, owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("token: invalid allowance amount")
	}
	return l.store(allowanceKey(token, owner, spender), amount)
}

// Allowance returns the spender's remaining allowance over the owner's
// balance.
func (l *Ledger) Allowance(token, owner, spender [20]byte) (*big.Int, error) {
	return l.load(allowanceKey(token, owner, spender))
}

// Transfer moves the amount between holders directly.
func (l *Ledger) Transfer(token, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("token: invalid transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBalance, err := l.load(balanceKey(token, from))
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from == to {
		// Debit and credit hit the same key; writing both would credit
		// twice. The transfer is a funded no-op.
		return nil
	}
	toBalance, err := l.load(balanceKey(token, to))
	if err != nil {
		return err
	}
	if err := l.store(balanceKey(token, from), new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.store(balanceKey(token, to), new(big.Int).Add(toBalance, amount))
}

// TransferFrom moves the amount out of the owner's balance on the strength of
// the spender's allowance, decrementing it.
func (l *Ledger) TransferFrom(token, spender, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("token: invalid transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	if spender != from {
		allowance, err := l.load(allowanceKey(token, from, spender))
		if err != nil {
			return err
		}
		if allowance.Cmp(amount) < 0 {
			return ErrInsufficientAllowance
		}
		if err := l.store(allowanceKey(token, from, spender), new(big.Int).Sub(allowance, amount)); err != nil {
			return err
		}
	}
	return l.Transfer(token, from, to, amount)
}
