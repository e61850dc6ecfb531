package escrow

import (
	"fmt"
	"math/big"
)

// Custody keeps a per-listing balance in the vault account. Funds enter on
// fill and leave exactly once, either through payout (fee-deducting) or
// through withdrawAll (cancellation, no fee). The vault ledger balance and the
// sum of per-listing custody balances move in lockstep.

func (e *Engine) deposit(listing *Listing, buyer [20]byte) error {
	amount := cloneBigInt(listing.Amount)
	if amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if err := e.ledger.TransferFrom(listing.Token, e.vault, buyer, e.vault, amount); err != nil {
		return err
	}
	return e.state.EscrowCredit(listing.ID, amount)
}

// payout settles the custody balance in favour of the winner: the protocol
// fee is basis points of the gross amount rounded down, the remainder goes to
// the winner.
func (e *Engine) payout(listing *Listing, winner [20]byte) error {
	if e.ledger == nil {
		return errNilLedger
	}
	total := cloneBigInt(listing.Amount)
	if total.Sign() <= 0 {
		return ErrZeroAmount
	}
	fee := new(big.Int).Mul(total, new(big.Int).SetUint64(uint64(e.FeeBps())))
	fee.Div(fee, big.NewInt(10_000))
	remainder := new(big.Int).Sub(total, fee)
	if remainder.Sign() > 0 {
		if err := e.ledger.Transfer(listing.Token, e.vault, winner, remainder); err != nil {
			return err
		}
	}
	if fee.Sign() > 0 {
		if e.feeCollector == ([20]byte{}) {
			return fmt.Errorf("escrow: fee collector not configured")
		}
		if err := e.ledger.Transfer(listing.Token, e.vault, e.feeCollector, fee); err != nil {
			return err
		}
	}
	return e.state.EscrowDebit(listing.ID, total)
}

// withdrawAll returns the full custody balance of the listing to the
// recipient with no fee deduction.
func (e *Engine) withdrawAll(listing *Listing, recipient [20]byte) error {
	if e.ledger == nil {
		return errNilLedger
	}
	amount := cloneBigInt(listing.Amount)
	if amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if err := e.ledger.Transfer(listing.Token, e.vault, recipient, amount); err != nil {
		return err
	}
	return e.state.EscrowDebit(listing.ID, amount)
}

// CustodyBalance returns the amount currently held for the listing.
func (e *Engine) CustodyBalance(id [32]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.EscrowBalance(id)
}
