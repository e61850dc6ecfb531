package escrow

import "errors"

// The error values mirror the revert taxonomy of the deployed contract so RPC
// consumers and tests can assert on specific failures. Every rejected
// operation leaves state untouched.
var (
	ErrZeroAddress          = errors.New("escrow: zero address")
	ErrZeroAmount           = errors.New("escrow: zero amount")
	ErrInvalidDeadline      = errors.New("escrow: invalid deadline")
	ErrInvalidEscrowType    = errors.New("escrow: invalid escrow type")
	ErrInvalidExtraData     = errors.New("escrow: invalid extra data")
	ErrInvalidFee           = errors.New("escrow: fee basis points out of range")
	ErrListingExists        = errors.New("escrow: listing already exists")
	ErrListingNotFound      = errors.New("escrow: listing not found")
	ErrListingExpired       = errors.New("escrow: listing expired")
	ErrInvalidState         = errors.New("escrow: invalid state for operation")
	ErrDeadlineNotPassed    = errors.New("escrow: deadline has not passed")
	ErrNotSeller            = errors.New("escrow: caller is not the seller")
	ErrNotBuyer             = errors.New("escrow: caller is not the buyer")
	ErrNotBuyerOrSeller     = errors.New("escrow: caller is neither buyer nor seller")
	ErrUnauthorized         = errors.New("escrow: unauthorized caller")
	ErrTokenNotWhitelisted  = errors.New("escrow: token not whitelisted")
	ErrInsufficientFee      = errors.New("escrow: insufficient fee for randomness request")
	ErrApprovalCallFailed   = errors.New("escrow: approval static call failed")
	ErrApprovalMismatch     = errors.New("escrow: approval result mismatch")
	ErrUnexpectedRequestID  = errors.New("escrow: unexpected oracle request id")
	ErrDisputesNotConfigured = errors.New("escrow: dispute queue not configured")
)
