// Package errs enumerates the typed error kinds the swap engine surfaces to
// its host. Every operation that can fail for a reason the caller should
// branch on returns (or wraps, via fmt.Errorf("%w: ...")) one of these
// sentinels rather than an opaque error string.
package errs

import "errors"

// Core error kinds.
var (
	ErrInvalidInvoice           = errors.New("invalid invoice")
	ErrInvalidPreimage          = errors.New("invalid preimage")
	ErrInvalidOrExpiredFees     = errors.New("invalid or expired fees")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrAmountOutOfRange         = errors.New("amount out of range")
	ErrAlreadyPaid              = errors.New("already paid")
	ErrAmountMissing            = errors.New("amount missing")
	ErrSelfTransferNotSupported = errors.New("self transfer not supported")
	ErrPairsNotFound            = errors.New("pairs not found")
	ErrPersist                  = errors.New("persist error")
	ErrSigner                   = errors.New("signer error")
	ErrServiceConnectivity      = errors.New("service connectivity error")
	ErrGeneric                  = errors.New("generic error")
)

// LNURL taxonomy, parallel to the core kinds, for LNURL-pay/withdraw/auth flows.
var (
	ErrLnURLPay      = errors.New("lnurl pay error")
	ErrLnURLWithdraw = errors.New("lnurl withdraw error")
	ErrLnURLAuth     = errors.New("lnurl auth error")
)

// Retryable reports whether an error represents a transient condition that
// the caller (chain-service / swapper client) should retry with backoff
// rather than surface to the user.
func Retryable(err error) bool {
	return errors.Is(err, ErrServiceConnectivity)
}

// Fatal reports whether an error represents an operator-error condition
// that should abort startup rather than be retried or surfaced as swap
// state. Only signer errors (ErrSigner) are reported; schema migration
// failures surface as ErrPersist and are not reported by Fatal.
func Fatal(err error) bool {
	return errors.Is(err, ErrSigner)
}
