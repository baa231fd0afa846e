package core

// errors.go — the typed error taxonomy of spec.md §7. Grounded on the
// teacher's pkg/utils.Wrap (contextual %w wrapping) and core/ledger.go's
// fmt.Errorf discipline, but made concrete: every staged-ledger-level
// rejection is a distinct Go type so callers can errors.As() into the
// specific variant instead of string-matching messages.

import "fmt"

// NonZeroFeeExcessError reports a partition whose transactions did not sum
// to a zero fee excess.
type NonZeroFeeExcessError struct {
	Partition int
	Excess    FeeExcess
}

func (e *NonZeroFeeExcessError) Error() string {
	return fmt.Sprintf("non-zero fee excess in partition %d: left=%d right=%d",
		e.Partition, e.Excess.ExcessLeft.Magnitude, e.Excess.ExcessRight.Magnitude)
}

// InvalidProofsError reports one or more completed works that failed
// verification or whose sok_digest did not match the job they claim to
// complete.
type InvalidProofsError struct {
	Reasons []string
}

func (e *InvalidProofsError) Error() string {
	return fmt.Sprintf("invalid proofs: %v", e.Reasons)
}

// InsufficientWorkError reports a diff supplying fewer completed-work
// proofs than the scan state requires, with no tolerance rule applying.
type InsufficientWorkError struct {
	Required int
	Supplied int
}

func (e *InsufficientWorkError) Error() string {
	return fmt.Sprintf("insufficient work: required %d, supplied %d", e.Required, e.Supplied)
}

// MismatchedStatusesError reports a producer-predicted status that disagreed
// with the applier's observation.
type MismatchedStatusesError struct {
	Index    int
	Expected TransactionStatus
	Observed TransactionStatus
}

func (e *MismatchedStatusesError) Error() string {
	return fmt.Sprintf("mismatched status at index %d: expected applied=%v, observed applied=%v",
		e.Index, e.Expected.Applied(), e.Observed.Applied())
}

// InvalidPublicKeyError reports a command referencing a key that fails
// point decompression.
type InvalidPublicKeyError struct {
	Key   PublicKey
	Cause error
}

func (e *InvalidPublicKeyError) Error() string {
	return fmt.Sprintf("invalid public key %s: %v", e.Key, e.Cause)
}

func (e *InvalidPublicKeyError) Unwrap() error { return e.Cause }

// ZkAppsExceedLimitError reports a block carrying more zkApp transactions
// than ConstraintConstants.ZkAppLimitPerBlock allows.
type ZkAppsExceedLimitError struct {
	Limit int
	Found int
}

func (e *ZkAppsExceedLimitError) Error() string {
	return fmt.Sprintf("zkapp count %d exceeds configured limit %d", e.Found, e.Limit)
}

// CouldntReachVerifierError wraps a transport-level failure talking to the
// verifier service.
type CouldntReachVerifierError struct {
	Cause error
}

func (e *CouldntReachVerifierError) Error() string {
	return fmt.Sprintf("could not reach verifier: %v", e.Cause)
}

func (e *CouldntReachVerifierError) Unwrap() error { return e.Cause }

// CoinbaseError enumerates structural problems with a diff's coinbase
// layout.
type CoinbaseError string

const (
	CoinbaseErrorSpaceUnavailable CoinbaseError = "space_unavailable"
	CoinbaseErrorTwoCoinbaseInPreDiffOne CoinbaseError = "two_coinbase_in_prediff_one"
	CoinbaseErrorInvalidAmount    CoinbaseError = "invalid_amount"
)

// PreDiffError wraps a structural error in a diff's coinbase/command layout.
type PreDiffError struct {
	Coinbase CoinbaseError
}

func (e *PreDiffError) Error() string {
	return fmt.Sprintf("pre-diff error: %s", e.Coinbase)
}

// UnexpectedError carries any other failure surfaced by transaction
// application that does not have its own named variant.
type UnexpectedError struct {
	Message string
}

func (e *UnexpectedError) Error() string { return e.Message }

// Unexpected constructs an UnexpectedError, mirroring the teacher's
// fmt.Errorf idiom for one-off failures.
func Unexpected(format string, args ...any) error {
	return &UnexpectedError{Message: fmt.Sprintf(format, args...)}
}
