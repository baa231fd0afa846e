package core

// transaction.go — the tagged-union transaction model of spec.md §3:
// SignedCommand (payment | delegation), ZkAppCommand (account-update
// forest), FeeTransfer, Coinbase, and the WithStatus[T] wrapper that pairs a
// transaction with its Applied/Failed outcome.
//
// Grounded on the teacher's core/transactions.go: HashTx/Sign/VerifySig are
// kept as the shape of transaction authentication, but the curve library is
// swapped from go-ethereum/crypto to the teacher's own (indirect)
// decred/dcrec/secp256k1 dependency — a pure-Go implementation of the same
// curve already present in the teacher's dependency graph, and a better fit
// for "decompress this point" (spec.md §7 InvalidPublicKey) than go-ethereum's
// cgo-backed verifier.

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// ParsePublicKey decompresses pk, returning InvalidPublicKeyError if the
// bytes do not describe a valid curve point.
func ParsePublicKey(pk PublicKey) (*secp256k1.PublicKey, error) {
	parsed, err := secp256k1.ParsePubKey(pk[:])
	if err != nil {
		return nil, &InvalidPublicKeyError{Key: pk, Cause: err}
	}
	return parsed, nil
}

// Signature is a (r, s) ECDSA signature over secp256k1.
type Signature struct {
	R [32]byte
	S [32]byte
}

func (sig Signature) toEcdsa() *ecdsa.Signature {
	var r, s secp256k1.ModNScalar
	r.SetByteSlice(sig.R[:])
	s.SetByteSlice(sig.S[:])
	return ecdsa.NewSignature(&r, &s)
}

// CommandKind distinguishes the two SignedCommand variants.
type CommandKind uint8

const (
	Payment CommandKind = iota
	StakeDelegation
)

// CommonFields are the fee-payer fields shared by every SignedCommand.
type CommonFields struct {
	FeePayer  PublicKey
	Fee       Fee
	FeeToken  TokenID
	Nonce     Nonce
	ValidUntil Slot
	Memo      Memo
}

// Memo is a bounded-length tagged byte string (spec.md §6).
type Memo struct {
	Tag  byte
	Data [32]byte
	Len  uint8
}

// PaymentPayload carries a payment's receiver and amount.
type PaymentPayload struct {
	Receiver PublicKey
	Amount   Amount
	TokenId  TokenID
}

// DelegationPayload names the new delegate.
type DelegationPayload struct {
	NewDelegate PublicKey
}

// SignedCommand is a payment or a stake-delegation, signed by the fee payer.
type SignedCommand struct {
	Common    CommonFields
	Kind      CommandKind
	Payment   *PaymentPayload   // set iff Kind == Payment
	Delegation *DelegationPayload // set iff Kind == StakeDelegation
	Signature Signature
}

// Hash computes the canonical sha256 digest of the signable portion of cmd.
func (cmd *SignedCommand) Hash() Hash {
	h := sha256.New()
	h.Write(cmd.Common.FeePayer[:])
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(cmd.Common.Fee))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(cmd.Common.FeeToken))
	h.Write(buf[:])
	binary.LittleEndian.PutUint32(buf[:4], uint32(cmd.Common.Nonce))
	h.Write(buf[:4])
	binary.LittleEndian.PutUint32(buf[:4], uint32(cmd.Common.ValidUntil))
	h.Write(buf[:4])
	h.Write([]byte{cmd.Common.Memo.Tag, cmd.Common.Memo.Len})
	h.Write(cmd.Common.Memo.Data[:])
	h.Write([]byte{byte(cmd.Kind)})
	switch cmd.Kind {
	case Payment:
		if cmd.Payment != nil {
			h.Write(cmd.Payment.Receiver[:])
			binary.LittleEndian.PutUint64(buf[:], uint64(cmd.Payment.Amount))
			h.Write(buf[:])
			binary.LittleEndian.PutUint64(buf[:], uint64(cmd.Payment.TokenId))
			h.Write(buf[:])
		}
	case StakeDelegation:
		if cmd.Delegation != nil {
			h.Write(cmd.Delegation.NewDelegate[:])
		}
	}
	var out Hash
	sum := sha256.Sum256(h.Sum(nil))
	copy(out[:], sum[:])
	return out
}

// VerifySignature checks cmd.Signature against the fee payer's public key.
// It returns InvalidPublicKeyError if the key fails to decompress, or a
// plain error on signature mismatch.
func (cmd *SignedCommand) VerifySignature() error {
	pub, err := ParsePublicKey(cmd.Common.FeePayer)
	if err != nil {
		return err
	}
	digest := cmd.Hash()
	if !cmd.Signature.toEcdsa().Verify(digest[:], pub) {
		return fmt.Errorf("signed command %s: invalid signature", digest.Hex())
	}
	return nil
}

// PublicKeys returns every public key cmd's witness must include.
func (cmd *SignedCommand) PublicKeys() []PublicKey {
	keys := []PublicKey{cmd.Common.FeePayer}
	switch cmd.Kind {
	case Payment:
		if cmd.Payment != nil {
			keys = append(keys, cmd.Payment.Receiver)
		}
	case StakeDelegation:
		if cmd.Delegation != nil {
			keys = append(keys, cmd.Delegation.NewDelegate)
		}
	}
	return keys
}

// FeeExcess is deterministic for a SignedCommand: the fee payer's fee is
// excess collected by the network (Pos), to be balanced against coinbase
// and fee-transfer payouts elsewhere in the block.
func (cmd *SignedCommand) FeeExcess() FeeExcess {
	return FeeExcess{TokenLeft: cmd.Common.FeeToken, ExcessLeft: SignedOf(Pos, cmd.Common.Fee)}
}

// BalanceChange is a signed delta applied to one account-update's balance.
type BalanceChange = Signed[Amount]

// AccountUpdate is one node of a ZkAppCommand's call-tree forest.
type AccountUpdate struct {
	PublicKey      PublicKey
	TokenId        TokenID
	BalanceChange  BalanceChange
	IncrementNonce bool
	CallDepth      int
	UseFullCommitment bool
	Preconditions  AccountPrecondition
	AppStateUpdate [8]*Hash // nil entries mean "leave unchanged"
	DelegateUpdate *PublicKey
	PermissionsUpdate *Permissions
	VerificationKeyUpdate *Hash
	Children       []AccountUpdate
}

// AccountPrecondition constrains which states a zkApp update may be applied
// against; nil fields are unconstrained.
type AccountPrecondition struct {
	Balance   *Balance
	Nonce     *Nonce
	Delegate  *PublicKey
	State     [8]*Hash
	ProvedState *bool
}

// Flatten returns every node of the update forest in depth-first order.
func (u AccountUpdate) Flatten() []AccountUpdate {
	out := []AccountUpdate{u}
	for _, c := range u.Children {
		out = append(out, c.Flatten()...)
	}
	return out
}

// ZkAppCommand is a fee-payer plus a forest of account updates.
type ZkAppCommand struct {
	FeePayer CommonFields
	FeePayerSignature Signature
	Updates  []AccountUpdate
}

// PublicKeys returns the set of public keys touched by cmd, fee payer first.
func (cmd *ZkAppCommand) PublicKeys() []PublicKey {
	seen := map[PublicKey]bool{cmd.FeePayer.FeePayer: true}
	keys := []PublicKey{cmd.FeePayer.FeePayer}
	for _, top := range cmd.Updates {
		for _, u := range top.Flatten() {
			if !seen[u.PublicKey] {
				seen[u.PublicKey] = true
				keys = append(keys, u.PublicKey)
			}
		}
	}
	return keys
}

// FeeExcess for a zkApp command is the fee payer's fee, collected in the
// fee-payer's fee token — balance changes across updates net to zero supply
// change except via explicit minting, handled in execution.go.
func (cmd *ZkAppCommand) FeeExcess() FeeExcess {
	return FeeExcess{TokenLeft: cmd.FeePayer.FeeToken, ExcessLeft: SignedOf(Pos, cmd.FeePayer.Fee)}
}

// FeeTransfer pays out SNARK-work fees to one or two provers.
type FeeTransfer struct {
	Receiver1 PublicKey
	Fee1      Fee
	FeeToken1 TokenID
	Receiver2 *PublicKey // nil when only one recipient
	Fee2      Fee
	FeeToken2 TokenID
}

// PublicKeys returns the fee-transfer's recipients.
func (ft *FeeTransfer) PublicKeys() []PublicKey {
	keys := []PublicKey{ft.Receiver1}
	if ft.Receiver2 != nil {
		keys = append(keys, *ft.Receiver2)
	}
	return keys
}

// FeeExcess for a fee transfer is negative: the network is paying out fees
// it previously collected.
func (ft *FeeTransfer) FeeExcess() FeeExcess {
	neg := SignedOf[Fee](Neg, ft.Fee1)
	fe := FeeExcess{TokenLeft: ft.FeeToken1, ExcessLeft: neg}
	if ft.Receiver2 == nil {
		return fe
	}
	other := FeeExcess{TokenLeft: ft.FeeToken2, ExcessLeft: SignedOf[Fee](Neg, ft.Fee2)}
	combined, ok := fe.Combine(other)
	if !ok {
		return fe
	}
	return combined
}

// Coinbase mints new currency to a block winner, optionally sharing a slice
// with a second fee-transfer recipient (spec.md §3).
type Coinbase struct {
	Receiver    PublicKey
	Amount      Amount
	FeeTransfer *CoinbaseFeeTransfer // nil when the full amount goes to Receiver
}

// CoinbaseFeeTransfer describes the share of a coinbase diverted to a SNARK
// worker as a fee-transfer.
type CoinbaseFeeTransfer struct {
	Receiver PublicKey
	Fee      Fee
}

// PublicKeys returns the coinbase's receiver(s).
func (cb *Coinbase) PublicKeys() []PublicKey {
	keys := []PublicKey{cb.Receiver}
	if cb.FeeTransfer != nil {
		keys = append(keys, cb.FeeTransfer.Receiver)
	}
	return keys
}

// FeeExcess for a coinbase is always zero: minted currency is accounted for
// via SupplyIncrease, not fee excess.
func (cb *Coinbase) FeeExcess() FeeExcess { return ZeroFeeExcess() }

// TransactionKind tags which variant a Transaction union value holds.
type TransactionKind uint8

const (
	KindSignedCommand TransactionKind = iota
	KindZkAppCommand
	KindFeeTransfer
	KindCoinbase
)

// Transaction is the tagged union spec.md §3 describes. Exactly one of the
// pointer fields is non-nil, matching Kind.
type Transaction struct {
	Kind          TransactionKind
	SignedCommand *SignedCommand
	ZkAppCommand  *ZkAppCommand
	FeeTransfer   *FeeTransfer
	Coinbase      *Coinbase
}

// PublicKeys returns the set of public keys the transaction's witness must
// cover.
func (t Transaction) PublicKeys() []PublicKey {
	switch t.Kind {
	case KindSignedCommand:
		return t.SignedCommand.PublicKeys()
	case KindZkAppCommand:
		return t.ZkAppCommand.PublicKeys()
	case KindFeeTransfer:
		return t.FeeTransfer.PublicKeys()
	case KindCoinbase:
		return t.Coinbase.PublicKeys()
	default:
		return nil
	}
}

// FeeExcess computes the transaction's deterministic fee excess.
func (t Transaction) FeeExcess() FeeExcess {
	switch t.Kind {
	case KindSignedCommand:
		return t.SignedCommand.FeeExcess()
	case KindZkAppCommand:
		return t.ZkAppCommand.FeeExcess()
	case KindFeeTransfer:
		return t.FeeTransfer.FeeExcess()
	case KindCoinbase:
		return t.Coinbase.FeeExcess()
	default:
		return ZeroFeeExcess()
	}
}

// TransactionFailure enumerates why a transaction's effects did not fully
// apply (spec.md §7: these are statuses, not errors).
type TransactionFailure string

const (
	FailureSourceInsufficientBalance TransactionFailure = "source_insufficient_balance"
	FailureInvalidNonce              TransactionFailure = "invalid_nonce"
	FailurePredicateFailed           TransactionFailure = "predicate_failed"
	FailureAmountInsufficientToCreateAccount TransactionFailure = "amount_insufficient_to_create_account"
	FailureOverflow                  TransactionFailure = "overflow"
	FailureTimingLockViolation       TransactionFailure = "timing_lock_violation"
)

// TransactionStatus is Applied or Failed(failures).
type TransactionStatus struct {
	Failures []TransactionFailure // empty/nil means Applied
}

// Applied reports whether the status represents a successful application.
func (s TransactionStatus) Applied() bool { return len(s.Failures) == 0 }

// AppliedStatus is the canonical Applied status value.
func AppliedStatus() TransactionStatus { return TransactionStatus{} }

// FailedStatus constructs a Failed status with the given reasons.
func FailedStatus(reasons ...TransactionFailure) TransactionStatus {
	return TransactionStatus{Failures: reasons}
}

// WithStatus pairs a transaction with its application outcome.
type WithStatus[T any] struct {
	Data   T
	Status TransactionStatus
}
