package core

// account.go — the per-account record stored in a LedgerMask/SparseLedger
// leaf. Grounded on the teacher's core/account_and_balance_operations.go
// (balance/nonce bookkeeping, mutex-guarded manager pattern) generalized from
// a flat uint64-balance map into the richer Mina-style account record spec.md
// §3 describes.

import "fmt"

// AuthRequired describes the permission level a zkApp account demands before
// a given action is allowed to proceed.
type AuthRequired uint8

const (
	AuthNone AuthRequired = iota
	AuthEither
	AuthProof
	AuthSignature
	AuthImpossible
)

// Permissions governs which auth level is required for each mutating action
// on an account.
type Permissions struct {
	EditState       AuthRequired
	Send            AuthRequired
	Receive         AuthRequired
	SetDelegate     AuthRequired
	SetPermissions  AuthRequired
	SetVerificationKey AuthRequired
	SetZkappUri     AuthRequired
	EditSequenceState AuthRequired
	SetTokenSymbol  AuthRequired
	IncrementNonce  AuthRequired
	SetVotingFor    AuthRequired
}

// DefaultPermissions mirrors the defaults a freshly created (non-zkApp)
// account carries: a signature is required for every permission except
// Receive, which needs no authorization.
func DefaultPermissions() Permissions {
	return Permissions{
		EditState:          AuthSignature,
		Send:               AuthSignature,
		Receive:            AuthNone,
		SetDelegate:        AuthSignature,
		SetPermissions:     AuthSignature,
		SetVerificationKey: AuthSignature,
		SetZkappUri:        AuthSignature,
		EditSequenceState:  AuthSignature,
		SetTokenSymbol:     AuthSignature,
		IncrementNonce:     AuthSignature,
		SetVotingFor:       AuthSignature,
	}
}

// TimingInfo describes a vesting schedule. An account with Timed == false is
// always fully spendable.
type TimingInfo struct {
	Timed          bool
	InitialMinimumBalance Balance
	CliffTime      Slot
	CliffAmount    Amount
	VestingPeriod  Length
	VestingIncrement Amount
}

// MinimumBalanceAt returns the minimum balance the account must retain at
// global_slot under this timing schedule. Untimed accounts return 0 (fully
// spendable).
func (t TimingInfo) MinimumBalanceAt(slot Slot) Balance {
	if !t.Timed {
		return 0
	}
	if slot < t.CliffTime {
		return t.InitialMinimumBalance
	}
	sinceCliff := uint32(slot - t.CliffTime)
	initial, ok := CheckedSub(t.InitialMinimumBalance, Balance(t.CliffAmount))
	if !ok {
		initial = 0
	}
	if t.VestingPeriod == 0 || initial == 0 {
		return 0
	}
	periods := uint64(sinceCliff)/uint64(t.VestingPeriod) + 1
	vested, ok := CheckedScale[Balance](Balance(t.VestingIncrement), periods)
	if !ok {
		return 0
	}
	remaining, ok := CheckedSub(initial, vested)
	if !ok {
		return 0
	}
	return remaining
}

// IsLockedAt reports whether any part of bal is locked (spec.md §3: "an
// account is locked at slot s when its timing constrains the spendable
// balance").
func (t TimingInfo) IsLockedAt(slot Slot) bool {
	return t.MinimumBalanceAt(slot) > 0
}

// ZkAppAccount is the 8-field-element application state vector plus the
// sequencing metadata a zkApp account carries.
type ZkAppAccount struct {
	AppState         [8]Hash
	SequenceState    [5]Hash
	ProvedState      bool
	VerificationKey  *Hash // nil when no verification key is set
	ZkappUri         string
	LastSequenceSlot Slot
}

// Account is the full per-leaf record spec.md §3 describes.
type Account struct {
	PublicKey        PublicKey
	TokenId          TokenID
	Balance          Balance
	Nonce            Nonce
	Delegate         *PublicKey // nil when undelegated
	VotingFor        Hash
	Timing           TimingInfo
	Permissions      Permissions
	ReceiptChainHash Hash
	Zkapp            *ZkAppAccount // nil for non-zkApp accounts
	TokenSymbol      string
}

// Id returns the compound account id of a.
func (a Account) Id() AccountId {
	return AccountId{PublicKey: a.PublicKey, TokenId: a.TokenId}
}

// NewAccount constructs an empty account with the default permission set.
func NewAccount(id AccountId) Account {
	return Account{
		PublicKey:   id.PublicKey,
		TokenId:     id.TokenId,
		Permissions: DefaultPermissions(),
	}
}

// CheckedDebit reduces a's balance by amt, failing if that would breach the
// account's timing-locked minimum balance at the supplied slot, or if amt
// simply exceeds the current balance.
func (a *Account) CheckedDebit(amt Amount, slot Slot) error {
	newBal, ok := CheckedSub(a.Balance, Balance(amt))
	if !ok {
		return fmt.Errorf("account %s: insufficient balance (%d < %d)", a.Id(), a.Balance, amt)
	}
	if newBal < a.Timing.MinimumBalanceAt(slot) {
		return fmt.Errorf("account %s: debit of %d violates timing lock at slot %d", a.Id(), amt, slot)
	}
	a.Balance = newBal
	return nil
}

// CheckedCredit increases a's balance by amt.
func (a *Account) CheckedCredit(amt Amount) error {
	newBal, ok := CheckedAdd(a.Balance, Balance(amt))
	if !ok {
		return fmt.Errorf("account %s: credit of %d overflows balance", a.Id(), amt)
	}
	a.Balance = newBal
	return nil
}

// Clone returns a deep-enough copy of a suitable for a child mask overlay or
// a first-pass snapshot used to restore zkApp pre-images in the second pass.
func (a Account) Clone() Account {
	out := a
	if a.Delegate != nil {
		d := *a.Delegate
		out.Delegate = &d
	}
	if a.Zkapp != nil {
		z := *a.Zkapp
		out.Zkapp = &z
	}
	return out
}
