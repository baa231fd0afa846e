package core

// statement.go — the Statement[D] SNARK-work descriptor and the four
// ledger-connectivity merge rules of spec.md §4.3: two statements may only
// merge into one when their register windows actually chain together,
// either because they sit inside the same block (same_block) or because
// their recorded connecting-ledger edges say the seam between two blocks is
// sound.
//
// Grounded on the teacher's core/transaction_hash.go for the
// canonical-encode-then-hash idiom, generalized from hashing one
// transaction to hashing an entire before/after register window.

import "fmt"

// LocalState is the zkApp local-execution cursor carried across the two
// passes (spec.md §4.2): Ledger is the scratch ledger the in-flight call
// stack reads/writes against, Hash digests every other local-state field
// (call stack, account-update stack, excursion flag, fee-excess-so-far).
// The merge rules treat Ledger specially — it is allowed to jump across a
// first/second-pass boundary — while Hash must always match exactly.
type LocalState struct {
	Ledger Hash
	Hash   Hash
}

// Registers is the full ledger state a statement claims to transition
// between: the first-pass ledger (fee charges only), the second-pass ledger
// (zkApp/account-update effects), the pending-coinbase stack in play, and
// the local-state cursor. spec.md §3/§4.3 keeps first-pass and second-pass
// ledgers as distinct roots specifically so a block's fee-charging pass and
// effect pass can be proved by different scan-state jobs and still be
// checked for continuity at merge time.
type Registers struct {
	FirstPassLedger      Hash
	SecondPassLedger     Hash
	PendingCoinbaseStack Stack
	LocalState           LocalState
}

// Statement is the externally-checkable claim one unit of SNARK work
// proves: "applying some transactions took the ledger from Source to
// Target, with the given FeeExcess and SupplyIncrease, optionally
// producing completed work of its own (SokDigest)." ConnectingLedgerLeft/
// Right pin the ledger root at the left/right edge of the block this
// statement's window belongs to; two adjacent statements belong to the
// same block exactly when left.ConnectingLedgerRight ==
// right.ConnectingLedgerLeft (spec.md §4.3's same_block test).
type Statement struct {
	Source                Registers
	Target                Registers
	ConnectingLedgerLeft  Hash
	ConnectingLedgerRight Hash
	FeeExcess             FeeExcess
	SupplyIncrease        Signed[Amount]
	SokDigest             Hash
}

// Hash returns a canonical digest of s, used as the SNARK-work identity the
// verifier and scan state both key off of.
func (s Statement) Hash() Hash {
	h := newCanonicalHasher()
	h.writeHash(s.Source.FirstPassLedger)
	h.writeHash(s.Source.SecondPassLedger)
	h.writeHash(s.Source.PendingCoinbaseStack.DataHash)
	h.writeHash(s.Source.PendingCoinbaseStack.InitStateHash)
	h.writeHash(s.Source.PendingCoinbaseStack.CurrStateHash)
	h.writeHash(s.Source.LocalState.Ledger)
	h.writeHash(s.Source.LocalState.Hash)
	h.writeHash(s.Target.FirstPassLedger)
	h.writeHash(s.Target.SecondPassLedger)
	h.writeHash(s.Target.PendingCoinbaseStack.DataHash)
	h.writeHash(s.Target.PendingCoinbaseStack.InitStateHash)
	h.writeHash(s.Target.PendingCoinbaseStack.CurrStateHash)
	h.writeHash(s.Target.LocalState.Ledger)
	h.writeHash(s.Target.LocalState.Hash)
	h.writeHash(s.ConnectingLedgerLeft)
	h.writeHash(s.ConnectingLedgerRight)
	h.writeHash(hashSignedFee(s.FeeExcess.ExcessLeft))
	h.writeHash(hashSignedFee(s.FeeExcess.ExcessRight))
	return h.sum()
}

func hashSignedFee(s Signed[Fee]) Hash {
	var buf [9]byte
	if s.Sign == Neg {
		buf[0] = 1
	}
	putUint64(buf[1:], uint64(s.Magnitude))
	return combineHash(Hash{}, hashBytes(buf[:]))
}

// MergeStatements combines two adjacent base/merge statements into one,
// enforcing spec.md §4.3's four connectivity rules. Let s1 = left, s2 =
// right, and same_block := s1.ConnectingLedgerRight == s2.ConnectingLedgerLeft:
//
//  1. First-pass continuity: if same_block, s1.Target.FirstPassLedger must
//     equal s2.Source.FirstPassLedger; otherwise s1.Target.FirstPassLedger
//     must equal s1.ConnectingLedgerRight (the block's own recorded edge).
//  2. Second-pass continuity: if same_block, s2.Source.SecondPassLedger
//     must equal s1.Target.SecondPassLedger; otherwise
//     s2.Source.SecondPassLedger must equal s2.ConnectingLedgerLeft.
//  3. Cross-link: if same_block, no additional constraint; otherwise
//     s1.Target.SecondPassLedger must equal s2.Source.FirstPassLedger (the
//     first block's effects pass must hand off into the next block's fee
//     pass).
//  4. Local-state ledger: either s2.Source.LocalState.Ledger equals
//     s1.Target.LocalState.Ledger directly, or the transition
//     s2.Source.LocalState.Ledger == s2.Source.SecondPassLedger AND
//     s1.Target.LocalState.Ledger == s1.Target.FirstPassLedger holds (the
//     local-state ledger resets to the pass ledger at a genuine pass
//     boundary rather than carrying over).
//
// In addition: the pending-coinbase stacks must be connected (the right
// statement's stack must either be the identical stack the left statement
// ended on, or a freshly opened stack whose recorded init state equals the
// left stack's curr state), the non-ledger part of local state must match
// exactly, FeeExcess.Combine must succeed, and SupplyIncrease addition must
// not overflow.
func MergeStatements(left, right Statement) (Statement, error) {
	sameBlock := left.ConnectingLedgerRight == right.ConnectingLedgerLeft

	// Rule 1: first-pass continuity.
	if sameBlock {
		if left.Target.FirstPassLedger != right.Source.FirstPassLedger {
			return Statement{}, fmt.Errorf("statement merge: first-pass ledger mismatch within block (left target %s, right source %s)",
				left.Target.FirstPassLedger.Hex(), right.Source.FirstPassLedger.Hex())
		}
	} else if left.Target.FirstPassLedger != left.ConnectingLedgerRight {
		return Statement{}, fmt.Errorf("statement merge: left statement's first-pass ledger does not match its own block boundary")
	}

	// Rule 2: second-pass continuity.
	if sameBlock {
		if right.Source.SecondPassLedger != left.Target.SecondPassLedger {
			return Statement{}, fmt.Errorf("statement merge: second-pass ledger mismatch within block (right source %s, left target %s)",
				right.Source.SecondPassLedger.Hex(), left.Target.SecondPassLedger.Hex())
		}
	} else if right.Source.SecondPassLedger != right.ConnectingLedgerLeft {
		return Statement{}, fmt.Errorf("statement merge: right statement's second-pass ledger does not match its own block boundary")
	}

	// Rule 3: cross-link between blocks.
	if !sameBlock && left.Target.SecondPassLedger != right.Source.FirstPassLedger {
		return Statement{}, fmt.Errorf("statement merge: cross-block link broken (left second-pass target %s, right first-pass source %s)",
			left.Target.SecondPassLedger.Hex(), right.Source.FirstPassLedger.Hex())
	}

	// Rule 4: local-state ledger either carries over directly, or resets at
	// a pass boundary.
	localCarriesOver := right.Source.LocalState.Ledger == left.Target.LocalState.Ledger
	localResetsAtBoundary := right.Source.LocalState.Ledger == right.Source.SecondPassLedger &&
		left.Target.LocalState.Ledger == left.Target.FirstPassLedger
	if !localCarriesOver && !localResetsAtBoundary {
		return Statement{}, fmt.Errorf("statement merge: local-state ledger does not connect")
	}

	// Non-ledger local state must match exactly regardless of same_block.
	if left.Target.LocalState.Hash != right.Source.LocalState.Hash {
		return Statement{}, fmt.Errorf("statement merge: local state mismatch")
	}

	if !pendingCoinbaseConnected(left.Target.PendingCoinbaseStack, right.Source.PendingCoinbaseStack) {
		return Statement{}, fmt.Errorf("statement merge: pending coinbase stack mismatch")
	}

	combinedExcess, ok := left.FeeExcess.Combine(right.FeeExcess)
	if !ok {
		return Statement{}, fmt.Errorf("statement merge: fee excess combine failed")
	}
	combinedSupply, ok := left.SupplyIncrease.Add(right.SupplyIncrease)
	if !ok {
		return Statement{}, fmt.Errorf("statement merge: supply increase overflow")
	}
	return Statement{
		Source:                left.Source,
		Target:                right.Target,
		ConnectingLedgerLeft:  left.ConnectingLedgerLeft,
		ConnectingLedgerRight: right.ConnectingLedgerRight,
		FeeExcess:             combinedExcess,
		SupplyIncrease:        combinedSupply,
		SokDigest:             combineHash(left.SokDigest, right.SokDigest),
	}, nil
}

// canonicalHasher is a tiny streaming wrapper used to build Statement and
// Diff digests out of fixed-size fields without allocating an intermediate
// byte slice per field.
type canonicalHasher struct {
	acc Hash
}

func newCanonicalHasher() *canonicalHasher { return &canonicalHasher{} }

func (h *canonicalHasher) writeHash(v Hash) { h.acc = combineHash(h.acc, v) }

func (h *canonicalHasher) sum() Hash { return h.acc }

func hashBytes(b []byte) Hash {
	var chunk Hash
	copy(chunk[:], b)
	return combineHash(Hash{}, chunk)
}
