package core

// pending_coinbase.go — the pending-coinbase tree of spec.md §3/§4.5: a
// bounded ring of coinbase Stacks, each accumulating a data hash (coinbases
// emitted into that stack) and a state hash (the staged-ledger hash the
// stack began at), consumed by the verifier once the corresponding proof
// chain is fully emitted.
//
// Grounded on the teacher's core/binary_tree_operations.go for the
// fixed-depth indexed-tree walk, generalized from a generic binary tree of
// opaque payloads into the specific two-hash Stack struct the staged ledger
// needs.

import (
	"crypto/sha256"
	"fmt"
	"sync"
)

// Stack is one slot of the pending-coinbase tree: a running hash of
// coinbases pushed since it was opened (DataHash), and the state_stack of
// spec.md §3/§4.5 — the block-body state hash the stack was opened at
// (InitStateHash, fixed at rotation-in) and the most recent one pushed onto
// it (CurrStateHash). Two stacks are connected, per spec.md §4.3, exactly
// when the right stack's InitStateHash equals the left stack's
// CurrStateHash — the strict chaining Connected checks.
type Stack struct {
	DataHash      Hash
	InitStateHash Hash
	CurrStateHash Hash
}

// EmptyStack is the canonical zero stack, used both as the tree's leaf
// default and as the sentinel a freshly rotated-in stack starts from.
var EmptyStack = Stack{}

// IsEmpty reports whether s has never been pushed to.
func (s Stack) IsEmpty() bool { return s == EmptyStack }

// PushCoinbase folds a coinbase amount into s's data hash.
func (s Stack) PushCoinbase(cb Coinbase) Stack {
	h := combineHash(s.DataHash, hashCoinbase(cb))
	return Stack{DataHash: h, InitStateHash: s.InitStateHash, CurrStateHash: s.CurrStateHash}
}

// PushState records a block-body state hash onto the stack's state_stack:
// InitStateHash is only set the first time this is called on a freshly
// opened stack (spec.md §4.5: a stack's init state is fixed at rotation-in
// and never changes again), while CurrStateHash is updated on every call so
// Connected can always see the most recent state the stack has observed.
func (s Stack) PushState(stateHash Hash) Stack {
	init := s.InitStateHash
	if init.IsZero() {
		init = stateHash
	}
	return Stack{DataHash: s.DataHash, InitStateHash: init, CurrStateHash: stateHash}
}

// Connected reports whether next may directly follow s in the pending
// coinbase tree's consumption order: next's state_stack must open exactly
// where s's left off (spec.md §4.3's pending-coinbase-stack connectivity
// rule, "right.init == left.curr").
func (s Stack) Connected(next Stack) bool {
	return next.InitStateHash == s.CurrStateHash
}

// pendingCoinbaseConnected reports whether right may merge immediately
// after left: either the two statements share the identical stack (no
// rotation happened between them), or right opens a fresh stack chained
// onto left's.
func pendingCoinbaseConnected(left, right Stack) bool {
	if left == right {
		return true
	}
	return left.Connected(right)
}

func hashCoinbase(cb Coinbase) Hash {
	h := sha256.New()
	h.Write(cb.Receiver[:])
	var buf [8]byte
	putUint64(buf[:], uint64(cb.Amount))
	h.Write(buf[:])
	if cb.FeeTransfer != nil {
		h.Write(cb.FeeTransfer.Receiver[:])
		putUint64(buf[:], uint64(cb.FeeTransfer.Fee))
		h.Write(buf[:])
	}
	sum := sha256.Sum256(h.Sum(nil))
	var out Hash
	copy(out[:], sum[:])
	return out
}

// PendingCoinbaseTree is a fixed-capacity ring of Stacks arranged as a
// complete binary tree of the given depth, matching the scan state's own
// tree so that a fully-proved transaction-tree window corresponds to
// exactly one coinbase stack reaching the "oldest" position.
type PendingCoinbaseTree struct {
	mu          sync.RWMutex
	depth       uint8
	stacks      []Stack // indexed by position, len == 2^depth
	oldest      int     // position of the stack the verifier will consume next
	newest      int     // position currently accepting pushes
}

// NewPendingCoinbaseTree constructs a tree with 2^depth stack slots, all
// empty, oldest and newest both at position 0.
func NewPendingCoinbaseTree(depth uint8) *PendingCoinbaseTree {
	return &PendingCoinbaseTree{
		depth:  depth,
		stacks: make([]Stack, 1<<depth),
	}
}

func (t *PendingCoinbaseTree) capacity() int { return len(t.stacks) }

// LatestStack returns the stack currently accepting pushes. With wantNew
// set it instead returns EmptyStack, the stack a brand new position would
// start from, or an error when the tree has no free position for one.
func (t *PendingCoinbaseTree) LatestStack(wantNew bool) (Stack, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if wantNew {
		next := (t.newest + 1) % t.capacity()
		if next == t.oldest && !t.stacks[t.oldest].IsEmpty() {
			return Stack{}, fmt.Errorf("pending coinbase: tree exhausted (depth %d)", t.depth)
		}
		return EmptyStack, nil
	}
	return t.stacks[t.newest], nil
}

// UpdateCoinbaseStack pushes cb (optionally rotating to a fresh stack first)
// and records the staged-ledger state hash the active stack was opened
// with.
func (t *PendingCoinbaseTree) UpdateCoinbaseStack(cb Coinbase, stateHash Hash, openNew bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if openNew {
		next := (t.newest + 1) % t.capacity()
		if next == t.oldest && !t.stacks[t.oldest].IsEmpty() {
			return fmt.Errorf("pending coinbase: tree exhausted (depth %d)", t.depth)
		}
		t.newest = next
		t.stacks[t.newest] = EmptyStack
	}
	s := t.stacks[t.newest]
	s = s.PushState(stateHash)
	s = s.PushCoinbase(cb)
	t.stacks[t.newest] = s
	return nil
}

// RemoveCoinbaseStack pops the oldest stack once its corresponding proof
// has been emitted and verified, rotating the consumption pointer forward.
func (t *PendingCoinbaseTree) RemoveCoinbaseStack() (Stack, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stacks[t.oldest]
	if s.IsEmpty() {
		return Stack{}, fmt.Errorf("pending coinbase: no stack ready to remove")
	}
	t.stacks[t.oldest] = EmptyStack
	t.oldest = (t.oldest + 1) % t.capacity()
	return s, nil
}

// OldestStack returns the stack at the front of the consumption queue
// without removing it, used by connectivity checks in statement.go.
func (t *PendingCoinbaseTree) OldestStack() Stack {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stacks[t.oldest]
}

// Checkpoint captures the tree's full state for rollback if a diff
// ultimately fails to apply after coinbase stacks were provisionally
// updated.
type Checkpoint struct {
	stacks []Stack
	oldest int
	newest int
}

// Snapshot returns a Checkpoint of t's current state.
func (t *PendingCoinbaseTree) Snapshot() Checkpoint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cp := Checkpoint{stacks: make([]Stack, len(t.stacks)), oldest: t.oldest, newest: t.newest}
	copy(cp.stacks, t.stacks)
	return cp
}

// Restore resets t to a previously captured Checkpoint.
func (t *PendingCoinbaseTree) Restore(cp Checkpoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	copy(t.stacks, cp.stacks)
	t.oldest = cp.oldest
	t.newest = cp.newest
}

// Clone returns an independent copy of t, used when a StagedLedger's Apply
// produces a new StagedLedger value without mutating the one it started
// from.
func (t *PendingCoinbaseTree) Clone() *PendingCoinbaseTree {
	cp := t.Snapshot()
	nt := NewPendingCoinbaseTree(t.depth)
	nt.Restore(cp)
	return nt
}
