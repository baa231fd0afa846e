package core

// scan_state.go — the parallel scan state of spec.md §4.4: a bounded
// work-stealing tree of base (transaction) and merge (proof-combination)
// jobs that spreads SNARK proving work evenly across blocks instead of
// requiring one block to prove its own transactions.
//
// Grounded on the teacher's core/binary_tree_operations.go for the
// fixed-capacity indexed binary tree walk (parent/children/leaf indexing),
// generalized from an opaque-payload tree into a tree of typed Jobs with
// the base/merge state machine spec.md describes.

import (
	"fmt"
	"sync"
)

// JobStatus is where a scan-state job sits in its lifecycle.
type JobStatus int

const (
	JobEmpty JobStatus = iota
	JobTodo
	JobDone
)

// TransactionWithWitness pairs a transaction with the sparse-ledger witness
// it executed against, the statement it proves, and its applied status —
// everything a base job needs to hand to a SNARK worker or to a verifier.
type TransactionWithWitness struct {
	Transaction Transaction
	Witness     *SparseLedger
	Statement   Statement
	Status      TransactionStatus
}

// LedgerProofWithSokMessage is a completed unit of work: a Statement and
// the SokMessage binding it to the prover who gets credited its fee.
type LedgerProofWithSokMessage struct {
	Statement  Statement
	SokMessage SokMessage
}

// SokMessage binds a completed proof to the fee its prover should be paid
// and the public key that should receive it.
type SokMessage struct {
	Fee      Fee
	Prover   PublicKey
}

// Job is one node of the scan state tree: a base job wraps a single
// transaction, a merge job wraps the combination of its two children's
// statements. A job starts Empty, becomes Todo once its inputs exist, and
// Done once a verified proof has been recorded for it.
type Job struct {
	Status JobStatus
	IsBase bool
	Base   *TransactionWithWitness
	Merge  *Statement // the statement this merge job must prove, once both children are Done
	Proof  *LedgerProofWithSokMessage
}

// ScanState is the full parallel scan tree: a perfectly balanced binary
// tree of depth matching the configured transaction capacity, plus the
// bookkeeping needed to hand out new work and detect when the oldest tree
// is fully proved and ready to emit.
type ScanState struct {
	mu    sync.RWMutex
	depth int
	jobs  []Job // indexed as a 1-based heap: jobs[1] is the root

	// previousIncompleteZkappUpdates carries zkApp account updates whose
	// proof verification spans a tree boundary: the update was applied
	// speculatively against one tree's ledger view but its proof will not
	// be confirmed until the next tree's base jobs are scheduled.
	previousIncompleteZkappUpdates []AccountUpdate

	lastEmitted *LedgerProofWithSokMessage

	// previous holds a tree retired by RollToFreshTree before its root
	// finished proving: a block filled the current tree's last base slot
	// but still had transactions left over for a second partition, so the
	// full tree was set aside to keep proving while a fresh tree opened to
	// receive the overflow. Its outstanding work is folded into
	// WorkStatementsForNewDiff/RecordProof until it completes, at which
	// point TryEmit retires it in FIFO order ahead of the current tree.
	previous *ScanState
}

// NewScanState constructs an empty tree with 2^depth leaves (base jobs).
func NewScanState(depth int) *ScanState {
	size := 1 << uint(depth+1) // 1-based heap for 2^depth leaves
	return &ScanState{depth: depth, jobs: make([]Job, size)}
}

func (s *ScanState) leafCount() int { return 1 << uint(s.depth) }

func (s *ScanState) leafIndex(i int) int { return (1 << uint(s.depth)) + i }

func parentOf(i int) int { return i / 2 }
func leftChild(i int) int  { return i * 2 }
func rightChild(i int) int { return i*2 + 1 }

// Empty reports whether every job in the tree is JobEmpty.
func (s *ScanState) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := 1; i < len(s.jobs); i++ {
		if s.jobs[i].Status != JobEmpty {
			return false
		}
	}
	return true
}

// AddTransactions places txns into the tree's next available base job
// slots (in left-to-right order), then walks upward enqueueing merge jobs
// wherever both children have become Todo/Done. It returns an error if
// there are not enough free leaves.
func (s *ScanState) AddTransactions(txns []TransactionWithWitness) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	free := make([]int, 0, s.leafCount())
	for i := 0; i < s.leafCount(); i++ {
		idx := s.leafIndex(i)
		if s.jobs[idx].Status == JobEmpty {
			free = append(free, idx)
		}
	}
	if len(free) < len(txns) {
		return fmt.Errorf("scan state: %d free base slots, need %d", len(free), len(txns))
	}

	for i, tw := range txns {
		idx := free[i]
		twCopy := tw
		s.jobs[idx] = Job{Status: JobTodo, IsBase: true, Base: &twCopy}
		s.bubbleUp(idx)
	}
	return nil
}

// bubbleUp walks from a changed leaf toward the root, materializing merge
// jobs once both children of a node carry a statement.
func (s *ScanState) bubbleUp(idx int) {
	idx = parentOf(idx)
	for idx >= 1 {
		left := s.jobs[leftChild(idx)]
		right := s.jobs[rightChild(idx)]
		if left.Status == JobEmpty || right.Status == JobEmpty {
			return
		}
		leftStmt, ok1 := statementOf(left)
		rightStmt, ok2 := statementOf(right)
		if !ok1 || !ok2 {
			return
		}
		merged, err := MergeStatements(leftStmt, rightStmt)
		if err != nil {
			// Children don't connect yet (still being filled out of order);
			// leave this node empty until they do.
			return
		}
		if s.jobs[idx].Status == JobEmpty {
			s.jobs[idx] = Job{Status: JobTodo, Merge: &merged}
		} else {
			s.jobs[idx].Merge = &merged
		}
		idx = parentOf(idx)
	}
}

func statementOf(j Job) (Statement, bool) {
	if j.IsBase {
		if j.Base == nil {
			return Statement{}, false
		}
		return j.Base.Statement, true
	}
	if j.Merge == nil {
		return Statement{}, false
	}
	return *j.Merge, true
}

// WorkStatementsForNewDiff returns the statements of every Todo job in the
// tree, a retired tree's first, each tree in heap order (root first, then
// level by level, left to right within a level) — the set a block producer must
// obtain completed work for before it can include new transactions.
func (s *ScanState) WorkStatementsForNewDiff() []Statement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Statement
	if s.previous != nil {
		out = append(out, s.previous.WorkStatementsForNewDiff()...)
	}
	for i := 1; i < len(s.jobs); i++ {
		if s.jobs[i].Status == JobTodo {
			if stmt, ok := statementOf(s.jobs[i]); ok {
				out = append(out, stmt)
			}
		}
	}
	return out
}

// AllWorkStatements returns the statement of every non-empty job
// regardless of status, a retired tree's first.
func (s *ScanState) AllWorkStatements() []Statement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Statement
	if s.previous != nil {
		out = append(out, s.previous.AllWorkStatements()...)
	}
	for i := 1; i < len(s.jobs); i++ {
		if s.jobs[i].Status != JobEmpty {
			if stmt, ok := statementOf(s.jobs[i]); ok {
				out = append(out, stmt)
			}
		}
	}
	return out
}

// KWorkPairsForNewDiff returns the first k statements (or fewer) of
// WorkStatementsForNewDiff.
func (s *ScanState) KWorkPairsForNewDiff(k int) []Statement {
	stmts := s.WorkStatementsForNewDiff()
	if len(stmts) > k {
		stmts = stmts[:k]
	}
	return stmts
}

// RecordProof marks the Todo job matching stmt.Hash() as Done, attaching
// the supplied proof. It returns an error if no matching Todo job exists.
func (s *ScanState) RecordProof(proof LedgerProofWithSokMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := proof.Statement.Hash()
	for i := 1; i < len(s.jobs); i++ {
		if s.jobs[i].Status != JobTodo {
			continue
		}
		stmt, ok := statementOf(s.jobs[i])
		if !ok || stmt.Hash() != target {
			continue
		}
		s.jobs[i].Status = JobDone
		s.jobs[i].Proof = &proof
		return nil
	}
	if s.previous != nil {
		if err := s.previous.RecordProof(proof); err == nil {
			return nil
		}
	}
	return fmt.Errorf("scan state: no pending job matches statement %s", target.Hex())
}

// FoldChronologicalUntilErr walks the tree's base jobs in the order they
// were added (left to right), invoking fn on each until fn returns an
// error or the tree is exhausted.
func (s *ScanState) FoldChronologicalUntilErr(fn func(TransactionWithWitness) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := 0; i < s.leafCount(); i++ {
		idx := s.leafIndex(i)
		if s.jobs[idx].Status == JobEmpty || s.jobs[idx].Base == nil {
			continue
		}
		if err := fn(*s.jobs[idx].Base); err != nil {
			return err
		}
	}
	return nil
}

// FreeBaseSlots reports how many base-job leaves are currently JobEmpty.
func (s *ScanState) FreeBaseSlots() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	free := 0
	for i := 0; i < s.leafCount(); i++ {
		if s.jobs[s.leafIndex(i)].Status == JobEmpty {
			free++
		}
	}
	return free
}

// PartitionIfOverflowing reports how many of the requested transaction
// count fit in the currently free base slots before the tree would need to
// roll over into a fresh one, splitting a diff's transactions into two
// partitions when it does not all fit (spec.md §4.6/§4.7's two-partition
// diff rule).
func (s *ScanState) PartitionIfOverflowing(want int) (firstPartition, secondPartition int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	free := 0
	for i := 0; i < s.leafCount(); i++ {
		if s.jobs[s.leafIndex(i)].Status == JobEmpty {
			free++
		}
	}
	if want <= free {
		return want, 0
	}
	return free, want - free
}

// RollToFreshTree retires the current tree into s.previous, still carrying
// its outstanding (Todo) jobs toward completion, and resets the current
// tree to empty so a diff's overflow partition can start filling it
// immediately. Used when a block's second partition needs base slots the
// current (already-full) tree cannot offer. Returns an error if a retired
// tree is already outstanding — only one tree boundary may be in flight at
// a time under this design.
func (s *ScanState) RollToFreshTree() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.previous != nil {
		return fmt.Errorf("scan state: a retired tree is already awaiting proof; cannot cross another boundary")
	}
	retired := &ScanState{depth: s.depth, jobs: s.jobs}
	s.previous = retired
	s.jobs = make([]Job, len(retired.jobs))
	return nil
}

// TryEmit retires whichever tree is ready: the older, previously-retired
// tree first (so trees complete in FIFO order), falling back to the
// current tree. It returns the emitted proof, or (nil, nil) if neither
// tree's root has finished proving yet.
func (s *ScanState) TryEmit() (*LedgerProofWithSokMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.previous != nil && s.previous.RootFullyProved() {
		proof, err := s.previous.EmitAndClear()
		if err != nil {
			return nil, err
		}
		s.lastEmitted = proof
		s.previous = nil
		return proof, nil
	}
	if s.jobs[1].Status == JobDone {
		proof := s.jobs[1].Proof
		s.lastEmitted = proof
		for i := range s.jobs {
			s.jobs[i] = Job{}
		}
		return proof, nil
	}
	return nil, nil
}

// HasRetiredTree reports whether a previously-filled tree is currently
// waiting on RecordProof/TryEmit after a boundary crossing.
func (s *ScanState) HasRetiredTree() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.previous != nil
}

// LastEmittedValue returns the most recently emitted ledger proof, or nil
// if the tree has never completed a full cycle.
func (s *ScanState) LastEmittedValue() *LedgerProofWithSokMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastEmitted
}

// RootFullyProved reports whether the tree's root job is Done, meaning a
// single ledger proof now covers every transaction currently in the tree.
func (s *ScanState) RootFullyProved() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[1].Status == JobDone
}

// EmitAndClear takes the root's completed proof, stashes it as the last
// emitted value, and resets the tree to empty so it can start accepting a
// fresh window of transactions.
func (s *ScanState) EmitAndClear() (*LedgerProofWithSokMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs[1].Status != JobDone || s.jobs[1].Proof == nil {
		return nil, fmt.Errorf("scan state: root not yet fully proved")
	}
	proof := s.jobs[1].Proof
	s.lastEmitted = proof
	for i := range s.jobs {
		s.jobs[i] = Job{}
	}
	return proof, nil
}

// StashIncompleteZkappUpdates records account updates whose proof
// verification spans into the next tree, so the next tree's first base job
// can fold a digest of them into its local-state hash.
func (s *ScanState) StashIncompleteZkappUpdates(updates []AccountUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previousIncompleteZkappUpdates = updates
}

// PreviousIncompleteZkappUpdates returns the updates stashed by the prior
// tree cycle, if any.
func (s *ScanState) PreviousIncompleteZkappUpdates() []AccountUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.previousIncompleteZkappUpdates
}

// DoneProofs collects the recorded proof of every Done job in the tree
// (and any retired previous tree), used by VerifyScanStatement's final
// re-verification pass.
func (s *ScanState) DoneProofs() []LedgerProofWithSokMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []LedgerProofWithSokMessage
	if s.previous != nil {
		out = append(out, s.previous.DoneProofs()...)
	}
	for i := 1; i < len(s.jobs); i++ {
		if s.jobs[i].Status == JobDone && s.jobs[i].Proof != nil {
			out = append(out, *s.jobs[i].Proof)
		}
	}
	return out
}

// Clone returns an independent copy of s, used when a StagedLedger's Apply
// produces a new StagedLedger value without mutating the one it started
// from.
func (s *ScanState) Clone() *ScanState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := &ScanState{
		depth:                          s.depth,
		jobs:                           make([]Job, len(s.jobs)),
		previousIncompleteZkappUpdates: append([]AccountUpdate{}, s.previousIncompleteZkappUpdates...),
		lastEmitted:                    s.lastEmitted,
	}
	copy(out.jobs, s.jobs)
	if s.previous != nil {
		out.previous = s.previous.Clone()
	}
	return out
}
