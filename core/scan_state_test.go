package core

import "testing"

// chainedStatement builds a Statement whose Source equals prevTarget and
// whose Target is a fresh, distinct Registers value, so a sequence built
// this way always satisfies MergeStatements' connectivity rules.
func chainedStatement(prevTarget Registers, tag byte) (Statement, Registers) {
	var next Hash
	next[0] = tag
	target := Registers{
		FirstPassLedger:  next,
		SecondPassLedger: next,
		LocalState:       LocalState{Ledger: next},
	}
	stmt := Statement{
		Source:                prevTarget,
		Target:                target,
		ConnectingLedgerLeft:  prevTarget.FirstPassLedger,
		ConnectingLedgerRight: target.FirstPassLedger,
		FeeExcess:             ZeroFeeExcess(),
	}
	return stmt, target
}

func chainedWitness(prevTarget Registers, tag byte) (TransactionWithWitness, Registers) {
	stmt, target := chainedStatement(prevTarget, tag)
	return TransactionWithWitness{
		Transaction: Transaction{Kind: KindCoinbase, Coinbase: &Coinbase{}},
		Statement:   stmt,
		Status:      AppliedStatus(),
	}, target
}

func TestScanStateFreeBaseSlots(t *testing.T) {
	s := NewScanState(2) // 4 leaves
	if got := s.FreeBaseSlots(); got != 4 {
		t.Fatalf("expected 4 free slots on a fresh tree, got %d", got)
	}
	var reg Registers
	w1, reg := chainedWitness(reg, 1)
	w2, _ := chainedWitness(reg, 2)
	if err := s.AddTransactions([]TransactionWithWitness{w1, w2}); err != nil {
		t.Fatalf("add transactions: %v", err)
	}
	if got := s.FreeBaseSlots(); got != 2 {
		t.Fatalf("expected 2 free slots after adding 2 of 4, got %d", got)
	}
}

func TestScanStateFillRecordProofEmit(t *testing.T) {
	s := NewScanState(2) // 4 leaves
	var reg Registers
	txns := make([]TransactionWithWitness, 0, 4)
	for i := byte(1); i <= 4; i++ {
		var w TransactionWithWitness
		w, reg = chainedWitness(reg, i)
		txns = append(txns, w)
	}
	if err := s.AddTransactions(txns); err != nil {
		t.Fatalf("add transactions: %v", err)
	}
	if s.RootFullyProved() {
		t.Fatalf("tree should not be proved before any work is recorded")
	}

	outstanding := s.WorkStatementsForNewDiff()
	if len(outstanding) == 0 {
		t.Fatalf("expected outstanding work after filling the tree")
	}
	for _, stmt := range outstanding {
		if err := s.RecordProof(LedgerProofWithSokMessage{Statement: stmt}); err != nil {
			t.Fatalf("record proof for %s: %v", stmt.Hash().Hex(), err)
		}
	}
	if !s.RootFullyProved() {
		t.Fatalf("expected root fully proved after recording every outstanding statement")
	}

	proof, err := s.TryEmit()
	if err != nil {
		t.Fatalf("try emit: %v", err)
	}
	if proof == nil {
		t.Fatalf("expected a proof to emit")
	}
	if !s.Empty() {
		t.Fatalf("expected tree to be empty after emission")
	}
	if got := s.FreeBaseSlots(); got != 4 {
		t.Fatalf("expected 4 free slots after emission, got %d", got)
	}
}

func TestScanStateRollToFreshTreeCarriesOutstandingWork(t *testing.T) {
	s := NewScanState(1) // 2 leaves
	var reg Registers
	w1, reg := chainedWitness(reg, 1)
	w2, _ := chainedWitness(reg, 2)
	if err := s.AddTransactions([]TransactionWithWitness{w1, w2}); err != nil {
		t.Fatalf("fill tree: %v", err)
	}
	if s.FreeBaseSlots() != 0 {
		t.Fatalf("expected tree to be full")
	}
	if err := s.RollToFreshTree(); err != nil {
		t.Fatalf("roll to fresh tree: %v", err)
	}
	if !s.HasRetiredTree() {
		t.Fatalf("expected a retired tree to be tracked")
	}
	if s.FreeBaseSlots() != 2 {
		t.Fatalf("expected the fresh tree to be fully free, got %d", s.FreeBaseSlots())
	}

	// The retired tree's outstanding work must still be demanded.
	outstanding := s.WorkStatementsForNewDiff()
	if len(outstanding) == 0 {
		t.Fatalf("expected the retired tree's work to remain outstanding")
	}
	for _, stmt := range outstanding {
		if err := s.RecordProof(LedgerProofWithSokMessage{Statement: stmt}); err != nil {
			t.Fatalf("record proof against retired tree: %v", err)
		}
	}

	proof, err := s.TryEmit()
	if err != nil {
		t.Fatalf("try emit: %v", err)
	}
	if proof == nil {
		t.Fatalf("expected the retired tree's proof to emit")
	}
	if s.HasRetiredTree() {
		t.Fatalf("expected the retired tree to be cleared after emission")
	}

	// A second RollToFreshTree while none is outstanding should succeed.
	if err := s.RollToFreshTree(); err != nil {
		t.Fatalf("second roll to fresh tree: %v", err)
	}
}

func TestScanStateRollToFreshTreeRejectsDoubleBoundary(t *testing.T) {
	s := NewScanState(1)
	if err := s.RollToFreshTree(); err != nil {
		t.Fatalf("first roll: %v", err)
	}
	if err := s.RollToFreshTree(); err == nil {
		t.Fatalf("expected a second roll to be rejected while one is outstanding")
	}
}

func TestScanStateCloneIsIndependent(t *testing.T) {
	s := NewScanState(1)
	var reg Registers
	w1, _ := chainedWitness(reg, 1)
	clone := s.Clone()
	if err := s.AddTransactions([]TransactionWithWitness{w1}); err != nil {
		t.Fatalf("add transaction: %v", err)
	}
	if clone.FreeBaseSlots() != 2 {
		t.Fatalf("expected clone taken before the mutation to remain untouched")
	}
	if s.FreeBaseSlots() != 1 {
		t.Fatalf("expected original to reflect the new transaction")
	}
}
