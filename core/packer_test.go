package core

import "testing"

func testPackerConstants() ConstraintConstants {
	cc := DefaultConstraintConstants()
	cc.TransactionCapacityLog2 = 2 // max 3 commands/block, tree has 4 leaves
	cc.ZkAppLimitPerBlock = 128
	return cc
}

func paymentTxn(fee Fee, nonce Nonce) Transaction {
	return Transaction{
		Kind: KindSignedCommand,
		SignedCommand: &SignedCommand{
			Common: CommonFields{Fee: fee, Nonce: nonce},
			Kind:   Payment,
			Payment: &PaymentPayload{
				Amount: Amount(1),
			},
		},
	}
}

func zkAppTxn() Transaction {
	return Transaction{Kind: KindZkAppCommand, ZkAppCommand: &ZkAppCommand{}}
}

func TestCreateDiffSinglePartition(t *testing.T) {
	cc := testPackerConstants()
	scan := NewScanState(cc.TransactionCapacityLog2)
	candidates := []Transaction{paymentTxn(1, 0), paymentTxn(1, 1)}
	diff, err := CreateDiff(scan, cc, candidates, nil, PublicKey{1}, false)
	if err != nil {
		t.Fatalf("create diff: %v", err)
	}
	if len(diff.First.Commands) != 2 {
		t.Fatalf("expected both candidates to fit in the first partition, got %d", len(diff.First.Commands))
	}
	if diff.Second != nil {
		t.Fatalf("expected no second partition, got %d commands", len(diff.Second.Commands))
	}
	if diff.First.CoinbaseTxn == nil {
		t.Fatalf("expected the first partition to carry a coinbase")
	}
}

func TestCreateDiffSplitsAcrossPartitions(t *testing.T) {
	cc := testPackerConstants()
	scan := NewScanState(cc.TransactionCapacityLog2) // 4 leaves
	// One leaf is already taken by a proved base job, so no work is owed
	// and 3 leaves stay free.
	var reg Registers
	w1, _ := chainedWitness(reg, 1)
	if err := scan.AddTransactions([]TransactionWithWitness{w1}); err != nil {
		t.Fatalf("seed scan state: %v", err)
	}
	if err := scan.RecordProof(LedgerProofWithSokMessage{Statement: w1.Statement}); err != nil {
		t.Fatalf("prove seeded job: %v", err)
	}
	// The 4 candidates are trimmed to the 3-command block maximum; 1 free
	// leaf is reserved for the coinbase, leaving 2 for commands, so the 3
	// survivors split 2/1 across two partitions.
	candidates := []Transaction{
		paymentTxn(4, 0), paymentTxn(3, 1), paymentTxn(2, 2), paymentTxn(1, 3),
	}
	diff, err := CreateDiff(scan, cc, candidates, nil, PublicKey{1}, false)
	if err != nil {
		t.Fatalf("create diff: %v", err)
	}
	if len(diff.First.Commands) != 2 {
		t.Fatalf("expected 2 commands in the first partition, got %d", len(diff.First.Commands))
	}
	if diff.Second == nil || len(diff.Second.Commands) != 1 {
		t.Fatalf("expected 1 command in a second partition")
	}
	if diff.Second.Coinbase != CoinbaseZero {
		t.Fatalf("expected the second partition to carry no coinbase")
	}
}

func TestCreateDiffInsufficientWork(t *testing.T) {
	cc := testPackerConstants()
	scan := NewScanState(cc.TransactionCapacityLog2)
	var reg Registers
	w1, _ := chainedWitness(reg, 1)
	if err := scan.AddTransactions([]TransactionWithWitness{w1}); err != nil {
		t.Fatalf("seed scan state: %v", err)
	}
	_, err := CreateDiff(scan, cc, []Transaction{paymentTxn(1, 0)}, nil, PublicKey{1}, false)
	if err == nil {
		t.Fatalf("expected insufficient work error")
	}
	if _, ok := err.(*InsufficientWorkError); !ok {
		t.Fatalf("expected *InsufficientWorkError, got %T: %v", err, err)
	}
}

func TestCheckConstraintsAndUpdateTrimsZkApps(t *testing.T) {
	cc := testPackerConstants()
	cc.ZkAppLimitPerBlock = 1
	candidates := []Transaction{zkAppTxn(), zkAppTxn(), paymentTxn(1, 0)}
	trimmed := checkConstraintsAndUpdate(cc, candidates)
	zkapps := 0
	for _, t := range trimmed {
		if t.Kind == KindZkAppCommand {
			zkapps++
		}
	}
	if zkapps > cc.ZkAppLimitPerBlock {
		t.Fatalf("expected at most %d zkApp commands after trimming, got %d", cc.ZkAppLimitPerBlock, zkapps)
	}
}

func TestCheckConstraintsAndUpdateTrimsCommandCount(t *testing.T) {
	cc := testPackerConstants() // max 3 commands/block
	candidates := []Transaction{
		paymentTxn(1, 0), paymentTxn(1, 1), paymentTxn(1, 2), paymentTxn(1, 3), paymentTxn(1, 4),
	}
	trimmed := checkConstraintsAndUpdate(cc, candidates)
	if len(trimmed) != cc.MaxTransactionsPerBlock() {
		t.Fatalf("expected trimming to %d commands, got %d", cc.MaxTransactionsPerBlock(), len(trimmed))
	}
}

func TestValidateZkAppLimit(t *testing.T) {
	cc := testPackerConstants()
	cc.ZkAppLimitPerBlock = 1
	diff := Diff{First: PreDiffOne{
		Commands:    []Transaction{zkAppTxn(), zkAppTxn()},
		Coinbase:    CoinbaseOne,
		CoinbaseTxn: &Coinbase{},
	}}
	err := ValidateZkAppLimit(cc, diff)
	if err == nil {
		t.Fatalf("expected zkApp limit error")
	}
	if _, ok := err.(*ZkAppsExceedLimitError); !ok {
		t.Fatalf("expected *ZkAppsExceedLimitError, got %T: %v", err, err)
	}
}

func TestValidateCommandCount(t *testing.T) {
	cc := testPackerConstants()
	diff := Diff{First: PreDiffOne{
		Commands:    []Transaction{paymentTxn(1, 0), paymentTxn(1, 1), paymentTxn(1, 2), paymentTxn(1, 3)},
		Coinbase:    CoinbaseOne,
		CoinbaseTxn: &Coinbase{},
	}}
	if err := ValidateCommandCount(cc, diff); err == nil {
		t.Fatalf("expected command count error")
	}
}

func TestDiffValidateRequiresCoinbase(t *testing.T) {
	diff := Diff{First: PreDiffOne{Coinbase: CoinbaseZero}}
	if err := diff.Validate(); err == nil {
		t.Fatalf("expected validation error for a first partition with no coinbase")
	}
}
