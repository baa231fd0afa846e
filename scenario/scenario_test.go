package scenario

import (
	"context"
	"testing"

	"github.com/synnergy-chain/stagedledger/core"
)

// testConstants returns a small-capacity ConstraintConstants so fill-style
// scenarios stay cheap to run, matching the teacher's convention of a
// dedicated small-fixture constants value for tests rather than reusing
// the production default.
func testConstants() core.ConstraintConstants {
	cc := core.DefaultConstraintConstants()
	cc.TransactionCapacityLog2 = 3 // 7 commands per block
	cc.PendingCoinbaseDepth = 3
	return cc
}

func TestSinglePayment(t *testing.T) {
	ctx := context.Background()
	winner := DeterministicKey("test-winner")
	_, result := SinglePayment(ctx, testConstants(), winner)
	if result.Err != nil {
		t.Fatalf("single payment: %v", result.Err)
	}
	if len(result.Apply.Transactions) != 2 {
		t.Fatalf("expected 2 applied transactions (payment + coinbase), got %d", len(result.Apply.Transactions))
	}
}

func TestSinglePaymentBalances(t *testing.T) {
	ctx := context.Background()
	winner := DeterministicKey("test-winner")
	seeded, result := SinglePayment(ctx, testConstants(), winner)
	if result.Err != nil {
		t.Fatalf("single payment: %v", result.Err)
	}
	payer := mustAccount(result.StagedLedger.Ledger, seeded.Ids[0])
	if payer.Nonce != core.Nonce(556) {
		t.Fatalf("expected payer nonce 556 after one payment, got %d", payer.Nonce)
	}
	receiver := mustAccount(result.StagedLedger.Ledger, seeded.Ids[1])
	if receiver.Balance <= 677000000000000 {
		t.Fatalf("expected receiver balance to increase, got %d", receiver.Balance)
	}
	winnerAcc, ok := accountOf(result.StagedLedger.Ledger, core.AccountId{PublicKey: winner.Pub, TokenId: core.DefaultTokenID})
	if !ok {
		t.Fatalf("winner account not created by coinbase")
	}
	if core.Amount(winnerAcc.Balance) != testConstants().CoinbaseAward(false) {
		t.Fatalf("winner balance %d does not match plain coinbase award", winnerAcc.Balance)
	}
}

func TestMaxThroughputFillAndEmit(t *testing.T) {
	ctx := context.Background()
	winner := DeterministicKey("test-winner")
	cc := testConstants()
	final, results, err := MaxThroughputFillAndEmit(ctx, cc, winner)
	if err != nil {
		t.Fatalf("max throughput scenario: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 applied diffs (fill, prove), got %d", len(results))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("diff %d failed: %v", i, r.Err)
		}
	}
	proveResult := results[1]
	if proveResult.Apply.EmittedProof == nil {
		t.Fatalf("expected the prove block to emit a ledger proof")
	}
	if !final.Scan.Empty() {
		t.Fatalf("expected scan tree to be empty after emission")
	}
}

func TestNonZeroFeeExcessRejection(t *testing.T) {
	ctx := context.Background()
	winner := DeterministicKey("test-winner")
	_, result := NonZeroFeeExcessRejection(ctx, testConstants(), winner)
	if result.Err == nil {
		t.Fatalf("expected NonZeroFeeExcessError, got nil")
	}
	if _, ok := result.Err.(*core.NonZeroFeeExcessError); !ok {
		t.Fatalf("expected *core.NonZeroFeeExcessError, got %T: %v", result.Err, result.Err)
	}
}

func TestInsufficientWork(t *testing.T) {
	ctx := context.Background()
	winner := DeterministicKey("test-winner")
	_, result, err := InsufficientWork(ctx, testConstants(), winner)
	if err != nil {
		t.Fatalf("insufficient work scenario setup: %v", err)
	}
	if result.Err == nil {
		t.Fatalf("expected InsufficientWorkError, got nil")
	}
	if _, ok := result.Err.(*core.InsufficientWorkError); !ok {
		t.Fatalf("expected *core.InsufficientWorkError, got %T: %v", result.Err, result.Err)
	}
}

func TestSuperchargedCoinbase(t *testing.T) {
	ctx := context.Background()
	cc := testConstants()
	untimed, timed, err := SuperchargedCoinbase(ctx, cc, core.Slot(1))
	if err != nil {
		t.Fatalf("supercharged coinbase scenario: %v", err)
	}
	if untimed != cc.CoinbaseAward(true) {
		t.Fatalf("untimed award %d does not match supercharged award %d", untimed, cc.CoinbaseAward(true))
	}
	if timed != cc.CoinbaseAward(false) {
		t.Fatalf("timed award %d does not match plain award %d (vesting cliff not yet passed)", timed, cc.CoinbaseAward(false))
	}
	if untimed == timed {
		t.Fatalf("expected supercharged and plain awards to differ")
	}
}

func TestTwoPartitionBoundary(t *testing.T) {
	ctx := context.Background()
	winner := DeterministicKey("test-winner")
	cc := testConstants()
	next, result, err := TwoPartitionBoundary(ctx, cc, winner)
	if err != nil {
		t.Fatalf("two partition scenario setup: %v", err)
	}
	if result.Err != nil {
		t.Fatalf("two partition boundary diff: %v", result.Err)
	}
	if !next.Scan.HasRetiredTree() {
		t.Fatalf("expected the old, now-full tree to be retired pending its own proof")
	}
	if next.Scan.FreeBaseSlots() != cc.MaxTransactionsPerBlock()+1-2 {
		t.Fatalf("expected the fresh tree to hold exactly the 2 overflow commands, got %d free slots", next.Scan.FreeBaseSlots())
	}
}
