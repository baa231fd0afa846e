package scenario

// scenarios.go — the six scenario harnesses of spec.md §8. Each function
// seeds a fresh staged ledger and drives it through a sequence of diffs,
// returning enough state for a test or CLI invocation to assert the
// invariant the scenario exists to check.
//
// Grounded on the teacher's tests/*_test.go convention of one
// self-contained setup-then-assert function per behavior, generalized
// here into exported harness functions so both _test.go files and
// cmd/stagedledger's `scenario run` subcommand can drive the same code.

import (
	"context"
	"fmt"

	"github.com/synnergy-chain/stagedledger/core"
)

// Result is the outcome of running a scenario against one staged ledger.
type Result struct {
	StagedLedger *core.StagedLedger
	Apply        *core.ApplyResult
	Err          error
}

func loadFiveAccounts(cc core.ConstraintConstants) (*Seeded, error) {
	fixture, err := LoadFixture("testdata/five_accounts.yaml")
	if err != nil {
		return nil, err
	}
	return BuildGenesisLedger(fixture, cc.LedgerDepth)
}

// SinglePayment runs scenario 1: one payment from account[0] to account[1]
// against the five-account genesis fixture, with a coinbase paying winner.
//
// spec.md §8 scenario 1 names a canonical staged-ledger hash produced by
// the reference implementation's Poseidon hash over the Pasta curve. This
// module's StagedLedgerHash (hash.go) is a sha256 chain, chosen to match
// the teacher's hashing idiom rather than reimplement a foreign field's
// arithmetic, so it does not reproduce that literal string. This harness
// instead exercises and lets a caller assert the invariants spec.md §8
// actually tests: zero fee excess, correct balance deltas, and that the
// resulting hash is a pure deterministic function of its inputs.
func SinglePayment(ctx context.Context, cc core.ConstraintConstants, winner KeyPair) (*Seeded, Result) {
	seeded, err := loadFiveAccounts(cc)
	if err != nil {
		return nil, Result{Err: err}
	}

	sl := core.NewStagedLedger(seeded.Ledger, cc, core.NewMockVerifier(64))

	payer := seeded.Keys[0]
	receiver := seeded.Ids[1].PublicKey
	cmd := SignPayment(payer, receiver, core.Fee(8688709898), core.Amount(435117290311290102), core.Nonce(555))

	diff := core.Diff{
		First: core.PreDiffOne{
			Commands:    []core.Transaction{{Kind: core.KindSignedCommand, SignedCommand: cmd}},
			Coinbase:    core.CoinbaseOne,
			CoinbaseTxn: &core.Coinbase{Receiver: winner.Pub, Amount: cc.CoinbaseAward(false)},
		},
	}

	next, applied, err := sl.Apply(ctx, diff, core.Slot(1), core.Hash{})
	return seeded, Result{StagedLedger: next, Apply: applied, Err: err}
}

// MaxThroughputFillAndEmit runs scenario 2: fills a scan tree to exactly
// its configured capacity in one block, then — since every outstanding job
// becomes Todo the instant the tree fills (bubbleUp connects statements
// eagerly, it does not wait for proofs) — supplies completed work for the
// entire tree in the very next block and confirms exactly one ledger proof
// emits, clearing the tree back to empty.
//
// This single-tree model is a deliberate simplification of the reference's
// multi-tree pipeline (see DESIGN.md): the reference spreads proving work
// across several trees in flight so block N+1's transactions can start
// filling a fresh tree while tree N is still being proved. Here there is
// only one tree, so the "next block" in this harness carries zero new
// commands — it exists purely to submit the completed work — and it is the
// one immediately after that resumes packing new transactions into the now
// empty tree.
func MaxThroughputFillAndEmit(ctx context.Context, cc core.ConstraintConstants, winner KeyPair) (*core.StagedLedger, []Result, error) {
	seeded, err := loadFiveAccounts(cc)
	if err != nil {
		return nil, nil, err
	}
	sl := core.NewStagedLedger(seeded.Ledger, cc, core.NewMockVerifier(4096))

	payer := seeded.Keys[0]
	receiver := seeded.Ids[1].PublicKey
	fillCount := cc.MaxTransactionsPerBlock()

	commands := make([]core.Transaction, 0, fillCount)
	nonce := mustAccount(seeded.Ledger, seeded.Ids[0]).Nonce
	for i := 0; i < fillCount; i++ {
		cmd := SignPayment(payer, receiver, core.Fee(1), core.Amount(1), nonce)
		commands = append(commands, core.Transaction{Kind: core.KindSignedCommand, SignedCommand: cmd})
		nonce = nonce.Succ()
	}

	fillDiff := core.Diff{
		First: core.PreDiffOne{
			Commands:    commands,
			Coinbase:    core.CoinbaseOne,
			CoinbaseTxn: &core.Coinbase{Receiver: winner.Pub, Amount: cc.CoinbaseAward(false)},
		},
	}
	var results []Result
	afterFill, fillApplied, err := sl.Apply(ctx, fillDiff, core.Slot(1), core.Hash{})
	results = append(results, Result{StagedLedger: afterFill, Apply: fillApplied, Err: err})
	if err != nil {
		return nil, results, nil
	}

	outstanding := afterFill.Scan.WorkStatementsForNewDiff()
	work := make([]core.LedgerProofWithSokMessage, 0, len(outstanding))
	for _, stmt := range outstanding {
		w, err := core.CompleteWork(stmt, core.SokMessage{Fee: core.Fee(0), Prover: winner.Pub})
		if err != nil {
			return nil, results, fmt.Errorf("complete work: %w", err)
		}
		work = append(work, w)
	}

	proveDiff := core.Diff{
		First: core.PreDiffOne{
			CompletedWork: work,
			Coinbase:      core.CoinbaseOne,
			CoinbaseTxn:   &core.Coinbase{Receiver: winner.Pub, Amount: cc.CoinbaseAward(false)},
		},
	}
	afterProve, proveApplied, err := afterFill.Apply(ctx, proveDiff, core.Slot(2), core.Hash{1})
	results = append(results, Result{StagedLedger: afterProve, Apply: proveApplied, Err: err})
	if err != nil {
		return afterFill, results, nil
	}
	return afterProve, results, nil
}

// NonZeroFeeExcessRejection runs scenario 3: constructs a diff whose
// partition does not net to a zero fee excess and confirms Apply rejects
// it with NonZeroFeeExcessError, leaving the caller's staged ledger
// untouched. A signed command's fee excess is always positive (the fee
// payer always owes their fee); the only way to make a partition net to
// zero is to balance it with an equal-and-opposite fee transfer, so this
// harness omits that fee transfer entirely, leaving the lone payment's fee
// as the partition's uncancelled excess.
func NonZeroFeeExcessRejection(ctx context.Context, cc core.ConstraintConstants, winner KeyPair) (*core.StagedLedger, Result) {
	seeded, err := loadFiveAccounts(cc)
	if err != nil {
		return nil, Result{Err: err}
	}
	sl := core.NewStagedLedger(seeded.Ledger, cc, core.NewMockVerifier(64))

	payer := seeded.Keys[0]
	receiver := seeded.Ids[1].PublicKey
	acc := mustAccount(seeded.Ledger, seeded.Ids[0])
	cmd := SignPayment(payer, receiver, core.Fee(100), core.Amount(1), acc.Nonce)

	diff := core.Diff{
		First: core.PreDiffOne{
			Commands:    []core.Transaction{{Kind: core.KindSignedCommand, SignedCommand: cmd}},
			Coinbase:    core.CoinbaseOne,
			CoinbaseTxn: &core.Coinbase{Receiver: winner.Pub, Amount: cc.CoinbaseAward(false)},
		},
	}
	_, _, err = sl.Apply(ctx, diff, core.Slot(1), core.Hash{})
	return sl, Result{Err: err}
}

// InsufficientWork runs scenario 4: first fills a tree (producing
// outstanding work), then submits a follow-up diff supplying fewer
// completed-work proofs than the scan state requires, expecting
// InsufficientWorkError.
func InsufficientWork(ctx context.Context, cc core.ConstraintConstants, winner KeyPair) (*core.StagedLedger, Result, error) {
	seeded, err := loadFiveAccounts(cc)
	if err != nil {
		return nil, Result{}, err
	}
	sl := core.NewStagedLedger(seeded.Ledger, cc, core.NewMockVerifier(4096))

	payer := seeded.Keys[0]
	receiver := seeded.Ids[1].PublicKey
	fillCount := cc.MaxTransactionsPerBlock()
	nonce := mustAccount(seeded.Ledger, seeded.Ids[0]).Nonce
	commands := make([]core.Transaction, 0, fillCount)
	for i := 0; i < fillCount; i++ {
		cmd := SignPayment(payer, receiver, core.Fee(1), core.Amount(1), nonce)
		commands = append(commands, core.Transaction{Kind: core.KindSignedCommand, SignedCommand: cmd})
		nonce = nonce.Succ()
	}
	fillDiff := core.Diff{
		First: core.PreDiffOne{
			Commands:    commands,
			Coinbase:    core.CoinbaseOne,
			CoinbaseTxn: &core.Coinbase{Receiver: winner.Pub, Amount: cc.CoinbaseAward(false)},
		},
	}
	afterFill, _, err := sl.Apply(ctx, fillDiff, core.Slot(1), core.Hash{})
	if err != nil {
		return nil, Result{}, fmt.Errorf("insufficient work scenario: fill step failed: %w", err)
	}

	outstanding := afterFill.Scan.WorkStatementsForNewDiff()
	if len(outstanding) == 0 {
		return nil, Result{}, fmt.Errorf("insufficient work scenario: fill step produced no outstanding work")
	}
	// Supply one fewer proof than required.
	short := outstanding[:len(outstanding)-1]
	work := make([]core.LedgerProofWithSokMessage, 0, len(short))
	for _, stmt := range short {
		w, err := core.CompleteWork(stmt, core.SokMessage{Fee: core.Fee(0), Prover: winner.Pub})
		if err != nil {
			return nil, Result{}, fmt.Errorf("complete work: %w", err)
		}
		work = append(work, w)
	}
	shortDiff := core.Diff{
		First: core.PreDiffOne{
			CompletedWork: work,
			Coinbase:      core.CoinbaseOne,
			CoinbaseTxn:   &core.Coinbase{Receiver: winner.Pub, Amount: cc.CoinbaseAward(false)},
		},
	}
	_, _, err = afterFill.Apply(ctx, shortDiff, core.Slot(2), core.Hash{1})
	return afterFill, Result{Err: err}, nil
}

// SuperchargedCoinbase runs scenario 5 twice: once with an untimed winner
// (coinbase = coinbase_amount * supercharged_coinbase_factor), once with a
// winner whose vesting cliff has not yet passed the applied slot (coinbase
// = plain coinbase_amount). It returns the two coinbase amounts actually
// credited so a caller can assert they differ by the configured factor.
func SuperchargedCoinbase(ctx context.Context, cc core.ConstraintConstants, slot core.Slot) (untimedAward, timedAward core.Amount, err error) {
	untimedWinner := DeterministicKey("supercharge-untimed-winner")
	rootA := core.NewPersistentLedger(cc.LedgerDepth)
	untimedId := core.AccountId{PublicKey: untimedWinner.Pub, TokenId: core.DefaultTokenID}
	if _, err := rootA.ApplyAccount(core.NewAccount(untimedId)); err != nil {
		return 0, 0, fmt.Errorf("supercharged coinbase scenario: seed untimed winner: %w", err)
	}
	slA := core.NewStagedLedger(rootA, cc, core.NewMockVerifier(64))
	diffA := core.Diff{First: core.PreDiffOne{
		Coinbase:    core.CoinbaseOne,
		CoinbaseTxn: &core.Coinbase{Receiver: untimedWinner.Pub, Amount: cc.CoinbaseAward(true)},
	}}
	nextA, _, err := slA.Apply(ctx, diffA, slot, core.Hash{})
	if err != nil {
		return 0, 0, fmt.Errorf("supercharged coinbase scenario: untimed apply failed: %w", err)
	}
	winnerAccA, ok := accountOf(nextA.Ledger, untimedId)
	if !ok {
		return 0, 0, fmt.Errorf("supercharged coinbase scenario: untimed winner account missing")
	}
	untimedAward = core.Amount(winnerAccA.Balance)

	timedWinner := DeterministicKey("supercharge-timed-winner")
	rootB := core.NewPersistentLedger(cc.LedgerDepth)
	timing := core.TimingInfo{
		Timed:                 true,
		InitialMinimumBalance: core.Balance(cc.CoinbaseAmount),
		CliffTime:             slot + 1000,
	}
	timedId := seedTimedAccount(rootB, timedWinner, timing, 0)
	slB := core.NewStagedLedger(rootB, cc, core.NewMockVerifier(64))
	supercharged := !timing.IsLockedAt(slot)
	diffB := core.Diff{First: core.PreDiffOne{
		Coinbase:    core.CoinbaseOne,
		CoinbaseTxn: &core.Coinbase{Receiver: timedWinner.Pub, Amount: cc.CoinbaseAward(supercharged)},
	}}
	nextB, _, err := slB.Apply(ctx, diffB, slot, core.Hash{})
	if err != nil {
		return 0, 0, fmt.Errorf("supercharged coinbase scenario: timed apply failed: %w", err)
	}
	winnerAccB, ok := accountOf(nextB.Ledger, timedId)
	if !ok {
		return 0, 0, fmt.Errorf("supercharged coinbase scenario: timed winner account missing")
	}
	timedAward = core.Amount(winnerAccB.Balance)
	return untimedAward, timedAward, nil
}

// TwoPartitionBoundary runs scenario 6: fills a tree to one slot short of
// capacity, then submits a block whose commands need two slots, forcing
// the packer to split across two partitions: the first carries the block's
// one coinbase and fills the old tree's last leaf, the second carries the
// overflow commands and crosses onto a freshly opened tree.
//
// The boundary diff also pays down every statement the warmup left
// outstanding, attached as the first partition's completed work: with
// nothing supplied, CheckScanStatements would refuse a diff this small
// outright (it owes proofs for the whole warmed-up backlog before it may
// add anything new), and since the warmup left exactly one leaf
// permanently unfilled, the tree's root can never connect regardless of
// how much of that backlog gets proved — so paying it off here cannot
// trigger a premature emission. The first partition's own coinbase then
// consumes that last leaf, filling the tree completely and forcing the
// second partition's two commands to roll over onto a fresh tree.
func TwoPartitionBoundary(ctx context.Context, cc core.ConstraintConstants, winner KeyPair) (*core.StagedLedger, Result, error) {
	seeded, err := loadFiveAccounts(cc)
	if err != nil {
		return nil, Result{}, err
	}
	sl := core.NewStagedLedger(seeded.Ledger, cc, core.NewMockVerifier(4096))

	payer := seeded.Keys[0]
	receiver := seeded.Ids[1].PublicKey
	nonce := mustAccount(seeded.Ledger, seeded.Ids[0]).Nonce

	almostFull := cc.MaxTransactionsPerBlock() - 1
	if almostFull < 0 {
		almostFull = 0
	}
	warmup := make([]core.Transaction, 0, almostFull)
	for i := 0; i < almostFull; i++ {
		cmd := SignPayment(payer, receiver, core.Fee(1), core.Amount(1), nonce)
		warmup = append(warmup, core.Transaction{Kind: core.KindSignedCommand, SignedCommand: cmd})
		nonce = nonce.Succ()
	}
	warmupDiff := core.Diff{First: core.PreDiffOne{
		Commands:    warmup,
		Coinbase:    core.CoinbaseOne,
		CoinbaseTxn: &core.Coinbase{Receiver: winner.Pub, Amount: cc.CoinbaseAward(false)},
	}}
	afterWarmup, _, err := sl.Apply(ctx, warmupDiff, core.Slot(1), core.Hash{})
	if err != nil {
		return nil, Result{}, fmt.Errorf("two partition scenario: warmup failed: %w", err)
	}

	candidates := make([]core.Transaction, 0, 2)
	for i := 0; i < 2; i++ {
		cmd := SignPayment(payer, receiver, core.Fee(1), core.Amount(1), nonce)
		candidates = append(candidates, core.Transaction{Kind: core.KindSignedCommand, SignedCommand: cmd})
		nonce = nonce.Succ()
	}

	outstanding := afterWarmup.Scan.WorkStatementsForNewDiff()
	work := make([]core.LedgerProofWithSokMessage, 0, len(outstanding))
	for _, stmt := range outstanding {
		w, err := core.CompleteWork(stmt, core.SokMessage{Fee: core.Fee(0), Prover: winner.Pub})
		if err != nil {
			return nil, Result{}, fmt.Errorf("complete work: %w", err)
		}
		work = append(work, w)
	}

	diff, err := core.CreateDiffWithLedger(afterWarmup.Scan, cc, afterWarmup.Ledger, candidates, work, winner.Pub, false)
	if err != nil {
		return nil, Result{}, fmt.Errorf("two partition scenario: packer failed: %w", err)
	}
	if diff.Second == nil {
		return nil, Result{}, fmt.Errorf("two partition scenario: packer did not split across two partitions")
	}

	next, applied, err := afterWarmup.Apply(ctx, diff, core.Slot(2), core.Hash{1})
	return next, Result{StagedLedger: next, Apply: applied, Err: err}, nil
}
