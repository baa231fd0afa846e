package core

// packer.go — greedy diff creation, spec.md §4.7: given a pool of pending
// transactions and the completed work the scan state is owed, pack as many
// transactions as fit into one or two partitions without exceeding the
// scan state's free capacity or ConstraintConstants' per-block limits,
// recursively trimming the candidate list until every constraint holds,
// selecting which completed work gets paid this round, and deciding how
// the block's coinbase is split between a plain payout and a fee-transfer
// rider when space runs tight.
//
// Grounded on the teacher's core/binary_tree_operations.go capacity-walk
// idiom (fill leaves left to right, stop at capacity), generalized into the
// two-partition, work-requiring packer spec.md describes.

import "fmt"

// DiscardReason explains why the packer dropped a candidate transaction or
// a piece of completed work rather than including it in the diff, matching
// spec.md §4.7 step 3's discard taxonomy.
type DiscardReason int

const (
	// DiscardNone marks a candidate the packer kept.
	DiscardNone DiscardReason = iota
	// DiscardExtraWork drops completed work supplied beyond what the scan
	// state currently requires.
	DiscardExtraWork
	// DiscardNoSpace drops a command because the partition ran out of
	// scan-tree base-job slots to hold it.
	DiscardNoSpace
	// DiscardInsufficientFees drops a unit of completed work whose fee
	// falls below the account-creation fee and whose prover has no
	// existing account to receive a below-threshold payout into.
	DiscardInsufficientFees
	// DiscardNoWork drops a command because including it would need more
	// completed work than the block has been supplied.
	DiscardNoWork
)

func (r DiscardReason) String() string {
	switch r {
	case DiscardExtraWork:
		return "extra_work"
	case DiscardNoSpace:
		return "no_space"
	case DiscardInsufficientFees:
		return "insufficient_fees"
	case DiscardNoWork:
		return "no_work"
	default:
		return "none"
	}
}

// CreateDiff greedily packs candidates (already fee-ordered by the caller)
// and completedWork into a Diff for scan, splitting across two partitions
// when the scan state's free base-job slots cannot hold every candidate.
// ledger is consulted to decide whether a below-account-creation-fee prover
// may still be paid (nil skips that check, treating every prover as
// already funded). coinbaseReceiver/supercharged determine the block
// reward attached to the first partition.
func CreateDiff(
	scan *ScanState,
	cc ConstraintConstants,
	candidates []Transaction,
	completedWork []LedgerProofWithSokMessage,
	coinbaseReceiver PublicKey,
	supercharged bool,
) (Diff, error) {
	return CreateDiffWithLedger(scan, cc, nil, candidates, completedWork, coinbaseReceiver, supercharged)
}

// CreateDiffWithLedger is CreateDiff with an explicit ledger reference for
// the account-creation fee threshold check of spec.md §4.7 step 2.
func CreateDiffWithLedger(
	scan *ScanState,
	cc ConstraintConstants,
	ledger Ledger,
	candidates []Transaction,
	completedWork []LedgerProofWithSokMessage,
	coinbaseReceiver PublicKey,
	supercharged bool,
) (Diff, error) {
	trimmed, _ := trimToConstraints(cc, candidates)

	required := len(scan.WorkStatementsForNewDiff())
	selectedWork, _ := selectCompletedWork(cc, ledger, completedWork, required)
	if err := CheckScanStatements(scan, selectedWork, required); err != nil {
		return Diff{}, err
	}

	feeTransfers := synthesizeFeeTransfers(selectedWork)

	// Reserve one base-job slot for the first partition's own coinbase
	// transaction (every first partition carries exactly one — diff.go's
	// CoinbaseOne/CoinbaseTwo) plus one per synthesized fee transfer: all
	// of these compete for scan-tree space just like any user command.
	freeForCommands := scan.FreeBaseSlots() - 1 - len(feeTransfers)
	if freeForCommands < 0 {
		freeForCommands = 0
	}
	firstCount := len(trimmed)
	secondCount := 0
	if firstCount > freeForCommands {
		secondCount = firstCount - freeForCommands
		firstCount = freeForCommands
	}
	first := trimmed[:firstCount]
	var second []Transaction
	if secondCount > 0 {
		second = trimmed[firstCount : firstCount+secondCount]
	}

	award := cc.CoinbaseAward(supercharged)
	coinbase := &Coinbase{Receiver: coinbaseReceiver, Amount: award}
	coinbaseVariant := CoinbaseOne

	// spec.md §4.7 step 4: when the first partition's remaining capacity
	// after commands and fee transfers can spare only a single slot for the
	// coinbase itself, fold a SNARK worker's rider directly into that one
	// coinbase transaction (CoinbaseTwo) instead of giving the rider its
	// own slot; with two or more slots free the rider would instead be its
	// own fee-transfer transaction, already accounted for above.
	availableForCoinbase := scan.FreeBaseSlots() - firstCount - len(feeTransfers)
	if availableForCoinbase <= 1 && len(feeTransfers) > 0 {
		rider := feeTransfers[len(feeTransfers)-1]
		feeTransfers = feeTransfers[:len(feeTransfers)-1]
		if rider.FeeTransfer != nil {
			coinbase.FeeTransfer = &CoinbaseFeeTransfer{
				Receiver: rider.FeeTransfer.Receiver1,
				Fee:      rider.FeeTransfer.Fee1,
			}
			coinbaseVariant = CoinbaseTwo
		}
	}

	// feeTransfers are not written into Commands (PreDiffOne.Commands holds
	// only SignedCommand/ZkAppCommand entries) — they are reconstructed and
	// applied directly by staged_ledger.go's Apply from CompletedWork, using
	// the same synthesizeFeeTransfers function. Only their slot count
	// matters here, already folded into freeForCommands/availableForCoinbase
	// above.

	diff := Diff{
		First: PreDiffOne{
			Commands:      first,
			CompletedWork: selectedWork,
			Coinbase:      coinbaseVariant,
			CoinbaseTxn:   coinbase,
		},
	}
	if len(second) > 0 {
		diff.Second = &PreDiffTwo{
			Commands: second,
			Coinbase: CoinbaseZero,
		}
	}

	if err := diff.Validate(); err != nil {
		return Diff{}, err
	}
	return diff, nil
}

// synthesizeFeeTransfers builds the standalone FeeTransfer transactions
// spec.md §4.6 step 3 requires: every piece of completed work whose
// SokMessage carries a non-zero fee must pay its prover, batched two
// provers to a transaction (FeeTransfer's Receiver1/Receiver2) so each
// consumes only one scan-tree base-job slot per pair rather than per
// prover.
func synthesizeFeeTransfers(work []LedgerProofWithSokMessage) []Transaction {
	var due []SokMessage
	for _, w := range work {
		if w.SokMessage.Fee > 0 {
			due = append(due, w.SokMessage)
		}
	}
	out := make([]Transaction, 0, (len(due)+1)/2)
	for i := 0; i < len(due); i += 2 {
		ft := &FeeTransfer{
			Receiver1: due[i].Prover,
			Fee1:      due[i].Fee,
			FeeToken1: DefaultTokenID,
		}
		if i+1 < len(due) {
			r2 := due[i+1].Prover
			ft.Receiver2 = &r2
			ft.Fee2 = due[i+1].Fee
			ft.FeeToken2 = DefaultTokenID
		}
		out = append(out, Transaction{Kind: KindFeeTransfer, FeeTransfer: ft})
	}
	return out
}

// selectCompletedWork implements spec.md §4.7 step 2: accept up to
// required pieces of work, dropping anything beyond that as
// DiscardExtraWork, and dropping any work whose fee is below the
// account-creation fee when its prover has no existing account (a
// below-threshold payout into a nonexistent account can never cover the
// account's own creation fee) as DiscardInsufficientFees.
func selectCompletedWork(cc ConstraintConstants, ledger Ledger, work []LedgerProofWithSokMessage, required int) ([]LedgerProofWithSokMessage, map[int]DiscardReason) {
	discards := make(map[int]DiscardReason)
	selected := make([]LedgerProofWithSokMessage, 0, len(work))
	for i, w := range work {
		if len(selected) >= required {
			discards[i] = DiscardExtraWork
			continue
		}
		if w.SokMessage.Fee < cc.AccountCreationFee && !proverHasAccount(ledger, w.SokMessage.Prover) {
			discards[i] = DiscardInsufficientFees
			continue
		}
		selected = append(selected, w)
	}
	return selected, discards
}

func proverHasAccount(ledger Ledger, pub PublicKey) bool {
	if ledger == nil {
		return true
	}
	_, ok := ledger.LocationOfAccount(AccountId{PublicKey: pub, TokenId: DefaultTokenID})
	return ok
}

// trimToConstraints recursively drops the lowest-priority (trailing)
// candidate whenever the remaining list violates a per-block constraint,
// returning the surviving list alongside the reason each dropped
// transaction was discarded for (spec.md §4.7 step 3's discard-reason
// state machine applied to space/zkApp-limit trimming; the work-driven
// reasons live in selectCompletedWork above).
func trimToConstraints(cc ConstraintConstants, candidates []Transaction) ([]Transaction, []DiscardReason) {
	max := cc.MaxTransactionsPerBlock()
	if len(candidates) > max {
		kept, reasons := trimToConstraints(cc, candidates[:len(candidates)-1])
		return kept, append(reasons, DiscardNoSpace)
	}
	zkapps := 0
	for _, t := range candidates {
		if t.Kind == KindZkAppCommand {
			zkapps++
		}
	}
	if zkapps > cc.ZkAppLimitPerBlock {
		for i := len(candidates) - 1; i >= 0; i-- {
			if candidates[i].Kind == KindZkAppCommand {
				without := append(append([]Transaction{}, candidates[:i]...), candidates[i+1:]...)
				kept, reasons := trimToConstraints(cc, without)
				return kept, append(reasons, DiscardNoSpace)
			}
		}
	}
	return candidates, nil
}

// checkConstraintsAndUpdate is the simple entry point trimToConstraints
// serves; kept for callers (and tests) that only need the surviving list.
func checkConstraintsAndUpdate(cc ConstraintConstants, candidates []Transaction) []Transaction {
	kept, _ := trimToConstraints(cc, candidates)
	return kept
}

// ValidateZkAppLimit is a standalone check usable once a diff has already
// been assembled (e.g. one replayed from the network rather than packed
// locally), returning ZkAppsExceedLimitError instead of silently trimming.
func ValidateZkAppLimit(cc ConstraintConstants, d Diff) error {
	found := d.ZkAppCommandCount()
	if found > cc.ZkAppLimitPerBlock {
		return &ZkAppsExceedLimitError{Limit: cc.ZkAppLimitPerBlock, Found: found}
	}
	return nil
}

// ValidateCommandCount is the equivalent hard check for total command
// count, returning a descriptive error rather than trimming.
func ValidateCommandCount(cc ConstraintConstants, d Diff) error {
	max := cc.MaxTransactionsPerBlock()
	if n := d.CommandCount(); n > max {
		return fmt.Errorf("diff: %d commands exceeds per-block maximum %d", n, max)
	}
	return nil
}
