package core

// diff.go — the wire-level block diff of spec.md §3/§4.6: the list of
// transactions and completed work a block producer attaches to a block,
// split into one or two pre-diffs when the scan state's current tree
// cannot hold every transaction.
//
// Grounded on the teacher's core/transaction_hash.go canonical-encoding
// idiom, generalized to a multi-field struct and routed through
// go-ethereum's rlp encoder (serialize.go) rather than a bespoke byte
// writer, matching spec.md §6's "canonical binary representation".

import "fmt"

// CoinbaseVariant describes how a pre-diff pays out its share of the block
// reward: zero coinbases (the second pre-diff of a two-pre-diff block may
// carry none), one plain coinbase, or one coinbase split with a fee
// transfer rider.
type CoinbaseVariant int

const (
	CoinbaseZero CoinbaseVariant = iota
	CoinbaseOne
	CoinbaseTwo
)

// PreDiffOne is the first (and, for a single-pre-diff block, only)
// partition of a Diff: it must carry a coinbase.
type PreDiffOne struct {
	Commands     []Transaction // SignedCommand or ZkAppCommand entries only
	CompletedWork []LedgerProofWithSokMessage
	Coinbase     CoinbaseVariant
	CoinbaseTxn  *Coinbase
	InternalCommandStatuses []TransactionStatus
}

// PreDiffTwo is the optional second partition; its coinbase variant is
// constrained to Zero or One (never Two — a two-coinbase second partition
// is a structural error, spec.md §7 CoinbaseErrorTwoCoinbaseInPreDiffOne
// despite the name referring to the first partition's invariant).
type PreDiffTwo struct {
	Commands     []Transaction
	CompletedWork []LedgerProofWithSokMessage
	Coinbase     CoinbaseVariant
	CoinbaseTxn  *Coinbase
	InternalCommandStatuses []TransactionStatus
}

// Diff is the full set of changes a block proposes to apply to the staged
// ledger: always a PreDiffOne, optionally followed by a PreDiffTwo when the
// scan state had to split the window (spec.md §4.7 two-partition packer).
type Diff struct {
	First  PreDiffOne
	Second *PreDiffTwo
}

// Validate performs the structural checks spec.md §7 requires before a
// diff is handed to the applier: the first partition must carry exactly
// one coinbase (CoinbaseOne or CoinbaseTwo), and a second partition, if
// present, must not itself claim CoinbaseTwo.
func (d Diff) Validate() error {
	if d.First.Coinbase == CoinbaseZero {
		return &PreDiffError{Coinbase: CoinbaseErrorSpaceUnavailable}
	}
	if d.Second != nil && d.Second.Coinbase == CoinbaseTwo {
		return &PreDiffError{Coinbase: CoinbaseErrorTwoCoinbaseInPreDiffOne}
	}
	if d.First.Coinbase == CoinbaseOne && d.First.CoinbaseTxn == nil {
		return &PreDiffError{Coinbase: CoinbaseErrorInvalidAmount}
	}
	if d.First.Coinbase == CoinbaseTwo && d.First.CoinbaseTxn == nil {
		return &PreDiffError{Coinbase: CoinbaseErrorInvalidAmount}
	}
	return nil
}

// AllTransactions returns every transaction the diff proposes to apply, in
// application order: first partition's commands, its coinbase and implicit
// fee transfers, then the second partition's, if present. Fee-transfer
// synthesis from CompletedWork happens in staged_ledger.go; this only
// orders what the diff explicitly carries.
func (d Diff) AllTransactions() []Transaction {
	var out []Transaction
	appendPartition := func(commands []Transaction, coinbase *Coinbase) {
		out = append(out, commands...)
		if coinbase != nil {
			out = append(out, Transaction{Kind: KindCoinbase, Coinbase: coinbase})
		}
	}
	appendPartition(d.First.Commands, d.First.CoinbaseTxn)
	if d.Second != nil {
		appendPartition(d.Second.Commands, d.Second.CoinbaseTxn)
	}
	return out
}

// AllCompletedWork returns the completed work attached across both
// partitions, in order.
func (d Diff) AllCompletedWork() []LedgerProofWithSokMessage {
	out := append([]LedgerProofWithSokMessage{}, d.First.CompletedWork...)
	if d.Second != nil {
		out = append(out, d.Second.CompletedWork...)
	}
	return out
}

// CommandCount returns the total number of user-supplied commands (not
// counting coinbase or internal fee transfers) across both partitions,
// checked against ConstraintConstants.MaxTransactionsPerBlock by
// packer.go.
func (d Diff) CommandCount() int {
	n := len(d.First.Commands)
	if d.Second != nil {
		n += len(d.Second.Commands)
	}
	return n
}

// ZkAppCommandCount returns how many of the diff's commands are zkApp
// commands, checked against ConstraintConstants.ZkAppLimitPerBlock.
func (d Diff) ZkAppCommandCount() int {
	n := 0
	for _, t := range d.AllTransactions() {
		if t.Kind == KindZkAppCommand {
			n++
		}
	}
	return n
}

func validateCoinbaseVariant(v CoinbaseVariant) error {
	switch v {
	case CoinbaseZero, CoinbaseOne, CoinbaseTwo:
		return nil
	default:
		return fmt.Errorf("diff: unknown coinbase variant %d", v)
	}
}
