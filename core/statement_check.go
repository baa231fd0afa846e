package core

// statement_check.go — spec.md §4.8's scan_statement check. Two distinct
// concerns live here: CheckScanStatements is the cheap §4.6-step pre-check
// (does a diff's supplied work match outstanding jobs, and is there enough
// of it) run before paying for a verifier round trip; VerifyScanStatement
// is the real §4.8 reconstruction check — replay every base job against
// its sparse-ledger witness, fold the results upward through
// MergeStatements exactly as the scan tree itself does, and compare the
// independently-derived top statement against what the tree claims.
//
// A witness only authenticates the accounts a single transaction touched,
// so replay can only re-derive a base job's ledger-root transition and fee
// excess — not its pending-coinbase stack, local-state hash, sok digest,
// or supply increase, which the tree's own bookkeeping (not the witness)
// is the source of truth for. A Partial job — one recorded without a
// witness, e.g. because the account it paid into did not exist yet when
// the witness boundary was fixed — is trusted as stored rather than
// replayed.
//
// Grounded on the teacher's core/ledger.go block-height recompute-then-
// compare idiom (derive the expected value independently, diff it against
// what was claimed), generalized from one flat comparison into the scan
// tree's bottom-up fold.

import (
	"context"
	"fmt"
)

// CheckScanStatements validates that works covers (a statement-equal
// superset of) the scan state's currently outstanding Todo jobs, up to the
// number the scan state is able to accept this round. It returns
// InsufficientWorkError if fewer statements were supplied than required, or
// a plain error identifying the first unmatched statement.
func CheckScanStatements(scan *ScanState, works []LedgerProofWithSokMessage, required int) error {
	if len(works) < required {
		return &InsufficientWorkError{Required: required, Supplied: len(works)}
	}

	outstanding := make(map[Hash]bool)
	for _, stmt := range scan.WorkStatementsForNewDiff() {
		outstanding[stmt.Hash()] = true
	}

	matched := 0
	for _, w := range works {
		h := w.Statement.Hash()
		if outstanding[h] {
			matched++
			delete(outstanding, h)
			continue
		}
		return fmt.Errorf("scan statement check: work for statement %s does not match any outstanding job", h.Hex())
	}
	if matched < required {
		return &InsufficientWorkError{Required: required, Supplied: matched}
	}
	return nil
}

// VerifyScanStatement reconstructs an expected top statement for scan by
// replaying every base job's witnessed transaction and folding the results
// upward through MergeStatements, then runs a final sanity check that every
// Done job's recorded proof still passes verifier. It returns the
// independently-derived top statement, or an error identifying the first
// job whose recorded statement does not match what replay produces.
//
// This is the boot-from-genesis / scan-state-reconstruction check: a node
// that only trusts a witness-bearing scan tree (rather than the staged
// ledger that built it) uses this to confirm the tree's claims are
// consistent with the transactions and witnesses it actually carries.
func VerifyScanStatement(ctx context.Context, scan *ScanState, cc ConstraintConstants, verifier Verifier) (*Statement, error) {
	var top *Statement
	err := scan.FoldChronologicalUntilErr(func(tw TransactionWithWitness) error {
		expected, err := replayBaseJob(cc, tw)
		if err != nil {
			return fmt.Errorf("verify scan statement: replay failed for transaction: %w", err)
		}
		if expected.Hash() != tw.Statement.Hash() {
			return fmt.Errorf("verify scan statement: replayed statement %s does not match recorded statement %s",
				expected.Hash().Hex(), tw.Statement.Hash().Hex())
		}
		if top == nil {
			merged := tw.Statement
			top = &merged
			return nil
		}
		merged, err := MergeStatements(*top, tw.Statement)
		if err != nil {
			return fmt.Errorf("verify scan statement: fold failed: %w", err)
		}
		top = &merged
		return nil
	})
	if err != nil {
		return nil, err
	}

	if proofs := scan.DoneProofs(); len(proofs) > 0 {
		if err := verifier.VerifyCompletedWork(ctx, proofs); err != nil {
			return nil, fmt.Errorf("verify scan statement: recorded proofs failed re-verification: %w", err)
		}
	}
	return top, nil
}

// replayBaseJob independently re-derives a base job's ledger-root
// transition and fee excess by applying its transaction against a fresh
// child of its own witness, and splices the result into a copy of the
// job's recorded statement so only the replayable fields are actually
// checked by the caller's Hash comparison — the pending-coinbase stack,
// local-state hash, sok digest, and supply increase are carried over
// unchanged from what was stored, since nothing in a single transaction's
// witness can independently attest to them.
//
// A job recorded without a witness (tw.Witness == nil — a Partial job) is
// not replayable at all; its stored statement is returned unchanged.
func replayBaseJob(cc ConstraintConstants, tw TransactionWithWitness) (Statement, error) {
	if tw.Witness == nil {
		return tw.Statement, nil
	}

	mask := tw.Witness.MakeChild()
	sourceRoot := mask.MerkleRoot()

	pa, err := ApplyFirstPass(mask, cc, tw.Transaction, 0)
	if err != nil {
		return Statement{}, err
	}
	firstPassRoot := mask.MerkleRoot()
	ta, err := ApplySecondPass(mask, cc, pa)
	if err != nil {
		return Statement{}, err
	}
	secondPassRoot := mask.MerkleRoot()

	expected := tw.Statement
	expected.Source.FirstPassLedger = sourceRoot
	expected.Source.SecondPassLedger = sourceRoot
	expected.Target.FirstPassLedger = firstPassRoot
	expected.Target.SecondPassLedger = secondPassRoot
	expected.ConnectingLedgerLeft = sourceRoot
	expected.ConnectingLedgerRight = firstPassRoot
	expected.FeeExcess = ta.FeeExcess
	return expected, nil
}
