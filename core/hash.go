package core

// hash.go — the staged-ledger hash of spec.md §6: a sha256 chain over the
// three things that fully determine a staged ledger's externally-visible
// state — the account tree root, the scan state's aux hash, and the
// pending-coinbase tree's aux hash — so two staged ledgers with identical
// hashes are guaranteed to behave identically from here on.

import (
	"crypto/sha256"
	"encoding/binary"
)

// StagedLedgerHash is the triple-hash identity of a staged ledger.
type StagedLedgerHash struct {
	LedgerHash          Hash
	ScanStateAuxHash     Hash
	PendingCoinbaseAux   Hash
}

// NonSnark folds the three components into the single 32-byte value a
// block header actually carries (spec.md §6 "non_snark" field).
func (h StagedLedgerHash) NonSnark() Hash {
	return combineHash(combineHash(h.LedgerHash, h.ScanStateAuxHash), h.PendingCoinbaseAux)
}

// ScanStateAuxHash digests every non-empty job in the scan state, in tree
// order, followed by the aux hash of a retired tree still awaiting proof and
// the stashed incomplete zkApp updates, so two scan states with the same
// pending work (even mid-proof) hash identically.
func ScanStateAuxHash(s *ScanState) Hash {
	h := sha256.New()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := 1; i < len(s.jobs); i++ {
		job := s.jobs[i]
		if job.Status == JobEmpty {
			continue
		}
		var idxBuf [8]byte
		binary.BigEndian.PutUint64(idxBuf[:], uint64(i))
		h.Write(idxBuf[:])
		h.Write([]byte{byte(job.Status)})
		if stmt, ok := statementOf(job); ok {
			sh := stmt.Hash()
			h.Write(sh[:])
		}
	}
	if s.previous != nil {
		ph := ScanStateAuxHash(s.previous)
		h.Write(ph[:])
	}
	for _, u := range s.previousIncompleteZkappUpdates {
		uh := hashAccountUpdate(u)
		h.Write(uh[:])
	}
	var out Hash
	sum := sha256.Sum256(h.Sum(nil))
	copy(out[:], sum[:])
	return out
}

// PendingCoinbaseAuxHash digests every stack in the pending-coinbase tree,
// in position order.
func PendingCoinbaseAuxHash(t *PendingCoinbaseTree) Hash {
	h := sha256.New()
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.stacks {
		h.Write(s.DataHash[:])
		h.Write(s.InitStateHash[:])
		h.Write(s.CurrStateHash[:])
	}
	var out Hash
	sum := sha256.Sum256(h.Sum(nil))
	copy(out[:], sum[:])
	return out
}

// ComputeStagedLedgerHash assembles the full StagedLedgerHash for a given
// ledger/scan-state/pending-coinbase triple.
func ComputeStagedLedgerHash(ledger Ledger, scan *ScanState, pc *PendingCoinbaseTree) StagedLedgerHash {
	return StagedLedgerHash{
		LedgerHash:        ledger.MerkleRoot(),
		ScanStateAuxHash:  ScanStateAuxHash(scan),
		PendingCoinbaseAux: PendingCoinbaseAuxHash(pc),
	}
}
