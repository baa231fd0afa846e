package core

// verifier.go — the Verifier boundary of spec.md §4 ADD: the staged ledger
// never checks a SNARK proof itself, it hands the statement and its
// SokMessage to a Verifier and trusts the boolean it gets back. Grounded
// on the teacher's core/zkp_node.go (an external-process proof checker
// reached over a thin client interface), generalized from "one node, one
// RPC call" into an interface two concrete adapters implement: an in-memory
// MockVerifier for tests/scenarios, and an HTTP client (verifier_http.go;
// the server side is cmd/verifierserver).
//
// Uses golang.org/x/crypto/blake2b for the SokMessage digest (matching the
// teacher's pack-wide preference for vetted x/crypto primitives over
// hand-rolled hashing), hashicorp/golang-lru/v2 to cache verified digests
// so a resubmitted proof short-circuits, and google/uuid to tag each
// verification request with a correlation id for log correlation.

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

// Verifier checks a batch of completed work before a diff is allowed to
// apply. Implementations may be local (MockVerifier, for scenario tests
// that never construct real proofs) or remote (HTTPVerifier, talking to a
// verifier service).
type Verifier interface {
	VerifyCompletedWork(ctx context.Context, works []LedgerProofWithSokMessage) error
}

// SokDigest returns the blake2b-256 digest binding a SokMessage to the
// statement it completes, the value a verifier actually signs off on.
func SokDigest(stmt Statement, msg SokMessage) (Hash, error) {
	return SokDigestFromStatementHash(stmt.Hash(), msg)
}

// SokDigestFromStatementHash is SokDigest for callers that only have the
// statement's hash, not the statement itself — cmd/verifierserver decodes
// work off the wire in exactly that shape (verifier_http.go's wire format
// round-trips the hash alone).
func SokDigestFromStatementHash(stmtHash Hash, msg SokMessage) (Hash, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return Hash{}, fmt.Errorf("sok digest: %w", err)
	}
	h.Write(stmtHash[:])
	h.Write(msg.Prover[:])
	var feeBuf [8]byte
	putUint64(feeBuf[:], uint64(msg.Fee))
	h.Write(feeBuf[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out, nil
}

// CompleteWork binds stmt to msg by computing and embedding the SokMessage
// digest a prover commits to when it hands back completed work — the
// producer side of the check VerifyCompletedWork performs on enqueue: the
// engine re-derives (prover, fee) from the bundle, and a mismatch between
// what was claimed and what's recomputed rejects the diff.
func CompleteWork(stmt Statement, msg SokMessage) (LedgerProofWithSokMessage, error) {
	digest, err := SokDigest(stmt, msg)
	if err != nil {
		return LedgerProofWithSokMessage{}, err
	}
	stmt.SokDigest = digest
	return LedgerProofWithSokMessage{Statement: stmt, SokMessage: msg}, nil
}

// MockVerifier checks no proof: it accepts any work whose recomputed
// SokMessage digest matches the digest its statement claims, matching the
// teacher's in-process zkp_node behavior for a development network where
// no real proving backend is wired up. Every accepted digest is cached so
// repeated submissions of the same work are a no-op rather than
// re-"verified" work.
type MockVerifier struct {
	mu    sync.Mutex
	cache *lru.Cache[Hash, bool]
}

// NewMockVerifier constructs a MockVerifier with a bounded LRU cache of
// verified digests.
func NewMockVerifier(cacheSize int) *MockVerifier {
	cache, err := lru.New[Hash, bool](cacheSize)
	if err != nil {
		// Only returns an error for a non-positive size; fall back to a
		// minimal cache rather than panicking a verifier construction path.
		cache, _ = lru.New[Hash, bool](1)
	}
	return &MockVerifier{cache: cache}
}

func (v *MockVerifier) VerifyCompletedWork(ctx context.Context, works []LedgerProofWithSokMessage) error {
	reqId := uuid.New()
	log := logrus.WithField("request_id", reqId.String())
	var bad []string
	for _, w := range works {
		digest, err := SokDigest(w.Statement, w.SokMessage)
		if err != nil {
			bad = append(bad, err.Error())
			continue
		}
		if digest != w.Statement.SokDigest {
			bad = append(bad, fmt.Sprintf("sok digest mismatch for statement %s: recomputed %s, claimed %s",
				w.Statement.Hash().Hex(), digest.Hex(), w.Statement.SokDigest.Hex()))
			continue
		}
		v.mu.Lock()
		if seen, ok := v.cache.Get(digest); ok && seen {
			v.mu.Unlock()
			continue
		}
		v.cache.Add(digest, true)
		v.mu.Unlock()
	}
	if len(bad) > 0 {
		log.WithField("invalid_count", len(bad)).Warn("verifier: rejected completed work")
		return &InvalidProofsError{Reasons: bad}
	}
	log.WithField("verified_count", len(works)).Debug("verifier: accepted completed work")
	return nil
}

// VerifyDigests is VerifyCompletedWork for a caller that only has each
// work's statement hash, not the statement itself — the shape
// cmd/verifierserver receives off the wire. Unlike VerifyCompletedWork, the
// wire format carries no separately-claimed digest to compare the
// recomputed one against, so the recomputed digest is authoritative here.
func (v *MockVerifier) VerifyDigests(ctx context.Context, hashes []Hash, msgs []SokMessage) error {
	reqId := uuid.New()
	log := logrus.WithField("request_id", reqId.String())
	if len(hashes) != len(msgs) {
		return &InvalidProofsError{Reasons: []string{"mismatched statement hash / sok message counts"}}
	}
	var bad []string
	for i, h := range hashes {
		digest, err := SokDigestFromStatementHash(h, msgs[i])
		if err != nil {
			bad = append(bad, err.Error())
			continue
		}
		v.mu.Lock()
		if seen, ok := v.cache.Get(digest); ok && seen {
			v.mu.Unlock()
			continue
		}
		v.cache.Add(digest, true)
		v.mu.Unlock()
	}
	if len(bad) > 0 {
		log.WithField("invalid_count", len(bad)).Warn("verifier: rejected completed work")
		return &InvalidProofsError{Reasons: bad}
	}
	log.WithField("verified_count", len(hashes)).Debug("verifier: accepted completed work")
	return nil
}
