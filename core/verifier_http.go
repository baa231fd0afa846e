package core

// verifier_http.go — HTTPVerifier, the network-backed Verifier
// implementation that talks to a standalone verifier process over HTTP
// (the server side lives in cmd/verifierserver, built on chi). Grounded on
// the teacher's declared-but-unused go-chi/chi/v5 dependency: this pair is
// its first real exercise in the tree, replacing the deleted gorilla/mux
// wallet API as the module's HTTP surface.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
)

// HTTPVerifier submits completed work to a remote verifier service and
// treats a non-2xx response, a transport error, or a context cancellation
// as a CouldntReachVerifierError rather than an InvalidProofsError, so a
// caller can tell an unreachable verifier apart from rejected work.
type HTTPVerifier struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPVerifier constructs an HTTPVerifier with a bounded-timeout client,
// matching the teacher's convention of never using http.DefaultClient
// directly.
func NewHTTPVerifier(baseURL string) *HTTPVerifier {
	return &HTTPVerifier{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type verifyRequestWire struct {
	Works [][]byte `json:"works"`
}

type verifyResponseWire struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

func (v *HTTPVerifier) VerifyCompletedWork(ctx context.Context, works []LedgerProofWithSokMessage) error {
	if len(works) == 0 {
		return nil
	}
	req := verifyRequestWire{Works: make([][]byte, 0, len(works))}
	for _, w := range works {
		body, err := encodeLedgerProof(w)
		if err != nil {
			return &InvalidProofsError{Reasons: []string{err.Error()}}
		}
		req.Works = append(req.Works, body)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return &CouldntReachVerifierError{Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.BaseURL+"/verify", bytes.NewReader(payload))
	if err != nil {
		return &CouldntReachVerifierError{Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := v.Client.Do(httpReq)
	if err != nil {
		return &CouldntReachVerifierError{Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &CouldntReachVerifierError{Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return &CouldntReachVerifierError{Cause: fmt.Errorf("verifier service returned status %d: %s", resp.StatusCode, raw)}
	}

	var out verifyResponseWire
	if err := json.Unmarshal(raw, &out); err != nil {
		return &CouldntReachVerifierError{Cause: err}
	}
	if !out.Valid {
		return &InvalidProofsError{Reasons: out.Errors}
	}
	return nil
}

type rlpLedgerProof struct {
	StatementHash []byte
	Fee           uint64
	Prover        []byte
}

func encodeLedgerProof(w LedgerProofWithSokMessage) ([]byte, error) {
	h := w.Statement.Hash()
	wire := rlpLedgerProof{StatementHash: h[:], Fee: uint64(w.SokMessage.Fee), Prover: w.SokMessage.Prover[:]}
	body, err := rlp.EncodeToBytes(wire)
	if err != nil {
		return nil, fmt.Errorf("encode ledger proof: %w", err)
	}
	return append([]byte{WireVersion}, body...), nil
}

// DecodeLedgerProofStatementHash extracts the statement hash and SokMessage
// from an encoded ledger proof, used by cmd/verifierserver to check what it
// is being asked to verify without needing the full Statement type on the
// wire.
func DecodeLedgerProofStatementHash(data []byte) (Hash, SokMessage, error) {
	if len(data) == 0 || data[0] != WireVersion {
		return Hash{}, SokMessage{}, fmt.Errorf("decode ledger proof: unsupported wire version")
	}
	var wire rlpLedgerProof
	if err := rlp.DecodeBytes(data[1:], &wire); err != nil {
		return Hash{}, SokMessage{}, fmt.Errorf("decode ledger proof: %w", err)
	}
	var h Hash
	copy(h[:], wire.StatementHash)
	var msg SokMessage
	msg.Fee = Fee(wire.Fee)
	copy(msg.Prover[:], wire.Prover)
	return h, msg, nil
}
