package scenario

import (
	"testing"

	"github.com/synnergy-chain/stagedledger/internal/testutil"
)

// TestLoadFixtureFromSandbox exercises LoadFixture against a file written
// through testutil.Sandbox rather than the checked-in testdata, covering the
// path a CLI user takes when pointing `stagedledger genesis --fixture` at an
// arbitrary file on disk.
func TestLoadFixtureFromSandbox(t *testing.T) {
	box, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("new sandbox: %v", err)
	}
	defer box.Cleanup()

	yaml := []byte(`accounts:
  - key_seed: sandbox-alice
    balance: 1000000000
    nonce: 0
  - key_seed: sandbox-bob
    balance: 500000000
    nonce: 0
`)
	if err := box.WriteFile("fixture.yaml", yaml, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	fixture, err := LoadFixture(box.Path("fixture.yaml"))
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	if len(fixture.Accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(fixture.Accounts))
	}

	seeded, err := BuildGenesisLedger(fixture, 10)
	if err != nil {
		t.Fatalf("build genesis ledger: %v", err)
	}
	if len(seeded.Ids) != 2 {
		t.Fatalf("expected 2 seeded accounts, got %d", len(seeded.Ids))
	}
}
