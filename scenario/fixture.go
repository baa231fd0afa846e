package scenario

// fixture.go — YAML-seeded genesis ledgers for scenario runs. Grounded on
// the teacher's cmd/config loading convention (yaml.v3 + a small typed
// struct, no generic config framework) applied to account seed data
// instead of node configuration.

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/synnergy-chain/stagedledger/core"
)

// AccountSeed is one genesis account: a human-readable key seed (run
// through DeterministicKey), starting balance and nonce, and optional
// vesting schedule for scenarios that need a timed account.
type AccountSeed struct {
	KeySeed string `yaml:"key_seed"`
	Balance uint64 `yaml:"balance"`
	Nonce   uint32 `yaml:"nonce"`
	Timed   bool   `yaml:"timed"`
	CliffSlot uint32 `yaml:"cliff_slot"`
	InitialMinimumBalance uint64 `yaml:"initial_minimum_balance"`
}

// Fixture is a named set of genesis accounts loaded from testdata.
type Fixture struct {
	Accounts []AccountSeed `yaml:"accounts"`
}

// LoadFixture reads and parses a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load fixture %s: %w", path, err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// Seeded is a built genesis ledger plus the key pairs and account ids in
// fixture order, so scenario code can refer to "account[0]" the way
// spec.md's scenario descriptions do.
type Seeded struct {
	Ledger *core.PersistentLedger
	Keys   []KeyPair
	Ids    []core.AccountId
}

// BuildGenesisLedger constructs a PersistentLedger of the given depth and
// applies one account per fixture entry, in order.
func BuildGenesisLedger(f *Fixture, depth uint8) (*Seeded, error) {
	ledger := core.NewPersistentLedger(depth)
	out := &Seeded{Ledger: ledger}
	for i, seed := range f.Accounts {
		kp := DeterministicKey(seed.KeySeed)
		id := core.AccountId{PublicKey: kp.Pub, TokenId: core.DefaultTokenID}
		acc := core.NewAccount(id)
		acc.Balance = core.Balance(seed.Balance)
		acc.Nonce = core.Nonce(seed.Nonce)
		if seed.Timed {
			acc.Timing = core.TimingInfo{
				Timed:                 true,
				InitialMinimumBalance: core.Balance(seed.InitialMinimumBalance),
				CliffTime:             core.Slot(seed.CliffSlot),
			}
		}
		if _, err := ledger.ApplyAccount(acc); err != nil {
			return nil, fmt.Errorf("seed account %d (%s): %w", i, seed.KeySeed, err)
		}
		out.Keys = append(out.Keys, kp)
		out.Ids = append(out.Ids, id)
	}
	return out, nil
}
