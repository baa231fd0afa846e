package scenario

// ledgerutil.go — small lookup helpers scenario harnesses use against any
// core.Ledger (persistent root or mask), since a scenario only ever reads
// accounts it is certain it seeded.

import (
	"fmt"

	"github.com/synnergy-chain/stagedledger/core"
)

func accountOf(l core.Ledger, id core.AccountId) (core.Account, bool) {
	loc, ok := l.LocationOfAccount(id)
	if !ok {
		return core.Account{}, false
	}
	return l.GetAccount(loc)
}

func mustAccount(l core.Ledger, id core.AccountId) core.Account {
	acc, ok := accountOf(l, id)
	if !ok {
		panic(fmt.Sprintf("scenario: account %s not seeded", id))
	}
	return acc
}

// seedTimedAccount applies a fresh account with the given vesting schedule
// directly to root, returning its id.
func seedTimedAccount(root *core.PersistentLedger, kp KeyPair, timing core.TimingInfo, balance core.Balance) core.AccountId {
	id := core.AccountId{PublicKey: kp.Pub, TokenId: core.DefaultTokenID}
	acc := core.NewAccount(id)
	acc.Balance = balance
	acc.Timing = timing
	if _, err := root.ApplyAccount(acc); err != nil {
		panic(fmt.Sprintf("scenario: seed timed account: %v", err))
	}
	return id
}
