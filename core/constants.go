package core

// constants.go — ConstraintConstants and ForkConstants, the network-wide
// parameters spec.md §6 requires every staged-ledger instance to be
// constructed with. Grounded on the teacher's pkg/config.Config (a single
// struct loaded once via viper and threaded explicitly rather than read
// from package globals).

// ConstraintConstants bounds the shapes a staged ledger, scan state and
// pending-coinbase tree are allowed to take. Every StagedLedger in a given
// deployment must be constructed with the same values, or diffs produced by
// one node will not apply on another.
type ConstraintConstants struct {
	// SubWindowsPerWindow is the number of consensus sub-windows the scan
	// state amortizes SNARK work production over (spec.md §4.4 work delay).
	SubWindowsPerWindow int `mapstructure:"sub_windows_per_window" yaml:"sub_windows_per_window"`

	// LedgerDepth is the account merkle tree depth; capacity is 2^LedgerDepth.
	LedgerDepth uint8 `mapstructure:"ledger_depth" yaml:"ledger_depth"`

	// WorkDelay is how many trees the scan state keeps partially filled
	// before it must start requiring proofs for the oldest one.
	WorkDelay int `mapstructure:"work_delay" yaml:"work_delay"`

	// BlockWindowDurationMs is the target time between blocks, used only to
	// size the scan state's throughput (no consensus timing logic lives
	// here).
	BlockWindowDurationMs int `mapstructure:"block_window_duration_ms" yaml:"block_window_duration_ms"`

	// TransactionCapacityLog2 sets max transactions per block to
	// 2^TransactionCapacityLog2 - 1.
	TransactionCapacityLog2 int `mapstructure:"transaction_capacity_log_2" yaml:"transaction_capacity_log_2"`

	// PendingCoinbaseDepth is the pending-coinbase tree's depth (capacity
	// 2^PendingCoinbaseDepth stacks).
	PendingCoinbaseDepth uint8 `mapstructure:"pending_coinbase_depth" yaml:"pending_coinbase_depth"`

	// CoinbaseAmount is the base block reward before any supercharge
	// multiplier is applied.
	CoinbaseAmount Amount `mapstructure:"coinbase_amount" yaml:"coinbase_amount"`

	// SuperchargedCoinbaseFactor multiplies CoinbaseAmount when the block
	// producer qualifies (spec.md §8 supercharged-coinbase scenario).
	SuperchargedCoinbaseFactor int `mapstructure:"supercharged_coinbase_factor" yaml:"supercharged_coinbase_factor"`

	// AccountCreationFee is deducted from a payment's amount when it
	// creates a new receiver account.
	AccountCreationFee Fee `mapstructure:"account_creation_fee" yaml:"account_creation_fee"`

	// ZkAppLimitPerBlock bounds how many zkApp transactions may appear in a
	// single diff (spec.md §7 ZkAppsExceedLimitError).
	ZkAppLimitPerBlock int `mapstructure:"zkapp_limit_per_block" yaml:"zkapp_limit_per_block"`

	// Fork, when non-nil, marks this chain as having forked from another at
	// the given state; new genesis ledgers carry it forward verbatim.
	Fork *ForkConstants `mapstructure:"fork" yaml:"fork,omitempty"`
}

// ForkConstants anchors a forked chain to the state it forked from.
type ForkConstants struct {
	PreviousStateHash  Hash   `mapstructure:"previous_state_hash" yaml:"previous_state_hash"`
	PreviousLength     Length `mapstructure:"previous_length" yaml:"previous_length"`
	PreviousGlobalSlot Slot   `mapstructure:"previous_global_slot" yaml:"previous_global_slot"`
}

// MaxTransactionsPerBlock returns 2^TransactionCapacityLog2 - 1, the
// maximum number of user-supplied transactions (excluding coinbase and fee
// transfers) a single diff may carry.
func (c ConstraintConstants) MaxTransactionsPerBlock() int {
	return (1 << uint(c.TransactionCapacityLog2)) - 1
}

// CoinbaseAward returns the coinbase amount for a block, applying the
// supercharge multiplier when supercharged is true.
func (c ConstraintConstants) CoinbaseAward(supercharged bool) Amount {
	if !supercharged || c.SuperchargedCoinbaseFactor <= 1 {
		return c.CoinbaseAmount
	}
	scaled, ok := CheckedScale(c.CoinbaseAmount, uint64(c.SuperchargedCoinbaseFactor))
	if !ok {
		return c.CoinbaseAmount
	}
	return scaled
}

// DefaultConstraintConstants returns the module's default constants, the
// same values cmd/config/default.yaml carries: a depth-20 ledger, 2^7 base
// jobs per scan tree and a depth-4 pending-coinbase tree.
func DefaultConstraintConstants() ConstraintConstants {
	return ConstraintConstants{
		SubWindowsPerWindow:        11,
		LedgerDepth:                20,
		WorkDelay:                  2,
		BlockWindowDurationMs:      180000,
		TransactionCapacityLog2:    7,
		PendingCoinbaseDepth:       4,
		CoinbaseAmount:             720_000_000_000,
		SuperchargedCoinbaseFactor: 2,
		AccountCreationFee:         1_000_000_000,
		ZkAppLimitPerBlock:         128,
	}
}
