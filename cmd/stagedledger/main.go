// Command stagedledger is the node-side entry point for exercising the
// staged ledger: loading a genesis fixture, packing and applying diffs,
// inspecting scan-state/pending-coinbase status, and replaying the named
// scenarios of spec.md §8 for smoke-testing a build.
//
// Grounded on the teacher's cmd/synnergy cobra-root-with-subcommand-groups
// layout, generalized from mock testnet/token commands to the staged
// ledger's real operations, and on its config.LoadFromEnv/godotenv
// bootstrap convention.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/synnergy-chain/stagedledger/core"
	"github.com/synnergy-chain/stagedledger/pkg/config"
	"github.com/synnergy-chain/stagedledger/scenario"
)

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var env string
	rootCmd := &cobra.Command{
		Use:   "stagedledger",
		Short: "inspect and drive a staged-ledger core",
	}
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "config overlay to merge (e.g. devnet)")

	rootCmd.AddCommand(genesisCmd(log, &env))
	rootCmd.AddCommand(scanStateCmd(log, &env))
	rootCmd.AddCommand(scenarioCmd(log, &env))

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("stagedledger: command failed")
		os.Exit(1)
	}
}

func loadConfig(env string, log *logrus.Logger) (*config.Config, error) {
	cfg, err := config.Load(env)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"ledger_depth":              cfg.Ledger.LedgerDepth,
		"transaction_capacity_log2": cfg.Ledger.TransactionCapacityLog2,
		"verifier_mode":             cfg.Verifier.Mode,
	}).Debug("stagedledger: configuration loaded")
	return cfg, nil
}

func genesisCmd(log *logrus.Logger, env *string) *cobra.Command {
	var fixturePath string
	cmd := &cobra.Command{
		Use:   "genesis",
		Short: "build a genesis ledger from a fixture and print its Merkle root",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*env, log)
			if err != nil {
				return err
			}
			fixture, err := scenario.LoadFixture(fixturePath)
			if err != nil {
				return fmt.Errorf("load fixture: %w", err)
			}
			seeded, err := scenario.BuildGenesisLedger(fixture, cfg.Ledger.LedgerDepth)
			if err != nil {
				return fmt.Errorf("build genesis ledger: %w", err)
			}
			fmt.Printf("accounts: %d\n", len(seeded.Ids))
			fmt.Printf("merkle_root: %s\n", seeded.Ledger.MerkleRoot().Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&fixturePath, "fixture", "scenario/testdata/five_accounts.yaml", "path to a YAML account fixture")
	return cmd
}

func scanStateCmd(log *logrus.Logger, env *string) *cobra.Command {
	cmd := &cobra.Command{Use: "scan-state", Short: "inspect a fresh scan state's shape for the active config"}
	status := &cobra.Command{
		Use:   "capacity",
		Short: "print the scan tree's leaf capacity and per-block transaction limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*env, log)
			if err != nil {
				return err
			}
			scan := core.NewScanState(cfg.Ledger.TransactionCapacityLog2)
			fmt.Printf("max_transactions_per_block: %d\n", cfg.Ledger.MaxTransactionsPerBlock())
			fmt.Printf("scan_tree_free_base_slots: %d\n", scan.FreeBaseSlots())
			return nil
		},
	}
	cmd.AddCommand(status)
	return cmd
}

func scenarioCmd(log *logrus.Logger, env *string) *cobra.Command {
	cmd := &cobra.Command{Use: "scenario", Short: "run one of the named staged-ledger scenarios"}
	run := &cobra.Command{
		Use:   "run [name]",
		Short: "run a scenario by name: single-payment, max-throughput, nonzero-fee-excess, insufficient-work, supercharged-coinbase, two-partition-boundary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*env, log)
			if err != nil {
				return err
			}
			ctx := context.Background()
			winner := scenario.DeterministicKey("stagedledger-cli-winner")
			return runScenario(ctx, log, cfg.Ledger, winner, args[0])
		},
	}
	cmd.AddCommand(run)
	return cmd
}

func runScenario(ctx context.Context, log *logrus.Logger, cc core.ConstraintConstants, winner scenario.KeyPair, name string) error {
	switch name {
	case "single-payment":
		_, result := scenario.SinglePayment(ctx, cc, winner)
		return reportResult(log, "single-payment", result)
	case "max-throughput":
		_, results, err := scenario.MaxThroughputFillAndEmit(ctx, cc, winner)
		if err != nil {
			return err
		}
		for i, r := range results {
			if err := reportResult(log, fmt.Sprintf("max-throughput[%d]", i), r); err != nil {
				return err
			}
		}
		return nil
	case "nonzero-fee-excess":
		_, result := scenario.NonZeroFeeExcessRejection(ctx, cc, winner)
		if result.Err == nil {
			return fmt.Errorf("nonzero-fee-excess: expected rejection, got none")
		}
		log.WithError(result.Err).Info("nonzero-fee-excess: rejected as expected")
		return nil
	case "insufficient-work":
		_, result, err := scenario.InsufficientWork(ctx, cc, winner)
		if err != nil {
			return err
		}
		if result.Err == nil {
			return fmt.Errorf("insufficient-work: expected rejection, got none")
		}
		log.WithError(result.Err).Info("insufficient-work: rejected as expected")
		return nil
	case "supercharged-coinbase":
		untimed, timed, err := scenario.SuperchargedCoinbase(ctx, cc, core.Slot(1))
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"untimed_award": untimed, "timed_award": timed}).Info("supercharged-coinbase: complete")
		return nil
	case "two-partition-boundary":
		_, result, err := scenario.TwoPartitionBoundary(ctx, cc, winner)
		if err != nil {
			return err
		}
		return reportResult(log, "two-partition-boundary", result)
	default:
		return fmt.Errorf("unknown scenario %q", name)
	}
}

func reportResult(log *logrus.Logger, name string, result scenario.Result) error {
	if result.Err != nil {
		return fmt.Errorf("%s: %w", name, result.Err)
	}
	fields := logrus.Fields{"name": name}
	if result.Apply != nil {
		fields["applied"] = len(result.Apply.Transactions)
		fields["hash"] = result.Apply.Hash
		fields["emitted_proof"] = result.Apply.EmittedProof != nil
	}
	log.WithFields(fields).Info("scenario: applied")
	return nil
}
