package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusDBPath string

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusDBPath, "db", "", "SQLite database path used by the audit (required)")
	_ = statusCmd.MarkFlagRequired("db")
}

var statusCmd = &cobra.Command{
	Use:   "status <policy-id>",
	Short: "Show the audit state for a policy",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := openStore(statusDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.LoadAuditRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("policy: %s\nstate: %s\n", run.PolicyID, run.State)
	if run.FailureReason != "" {
		fmt.Printf("failure: %s\n", run.FailureReason)
	}
	if run.Frozen() {
		fmt.Printf("verdict: %s\nfingerprint: %s\n", run.Verdict, run.Fingerprint)
	}
	return nil
}
