package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clausewise/clausewise/pkg/domain"
	"github.com/clausewise/clausewise/pkg/seal"
)

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.AddCommand(verifyReportCmd)
	verifyCmd.AddCommand(verifyLogCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Tamper-evidence checks",
	Long:  "Commands for verifying sealed audit reports and the hash-chained event log.",
}

var verifyReportCmd = &cobra.Command{
	Use:   "report <path>",
	Short: "Verify a sealed audit report",
	Long: "Recomputes every quote hash and the run fingerprint of a report JSON\n" +
		"and compares them against the sealed values. Exits 0 if intact,\n" +
		"1 if tampered.",
	Args: cobra.ExactArgs(1),
	RunE: runVerifyReport,
}

var verifyLogCmd = &cobra.Command{
	Use:   "log <path>",
	Short: "Verify hash chain integrity of a pipeline event log",
	Long: "Walks the JSONL event log and validates that every entry's prev_hash\n" +
		"matches the SHA-256 of the previous line. Exits 0 if valid, 1 if tampered.",
	Args: cobra.ExactArgs(1),
	RunE: runVerifyLog,
}

func runVerifyReport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}
	var run domain.AuditRun
	if err := json.Unmarshal(data, &run); err != nil {
		return fmt.Errorf("parse report: %w", err)
	}
	if !run.Frozen() {
		return fmt.Errorf("report is not sealed (state %s)", run.State)
	}
	if err := seal.Verify(&run); err != nil {
		fmt.Fprintf(os.Stderr, "TAMPERED: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK: %d assessments verified, fingerprint %s\n", len(run.Assessments), run.Fingerprint)
	return nil
}

func runVerifyLog(cmd *cobra.Command, args []string) error {
	result := seal.VerifyChain(args[0])
	if result.Valid {
		fmt.Printf("OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	os.Exit(1)
	return nil
}
