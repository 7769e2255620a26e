package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clausewise/clausewise/pkg/catalog"
	"github.com/clausewise/clausewise/pkg/domain"
	"github.com/clausewise/clausewise/pkg/evidence"
	"github.com/clausewise/clausewise/pkg/llm"
	"github.com/clausewise/clausewise/pkg/orchestrator"
	"github.com/clausewise/clausewise/pkg/seal"
	"github.com/clausewise/clausewise/pkg/selection"
	"github.com/clausewise/clausewise/pkg/storage"
	"github.com/clausewise/clausewise/pkg/telemetry"
)

var (
	catalogPath string
	policyID    string
	dbPath      string
	reportPath  string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().StringVar(&catalogPath, "catalog", "", "Path to the requirement catalog YAML (required)")
	auditCmd.Flags().StringVar(&policyID, "policy-id", "", "Policy identifier (defaults to the document filename)")
	auditCmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path for run persistence (default: in-memory)")
	auditCmd.Flags().StringVarP(&reportPath, "out", "o", "", "Write the sealed report JSON to this path")
	_ = auditCmd.MarkFlagRequired("catalog")
}

var auditCmd = &cobra.Command{
	Use:   "audit <document.json>",
	Short: "Audit a privacy policy document against the requirement catalog",
	Long: "Runs the full evaluation pipeline over a pre-chunked policy document:\n" +
		"planner selection, per-requirement evidence retrieval, assessment,\n" +
		"verification, verdict aggregation and tamper-evident sealing.",
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

// documentChunk is one pre-extracted span of the policy document.
type documentChunk struct {
	Text  string `json:"text"`
	Pages []int  `json:"pages"`
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	docPath := args[0]

	cat, err := catalog.LoadFile(catalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	if policyID == "" {
		policyID = strings.TrimSuffix(filepath.Base(docPath), filepath.Ext(docPath))
	}

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName: "clausewise",
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Environment: cfg.Telemetry.Environment,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	store, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	var events *seal.EventLog
	if cfg.EventLogPath != "" {
		events, err = seal.OpenEventLog(cfg.EventLogPath)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		defer events.Close()
	}

	policy, err := selection.NewPolicy(ctx, cfg.SelectionPolicy, logger)
	if err != nil {
		return fmt.Errorf("compile selection policy: %w", err)
	}

	gen := llm.NewHTTPGenerator(llm.ClientConfig{
		BaseURL:     cfg.Model.BaseURL,
		Model:       cfg.Model.Name,
		Temperature: cfg.Model.Temperature,
		Timeout:     cfg.Model.Timeout,
		Retry:       llm.RetryConfig{MaxRetries: cfg.Model.MaxRetries},
		Logger:      logger,
	})

	svc, err := orchestrator.NewService(orchestrator.ServiceConfig{
		Catalog:   cat,
		Generator: gen,
		Store:     store,
		IndexFor: func(ctx context.Context, _ string) (evidence.Index, error) {
			return indexDocument(ctx, docPath)
		},
		Config:    cfg,
		Selection: policy,
		Metrics:   telemetry.NewMetrics(),
		Events:    events,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	run, err := svc.Evaluate(ctx, policyID, cat.Framework().ID)
	if err != nil {
		if run != nil && run.State == domain.StateFailed {
			fmt.Fprintf(os.Stderr, "FAILED: %s\n", run.FailureReason)
			os.Exit(1)
		}
		return err
	}

	printSummary(run)
	if reportPath != "" {
		if err := writeReport(reportPath, run); err != nil {
			return err
		}
		fmt.Printf("report written to %s\n", reportPath)
	}
	return nil
}

func openStore(path string) (storage.AuditStore, error) {
	if path == "" {
		return storage.NewMemoryStore(), nil
	}
	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return store, nil
}

// indexDocument loads a pre-chunked document JSON file into a fresh in-memory
// evidence index.
func indexDocument(ctx context.Context, path string) (evidence.Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	var chunks []documentChunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %s contains no chunks", path)
	}

	index := evidence.NewMemoryIndex(nil)
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		if err := index.Add(ctx, c.Text, c.Pages); err != nil {
			return nil, fmt.Errorf("index chunk: %w", err)
		}
	}
	return index, nil
}

func printSummary(run *domain.AuditRun) {
	fmt.Printf("verdict: %s\n", run.Verdict)
	fmt.Printf("fingerprint: %s\n", run.Fingerprint)
	for _, a := range run.Assessments {
		marker := " "
		if a.Downgraded {
			marker = "v"
		}
		fmt.Printf("%s %-14s %-13s %.2f  %s\n", marker, a.RequirementID, a.Status, a.Confidence, truncate(a.Reasoning, 80))
	}
}

func writeReport(path string, run *domain.AuditRun) error {
	out, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, append(out, '\n'), 0o600); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
