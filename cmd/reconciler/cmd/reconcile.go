package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"payment-reconciliation-service/cmd/reconciler/config"
	"payment-reconciliation-service/internal/engine"
	"payment-reconciliation-service/internal/store"
	"payment-reconciliation-service/pkg/errors"
)

var (
	reconcileSource string
	counterparty    string
	reconcileFrom   string
	reconcileTo     string
	workers         int
	outputFormat    string
	outputFile      string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Score one source's transactions against a counterparty source",
	Long: `Reconcile loads transactions for --source from the database and scores
each of them against candidates from --counterparty.

Examples:
  reconciler reconcile --source ledger --counterparty bank
  reconciler reconcile --source ledger --counterparty paystack \
    --from 2024-02-01 --to 2024-02-29 --output-format json --output-file run.json`,
	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVarP(&reconcileSource, "source", "s", "", "source whose transactions are scored (required)")
	reconcileCmd.Flags().StringVarP(&counterparty, "counterparty", "c", "", "source to search for counterparts (required)")
	reconcileCmd.Flags().StringVar(&reconcileFrom, "from", "", "only score transactions on or after this date (YYYY-MM-DD)")
	reconcileCmd.Flags().StringVar(&reconcileTo, "to", "", "only score transactions on or before this date (YYYY-MM-DD)")
	reconcileCmd.Flags().IntVarP(&workers, "workers", "w", 0, "worker count (default: number of CPUs)")
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")

	reconcileCmd.MarkFlagRequired("source")
	reconcileCmd.MarkFlagRequired("counterparty")
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	if reconcileSource == counterparty {
		return errors.ValidationError(errors.CodeInvalidData, "counterparty", counterparty, nil).
			WithSuggestion("reconciliation compares two different sources")
	}
	if outputFormat != "console" && outputFormat != "json" {
		return errors.ValidationError(errors.CodeInvalidData, "output-format", outputFormat, nil).
			WithSuggestion("use console or json")
	}
	for _, flag := range []string{reconcileFrom, reconcileTo} {
		if flag == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", flag); err != nil {
			return errors.ValidationError(errors.CodeInvalidDate, "from/to", flag, err)
		}
	}
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	st, err := store.NewSQLiteStore(viper.GetString("db"), nil)
	if err != nil {
		return err
	}
	defer st.Close()

	engineCfg, err := config.EngineConfig()
	if err != nil {
		return err
	}
	eng, err := engine.NewEngine(st, engineCfg, nil)
	if err != nil {
		return err
	}
	defer eng.Close()

	from, to := runWindow()
	txs, err := st.FindByTimeRange(reconcileSource, from, to)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No transactions found for source %q in the selected window\n", reconcileSource)
		return nil
	}

	result, err := engine.NewProcessor(eng, workers, nil).
		Run(cmd.Context(), txs, counterparty)
	if err != nil {
		return err
	}
	if err := st.SaveReconciliations(result.Records()); err != nil {
		return err
	}
	return writeRunResult(cmd, result)
}

// runWindow converts the --from/--to flags into a scan window; unbounded
// sides fall back to a generous fixed range.
func runWindow() (time.Time, time.Time) {
	from := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Now().UTC().AddDate(1, 0, 0)
	if reconcileFrom != "" {
		from, _ = time.Parse("2006-01-02", reconcileFrom)
	}
	if reconcileTo != "" {
		day, _ := time.Parse("2006-01-02", reconcileTo)
		to = day.Add(24*time.Hour - time.Second)
	}
	return from, to
}

func writeRunResult(cmd *cobra.Command, result *engine.RunResult) error {
	out := cmd.OutOrStdout()
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, outputFile, err)
		}
		defer f.Close()
		out = f
	}

	if outputFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(out, "Run %s finished in %s\n", result.RunID, result.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "Scored:   %d\n", len(result.Reconciliations))
	fmt.Fprintf(out, "Failed:   %d\n", len(result.Failures))
	summary := result.Summary()
	for _, state := range []engine.ReconciliationState{
		engine.StateAutoMatched, engine.StateNeedsReview, engine.StateUnmatched,
	} {
		fmt.Fprintf(out, "  %-13s %d\n", state, summary[state])
	}
	for _, rec := range result.Reconciliations {
		if rec.State == engine.StateAutoMatched {
			continue
		}
		fmt.Fprintf(out, "%-13s score=%6.1f tx=%s matched=%v\n",
			rec.State, rec.Score, rec.TransactionID, rec.MatchedIDs)
	}
	for _, f := range result.Failures {
		fmt.Fprintf(out, "FAILED        tx=%s: %s\n", f.TransactionID, f.Error)
	}
	return nil
}
