package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"payment-reconciliation-service/cmd/reconciler/config"
	"payment-reconciliation-service/internal/engine"
	"payment-reconciliation-service/internal/store"
	"payment-reconciliation-service/pkg/errors"
)

var (
	reviewRunID string
	reviewTxID  string
	reviewState string
	reviewNote  string
	reviewActor string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Inspect and resolve reconciliations from a previous run",
	Long: `Review lists scored transactions from a run and moves individual
reconciliations through their lifecycle: dispute, then approve or reject.

Examples:
  reconciler review list --run 6f1c... --state NEEDS_REVIEW
  reconciler review dispute --run 6f1c... --tx 9a2b... --note "amount off by 50"
  reconciler review approve --run 6f1c... --tx 9a2b... --note "confirmed with bank"
  reconciler review reject  --run 6f1c... --tx 9a2b... --note "bank reversal"`,
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reconciliations for a run",
	RunE:  runReviewList,
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.AddCommand(reviewListCmd)

	reviewCmd.PersistentFlags().StringVar(&reviewRunID, "run", "", "run ID (required)")
	reviewCmd.PersistentFlags().StringVar(&reviewActor, "actor", "cli", "reviewer name for the audit trail")
	reviewCmd.MarkPersistentFlagRequired("run")

	reviewListCmd.Flags().StringVar(&reviewState, "state", "", "filter by state")

	for _, transition := range []struct {
		use   string
		short string
		next  engine.ReconciliationState
	}{
		{"dispute", "Contest a reconciliation outcome", engine.StateDisputed},
		{"approve", "Finalize a reconciliation as correct", engine.StateApproved},
		{"reject", "Finalize a reconciliation as not matched", engine.StateRejected},
	} {
		next := transition.next
		c := &cobra.Command{
			Use:   transition.use,
			Short: transition.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runReviewTransition(cmd, next)
			},
		}
		c.Flags().StringVar(&reviewTxID, "tx", "", "transaction ID (required)")
		c.Flags().StringVar(&reviewNote, "note", "", "reason recorded in the audit trail")
		c.MarkFlagRequired("tx")
		reviewCmd.AddCommand(c)
	}
}

func runReviewList(cmd *cobra.Command, args []string) error {
	st, err := store.NewSQLiteStore(viper.GetString("db"), nil)
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.ListReconciliations(reviewRunID, reviewState)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No reconciliations found")
		return nil
	}
	for _, rec := range recs {
		fmt.Fprintf(cmd.OutOrStdout(), "%-13s score=%6.1f tx=%s updated=%s\n",
			rec.State, rec.Score, rec.TransactionID, rec.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// runReviewTransition loads the stored reconciliation and moves it through
// the engine, so approvals and rejections publish the same domain events a
// live run would.
func runReviewTransition(cmd *cobra.Command, next engine.ReconciliationState) error {
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

	stored, err := st.GetReconciliation(reviewTxID, reviewRunID)
	if err != nil {
		return err
	}
	if stored == nil {
		return errors.ValidationError(errors.CodeInvalidData, "tx", reviewTxID, nil).
			WithSuggestion("check the transaction and run IDs against the run output")
	}

	rec, err := engine.FromRecord(stored)
	if err != nil {
		return err
	}
	switch next {
	case engine.StateDisputed:
		err = eng.Dispute(rec, reviewActor, reviewNote)
	case engine.StateApproved:
		err = eng.Approve(rec, reviewActor, reviewNote)
	case engine.StateRejected:
		err = eng.Reject(rec, reviewActor, reviewNote)
	}
	if err != nil {
		return err
	}

	audit, _ := json.Marshal(rec.AuditTrail)
	if err := st.UpdateReconciliationState(reviewTxID, reviewRunID, string(rec.State), audit); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reconciliation %s is now %s\n", reviewTxID, rec.State)
	return nil
}
