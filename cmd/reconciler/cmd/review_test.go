package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-reconciliation-service/internal/engine"
	"payment-reconciliation-service/internal/store"
)

func seedReviewDB(t *testing.T, state engine.ReconciliationState) (txID, runID string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recon.db")
	prev := viper.GetString("db")
	viper.Set("db", path)
	t.Cleanup(func() { viper.Set("db", prev) })

	st, err := store.NewSQLiteStore(path, nil)
	require.NoError(t, err)
	defer st.Close()

	rec := &engine.Reconciliation{
		TransactionID: "tx-1",
		RunID:         uuid.New(),
		Score:         72,
		State:         state,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	require.NoError(t, st.SaveReconciliations([]*store.ReconciliationRecord{rec.Record()}))
	return rec.TransactionID, rec.RunID.String()
}

func newReviewTestCmd() *cobra.Command {
	c := &cobra.Command{}
	c.SetOut(&bytes.Buffer{})
	return c
}

func TestReviewTransitionApprovesThroughEngine(t *testing.T) {
	txID, runID := seedReviewDB(t, engine.StateNeedsReview)
	reviewTxID, reviewRunID = txID, runID
	reviewActor, reviewNote = "ops", "confirmed with bank"

	require.NoError(t, runReviewTransition(newReviewTestCmd(), engine.StateApproved))

	st, err := store.NewSQLiteStore(viper.GetString("db"), nil)
	require.NoError(t, err)
	defer st.Close()
	stored, err := st.GetReconciliation(txID, runID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, string(engine.StateApproved), stored.State)

	var audit []string
	require.NoError(t, json.Unmarshal(stored.AuditTrail, &audit))
	require.Len(t, audit, 1)
	assert.Contains(t, audit[0], "ops")
	assert.Contains(t, audit[0], "confirmed with bank")
}

func TestReviewTransitionRejectsTerminalState(t *testing.T) {
	txID, runID := seedReviewDB(t, engine.StateApproved)
	reviewTxID, reviewRunID = txID, runID
	reviewActor, reviewNote = "ops", "second thoughts"

	err := runReviewTransition(newReviewTestCmd(), engine.StateDisputed)
	require.Error(t, err)
}

func TestReviewTransitionUnknownTransaction(t *testing.T) {
	_, runID := seedReviewDB(t, engine.StateNeedsReview)
	reviewTxID, reviewRunID = "missing", runID
	reviewActor, reviewNote = "ops", ""

	err := runReviewTransition(newReviewTestCmd(), engine.StateApproved)
	require.Error(t, err)
}
