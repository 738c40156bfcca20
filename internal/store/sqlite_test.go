package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-reconciliation-service/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "recon.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	base := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	tx := seedTx("t1", "gtbank", "REF001", "5000.00", base)
	tx.RawData = map[string]string{"col_0": "GTB-REF001"}
	require.NoError(t, s.Save(tx))

	got, err := s.FindByNormalizedReference("gtbank", "REF001")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].ID)
	assert.True(t, got[0].Amount.Equal(decimal.RequireFromString("5000.00")))
	assert.Equal(t, base, got[0].Timestamp)
	assert.Equal(t, "GTB-REF001", got[0].RawData["col_0"])
}

func TestSQLiteStoreMigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recon.db")

	s1, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, s1.Save(seedTx("t1", "gtbank", "REF001", "100.00", time.Now())))
	require.NoError(t, s1.Close())

	// reopening must not rerun applied migrations or lose data
	s2, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	defer s2.Close()
	got, err := s2.FindByNormalizedReference("gtbank", "REF001")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLiteStoreBatchRollsBackOnBadRecord(t *testing.T) {
	s := newTestSQLiteStore(t)
	base := time.Now()

	bad := seedTx("t2", "gtbank", "REF002", "100.00", base)
	bad.NormalizedReference = ""

	err := s.SaveBatch([]*models.Transaction{
		seedTx("t1", "gtbank", "REF001", "100.00", base),
		bad,
	})
	require.Error(t, err)

	got, findErr := s.FindByNormalizedReference("gtbank", "REF001")
	require.NoError(t, findErr)
	assert.Empty(t, got, "failed batch must not leave partial rows")
}

func TestSQLiteStoreQueries(t *testing.T) {
	s := newTestSQLiteStore(t)
	base := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveBatch([]*models.Transaction{
		seedTx("t1", "gtbank", "REF00123", "100.00", base),
		seedTx("t2", "gtbank", "REF00999", "100.00", base.Add(10*time.Minute)),
		seedTx("t3", "gtbank", "XYZ00123", "250.00", base.Add(2*time.Hour)),
	}))

	// all three share the reference length, so all three are candidates
	fuzzy, err := s.FindByFuzzyReference("gtbank", "REF00555")
	require.NoError(t, err)
	assert.Len(t, fuzzy, 3)

	amounts, err := s.FindByAmountRange("gtbank",
		decimal.RequireFromString("200"), decimal.RequireFromString("300"))
	require.NoError(t, err)
	require.Len(t, amounts, 1)
	assert.Equal(t, "t3", amounts[0].ID)

	window, err := s.FindByTimeRange("gtbank", base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, window, 2)

	dups, err := s.FindPotentialDuplicates("gtbank",
		decimal.RequireFromString("100.00"),
		base.Add(-30*time.Minute), base.Add(30*time.Minute), "t1")
	require.NoError(t, err)
	require.Len(t, dups, 1)
	assert.Equal(t, "t2", dups[0].ID)
}

func TestSQLiteStoreFuzzyReferencePool(t *testing.T) {
	s := newTestSQLiteStore(t)
	base := time.Now()
	require.NoError(t, s.SaveBatch([]*models.Transaction{
		seedTx("t1", "gtbank", "XBCD1234", "100.00", base),
		seedTx("t2", "gtbank", "REF001234SETTLED20240201", "100.00", base),
		seedTx("t3", "gtbank", "ZZ", "100.00", base),
	}))

	// a candidate differing only in its leading character stays in the pool,
	// and so does a containment match far outside the length window
	got, err := s.FindByFuzzyReference("gtbank", "ABCD1234")
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, tx := range got {
		ids = append(ids, tx.ID)
	}
	assert.ElementsMatch(t, []string{"t1"}, ids)

	got, err = s.FindByFuzzyReference("gtbank", "REF001234")
	require.NoError(t, err)
	ids = ids[:0]
	for _, tx := range got {
		ids = append(ids, tx.ID)
	}
	assert.ElementsMatch(t, []string{"t1", "t2"}, ids)
}
