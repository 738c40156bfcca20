package ingest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-reconciliation-service/internal/models"
	"payment-reconciliation-service/pkg/errors"
)

func TestNormalizePaystackWebhook(t *testing.T) {
	payload := []byte(`{
		"event": "charge.success",
		"data": {
			"reference": "PSK_8f2k1092a",
			"amount": 25000.50,
			"status": "success",
			"paid_at": "2024-02-01T10:30:00",
			"currency": "NGN",
			"customer": {"email": "ada@example.com"}
		}
	}`)

	n := NewWebhookNormalizer(nil)
	tx, err := n.Normalize("paystack", payload)
	require.NoError(t, err)

	assert.Equal(t, "PSK_8f2k1092a", tx.ExternalReference)
	assert.Equal(t, "8F2K1092A", tx.NormalizedReference)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("25000.5")))
	assert.Equal(t, models.StatusSuccess, tx.Status)
	assert.Equal(t, "ada@example.com", tx.CustomerIdentifier)
	assert.Equal(t, time.Date(2024, 2, 1, 10, 30, 0, 0, time.UTC), tx.Timestamp)
	assert.Equal(t, models.RefFromColumn, tx.ReferenceSource)
}

func TestNormalizeFlutterwaveWebhook(t *testing.T) {
	payload := []byte(`{
		"data": {
			"tx_ref": "FLW-99120034",
			"amount": 1200,
			"status": "successful",
			"created_at": "2024-02-02 08:15:00",
			"currency": "ngn"
		}
	}`)

	n := NewWebhookNormalizer(nil)
	tx, err := n.Normalize("flutterwave", payload)
	require.NoError(t, err)

	assert.Equal(t, "99120034", tx.NormalizedReference)
	assert.Equal(t, "NGN", tx.Currency)
	assert.Equal(t, models.StatusSuccess, tx.Status)
	assert.Equal(t, time.Date(2024, 2, 2, 8, 15, 0, 0, time.UTC), tx.Timestamp)
}

func TestNormalizeWebhookMissingTimestamp(t *testing.T) {
	payload := []byte(`{"data": {"reference": "PSK_abc12345", "amount": 100}}`)
	fixed := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	n := NewWebhookNormalizer(nil)
	n.now = func() time.Time { return fixed }
	tx, err := n.Normalize("paystack", payload)
	require.NoError(t, err)

	assert.Equal(t, fixed, tx.Timestamp)
	assert.NotEmpty(t, tx.ParseWarnings)
}

func TestNormalizeWebhookErrors(t *testing.T) {
	n := NewWebhookNormalizer(nil)

	_, err := n.Normalize("stripe", []byte(`{}`))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidData))

	_, err = n.Normalize("paystack", []byte(`not json`))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidFormat))

	_, err = n.Normalize("paystack", []byte(`{"data": {"amount": 100}}`))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMissingField))

	_, err = n.Normalize("paystack", []byte(`{"data": {"reference": "PSK_x1", "amount": "abc"}}`))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidAmount))
}
