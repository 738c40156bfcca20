package ingest

import (
	"time"

	"github.com/google/uuid"

	"payment-reconciliation-service/internal/models"
)

// Canonicalize assigns identities to parsed transactions and stamps them for
// persistence. Low-confidence rows are kept; filtering is a reporting
// decision, not an ingestion one.
func Canonicalize(parsed []*models.ParsedTransaction, source string) []*models.Transaction {
	now := time.Now().UTC()
	out := make([]*models.Transaction, 0, len(parsed))
	for _, p := range parsed {
		out = append(out, &models.Transaction{
			ID:                  uuid.New().String(),
			Source:              source,
			ExternalReference:   p.ExternalReference,
			NormalizedReference: p.NormalizedReference,
			Amount:              p.Amount,
			Currency:            p.Currency,
			Status:              p.Status,
			CustomerIdentifier:  p.CustomerIdentifier,
			Timestamp:           p.Timestamp,
			RawData:             p.RawData,
			IngestedAt:          now,
		})
	}
	return out
}
