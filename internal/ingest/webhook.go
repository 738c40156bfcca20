package ingest

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"payment-reconciliation-service/internal/formats"
	"payment-reconciliation-service/internal/models"
	"payment-reconciliation-service/internal/refextract"
	"payment-reconciliation-service/pkg/errors"
	"payment-reconciliation-service/pkg/logger"
)

// providerFields describes where one processor's webhook payload keeps each
// logical field. Paths are dot-separated keys into the JSON document.
type providerFields struct {
	format    string
	reference []string
	amount    []string
	status    []string
	timestamp []string
	customer  []string
	currency  []string
}

var providers = map[string]providerFields{
	"paystack": {
		format:    "Paystack",
		reference: []string{"data.reference", "data.id"},
		amount:    []string{"data.amount"},
		status:    []string{"data.status", "event"},
		timestamp: []string{"data.paid_at", "data.created_at"},
		customer:  []string{"data.customer.email", "data.customer.customer_code"},
		currency:  []string{"data.currency"},
	},
	"flutterwave": {
		format:    "Flutterwave",
		reference: []string{"data.tx_ref", "data.flw_ref", "data.id"},
		amount:    []string{"data.amount", "data.charged_amount"},
		status:    []string{"data.status"},
		timestamp: []string{"data.created_at"},
		customer:  []string{"data.customer.email"},
		currency:  []string{"data.currency"},
	},
	"kora": {
		format:    "Generic",
		reference: []string{"data.reference", "data.payment_reference"},
		amount:    []string{"data.amount"},
		status:    []string{"event", "data.status"},
		timestamp: []string{"data.transaction_date"},
		customer:  []string{"data.customer.email"},
		currency:  []string{"data.currency"},
	},
}

// WebhookNormalizer converts processor webhook payloads into the same
// ParsedTransaction shape the file parser produces, so webhook traffic and
// statement files reconcile through one pipeline.
type WebhookNormalizer struct {
	log logger.Logger
	now func() time.Time
}

func NewWebhookNormalizer(log logger.Logger) *WebhookNormalizer {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &WebhookNormalizer{
		log: log.WithComponent("webhook"),
		now: time.Now,
	}
}

// Providers lists the supported provider keys.
func Providers() []string {
	keys := make([]string, 0, len(providers))
	for k := range providers {
		keys = append(keys, k)
	}
	return keys
}

// Normalize decodes one webhook payload for the named provider. The reference
// and amount are mandatory; everything else degrades gracefully the way row
// parsing does.
func (n *WebhookNormalizer) Normalize(provider string, payload []byte) (*models.ParsedTransaction, error) {
	fields, ok := providers[strings.ToLower(provider)]
	if !ok {
		return nil, errors.ValidationError(errors.CodeInvalidData, "provider", provider, nil).
			WithSuggestion("Supported providers: " + strings.Join(Providers(), ", "))
	}

	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, provider+" webhook", 0, "", "", err).
			WithSuggestion("Webhook payloads must be JSON objects")
	}

	desc := formats.ByName(fields.format)
	tx := &models.ParsedTransaction{
		Currency:        "NGN",
		RawData:         flatten("", doc),
		ReferenceSource: models.RefFromColumn,
		ParseConfidence: 0.5 + 0.2 + 0.1,
	}

	ref := firstString(doc, fields.reference)
	if ref == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "reference", "", nil)
	}
	tx.ExternalReference = ref
	tx.NormalizedReference = refextract.Normalize(ref, desc)

	rawAmount := firstString(doc, fields.amount)
	amt, err := models.ParseAmount(rawAmount)
	if err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidAmount, "amount", rawAmount, err)
	}
	tx.Amount = amt.Abs()
	if amt.IsPositive() {
		tx.ParseConfidence += 0.15
	}
	tx.Type = models.TypeCredit

	tx.Status = models.NormalizeStatus(firstString(doc, fields.status))
	tx.CustomerIdentifier = firstString(doc, fields.customer)
	if c := firstString(doc, fields.currency); c != "" {
		tx.Currency = strings.ToUpper(c)
	}

	if raw := firstString(doc, fields.timestamp); raw != "" {
		if ts, err := models.ParseTimeWithLayouts(raw, desc.DateLayout); err == nil {
			tx.Timestamp = ts
			tx.ParseConfidence += 0.1
		}
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = n.now()
		tx.ParseWarnings = append(tx.ParseWarnings, "webhook carried no parsable timestamp; defaulted to receipt time")
	}
	if tx.ParseConfidence > 1.0 {
		tx.ParseConfidence = 1.0
	}

	n.log.WithFields(logger.Fields{
		"provider":  provider,
		"reference": tx.ExternalReference,
		"amount":    tx.Amount.String(),
	}).Debug("webhook normalized")
	return tx, nil
}

// lookup walks a dot-separated path into a decoded JSON document.
func lookup(doc map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// firstString returns the first path that resolves to a non-empty scalar.
func firstString(doc map[string]any, paths []string) string {
	for _, path := range paths {
		v, ok := lookup(doc, path)
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) != "" {
				return strings.TrimSpace(t)
			}
		case float64:
			return decimal.NewFromFloat(t).String()
		case bool:
			// booleans are never meaningful field values here
		}
	}
	return ""
}

// flatten preserves the full payload for audit, one dotted key per scalar.
func flatten(prefix string, v any) map[string]string {
	out := make(map[string]string)
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		switch t := v.(type) {
		case map[string]any:
			for k, child := range t {
				key := k
				if prefix != "" {
					key = prefix + "." + k
				}
				walk(key, child)
			}
		case []any:
			// arrays are rare in webhook payloads; index them
			for i, child := range t {
				walk(prefix+"."+strconv.Itoa(i), child)
			}
		case string:
			out[prefix] = t
		case float64:
			out[prefix] = decimal.NewFromFloat(t).String()
		case bool:
			if t {
				out[prefix] = "true"
			} else {
				out[prefix] = "false"
			}
		case nil:
			out[prefix] = ""
		}
	}
	walk(prefix, v)
	return out
}
