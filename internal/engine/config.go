// Package engine scores transactions against counterparty candidates with a
// fixed set of rules and classifies the outcome.
package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"payment-reconciliation-service/pkg/errors"
)

// AmountToleranceConfig controls how far apart two amounts may be and still
// count as the same payment.
type AmountToleranceConfig struct {
	// DefaultPercentage is the relative tolerance for large amounts.
	DefaultPercentage decimal.Decimal `json:"default_percentage" mapstructure:"default_percentage"`
	// MaxAbsolute caps the tolerance in currency units.
	MaxAbsolute decimal.Decimal `json:"max_absolute" mapstructure:"max_absolute"`
	// MinAmountForPercentage is the amount below which the flat MaxAbsolute
	// tolerance applies instead of the percentage.
	MinAmountForPercentage decimal.Decimal `json:"min_amount_for_percentage" mapstructure:"min_amount_for_percentage"`
}

// Tolerance returns the allowed deviation for the given amount: flat
// MaxAbsolute below the percentage threshold, otherwise the percentage capped
// at MaxAbsolute.
func (c AmountToleranceConfig) Tolerance(amount decimal.Decimal) decimal.Decimal {
	if amount.LessThan(c.MinAmountForPercentage) {
		return c.MaxAbsolute
	}
	pct := amount.Mul(c.DefaultPercentage)
	if pct.GreaterThan(c.MaxAbsolute) {
		return c.MaxAbsolute
	}
	return pct
}

// Window returns the inclusive amount window around amount. The lower bound
// never goes below zero.
func (c AmountToleranceConfig) Window(amount decimal.Decimal) (min, max decimal.Decimal) {
	tol := c.Tolerance(amount)
	min = amount.Sub(tol)
	if min.IsNegative() {
		min = decimal.Zero
	}
	return min, amount.Add(tol)
}

// DateToleranceConfig controls the settlement window searched around a
// transaction's timestamp.
type DateToleranceConfig struct {
	DaysBefore int `json:"days_before" mapstructure:"days_before"`
	DaysAfter  int `json:"days_after" mapstructure:"days_after"`
	// SkipWeekends widens the forward window across non-business days,
	// matching how bank settlement actually behaves.
	SkipWeekends bool `json:"skip_weekends" mapstructure:"skip_weekends"`
}

// Window returns the inclusive candidate window around ts. Both edges are
// whole days: the start truncates to midnight so a previous-day counterpart
// is inside the window regardless of its time of day, and the end extends to
// the last second of its day.
func (c DateToleranceConfig) Window(ts time.Time) (from, to time.Time) {
	from = ts.AddDate(0, 0, -c.DaysBefore)
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	if c.SkipWeekends {
		// a window edge landing on a weekend slides over it in both
		// directions; settlement does not happen on non-business days
		for wd := from.Weekday(); wd == time.Saturday || wd == time.Sunday; wd = from.Weekday() {
			from = from.AddDate(0, 0, -1)
		}
		to = addBusinessDays(ts, c.DaysAfter)
	} else {
		to = ts.AddDate(0, 0, c.DaysAfter)
	}
	to = time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, to.Location())
	return from, to
}

func addBusinessDays(ts time.Time, days int) time.Time {
	out := ts
	for added := 0; added < days; {
		out = out.AddDate(0, 0, 1)
		if wd := out.Weekday(); wd != time.Saturday && wd != time.Sunday {
			added++
		}
	}
	return out
}

// ThresholdConfig maps a signed score onto a match confidence, evaluated in
// descending order.
type ThresholdConfig struct {
	AutoMatch float64 `json:"auto_match" mapstructure:"auto_match"`
	High      float64 `json:"high" mapstructure:"high"`
	Medium    float64 `json:"medium" mapstructure:"medium"`
	Low       float64 `json:"low" mapstructure:"low"`
}

// MatchConfidence is the classified outcome of a reconciliation score.
type MatchConfidence string

const (
	ConfidenceAutoMatch MatchConfidence = "auto_match"
	ConfidenceHigh      MatchConfidence = "high"
	ConfidenceMedium    MatchConfidence = "medium"
	ConfidenceLow       MatchConfidence = "low"
	ConfidenceNone      MatchConfidence = "none"
)

// Classify buckets a score.
func (c ThresholdConfig) Classify(score float64) MatchConfidence {
	switch {
	case score >= c.AutoMatch:
		return ConfidenceAutoMatch
	case score >= c.High:
		return ConfidenceHigh
	case score >= c.Medium:
		return ConfidenceMedium
	case score >= c.Low:
		return ConfidenceLow
	default:
		return ConfidenceNone
	}
}

// RuleWeightConfig holds the contribution of each rule to the total score.
// The exact reference match is not configurable; it always scores 100 so a
// confirmed reference alone clears the auto-match threshold.
type RuleWeightConfig struct {
	FuzzyMatch       float64 `json:"fuzzy_match" mapstructure:"fuzzy_match"`
	AmountTolerance  float64 `json:"amount_tolerance" mapstructure:"amount_tolerance"`
	SameDay          float64 `json:"same_day" mapstructure:"same_day"`
	DateRange        float64 `json:"date_range" mapstructure:"date_range"`
	Status           float64 `json:"status" mapstructure:"status"`
	DuplicatePenalty float64 `json:"duplicate_penalty" mapstructure:"duplicate_penalty"`
}

// FeeScheduleConfig models processor fees so expected settlement amounts can
// be derived from gross transaction amounts.
type FeeScheduleConfig struct {
	Percentage decimal.Decimal `json:"percentage" mapstructure:"percentage"`
	Flat       decimal.Decimal `json:"flat" mapstructure:"flat"`
	Cap        decimal.Decimal `json:"cap" mapstructure:"cap"`
	VATRate    decimal.Decimal `json:"vat_rate" mapstructure:"vat_rate"`
}

// Fee returns the processor fee for a gross amount, before VAT.
func (c FeeScheduleConfig) Fee(amount decimal.Decimal) decimal.Decimal {
	fee := amount.Mul(c.Percentage).Add(c.Flat)
	if fee.GreaterThan(c.Cap) {
		fee = c.Cap
	}
	return fee.Round(2)
}

// ExpectedSettlement returns the net amount a processor should pay out for a
// gross amount: gross minus fee minus VAT on the fee.
func (c FeeScheduleConfig) ExpectedSettlement(amount decimal.Decimal) decimal.Decimal {
	fee := c.Fee(amount)
	vat := fee.Mul(c.VATRate).Round(2)
	return amount.Sub(fee).Sub(vat)
}

// Config is the full engine configuration.
type Config struct {
	Tolerance  AmountToleranceConfig `json:"tolerance" mapstructure:"tolerance"`
	Dates      DateToleranceConfig   `json:"dates" mapstructure:"dates"`
	Thresholds ThresholdConfig       `json:"thresholds" mapstructure:"thresholds"`
	Weights    RuleWeightConfig      `json:"weights" mapstructure:"weights"`
	Fees       FeeScheduleConfig     `json:"fees" mapstructure:"fees"`

	// CounterpartyFees overrides Fees for specific counterparty sources,
	// keyed by the source tag ("paystack", "flutterwave", ...).
	CounterpartyFees map[string]FeeScheduleConfig `json:"counterparty_fees,omitempty" mapstructure:"counterparty_fees"`

	// FuzzyMinSimilarity is the edit-distance similarity floor for the
	// fuzzy reference rule.
	FuzzyMinSimilarity float64 `json:"fuzzy_min_similarity" mapstructure:"fuzzy_min_similarity"`
	// DuplicateWindow bounds how far apart two same-amount transactions
	// from one source may be and still count as duplicates.
	DuplicateWindow time.Duration `json:"duplicate_window" mapstructure:"duplicate_window"`
}

// FeeScheduleFor returns the fee schedule for a counterparty source, falling
// back to the default schedule when no override is configured.
func (c *Config) FeeScheduleFor(source string) FeeScheduleConfig {
	if fs, ok := c.CounterpartyFees[source]; ok {
		return fs
	}
	return c.Fees
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		Tolerance: AmountToleranceConfig{
			DefaultPercentage:      decimal.NewFromFloat(0.02),
			MaxAbsolute:            decimal.NewFromFloat(100.00),
			MinAmountForPercentage: decimal.NewFromFloat(1000.00),
		},
		Dates: DateToleranceConfig{
			DaysBefore:   1,
			DaysAfter:    3,
			SkipWeekends: true,
		},
		Thresholds: ThresholdConfig{
			AutoMatch: 95,
			High:      85,
			Medium:    70,
			Low:       40,
		},
		Weights: RuleWeightConfig{
			FuzzyMatch:       30,
			AmountTolerance:  20,
			SameDay:          20,
			DateRange:        10,
			Status:           10,
			DuplicatePenalty: -20,
		},
		Fees: FeeScheduleConfig{
			Percentage: decimal.NewFromFloat(0.015),
			Flat:       decimal.NewFromFloat(100.00),
			Cap:        decimal.NewFromFloat(2000.00),
			VATRate:    decimal.NewFromFloat(0.075),
		},
		FuzzyMinSimilarity: 0.8,
		DuplicateWindow:    30 * time.Minute,
	}
}

// Validate checks the configuration for values that would make scoring
// meaningless.
func (c *Config) Validate() error {
	if c.Tolerance.DefaultPercentage.IsNegative() || c.Tolerance.DefaultPercentage.GreaterThan(decimal.NewFromInt(1)) {
		return errors.ConfigurationError(errors.CodeInvalidConfig,
			"tolerance.default_percentage", c.Tolerance.DefaultPercentage.String(), nil)
	}
	if c.Tolerance.MaxAbsolute.IsNegative() {
		return errors.ConfigurationError(errors.CodeInvalidConfig,
			"tolerance.max_absolute", c.Tolerance.MaxAbsolute.String(), nil)
	}
	if c.Dates.DaysBefore < 0 || c.Dates.DaysAfter < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig,
			"dates", "negative day window", nil)
	}
	if !(c.Thresholds.AutoMatch >= c.Thresholds.High &&
		c.Thresholds.High >= c.Thresholds.Medium &&
		c.Thresholds.Medium >= c.Thresholds.Low) {
		return errors.ConfigurationError(errors.CodeInvalidConfig,
			"thresholds", "thresholds must be descending", nil)
	}
	if c.FuzzyMinSimilarity < 0 || c.FuzzyMinSimilarity > 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig,
			"fuzzy_min_similarity", c.FuzzyMinSimilarity, nil)
	}
	if c.DuplicateWindow <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig,
			"duplicate_window", c.DuplicateWindow.String(), nil)
	}
	if c.Weights.DuplicatePenalty > 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig,
			"weights.duplicate_penalty", c.Weights.DuplicatePenalty, nil).
			WithSuggestion("the duplicate penalty must be zero or negative")
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	if c.CounterpartyFees != nil {
		out.CounterpartyFees = make(map[string]FeeScheduleConfig, len(c.CounterpartyFees))
		for k, v := range c.CounterpartyFees {
			out.CounterpartyFees[k] = v
		}
	}
	return &out
}
