// Package config translates viper settings into the typed configurations the
// engine and ingest layers consume.
package config

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"payment-reconciliation-service/internal/engine"
	"payment-reconciliation-service/internal/formats"
)

// EngineConfig builds the engine configuration: production defaults overlaid
// with any values set in the config file or RECONCILER_* environment.
func EngineConfig() (*engine.Config, error) {
	cfg := engine.DefaultConfig()

	overlayDecimal(&cfg.Tolerance.DefaultPercentage, "tolerance.default_percentage")
	overlayDecimal(&cfg.Tolerance.MaxAbsolute, "tolerance.max_absolute")
	overlayDecimal(&cfg.Tolerance.MinAmountForPercentage, "tolerance.min_amount_for_percentage")

	overlayInt(&cfg.Dates.DaysBefore, "dates.days_before")
	overlayInt(&cfg.Dates.DaysAfter, "dates.days_after")
	overlayBool(&cfg.Dates.SkipWeekends, "dates.skip_weekends")

	overlayFloat(&cfg.Thresholds.AutoMatch, "thresholds.auto_match")
	overlayFloat(&cfg.Thresholds.High, "thresholds.high")
	overlayFloat(&cfg.Thresholds.Medium, "thresholds.medium")
	overlayFloat(&cfg.Thresholds.Low, "thresholds.low")

	overlayFloat(&cfg.Weights.FuzzyMatch, "weights.fuzzy_match")
	overlayFloat(&cfg.Weights.AmountTolerance, "weights.amount_tolerance")
	overlayFloat(&cfg.Weights.SameDay, "weights.same_day")
	overlayFloat(&cfg.Weights.DateRange, "weights.date_range")
	overlayFloat(&cfg.Weights.Status, "weights.status")
	overlayFloat(&cfg.Weights.DuplicatePenalty, "weights.duplicate_penalty")

	overlayDecimal(&cfg.Fees.Percentage, "fees.percentage")
	overlayDecimal(&cfg.Fees.Flat, "fees.flat")
	overlayDecimal(&cfg.Fees.Cap, "fees.cap")
	overlayDecimal(&cfg.Fees.VATRate, "fees.vat_rate")

	// Counterparty fee overrides start from the default schedule, so a
	// partial override keeps the remaining default fields.
	for source := range viper.GetStringMap("counterparty_fees") {
		fs := cfg.Fees
		prefix := "counterparty_fees." + source + "."
		overlayDecimal(&fs.Percentage, prefix+"percentage")
		overlayDecimal(&fs.Flat, prefix+"flat")
		overlayDecimal(&fs.Cap, prefix+"cap")
		overlayDecimal(&fs.VATRate, prefix+"vat_rate")
		if cfg.CounterpartyFees == nil {
			cfg.CounterpartyFees = make(map[string]engine.FeeScheduleConfig)
		}
		cfg.CounterpartyFees[source] = fs
	}

	overlayFloat(&cfg.FuzzyMinSimilarity, "fuzzy_min_similarity")
	if viper.IsSet("duplicate_window_minutes") {
		cfg.DuplicateWindow = time.Duration(viper.GetInt("duplicate_window_minutes")) * time.Minute
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FormatDescriptor resolves a --format flag value. Empty means auto-detect.
func FormatDescriptor(name string) *formats.Descriptor {
	if name == "" {
		return nil
	}
	return formats.ByName(name)
}

func overlayDecimal(dst *decimal.Decimal, key string) {
	if viper.IsSet(key) {
		if d, err := decimal.NewFromString(viper.GetString(key)); err == nil {
			*dst = d
		}
	}
}

func overlayFloat(dst *float64, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetFloat64(key)
	}
}

func overlayInt(dst *int, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetInt(key)
	}
}

func overlayBool(dst *bool, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetBool(key)
	}
}
