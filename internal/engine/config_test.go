package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAmountTolerance(t *testing.T) {
	cfg := DefaultConfig().Tolerance

	tests := []struct {
		name   string
		amount string
		want   string
	}{
		{"below threshold gets flat tolerance", "500", "100"},
		{"large amount capped at max absolute", "5000", "100"},
		{"percentage in between", "2000", "40"},
		{"exactly at threshold uses percentage", "1000", "20"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cfg.Tolerance(decimal.RequireFromString(tt.amount))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"Tolerance(%s) = %s, want %s", tt.amount, got, tt.want)
		})
	}
}

func TestAmountWindowClampsAtZero(t *testing.T) {
	cfg := DefaultConfig().Tolerance
	min, max := cfg.Window(decimal.RequireFromString("50"))
	assert.True(t, min.Equal(decimal.Zero), "min = %s", min)
	assert.True(t, max.Equal(decimal.RequireFromString("150")), "max = %s", max)
}

func TestDateWindowSkipsWeekends(t *testing.T) {
	cfg := DateToleranceConfig{DaysBefore: 1, DaysAfter: 3, SkipWeekends: true}

	// Friday 2024-02-02; three business days forward lands on Wednesday
	friday := time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)
	from, to := cfg.Window(friday)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 2, 7, 23, 59, 59, 0, time.UTC), to)

	// Monday 2024-02-05; one day back lands on Sunday and slides to Friday
	monday := time.Date(2024, 2, 5, 9, 0, 0, 0, time.UTC)
	from, _ = cfg.Window(monday)
	assert.Equal(t, time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC), from)

	cfg.SkipWeekends = false
	from, to = cfg.Window(monday)
	assert.Equal(t, time.Date(2024, 2, 4, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 2, 8, 23, 59, 59, 0, time.UTC), to)
}

func TestDateWindowCoversWholeDays(t *testing.T) {
	cfg := DateToleranceConfig{DaysBefore: 1, DaysAfter: 3, SkipWeekends: true}

	// Tuesday 10:00; a previous-day 08:00 counterpart is inside the window
	// even though it is more than 24 hours earlier.
	tuesday := time.Date(2024, 2, 6, 10, 0, 0, 0, time.UTC)
	from, to := cfg.Window(tuesday)
	earlier := time.Date(2024, 2, 5, 8, 0, 0, 0, time.UTC)
	assert.False(t, earlier.Before(from), "from = %s", from)
	assert.False(t, earlier.After(to), "to = %s", to)
	assert.Equal(t, time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), from)

	// DaysBefore 0 still anchors the start at midnight of the same day.
	cfg.DaysBefore = 0
	from, _ = cfg.Window(tuesday)
	assert.Equal(t, time.Date(2024, 2, 6, 0, 0, 0, 0, time.UTC), from)
}

func TestClassifyThresholds(t *testing.T) {
	cfg := DefaultConfig().Thresholds

	tests := []struct {
		score float64
		want  MatchConfidence
	}{
		{120, ConfidenceAutoMatch},
		{95, ConfidenceAutoMatch},
		{94.9, ConfidenceHigh},
		{85, ConfidenceHigh},
		{70, ConfidenceMedium},
		{40, ConfidenceLow},
		{39, ConfidenceNone},
		{-20, ConfidenceNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.Classify(tt.score), "Classify(%v)", tt.score)
	}
}

func TestFeeSchedule(t *testing.T) {
	fees := DefaultConfig().Fees

	// 10000 * 1.5% + 100 = 250; VAT 7.5% of fee = 18.75
	fee := fees.Fee(decimal.RequireFromString("10000"))
	assert.True(t, fee.Equal(decimal.RequireFromString("250")), "fee = %s", fee)
	net := fees.ExpectedSettlement(decimal.RequireFromString("10000"))
	assert.True(t, net.Equal(decimal.RequireFromString("9731.25")), "net = %s", net)

	// fee capped at 2000: 200000 * 1.5% + 100 = 3100 -> 2000, VAT 150
	net = fees.ExpectedSettlement(decimal.RequireFromString("200000"))
	assert.True(t, net.Equal(decimal.RequireFromString("197850")), "net = %s", net)
}

func TestFeeScheduleFor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CounterpartyFees = map[string]FeeScheduleConfig{
		"flutterwave": {
			Percentage: decimal.RequireFromString("0.014"),
			Flat:       decimal.Zero,
			Cap:        decimal.RequireFromString("2000"),
			VATRate:    decimal.RequireFromString("0.075"),
		},
	}

	// 10000 * 1.4% = 140, no flat component.
	fee := cfg.FeeScheduleFor("flutterwave").Fee(decimal.RequireFromString("10000"))
	assert.True(t, fee.Equal(decimal.RequireFromString("140")), "fee = %s", fee)

	// Unknown counterparties fall back to the default schedule.
	fee = cfg.FeeScheduleFor("paystack").Fee(decimal.RequireFromString("10000"))
	assert.True(t, fee.Equal(decimal.RequireFromString("250")), "fee = %s", fee)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	bad := DefaultConfig()
	bad.Thresholds.High = 99 // above auto-match
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Weights.DuplicatePenalty = 5
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Dates.DaysAfter = -1
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.FuzzyMinSimilarity = 1.5
	assert.Error(t, bad.Validate())
}
