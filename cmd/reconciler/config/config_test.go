package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-reconciliation-service/pkg/errors"
)

func TestEngineConfigDefaults(t *testing.T) {
	viper.Reset()

	cfg, err := EngineConfig()
	require.NoError(t, err)

	assert.Equal(t, 95.0, cfg.Thresholds.AutoMatch)
	assert.Equal(t, "0.02", cfg.Tolerance.DefaultPercentage.String())
	assert.Equal(t, 30*time.Minute, cfg.DuplicateWindow)
	assert.True(t, cfg.Dates.SkipWeekends)
}

func TestEngineConfigOverlay(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("thresholds.auto_match", 90)
	viper.Set("tolerance.max_absolute", "250")
	viper.Set("dates.skip_weekends", false)
	viper.Set("weights.duplicate_penalty", -40)
	viper.Set("duplicate_window_minutes", 15)

	cfg, err := EngineConfig()
	require.NoError(t, err)

	assert.Equal(t, 90.0, cfg.Thresholds.AutoMatch)
	assert.Equal(t, "250", cfg.Tolerance.MaxAbsolute.String())
	assert.False(t, cfg.Dates.SkipWeekends)
	assert.Equal(t, -40.0, cfg.Weights.DuplicatePenalty)
	assert.Equal(t, 15*time.Minute, cfg.DuplicateWindow)

	// Untouched keys keep their defaults.
	assert.Equal(t, 85.0, cfg.Thresholds.High)
}

func TestEngineConfigCounterpartyFees(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("counterparty_fees.flutterwave.percentage", "0.014")
	viper.Set("counterparty_fees.flutterwave.flat", "0")

	cfg, err := EngineConfig()
	require.NoError(t, err)

	fs, ok := cfg.CounterpartyFees["flutterwave"]
	require.True(t, ok)
	assert.Equal(t, "0.014", fs.Percentage.String())
	assert.True(t, fs.Flat.IsZero())
	// Fields not overridden inherit the default schedule.
	assert.Equal(t, "2000", fs.Cap.String())
}

func TestEngineConfigRejectsInvalidOverlay(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	// Thresholds must stay strictly descending.
	viper.Set("thresholds.auto_match", 50)

	_, err := EngineConfig()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidConfig))
}

func TestFormatDescriptor(t *testing.T) {
	assert.Nil(t, FormatDescriptor(""))
	assert.Equal(t, "GTBank", FormatDescriptor("gtbank").Name)
	// Unknown names fall back to the generic descriptor rather than failing.
	assert.True(t, FormatDescriptor("no-such-bank").IsGeneric())
}
