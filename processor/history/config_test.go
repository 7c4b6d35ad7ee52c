package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "bars.batches", cfg.Ports.Input(PortBatches))
	assert.Equal(t, "bars.json", cfg.Ports.Output(PortJSON))
	assert.Equal(t, "bars.xml", cfg.Ports.Output(PortXML))
	assert.Equal(t, "bars.db", cfg.Ports.Output(PortDB))
	assert.Equal(t, "bars.failure", cfg.Ports.Output(PortFailure))
	assert.Equal(t, "ALL", cfg.Output)
}

func TestConfig_Location(t *testing.T) {
	cfg := DefaultConfig()
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	cfg.TimeZone = "UTC"
	loc, err = cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestConfig_RetryPolicy(t *testing.T) {
	cfg := DefaultConfig()
	policy, err := cfg.RetryPolicy()
	require.NoError(t, err)
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, policy.InitialDelay)
	assert.Equal(t, 2*time.Second, policy.MaxDelay)

	cfg.Retry.MaxDelay = "10ms"
	_, err = cfg.RetryPolicy()
	assert.Error(t, err, "max delay below initial delay")

	cfg = DefaultConfig()
	cfg.Retry.MaxAttempts = 0
	_, err = cfg.RetryPolicy()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty name", func(c *Config) { c.Name = "" }},
		{"unknown output", func(c *Config) { c.Output = "DATABASE" }},
		{"negative queue", func(c *Config) { c.QueueSize = -1 }},
		{"zero publish timeout", func(c *Config) { c.PublishTimeout = "0s" }},
		{"bad retry delay", func(c *Config) { c.Retry.InitialDelay = "fast" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.Output = "xml"
	assert.NoError(t, cfg.Validate(), "output is case-insensitive")
}
