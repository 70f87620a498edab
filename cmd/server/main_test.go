package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunamatcha/backend/internal/config"
)

func validConfig() config.Config {
	return config.Config{
		Timezone:              "Asia/Jakarta",
		RequestTimeoutSeconds: 15,
		LedgerTimeoutSeconds:  5,
		DayLockTTLSeconds:     10,
	}
}

func TestValidateRuntimeConfigAcceptsDefaults(t *testing.T) {
	loc, err := validateRuntimeConfig(validConfig())
	require.NoError(t, err)
	assert.Equal(t, "Asia/Jakarta", loc.String())
}

func TestValidateRuntimeConfigRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{name: "unknown timezone", mutate: func(c *config.Config) { c.Timezone = "Mars/Olympus" }},
		{name: "ledger timeout not below request timeout", mutate: func(c *config.Config) { c.LedgerTimeoutSeconds = 15 }},
		{name: "lock lease shorter than ledger work", mutate: func(c *config.Config) {
			c.RedisAddr = "localhost:6379"
			c.DayLockTTLSeconds = 2
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			_, err := validateRuntimeConfig(cfg)
			assert.Error(t, err)
		})
	}
}
