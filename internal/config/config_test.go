package config

import (
	"testing"
	"time"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, domain.DefaultFeePolicy(), cfg.Fees)
	assert.Equal(t, domain.DefaultStartingBalances(), cfg.StartingBalances)
	assert.Equal(t, domain.DeclineRefundAll, cfg.DeclinePolicy)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.Admin.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("MFS_STORE_DRIVER", "Memory")
	t.Setenv("FEE_THRESHOLD", "250")
	t.Setenv("FEE_FLAT", "7")
	t.Setenv("USER_STARTING_BALANCE", "0")
	t.Setenv("DECLINE_REFUND_POLICY", "cash_out_only")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ADMIN_MOBILE", "01700000000")
	t.Setenv("ADMIN_EMAIL", "admin@example.com")
	t.Setenv("ADMIN_PIN", "1234")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, domain.FeePolicy{Threshold: 250, Flat: 7}, cfg.Fees)
	assert.Equal(t, int64(0), cfg.StartingBalances.User)
	assert.Equal(t, int64(10000), cfg.StartingBalances.Agent)
	assert.Equal(t, domain.DeclineRefundCashOutOnly, cfg.DeclinePolicy)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.Admin.Enabled())
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing_secret", env: map[string]string{}},
		{name: "short_secret", env: map[string]string{"JWT_SECRET": "short"}},
		{name: "bad_driver", env: map[string]string{"JWT_SECRET": testSecret, "STORE_DRIVER": "sqlite"}},
		{name: "bad_policy", env: map[string]string{"JWT_SECRET": testSecret, "DECLINE_REFUND_POLICY": "never"}},
		{name: "bad_ttl", env: map[string]string{"JWT_SECRET": testSecret, "IDEMPOTENCY_TTL": "soon"}},
		{name: "negative_fee", env: map[string]string{"JWT_SECRET": testSecret, "FEE_FLAT": "-1"}},
		{name: "bad_pin_cost", env: map[string]string{"JWT_SECRET": testSecret, "PIN_HASH_COST": "99"}},
		{name: "partial_admin", env: map[string]string{"JWT_SECRET": testSecret, "ADMIN_MOBILE": "017"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
