package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ADMIN_JWT_SECRET", "")
	t.Setenv("PAYMENT_PROVIDER", "")
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("PAYMENT_TIMEOUT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "mock", cfg.Payment.Provider)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.Equal(t, 15*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, "1000", cfg.Defaults.AdvanceFee.String())
	assert.NotEmpty(t, cfg.Auth.JWTSecret)
	assert.NotEqual(t, cfg.Auth.JWTSecret, cfg.Auth.AdminJWTSecret)
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ADMIN_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_MockProviderIsDevOnly(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "user")
	t.Setenv("ADMIN_JWT_SECRET", "admin")

	t.Run("unset provider", func(t *testing.T) {
		t.Setenv("PAYMENT_PROVIDER", "")
		_, err := Load()
		require.Error(t, err)
	})
	t.Run("explicit mock", func(t *testing.T) {
		t.Setenv("PAYMENT_PROVIDER", "mock")
		_, err := Load()
		require.Error(t, err)
	})
	t.Run("stripe", func(t *testing.T) {
		t.Setenv("PAYMENT_PROVIDER", "stripe")
		t.Setenv("STRIPE_SECRET_KEY", "sk_test_x")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "stripe", cfg.Payment.Provider)
	})
}

func TestLoad_PaymentTimeoutIsClamped(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("PAYMENT_TIMEOUT", "2m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, cfg.Payment.Timeout)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("APP_ENV", "dev")

	t.Run("duration", func(t *testing.T) {
		t.Setenv("TOKEN_TTL", "soon")
		_, err := Load()
		require.Error(t, err)
	})
	t.Run("fee", func(t *testing.T) {
		t.Setenv("DEFAULT_ADVANCE_FEE", "-5")
		_, err := Load()
		require.Error(t, err)
	})
	t.Run("zero advance fee", func(t *testing.T) {
		t.Setenv("DEFAULT_ADVANCE_FEE", "0")
		_, err := Load()
		require.Error(t, err)
	})
	t.Run("zero consultation fee", func(t *testing.T) {
		t.Setenv("DEFAULT_CONSULTATION_FEE", "0.00")
		_, err := Load()
		require.Error(t, err)
	})
	t.Run("provider", func(t *testing.T) {
		t.Setenv("PAYMENT_PROVIDER", "paypal")
		_, err := Load()
		require.Error(t, err)
	})
	t.Run("stripe without key", func(t *testing.T) {
		t.Setenv("PAYMENT_PROVIDER", "stripe")
		t.Setenv("STRIPE_SECRET_KEY", "")
		_, err := Load()
		require.Error(t, err)
	})
}
