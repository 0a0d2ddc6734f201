package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatflowers/cashier-stripe/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsAndEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("APP_CONFIG_NAME", "missing")
	t.Setenv("APP_STRIPE_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("APP_CHECKOUT_WEBHOOK_GRACE_PERIOD", "2s")

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, EnvDev, cfg.Env)
	require.Equal(t, 8888, cfg.Server.Port)
	require.Equal(t, "whsec_test", cfg.Stripe.WebhookSecret)
	require.Equal(t, 2*time.Second, cfg.Checkout.WebhookGracePeriod)
	require.Equal(t, 30*time.Second, cfg.Checkout.ClaimLease)
	require.Len(t, cfg.PaymentMethods, 5)
	require.NotNil(t, cfg.GetPaymentMethodByID(types.PaymentMethodSofort))
}

func TestNew_ReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	file := filepath.Join(dir, "prod.yaml")
	content := []byte(`
env: prod
stripe:
  statement_descriptor: "Global Shop"
payment_methods:
  - id: card
    statement_descriptor: "Shop Card"
  - id: sepa
`)
	require.NoError(t, os.WriteFile(file, content, 0o600))
	t.Setenv("APP_CONFIG_FILE", file)

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, EnvProd, cfg.Env)
	require.Len(t, cfg.PaymentMethods, 2)
	require.Nil(t, cfg.GetPaymentMethodByID(types.PaymentMethodKlarna))
	require.Equal(t, "Shop Card", cfg.StatementDescriptorFor(types.PaymentMethodCard))
	require.Equal(t, "Global Shop", cfg.StatementDescriptorFor(types.PaymentMethodSepa))
}

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(wd)) })
}
