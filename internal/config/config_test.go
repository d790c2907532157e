package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDefaults(t *testing.T) {
	for _, k := range []string{"ADDR", "DB_PATH", "BACKEND_URL", "POLL_INTERVAL", "RETRY_MAX", "QUOTE_CURRENCY", "FINNHUB_API_KEY", "INSIGHTS_TTL"} {
		t.Setenv(k, "")
	}
	c, err := Defaults()
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.Addr)
	assert.Equal(t, "USDT", c.QuoteCurrency)
	assert.Equal(t, 5*time.Minute, c.CurrentPriceTTL)
	assert.Equal(t, 23*time.Hour, c.ReferencePriceTTL)
	assert.Equal(t, 3, c.RetryMax)
	assert.Empty(t, c.BackendURL)
	assert.Empty(t, c.FinnhubAPIKey)
	assert.Equal(t, 5*time.Minute, c.InsightsTTL)
	assert.NoError(t, c.Validate())
}

func TestValidateBoundsRetries(t *testing.T) {
	c := Config{RetryMax: MaxRetries, PollInterval: time.Minute, QuoteCurrency: "USDT"}
	assert.NoError(t, c.Validate())

	c.RetryMax = MaxRetries + 1
	assert.ErrorContains(t, c.Validate(), "cannot exceed")

	c.RetryMax = -1
	assert.Error(t, c.Validate())
}

func TestEnvFileThenFlags(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("RETRY_MAX", "")
	os.Unsetenv("POLL_INTERVAL")
	os.Unsetenv("RETRY_MAX")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("POLL_INTERVAL=30s\nRETRY_MAX=5\n"), 0o600))
	require.NoError(t, LoadEnvFile(path))

	c, err := Defaults()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, c.PollInterval)
	assert.Equal(t, 5, c.RetryMax)

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-retries", "1", "-backend", "http://localhost:4000"}))
	assert.Equal(t, 1, c.RetryMax)
	assert.Equal(t, "http://localhost:4000", c.BackendURL)
	assert.Equal(t, 30*time.Second, c.PollInterval)
}

func TestMissingEnvFileIsIgnored(t *testing.T) {
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")))
}

func TestInvalidEnvironment(t *testing.T) {
	t.Setenv("RETRY_DELAY", "soon")
	t.Setenv("RETRY_MAX", "many")
	_, err := Defaults()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RETRY_DELAY")
	assert.Contains(t, err.Error(), "RETRY_MAX")
}

func TestLogger(t *testing.T) {
	c := Config{LogLevel: "warn"}
	l, err := c.Logger()
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	c.LogLevel = "loud"
	_, err = c.Logger()
	assert.Error(t, err)
}
