package config

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.False(t, cfg.Testing)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 1000, cfg.Import.BatchSize)
	assert.Equal(t, 4, cfg.Import.Workers)
	assert.Equal(t, 24*time.Hour, cfg.Import.Interval)
	assert.Equal(t, 90, cfg.Import.RetainDays)
	assert.False(t, cfg.Import.AutoImport)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, float64(10), cfg.RateLimit.APIPerSecond)
	assert.Equal(t, 3, cfg.RateLimit.MaxRetries)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "price-service", cfg.Telemetry.ServiceName)
}

func TestLoadBindsUnprefixedEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://app:pw@db:5432/prices")
	t.Setenv("USE_ORACLE", "true")
	t.Setenv("DB_WALLET_DIR", "/run/wallet")
	t.Setenv("AUTO_IMPORT", "true")
	t.Setenv("IMPORT_LIMIT", "7")
	t.Setenv("IMPORT_INTERVAL", "1h")
	t.Setenv("SECRET_KEY", "sekrit")
	t.Setenv("INTERNAL_API_KEY", "svc-key")
	t.Setenv("TESTING", "1")
	t.Setenv("PORT", "8080")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://app:pw@db:5432/prices", cfg.Database.URL)
	assert.True(t, cfg.Database.UseOracle)
	assert.Equal(t, "/run/wallet", cfg.Database.WalletDir)
	assert.True(t, cfg.Import.AutoImport)
	assert.Equal(t, 7, cfg.Import.Limit)
	assert.Equal(t, time.Hour, cfg.Import.Interval)
	assert.Equal(t, "sekrit", cfg.Auth.SecretKey)
	assert.Equal(t, "svc-key", cfg.Auth.InternalAPIKey)
	assert.True(t, cfg.Testing)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	// Register restores for the keys the .env file will set.
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SECRET_KEY", "")

	dir := t.TempDir()
	env := "DATABASE_URL=postgres://env:file@db/prices\nSECRET_KEY=\"from-file\"\n# comment\n\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o644))
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://env:file@db/prices", cfg.Database.URL)
	assert.Equal(t, "from-file", cfg.Auth.SecretKey, "quotes are stripped")
}

func TestDatabaseURLPrecedence(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		URL:       "postgres://explicit",
		UseOracle: true,
		User:      "app",
		DSN:       "db:5432/prices",
	}}
	assert.Equal(t, "postgres://explicit", cfg.DatabaseURL())
}

func TestDatabaseURLComposesNetworkedDSN(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		UseOracle: true,
		User:      "app",
		Password:  "p@ss/w",
		DSN:       "db.example.com:6432/prices",
		WalletDir: "/run/wallet",
	}}

	u, err := url.Parse(cfg.DatabaseURL())
	require.NoError(t, err)

	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db.example.com:6432", u.Host)
	assert.Equal(t, "/prices", u.Path)
	assert.Equal(t, "app", u.User.Username())
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss/w", pw)

	q := u.Query()
	assert.Equal(t, "verify-full", q.Get("sslmode"))
	assert.Equal(t, filepath.Join("/run/wallet", "root.crt"), q.Get("sslrootcert"))
	assert.Equal(t, filepath.Join("/run/wallet", "client.crt"), q.Get("sslcert"))
	assert.Equal(t, filepath.Join("/run/wallet", "client.key"), q.Get("sslkey"))
}

func TestDatabaseURLMissingParts(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{UseOracle: true, User: "app"}}
	assert.Empty(t, cfg.DatabaseURL(), "no DSN means nothing to compose")

	cfg = &Config{Database: DatabaseConfig{User: "app", DSN: "db:5432/prices"}}
	assert.Empty(t, cfg.DatabaseURL(), "networked compose only applies in oracle mode")
}
