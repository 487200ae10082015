package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: 9090
  allowed_origins: ["https://ridepool.example.com"]
database:
  host: db
  user: ridepool
  password: from-file
  dbname: ridepool
redis:
  url: redis://localhost:6379/0
ratelimit:
  requests: 5
  window: 30s
jwt:
  secret: file-secret
google:
  client_id: ridepool.apps.googleusercontent.com
  hosted_domain: hyderabad.bits-pilani.ac.in
log:
  level: debug
`

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"https://ridepool.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, 5, cfg.RateLimit.Requests)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, "file-secret", cfg.JWT.Secret)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "ridepool.apps.googleusercontent.com", cfg.Google.ClientID)
	assert.Equal(t, "hyderabad.bits-pilani.ac.in", cfg.Google.HostedDomain)
	assert.Equal(t, "host=db port=5432 user=ridepool password=from-file dbname=ridepool sslmode=disable", cfg.Database.DSN())
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv(EnvJWTSecret, "env-secret")
	t.Setenv(EnvDBPassword, "env-password")
	t.Setenv(EnvAWSSecretKey, "env-aws")
	t.Setenv(EnvGoogleClient, "env-client")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.Equal(t, "env-password", cfg.Database.Password)
	assert.Equal(t, "env-aws", cfg.AWS.SecretKey)
	assert.Equal(t, "env-client", cfg.Google.ClientID)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv(EnvConfigPath, writeConfig(t, sampleConfig))

	cfg, err := Load("does-not-exist.yaml")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(EnvRedisURL+"=redis://cache:6379/1\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv(EnvRedisURL) })

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
}

func TestLoad_Errors(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not a map"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "database:\n  in_memory: true\n"))
	assert.ErrorContains(t, err, "jwt secret")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := defaults()
		cfg.JWT.Secret = "s"
		cfg.Database.DBName = "ridepool"
		cfg.Google.ClientID = "client"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"google client", func(c *Config) { c.Google.ClientID = "" }},
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"dbname", func(c *Config) { c.Database.DBName = "" }},
		{"ratelimit", func(c *Config) { c.Redis.URL = "redis://x"; c.RateLimit.Requests = 0 }},
		{"apns", func(c *Config) { c.APNs.KeyPath = "key.p8" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := valid()
	cfg.Database.DBName = ""
	cfg.Database.InMemory = true
	assert.NoError(t, cfg.Validate())
}
