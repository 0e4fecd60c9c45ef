package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"database_dsn":                   "search.db",
		"secret_key":                     "my_secret_key",
		"access_token_validity_duration": "10m",
		"kms_mode":                       "vault-transit",
		"master_key_secret":              "master",
		"master_key_salt":                "salt",
		"pbkdf2_iterations":              20000,
		"access_check_batch_size":        8,
		"encrypt_batch_size":             16,
		"transit_address":                "http://vault:8200/v1/transit",
		"transit_token":                  "root",
		"transit_key_name":               "emr",
		"ledger_address":                 "http://bridge:7054",
		"session_ttl":                    "45m",
		"session_cleanup_interval":       "2m",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "search.db", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, 10*time.Minute, cfg.AccessTokenValidityDuration)
		assert.Equal(t, "vault-transit", cfg.KMSMode)
		assert.Equal(t, "master", cfg.MasterKeySecret)
		assert.Equal(t, "salt", cfg.MasterKeySalt)
		assert.Equal(t, 20000, cfg.PBKDF2Iterations)
		assert.Equal(t, 8, cfg.AccessCheckBatchSize)
		assert.Equal(t, 16, cfg.EncryptBatchSize)
		assert.Equal(t, "http://vault:8200/v1/transit", cfg.TransitAddress)
		assert.Equal(t, "root", cfg.TransitToken)
		assert.Equal(t, "emr", cfg.TransitKeyName)
		assert.Equal(t, "http://bridge:7054", cfg.LedgerAddress)
		assert.Equal(t, 45*time.Minute, cfg.SessionTTL)
		assert.Equal(t, 2*time.Minute, cfg.SessionCleanupInterval)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{
			DatabaseDSN:      "search.db",
			SecretKey:        "key",
			KMSMode:          "local",
			PBKDF2Iterations: 10000,
			SessionTTL:       30 * time.Minute,
		}
		parseJson(cfg)

		assert.Equal(t, "search.db", cfg.DatabaseDSN)
		assert.Equal(t, "key", cfg.SecretKey)
		assert.Equal(t, "local", cfg.KMSMode)
		assert.Equal(t, 10000, cfg.PBKDF2Iterations)
		assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}
