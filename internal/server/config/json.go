package config

import (
	"encoding/json"
	"os"

	"github.com/ztmed/emrsearch/internal/flagx"
	"github.com/ztmed/emrsearch/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "30m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files; after unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	KMSMode                     string         `json:"kms_mode"`
	MasterKeySecret             string         `json:"master_key_secret"`
	MasterKeySalt               string         `json:"master_key_salt"`
	PBKDF2Iterations            int            `json:"pbkdf2_iterations"`
	AccessCheckBatchSize        int            `json:"access_check_batch_size"`
	EncryptBatchSize            int            `json:"encrypt_batch_size"`
	TransitAddress              string         `json:"transit_address"`
	TransitToken                string         `json:"transit_token"`
	TransitKeyName              string         `json:"transit_key_name"`
	LedgerAddress               string         `json:"ledger_address"`
	SessionTTL                  timex.Duration `json:"session_ttl"`
	SessionCleanupInterval      timex.Duration `json:"session_cleanup_interval"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path comes from the -c or -config command-line flags; when
// neither is set, no file is loaded and the Config is left untouched. If the
// file cannot be read or contains invalid JSON, the function panics: a
// requested-but-broken configuration is a startup failure, not something to
// silently skip.
func parseJson(config *Config) {
	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.KMSMode != "" {
		config.KMSMode = c.KMSMode
	}
	if c.MasterKeySecret != "" {
		config.MasterKeySecret = c.MasterKeySecret
	}
	if c.MasterKeySalt != "" {
		config.MasterKeySalt = c.MasterKeySalt
	}
	if c.PBKDF2Iterations != 0 {
		config.PBKDF2Iterations = c.PBKDF2Iterations
	}
	if c.AccessCheckBatchSize != 0 {
		config.AccessCheckBatchSize = c.AccessCheckBatchSize
	}
	if c.EncryptBatchSize != 0 {
		config.EncryptBatchSize = c.EncryptBatchSize
	}
	if c.TransitAddress != "" {
		config.TransitAddress = c.TransitAddress
	}
	if c.TransitToken != "" {
		config.TransitToken = c.TransitToken
	}
	if c.TransitKeyName != "" {
		config.TransitKeyName = c.TransitKeyName
	}
	if c.LedgerAddress != "" {
		config.LedgerAddress = c.LedgerAddress
	}
	if c.SessionTTL.Duration != 0 {
		config.SessionTTL = c.SessionTTL.Duration
	}
	if c.SessionCleanupInterval.Duration != 0 {
		config.SessionCleanupInterval = c.SessionCleanupInterval.Duration
	}
}
