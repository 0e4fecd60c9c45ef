package config

import (
	"flag"
	"os"
	"time"

	"github.com/ztmed/emrsearch/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-m string   KMS mode ("local" | "vault-transit")
//	-k string   master key secret
//	-i int      PBKDF2 iteration count
//	-a int      access-check batch size
//	-e int      result-encryption batch size
//	-x string   transit service address
//	-o string   transit service token
//	-n string   transit key name
//	-l string   ledger oracle address
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components. Duration
// flags are accepted as integers in minutes.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-s", "-t", "-m", "-k", "-i", "-a", "-e", "-x", "-o", "-n", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "JWT secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")

	fs.StringVar(&config.KMSMode, "m", config.KMSMode, "KMS mode (local | vault-transit)")
	fs.StringVar(&config.MasterKeySecret, "k", config.MasterKeySecret, "master key secret")
	fs.IntVar(&config.PBKDF2Iterations, "i", config.PBKDF2Iterations, "PBKDF2 iteration count")
	fs.IntVar(&config.AccessCheckBatchSize, "a", config.AccessCheckBatchSize, "access check batch size")
	fs.IntVar(&config.EncryptBatchSize, "e", config.EncryptBatchSize, "result encryption batch size")
	fs.StringVar(&config.TransitAddress, "x", config.TransitAddress, "transit KMS address")
	fs.StringVar(&config.TransitToken, "o", config.TransitToken, "transit KMS token")
	fs.StringVar(&config.TransitKeyName, "n", config.TransitKeyName, "transit key name")
	fs.StringVar(&config.LedgerAddress, "l", config.LedgerAddress, "ledger oracle address")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
}
