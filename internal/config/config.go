package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL          string
	ContractAddress string
	ABIPath         string
	SignerKey       string
	Source          string
	GasLimit        uint64
	SubmitDelay     time.Duration
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	Out             string
	PGDSN           string
	LogLevel        string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SUBMITTER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("gas-limit", uint64(500_000))
	v.SetDefault("submit-delay", 20*time.Second)
	v.SetDefault("confirm-timeout", 5*time.Minute)
	v.SetDefault("poll-interval", 3*time.Second)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("out", "./data/outcomes.jsonl")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:          v.GetString("rpc"),
		ContractAddress: v.GetString("contract"),
		ABIPath:         v.GetString("abi"),
		SignerKey:       v.GetString("signer-key"),
		Source:          v.GetString("source"),
		GasLimit:        v.GetUint64("gas-limit"),
		SubmitDelay:     v.GetDuration("submit-delay"),
		ConfirmTimeout:  v.GetDuration("confirm-timeout"),
		PollInterval:    v.GetDuration("poll-interval"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		Out:             v.GetString("out"),
		PGDSN:           v.GetString("pg-dsn"),
		LogLevel:        v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the values that must be present before any row is
// processed. A failure here is fatal to the whole run.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.ContractAddress == "" {
		return fmt.Errorf("contract address is required")
	}
	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("invalid contract address: %s", c.ContractAddress)
	}
	if c.ABIPath == "" {
		return fmt.Errorf("abi path is required")
	}
	if c.SignerKey == "" {
		return fmt.Errorf("signer key is required")
	}
	if c.Source == "" {
		return fmt.Errorf("source path is required")
	}
	if c.GasLimit == 0 {
		return fmt.Errorf("gas limit must be greater than zero")
	}
	return nil
}
