package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"vestingSubmitter/internal/chain"
	"vestingSubmitter/internal/config"
	"vestingSubmitter/internal/source"
	"vestingSubmitter/internal/storage"
	"vestingSubmitter/internal/storage/postgres"
	"vestingSubmitter/internal/submitter"
	"vestingSubmitter/internal/vesting"
)

func main() {
	root := &cobra.Command{
		Use:          "submitter",
		Short:        "Vesting batch transaction submitter",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the batch submitter",
		RunE:  runSubmitter,
	}

	runCmd.Flags().String("rpc", "", "chain RPC URL")
	runCmd.Flags().String("contract", "", "deployed vesting contract address")
	runCmd.Flags().String("abi", "", "contract interface description file")
	runCmd.Flags().String("signer-key", "", "hex-encoded signer private key")
	runCmd.Flags().String("source", "", "CSV file with row number, address, balance columns")
	runCmd.Flags().Uint64("gas-limit", 500_000, "fixed gas budget per transaction")
	runCmd.Flags().Duration("submit-delay", 20*time.Second, "delay between rows")
	runCmd.Flags().Duration("confirm-timeout", 5*time.Minute, "bound on the confirmation wait per row")
	runCmd.Flags().Duration("poll-interval", 3*time.Second, "receipt poll interval")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts for chain reads")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("out", "./data/outcomes.jsonl", "outcome JSONL path")
	runCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for outcomes")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a hex-encoded confirmation event payload",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("data", "", "hex-encoded event payload (topic echo included)")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSubmitter(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	contractABI, err := vesting.LoadABI(cfg.ABIPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	signer, err := chain.NewSigner(cfg.SignerKey, chainID)
	if err != nil {
		return err
	}

	rowSource, err := source.NewCSVSource(cfg.Source, logger)
	if err != nil {
		return err
	}
	defer rowSource.Close()

	var outcomes storage.Storage
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		outcomes = store
	} else {
		outcomes = storage.NewJsonlStorage(cfg.Out)
	}

	runner := submitter.NewRunner(submitter.RunConfig{
		Contract:       common.HexToAddress(cfg.ContractAddress),
		GasLimit:       cfg.GasLimit,
		SubmitDelay:    cfg.SubmitDelay,
		ConfirmTimeout: cfg.ConfirmTimeout,
		PollInterval:   cfg.PollInterval,
		MaxRetries:     cfg.MaxRetries,
		RetryBackoff:   cfg.RetryBackoff,
	}, chainClient, signer, rowSource, contractABI, outcomes, logger)

	logger.Info("submitter start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("chain_id", chainID.String()),
		zap.String("contract", cfg.ContractAddress),
		zap.String("signer", signer.Address().Hex()),
		zap.String("source", cfg.Source),
		zap.Uint64("gas_limit", cfg.GasLimit),
		zap.Duration("submit_delay", cfg.SubmitDelay),
		zap.Duration("confirm_timeout", cfg.ConfirmTimeout),
	)

	return runner.Run(ctx)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
