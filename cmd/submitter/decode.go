package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vestingSubmitter/internal/config"
	"vestingSubmitter/internal/vesting"
)

// runDecode decodes a confirmation event payload offline, without a node.
// Useful for inspecting payloads copied out of an explorer or a log line.
func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Data == "" {
		return fmt.Errorf("event data is required")
	}

	data, err := hexutil.Decode(cfg.Data)
	if err != nil {
		return fmt.Errorf("invalid event data: %w", err)
	}

	outcome, err := vesting.Decode([]common.Hash{vesting.EventID()}, data)
	if err != nil {
		return err
	}

	logger.Info("decoded event",
		zap.String("kind", string(outcome.Kind)),
		zap.String("outcome", outcome.Label),
	)
	fmt.Println(outcome.Label)

	return nil
}
