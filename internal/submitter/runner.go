package submitter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"vestingSubmitter/internal/model"
	"vestingSubmitter/internal/storage"
	"vestingSubmitter/internal/vesting"
)

// Session is the chain access the runner needs. *chain.Client satisfies it;
// tests substitute a recorder.
type Session interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Signer signs the per-row transactions.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// RowSource yields vesting rows one at a time. ok is false at
// end-of-sequence.
type RowSource interface {
	Next(ctx context.Context) (model.VestingRow, bool, error)
}

// RunConfig holds runtime settings for the submitter.
type RunConfig struct {
	Contract       common.Address
	GasLimit       uint64
	SubmitDelay    time.Duration
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
}

// Runner drives vesting rows through the submit-confirm-decode cycle, one
// row fully resolved before the next is pulled.
type Runner struct {
	cfg      RunConfig
	session  Session
	signer   Signer
	source   RowSource
	contract abi.ABI
	outcomes storage.Storage
	logger   *zap.Logger
}

// NewRunner builds a Runner with its dependencies. The outcome sink may be
// nil; the run then only logs.
func NewRunner(cfg RunConfig, session Session, signer Signer, source RowSource, contractABI abi.ABI, outcomes storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		session:  session,
		signer:   signer,
		source:   source,
		contract: contractABI,
		outcomes: outcomes,
		logger:   logger,
	}
}

// Run executes the submission loop until the source signals end-of-sequence
// or the context is cancelled. Per-row failures are logged and skipped; only
// source failures end the run early.
func (r *Runner) Run(ctx context.Context) error {
	if r.session == nil {
		return fmt.Errorf("chain session is nil")
	}
	if r.signer == nil {
		return fmt.Errorf("signer is nil")
	}
	if r.source == nil {
		return fmt.Errorf("row source is nil")
	}
	if r.cfg.GasLimit == 0 {
		return fmt.Errorf("gas limit must be greater than zero")
	}
	if r.cfg.ConfirmTimeout <= 0 {
		return fmt.Errorf("confirmation timeout must be greater than zero")
	}
	if r.cfg.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be greater than zero")
	}

	var submitted, succeeded, contractErrors, failed int

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		row, ok, err := r.source.Next(ctx)
		if err != nil {
			return fmt.Errorf("read next row: %w", err)
		}
		if !ok {
			r.logger.Info("all rows processed",
				zap.Int("submitted", submitted),
				zap.Int("succeeded", succeeded),
				zap.Int("contract_errors", contractErrors),
				zap.Int("failed", failed),
			)
			return nil
		}

		submitted++
		outcome := r.processRow(ctx, row)
		switch outcome.Kind {
		case model.OutcomeSuccess:
			succeeded++
		case model.OutcomeContractError:
			contractErrors++
		default:
			failed++
		}

		if err := r.sleep(ctx, r.cfg.SubmitDelay); err != nil {
			return err
		}
	}
}

// processRow resolves one row end to end and records its outcome. It never
// returns an error: failures are contained so the pipeline moves on.
func (r *Runner) processRow(ctx context.Context, row model.VestingRow) model.Outcome {
	submittedAt := time.Now().UTC()
	fields := []zap.Field{
		zap.String("seq", row.Sequence),
		zap.String("address", row.Address),
		zap.String("balance", row.Amount),
	}

	r.logger.Info("submit row", fields...)

	outcome, txHash, err := r.submitRow(ctx, row)
	record := model.OutcomeRecord{
		Sequence:    row.Sequence,
		Address:     row.Address,
		Amount:      row.Amount,
		SubmittedAt: submittedAt.Format(time.RFC3339Nano),
	}
	if txHash != (common.Hash{}) {
		record.TxHash = txHash.Hex()
		fields = append(fields, zap.String("tx_hash", txHash.Hex()))
	}

	if err != nil {
		outcome = model.Outcome{Kind: model.OutcomeFailed}
		record.Kind = string(model.OutcomeFailed)
		record.Error = err.Error()
		r.logger.Error("row submission failed", append(fields, zap.Error(err))...)
	} else {
		record.Kind = string(outcome.Kind)
		record.Label = outcome.Label
		r.logger.Info("row resolved", append(fields,
			zap.String("kind", string(outcome.Kind)),
			zap.String("outcome", outcome.Label),
		)...)
	}

	if r.outcomes != nil {
		if err := r.outcomes.PutOutcome(record); err != nil {
			r.logger.Warn("store outcome failed", append(fields, zap.Error(err))...)
		}
	}

	return outcome
}

// submitRow builds, signs, and broadcasts the row's transaction, then awaits
// its confirmation event.
func (r *Runner) submitRow(ctx context.Context, row model.VestingRow) (model.Outcome, common.Hash, error) {
	callData, err := r.contract.Pack(vesting.AddVestedBalanceMethod, row.Address, row.Amount)
	if err != nil {
		return model.Outcome{}, common.Hash{}, fmt.Errorf("pack call data: %w", err)
	}

	nonce, err := r.session.PendingNonceAt(ctx, r.signer.Address())
	if err != nil {
		return model.Outcome{}, common.Hash{}, fmt.Errorf("fetch nonce: %w", err)
	}

	gasPrice, err := r.session.SuggestGasPrice(ctx)
	if err != nil {
		return model.Outcome{}, common.Hash{}, fmt.Errorf("fetch gas price: %w", err)
	}

	contract := r.cfg.Contract
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &contract,
		Gas:      r.cfg.GasLimit,
		GasPrice: gasPrice,
		Data:     callData,
	})

	signed, err := r.signer.SignTx(tx)
	if err != nil {
		return model.Outcome{}, common.Hash{}, err
	}

	if err := r.session.SendTransaction(ctx, signed); err != nil {
		return model.Outcome{}, signed.Hash(), fmt.Errorf("broadcast transaction: %w", err)
	}

	outcome, err := r.awaitConfirmation(ctx, signed.Hash())
	return outcome, signed.Hash(), err
}

// awaitConfirmation polls for the transaction receipt and decodes the first
// matching confirmation event. The wait is bounded by the configured timeout;
// expiry or a receipt without a matching event resolves the row as
// transport-or-timeout rather than suspending forever.
func (r *Runner) awaitConfirmation(ctx context.Context, txHash common.Hash) (model.Outcome, error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := r.receiptWithRetry(waitCtx, txHash)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			r.logger.Warn("receipt lookup failed", zap.String("tx_hash", txHash.Hex()), zap.Error(err))
			return model.Outcome{Kind: model.OutcomeTransportOrTimeout}, nil
		}

		if receipt != nil {
			for _, eventLog := range receipt.Logs {
				if eventLog == nil || !vesting.MatchesConfirmation(*eventLog, r.cfg.Contract) {
					continue
				}
				outcome, decodeErr := vesting.Decode(eventLog.Topics, eventLog.Data)
				if decodeErr != nil {
					return model.Outcome{}, fmt.Errorf("decode confirmation event: %w", decodeErr)
				}
				return outcome, nil
			}
			// Included without a confirmation event; nothing further will
			// arrive for this transaction.
			return model.Outcome{Kind: model.OutcomeTransportOrTimeout}, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return model.Outcome{}, ctx.Err()
			}
			r.logger.Warn("confirmation wait timed out", zap.String("tx_hash", txHash.Hex()))
			return model.Outcome{Kind: model.OutcomeTransportOrTimeout}, nil
		case <-ticker.C:
		}
	}
}

// receiptWithRetry fetches the receipt, treating a still-pending transaction
// as a nil receipt rather than an error.
func (r *Runner) receiptWithRetry(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		found, err := r.session.TransactionReceipt(ctx, txHash)
		if errors.Is(err, ethereum.NotFound) {
			receipt = nil
			return nil
		}
		if err != nil {
			return err
		}
		receipt = found
		return nil
	})
	return receipt, err
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
