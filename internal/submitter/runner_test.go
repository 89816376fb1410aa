package submitter

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"vestingSubmitter/internal/chain"
	"vestingSubmitter/internal/model"
	"vestingSubmitter/internal/vesting"
)

const testSignerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var testContract = common.HexToAddress("0x1111111111111111111111111111111111111111")

type txPlan struct {
	sendErr      error
	logs         []*types.Log
	noReceipt    bool
	pendingPolls int
}

type sentTx struct {
	hash common.Hash
	data []byte
	at   time.Time
}

// mockSession records chain calls and serves scripted receipts so tests can
// assert ordering and timing without a node.
type mockSession struct {
	mu       sync.Mutex
	plans    []txPlan
	nextPlan int
	nonce    uint64
	sends    []sentTx
	receipts map[common.Hash]*types.Receipt
	pending  map[common.Hash]int
	resolved map[common.Hash]time.Time
}

func newMockSession(plans []txPlan) *mockSession {
	return &mockSession{
		plans:    plans,
		receipts: make(map[common.Hash]*types.Receipt),
		pending:  make(map[common.Hash]int),
		resolved: make(map[common.Hash]time.Time),
	}
}

func (m *mockSession) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	nonce := m.nonce
	m.nonce++
	return nonce, nil
}

func (m *mockSession) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (m *mockSession) SendTransaction(_ context.Context, tx *types.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nextPlan >= len(m.plans) {
		return fmt.Errorf("unexpected send: no plan left")
	}
	plan := m.plans[m.nextPlan]
	m.nextPlan++

	m.sends = append(m.sends, sentTx{hash: tx.Hash(), data: tx.Data(), at: time.Now()})
	if plan.sendErr != nil {
		return plan.sendErr
	}
	if !plan.noReceipt {
		m.receipts[tx.Hash()] = &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: tx.Hash(), Logs: plan.logs}
		m.pending[tx.Hash()] = plan.pendingPolls
	}
	return nil
}

func (m *mockSession) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if polls := m.pending[txHash]; polls > 0 {
		m.pending[txHash] = polls - 1
		return nil, ethereum.NotFound
	}
	receipt, ok := m.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	if _, seen := m.resolved[txHash]; !seen {
		m.resolved[txHash] = time.Now()
	}
	return receipt, nil
}

func (m *mockSession) snapshot() ([]sentTx, map[common.Hash]time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sends := append([]sentTx(nil), m.sends...)
	resolved := make(map[common.Hash]time.Time, len(m.resolved))
	for hash, at := range m.resolved {
		resolved[hash] = at
	}
	return sends, resolved
}

// sliceSource yields a fixed set of rows and counts pulls.
type sliceSource struct {
	rows      []model.VestingRow
	idx       int
	nextCalls int
}

func (s *sliceSource) Next(_ context.Context) (model.VestingRow, bool, error) {
	s.nextCalls++
	if s.idx >= len(s.rows) {
		return model.VestingRow{}, false, nil
	}
	row := s.rows[s.idx]
	s.idx++
	return row, true, nil
}

type memorySink struct {
	mu      sync.Mutex
	records []model.OutcomeRecord
}

func (s *memorySink) PutOutcome(record model.OutcomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *memorySink) all() []model.OutcomeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.OutcomeRecord(nil), s.records...)
}

func confirmationLog(discriminant, index byte) *types.Log {
	data := make([]byte, 36)
	data[34] = discriminant
	data[35] = index
	return &types.Log{Address: testContract, Topics: []common.Hash{vesting.EventID()}, Data: data}
}

func testRunConfig() RunConfig {
	return RunConfig{
		Contract:       testContract,
		GasLimit:       500_000,
		SubmitDelay:    30 * time.Millisecond,
		ConfirmTimeout: 500 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
		MaxRetries:     1,
		RetryBackoff:   time.Millisecond,
	}
}

func newTestRunner(t *testing.T, cfg RunConfig, session *mockSession, source *sliceSource, sink *memorySink) *Runner {
	t.Helper()
	signer, err := chain.NewSigner(testSignerKey, big.NewInt(1337))
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	contractABI, err := vesting.ContractABI()
	if err != nil {
		t.Fatalf("contract abi: %v", err)
	}
	return NewRunner(cfg, session, signer, source, contractABI, sink, zap.NewNop())
}

func unpackCall(t *testing.T, data []byte) (string, string) {
	t.Helper()
	contractABI, err := vesting.ContractABI()
	if err != nil {
		t.Fatalf("contract abi: %v", err)
	}
	method := contractABI.Methods[vesting.AddVestedBalanceMethod]
	if len(data) < 4 {
		t.Fatalf("call data too short")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack call data: %v", err)
	}
	address, ok := args[0].(string)
	if !ok {
		t.Fatalf("address argument type mismatch")
	}
	amount, ok := args[1].(string)
	if !ok {
		t.Fatalf("amount argument type mismatch")
	}
	return address, amount
}

func TestRunnerProcessesRowsInOrder(t *testing.T) {
	rows := []model.VestingRow{
		{Sequence: "1", Address: "5FaddrOne", Amount: "100"},
		{Sequence: "2", Address: "5GaddrTwo", Amount: "200"},
	}
	session := newMockSession([]txPlan{
		{logs: []*types.Log{confirmationLog(0, 1)}, pendingPolls: 2},
		{logs: []*types.Log{confirmationLog(1, 2)}},
	})
	source := &sliceSource{rows: rows}
	sink := &memorySink{}
	cfg := testRunConfig()

	runner := newTestRunner(t, cfg, session, source, sink)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	sends, resolved := session.snapshot()
	if len(sends) != 2 {
		t.Fatalf("send count mismatch: %d", len(sends))
	}
	for i, row := range rows {
		address, amount := unpackCall(t, sends[i].data)
		if address != row.Address || amount != row.Amount {
			t.Fatalf("call %d mismatch: got (%s, %s) want (%s, %s)", i, address, amount, row.Address, row.Amount)
		}
	}

	// one pull per row plus the end-of-sequence pull
	if source.nextCalls != len(rows)+1 {
		t.Fatalf("pull count mismatch: %d", source.nextCalls)
	}

	records := sink.all()
	if len(records) != 2 {
		t.Fatalf("outcome count mismatch: %d", len(records))
	}
	if records[0].Kind != string(model.OutcomeSuccess) || records[0].Label != "EmitSuccess::VestedBalanceAdded" {
		t.Fatalf("row 1 outcome mismatch: %+v", records[0])
	}
	if records[1].Kind != string(model.OutcomeContractError) || records[1].Label != "EmitError::VestedBalanceNotFound" {
		t.Fatalf("row 2 outcome mismatch: %+v", records[1])
	}

	// the second broadcast must wait out the configured delay after the
	// first row's confirmation resolved
	firstResolved, ok := resolved[sends[0].hash]
	if !ok {
		t.Fatalf("first transaction never resolved")
	}
	if gap := sends[1].at.Sub(firstResolved); gap < cfg.SubmitDelay {
		t.Fatalf("delay not honored: %v < %v", gap, cfg.SubmitDelay)
	}
}

func TestRunnerSkipsFailedRowAndContinues(t *testing.T) {
	rows := []model.VestingRow{
		{Sequence: "1", Address: "5FaddrOne", Amount: "100"},
		{Sequence: "2", Address: "5GaddrTwo", Amount: "200"},
	}
	session := newMockSession([]txPlan{
		{sendErr: fmt.Errorf("node rejected transaction")},
		{logs: []*types.Log{confirmationLog(0, 1)}},
	})
	source := &sliceSource{rows: rows}
	sink := &memorySink{}

	runner := newTestRunner(t, testRunConfig(), session, source, sink)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	records := sink.all()
	if len(records) != 2 {
		t.Fatalf("outcome count mismatch: %d", len(records))
	}
	if records[0].Kind != string(model.OutcomeFailed) || !strings.Contains(records[0].Error, "node rejected") {
		t.Fatalf("failed row record mismatch: %+v", records[0])
	}
	if records[1].Kind != string(model.OutcomeSuccess) {
		t.Fatalf("pipeline did not continue past the failed row: %+v", records[1])
	}
}

func TestRunnerConfirmationTimeout(t *testing.T) {
	session := newMockSession([]txPlan{{noReceipt: true}})
	source := &sliceSource{rows: []model.VestingRow{{Sequence: "1", Address: "5FaddrOne", Amount: "100"}}}
	sink := &memorySink{}

	cfg := testRunConfig()
	cfg.ConfirmTimeout = 50 * time.Millisecond
	cfg.SubmitDelay = time.Millisecond

	runner := newTestRunner(t, cfg, session, source, sink)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	records := sink.all()
	if len(records) != 1 || records[0].Kind != string(model.OutcomeTransportOrTimeout) {
		t.Fatalf("timeout outcome mismatch: %+v", records)
	}
}

func TestRunnerIgnoresUnrelatedEvents(t *testing.T) {
	otherContract := common.HexToAddress("0x2222222222222222222222222222222222222222")
	unrelated := &types.Log{Address: otherContract, Topics: []common.Hash{vesting.EventID()}, Data: make([]byte, 36)}

	session := newMockSession([]txPlan{{logs: []*types.Log{unrelated}}})
	source := &sliceSource{rows: []model.VestingRow{{Sequence: "1", Address: "5FaddrOne", Amount: "100"}}}
	sink := &memorySink{}

	cfg := testRunConfig()
	cfg.SubmitDelay = time.Millisecond

	runner := newTestRunner(t, cfg, session, source, sink)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	records := sink.all()
	if len(records) != 1 || records[0].Kind != string(model.OutcomeTransportOrTimeout) {
		t.Fatalf("expected transport outcome for unmatched events: %+v", records)
	}
}

func TestRunnerDecodeFailureIsRowError(t *testing.T) {
	rows := []model.VestingRow{
		{Sequence: "1", Address: "5FaddrOne", Amount: "100"},
		{Sequence: "2", Address: "5GaddrTwo", Amount: "200"},
	}
	session := newMockSession([]txPlan{
		{logs: []*types.Log{confirmationLog(9, 0)}},
		{logs: []*types.Log{confirmationLog(0, 0)}},
	})
	source := &sliceSource{rows: rows}
	sink := &memorySink{}

	cfg := testRunConfig()
	cfg.SubmitDelay = time.Millisecond

	runner := newTestRunner(t, cfg, session, source, sink)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	records := sink.all()
	if len(records) != 2 {
		t.Fatalf("outcome count mismatch: %d", len(records))
	}
	if records[0].Kind != string(model.OutcomeFailed) || !strings.Contains(records[0].Error, "decode confirmation event") {
		t.Fatalf("decode failure record mismatch: %+v", records[0])
	}
	if records[1].Kind != string(model.OutcomeSuccess) || records[1].Label != "EmitSuccess::VestingSetupSuccess" {
		t.Fatalf("pipeline did not continue past the decode failure: %+v", records[1])
	}
}

func TestRunnerRejectsMissingDependencies(t *testing.T) {
	contractABI, err := vesting.ContractABI()
	if err != nil {
		t.Fatalf("contract abi: %v", err)
	}
	runner := NewRunner(testRunConfig(), nil, nil, nil, contractABI, nil, zap.NewNop())
	if err := runner.Run(context.Background()); err == nil {
		t.Fatalf("expected error for missing session")
	}
}
