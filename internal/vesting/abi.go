package vesting

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// AddVestedBalanceMethod is the contract entry point invoked per row.
const AddVestedBalanceMethod = "addVestedBalance"

const vestingABIJSON = `[
  {"inputs": [{"name": "account", "type": "string"}, {"name": "amount", "type": "string"}], "name": "addVestedBalance", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"anonymous": false, "inputs": [{"indexed": true, "name": "operator", "type": "bytes32"}, {"indexed": false, "name": "status", "type": "bytes"}], "name": "VestingEvent", "type": "event"}
]`

var (
	vestingABI     abi.ABI
	vestingABIOnce sync.Once
	vestingABIErr  error
)

// ContractABI returns the built-in vesting contract ABI.
func ContractABI() (abi.ABI, error) {
	vestingABIOnce.Do(func() {
		vestingABI, vestingABIErr = abi.JSON(strings.NewReader(vestingABIJSON))
	})
	return vestingABI, vestingABIErr
}

// LoadABI parses the contract interface description at path.
func LoadABI(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("read abi file: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(string(data)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi file: %w", err)
	}
	if _, ok := parsed.Methods[AddVestedBalanceMethod]; !ok {
		return abi.ABI{}, fmt.Errorf("abi is missing the %s method", AddVestedBalanceMethod)
	}
	return parsed, nil
}

// EventID returns the topic0 hash of the confirmation event.
func EventID() common.Hash {
	contractABI, err := ContractABI()
	if err != nil {
		// The built-in ABI is a constant; a parse failure is a programming error.
		panic(err)
	}
	return contractABI.Events["VestingEvent"].ID
}

// MatchesConfirmation reports whether a log is the confirmation event emitted
// by the expected contract. Decoding must only be attempted on logs that pass
// this check; all other concurrent chain events are ignored.
func MatchesConfirmation(log types.Log, contract common.Address) bool {
	if log.Address != contract {
		return false
	}
	if len(log.Topics) == 0 {
		return false
	}
	return log.Topics[0] == EventID()
}
