package vesting

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"vestingSubmitter/internal/model"
)

var (
	// ErrInvalidEventFormat means the event is missing its subject topic or
	// its raw payload.
	ErrInvalidEventFormat = errors.New("invalid vesting event format")
	// ErrInvalidEventPayload means the payload bytes do not encode a known
	// outcome.
	ErrInvalidEventPayload = errors.New("invalid vesting event payload")
)

// successLabels and errorLabels mirror the contract's outcome enums; the
// payload index byte selects a position, so order matters.
var successLabels = [...]string{
	"VestingSetupSuccess",
	"VestedBalanceAdded",
	"VestedBalanceRemoved",
	"VestedBalanceScheduleThawed",
	"VestedBalanceScheduleRequested",
	"VestedBalanceScheduleApproved",
}

var errorLabels = [...]string{
	"BadOrigin",
	"VestedBalanceAlreadyExist",
	"VestedBalanceNotFound",
	"VestedBalanceScheduleNotFound",
	"VestedBalanceScheduleNotLiquid",
	"VestedBalanceScheduleNotRequested",
}

// topicEchoLength is the size of the topic copy that prefixes the payload.
const topicEchoLength = 32

// Decode maps a confirmation event's bytes to an outcome. The payload begins
// with a 32-byte echo of the subject topic; of the remainder, byte 2 is the
// discriminant (0 success family, 1 error family) and byte 3 indexes the
// corresponding label table. Pure function, no I/O.
func Decode(topics []common.Hash, data []byte) (model.Outcome, error) {
	if len(topics) == 0 || len(data) == 0 {
		return model.Outcome{}, ErrInvalidEventFormat
	}
	if len(data) < topicEchoLength+4 {
		return model.Outcome{}, ErrInvalidEventPayload
	}

	payload := data[topicEchoLength:]
	discriminant := payload[2]
	index := int(payload[3])

	switch discriminant {
	case 0:
		if index >= len(successLabels) {
			return model.Outcome{}, ErrInvalidEventPayload
		}
		return model.Outcome{
			Kind:  model.OutcomeSuccess,
			Label: "EmitSuccess::" + successLabels[index],
		}, nil
	case 1:
		if index >= len(errorLabels) {
			return model.Outcome{}, ErrInvalidEventPayload
		}
		return model.Outcome{
			Kind:  model.OutcomeContractError,
			Label: "EmitError::" + errorLabels[index],
		}, nil
	default:
		return model.Outcome{}, ErrInvalidEventPayload
	}
}
