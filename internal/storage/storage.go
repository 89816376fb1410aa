package storage

import "vestingSubmitter/internal/model"

// Storage defines a sink for per-row submission outcomes.
type Storage interface {
	PutOutcome(record model.OutcomeRecord) error
}
