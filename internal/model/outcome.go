package model

// OutcomeKind classifies the result of one row's on-chain cycle.
type OutcomeKind string

const (
	// OutcomeSuccess means the confirmation event decoded to a success label.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeContractError means the confirmation event decoded to a
	// contract-side error label.
	OutcomeContractError OutcomeKind = "contract_error"
	// OutcomeTransportOrTimeout means no matching confirmation event was
	// observed before the wait ended.
	OutcomeTransportOrTimeout OutcomeKind = "transport_or_timeout"
	// OutcomeFailed means the row never reached confirmation: build, sign,
	// broadcast, or decoding the matched event failed.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome is the decoded result of one row's submission.
type Outcome struct {
	Kind  OutcomeKind
	Label string
}

// OutcomeRecord is the persisted form of a row's outcome.
type OutcomeRecord struct {
	Sequence    string `json:"sequence"`
	Address     string `json:"address"`
	Amount      string `json:"amount"`
	TxHash      string `json:"tx_hash,omitempty"`
	Kind        string `json:"kind"`
	Label       string `json:"label,omitempty"`
	Error       string `json:"error,omitempty"`
	SubmittedAt string `json:"submitted_at"`
}
