package model

// VestingRow is one unit of work read from the row source.
type VestingRow struct {
	// Sequence is the source's row identifier, used for logging and
	// correlation only. It is not validated for uniqueness or order.
	Sequence string `json:"sequence"`
	// Address is the vested balance holder, passed to the contract as-is.
	Address string `json:"address"`
	// Amount is the decimal-string balance. The contract is the source of
	// truth for validity; no numeric parsing happens locally.
	Amount string `json:"amount"`
}
