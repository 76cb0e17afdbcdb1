package domain

import "time"

type TransactionType string

const (
	TransactionTypePayment       TransactionType = "PAYMENT"
	TransactionTypeEarning       TransactionType = "EARNING"
	TransactionTypeRefund        TransactionType = "REFUND"
	TransactionTypeEscrowLock    TransactionType = "ESCROW_LOCK"
	TransactionTypeEscrowRelease TransactionType = "ESCROW_RELEASE"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Transaction is a settlement record in the escrow ledger. Every COMPLETED
// job produces exactly one PAYMENT (debiting the consumer) and one EARNING
// (crediting the provider) with the same job id and equal amount.
type Transaction struct {
	ID              string            `json:"id"`
	OwnerID         string            `json:"owner_id"`
	JobID           string            `json:"job_id,omitempty"` // empty for non-job transactions
	Type            TransactionType   `json:"type"`
	Amount          float64           `json:"amount"`
	Status          TransactionStatus `json:"status"`
	LedgerReference string            `json:"ledger_reference,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	CompletedAt     time.Time         `json:"completed_at,omitempty"`
}
