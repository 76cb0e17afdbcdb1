package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	"github.com/iavendas62-collab/qubix-sub003/internal/core/port"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type transactionRepository struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

// NewTransactionRepository creates a new postgres settlement record store
func NewTransactionRepository(db *pgxpool.Pool, log *zap.Logger) port.TransactionRepository {
	return &transactionRepository{
		db:  db,
		log: log,
	}
}

// Save records a settlement transaction. The partial unique index on
// (job_id, type) makes retried settlements idempotent for the once-per-job
// types: a duplicate PAYMENT, EARNING or ESCROW_RELEASE insert is a no-op,
// not an error. ESCROW_LOCK and REFUND rows are appended unconditionally,
// one per assignment cycle.
func (r *transactionRepository) Save(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, owner_id, job_id, type, amount, status, ledger_reference, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id, type)
			WHERE job_id <> '' AND type IN ('PAYMENT', 'EARNING', 'ESCROW_RELEASE')
			DO NOTHING
	`
	_, err := r.db.Exec(ctx, query,
		tx.ID, tx.OwnerID, tx.JobID, tx.Type, tx.Amount, tx.Status,
		tx.LedgerReference, tx.CreatedAt, nullableTime(tx.CompletedAt))

	if err != nil {
		r.log.Error("Failed to save transaction",
			zap.String("transaction_id", tx.ID),
			zap.String("job_id", tx.JobID),
			zap.Error(err))
		return err
	}
	return nil
}

func (r *transactionRepository) MarkCompleted(ctx context.Context, id, ledgerReference string) error {
	query := `
		UPDATE transactions SET status = $1, ledger_reference = $2, completed_at = $3
		WHERE id = $4 AND status = $5
	`
	_, err := r.db.Exec(ctx, query,
		domain.TransactionStatusCompleted, ledgerReference, time.Now(),
		id, domain.TransactionStatusPending)
	return err
}

func (r *transactionRepository) ListByJob(ctx context.Context, jobID string) ([]*domain.Transaction, error) {
	query := `
		SELECT id, owner_id, job_id, type, amount, status, ledger_reference, created_at, completed_at
		FROM transactions WHERE job_id = $1 ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		var (
			tx     domain.Transaction
			doneAt sql.NullTime
		)
		if err := rows.Scan(&tx.ID, &tx.OwnerID, &tx.JobID, &tx.Type, &tx.Amount,
			&tx.Status, &tx.LedgerReference, &tx.CreatedAt, &doneAt); err != nil {
			return nil, err
		}
		tx.CompletedAt = doneAt.Time
		txs = append(txs, &tx)
	}
	return txs, rows.Err()
}
