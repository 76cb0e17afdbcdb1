package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
)

// In-memory collaborators mirroring the conditional-update semantics of
// the real adapters.

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]domain.Job
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]domain.Job)}
}

func (r *memJobRepo) Save(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *memJobRepo) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	copied := job
	return &copied, nil
}

func (r *memJobRepo) ListByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Job
	for _, job := range r.jobs {
		if job.Status == status {
			copied := job
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memJobRepo) UpdateIf(ctx context.Context, job *domain.Job, expectedStatus domain.JobStatus, expectedProgress int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[job.ID]
	if !ok {
		return false, fmt.Errorf("%w: job %s", domain.ErrNotFound, job.ID)
	}
	if stored.Status != expectedStatus || stored.Progress != expectedProgress {
		return false, nil
	}
	r.jobs[job.ID] = *job
	return true, nil
}

type memProviderRepo struct {
	mu        sync.Mutex
	providers map[string]domain.Provider
}

func newMemProviderRepo() *memProviderRepo {
	return &memProviderRepo{providers: make(map[string]domain.Provider)}
}

func (r *memProviderRepo) Save(ctx context.Context, provider *domain.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID] = *provider
	return nil
}

func (r *memProviderRepo) GetByID(ctx context.Context, id string) (*domain.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: provider %s", domain.ErrNotFound, id)
	}
	copied := p
	return &copied, nil
}

func (r *memProviderRepo) Acquire(ctx context.Context, providerID, jobID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[providerID]
	if !ok {
		return false, fmt.Errorf("%w: provider %s", domain.ErrNotFound, providerID)
	}
	if !p.Available {
		return false, nil
	}
	p.Available = false
	p.CurrentJobID = jobID
	r.providers[providerID] = p
	return true, nil
}

func (r *memProviderRepo) Release(ctx context.Context, providerID string, earnings float64, completed, failed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[providerID]
	if !ok {
		return fmt.Errorf("%w: provider %s", domain.ErrNotFound, providerID)
	}
	p.Available = true
	p.CurrentJobID = ""
	if completed {
		p.TotalJobs++
	}
	p.TotalEarnings += earnings
	if failed {
		p.TotalFailures++
	}
	r.providers[providerID] = p
	return nil
}

type memTransactionRepo struct {
	mu  sync.Mutex
	txs []domain.Transaction
}

func newMemTransactionRepo() *memTransactionRepo {
	return &memTransactionRepo{}
}

func (r *memTransactionRepo) Save(ctx context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// One settlement per (job, type) for the once-per-job types, duplicates
	// ignored like the partial unique index in the real store. Escrow locks
	// and refunds append freely, one per assignment cycle.
	oncePerJob := tx.Type == domain.TransactionTypePayment ||
		tx.Type == domain.TransactionTypeEarning ||
		tx.Type == domain.TransactionTypeEscrowRelease
	if tx.JobID != "" && oncePerJob {
		for _, existing := range r.txs {
			if existing.JobID == tx.JobID && existing.Type == tx.Type {
				return nil
			}
		}
	}
	r.txs = append(r.txs, *tx)
	return nil
}

func (r *memTransactionRepo) MarkCompleted(ctx context.Context, id, ledgerReference string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.txs {
		if r.txs[i].ID == id && r.txs[i].Status == domain.TransactionStatusPending {
			r.txs[i].Status = domain.TransactionStatusCompleted
			r.txs[i].LedgerReference = ledgerReference
			return nil
		}
	}
	return fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
}

func (r *memTransactionRepo) ListByJob(ctx context.Context, jobID string) ([]*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Transaction
	for i := range r.txs {
		if r.txs[i].JobID == jobID {
			copied := r.txs[i]
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memTransactionRepo) byType(jobID string, txType domain.TransactionType) []domain.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Transaction
	for _, tx := range r.txs {
		if tx.JobID == jobID && tx.Type == txType {
			out = append(out, tx)
		}
	}
	return out
}

type fakeLedger struct {
	mu        sync.Mutex
	balances  map[string]float64
	transfers int
	fail      bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[string]float64)}
}

func (l *fakeLedger) GetBalance(ctx context.Context, identity string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return 0, fmt.Errorf("%w: ledger offline", domain.ErrUpstreamUnavailable)
	}
	return l.balances[identity], nil
}

func (l *fakeLedger) Transfer(ctx context.Context, from, to string, amount float64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return "", fmt.Errorf("%w: ledger offline", domain.ErrUpstreamUnavailable)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	l.transfers++
	return fmt.Sprintf("ref-%d", l.transfers), nil
}

func (l *fakeLedger) ConfirmTransfer(ctx context.Context, reference string) (bool, error) {
	return !l.fail, nil
}

type memPublisher struct {
	mu      sync.Mutex
	events  []domain.Event
	fail    bool
	failFor string // provider whose events are rejected
}

func (p *memPublisher) Publish(ctx context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail || (p.failFor != "" && event.ProviderID == p.failFor) {
		return fmt.Errorf("broker unreachable")
	}
	p.events = append(p.events, event)
	return nil
}

func (p *memPublisher) byType(eventType domain.EventType) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
