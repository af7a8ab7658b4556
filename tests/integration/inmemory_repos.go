package integration

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Balance Repo ---

func balanceKey(tenantID, accountID uuid.UUID, currency string) string {
	return tenantID.String() + "|" + accountID.String() + "|" + currency
}

type inMemoryBalanceRepo struct {
	mu       sync.RWMutex
	balances map[string]*domain.Balance
}

func newInMemoryBalanceRepo() *inMemoryBalanceRepo {
	return &inMemoryBalanceRepo{balances: make(map[string]*domain.Balance)}
}

func (r *inMemoryBalanceRepo) Get(ctx context.Context, tenantID, accountID uuid.UUID, currency string) (*domain.Balance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.balances[balanceKey(tenantID, accountID, currency)]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r *inMemoryBalanceRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, tenantID, accountID uuid.UUID, currency string) (*domain.Balance, error) {
	// The locking transactor serializes whole transactions, so a plain
	// read stands in for SELECT ... FOR UPDATE.
	return r.Get(ctx, tenantID, accountID, currency)
}

func (r *inMemoryBalanceRepo) EnsureRow(ctx context.Context, tx pgx.Tx, tenantID, accountID uuid.UUID, currency string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := balanceKey(tenantID, accountID, currency)
	if _, ok := r.balances[key]; ok {
		return nil
	}
	now := time.Now().UTC()
	r.balances[key] = &domain.Balance{
		TenantID:  tenantID,
		AccountID: accountID,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (r *inMemoryBalanceRepo) Update(ctx context.Context, tx pgx.Tx, b *domain.Balance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := balanceKey(b.TenantID, b.AccountID, b.Currency)
	if _, ok := r.balances[key]; !ok {
		return fmt.Errorf("balance row not found")
	}
	cp := *b
	cp.UpdatedAt = time.Now().UTC()
	r.balances[key] = &cp
	return nil
}

// --- In-Memory Ledger Repo ---

type inMemoryLedgerRepo struct {
	mu      sync.RWMutex
	entries []domain.LedgerEntry
	byIdem  map[string]int
	byEvent map[string]int
}

func newInMemoryLedgerRepo() *inMemoryLedgerRepo {
	return &inMemoryLedgerRepo{
		byIdem:  make(map[string]int),
		byEvent: make(map[string]int),
	}
}

func idemIndexKey(tenantID, accountID uuid.UUID, typ domain.EntryType, key string) string {
	return strings.Join([]string{tenantID.String(), accountID.String(), string(typ), key}, "|")
}

func (r *inMemoryLedgerRepo) Insert(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idemKey, eventKey string
	if e.IdempotencyKey != nil {
		idemKey = idemIndexKey(e.TenantID, e.AccountID, e.Type, *e.IdempotencyKey)
		if _, dup := r.byIdem[idemKey]; dup {
			return ports.ErrDuplicateEntry
		}
	}
	if e.Provider != nil && e.ProviderEventID != nil {
		eventKey = *e.Provider + "|" + *e.ProviderEventID
		if _, dup := r.byEvent[eventKey]; dup {
			return ports.ErrDuplicateEntry
		}
	}

	idx := len(r.entries)
	r.entries = append(r.entries, *e)
	if idemKey != "" {
		r.byIdem[idemKey] = idx
	}
	if eventKey != "" {
		r.byEvent[eventKey] = idx
	}
	return nil
}

func (r *inMemoryLedgerRepo) GetByIdempotencyKey(ctx context.Context, tenantID, accountID uuid.UUID, typ domain.EntryType, key string) (*domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byIdem[idemIndexKey(tenantID, accountID, typ, key)]
	if !ok {
		return nil, nil
	}
	cp := r.entries[idx]
	return &cp, nil
}

func (r *inMemoryLedgerRepo) GetByProviderEvent(ctx context.Context, provider, providerEventID string) (*domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byEvent[provider+"|"+providerEventID]
	if !ok {
		return nil, nil
	}
	cp := r.entries[idx]
	return &cp, nil
}

func (r *inMemoryLedgerRepo) ListByProviderWindow(ctx context.Context, provider string, start, end time.Time) ([]domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.LedgerEntry
	for _, e := range r.entries {
		if e.Provider == nil || *e.Provider != provider || e.ProviderEventID == nil {
			continue
		}
		if e.CreatedAt.Before(start) || !e.CreatedAt.Before(end) {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

func (r *inMemoryLedgerRepo) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu           sync.RWMutex
	transactions map[uuid.UUID]*domain.Transaction
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{transactions: make(map[uuid.UUID]*domain.Transaction)}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.transactions {
		if existing.TenantID == t.TenantID && existing.Type == t.Type && existing.IdempotencyKey == t.IdempotencyKey {
			return ports.ErrDuplicateEntry
		}
	}
	cp := *t
	r.transactions[t.ID] = &cp
	return nil
}

func (r *inMemoryTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transactions[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *inMemoryTransactionRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryTransactionRepo) GetByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, typ domain.TxType, key string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.transactions {
		if t.TenantID == tenantID && t.Type == typ && t.IdempotencyKey == key {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryTransactionRepo) UpdateState(ctx context.Context, tx pgx.Tx, id uuid.UUID, state domain.TxState, attempts []domain.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return fmt.Errorf("transaction not found")
	}
	t.State = state
	t.Attempts = append([]domain.Attempt(nil), attempts...)
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// --- In-Memory Recon Repo ---

type inMemoryReconRepo struct {
	mu       sync.RWMutex
	runs     map[uuid.UUID]*domain.ReconRun
	findings []domain.Finding
}

func newInMemoryReconRepo() *inMemoryReconRepo {
	return &inMemoryReconRepo{runs: make(map[uuid.UUID]*domain.ReconRun)}
}

func (r *inMemoryReconRepo) CreateRun(ctx context.Context, run *domain.ReconRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.runs {
		if existing.Provider == run.Provider && existing.WindowStart.Equal(run.WindowStart) && existing.WindowEnd.Equal(run.WindowEnd) {
			return ports.ErrDuplicateEntry
		}
	}
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *inMemoryReconRepo) GetRun(ctx context.Context, id uuid.UUID) (*domain.ReconRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (r *inMemoryReconRepo) GetRunByWindow(ctx context.Context, provider string, start, end time.Time) (*domain.ReconRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, run := range r.runs {
		if run.Provider == provider && run.WindowStart.Equal(start) && run.WindowEnd.Equal(end) {
			cp := *run
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryReconRepo) ClaimRun(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok || run.Status != domain.RunStatusQueued {
		return false, nil
	}
	run.Status = domain.RunStatusRunning
	ts := startedAt
	run.StartedAt = &ts
	return true, nil
}

func (r *inMemoryReconRepo) UpdateRun(ctx context.Context, run *domain.ReconRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; !ok {
		return fmt.Errorf("run not found")
	}
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *inMemoryReconRepo) findingTotal() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.findings)
}

func (r *inMemoryReconRepo) InsertFinding(ctx context.Context, f *domain.Finding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findings = append(r.findings, *f)
	return nil
}

func (r *inMemoryReconRepo) GetFinding(ctx context.Context, id uuid.UUID) (*domain.Finding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.findings {
		if r.findings[i].ID == id {
			cp := r.findings[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryReconRepo) ListFindings(ctx context.Context, params ports.FindingListParams) ([]domain.Finding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Finding
	for _, f := range r.findings {
		if params.Provider != "" && f.Provider != params.Provider {
			continue
		}
		if params.RunID != nil && f.RunID != *params.RunID {
			continue
		}
		if params.Type != nil && f.Type != *params.Type {
			continue
		}
		if params.Status != nil && f.Status != *params.Status {
			continue
		}
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })

	if params.Offset >= len(result) {
		return nil, nil
	}
	result = result[params.Offset:]
	if params.Limit > 0 && params.Limit < len(result) {
		result = result[:params.Limit]
	}
	return result, nil
}

func (r *inMemoryReconRepo) ResolveFinding(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.findings {
		if r.findings[i].ID == id {
			if r.findings[i].Status != domain.FindingStatusOpen {
				return false, nil
			}
			r.findings[i].Status = domain.FindingStatusResolved
			return true, nil
		}
	}
	return false, nil
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu     sync.RWMutex
	chains map[uuid.UUID][]domain.AuditEvent
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{chains: make(map[uuid.UUID][]domain.AuditEvent)}
}

func (r *inMemoryAuditRepo) Head(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID) (*domain.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain := r.chains[tenantID]
	if len(chain) == 0 {
		return nil, nil
	}
	cp := chain[len(chain)-1]
	return &cp, nil
}

func (r *inMemoryAuditRepo) Insert(ctx context.Context, tx pgx.Tx, e *domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[e.TenantID] = append(r.chains[e.TenantID], *e)
	return nil
}

func (r *inMemoryAuditRepo) ListChain(ctx context.Context, tenantID uuid.UUID) ([]domain.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.AuditEvent(nil), r.chains[tenantID]...), nil
}

// tamper rewrites the details of one event in place, breaking the chain.
func (r *inMemoryAuditRepo) tamper(tenantID uuid.UUID, seq int64, details string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := r.chains[tenantID]
	for i := range chain {
		if chain[i].Sequence == seq {
			chain[i].Details = []byte(details)
		}
	}
}

// --- Locking Transactor ---

// lockingTransactor serializes transactions with a single mutex, standing
// in for the balance row lock the real database takes.
type lockingTransactor struct {
	mu sync.Mutex
}

func newLockingTransactor() *lockingTransactor {
	return &lockingTransactor{}
}

func (t *lockingTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &serialTx{release: &t.mu}, nil
}

// serialTx is a no-op pgx.Tx that holds the transactor lock until the
// first Commit or Rollback.
type serialTx struct {
	release *sync.Mutex
	once    sync.Once
}

func (t *serialTx) done() {
	t.once.Do(t.release.Unlock)
}

func (t *serialTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *serialTx) Commit(ctx context.Context) error          { t.done(); return nil }
func (t *serialTx) Rollback(ctx context.Context) error        { t.done(); return nil }
func (t *serialTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *serialTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *serialTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *serialTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *serialTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *serialTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *serialTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *serialTx) Conn() *pgx.Conn { return nil }
