package payments

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/walletflow/walletflow/internal/failure"
)

// Repository persists completed payments.
type Repository interface {
	Save(ctx context.Context, payment Payment) error
	Get(ctx context.Context, id uuid.UUID) (Payment, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]Payment, error)
}

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[uuid.UUID]Payment
}

// NewMemoryRepository constructs an in-memory repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[uuid.UUID]Payment)}
}

func (r *memoryRepository) Save(_ context.Context, payment Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[payment.ID]; exists {
		return errors.New("payment exists")
	}
	r.storage[payment.ID] = payment
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id uuid.UUID) (Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.storage[id]
	if !ok {
		return Payment{}, failure.New(failure.ErrNotFound, "payment not found")
	}
	return p, nil
}

func (r *memoryRepository) ListByOwner(_ context.Context, ownerID int64) ([]Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Payment, 0)
	for _, p := range r.storage {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// PostgresRepository stores payments in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Save inserts a payment record.
func (r *PostgresRepository) Save(ctx context.Context, p Payment) error {
	_, err := r.db.Exec(ctx, `INSERT INTO payments (id, owner_id, wallet_id, merchant, amount, status, payment_method, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.OwnerID, p.WalletID, p.Merchant, p.Amount, p.Status, p.PaymentMethod, p.CreatedAt.UTC())
	return err
}

// Get fetches a payment by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (Payment, error) {
	row := r.db.QueryRow(ctx, `SELECT id, owner_id, wallet_id, merchant, amount, status, payment_method, created_at
        FROM payments WHERE id = $1`, id)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, failure.New(failure.ErrNotFound, "payment not found")
	}
	return p, err
}

// ListByOwner returns the owner's payments, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID int64) ([]Payment, error) {
	rows, err := r.db.Query(ctx, `SELECT id, owner_id, wallet_id, merchant, amount, status, payment_method, created_at
        FROM payments WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	if err := row.Scan(&p.ID, &p.OwnerID, &p.WalletID, &p.Merchant, &p.Amount, &p.Status, &p.PaymentMethod, &p.CreatedAt); err != nil {
		return Payment{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}
