// Package reconcile tracks funds left in an indeterminate state: debited from a
// source with no confirmed credit anywhere. Records stay open until an operator
// has moved the money by hand and resolves them.
package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/walletflow/walletflow/internal/failure"
)

// Inconsistency is one movement that could not be reverted.
type Inconsistency struct {
	ID         uuid.UUID  `json:"id"`
	Flow       string     `json:"flow"`
	WalletID   int64      `json:"wallet_id"`
	OwnerID    int64      `json:"user_id"`
	Amount     int64      `json:"amount"`
	Reason     string     `json:"reason"`
	Resolved   bool       `json:"resolved"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Filter narrows List. A zero OwnerID matches every owner.
type Filter struct {
	OwnerID        int64
	UnresolvedOnly bool
}

func (f Filter) match(i Inconsistency) bool {
	if f.OwnerID != 0 && i.OwnerID != f.OwnerID {
		return false
	}
	return !f.UnresolvedOnly || !i.Resolved
}

// Store persists inconsistencies.
type Store interface {
	Record(ctx context.Context, in Inconsistency) (Inconsistency, error)
	List(ctx context.Context, filter Filter) ([]Inconsistency, error)
	Resolve(ctx context.Context, id uuid.UUID) (Inconsistency, error)
}

func prepare(in Inconsistency, now time.Time) Inconsistency {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.Resolved = false
	in.ResolvedAt = nil
	return in
}

type memoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Inconsistency
	now     func() time.Time
}

// NewMemoryStore constructs an in-memory store.
func NewMemoryStore() Store {
	return &memoryStore{
		records: make(map[uuid.UUID]Inconsistency),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *memoryStore) Record(_ context.Context, in Inconsistency) (Inconsistency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in = prepare(in, s.now())
	s.records[in.ID] = in
	return in, nil
}

func (s *memoryStore) List(_ context.Context, filter Filter) ([]Inconsistency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Inconsistency, 0)
	for _, in := range s.records {
		if filter.match(in) {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryStore) Resolve(_ context.Context, id uuid.UUID) (Inconsistency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.records[id]
	if !ok {
		return Inconsistency{}, failure.New(failure.ErrNotFound, "inconsistency not found")
	}
	if !in.Resolved {
		at := s.now()
		in.Resolved = true
		in.ResolvedAt = &at
		s.records[id] = in
	}
	return in, nil
}

// PostgresStore stores inconsistencies in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectColumns = `SELECT id, flow, wallet_id, owner_id, amount, reason, resolved, created_at, resolved_at FROM inconsistencies`

// Record inserts an open inconsistency.
func (s *PostgresStore) Record(ctx context.Context, in Inconsistency) (Inconsistency, error) {
	in = prepare(in, time.Now().UTC())
	_, err := s.db.Exec(ctx, `INSERT INTO inconsistencies (id, flow, wallet_id, owner_id, amount, reason, resolved, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, false, $7)`,
		in.ID, in.Flow, in.WalletID, in.OwnerID, in.Amount, in.Reason, in.CreatedAt)
	if err != nil {
		return Inconsistency{}, err
	}
	return in, nil
}

// List returns matching records, oldest first.
func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Inconsistency, error) {
	rows, err := s.db.Query(ctx, selectColumns+`
        WHERE ($1::bigint = 0 OR owner_id = $1::bigint) AND (NOT $2::boolean OR NOT resolved)
        ORDER BY created_at`, filter.OwnerID, filter.UnresolvedOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Inconsistency, 0)
	for rows.Next() {
		in, err := scanInconsistency(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// Resolve marks a record resolved. Resolving twice keeps the first timestamp.
func (s *PostgresStore) Resolve(ctx context.Context, id uuid.UUID) (Inconsistency, error) {
	row := s.db.QueryRow(ctx, `UPDATE inconsistencies
        SET resolved = true, resolved_at = COALESCE(resolved_at, now())
        WHERE id = $1
        RETURNING id, flow, wallet_id, owner_id, amount, reason, resolved, created_at, resolved_at`, id)
	in, err := scanInconsistency(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Inconsistency{}, failure.New(failure.ErrNotFound, "inconsistency not found")
	}
	return in, err
}

func scanInconsistency(row pgx.Row) (Inconsistency, error) {
	var in Inconsistency
	if err := row.Scan(&in.ID, &in.Flow, &in.WalletID, &in.OwnerID, &in.Amount, &in.Reason, &in.Resolved, &in.CreatedAt, &in.ResolvedAt); err != nil {
		return Inconsistency{}, err
	}
	in.CreatedAt = in.CreatedAt.UTC()
	return in, nil
}
