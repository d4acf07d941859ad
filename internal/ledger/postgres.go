package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/walletflow/walletflow/internal/failure"
	"github.com/walletflow/walletflow/internal/identity"
)

const walletColumns = `id, owner_id, balance, currency, status, created_at, updated_at`

// PostgresLedger persists wallets in PostgreSQL. Every debit locks the wallet
// row for the duration of its check-then-update.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w      Wallet
		status string
	)
	if err := row.Scan(&w.ID, &w.OwnerID, &w.Balance, &w.Currency, &status, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return Wallet{}, err
	}
	w.Status = Status(status)
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func notFound(id int64, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return failure.New(failure.ErrNotFound, fmt.Sprintf("wallet %d", id))
	}
	return err
}

// numericOutOfRange is the SQLSTATE raised when balance + amount leaves bigint.
const numericOutOfRange = "22003"

func overflow(id int64, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == numericOutOfRange {
		return failure.New(failure.ErrInvalidAmount, fmt.Sprintf("wallet %d balance would overflow", id))
	}
	return notFound(id, err)
}

// Wallet returns the wallet snapshot when owned by caller.
func (l *PostgresLedger) Wallet(ctx context.Context, caller identity.Identity, id int64) (Wallet, error) {
	w, err := scanWallet(l.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
	if err != nil {
		return Wallet{}, notFound(id, err)
	}
	if !caller.Owns(w.OwnerID) {
		return Wallet{}, failure.New(failure.ErrUnauthorized, fmt.Sprintf("wallet %d", id))
	}
	return w, nil
}

// WalletByOwner resolves the only wallet of ownerID.
func (l *PostgresLedger) WalletByOwner(ctx context.Context, _ identity.Identity, ownerID int64) (Wallet, error) {
	rows, err := l.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 ORDER BY id LIMIT 2`, ownerID)
	if err != nil {
		return Wallet{}, err
	}
	defer rows.Close()

	var found []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return Wallet{}, err
		}
		found = append(found, w)
	}
	if err := rows.Err(); err != nil {
		return Wallet{}, err
	}

	switch len(found) {
	case 0:
		return Wallet{}, failure.New(failure.ErrNotFound, fmt.Sprintf("owner %d has no wallet", ownerID))
	case 1:
		return found[0], nil
	default:
		return Wallet{}, failure.New(failure.ErrNotFound, fmt.Sprintf("owner %d has several wallets", ownerID))
	}
}

// Wallets lists the wallets owned by caller.
func (l *PostgresLedger) Wallets(ctx context.Context, caller identity.Identity) ([]Wallet, error) {
	rows, err := l.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 ORDER BY id`, caller.OwnerID())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	wallets := []Wallet{}
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// Create opens an empty wallet. The unique index on owner_id rejects a second wallet.
func (l *PostgresLedger) Create(ctx context.Context, caller identity.Identity, currency string) (Wallet, error) {
	if caller.IsZero() {
		return Wallet{}, failure.ErrUnauthorized
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	row := l.db.QueryRow(ctx, `INSERT INTO wallets (owner_id, balance, currency, status)
        VALUES ($1, 0, $2, $3)
        ON CONFLICT (owner_id) DO NOTHING
        RETURNING `+walletColumns, caller.OwnerID(), currency, string(StatusActive))
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, failure.New(failure.ErrDuplicateWallet, fmt.Sprintf("owner %d", caller.OwnerID()))
		}
		return Wallet{}, err
	}
	return w, nil
}

// Debit removes amount from the wallet inside a row-locking transaction.
func (l *PostgresLedger) Debit(ctx context.Context, caller identity.Identity, id, amount int64) (Wallet, error) {
	if amount <= 0 {
		return Wallet{}, failure.ErrInvalidAmount
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Wallet{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	current, err := scanWallet(tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Wallet{}, notFound(id, err)
	}
	if !caller.Owns(current.OwnerID) {
		return Wallet{}, failure.New(failure.ErrUnauthorized, fmt.Sprintf("wallet %d", id))
	}
	if current.Status != StatusActive {
		return Wallet{}, failure.New(failure.ErrWalletInactive, string(current.Status))
	}
	if current.Balance < amount {
		return Wallet{}, failure.ErrInsufficientBalance
	}

	updated, err := scanWallet(tx.QueryRow(ctx, `UPDATE wallets
        SET balance = balance - $2, updated_at = now()
        WHERE id = $1 AND balance >= $2
        RETURNING `+walletColumns, id, amount))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, failure.ErrInsufficientBalance
		}
		return Wallet{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Wallet{}, err
	}
	return updated, nil
}

// Credit adds amount to the wallet.
func (l *PostgresLedger) Credit(ctx context.Context, _ identity.Identity, id, amount int64) (Wallet, error) {
	if amount <= 0 {
		return Wallet{}, failure.ErrInvalidAmount
	}
	w, err := scanWallet(l.db.QueryRow(ctx, `UPDATE wallets
        SET balance = balance + $2, updated_at = now()
        WHERE id = $1
        RETURNING `+walletColumns, id, amount))
	if err != nil {
		return Wallet{}, overflow(id, err)
	}
	return w, nil
}
