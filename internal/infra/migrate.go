package infra

import (
	"context"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations
var migrationsFS embed.FS

const (
	// SchemaWallet holds the tables owned by the wallet service.
	SchemaWallet = "wallet"
	// SchemaPayment holds the tables owned by the payment service.
	SchemaPayment = "payment"
)

// Migrate applies the embedded SQL files of one service schema in lexical order.
// Every statement is idempotent so the migration runs on each start.
func Migrate(ctx context.Context, db *pgxpool.Pool, schema string) error {
	dir := path.Join("migrations", schema)
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations %s: %w", schema, err)
	}
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, path.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, f := range files {
		sqlBytes, err := migrationsFS.ReadFile(f)
		if err != nil {
			return err
		}
		if _, err := db.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("migration %s failed: %w", f, err)
		}
	}
	return nil
}
