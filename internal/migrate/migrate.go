// Package migrate applies the embedded schema files in name order, recording
// each in schema_migrations so a file runs at most once.
package migrate

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/slotbot/internal/db"
)

//go:embed *.sql
var files embed.FS

// Store is the part of *db.DB the migrator needs.
type Store interface {
	Exec(ctx context.Context, sql string, args ...any) error
	QueryRow(ctx context.Context, sql string, args ...any) db.Row
}

// Up applies every pending migration and returns how many ran.
func Up(ctx context.Context, d Store, log zerolog.Logger) (int, error) {
	return up(ctx, d, files, log)
}

func up(ctx context.Context, d Store, src fs.FS, log zerolog.Logger) (int, error) {
	entries, err := fs.ReadDir(src, ".")
	if err != nil {
		return 0, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if err := d.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now());`); err != nil {
		return 0, fmt.Errorf("migrate: %w", err)
	}

	applied := 0
	for _, name := range names {
		var done bool
		if err := d.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, name).Scan(&done); err != nil {
			return applied, fmt.Errorf("migrate: check %s: %w", name, err)
		}
		if done {
			continue
		}
		b, err := fs.ReadFile(src, name)
		if err != nil {
			return applied, err
		}
		if err := d.Exec(ctx, string(b)); err != nil {
			return applied, fmt.Errorf("migrate: apply %s: %w", name, err)
		}
		if err := d.Exec(ctx, `INSERT INTO schema_migrations(version) VALUES ($1)`, name); err != nil {
			return applied, fmt.Errorf("migrate: record %s: %w", name, err)
		}
		log.Info().Str("version", name).Msg("migration applied")
		applied++
	}
	return applied, nil
}
