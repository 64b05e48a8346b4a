package repo

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var Schema string

// Migrate creates the enrollments table and its append-only triggers. It
// reports whether the table was missing before the run. The schema is
// idempotent, so running it against an existing database only refreshes
// the triggers.
func Migrate(ctx context.Context, db DBTX) (bool, error) {
	var regclass *string
	if err := db.QueryRow(ctx, `SELECT to_regclass('public.enrollments')::text`).Scan(&regclass); err != nil {
		return false, fmt.Errorf("check schema state: %w", err)
	}

	if _, err := db.Exec(ctx, Schema); err != nil {
		return false, fmt.Errorf("execute schema: %w", err)
	}
	return regclass == nil, nil
}
