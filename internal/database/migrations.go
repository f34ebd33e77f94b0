package database

import (
	"context"
	"fmt"
	"strings"
)

type migration struct {
	name  string
	sql   string
	check string // yields true once applied
}

// migrations run in order against databases created by older schema.sql
// versions. Every statement must be safe to repeat.
var migrations = []migration{
	{
		name:  "add reports.audio_key",
		sql:   `ALTER TABLE reports ADD COLUMN IF NOT EXISTS audio_key text NOT NULL DEFAULT ''`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'reports' AND column_name = 'audio_key')`,
	},
	{
		name:  "add reports email index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_reports_email ON reports (email, created_at DESC)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_reports_email')`,
	},
}

// Migrate brings an existing reports table up to date. Steps whose check
// query already reports them applied are skipped. A failing step stops the
// run with a *MigrationError listing the SQL still outstanding, which the
// caller treats as fatal.
func (db *DB) Migrate(ctx context.Context) error {
	pending := db.pendingMigrations(ctx)
	if len(pending) == 0 {
		return nil
	}
	db.log.Info().Int("pending", len(pending)).Msg("applying schema migrations")

	for i, m := range pending {
		if _, err := db.Pool.Exec(ctx, m.sql); err != nil {
			return &MigrationError{failed: m, pending: pending[i:], err: err}
		}
		db.log.Info().Str("migration", m.name).Msg("schema migration applied")
	}
	return nil
}

func (db *DB) pendingMigrations(ctx context.Context) []migration {
	var pending []migration
	for _, m := range migrations {
		var done bool
		if m.check != "" && db.Pool.QueryRow(ctx, m.check).Scan(&done) == nil && done {
			continue
		}
		pending = append(pending, m)
	}
	return pending
}

// MigrationError carries the SQL an operator can run by hand to finish the
// remaining migrations.
type MigrationError struct {
	failed  migration
	pending []migration
	err     error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %q failed: %v\n\n", e.failed.name, e.err)
	b.WriteString("Apply the remaining statements as the table owner:\n\n")
	for _, m := range e.pending {
		fmt.Fprintf(&b, "  %s;\n", m.sql)
	}
	b.WriteString("\nThen restart podcheck.")
	return b.String()
}

func (e *MigrationError) Unwrap() error {
	return e.err
}
