package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		push_token TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS questions (
		seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL CHECK (type IN ('truth', 'dare')),
		content TEXT NOT NULL,
		category TEXT,
		difficulty INT NOT NULL DEFAULT 1
	);`,
	`CREATE INDEX IF NOT EXISTS idx_questions_type_difficulty ON questions (type, difficulty);`,
}

// EnsureSchema creates the tables the service needs
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}
