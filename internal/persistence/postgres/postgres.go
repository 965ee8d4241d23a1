// Package postgres implements the persistence interfaces over JSONB
// document tables: one table per collection, (id TEXT PRIMARY KEY,
// doc JSONB). Secondary lookups go through JSONB expression indexes; list
// queries fetch a bounded candidate set and leave final ordering to the
// caller.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/skillswap/swapd/internal/persistence"
)

// DefaultTimeout bounds every single store call.
const DefaultTimeout = 5 * time.Second

// Open connects, verifies the connection and creates missing tables.
func Open(ctx context.Context, url string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := ensureSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return db, nil
}

// New builds the full store bundle over one connection pool.
func New(db *sqlx.DB, timeout time.Duration) *persistence.Stores {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &persistence.Stores{
		Profiles:      NewProfilesRepo(db, timeout),
		Swaps:         NewSwapsRepo(db, timeout),
		Conversations: NewConversationsRepo(db, timeout),
		Messages:      NewMessagesRepo(db, timeout),
		Ledger:        NewLedgerRepo(db, timeout),
		Boosts:        NewBoostsRepo(db, timeout),
		Blocks:        NewBlocksRepo(db, timeout),
		Reports:       NewReportsRepo(db, timeout),
		Reviews:       NewReviewsRepo(db, timeout),
		Disputes:      NewDisputesRepo(db, timeout),
	}
}

// ensureSchema is idempotent and safe on every process start.
func ensureSchema(ctx context.Context, db *sqlx.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now())`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_email ON profiles ((doc->>'email'))`,

		`CREATE TABLE IF NOT EXISTS swap_requests (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now())`,
		`CREATE INDEX IF NOT EXISTS idx_swaps_requester ON swap_requests ((doc->>'requester_uid'))`,
		`CREATE INDEX IF NOT EXISTS idx_swaps_recipient ON swap_requests ((doc->>'recipient_uid'))`,
		`CREATE INDEX IF NOT EXISTS idx_swaps_status ON swap_requests ((doc->>'status'))`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now())`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_participants ON conversations USING gin ((doc->'participant_uids'))`,

		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			doc JSONB NOT NULL,
			sent_at TIMESTAMPTZ NOT NULL)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, sent_at DESC)`,

		`CREATE TABLE IF NOT EXISTS points_transactions (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now())`,
		`CREATE INDEX IF NOT EXISTS idx_points_uid ON points_transactions ((doc->>'uid'))`,

		`CREATE TABLE IF NOT EXISTS credits_transactions (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now())`,
		`CREATE INDEX IF NOT EXISTS idx_credits_uid ON credits_transactions ((doc->>'uid'))`,

		`CREATE TABLE IF NOT EXISTS active_boosts (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL)`,
		`CREATE INDEX IF NOT EXISTS idx_boosts_uid ON active_boosts ((doc->>'uid'))`,

		`CREATE TABLE IF NOT EXISTS blocks (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_blocker ON blocks ((doc->>'blocker_uid'))`,

		`CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_reporter ON reports ((doc->>'reporter_uid'))`,

		`CREATE TABLE IF NOT EXISTS reviews (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_reviewed ON reviews ((doc->>'reviewed_uid'))`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_swap ON reviews ((doc->>'swap_request_id'))`,

		`CREATE TABLE IF NOT EXISTS disputes (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// fetchDoc and friends are the shared row plumbing; each repo owns its
// typed (un)marshalling.

func fetchDoc(ctx context.Context, db *sqlx.DB, timeout time.Duration, table, id string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var doc []byte
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, table)
	if err := db.QueryRowxContext(ctx, query, id).Scan(&doc); err != nil {
		if err == sql.ErrNoRows {
			return nil, persistence.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch from %s: %w", table, err)
	}
	return doc, nil
}

func upsertDoc(ctx context.Context, db *sqlx.DB, timeout time.Duration, table, id string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal doc: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, doc) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`, table)
	if table == "profiles" || table == "swap_requests" || table == "conversations" {
		query = fmt.Sprintf(`
			INSERT INTO %s (id, doc, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`, table)
	}
	if _, err := db.ExecContext(ctx, query, id, doc); err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", table, err)
	}
	return nil
}

func insertDoc(ctx context.Context, db *sqlx.DB, timeout time.Duration, table, id string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal doc: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2)`, table)
	if _, err := db.ExecContext(ctx, query, id, doc); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return persistence.ErrDuplicate
		}
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

func deleteDoc(ctx context.Context, db *sqlx.DB, timeout time.Duration, table, id string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table)
	res, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// queryDocs runs an arbitrary doc-returning query and hands raw JSONB rows
// back for typed decoding.
func queryDocs(ctx context.Context, db *sqlx.DB, timeout time.Duration, query string, args ...any) ([][]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var docs [][]byte
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > persistence.MaxFetch {
		return persistence.MaxFetch
	}
	return limit
}
