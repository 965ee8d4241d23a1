package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/skillswap/swapd/internal/domain"
	"github.com/skillswap/swapd/internal/persistence"
)

type ledgerRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewLedgerRepo creates the PostgreSQL transaction ledger. Both tables are
// append-only; rows are never updated.
func NewLedgerRepo(db *sqlx.DB, timeout time.Duration) persistence.LedgerStore {
	return &ledgerRepo{db: db, timeout: timeout}
}

func (r *ledgerRepo) AppendPoints(ctx context.Context, tx *domain.PointsTransaction) error {
	return insertDoc(ctx, r.db, r.timeout, "points_transactions", tx.ID, tx)
}

func (r *ledgerRepo) AppendCredits(ctx context.Context, tx *domain.CreditsTransaction) error {
	return insertDoc(ctx, r.db, r.timeout, "credits_transactions", tx.ID, tx)
}

func (r *ledgerRepo) ListPoints(ctx context.Context, uid string, limit int) ([]*domain.PointsTransaction, error) {
	query := `
		SELECT doc FROM points_transactions
		WHERE doc->>'uid' = $1
		ORDER BY created_at DESC
		LIMIT $2`
	docs, err := queryDocs(ctx, r.db, r.timeout, query, uid, clampLimit(limit))
	if err != nil {
		return nil, err
	}

	out := make([]*domain.PointsTransaction, 0, len(docs))
	for _, doc := range docs {
		var tx domain.PointsTransaction
		if err := json.Unmarshal(doc, &tx); err != nil {
			return nil, fmt.Errorf("failed to decode points transaction: %w", err)
		}
		out = append(out, &tx)
	}
	return out, nil
}

func (r *ledgerRepo) ListCredits(ctx context.Context, uid string, limit int) ([]*domain.CreditsTransaction, error) {
	query := `
		SELECT doc FROM credits_transactions
		WHERE doc->>'uid' = $1
		ORDER BY created_at DESC
		LIMIT $2`
	docs, err := queryDocs(ctx, r.db, r.timeout, query, uid, clampLimit(limit))
	if err != nil {
		return nil, err
	}

	out := make([]*domain.CreditsTransaction, 0, len(docs))
	for _, doc := range docs {
		var tx domain.CreditsTransaction
		if err := json.Unmarshal(doc, &tx); err != nil {
			return nil, fmt.Errorf("failed to decode credits transaction: %w", err)
		}
		out = append(out, &tx)
	}
	return out, nil
}

type boostsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewBoostsRepo creates the PostgreSQL boost store.
func NewBoostsRepo(db *sqlx.DB, timeout time.Duration) persistence.BoostStore {
	return &boostsRepo{db: db, timeout: timeout}
}

func (r *boostsRepo) Put(ctx context.Context, b *domain.ActiveBoost) error {
	return upsertDoc(ctx, r.db, r.timeout, "active_boosts", b.ID, b)
}

func (r *boostsRepo) ListActive(ctx context.Context, uid string, now time.Time) ([]*domain.ActiveBoost, error) {
	query := `
		SELECT doc FROM active_boosts
		WHERE doc->>'uid' = $1
		  AND (doc->>'ends_at')::timestamptz > $2
		  AND (doc->>'started_at')::timestamptz <= $2
		LIMIT $3`
	docs, err := queryDocs(ctx, r.db, r.timeout, query, uid, now, persistence.MaxFetch)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.ActiveBoost, 0, len(docs))
	for _, doc := range docs {
		var b domain.ActiveBoost
		if err := json.Unmarshal(doc, &b); err != nil {
			return nil, fmt.Errorf("failed to decode boost: %w", err)
		}
		out = append(out, &b)
	}
	return out, nil
}
