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

// blockID is the deterministic document id for the ordered pair, which lets
// the primary key enforce pair uniqueness.
func blockID(blockerUID, blockedUID string) string {
	return blockerUID + ":" + blockedUID
}

type blocksRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewBlocksRepo creates the PostgreSQL block store.
func NewBlocksRepo(db *sqlx.DB, timeout time.Duration) persistence.BlockStore {
	return &blocksRepo{db: db, timeout: timeout}
}

func (r *blocksRepo) Put(ctx context.Context, b *domain.Block) error {
	return insertDoc(ctx, r.db, r.timeout, "blocks", blockID(b.BlockerUID, b.BlockedUID), b)
}

func (r *blocksRepo) Get(ctx context.Context, blockerUID, blockedUID string) (*domain.Block, error) {
	doc, err := fetchDoc(ctx, r.db, r.timeout, "blocks", blockID(blockerUID, blockedUID))
	if err != nil {
		return nil, err
	}
	var b domain.Block
	if err := json.Unmarshal(doc, &b); err != nil {
		return nil, fmt.Errorf("failed to decode block: %w", err)
	}
	return &b, nil
}

func (r *blocksRepo) Delete(ctx context.Context, blockerUID, blockedUID string) error {
	return deleteDoc(ctx, r.db, r.timeout, "blocks", blockID(blockerUID, blockedUID))
}

func (r *blocksRepo) ListByBlocker(ctx context.Context, uid string) ([]*domain.Block, error) {
	query := `
		SELECT doc FROM blocks
		WHERE doc->>'blocker_uid' = $1
		LIMIT $2`
	docs, err := queryDocs(ctx, r.db, r.timeout, query, uid, persistence.MaxFetch)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Block, 0, len(docs))
	for _, doc := range docs {
		var b domain.Block
		if err := json.Unmarshal(doc, &b); err != nil {
			return nil, fmt.Errorf("failed to decode block: %w", err)
		}
		out = append(out, &b)
	}
	return out, nil
}

type reportsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewReportsRepo creates the PostgreSQL report store.
func NewReportsRepo(db *sqlx.DB, timeout time.Duration) persistence.ReportStore {
	return &reportsRepo{db: db, timeout: timeout}
}

func (r *reportsRepo) Put(ctx context.Context, rep *domain.Report) error {
	return insertDoc(ctx, r.db, r.timeout, "reports", rep.ID, rep)
}

func (r *reportsRepo) ListByReporter(ctx context.Context, uid string, limit int) ([]*domain.Report, error) {
	query := `
		SELECT doc FROM reports
		WHERE doc->>'reporter_uid' = $1
		ORDER BY doc->>'created_at' DESC
		LIMIT $2`
	docs, err := queryDocs(ctx, r.db, r.timeout, query, uid, clampLimit(limit))
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Report, 0, len(docs))
	for _, doc := range docs {
		var rep domain.Report
		if err := json.Unmarshal(doc, &rep); err != nil {
			return nil, fmt.Errorf("failed to decode report: %w", err)
		}
		out = append(out, &rep)
	}
	return out, nil
}

type disputesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewDisputesRepo creates the PostgreSQL dispute store.
func NewDisputesRepo(db *sqlx.DB, timeout time.Duration) persistence.DisputeStore {
	return &disputesRepo{db: db, timeout: timeout}
}

func (r *disputesRepo) Put(ctx context.Context, d *domain.Dispute) error {
	return insertDoc(ctx, r.db, r.timeout, "disputes", d.ID, d)
}

func (r *disputesRepo) ListBySwap(ctx context.Context, swapID string) ([]*domain.Dispute, error) {
	query := `
		SELECT doc FROM disputes
		WHERE doc->>'swap_request_id' = $1
		LIMIT $2`
	docs, err := queryDocs(ctx, r.db, r.timeout, query, swapID, persistence.MaxFetch)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Dispute, 0, len(docs))
	for _, doc := range docs {
		var d domain.Dispute
		if err := json.Unmarshal(doc, &d); err != nil {
			return nil, fmt.Errorf("failed to decode dispute: %w", err)
		}
		out = append(out, &d)
	}
	return out, nil
}
