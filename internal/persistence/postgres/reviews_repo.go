package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/skillswap/swapd/internal/domain"
	"github.com/skillswap/swapd/internal/persistence"
)

type reviewsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewReviewsRepo creates the PostgreSQL review store.
func NewReviewsRepo(db *sqlx.DB, timeout time.Duration) persistence.ReviewStore {
	return &reviewsRepo{db: db, timeout: timeout}
}

func (r *reviewsRepo) Put(ctx context.Context, rev *domain.Review) error {
	return insertDoc(ctx, r.db, r.timeout, "reviews", rev.ID, rev)
}

func (r *reviewsRepo) GetBySwapReviewer(ctx context.Context, swapID, reviewerUID string) (*domain.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc []byte
	query := `
		SELECT doc FROM reviews
		WHERE doc->>'swap_request_id' = $1 AND doc->>'reviewer_uid' = $2
		LIMIT 1`
	if err := r.db.QueryRowxContext(ctx, query, swapID, reviewerUID).Scan(&doc); err != nil {
		if err == sql.ErrNoRows {
			return nil, persistence.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch review: %w", err)
	}
	return decodeReview(doc)
}

func (r *reviewsRepo) ListByReviewed(ctx context.Context, uid string, limit int) ([]*domain.Review, error) {
	return r.list(ctx, "reviewed_uid", uid, limit)
}

func (r *reviewsRepo) ListByReviewer(ctx context.Context, uid string, limit int) ([]*domain.Review, error) {
	return r.list(ctx, "reviewer_uid", uid, limit)
}

func (r *reviewsRepo) ListBySwap(ctx context.Context, swapID string) ([]*domain.Review, error) {
	return r.list(ctx, "swap_request_id", swapID, persistence.MaxFetch)
}

func (r *reviewsRepo) list(ctx context.Context, field, value string, limit int) ([]*domain.Review, error) {
	query := fmt.Sprintf(`
		SELECT doc FROM reviews
		WHERE doc->>'%s' = $1
		ORDER BY doc->>'created_at' DESC
		LIMIT $2`, field)
	docs, err := queryDocs(ctx, r.db, r.timeout, query, value, clampLimit(limit))
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Review, 0, len(docs))
	for _, doc := range docs {
		rev, err := decodeReview(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, nil
}

func decodeReview(doc []byte) (*domain.Review, error) {
	var rev domain.Review
	if err := json.Unmarshal(doc, &rev); err != nil {
		return nil, fmt.Errorf("failed to decode review: %w", err)
	}
	return &rev, nil
}
