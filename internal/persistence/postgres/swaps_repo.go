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

type swapsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSwapsRepo creates the PostgreSQL swap request store.
func NewSwapsRepo(db *sqlx.DB, timeout time.Duration) persistence.SwapStore {
	return &swapsRepo{db: db, timeout: timeout}
}

func (r *swapsRepo) Get(ctx context.Context, id string) (*domain.SwapRequest, error) {
	doc, err := fetchDoc(ctx, r.db, r.timeout, "swap_requests", id)
	if err != nil {
		return nil, err
	}
	return decodeSwap(doc)
}

func (r *swapsRepo) Put(ctx context.Context, s *domain.SwapRequest) error {
	return upsertDoc(ctx, r.db, r.timeout, "swap_requests", s.ID, s)
}

func (r *swapsRepo) Delete(ctx context.Context, id string) error {
	return deleteDoc(ctx, r.db, r.timeout, "swap_requests", id)
}

func (r *swapsRepo) ListByRequester(ctx context.Context, uid string, status domain.SwapStatus, limit int) ([]*domain.SwapRequest, error) {
	return r.listByRole(ctx, "requester_uid", uid, status, limit)
}

func (r *swapsRepo) ListByRecipient(ctx context.Context, uid string, status domain.SwapStatus, limit int) ([]*domain.SwapRequest, error) {
	return r.listByRole(ctx, "recipient_uid", uid, status, limit)
}

func (r *swapsRepo) listByRole(ctx context.Context, field, uid string, status domain.SwapStatus, limit int) ([]*domain.SwapRequest, error) {
	query := fmt.Sprintf(`
		SELECT doc FROM swap_requests
		WHERE doc->>'%s' = $1
		ORDER BY updated_at DESC
		LIMIT $2`, field)
	args := []any{uid, clampLimit(limit)}
	if status != "" {
		query = fmt.Sprintf(`
			SELECT doc FROM swap_requests
			WHERE doc->>'%s' = $1 AND doc->>'status' = $2
			ORDER BY updated_at DESC
			LIMIT $3`, field)
		args = []any{uid, string(status), clampLimit(limit)}
	}

	docs, err := queryDocs(ctx, r.db, r.timeout, query, args...)
	if err != nil {
		return nil, err
	}
	return decodeSwaps(docs)
}

func (r *swapsRepo) HasPending(ctx context.Context, requesterUID, recipientUID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var one int
	query := `
		SELECT 1 FROM swap_requests
		WHERE doc->>'requester_uid' = $1
		  AND doc->>'recipient_uid' = $2
		  AND doc->>'status' = 'pending'
		LIMIT 1`
	err := r.db.QueryRowxContext(ctx, query, requesterUID, recipientUID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check pending request: %w", err)
	}
	return true, nil
}

func (r *swapsRepo) ListCompletionDue(ctx context.Context, now time.Time, limit int) ([]*domain.SwapRequest, error) {
	query := `
		SELECT doc FROM swap_requests
		WHERE doc->>'status' = 'pending_completion'
		  AND (doc->'completion'->>'auto_complete_at')::timestamptz <= $1
		ORDER BY (doc->'completion'->>'auto_complete_at')::timestamptz ASC
		LIMIT $2`
	docs, err := queryDocs(ctx, r.db, r.timeout, query, now, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return decodeSwaps(docs)
}

func decodeSwap(doc []byte) (*domain.SwapRequest, error) {
	var s domain.SwapRequest
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("failed to decode swap request: %w", err)
	}
	return &s, nil
}

func decodeSwaps(docs [][]byte) ([]*domain.SwapRequest, error) {
	out := make([]*domain.SwapRequest, 0, len(docs))
	for _, doc := range docs {
		s, err := decodeSwap(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
