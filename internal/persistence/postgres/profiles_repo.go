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

type profilesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewProfilesRepo creates the PostgreSQL profile store.
func NewProfilesRepo(db *sqlx.DB, timeout time.Duration) persistence.ProfileStore {
	return &profilesRepo{db: db, timeout: timeout}
}

func (r *profilesRepo) Get(ctx context.Context, uid string) (*domain.Profile, error) {
	doc, err := fetchDoc(ctx, r.db, r.timeout, "profiles", uid)
	if err != nil {
		return nil, err
	}
	return decodeProfile(doc)
}

func (r *profilesRepo) GetByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc []byte
	query := `SELECT doc FROM profiles WHERE doc->>'email' = $1 LIMIT 1`
	if err := r.db.QueryRowxContext(ctx, query, email).Scan(&doc); err != nil {
		if err == sql.ErrNoRows {
			return nil, persistence.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch profile by email: %w", err)
	}
	return decodeProfile(doc)
}

func (r *profilesRepo) Put(ctx context.Context, p *domain.Profile) error {
	return upsertDoc(ctx, r.db, r.timeout, "profiles", p.UID, p)
}

func (r *profilesRepo) Delete(ctx context.Context, uid string) error {
	return deleteDoc(ctx, r.db, r.timeout, "profiles", uid)
}

func (r *profilesRepo) List(ctx context.Context, limit int) ([]*domain.Profile, error) {
	query := `SELECT doc FROM profiles ORDER BY doc->>'created_at' ASC LIMIT $1`
	docs, err := queryDocs(ctx, r.db, r.timeout, query, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Profile, 0, len(docs))
	for _, doc := range docs {
		p, err := decodeProfile(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func decodeProfile(doc []byte) (*domain.Profile, error) {
	var p domain.Profile
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &p, nil
}
