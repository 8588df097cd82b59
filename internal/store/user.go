package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

type userRepo struct {
	db *sql.DB
}

var userSelectColumns = []string{"id", "external_id", "email", "display_name", "created_at", "updated_at"}

func (r *userRepo) Upsert(ctx context.Context, data UserData) (*User, error) {
	if data.ExternalID == "" {
		return nil, fmt.Errorf("upsert user: external id is required")
	}

	now := time.Now().UTC()
	query, args := builder().Insert(tableUsers).
		Columns("external_id", "email", "display_name", "created_at", "updated_at").
		Values(data.ExternalID, data.Email, data.DisplayName, now, now).
		OnConflict(
			entsql.ConflictColumns("external_id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("email")
				u.SetExcluded("display_name")
				u.SetExcluded("updated_at")
			}),
		).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	u, err := r.GetByExternalID(ctx, data.ExternalID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("upsert user: %s vanished after write", data.ExternalID)
	}
	return u, nil
}

// GetByExternalID returns nil when no user has the given subject.
func (r *userRepo) GetByExternalID(ctx context.Context, externalID string) (*User, error) {
	query, args := builder().Select(userSelectColumns...).
		From(builder().Table(tableUsers)).
		Where(entsql.EQ("external_id", externalID)).
		Query()

	var u User
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&u.ID, &u.ExternalID, &u.Email, &u.DisplayName, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}
