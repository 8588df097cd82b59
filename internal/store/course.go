package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

type courseRepo struct {
	db *sql.DB
}

func (r *courseRepo) Create(ctx context.Context, c Course) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	query, args := builder().Insert(tableCourses).
		Columns("id", "owner_id", "title", "description", "created_at").
		Values(c.ID, c.OwnerID, c.Title, c.Description, c.CreatedAt).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

func (r *courseRepo) Get(ctx context.Context, id string) (*Course, error) {
	query, args := builder().Select("id", "owner_id", "title", "description", "created_at").
		From(builder().Table(tableCourses)).
		Where(entsql.EQ("id", id)).
		Query()

	var c Course
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&c.ID, &c.OwnerID, &c.Title, &c.Description, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	return &c, nil
}
