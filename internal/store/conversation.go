package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

type conversationRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

func (r *conversationRepo) Append(ctx context.Context, msg ConversationMessage) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	query, args := builder().Insert(tableConversationMessages).
		Columns("sequence", "timestamp", "conversation_id", "user_id", "course_id", "role", "content").
		Values(seqNum, msg.Timestamp, msg.ConversationID, msg.UserID, msg.CourseID, msg.Role, msg.Content).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save conversation message: %w", err)
	}
	return nil
}

func (r *conversationRepo) History(ctx context.Context, conversationID string, limit int) ([]ConversationMessage, error) {
	sel := builder().Select("id", "sequence", "timestamp", "conversation_id", "user_id", "course_id", "role", "content").
		From(builder().Table(tableConversationMessages)).
		Where(entsql.EQ("conversation_id", conversationID)).
		OrderBy(entsql.Desc("sequence"))
	if limit > 0 {
		sel = sel.Limit(limit)
	}

	query, args := sel.Query()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	defer rows.Close()

	var out []ConversationMessage
	for rows.Next() {
		var m ConversationMessage
		if err := rows.Scan(&m.ID, &m.Sequence, &m.Timestamp, &m.ConversationID, &m.UserID, &m.CourseID, &m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("scan conversation message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Fetched newest first so the limit keeps the tail; hand back in order.
	slices.Reverse(out)
	return out, nil
}
