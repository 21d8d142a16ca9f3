package audit

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
)

// Repository persists the activity log in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// AppendActivity inserts a.
func (r *Repository) AppendActivity(ctx context.Context, a Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, topic, subject, payload, occurred_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
	`, a.ID, a.Topic, a.Subject, string(payload), a.OccurredAt)
	return err
}

// ListActivity returns the latest limit entries, newest first.
func (r *Repository) ListActivity(ctx context.Context, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, topic, subject, payload::text, occurred_at
		FROM activity_log
		ORDER BY occurred_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Activity
	for rows.Next() {
		var a Activity
		var payload string
		if err := rows.Scan(&a.ID, &a.Topic, &a.Subject, &payload, &a.OccurredAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &a.Payload); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
