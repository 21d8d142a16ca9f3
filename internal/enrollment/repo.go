package enrollment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"attendx/internal/store"
)

// Repository persists team enrollments in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ExistingStudents returns which of rollNos belong to student accounts.
func (r *Repository) ExistingStudents(ctx context.Context, rollNos []string) ([]string, error) {
	return r.queryRollNos(ctx, `SELECT roll_no FROM users WHERE role = 'student' AND roll_no IN (%s)`, rollNos)
}

// AssignedStudents returns which of rollNos already have a student assignment.
func (r *Repository) AssignedStudents(ctx context.Context, rollNos []string) ([]string, error) {
	return r.queryRollNos(ctx, `SELECT roll_no FROM project_assignments WHERE role = 'student' AND roll_no IN (%s)`, rollNos)
}

// TeamExists reports whether any assignment uses teamID.
func (r *Repository) TeamExists(ctx context.Context, teamID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM project_assignments WHERE team_id = $1)`, teamID).Scan(&exists)
	return exists, err
}

// Enroll locks the project row, consumes one slot and inserts the team's
// assignments in a single transaction.
func (r *Repository) Enroll(ctx context.Context, pid, teamID string, rollNos []string) (int, error) {
	var remaining int
	err := store.InTx(ctx, r.db, func(tx *sql.Tx) error {
		var slots int
		err := tx.QueryRowContext(ctx, `SELECT slots FROM projects WHERE pid = $1 FOR UPDATE`, pid).Scan(&slots)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProjectNotFound
		}
		if err != nil {
			return err
		}
		if slots <= 0 {
			return ErrNoSlots
		}

		if err := tx.QueryRowContext(ctx, `
			UPDATE projects SET slots = slots - 1 WHERE pid = $1 AND slots > 0 RETURNING slots
		`, pid).Scan(&remaining); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNoSlots
			}
			return err
		}

		for _, rollNo := range rollNos {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO project_assignments (id, roll_no, project_id, team_id, role)
				VALUES ($1, $2, $3, $4, 'student')
			`, uuid.NewString(), rollNo, pid, teamID); err != nil {
				if store.IsUniqueViolation(err, "") {
					return ErrAlreadyAssigned
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) || errors.Is(err, ErrNoSlots) || errors.Is(err, ErrAlreadyAssigned) {
			return 0, err
		}
		return 0, fmt.Errorf("enroll: %w", err)
	}
	return remaining, nil
}

func (r *Repository) queryRollNos(ctx context.Context, query string, args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(args))
	vals := make([]any, len(args))
	for i, a := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		vals[i] = a
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(query, strings.Join(placeholders, ", ")), vals...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
