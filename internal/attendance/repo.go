package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// UpsertAttendance writes m, overwriting the status of an existing row with the same key.
func (r *Repository) UpsertAttendance(ctx context.Context, m Mark) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (id, roll_no, pid, class_key, present, day)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (roll_no, pid, day, class_key) DO UPDATE SET
			present = EXCLUDED.present,
			updated_at = NOW()
	`, uuid.NewString(), m.RollNo, m.PID, m.ClassKey(), m.Present, m.Day)
	return err
}

// FindAttendance returns rows of pid on day whose class hours overlap hours.
func (r *Repository) FindAttendance(ctx context.Context, pid string, day time.Time, hours []int) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, roll_no, pid, class_key, present, day, updated_at
		FROM attendance
		WHERE pid = $1 AND day = $2 AND string_to_array(class_key, ',')::int[] && $3::text::int[]
		ORDER BY roll_no, class_key
	`, pid, day, pgIntArray(hours))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *rec)
	}
	return res, rows.Err()
}

// StudentAttendance returns the first record of rollNo for pid on day.
func (r *Repository) StudentAttendance(ctx context.Context, pid, rollNo string, day time.Time) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, `
		SELECT id, roll_no, pid, class_key, present, day, updated_at
		FROM attendance
		WHERE pid = $1 AND roll_no = $2 AND day = $3
		ORDER BY updated_at
		LIMIT 1
	`, pid, rollNo, day))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// StartedProjects lists projects whose execution started on or before asOf.
func (r *Repository) StartedProjects(ctx context.Context, asOf time.Time) ([]ActiveProject, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.pid, p.title, a.roll_no
		FROM projects p
		LEFT JOIN project_assignments a ON a.project_id = p.pid AND a.role = 'student'
		WHERE p.execution_start <= $1
		ORDER BY p.pid, a.roll_no
	`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ActiveProject
	for rows.Next() {
		var pid, title string
		var roll sql.NullString
		if err := rows.Scan(&pid, &title, &roll); err != nil {
			return nil, err
		}
		if len(res) == 0 || res[len(res)-1].PID != pid {
			res = append(res, ActiveProject{PID: pid, Title: title, Students: []string{}})
		}
		if roll.Valid {
			last := &res[len(res)-1]
			last.Students = append(last.Students, roll.String)
		}
	}
	return res, rows.Err()
}

// DayStatuses returns, per roll number, whether any mark of pid on day is present.
func (r *Repository) DayStatuses(ctx context.Context, pid string, day time.Time) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT roll_no, bool_or(present) FROM attendance WHERE pid = $1 AND day = $2 GROUP BY roll_no
	`, pid, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := map[string]bool{}
	for rows.Next() {
		var roll string
		var present bool
		if err := rows.Scan(&roll, &present); err != nil {
			return nil, err
		}
		res[roll] = present
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var rec Record
	var key string
	if err := s.Scan(&rec.ID, &rec.RollNo, &rec.PID, &key, &rec.Present, &rec.Date, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	hours, err := splitKey(key)
	if err != nil {
		return nil, fmt.Errorf("attendance %s: %w", rec.ID, err)
	}
	rec.ClassHours = hours
	return &rec, nil
}

func splitKey(key string) ([]int, error) {
	if key == "" {
		return []int{}, nil
	}
	parts := strings.Split(key, ",")
	hours := make([]int, len(parts))
	for i, p := range parts {
		h, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		hours[i] = h
	}
	return hours, nil
}

// pgIntArray renders hours as a Postgres array literal.
func pgIntArray(hours []int) string {
	return "{" + ClassKey(hours) + "}"
}
