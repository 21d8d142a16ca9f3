package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"attendx/internal/store"
)

// Repository persists projects in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const projectColumns = `id, pid, title, description, deadline, execution_start, execution_end, slots, mentor_id, image, created_at`

// CreateProject inserts the project and the mentor link in one transaction.
func (r *Repository) CreateProject(ctx context.Context, p *Project, mentorRollNo string) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := store.InTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO projects (id, pid, title, description, deadline, execution_start, execution_end, slots, mentor_id, image)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			RETURNING created_at
		`, p.ID, p.PID, p.Title, p.Description, p.Deadline, p.ExecutionStart, p.ExecutionEnd, p.Slots, p.MentorID, p.Image)
		if err := row.Scan(&p.CreatedAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO project_assignments (id, roll_no, project_id, team_id, role)
			VALUES ($1, $2, $3, NULL, 'faculty')
		`, uuid.NewString(), mentorRollNo, p.PID)
		return err
	})
	if err != nil {
		if store.IsUniqueViolation(err, "projects_pid_key") {
			return ErrDuplicatePID
		}
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// ProjectByID returns a single project by storage id.
func (r *Repository) ProjectByID(ctx context.Context, id string) (*Project, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	p, err := scanProject(r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// ListProjects returns all projects, newest first.
func (r *Repository) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *p)
	}
	return res, rows.Err()
}

// UpdateProject applies patch and returns the updated project.
func (r *Repository) UpdateProject(ctx context.Context, id string, patch Patch) (*Project, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	sets := []string{}
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Deadline != nil {
		add("deadline", *patch.Deadline)
	}
	if patch.ExecutionStart != nil {
		add("execution_start", *patch.ExecutionStart)
	}
	if patch.ExecutionEnd != nil {
		add("execution_end", *patch.ExecutionEnd)
	}
	if patch.Slots != nil {
		add("slots", *patch.Slots)
	}
	if patch.MentorID != nil {
		add("mentor_id", *patch.MentorID)
	}
	if patch.Image != nil {
		add("image", *patch.Image)
	}
	if len(sets) == 0 {
		return r.ProjectByID(ctx, id)
	}

	var updated *Project
	err := store.InTx(ctx, r.db, func(tx *sql.Tx) error {
		p, err := scanProject(tx.QueryRowContext(ctx,
			`UPDATE projects SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING `+projectColumns, args...))
		if err != nil {
			return err
		}
		if patch.MentorID != nil && patch.MentorRollNo != "" {
			if _, err := tx.ExecContext(ctx, `
				UPDATE project_assignments SET roll_no = $2
				WHERE project_id = $1 AND role = 'faculty'
			`, p.PID, patch.MentorRollNo); err != nil {
				return err
			}
		}
		updated = p
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update project: %w", err)
	}
	return updated, nil
}

// DeleteProject removes a project and every assignment pointing at it.
func (r *Repository) DeleteProject(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	deleted := false
	err := store.InTx(ctx, r.db, func(tx *sql.Tx) error {
		var pid string
		err := tx.QueryRowContext(ctx, `DELETE FROM projects WHERE id = $1 RETURNING pid`, id).Scan(&pid)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM project_assignments WHERE project_id = $1`, pid); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// ProjectsForMember returns the projects rollNo is assigned to with the given role.
func (r *Repository) ProjectsForMember(ctx context.Context, rollNo, role string) ([]MemberProject, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.pid, p.title, p.description, p.mentor_id, p.execution_start, p.execution_end, p.slots, a.team_id, a.role
		FROM project_assignments a
		JOIN projects p ON p.pid = a.project_id
		WHERE a.roll_no = $1 AND a.role = $2
		ORDER BY a.applied_at
	`, rollNo, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []MemberProject
	for rows.Next() {
		var m MemberProject
		var team sql.NullString
		if err := rows.Scan(&m.PID, &m.Title, &m.Description, &m.MentorID, &m.ExecutionStart, &m.ExecutionEnd, &m.Slots, &team, &m.Role); err != nil {
			return nil, err
		}
		m.TeamID = nullString(team)
		res = append(res, m)
	}
	return res, rows.Err()
}

// ProjectAssignments lists assignments of pid, restricted to role when it is set.
func (r *Repository) ProjectAssignments(ctx context.Context, pid, role string) ([]Assignment, error) {
	query := `SELECT id, roll_no, project_id, team_id, role, applied_at FROM project_assignments WHERE project_id = $1`
	args := []any{pid}
	if role != "" {
		query += ` AND role = $2`
		args = append(args, role)
	}
	query += ` ORDER BY team_id NULLS FIRST, applied_at, roll_no`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Assignment
	for rows.Next() {
		var a Assignment
		var team sql.NullString
		if err := rows.Scan(&a.ID, &a.RollNo, &a.ProjectID, &team, &a.Role, &a.AppliedAt); err != nil {
			return nil, err
		}
		a.TeamID = nullString(team)
		res = append(res, a)
	}
	return res, rows.Err()
}

// RegisteredStudents lists the student members of pid with their profile, if any.
func (r *Repository) RegisteredStudents(ctx context.Context, pid string) ([]RegisteredStudent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.roll_no, COALESCE(u.name, 'Unknown'), COALESCE(u.dept, 'Unknown'), a.team_id
		FROM project_assignments a
		LEFT JOIN users u ON u.roll_no = a.roll_no
		WHERE a.project_id = $1 AND a.role = 'student'
		ORDER BY a.team_id, a.applied_at, a.roll_no
	`, pid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []RegisteredStudent
	for rows.Next() {
		var s RegisteredStudent
		var team sql.NullString
		if err := rows.Scan(&s.RollNo, &s.Name, &s.Department, &team); err != nil {
			return nil, err
		}
		s.TeamID = nullString(team)
		res = append(res, s)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(s scanner) (*Project, error) {
	var p Project
	if err := s.Scan(&p.ID, &p.PID, &p.Title, &p.Description, &p.Deadline, &p.ExecutionStart, &p.ExecutionEnd, &p.Slots, &p.MentorID, &p.Image, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
