package project

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"attendx/internal/account"
)

// Project is a faculty-mentored project students apply to in teams.
type Project struct {
	ID             string    `json:"id"`
	PID            string    `json:"pid"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Deadline       time.Time `json:"deadline"`
	ExecutionStart time.Time `json:"executionStartDate"`
	ExecutionEnd   time.Time `json:"executionEndDate"`
	Slots          int       `json:"slots"`
	MentorID       string    `json:"mentor"`
	Image          string    `json:"image,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Assignment links a roll number to a project. TeamID is nil for the mentor link.
type Assignment struct {
	ID        string    `json:"id"`
	RollNo    string    `json:"rollNo"`
	ProjectID string    `json:"projectId"`
	TeamID    *string   `json:"teamId"`
	Role      string    `json:"role"`
	AppliedAt time.Time `json:"appliedAt"`
}

// Assignment roles.
const (
	MemberStudent = "student"
	MemberFaculty = "faculty"
)

// MemberProject is a project seen through one participant's assignment.
type MemberProject struct {
	PID            string    `json:"pid"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	MentorID       string    `json:"mentor"`
	ExecutionStart time.Time `json:"executionStartDate"`
	ExecutionEnd   time.Time `json:"executionEndDate"`
	Slots          int       `json:"slots"`
	TeamID         *string   `json:"teamId"`
	Role           string    `json:"role"`
}

// RegisteredStudent is a team member of a project with profile details.
type RegisteredStudent struct {
	RollNo     string  `json:"rollno"`
	Name       string  `json:"name"`
	Department string  `json:"department"`
	TeamID     *string `json:"teamId"`
}

// Patch holds the fields of a partial project update; nil fields are left unchanged.
type Patch struct {
	Title          *string
	Description    *string
	Deadline       *time.Time
	ExecutionStart *time.Time
	ExecutionEnd   *time.Time
	Slots          *int
	MentorID       *string
	MentorRollNo   string
	Image          *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Deadline == nil &&
		p.ExecutionStart == nil && p.ExecutionEnd == nil && p.Slots == nil &&
		p.MentorID == nil && p.Image == nil
}

// Apply copies the set fields of p onto proj.
func (p Patch) Apply(proj *Project) {
	if p.Title != nil {
		proj.Title = *p.Title
	}
	if p.Description != nil {
		proj.Description = *p.Description
	}
	if p.Deadline != nil {
		proj.Deadline = *p.Deadline
	}
	if p.ExecutionStart != nil {
		proj.ExecutionStart = *p.ExecutionStart
	}
	if p.ExecutionEnd != nil {
		proj.ExecutionEnd = *p.ExecutionEnd
	}
	if p.Slots != nil {
		proj.Slots = *p.Slots
	}
	if p.MentorID != nil {
		proj.MentorID = *p.MentorID
	}
	if p.Image != nil {
		proj.Image = *p.Image
	}
}

// ErrDuplicatePID is returned by Store.CreateProject when the pid is taken.
var ErrDuplicatePID = errors.New("project id already exists")

// Store persists projects and their assignments. Lookups return nil, nil
// when nothing matches.
type Store interface {
	// CreateProject stores p together with the mentor's faculty assignment.
	CreateProject(ctx context.Context, p *Project, mentorRollNo string) error
	ProjectByID(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	UpdateProject(ctx context.Context, id string, patch Patch) (*Project, error)
	// DeleteProject removes the project and its assignments.
	DeleteProject(ctx context.Context, id string) (bool, error)
	ProjectsForMember(ctx context.Context, rollNo, role string) ([]MemberProject, error)
	ProjectAssignments(ctx context.Context, pid, role string) ([]Assignment, error)
	RegisteredStudents(ctx context.Context, pid string) ([]RegisteredStudent, error)
}

// Users resolves mentors.
type Users interface {
	UserByID(ctx context.Context, id string) (*account.User, error)
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05.000Z07:00", "2006-01-02"}

// ParseDate accepts a calendar date or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
