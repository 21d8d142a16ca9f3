package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"attendx/internal/account"
	"attendx/internal/apperr"
	"attendx/internal/auth"
)

// ImageStore persists uploaded project images and returns their public URL.
type ImageStore interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// Service manages projects and the views over their assignments.
type Service struct {
	store  Store
	users  Users
	images ImageStore
}

// NewService creates a service backed by a store.
func NewService(store Store, users Users, images ImageStore) *Service {
	return &Service{store: store, users: users, images: images}
}

// CreateInput is the project creation form.
type CreateInput struct {
	PID                string
	Title              string
	Description        string
	Deadline           string
	ExecutionStartDate string
	ExecutionEndDate   string
	Slots              int
	MentorID           string
	ImageName          string
	ImageData          []byte
}

// Create stores a new project. Faculty become the mentor of their own
// projects; admins must name an existing faculty account as mentor.
func (s *Service) Create(ctx context.Context, actor auth.Identity, in CreateInput) (*Project, error) {
	var mentorID string
	switch account.Role(actor.Role) {
	case account.RoleFaculty:
		mentorID = actor.ID
	case account.RoleAdmin:
		mentorID = strings.TrimSpace(in.MentorID)
		if mentorID == "" {
			return nil, apperr.Validation("Mentor is required")
		}
	default:
		return nil, apperr.Forbidden("Only admin or faculty can create projects")
	}

	p, err := in.project()
	if err != nil {
		return nil, err
	}

	mentor, err := s.mentor(ctx, mentorID)
	if err != nil {
		return nil, err
	}
	p.MentorID = mentor.ID

	if len(in.ImageData) > 0 {
		if s.images == nil {
			return nil, apperr.Validation("Image uploads are not configured")
		}
		name := p.PID + path.Ext(in.ImageName)
		url, err := s.images.Save(ctx, name, in.ImageData)
		if err != nil {
			return nil, fmt.Errorf("store project image: %w", err)
		}
		p.Image = url
	}

	if err := s.store.CreateProject(ctx, p, mentor.RollNo); err != nil {
		if errors.Is(err, ErrDuplicatePID) {
			return nil, apperr.Conflict("Project id already exists")
		}
		return nil, err
	}
	slog.Info("project created", "pid", p.PID, "mentor", mentor.RollNo, "slots", p.Slots)
	return p, nil
}

func (in CreateInput) project() (*Project, error) {
	p := &Project{
		PID:         strings.TrimSpace(in.PID),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Slots:       in.Slots,
	}
	var missing []string
	if p.PID == "" {
		missing = append(missing, "pid")
	}
	if p.Title == "" {
		missing = append(missing, "projectName")
	}
	if p.Description == "" {
		missing = append(missing, "projectDesc")
	}
	if in.Deadline == "" {
		missing = append(missing, "projectDeadline")
	}
	if in.ExecutionStartDate == "" {
		missing = append(missing, "executionStartDate")
	}
	if in.ExecutionEndDate == "" {
		missing = append(missing, "executionEndDate")
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("Missing required fields: " + strings.Join(missing, ", "))
	}
	if p.Slots < 1 {
		return nil, apperr.Validation("projectSlots must be at least 1")
	}

	var err error
	if p.Deadline, err = ParseDate(in.Deadline); err != nil {
		return nil, apperr.Validation("Invalid projectDeadline")
	}
	if p.ExecutionStart, err = ParseDate(in.ExecutionStartDate); err != nil {
		return nil, apperr.Validation("Invalid executionStartDate")
	}
	if p.ExecutionEnd, err = ParseDate(in.ExecutionEndDate); err != nil {
		return nil, apperr.Validation("Invalid executionEndDate")
	}
	if p.ExecutionEnd.Before(p.ExecutionStart) {
		return nil, apperr.Validation("executionEndDate must not be before executionStartDate")
	}
	return p, nil
}

// UpdateInput is a partial project update as sent by clients.
type UpdateInput struct {
	Title              *string `json:"title"`
	Description        *string `json:"description"`
	Deadline           *string `json:"deadline"`
	ExecutionStartDate *string `json:"executionStartDate"`
	ExecutionEndDate   *string `json:"executionEndDate"`
	Slots              *int    `json:"slots"`
	Mentor             *string `json:"mentor"`
	Image              *string `json:"image"`
}

// Update applies the set fields of in to the project with id.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*Project, error) {
	patch := Patch{Title: in.Title, Description: in.Description, Image: in.Image}

	var err error
	if patch.Deadline, err = parseOptionalDate(in.Deadline, "deadline"); err != nil {
		return nil, err
	}
	if patch.ExecutionStart, err = parseOptionalDate(in.ExecutionStartDate, "executionStartDate"); err != nil {
		return nil, err
	}
	if patch.ExecutionEnd, err = parseOptionalDate(in.ExecutionEndDate, "executionEndDate"); err != nil {
		return nil, err
	}
	if in.Slots != nil {
		if *in.Slots < 0 {
			return nil, apperr.Validation("slots must not be negative")
		}
		patch.Slots = in.Slots
	}
	if in.Mentor != nil {
		mentor, err := s.mentor(ctx, strings.TrimSpace(*in.Mentor))
		if err != nil {
			return nil, err
		}
		patch.MentorID = &mentor.ID
		patch.MentorRollNo = mentor.RollNo
	}
	if patch.ExecutionStart != nil || patch.ExecutionEnd != nil {
		cur, err := s.store.ProjectByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if cur == nil {
			return nil, apperr.NotFound("Project not found")
		}
		patch.Apply(cur)
		if cur.ExecutionEnd.Before(cur.ExecutionStart) {
			return nil, apperr.Validation("executionEndDate must not be before executionStartDate")
		}
	}

	p, err := s.store.UpdateProject(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("Project not found")
	}
	return p, nil
}

// mentor resolves a mentor id to a faculty account.
func (s *Service) mentor(ctx context.Context, id string) (*account.User, error) {
	u, err := s.users.UserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup mentor: %w", err)
	}
	if u == nil {
		return nil, apperr.NotFound("Mentor not found")
	}
	if u.Role != account.RoleFaculty {
		return nil, apperr.Validation("Mentor must be a faculty member")
	}
	return u, nil
}

func parseOptionalDate(raw *string, field string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := ParseDate(*raw)
	if err != nil {
		return nil, apperr.Validation("Invalid " + field)
	}
	return &t, nil
}

// Delete removes the project with id and its assignments.
func (s *Service) Delete(ctx context.Context, id string) error {
	ok, err := s.store.DeleteProject(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("Project not found")
	}
	slog.Info("project deleted", "id", id)
	return nil
}

// List returns every project.
func (s *Service) List(ctx context.Context) ([]Project, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []Project{}
	}
	return projects, nil
}

// Get returns the project with id.
func (s *Service) Get(ctx context.Context, id string) (*Project, error) {
	p, err := s.store.ProjectByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("Project not found")
	}
	return p, nil
}

// StudentProjects returns the projects a student is a team member of.
func (s *Service) StudentProjects(ctx context.Context, rollNo string) ([]MemberProject, error) {
	res, err := s.store.ProjectsForMember(ctx, rollNo, MemberStudent)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, apperr.NotFound("No project assignments found for this student.")
	}
	return res, nil
}

// MentorProjects returns the projects a faculty member mentors.
func (s *Service) MentorProjects(ctx context.Context, rollNo string) ([]MemberProject, error) {
	res, err := s.store.ProjectsForMember(ctx, rollNo, MemberFaculty)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, apperr.NotFound("No project assignments found for this Mentor.")
	}
	return res, nil
}

// RegisteredStudents lists the student members of a project.
func (s *Service) RegisteredStudents(ctx context.Context, pid string) ([]RegisteredStudent, error) {
	res, err := s.store.RegisteredStudents(ctx, pid)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, apperr.NotFound("No students registered for this project.")
	}
	return res, nil
}

// Roster returns the student assignments of a project, the list attendance is taken against.
func (s *Service) Roster(ctx context.Context, pid string) ([]Assignment, error) {
	res, err := s.store.ProjectAssignments(ctx, pid, MemberStudent)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = []Assignment{}
	}
	return res, nil
}
