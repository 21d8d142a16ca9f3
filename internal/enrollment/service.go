// Package enrollment enrolls student teams into projects.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"attendx/internal/apperr"
)

// TeamSize is the number of students in every application.
const TeamSize = 3

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrNoSlots         = errors.New("no slots available")
	ErrAlreadyAssigned = errors.New("student already assigned")
)

// Store is the persistence the enrollment flow needs.
type Store interface {
	// ExistingStudents returns the subset of rollNos that are student accounts.
	ExistingStudents(ctx context.Context, rollNos []string) ([]string, error)
	// AssignedStudents returns the subset of rollNos already in a team.
	AssignedStudents(ctx context.Context, rollNos []string) ([]string, error)
	TeamExists(ctx context.Context, teamID string) (bool, error)
	// Enroll atomically consumes one slot of pid and records the team. It
	// returns ErrProjectNotFound, ErrNoSlots or ErrAlreadyAssigned without
	// writing anything when a precondition fails.
	Enroll(ctx context.Context, pid, teamID string, rollNos []string) (remaining int, err error)
}

// Result describes a successful application.
type Result struct {
	TeamID         string
	RemainingSlots int
}

// Service applies teams to projects.
type Service struct {
	store  Store
	teamID func() string
}

// NewService creates a service backed by a store.
func NewService(store Store) *Service {
	return &Service{store: store, teamID: shortID}
}

// shortID is the first group of a random UUID: 8 hex characters.
func shortID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

const teamIDAttempts = 5

// Apply enrolls the team into the project identified by pid. The first
// member is the submitting student.
func (s *Service) Apply(ctx context.Context, pid string, members []string) (Result, error) {
	pid = strings.TrimSpace(pid)
	if pid == "" || len(members) != TeamSize {
		return Result{}, apperr.Validation("Invalid request data")
	}
	team := make([]string, len(members))
	seen := make(map[string]bool, len(members))
	for i, m := range members {
		m = strings.TrimSpace(m)
		if m == "" {
			return Result{}, apperr.Validation("Invalid request data")
		}
		if seen[m] {
			return Result{}, apperr.Validation(fmt.Sprintf("Student %s is listed more than once", m))
		}
		seen[m] = true
		team[i] = m
	}

	found, err := s.store.ExistingStudents(ctx, team)
	if err != nil {
		return Result{}, fmt.Errorf("lookup students: %w", err)
	}
	if missing := subtract(team, found); len(missing) > 0 {
		return Result{}, apperr.Validation(fmt.Sprintf("Student(s) %s do not exist", strings.Join(missing, ", ")))
	}

	assigned, err := s.store.AssignedStudents(ctx, team)
	if err != nil {
		return Result{}, fmt.Errorf("lookup assignments: %w", err)
	}
	if dup := intersect(team, assigned); len(dup) > 0 {
		return Result{}, alreadyApplied(dup)
	}

	teamID, err := s.newTeamID(ctx)
	if err != nil {
		return Result{}, err
	}

	remaining, err := s.store.Enroll(ctx, pid, teamID, team)
	switch {
	case errors.Is(err, ErrProjectNotFound):
		return Result{}, apperr.NotFound("Project not found")
	case errors.Is(err, ErrNoSlots):
		return Result{}, apperr.Validation("No slots available for this project.")
	case errors.Is(err, ErrAlreadyAssigned):
		// lost a race with a concurrent application
		assigned, lookupErr := s.store.AssignedStudents(ctx, team)
		if lookupErr != nil || len(assigned) == 0 {
			return Result{}, apperr.Validation("Team member(s) have already applied for another project.")
		}
		return Result{}, alreadyApplied(intersect(team, assigned))
	case err != nil:
		return Result{}, fmt.Errorf("enroll team: %w", err)
	}

	slog.Info("team enrolled", "pid", pid, "team", teamID, "members", team, "remaining", remaining)
	return Result{TeamID: teamID, RemainingSlots: remaining}, nil
}

func (s *Service) newTeamID(ctx context.Context) (string, error) {
	for i := 0; i < teamIDAttempts; i++ {
		id := s.teamID()
		taken, err := s.store.TeamExists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check team id: %w", err)
		}
		if !taken {
			return id, nil
		}
	}
	return "", errors.New("could not allocate a unique team id")
}

func alreadyApplied(rollNos []string) error {
	return apperr.Validation(fmt.Sprintf("Team member(s) %s have already applied for another project.", strings.Join(rollNos, ", ")))
}

// subtract returns the members of want not in have, in want's order.
func subtract(want, have []string) []string {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	var out []string
	for _, w := range want {
		if !set[w] {
			out = append(out, w)
		}
	}
	return out
}

// intersect returns the members of want also in have, in want's order.
func intersect(want, have []string) []string {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	var out []string
	for _, w := range want {
		if set[w] {
			out = append(out, w)
		}
	}
	return out
}
