package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"attendx/internal/apperr"
	"attendx/internal/auth"
)

// TokenIssuer signs credentials for authenticated users.
type TokenIssuer interface {
	Issue(id auth.Identity) (auth.Token, error)
}

// Service implements signup, login and password management.
type Service struct {
	store  Store
	tokens TokenIssuer
}

// NewService creates a service backed by a store.
func NewService(store Store, tokens TokenIssuer) *Service {
	return &Service{store: store, tokens: tokens}
}

// SignupInput is the self-registration form of a student.
type SignupInput struct {
	Name     string `json:"name"`
	RollNo   string `json:"rollno"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Dept     string `json:"dept"`
	Section  string `json:"section"`
}

// Signup registers a student account and returns a credential for it.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*User, auth.Token, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.RollNo = strings.TrimSpace(in.RollNo)
	in.Dept = strings.TrimSpace(in.Dept)
	in.Section = strings.TrimSpace(in.Section)
	if in.Name == "" || in.RollNo == "" || in.Password == "" || in.Dept == "" || in.Section == "" {
		return nil, auth.Token{}, apperr.Validation("Missing required fields")
	}

	existing, err := s.store.UserByRollNo(ctx, in.RollNo)
	if err != nil {
		return nil, auth.Token{}, fmt.Errorf("lookup roll number: %w", err)
	}
	if existing != nil {
		return nil, auth.Token{}, apperr.Validation("User already exists")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, auth.Token{}, fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		Name:         in.Name,
		RollNo:       in.RollNo,
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: hash,
		Role:         RoleStudent,
		Dept:         in.Dept,
		Section:      in.Section,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateRollNo) {
			return nil, auth.Token{}, apperr.Validation("User already exists")
		}
		return nil, auth.Token{}, err
	}

	tok, err := s.tokens.Issue(identityOf(u))
	if err != nil {
		return nil, auth.Token{}, fmt.Errorf("issue token: %w", err)
	}
	slog.Info("user signed up", "rollno", u.RollNo)
	return u, tok, nil
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	User      *User
	Token     auth.Token
	Dashboard string
}

// Login verifies a roll number and password.
func (s *Service) Login(ctx context.Context, rollNo, password string) (LoginResult, error) {
	rollNo = strings.TrimSpace(rollNo)
	if rollNo == "" || password == "" {
		return LoginResult{}, apperr.Validation("Username and password are required")
	}
	u, err := s.store.UserByRollNo(ctx, rollNo)
	if err != nil {
		return LoginResult{}, fmt.Errorf("lookup roll number: %w", err)
	}
	if u == nil {
		return LoginResult{}, apperr.NotFound("User not found")
	}
	ok, err := auth.CheckPassword(u.PasswordHash, password)
	if err != nil {
		return LoginResult{}, fmt.Errorf("compare password: %w", err)
	}
	if !ok {
		return LoginResult{}, apperr.Unauthorized("Invalid credentials")
	}

	tok, err := s.tokens.Issue(identityOf(u))
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	return LoginResult{User: u, Token: tok, Dashboard: Dashboards[u.Role]}, nil
}

// PasswordChange is the password update form.
type PasswordChange struct {
	UserID      string `json:"userId"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ChangePassword replaces the password of the acting user.
func (s *Service) ChangePassword(ctx context.Context, actorID string, in PasswordChange) error {
	if in.UserID == "" || in.OldPassword == "" || in.NewPassword == "" {
		return apperr.Validation("All fields are required")
	}
	if actorID != in.UserID {
		return apperr.Forbidden("Unauthorized to update this user's password")
	}

	u, err := s.store.UserByID(ctx, in.UserID)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if u == nil {
		return apperr.NotFound("User not found")
	}

	ok, err := auth.CheckPassword(u.PasswordHash, in.OldPassword)
	if err != nil {
		return fmt.Errorf("compare password: %w", err)
	}
	if !ok {
		return apperr.Validation("Current password is incorrect")
	}
	if same, _ := auth.CheckPassword(u.PasswordHash, in.NewPassword); same {
		return apperr.Validation("New password must be different from current password")
	}

	hash, err := auth.HashPassword(in.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, u.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	slog.Info("password changed", "rollno", u.RollNo)
	return nil
}

// Profile returns the user with id.
func (s *Service) Profile(ctx context.Context, id string) (*User, error) {
	u, err := s.store.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound("User not found")
	}
	return u, nil
}

// Mentors lists faculty members that can be bound to projects.
func (s *Service) Mentors(ctx context.Context) ([]User, error) {
	users, err := s.store.UsersByRole(ctx, RoleFaculty)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// ImportResult summarises a roster import.
type ImportResult struct {
	Imported int
	Total    int
}

// ImportRoster upserts roster entries by roll number. Entries without a name,
// roll number or password, or with an unknown role, are skipped.
func (s *Service) ImportRoster(ctx context.Context, entries []RosterEntry) (ImportResult, error) {
	res := ImportResult{Total: len(entries)}
	for _, e := range entries {
		if e.Name == "" || e.RollNo == "" || e.Password == "" {
			slog.Warn("skipping roster entry with missing fields", "rollno", e.RollNo)
			continue
		}
		role := RoleStudent
		if e.Role != "" {
			role = Role(strings.ToLower(e.Role))
		}
		if !role.Valid() {
			slog.Warn("skipping roster entry with unknown role", "rollno", e.RollNo, "role", e.Role)
			continue
		}
		hash, err := auth.HashPassword(e.Password)
		if err != nil {
			slog.Error("hash roster password", "rollno", e.RollNo, "err", err)
			continue
		}
		u := &User{
			Name:         e.Name,
			RollNo:       e.RollNo,
			Phone:        e.Phone,
			PasswordHash: hash,
			Role:         role,
			Dept:         e.Dept,
			Section:      e.Section,
		}
		if err := s.store.UpsertUser(ctx, u); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			slog.Error("upsert roster entry", "rollno", e.RollNo, "err", err)
			continue
		}
		res.Imported++
	}
	slog.Info("roster imported", "imported", res.Imported, "total", res.Total)
	return res, nil
}

func identityOf(u *User) auth.Identity {
	return auth.Identity{ID: u.ID, RollNo: u.RollNo, Role: string(u.Role)}
}
