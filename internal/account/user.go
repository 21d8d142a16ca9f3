package account

import (
	"context"
	"errors"
	"time"
)

// Role is the access level of a user.
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := Dashboards[r]
	return ok
}

// Dashboards maps each role to the client route it lands on after login.
var Dashboards = map[Role]string{
	RoleStudent: "/stuDashboard",
	RoleFaculty: "/facultyDashboard",
	RoleAdmin:   "/adminDashboard",
}

// User is a registered student, faculty member or admin.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	RollNo       string    `json:"rollno"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Dept         string    `json:"dept"`
	Section      string    `json:"section"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ErrDuplicateRollNo is returned by Store.CreateUser when the roll number is taken.
var ErrDuplicateRollNo = errors.New("roll number already registered")

// Store persists users. Lookups return nil, nil when nothing matches.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	UpsertUser(ctx context.Context, u *User) error
	UserByID(ctx context.Context, id string) (*User, error)
	UserByRollNo(ctx context.Context, rollNo string) (*User, error)
	UsersByRole(ctx context.Context, role Role) ([]User, error)
	UpdatePassword(ctx context.Context, id, hash string) error
}
