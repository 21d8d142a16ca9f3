package attendance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxClassHour is the last class hour of a day.
const MaxClassHour = 12

// Entry is one attendance mark as submitted by a client.
type Entry struct {
	RollNo           string `json:"rollNo" validate:"required"`
	PID              string `json:"pid" validate:"required"`
	SelectedClasses  []int  `json:"selectedClasses" validate:"required,min=1"`
	Date             string `json:"date" validate:"required"`
	AttendanceStatus *bool  `json:"attendanceStatus" validate:"required"`
}

// Mark is a validated entry ready to be stored.
type Mark struct {
	RollNo     string
	PID        string
	ClassHours []int
	Day        time.Time
	Present    bool
}

// ClassKey is the opaque token class-hour lists are matched by: the hours
// joined with commas in submitted order.
func (m Mark) ClassKey() string {
	return ClassKey(m.ClassHours)
}

// Record is a stored attendance row.
type Record struct {
	ID         string    `json:"id"`
	RollNo     string    `json:"rollNo"`
	PID        string    `json:"pid"`
	ClassHours []int     `json:"selectedClasses"`
	Present    bool      `json:"attendanceStatus"`
	Date       time.Time `json:"date"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ActiveProject is a project that has started, with its student members.
type ActiveProject struct {
	PID      string
	Title    string
	Students []string
}

// Store persists attendance. Lookups return nil, nil when nothing matches.
type Store interface {
	// UpsertAttendance inserts m or overwrites the status of the row with
	// the same roll number, pid, day and class key.
	UpsertAttendance(ctx context.Context, m Mark) error
	// FindAttendance returns rows of pid on day sharing at least one class hour with hours.
	FindAttendance(ctx context.Context, pid string, day time.Time, hours []int) ([]Record, error)
	StudentAttendance(ctx context.Context, pid, rollNo string, day time.Time) (*Record, error)
	StartedProjects(ctx context.Context, asOf time.Time) ([]ActiveProject, error)
	// DayStatuses maps roll numbers to whether any mark of pid on day is present.
	DayStatuses(ctx context.Context, pid string, day time.Time) (map[string]bool, error)
}

// ClassKey joins hours with commas.
func ClassKey(hours []int) string {
	parts := make([]string, len(hours))
	for i, h := range hours {
		parts[i] = strconv.Itoa(h)
	}
	return strings.Join(parts, ",")
}

// ParseClassHours parses a comma-separated list of class hours.
func ParseClassHours(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("empty class hours")
	}
	parts := strings.Split(s, ",")
	hours := make([]int, 0, len(parts))
	for _, p := range parts {
		h, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid class hour %q", p)
		}
		if h < 1 || h > MaxClassHour {
			return nil, fmt.Errorf("class hour %d out of range", h)
		}
		hours = append(hours, h)
	}
	return hours, nil
}

// ParseDay parses a calendar date or an RFC 3339 timestamp and truncates it
// to midnight UTC.
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05.000Z07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
