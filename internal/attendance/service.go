package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"attendx/internal/apperr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})
	return v
}

// Service records and queries per-class-hour attendance.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a service backed by a store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// EntryFailure describes an entry of a batch that was not stored.
type EntryFailure struct {
	Index  int    `json:"index"`
	RollNo string `json:"rollNo"`
	Reason string `json:"reason"`
}

// BatchResult summarises a bulk attendance submission.
type BatchResult struct {
	Saved  int            `json:"saved"`
	Failed []EntryFailure `json:"failed"`

	// Projects lists the distinct pids of the saved entries.
	Projects []string `json:"-"`
}

// candidate is an entry that may already have failed to decode.
type candidate struct {
	entry Entry
	err   error
}

// Mark validates and upserts every entry independently; a failing entry does
// not stop the rest of the batch.
func (s *Service) Mark(ctx context.Context, entries []Entry) (BatchResult, error) {
	items := make([]candidate, len(entries))
	for i, e := range entries {
		items[i] = candidate{entry: e}
	}
	return s.mark(ctx, items)
}

// MarkRaw is Mark for undecoded JSON entries. An entry that does not decode
// is reported as failed like any other invalid entry.
func (s *Service) MarkRaw(ctx context.Context, raw []json.RawMessage) (BatchResult, error) {
	items := make([]candidate, len(raw))
	for i, r := range raw {
		items[i] = decodeEntry(r)
	}
	return s.mark(ctx, items)
}

func decodeEntry(raw json.RawMessage) candidate {
	var e Entry
	err := json.Unmarshal(raw, &e)
	if err == nil {
		return candidate{entry: e}
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return candidate{entry: e, err: fmt.Errorf("invalid %s", typeErr.Field)}
	}
	return candidate{entry: e, err: errors.New("malformed entry")}
}

func (s *Service) mark(ctx context.Context, items []candidate) (BatchResult, error) {
	if len(items) == 0 {
		return BatchResult{}, apperr.Validation("No attendance data provided")
	}

	res := BatchResult{Failed: []EntryFailure{}}
	seen := map[string]bool{}
	var lastErr error
	for i, it := range items {
		if it.err != nil {
			res.Failed = append(res.Failed, EntryFailure{Index: i, RollNo: strings.TrimSpace(it.entry.RollNo), Reason: it.err.Error()})
			continue
		}
		m, err := toMark(it.entry)
		if err != nil {
			res.Failed = append(res.Failed, EntryFailure{Index: i, RollNo: it.entry.RollNo, Reason: err.Error()})
			continue
		}
		if err := s.store.UpsertAttendance(ctx, m); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			slog.Error("upsert attendance", "rollno", m.RollNo, "pid", m.PID, "err", err)
			res.Failed = append(res.Failed, EntryFailure{Index: i, RollNo: m.RollNo, Reason: "storage error"})
			lastErr = err
			continue
		}
		res.Saved++
		if !seen[m.PID] {
			seen[m.PID] = true
			res.Projects = append(res.Projects, m.PID)
		}
	}

	if res.Saved == 0 && lastErr != nil {
		return res, fmt.Errorf("no attendance stored: %w", lastErr)
	}
	return res, nil
}

func toMark(e Entry) (Mark, error) {
	e.RollNo = strings.TrimSpace(e.RollNo)
	e.PID = strings.TrimSpace(e.PID)
	if err := validate.Struct(e); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Mark{}, fmt.Errorf("invalid %s", verrs[0].Field())
		}
		return Mark{}, err
	}
	for i, h := range e.SelectedClasses {
		if h < 1 || h > MaxClassHour {
			return Mark{}, fmt.Errorf("invalid selectedClasses[%d]", i)
		}
	}
	day, err := ParseDay(e.Date)
	if err != nil {
		return Mark{}, err
	}
	return Mark{
		RollNo:     e.RollNo,
		PID:        e.PID,
		ClassHours: e.SelectedClasses,
		Day:        day,
		Present:    *e.AttendanceStatus,
	}, nil
}

// Query returns the records of pid on date that share a class hour with classHours.
func (s *Service) Query(ctx context.Context, pid, date, classHours string) ([]Record, error) {
	if pid == "" || date == "" || classHours == "" {
		return nil, apperr.Validation("Missing query parameters")
	}
	day, err := ParseDay(date)
	if err != nil {
		return nil, apperr.Validation("Invalid date")
	}
	hours, err := ParseClassHours(classHours)
	if err != nil {
		return nil, apperr.Validation("Invalid classHours")
	}

	records, err := s.store.FindAttendance(ctx, pid, day, hours)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperr.NotFound("No attendance records found")
	}
	return records, nil
}

// StudentDay returns the student's record for pid on date, or nil when unmarked.
func (s *Service) StudentDay(ctx context.Context, pid, date, rollNo string) (*Record, error) {
	day, err := ParseDay(date)
	if err != nil {
		return nil, apperr.Validation("Invalid date")
	}
	return s.store.StudentAttendance(ctx, pid, rollNo, day)
}

// StudentStatus is one student's presence in an overview.
type StudentStatus struct {
	RollNo           string `json:"rollNo"`
	AttendanceStatus bool   `json:"attendanceStatus"`
}

// ProjectAttendance is today's attendance of one running project.
type ProjectAttendance struct {
	PID      string          `json:"pid"`
	Title    string          `json:"title"`
	Students []StudentStatus `json:"students"`
}

// ActiveOverview reports today's attendance for every project that has started.
func (s *Service) ActiveOverview(ctx context.Context) ([]ProjectAttendance, error) {
	now := s.now()
	today := Day(now)

	projects, err := s.store.StartedProjects(ctx, now)
	if err != nil {
		return nil, err
	}
	out := make([]ProjectAttendance, 0, len(projects))
	for _, p := range projects {
		statuses, err := s.store.DayStatuses(ctx, p.PID, today)
		if err != nil {
			return nil, err
		}
		pa := ProjectAttendance{PID: p.PID, Title: p.Title, Students: make([]StudentStatus, 0, len(p.Students))}
		for _, roll := range p.Students {
			pa.Students = append(pa.Students, StudentStatus{RollNo: roll, AttendanceStatus: statuses[roll]})
		}
		out = append(out, pa)
	}
	return out, nil
}
