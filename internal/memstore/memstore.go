// Package memstore keeps every AttendX record in process memory. It backs
// STORE_BACKEND=memory for local development and the service tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"attendx/internal/account"
	"attendx/internal/attendance"
	"attendx/internal/audit"
	"attendx/internal/enrollment"
	"attendx/internal/project"
)

// Store is a mutex-guarded in-memory database.
type Store struct {
	mu sync.Mutex

	users    map[string]*account.User
	userRoll map[string]string

	projects    []*project.Project
	assignments []project.Assignment
	attendance  map[attendanceKey]*attendance.Record
	attendOrder []attendanceKey
	activity    []audit.Activity
	now         func() time.Time
}

type attendanceKey struct {
	rollNo, pid, classKey string
	day                   time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:      map[string]*account.User{},
		userRoll:   map[string]string{},
		attendance: map[attendanceKey]*attendance.Record{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Users

// CreateUser stores u, assigning an id when it has none.
func (s *Store) CreateUser(_ context.Context, u *account.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.userRoll[u.RollNo]; ok {
		return account.ErrDuplicateRollNo
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = s.now()
	cp := *u
	s.users[u.ID] = &cp
	s.userRoll[u.RollNo] = u.ID
	return nil
}

// UpsertUser creates u or replaces the user with the same roll number.
func (s *Store) UpsertUser(ctx context.Context, u *account.User) error {
	s.mu.Lock()
	id, ok := s.userRoll[u.RollNo]
	if !ok {
		s.mu.Unlock()
		return s.CreateUser(ctx, u)
	}
	defer s.mu.Unlock()
	existing := s.users[id]
	existing.Name = u.Name
	existing.Phone = u.Phone
	existing.PasswordHash = u.PasswordHash
	existing.Role = u.Role
	if u.Dept != "" {
		existing.Dept = u.Dept
	}
	if u.Section != "" {
		existing.Section = u.Section
	}
	*u = *existing
	return nil
}

// UserByID returns the user with id, or nil.
func (s *Store) UserByID(_ context.Context, id string) (*account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// UserByRollNo returns the user with rollNo, or nil.
func (s *Store) UserByRollNo(_ context.Context, rollNo string) (*account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.userRoll[rollNo]
	if !ok {
		return nil, nil
	}
	cp := *s.users[id]
	return &cp, nil
}

// UsersByRole lists the users with role.
func (s *Store) UsersByRole(_ context.Context, role account.Role) ([]account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []account.User
	for _, u := range s.users {
		if u.Role == role {
			res = append(res, *u)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].RollNo < res[j].RollNo })
	return res, nil
}

// UpdatePassword replaces the password hash of user id.
func (s *Store) UpdatePassword(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.PasswordHash = hash
	}
	return nil
}

// Projects

// CreateProject stores p and the mentor assignment.
func (s *Store) CreateProject(_ context.Context, p *project.Project, mentorRollNo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projectByPID(p.PID) != nil {
		return project.ErrDuplicatePID
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = s.now()
	cp := *p
	s.projects = append(s.projects, &cp)
	s.assignments = append(s.assignments, project.Assignment{
		ID:        uuid.NewString(),
		RollNo:    mentorRollNo,
		ProjectID: p.PID,
		Role:      project.MemberFaculty,
		AppliedAt: s.now(),
	})
	return nil
}

// ProjectByID returns a copy of the project with id, or nil.
func (s *Store) ProjectByID(_ context.Context, id string) (*project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

// ListProjects returns every project, newest first.
func (s *Store) ListProjects(_ context.Context) ([]project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]project.Project, 0, len(s.projects))
	for i := len(s.projects) - 1; i >= 0; i-- {
		res = append(res, *s.projects[i])
	}
	return res, nil
}

// UpdateProject applies patch to the project with id and returns the result.
func (s *Store) UpdateProject(_ context.Context, id string, patch project.Patch) (*project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.ID != id {
			continue
		}
		patch.Apply(p)
		if patch.MentorID != nil && patch.MentorRollNo != "" {
			for i := range s.assignments {
				a := &s.assignments[i]
				if a.ProjectID == p.PID && a.Role == project.MemberFaculty {
					a.RollNo = patch.MentorRollNo
				}
			}
		}
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

// DeleteProject removes the project with id and its assignments.
func (s *Store) DeleteProject(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.projects {
		if p.ID != id {
			continue
		}
		s.projects = append(s.projects[:i], s.projects[i+1:]...)
		kept := s.assignments[:0]
		for _, a := range s.assignments {
			if a.ProjectID != p.PID {
				kept = append(kept, a)
			}
		}
		s.assignments = kept
		return true, nil
	}
	return false, nil
}

// ProjectsForMember lists the projects rollNo is assigned to with role.
func (s *Store) ProjectsForMember(_ context.Context, rollNo, role string) ([]project.MemberProject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []project.MemberProject
	for _, a := range s.assignments {
		if a.RollNo != rollNo || a.Role != role {
			continue
		}
		p := s.projectByPID(a.ProjectID)
		if p == nil {
			continue
		}
		res = append(res, project.MemberProject{
			PID:            p.PID,
			Title:          p.Title,
			Description:    p.Description,
			MentorID:       p.MentorID,
			ExecutionStart: p.ExecutionStart,
			ExecutionEnd:   p.ExecutionEnd,
			Slots:          p.Slots,
			TeamID:         a.TeamID,
			Role:           a.Role,
		})
	}
	return res, nil
}

// ProjectAssignments lists the assignments of pid with role.
func (s *Store) ProjectAssignments(_ context.Context, pid, role string) ([]project.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []project.Assignment
	for _, a := range s.assignments {
		if a.ProjectID == pid && (role == "" || a.Role == role) {
			res = append(res, a)
		}
	}
	return res, nil
}

// RegisteredStudents lists the team members of pid with their profiles.
func (s *Store) RegisteredStudents(_ context.Context, pid string) ([]project.RegisteredStudent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []project.RegisteredStudent
	for _, a := range s.assignments {
		if a.ProjectID != pid || a.Role != project.MemberStudent {
			continue
		}
		rs := project.RegisteredStudent{RollNo: a.RollNo, Name: "Unknown", Department: "Unknown", TeamID: a.TeamID}
		if id, ok := s.userRoll[a.RollNo]; ok {
			rs.Name = s.users[id].Name
			rs.Department = s.users[id].Dept
		}
		res = append(res, rs)
	}
	return res, nil
}

func (s *Store) projectByPID(pid string) *project.Project {
	for _, p := range s.projects {
		if p.PID == pid {
			return p
		}
	}
	return nil
}

// Enrollment

// ExistingStudents returns the rollNos that belong to student accounts.
func (s *Store) ExistingStudents(_ context.Context, rollNos []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []string
	for _, r := range rollNos {
		if id, ok := s.userRoll[r]; ok && s.users[id].Role == account.RoleStudent {
			res = append(res, r)
		}
	}
	return res, nil
}

// AssignedStudents returns the rollNos already in a team.
func (s *Store) AssignedStudents(_ context.Context, rollNos []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignedStudents(rollNos), nil
}

func (s *Store) assignedStudents(rollNos []string) []string {
	var res []string
	for _, r := range rollNos {
		for _, a := range s.assignments {
			if a.RollNo == r && a.Role == project.MemberStudent {
				res = append(res, r)
				break
			}
		}
	}
	return res
}

// TeamExists reports whether teamID is in use.
func (s *Store) TeamExists(_ context.Context, teamID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assignments {
		if a.TeamID != nil && *a.TeamID == teamID {
			return true, nil
		}
	}
	return false, nil
}

// Enroll takes one slot of pid and assigns rollNos to teamID.
func (s *Store) Enroll(_ context.Context, pid, teamID string, rollNos []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.projectByPID(pid)
	if p == nil {
		return 0, enrollment.ErrProjectNotFound
	}
	if p.Slots <= 0 {
		return 0, enrollment.ErrNoSlots
	}
	if len(s.assignedStudents(rollNos)) > 0 {
		return 0, enrollment.ErrAlreadyAssigned
	}
	p.Slots--
	for _, r := range rollNos {
		team := teamID
		s.assignments = append(s.assignments, project.Assignment{
			ID:        uuid.NewString(),
			RollNo:    r,
			ProjectID: pid,
			TeamID:    &team,
			Role:      project.MemberStudent,
			AppliedAt: s.now(),
		})
	}
	return p.Slots, nil
}

// Attendance

// UpsertAttendance inserts or overwrites the mark for its student, day and class hours.
func (s *Store) UpsertAttendance(_ context.Context, m attendance.Mark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attendanceKey{rollNo: m.RollNo, pid: m.PID, classKey: m.ClassKey(), day: m.Day}
	if rec, ok := s.attendance[key]; ok {
		rec.Present = m.Present
		rec.UpdatedAt = s.now()
		return nil
	}
	hours := append([]int(nil), m.ClassHours...)
	s.attendance[key] = &attendance.Record{
		ID:         uuid.NewString(),
		RollNo:     m.RollNo,
		PID:        m.PID,
		ClassHours: hours,
		Present:    m.Present,
		Date:       m.Day,
		UpdatedAt:  s.now(),
	}
	s.attendOrder = append(s.attendOrder, key)
	return nil
}

// FindAttendance returns the records of pid on day, optionally limited to hours.
func (s *Store) FindAttendance(_ context.Context, pid string, day time.Time, hours []int) ([]attendance.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[int]bool{}
	for _, h := range hours {
		want[h] = true
	}
	var res []attendance.Record
	for _, key := range s.attendOrder {
		rec := s.attendance[key]
		if rec.PID != pid || !rec.Date.Equal(day) {
			continue
		}
		for _, h := range rec.ClassHours {
			if want[h] {
				res = append(res, *rec)
				break
			}
		}
	}
	return res, nil
}

// StudentAttendance returns the first record of rollNo in pid on day, or nil.
func (s *Store) StudentAttendance(_ context.Context, pid, rollNo string, day time.Time) (*attendance.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range s.attendOrder {
		rec := s.attendance[key]
		if rec.PID == pid && rec.RollNo == rollNo && rec.Date.Equal(day) {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

// StartedProjects lists projects whose execution has begun by asOf.
func (s *Store) StartedProjects(_ context.Context, asOf time.Time) ([]attendance.ActiveProject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []attendance.ActiveProject
	for _, p := range s.projects {
		if p.ExecutionStart.After(asOf) {
			continue
		}
		ap := attendance.ActiveProject{PID: p.PID, Title: p.Title, Students: []string{}}
		for _, a := range s.assignments {
			if a.ProjectID == p.PID && a.Role == project.MemberStudent {
				ap.Students = append(ap.Students, a.RollNo)
			}
		}
		sort.Strings(ap.Students)
		res = append(res, ap)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].PID < res[j].PID })
	return res, nil
}

// DayStatuses maps each student marked in pid on day to whether any of their marks is present.
func (s *Store) DayStatuses(_ context.Context, pid string, day time.Time) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := map[string]bool{}
	for _, rec := range s.attendance {
		if rec.PID == pid && rec.Date.Equal(day) {
			res[rec.RollNo] = res[rec.RollNo] || rec.Present
		}
	}
	return res, nil
}

// Activity

// AppendActivity records a.
func (s *Store) AppendActivity(_ context.Context, a audit.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.activity = append(s.activity, a)
	return nil
}

// ListActivity returns up to limit entries, newest first.
func (s *Store) ListActivity(_ context.Context, limit int) ([]audit.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	res := make([]audit.Activity, 0, limit)
	for i := len(s.activity) - 1; i >= 0 && len(res) < limit; i-- {
		res = append(res, s.activity[i])
	}
	return res, nil
}

var (
	_ account.Store    = (*Store)(nil)
	_ project.Store    = (*Store)(nil)
	_ project.Users    = (*Store)(nil)
	_ enrollment.Store = (*Store)(nil)
	_ attendance.Store = (*Store)(nil)
	_ audit.Store      = (*Store)(nil)
)
