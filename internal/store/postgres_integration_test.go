package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"attendx/internal/account"
	"attendx/internal/attendance"
	"attendx/internal/audit"
	"attendx/internal/enrollment"
	"attendx/internal/project"
	"attendx/internal/store"
)

func startPostgres(t *testing.T) *store.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("attendx"),
		postgres.WithUsername("attendx"),
		postgres.WithPassword("attendx"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := store.NewDB(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, store.Migrate(db.Client))
	// applying twice is a no-op
	require.NoError(t, store.Migrate(db.Client))
	return db
}

func TestPostgresRepositories(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	users := account.NewRepository(db.Client)
	projects := project.NewRepository(db.Client)
	enroll := enrollment.NewRepository(db.Client)
	marks := attendance.NewRepository(db.Client)
	activity := audit.NewRepository(db.Client)

	mentor := &account.User{Name: "Dr. Rao", RollNo: "F1", Role: account.RoleFaculty}
	require.NoError(t, users.CreateUser(ctx, mentor))
	assert.ErrorIs(t, users.CreateUser(ctx, &account.User{Name: "x", RollNo: "F1", Role: account.RoleStudent}), account.ErrDuplicateRollNo)
	var students []string
	for _, roll := range []string{"S1", "S2", "S3", "S4", "S5", "S6"} {
		require.NoError(t, users.CreateUser(ctx, &account.User{Name: "Student " + roll, RollNo: roll, Role: account.RoleStudent, Dept: "CSE"}))
		students = append(students, roll)
	}

	t.Run("users", func(t *testing.T) {
		u, err := users.UserByRollNo(ctx, "S1")
		require.NoError(t, err)
		require.NotNil(t, u)
		assert.Equal(t, "Student S1", u.Name)

		none, err := users.UserByID(ctx, "not-a-uuid")
		require.NoError(t, err)
		assert.Nil(t, none)

		require.NoError(t, users.UpsertUser(ctx, &account.User{Name: "Renamed", RollNo: "S6", Role: account.RoleStudent, PasswordHash: "h"}))
		u, err = users.UserByRollNo(ctx, "S6")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", u.Name)

		faculty, err := users.UsersByRole(ctx, account.RoleFaculty)
		require.NoError(t, err)
		require.Len(t, faculty, 1)
		assert.Equal(t, mentor.ID, faculty[0].ID)
	})

	start := time.Now().UTC().AddDate(0, 0, -1)
	p := &project.Project{
		PID: "P1", Title: "Campus Nav", Description: "d",
		Deadline: start, ExecutionStart: start, ExecutionEnd: start.AddDate(0, 1, 0),
		Slots: 1, MentorID: mentor.ID,
	}
	require.NoError(t, projects.CreateProject(ctx, p, mentor.RollNo))
	dup := *p
	dup.ID = ""
	assert.ErrorIs(t, projects.CreateProject(ctx, &dup, mentor.RollNo), project.ErrDuplicatePID)

	t.Run("enrollment", func(t *testing.T) {
		existing, err := enroll.ExistingStudents(ctx, []string{"S1", "F1", "X9"})
		require.NoError(t, err)
		assert.Equal(t, []string{"S1"}, existing)

		remaining, err := enroll.Enroll(ctx, "P1", "team0001", students[:3])
		require.NoError(t, err)
		assert.Equal(t, 0, remaining)

		_, err = enroll.Enroll(ctx, "P1", "team0002", students[3:])
		assert.ErrorIs(t, err, enrollment.ErrNoSlots)
		_, err = enroll.Enroll(ctx, "NOPE", "team0003", students[3:])
		assert.ErrorIs(t, err, enrollment.ErrProjectNotFound)

		taken, err := enroll.TeamExists(ctx, "team0001")
		require.NoError(t, err)
		assert.True(t, taken)

		assigned, err := enroll.AssignedStudents(ctx, []string{"S3", "S4"})
		require.NoError(t, err)
		assert.Equal(t, []string{"S3"}, assigned)

		registered, err := projects.RegisteredStudents(ctx, "P1")
		require.NoError(t, err)
		assert.Len(t, registered, 3)

		mentored, err := projects.ProjectsForMember(ctx, "F1", project.MemberFaculty)
		require.NoError(t, err)
		require.Len(t, mentored, 1)
		assert.Nil(t, mentored[0].TeamID)
	})

	t.Run("concurrent enrollment", func(t *testing.T) {
		q := &project.Project{
			PID: "P2", Title: "Race", Description: "d",
			Deadline: start, ExecutionStart: start, ExecutionEnd: start,
			Slots: 5, MentorID: mentor.ID,
		}
		require.NoError(t, projects.CreateProject(ctx, q, mentor.RollNo))

		// S4 appears in every team: only one application may win
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := enroll.Enroll(ctx, "P2", "race000"+string(rune('a'+i)), []string{"S4", "S5", "S6"})
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				} else {
					assert.ErrorIs(t, err, enrollment.ErrAlreadyAssigned)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)

		got, err := projects.ProjectByID(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, got.Slots)
	})

	t.Run("attendance", func(t *testing.T) {
		day := attendance.Day(time.Now())
		mark := attendance.Mark{RollNo: "S1", PID: "P1", ClassHours: []int{1, 2}, Day: day, Present: true}
		require.NoError(t, marks.UpsertAttendance(ctx, mark))
		mark.Present = false
		require.NoError(t, marks.UpsertAttendance(ctx, mark))
		require.NoError(t, marks.UpsertAttendance(ctx, attendance.Mark{RollNo: "S2", PID: "P1", ClassHours: []int{3}, Day: day, Present: true}))

		recs, err := marks.FindAttendance(ctx, "P1", day, []int{2, 7})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.False(t, recs[0].Present)
		assert.Equal(t, []int{1, 2}, recs[0].ClassHours)

		rec, err := marks.StudentAttendance(ctx, "P1", "S2", day)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.True(t, rec.Present)

		statuses, err := marks.DayStatuses(ctx, "P1", day)
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{"S1": false, "S2": true}, statuses)

		active, err := marks.StartedProjects(ctx, time.Now())
		require.NoError(t, err)
		require.NotEmpty(t, active)
		assert.Equal(t, "P1", active[0].PID)
		assert.Equal(t, []string{"S1", "S2", "S3"}, active[0].Students)
	})

	t.Run("project update and delete", func(t *testing.T) {
		title := "Renamed"
		slots := 3
		got, err := projects.UpdateProject(ctx, p.ID, project.Patch{Title: &title, Slots: &slots})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Renamed", got.Title)
		assert.Equal(t, 3, got.Slots)

		ok, err := projects.DeleteProject(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		members, err := projects.ProjectAssignments(ctx, "P1", "")
		require.NoError(t, err)
		assert.Empty(t, members)

		ok, err = projects.DeleteProject(ctx, p.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("activity", func(t *testing.T) {
		require.NoError(t, activity.AppendActivity(ctx, audit.Activity{Topic: audit.TopicProjectCreated, Subject: "P1", Payload: map[string]any{"slots": 1}, OccurredAt: time.Now()}))
		require.NoError(t, activity.AppendActivity(ctx, audit.Activity{Topic: audit.TopicApplicationSubmitted, Subject: "P1", OccurredAt: time.Now().Add(time.Second)}))

		list, err := activity.ListActivity(ctx, 10)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, audit.TopicApplicationSubmitted, list[0].Topic)
		assert.Equal(t, float64(1), list[1].Payload["slots"])
	})
}
