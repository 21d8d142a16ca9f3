package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendx/internal/account"
	"attendx/internal/attendance"
	"attendx/internal/audit"
	"attendx/internal/auth"
	"attendx/internal/enrollment"
	"attendx/internal/httpapi"
	"attendx/internal/memstore"
	"attendx/internal/metrics"
	"attendx/internal/project"
	"attendx/internal/queue"
)

type env struct {
	t      *testing.T
	st     *memstore.Store
	h      *httpapi.Handler
	router *gin.Engine
	events *queue.InMemory
	users  map[string]*account.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := memstore.New()
	tokens := auth.NewIssuer("attendx-test", "test-secret", time.Hour)
	reg := prometheus.NewRegistry()
	events := queue.NewInMemory(64)

	h := &httpapi.Handler{
		Accounts:   account.NewService(st, tokens),
		Projects:   project.NewService(st, st, nil),
		Enrollment: enrollment.NewService(st),
		Attendance: attendance.NewService(st),
		Activity:   st,
		Events:     audit.NewPublisher(events),
		Tokens:     tokens,
		Metrics:    metrics.New(reg),
		Gatherer:   reg,
		Health:     map[string]httpapi.HealthCheck{"db": func(context.Context) bool { return true }},
	}
	e := &env{t: t, st: st, h: h, router: h.Router(), events: events, users: map[string]*account.User{}}
	e.user("A1", account.RoleAdmin)
	e.user("F1", account.RoleFaculty)
	for _, roll := range []string{"S1", "S2", "S3", "S4", "S5", "S6"} {
		e.user(roll, account.RoleStudent)
	}
	return e
}

func (e *env) user(roll string, role account.Role) *account.User {
	e.t.Helper()
	hash, err := auth.HashPassword("pw-" + roll)
	require.NoError(e.t, err)
	u := &account.User{Name: "User " + roll, RollNo: roll, Role: role, PasswordHash: hash, Dept: "CSE", Section: "A"}
	require.NoError(e.t, e.st.CreateUser(context.Background(), u))
	e.users[roll] = u
	return u
}

func (e *env) token(roll string) string {
	e.t.Helper()
	u := e.users[roll]
	tok, err := e.h.Tokens.Issue(auth.Identity{ID: u.ID, RollNo: u.RollNo, Role: string(u.Role)})
	require.NoError(e.t, err)
	return tok.Value
}

func (e *env) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return e.send(req, token)
}

func (e *env) send(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) project(pid string, slots int) *project.Project {
	e.t.Helper()
	now := time.Now().UTC()
	p := &project.Project{
		PID: pid, Title: "Project " + pid, Description: "d",
		Deadline: now, ExecutionStart: now.AddDate(0, 0, -1), ExecutionEnd: now.AddDate(0, 1, 0),
		Slots: slots, MentorID: e.users["F1"].ID,
	}
	require.NoError(e.t, e.st.CreateProject(context.Background(), p, "F1"))
	return p
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func TestSignupLoginAndPasswordChange(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/signup", "", map[string]string{
		"name": "Asha", "rollno": "22CS001", "password": "old-pass", "dept": "CSE", "section": "B",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["token"])
	assert.NotContains(t, w.Body.String(), "old-pass")

	w = e.do(http.MethodPost, "/signup", "", map[string]string{
		"name": "Asha", "rollno": "22CS001", "password": "x", "dept": "CSE", "section": "B",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "User already exists", decode(t, w)["message"])

	w = e.do(http.MethodPost, "/login", "", map[string]string{"username": "22CS001", "password": "old-pass"})
	require.Equal(t, http.StatusOK, w.Code)
	login := decode(t, w)
	assert.Equal(t, "student", login["role"])
	assert.Equal(t, "/stuDashboard", login["dashboard"])
	token := login["token"].(string)
	userID := login["user"].(map[string]any)["id"].(string)

	w = e.do(http.MethodPost, "/updatePwd", token, map[string]string{"userId": userID, "oldPassword": "wrong", "newPassword": "new-pass"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Current password is incorrect", decode(t, w)["message"])

	w = e.do(http.MethodPost, "/updatePwd", token, map[string]string{"userId": e.users["S1"].ID, "oldPassword": "old-pass", "newPassword": "new-pass"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodPost, "/updatePwd", token, map[string]string{"userId": userID, "oldPassword": "old-pass", "newPassword": "new-pass"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(http.MethodPost, "/login", "", map[string]string{"username": "22CS001", "password": "old-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = e.do(http.MethodPost, "/login", "", map[string]string{"username": "22CS001", "password": "new-pass"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodPost, "/updatePwd", "", map[string]string{"userId": userID})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestApplyFlow(t *testing.T) {
	e := newEnv(t)
	e.project("P1", 1)

	w := e.do(http.MethodPost, "/apply", e.token("S1"), map[string]any{"projectId": "P1", "teamMembers": []string{"S1", "S2", "S3"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Application submitted successfully!", body["message"])
	assert.Len(t, body["teamId"], 8)

	w = e.do(http.MethodPost, "/apply", e.token("S4"), map[string]any{"projectId": "P1", "teamMembers": []string{"S4", "S5", "S6"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No slots available for this project.", decode(t, w)["message"])

	assert.Equal(t, float64(1), testutil.ToFloat64(e.h.Metrics.Applications.WithLabelValues("accepted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(e.h.Metrics.Applications.WithLabelValues("rejected")))

	w = e.do(http.MethodGet, "/userprojects/S2", e.token("S2"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var projects []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &projects))
	require.Len(t, projects, 1)
	assert.Equal(t, body["teamId"], projects[0]["teamId"])

	w = e.do(http.MethodGet, "/studentsRegistered/P1", e.token("F1"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"User S3"`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := e.events.Consume(ctx)
	require.NoError(t, err)
	select {
	case msg := <-msgs:
		assert.Equal(t, audit.TopicApplicationSubmitted, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestApplyRequiresSubmitterFirst(t *testing.T) {
	e := newEnv(t)
	e.project("P1", 1)

	w := e.do(http.MethodPost, "/apply", e.token("S1"), map[string]any{"projectId": "P1", "teamMembers": []string{"S2", "S1", "S3"}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodPost, "/apply", e.token("F1"), map[string]any{"projectId": "P1", "teamMembers": []string{"F1", "S1", "S3"}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodPost, "/apply", e.token("S1"), map[string]any{"projectId": "P1", "teamMembers": []string{"S1"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request data", decode(t, w)["message"])
}

func TestAttendanceUpsertAndQuery(t *testing.T) {
	e := newEnv(t)
	tok := e.token("F1")

	submit := func(status bool) *httptest.ResponseRecorder {
		return e.do(http.MethodPost, "/attendance", tok, map[string]any{"attendanceData": []map[string]any{
			{"rollNo": "S1", "pid": "P1", "selectedClasses": []int{1, 2}, "date": "2024-03-04", "attendanceStatus": status},
		}})
	}
	w := submit(true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Attendance updated successfully", decode(t, w)["message"])
	require.Equal(t, http.StatusOK, submit(false).Code)

	w = e.do(http.MethodGet, "/attendance?pid=P1&date=2024-03-04&classHours=2,5", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, false, records[0]["attendanceStatus"])

	w = e.do(http.MethodGet, "/attendance?pid=P1&date=2024-03-05&classHours=1", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(http.MethodGet, "/attendance?pid=P1", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodGet, "/attendance/P1/2024-03-04/S1", e.token("S1"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "S1", decode(t, w)["rollNo"])
	w = e.do(http.MethodGet, "/attendance/P1/2024-03-04/S2", e.token("S2"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null", strings.TrimSpace(w.Body.String()))

	w = e.do(http.MethodPost, "/attendance", e.token("S1"), map[string]any{"attendanceData": []any{}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAttendancePartialBatch(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPost, "/attendance", e.token("A1"), map[string]any{"attendanceData": []map[string]any{
		{"rollNo": "S1", "pid": "P1", "selectedClasses": []int{1}, "date": "2024-03-04", "attendanceStatus": true},
		{"rollNo": "S2", "pid": "P1", "selectedClasses": []int{}, "date": "2024-03-04", "attendanceStatus": true},
	}})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Attendance partially updated", body["message"])
	assert.Equal(t, float64(1), body["saved"])
	assert.Len(t, body["failed"], 1)

	w = e.do(http.MethodPost, "/attendance", e.token("A1"), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No attendance data provided", decode(t, w)["message"])

	w = e.do(http.MethodPost, "/attendance", e.token("A1"), map[string]any{"attendanceData": "S1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No attendance data provided", decode(t, w)["message"])
}

func TestAttendanceBatchSurvivesMistypedEntries(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPost, "/attendance", e.token("F1"), map[string]any{"attendanceData": []map[string]any{
		{"rollNo": "S1", "pid": "P1", "selectedClasses": []int{1}, "date": "2024-03-04", "attendanceStatus": true},
		{"rollNo": "S2", "pid": "P1", "selectedClasses": []int{1}, "date": "2024-03-04", "attendanceStatus": "present"},
		{"rollNo": "S3", "pid": "P1", "selectedClasses": []string{"1"}, "date": "2024-03-04", "attendanceStatus": true},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Message string                    `json:"message"`
		Saved   int                       `json:"saved"`
		Failed  []attendance.EntryFailure `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Attendance partially updated", body.Message)
	assert.Equal(t, 1, body.Saved)
	require.Len(t, body.Failed, 2)
	assert.Equal(t, attendance.EntryFailure{Index: 1, RollNo: "S2", Reason: "invalid attendanceStatus"}, body.Failed[0])
	assert.Equal(t, 2, body.Failed[1].Index)
	assert.Equal(t, "S3", body.Failed[1].RollNo)

	rec, err := e.st.StudentAttendance(context.Background(), "P1", "S1", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Present)
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestCreateProject(t *testing.T) {
	e := newEnv(t)
	fields := map[string]string{
		"pid":                "P9",
		"projectName":        "Smart Campus",
		"projectDesc":        "Sensors",
		"projectDeadline":    "2024-02-01",
		"executionStartDate": "2024-02-10",
		"executionEndDate":   "2024-05-10",
		"projectSlots":       "4",
	}
	post := func(token string, fields map[string]string) *httptest.ResponseRecorder {
		body, ct := multipartBody(t, fields, "", "", nil)
		req := httptest.NewRequest(http.MethodPost, "/createProject", body)
		req.Header.Set("Content-Type", ct)
		return e.send(req, token)
	}

	assert.Equal(t, http.StatusUnauthorized, post("", fields).Code)
	assert.Equal(t, http.StatusForbidden, post(e.token("S1"), fields).Code)

	w := post(e.token("F1"), fields)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)["project"].(map[string]any)
	assert.Equal(t, e.users["F1"].ID, created["mentor"])
	assert.Equal(t, float64(4), created["slots"])

	w = post(e.token("F1"), fields)
	assert.Equal(t, http.StatusConflict, w.Code)

	fields["pid"] = "P10"
	fields["projectSlots"] = "many"
	assert.Equal(t, http.StatusBadRequest, post(e.token("F1"), fields).Code)

	fields["projectSlots"] = "2"
	w = post(e.token("A1"), fields)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Mentor is required", decode(t, w)["message"])

	w = e.do(http.MethodGet, "/getFacProjects/F1", e.token("F1"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pid":"P9"`)
}

func TestProjectUpdateAndDelete(t *testing.T) {
	e := newEnv(t)
	p := e.project("P1", 2)

	w := e.do(http.MethodPut, "/projects/"+p.ID, e.token("F1"), map[string]any{"title": "Renamed", "slots": 7})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Renamed", body["title"])
	assert.Equal(t, float64(7), body["slots"])

	w = e.do(http.MethodGet, "/projects/"+p.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Renamed", decode(t, w)["title"])

	w = e.do(http.MethodPut, "/projects/"+p.ID, e.token("F1"), map[string]any{"mentor": e.users["S1"].ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Mentor must be a faculty member", decode(t, w)["message"])

	w = e.do(http.MethodPut, "/projects/"+p.ID, e.token("F1"), map[string]any{"executionEndDate": "2000-01-01"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "executionEndDate must not be before executionStartDate", decode(t, w)["message"])

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodDelete, "/projects/"+p.ID, e.token("F1"), nil).Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodDelete, "/projects/"+p.ID, e.token("A1"), nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/projects/"+p.ID, e.token("A1"), nil).Code)

	w = e.do(http.MethodGet, "/projects", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestImportUsers(t *testing.T) {
	e := newEnv(t)
	roster := `[{"name":"New","rollno":"S7","password":"p"},{"name":"","rollno":"S8","password":"p"}]`
	body, ct := multipartBody(t, nil, "file", "roster.json", []byte(roster))
	req := httptest.NewRequest(http.MethodPost, "/admin/users/import", body)
	req.Header.Set("Content-Type", ct)

	w := e.send(req, e.token("A1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Users uploaded successfully! (1/2)", decode(t, w)["message"])

	w = e.do(http.MethodPost, "/login", "", map[string]string{"username": "S7", "password": "p"})
	assert.Equal(t, http.StatusOK, w.Code)

	body, ct = multipartBody(t, nil, "file", "roster.json", []byte("not json"))
	req = httptest.NewRequest(http.MethodPost, "/admin/users/import", body)
	req.Header.Set("Content-Type", ct)
	w = e.send(req, e.token("A1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid file format", decode(t, w)["message"])
}

func TestAdminViews(t *testing.T) {
	e := newEnv(t)
	e.project("P1", 1)
	_, err := e.st.Enroll(context.Background(), "P1", "team0001", []string{"S1", "S2", "S3"})
	require.NoError(t, err)
	require.NoError(t, e.st.AppendActivity(context.Background(), audit.Activity{Topic: audit.TopicProjectCreated, Subject: "P1", OccurredAt: time.Now()}))

	w := e.do(http.MethodGet, "/admin/attendance/active", e.token("A1"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var overview []attendance.ProjectAttendance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &overview))
	require.Len(t, overview, 1)
	assert.Len(t, overview[0].Students, 3)

	w = e.do(http.MethodGet, "/admin/activity?limit=5", e.token("A1"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), audit.TopicProjectCreated)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/admin/activity", e.token("F1"), nil).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["db"])

	e.h.Health["redis"] = func(context.Context) bool { return false }
	w = e.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = e.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "attendx_http_requests_total")

	req := httptest.NewRequest(http.MethodOptions, "/projects", nil)
	req.Header.Set("Origin", "http://localhost:8081")
	w = e.send(req, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:8081", w.Header().Get("Access-Control-Allow-Origin"))
}
