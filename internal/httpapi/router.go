// Package httpapi exposes the AttendX services over HTTP+JSON.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attendx/internal/account"
	"attendx/internal/attendance"
	"attendx/internal/audit"
	"attendx/internal/auth"
	"attendx/internal/enrollment"
	"attendx/internal/httpmiddleware"
	"attendx/internal/metrics"
	"attendx/internal/project"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Handler wires the services to gin routes. Events, Metrics, Limiter and
// Gatherer are optional.
type Handler struct {
	Accounts   *account.Service
	Projects   *project.Service
	Enrollment *enrollment.Service
	Attendance *attendance.Service
	Activity   audit.Store
	Events     *audit.Publisher
	Tokens     *auth.Issuer
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	Limiter    httpmiddleware.Limiter
	Health     map[string]HealthCheck
	// UploadDir is served under /uploads when set.
	UploadDir string
}

// Router builds the gin engine with every route registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	if h.Metrics != nil {
		r.Use(h.Metrics.GinMiddleware())
	}
	if h.Limiter != nil {
		r.Use(httpmiddleware.GinMiddleware(h.Limiter))
	}

	if h.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/healthz", h.healthz)
	if h.UploadDir != "" {
		r.Static("/uploads", h.UploadDir)
	}

	bearer := auth.Bearer(h.Tokens)
	admin := auth.RequireRole(string(account.RoleAdmin))
	staff := auth.RequireRole(string(account.RoleAdmin), string(account.RoleFaculty))
	student := auth.RequireRole(string(account.RoleStudent))

	r.POST("/signup", h.signup)
	r.POST("/login", h.login)
	r.POST("/updatePwd", bearer, h.updatePassword)
	r.GET("/users/:id", bearer, h.profile)
	r.GET("/mentors", bearer, h.mentors)

	r.GET("/projects", h.listProjects)
	r.GET("/projects/:id", h.getProject)
	r.POST("/createProject", bearer, staff, h.createProject)
	r.PUT("/projects/:id", bearer, staff, h.updateProject)
	r.DELETE("/projects/:id", bearer, admin, h.deleteProject)
	r.GET("/userprojects/:rollno", bearer, h.studentProjects)
	r.GET("/getFacProjects/:rollno", bearer, h.mentorProjects)
	r.GET("/studentsRegistered/:pid", bearer, h.registeredStudents)
	r.GET("/students/:pid", bearer, h.roster)

	r.POST("/apply", bearer, student, h.apply)

	r.POST("/attendance", bearer, staff, h.markAttendance)
	r.GET("/attendance", bearer, h.queryAttendance)
	r.GET("/attendance/:pid/:date/:rollno", bearer, h.studentAttendance)

	adm := r.Group("/admin", bearer, admin)
	adm.POST("/users/import", h.importUsers)
	adm.GET("/attendance/active", h.activeAttendance)
	adm.GET("/activity", h.activity)

	return r
}

func (h *Handler) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.Health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// corsMiddleware allows browser and Expo web clients.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
