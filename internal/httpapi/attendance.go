package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"attendx/internal/attendance"
	"attendx/internal/audit"
	"attendx/internal/auth"
)

func (h *Handler) markAttendance(c *gin.Context) {
	var req struct {
		AttendanceData []json.RawMessage `json:"attendanceData"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "No attendance data provided")
		return
	}
	res, err := h.Attendance.MarkRaw(c.Request.Context(), req.AttendanceData)
	h.countEntries(res)
	if err != nil {
		respond(c, err)
		return
	}

	claims, _ := auth.ClaimsFrom(c)
	for _, pid := range res.Projects {
		h.Events.Publish(c.Request.Context(), audit.TopicAttendanceMarked, pid, map[string]any{
			"saved":  res.Saved,
			"failed": len(res.Failed),
			"by":     claims.RollNo,
		})
	}

	msg := "Attendance updated successfully"
	if len(res.Failed) > 0 {
		msg = "Attendance partially updated"
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "saved": res.Saved, "failed": res.Failed})
}

func (h *Handler) countEntries(res attendance.BatchResult) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.AttendanceEntries.WithLabelValues("saved").Add(float64(res.Saved))
	h.Metrics.AttendanceEntries.WithLabelValues("failed").Add(float64(len(res.Failed)))
}

func (h *Handler) queryAttendance(c *gin.Context) {
	records, err := h.Attendance.Query(c.Request.Context(), c.Query("pid"), c.Query("date"), c.Query("classHours"))
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) studentAttendance(c *gin.Context) {
	rec, err := h.Attendance.StudentDay(c.Request.Context(), c.Param("pid"), c.Param("date"), c.Param("rollno"))
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) activeAttendance(c *gin.Context) {
	overview, err := h.Attendance.ActiveOverview(c.Request.Context())
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (h *Handler) activity(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	entries, err := h.Activity.ListActivity(c.Request.Context(), limit)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
