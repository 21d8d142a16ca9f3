package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"attendx/internal/audit"
	"attendx/internal/auth"
	"attendx/internal/project"
)

// maxImageBytes bounds project image uploads.
const maxImageBytes = 10 << 20

func (h *Handler) createProject(c *gin.Context) {
	in := project.CreateInput{
		PID:                c.PostForm("pid"),
		Title:              c.PostForm("projectName"),
		Description:        c.PostForm("projectDesc"),
		Deadline:           c.PostForm("projectDeadline"),
		ExecutionStartDate: c.PostForm("executionStartDate"),
		ExecutionEndDate:   c.PostForm("executionEndDate"),
		MentorID:           c.PostForm("mentor"),
	}
	if raw := strings.TrimSpace(c.PostForm("projectSlots")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "projectSlots must be a number")
			return
		}
		in.Slots = n
	}

	if fh, err := c.FormFile("projectImage"); err == nil {
		if fh.Size > maxImageBytes {
			badRequest(c, "projectImage is too large")
			return
		}
		f, err := fh.Open()
		if err != nil {
			respond(c, fmt.Errorf("open image: %w", err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			respond(c, fmt.Errorf("read image: %w", err))
			return
		}
		in.ImageName = fh.Filename
		in.ImageData = data
	}

	claims, _ := auth.ClaimsFrom(c)
	p, err := h.Projects.Create(c.Request.Context(), claims.Identity(), in)
	if err != nil {
		respond(c, err)
		return
	}
	h.Events.Publish(c.Request.Context(), audit.TopicProjectCreated, p.PID, map[string]any{
		"title":  p.Title,
		"slots":  p.Slots,
		"mentor": p.MentorID,
		"by":     claims.RollNo,
	})
	c.JSON(http.StatusCreated, gin.H{"message": "Project created successfully", "project": p})
}

func (h *Handler) listProjects(c *gin.Context) {
	projects, err := h.Projects.List(c.Request.Context())
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (h *Handler) getProject(c *gin.Context) {
	p, err := h.Projects.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) updateProject(c *gin.Context) {
	var in project.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request data")
		return
	}
	p, err := h.Projects.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) deleteProject(c *gin.Context) {
	if err := h.Projects.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Project deleted successfully"})
}

func (h *Handler) studentProjects(c *gin.Context) {
	res, err := h.Projects.StudentProjects(c.Request.Context(), c.Param("rollno"))
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) mentorProjects(c *gin.Context) {
	res, err := h.Projects.MentorProjects(c.Request.Context(), c.Param("rollno"))
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) registeredStudents(c *gin.Context) {
	res, err := h.Projects.RegisteredStudents(c.Request.Context(), c.Param("pid"))
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) roster(c *gin.Context) {
	res, err := h.Projects.Roster(c.Request.Context(), c.Param("pid"))
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
