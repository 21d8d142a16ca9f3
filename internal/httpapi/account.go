package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"attendx/internal/account"
	"attendx/internal/auth"
)

func (h *Handler) signup(c *gin.Context) {
	var in account.SignupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Missing required fields")
		return
	}
	u, tok, err := h.Accounts.Signup(c.Request.Context(), in)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "user": u, "token": tok.Value})
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Username and password are required")
		return
	}
	res, err := h.Accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Login successful",
		"token":     res.Token.Value,
		"expiresAt": res.Token.ExpiresAt.Unix(),
		"role":      res.User.Role,
		"dashboard": res.Dashboard,
		"user":      res.User,
	})
}

func (h *Handler) updatePassword(c *gin.Context) {
	var in account.PasswordChange
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "All fields are required")
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	if err := h.Accounts.ChangePassword(c.Request.Context(), claims.ID, in); err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
}

func (h *Handler) profile(c *gin.Context) {
	u, err := h.Accounts.Profile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) mentors(c *gin.Context) {
	users, err := h.Accounts.Mentors(c.Request.Context())
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) importUsers(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "No file uploaded")
		return
	}
	f, err := fh.Open()
	if err != nil {
		respond(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()

	var entries []account.RosterEntry
	if strings.EqualFold(filepath.Ext(fh.Filename), ".xlsx") {
		entries, err = account.ParseRosterXLSX(f)
	} else {
		entries, err = account.ParseRosterJSON(f)
	}
	if err != nil {
		if errors.Is(err, account.ErrInvalidRoster) {
			badRequest(c, "Invalid file format")
			return
		}
		respond(c, err)
		return
	}

	res, err := h.Accounts.ImportRoster(c.Request.Context(), entries)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  fmt.Sprintf("Users uploaded successfully! (%d/%d)", res.Imported, res.Total),
		"imported": res.Imported,
		"total":    res.Total,
	})
}
