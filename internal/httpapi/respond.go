package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"attendx/internal/apperr"
)

// respond writes err as {"message": ...}. Unclassified errors are logged and
// answered with a generic 500.
func respond(c *gin.Context, err error) {
	status := apperr.StatusOf(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request.Method, "route", c.FullPath(), "err", err)
		c.JSON(status, gin.H{"message": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"message": apperr.MessageOf(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": msg})
}
