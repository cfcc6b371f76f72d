// ABOUTME: Maps domain errors onto HTTP status codes
// ABOUTME: Every handler reports failures through writeError

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/harper/nexifeed/internal/models"
	"github.com/harper/nexifeed/internal/parse"
	"github.com/harper/nexifeed/internal/storage"
)

func statusFor(err error) int {
	var verr *models.ValidationError
	var ferr *parse.FetchError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &ferr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
