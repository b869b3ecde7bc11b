package web

import (
	"errors"
	"log"
	"net/http"

	"github.com/arenh/gomphos/domain"
	"github.com/gin-gonic/gin"
)

// abortWithError maps the shared error taxonomy onto HTTP statuses.
// Anything outside the taxonomy is a 500 and gets logged with detail;
// the client only sees a generic message.
func abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrMalformedActivity), errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domain.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrAlreadyRequested):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("Web: Internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
