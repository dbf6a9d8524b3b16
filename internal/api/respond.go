package api

import (
	"net/http"

	"github.com/Kerhoff/vpcs/internal/apperr"
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const currentUserKey = "currentUser"

func (s *Server) respondJSON(c *gin.Context, status int, data any) {
	if data == nil {
		c.Status(status)
		return
	}
	c.JSON(status, data)
}

// respondError maps classified errors to their status code. Anything
// unclassified is logged and reported without detail.
func (s *Server) respondError(c *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok || e.Kind == apperr.KindInternal {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "internal server error"})
		return
	}

	body := gin.H{"status": "error", "error": e.Message}
	if e.Field != "" {
		body["field"] = e.Field
	}
	c.JSON(e.Kind.HTTPStatus(), body)
}

// bindJSON decodes the request body and reports malformed input as a
// validation error. The caller returns when ok is false.
func (s *Server) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.respondError(c, apperr.Wrap(apperr.KindValidation, "Invalid JSON body", err))
		return false
	}
	return true
}

func currentUser(c *gin.Context) *models.User {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
