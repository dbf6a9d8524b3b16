package api

import (
	"encoding/json"
	"net/http"

	"github.com/Kerhoff/vpcs/internal/apperr"
	"github.com/Kerhoff/vpcs/internal/auth"
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/gin-gonic/gin"
)

type registerStartRequest struct {
	Username    string      `json:"username"`
	Role        models.Role `json:"role"`
	ResumeToken string      `json:"resume_token"`
}

type ceremonyStartRequest struct {
	Username string `json:"username"`
}

// ceremonyFinishRequest carries the browser's credential JSON untouched.
type ceremonyFinishRequest struct {
	Username string          `json:"username"`
	Response json.RawMessage `json:"response"`
}

func (r *ceremonyFinishRequest) validate() error {
	if len(r.Response) == 0 {
		return apperr.Validation("response", "Credential response is required")
	}
	return nil
}

func (s *Server) handleRegisterStart(c *gin.Context) {
	var req registerStartRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if req.Role == "" {
		req.Role = models.RoleParent
	}

	reg, err := s.auth.StartRegistration(c.Request.Context(), req.Username, req.Role, req.ResumeToken)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, gin.H{
		"options":      reg.Options,
		"user_id":      reg.User.ID,
		"resume_token": reg.ResumeToken,
	})
}

func (s *Server) handleRegisterFinish(c *gin.Context) {
	var req ceremonyFinishRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if err := req.validate(); err != nil {
		s.respondError(c, err)
		return
	}

	user, err := s.auth.FinishRegistration(c.Request.Context(), req.Username, req.Response)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.startSession(c, user)
}

func (s *Server) handleLoginStart(c *gin.Context) {
	var req ceremonyStartRequest
	if !s.bindJSON(c, &req) {
		return
	}

	options, err := s.auth.StartLogin(c.Request.Context(), req.Username)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, gin.H{"options": options})
}

func (s *Server) handleLoginFinish(c *gin.Context) {
	var req ceremonyFinishRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if err := req.validate(); err != nil {
		s.respondError(c, err)
		return
	}

	session, err := s.auth.FinishLogin(c.Request.Context(), req.Username, req.Response)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.writeSession(c, session)
}

func (s *Server) handleLogout(c *gin.Context) {
	s.setSessionCookie(c, "", -1)
	s.respondJSON(c, http.StatusOK, gin.H{"status": "logged_out"})
}

func (s *Server) handleMe(c *gin.Context) {
	user, family, err := s.svc.Me(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if user == nil {
		s.respondError(c, apperr.Unauthorized("User no longer exists"))
		return
	}
	s.respondJSON(c, http.StatusOK, gin.H{"user": user, "family": family})
}

// startSession signs the user in right after a completed registration.
func (s *Server) startSession(c *gin.Context, user *models.User) {
	session, err := s.auth.IssueSession(user)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.writeSession(c, session)
}

func (s *Server) writeSession(c *gin.Context, session *auth.Session) {
	s.setSessionCookie(c, session.Token, int(s.auth.Tokens().TTL().Seconds()))
	s.respondJSON(c, http.StatusOK, gin.H{
		"verified":   true,
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
		"user":       session.User,
	})
}
