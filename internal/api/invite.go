package api

import (
	"net/http"

	"github.com/Kerhoff/vpcs/internal/apperr"
	"github.com/gin-gonic/gin"
)

type inviteStartRequest struct {
	Token       string `json:"token"`
	Username    string `json:"username"`
	ResumeToken string `json:"resume_token"`
}

type inviteFinishRequest struct {
	Token string `json:"token"`
	ceremonyFinishRequest
}

func (s *Server) handleInviteCreate(c *gin.Context) {
	link, err := s.svc.CreateInvite(c.Request.Context(), currentUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusCreated, gin.H{"token": link.Token, "expires_at": link.ExpiresAt})
}

func (s *Server) handleInviteValidate(c *gin.Context) {
	info, err := s.svc.ValidateInvite(c.Request.Context(), c.Param("token"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, info)
}

func (s *Server) handleInviteStart(c *gin.Context) {
	var req inviteStartRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if req.Token == "" {
		s.respondError(c, apperr.Validation("token", "Invite token is required"))
		return
	}

	reg, err := s.svc.StartInvite(c.Request.Context(), req.Token, req.Username, req.ResumeToken)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, gin.H{"options": reg.Options, "resume_token": reg.ResumeToken})
}

func (s *Server) handleInviteFinish(c *gin.Context) {
	var req inviteFinishRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if req.Token == "" {
		s.respondError(c, apperr.Validation("token", "Invite token is required"))
		return
	}
	if err := req.validate(); err != nil {
		s.respondError(c, err)
		return
	}

	user, err := s.svc.FinishInvite(c.Request.Context(), req.Token, req.Response)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.startSession(c, user)
}
