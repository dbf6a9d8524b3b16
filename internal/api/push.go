package api

import (
	"net/http"
	"strconv"

	"github.com/Kerhoff/vpcs/internal/apperr"
	"github.com/Kerhoff/vpcs/internal/service"
	"github.com/gin-gonic/gin"
)

type unsubscribeRequest struct {
	SubscriptionID int64 `json:"subscription_id"`
}

func (s *Server) handleSubscribe(c *gin.Context) {
	var req service.SubscribeRequest
	if !s.bindJSON(c, &req) {
		return
	}
	req.UserAgent = c.Request.UserAgent()

	sub, err := s.svc.Subscribe(c.Request.Context(), currentUser(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusCreated, sub)
}

func (s *Server) handleUnsubscribe(c *gin.Context) {
	var req unsubscribeRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if req.SubscriptionID <= 0 {
		s.respondError(c, apperr.Validation("subscription_id", "Subscription id is required"))
		return
	}

	if err := s.svc.Unsubscribe(c.Request.Context(), currentUser(c), req.SubscriptionID); err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, gin.H{"status": "unsubscribed"})
}

func (s *Server) handleListSubscriptions(c *gin.Context) {
	subs, err := s.svc.ListSubscriptions(c.Request.Context(), currentUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, subs)
}

func (s *Server) handleSubscriptionStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("subscriptionId"), 10, 64)
	if err != nil {
		s.respondError(c, apperr.Validation("subscriptionId", "Invalid subscription id"))
		return
	}

	status, err := s.svc.GetSubscriptionStatus(c.Request.Context(), currentUser(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, status)
}

func (s *Server) handleGetPushSettings(c *gin.Context) {
	settings, err := s.svc.NotificationSettings(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, settings)
}

func (s *Server) handleUpdatePushSettings(c *gin.Context) {
	var req map[string]string
	if !s.bindJSON(c, &req) {
		return
	}

	settings, err := s.svc.UpdateNotificationSettings(c.Request.Context(), currentUser(c).ID, req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, settings)
}

func (s *Server) handleSendTest(c *gin.Context) {
	sent, total, err := s.svc.SendTestNotification(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, gin.H{"sent": sent, "total": total})
}
