package api

import (
	"net/http"

	"github.com/Kerhoff/vpcs/internal/service"
	"github.com/gin-gonic/gin"
)

func (s *Server) handlePurchaseRequest(c *gin.Context) {
	var req service.PurchaseRequest
	if !s.bindJSON(c, &req) {
		return
	}

	res, err := s.svc.SubmitPurchase(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, res)
}

// handleApprovalResponse is the unauthenticated decision endpoint used by the
// notification action buttons.
func (s *Server) handleApprovalResponse(c *gin.Context) {
	var req service.ApprovalResponse
	if !s.bindJSON(c, &req) {
		return
	}

	res, err := s.svc.RespondToApproval(c.Request.Context(), req, nil)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, res)
}

type pushRespondRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

func (s *Server) handlePushRespond(c *gin.Context) {
	var req pushRespondRequest
	if !s.bindJSON(c, &req) {
		return
	}

	res, err := s.svc.RespondToApproval(c.Request.Context(), service.ApprovalResponse{
		TransactionID: c.Param("transactionId"),
		Action:        req.Action,
		Reason:        req.Reason,
	}, currentUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, res)
}
