package api

import (
	"net/http"

	"github.com/Kerhoff/vpcs/internal/apperr"
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/service"
	"github.com/gin-gonic/gin"
)

type familyInfoRequest struct {
	Number string `json:"number"`
}

func (s *Server) handleGetVendorProfile(c *gin.Context) {
	vendor, err := s.svc.GetVendorProfile(c.Request.Context(), currentUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, vendor)
}

func (s *Server) handleSaveVendorProfile(c *gin.Context) {
	var req service.VendorProfile
	if !s.bindJSON(c, &req) {
		return
	}

	vendor, err := s.svc.SaveVendorProfile(c.Request.Context(), currentUser(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, vendor)
}

func (s *Server) handleVendorPayment(c *gin.Context) {
	var req service.PurchaseRequest
	if !s.bindJSON(c, &req) {
		return
	}

	res, err := s.svc.SubmitVendorPayment(c.Request.Context(), currentUser(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, res)
}

func (s *Server) handleVendorHistory(c *gin.Context) {
	txs, err := s.svc.VendorHistory(c.Request.Context(), currentUser(c), c.Query("vendorId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	s.respondJSON(c, http.StatusOK, txs)
}

func (s *Server) handleFamilyInfo(c *gin.Context) {
	var req familyInfoRequest
	if !s.bindJSON(c, &req) {
		return
	}

	info, err := s.svc.FamilyInfo(c.Request.Context(), currentUser(c), req.Number)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, info)
}

func (s *Server) handleCachedSurname(c *gin.Context) {
	entry, err := s.svc.CachedSurname(c.Request.Context(), currentUser(c), c.Param("family_number"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, entry)
}

// handleVendorWS streams resolution events for the caller's own transactions.
func (s *Server) handleVendorWS(c *gin.Context) {
	user := currentUser(c)
	if user.Role != models.RoleVendor {
		s.respondError(c, apperr.Forbidden("Vendor account required"))
		return
	}
	if err := s.feed.Serve(c, user.Username); err != nil {
		s.logger.WithError(err).WithField("vendor_id", user.Username).Warn("Failed to upgrade vendor feed")
	}
}
