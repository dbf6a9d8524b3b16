package api

import (
	"net/http"
	"strconv"

	"github.com/Kerhoff/vpcs/internal/apperr"
	"github.com/Kerhoff/vpcs/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type familySettingsRequest struct {
	FamilyNumber string `json:"family_number"`
	Surname      string `json:"surname"`
}

type defaultLimitRequest struct {
	DefaultLimit *decimal.Decimal `json:"default_limit"`
}

func (s *Server) handleGetFamilySettings(c *gin.Context) {
	settings, err := s.svc.GetFamilySettings(c.Request.Context(), currentUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, settings)
}

func (s *Server) handleSaveFamilySettings(c *gin.Context) {
	var req familySettingsRequest
	if !s.bindJSON(c, &req) {
		return
	}

	family, err := s.svc.SaveFamilySettings(c.Request.Context(), currentUser(c), req.FamilyNumber, req.Surname)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, family)
}

func (s *Server) handleSetDefaultLimit(c *gin.Context) {
	var req defaultLimitRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if req.DefaultLimit == nil {
		s.respondError(c, apperr.Validation("default_limit", "Default limit is required"))
		return
	}

	if err := s.svc.SetDefaultLimit(c.Request.Context(), currentUser(c), *req.DefaultLimit); err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, gin.H{"default_limit": req.DefaultLimit})
}

func (s *Server) handleListVendorLimits(c *gin.Context) {
	limits, err := s.svc.ListVendorLimits(c.Request.Context(), currentUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, limits)
}

func (s *Server) handleSetVendorLimit(c *gin.Context) {
	var req service.VendorLimitInput
	if !s.bindJSON(c, &req) {
		return
	}

	limit, err := s.svc.SetVendorLimit(c.Request.Context(), currentUser(c), c.Param("vendorId"), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, limit)
}

func (s *Server) handleDeleteVendorLimit(c *gin.Context) {
	if err := s.svc.DeleteVendorLimit(c.Request.Context(), currentUser(c), c.Param("vendorId")); err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusNoContent, nil)
}

func (s *Server) handleFamilyTransactions(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 200 {
			s.respondError(c, apperr.Validation("limit", "Limit must be between 1 and 200"))
			return
		}
		limit = v
	}

	txs, err := s.svc.FamilyTransactions(c.Request.Context(), currentUser(c), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondJSON(c, http.StatusOK, txs)
}
