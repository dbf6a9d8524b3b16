package api

import (
	"encoding/json"
	"time"

	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/olahol/melody"
	"github.com/sirupsen/logrus"
)

const feedVendorKey = "vendor_id"

// FeedEvent is pushed to a vendor's open sockets when one of their
// transactions reaches a terminal status.
type FeedEvent struct {
	Type          string `json:"type"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	Description   string `json:"description,omitempty"`
	Timeout       bool   `json:"timeout_occurred"`
	ResolvedAt    string `json:"resolved_at"`
}

// VendorFeed fans resolution events out to connected vendor terminals.
type VendorFeed struct {
	m      *melody.Melody
	logger *logrus.Logger
}

func NewVendorFeed(logger *logrus.Logger) *VendorFeed {
	m := melody.New()
	m.Config.MaxMessageSize = 1024
	m.Config.PingPeriod = 30 * time.Second
	m.Config.PongWait = 60 * time.Second

	f := &VendorFeed{m: m, logger: logger}
	m.HandleConnect(func(s *melody.Session) {
		vendorID, _ := s.Get(feedVendorKey)
		logger.WithField("vendor_id", vendorID).Debug("Vendor feed connected")
	})
	m.HandleDisconnect(func(s *melody.Session) {
		vendorID, _ := s.Get(feedVendorKey)
		logger.WithField("vendor_id", vendorID).Debug("Vendor feed disconnected")
	})
	m.HandleError(func(s *melody.Session, err error) {
		logger.WithError(err).Debug("Vendor feed error")
	})
	return f
}

// Serve upgrades the request and binds the socket to vendorID.
func (f *VendorFeed) Serve(c *gin.Context, vendorID string) error {
	return f.m.HandleRequestWithKeys(c.Writer, c.Request, map[string]any{feedVendorKey: vendorID})
}

// TransactionResolved implements service.ResolutionListener.
func (f *VendorFeed) TransactionResolved(tx *models.Transaction) {
	resolvedAt := tx.CreatedAt
	if tx.ApprovedAt != nil {
		resolvedAt = *tx.ApprovedAt
	} else if tx.DeclinedAt != nil {
		resolvedAt = *tx.DeclinedAt
	}
	msg, err := json.Marshal(FeedEvent{
		Type:          "transaction_resolved",
		TransactionID: tx.ID.String(),
		Status:        string(tx.Status),
		Amount:        tx.Amount.StringFixed(2),
		Description:   tx.Description,
		Timeout:       tx.TimeoutOccurred,
		ResolvedAt:    resolvedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		f.logger.WithError(err).Error("Failed to encode feed event")
		return
	}

	err = f.m.BroadcastFilter(msg, func(s *melody.Session) bool {
		id, ok := s.Get(feedVendorKey)
		return ok && id == tx.VendorID
	})
	if err != nil {
		f.logger.WithError(err).WithField("vendor_id", tx.VendorID).Warn("Failed to broadcast feed event")
	}
}

// Close disconnects every socket.
func (f *VendorFeed) Close() error {
	return f.m.Close()
}
