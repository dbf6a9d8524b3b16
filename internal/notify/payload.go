package notify

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Action is a button shown on an actionable notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Payload is the JSON document the service worker receives.
type Payload struct {
	Title              string      `json:"title"`
	Body               string      `json:"body"`
	Icon               string      `json:"icon,omitempty"`
	Badge              string      `json:"badge,omitempty"`
	Tag                string      `json:"tag,omitempty"`
	RequireInteraction bool        `json:"requireInteraction,omitempty"`
	Actions            []Action    `json:"actions,omitempty"`
	Data               PayloadData `json:"data"`
}

// PayloadData carries what the service worker needs to act on a tap.
type PayloadData struct {
	Type          string           `json:"type"`
	TransactionID *uuid.UUID       `json:"transactionId,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	VendorName    string           `json:"vendorName,omitempty"`
	Description   string           `json:"description,omitempty"`
	Action        string           `json:"action,omitempty"`
	Reason        string           `json:"reason,omitempty"`
}

var approvalActions = []Action{
	{Action: "approve", Title: "✅ Approve"},
	{Action: "decline", Title: "❌ Decline"},
}

// FormatAmount renders money the way notifications display it.
func FormatAmount(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}
