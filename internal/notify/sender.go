package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/Kerhoff/vpcs/internal/models"
	webpush "github.com/SherClockHolmes/webpush-go"
)

// SendOptions tune a single push message.
type SendOptions struct {
	TTL    int
	Urgent bool
	Topic  string
}

// Sender delivers an encrypted payload to one subscription and reports the
// push service's HTTP status.
type Sender interface {
	Send(ctx context.Context, sub *models.PushSubscription, payload []byte, opts SendOptions) (int, error)
}

// Outcome classifies a delivery attempt.
type Outcome int

const (
	OutcomeDelivered Outcome = iota
	OutcomeTransient
	// OutcomeGone means the endpoint will never accept messages again.
	OutcomeGone
)

// Classify maps a push service response to an Outcome.
func Classify(status int, err error) Outcome {
	switch {
	case err != nil && status == 0:
		return OutcomeTransient
	case status >= 200 && status < 300:
		return OutcomeDelivered
	case status == http.StatusUnauthorized, status == http.StatusForbidden,
		status == http.StatusNotFound, status == http.StatusGone:
		return OutcomeGone
	default:
		return OutcomeTransient
	}
}

// VAPIDConfig holds the application server keys.
type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// WebPushSender sends through the Web Push protocol with VAPID auth.
type WebPushSender struct {
	vapid  VAPIDConfig
	client *http.Client
}

// NewWebPushSender creates a sender. A nil client uses http.DefaultClient.
func NewWebPushSender(vapid VAPIDConfig, client *http.Client) *WebPushSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebPushSender{vapid: vapid, client: client}
}

func (s *WebPushSender) Send(ctx context.Context, sub *models.PushSubscription, payload []byte, opts SendOptions) (int, error) {
	urgency := webpush.UrgencyNormal
	if opts.Urgent {
		urgency = webpush.UrgencyHigh
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.AuthKey,
			P256dh: sub.P256dhKey,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.vapid.Subject,
		VAPIDPublicKey:  s.vapid.PublicKey,
		VAPIDPrivateKey: s.vapid.PrivateKey,
		TTL:             opts.TTL,
		Urgency:         urgency,
		Topic:           opts.Topic,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to send push message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("push service returned %d: %s", resp.StatusCode, body)
	}
	return resp.StatusCode, nil
}
