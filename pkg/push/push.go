package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// ErrDisabled signals that push delivery is disabled via configuration.
var ErrDisabled = errors.New("push: delivery disabled")

// ErrSubscriptionGone indicates the push service reported the endpoint as
// permanently unavailable. Callers should deactivate the subscription.
var ErrSubscriptionGone = errors.New("push: subscription gone")

// Subscription identifies a browser push endpoint and its encryption keys.
type Subscription struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// Action describes a button rendered on the delivered notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Payload is the structured message delivered to the push endpoint.
type Payload struct {
	Title   string         `json:"title"`
	Body    string         `json:"body"`
	Icon    string         `json:"icon,omitempty"`
	Badge   string         `json:"badge,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Actions []Action       `json:"actions,omitempty"`
}

// NewPayload builds the standard notification payload with view/dismiss actions.
func NewPayload(title, body, notificationType string, context map[string]any) Payload {
	data := map[string]any{"type": notificationType}
	for key, value := range context {
		data[key] = value
	}

	return Payload{
		Title: title,
		Body:  body,
		Icon:  "/icons/icon-192.png",
		Badge: "/icons/badge-72.png",
		Data:  data,
		Actions: []Action{
			{Action: "view", Title: "View"},
			{Action: "dismiss", Title: "Dismiss"},
		},
	}
}

// Sender defines behaviour for delivering push payloads to a subscription.
type Sender interface {
	Send(ctx context.Context, sub Subscription, payload Payload) error
}

// Settings capture the runtime configuration required by the Web Push sender.
type Settings struct {
	Enabled         bool
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string // contact mailto: or URL required by VAPID
	TTL             int    // seconds the push service should retain the message
	Timeout         time.Duration
}

type webpushSender struct {
	cfg Settings
}

// NewWebPushSender constructs a Sender backed by the Web Push protocol.
func NewWebPushSender(cfg Settings) (Sender, error) {
	if cfg.Enabled {
		if strings.TrimSpace(cfg.VAPIDPublicKey) == "" || strings.TrimSpace(cfg.VAPIDPrivateKey) == "" {
			return nil, errors.New("push: vapid key pair is required when enabled")
		}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 60
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &webpushSender{cfg: cfg}, nil
}

func (s *webpushSender) Send(ctx context.Context, sub Subscription, payload Payload) error {
	if !s.cfg.Enabled {
		return ErrDisabled
	}
	if strings.TrimSpace(sub.Endpoint) == "" {
		return errors.New("push: subscription endpoint is required")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("push: marshal payload: %w", err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.cfg.Subscriber,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		TTL:             s.cfg.TTL,
	})
	if err != nil {
		return fmt.Errorf("push: send: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrSubscriptionGone
	case resp.StatusCode >= 400:
		return fmt.Errorf("push: endpoint returned status %d", resp.StatusCode)
	}

	return nil
}
