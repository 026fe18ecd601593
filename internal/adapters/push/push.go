// Package push abstracts the push notification surface. The log
// implementation records notifications through the structured logger, which
// is enough for development and for tests asserting on delivery fan-out.
package push

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/swiftdrop/swiftdrop-backend/pkg/logger"
)

// Notification is a message pushed to a single device token.
type Notification struct {
	Token string         `json:"token"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}

// Adapter is the push protocol: obtain a device token, send to a token.
type Adapter interface {
	Register(ctx context.Context, userID string) (string, error)
	Send(ctx context.Context, n Notification) error
}

// LogAdapter writes notifications to the log instead of a push gateway.
type LogAdapter struct {
	log *logger.Logger

	mu   sync.Mutex
	sent []Notification
}

// NewLogAdapter builds the development push adapter.
func NewLogAdapter(log *logger.Logger) *LogAdapter {
	return &LogAdapter{log: log}
}

// Register mints a device token for the user.
func (a *LogAdapter) Register(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	token := "sdpush-" + uuid.NewString()
	a.log.Debug(a.log.WithUserID(ctx, userID), "push token registered")
	return token, nil
}

// Send records the notification and logs it.
func (a *LogAdapter) Send(ctx context.Context, n Notification) error {
	if n.Token == "" {
		return fmt.Errorf("push token is required")
	}
	a.mu.Lock()
	a.sent = append(a.sent, n)
	a.mu.Unlock()

	a.log.Info(a.log.WithFields(ctx, map[string]any{
		"token": n.Token,
		"title": n.Title,
	}), "push notification sent")
	return nil
}

// Sent returns a copy of everything sent so far.
func (a *LogAdapter) Sent() []Notification {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Notification, len(a.sent))
	copy(out, a.sent)
	return out
}
