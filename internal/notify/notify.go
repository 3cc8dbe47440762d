// Package notify delivers urgent-overdue alerts and sends approved replies.
// Channels must not panic; delivery failure is an error for the caller to
// swallow and retry on a later pass.
package notify

import (
	"context"
)

// Channel delivers one alert message.
type Channel interface {
	// Name identifies the channel in notification records ("slack", "email").
	Name() string
	// Send delivers the message, honoring the context deadline.
	Send(ctx context.Context, message string) error
}
