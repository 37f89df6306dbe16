// Package notification delivers best-effort messages to users. Delivery
// failures are reported to the caller for logging but are never part of any
// consistency boundary.
package notification

import (
	"context"

	"github.com/google/uuid"
)

// Payload is one notification message.
type Payload struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

// Notifier sends a payload to a set of users within a team.
type Notifier interface {
	Notify(ctx context.Context, teamID uuid.UUID, userIDs []uuid.UUID, payload Payload) error
}

// AlertMailer sends manager-facing alert emails. Optional channel.
type AlertMailer interface {
	SendAlert(ctx context.Context, subject, body string) error
}
