package models

import (
	"time"

	id "regflow/pkg/domain"
	dErrors "regflow/pkg/domain-errors"
)

type Channel string

const (
	ChannelInApp Channel = "in_app"
)

// Notification is one inbox message for one recipient.
type Notification struct {
	ID             id.NotificationID  `json:"id"`
	RecipientID    id.UserID          `json:"recipient_id"`
	RegistrationID *id.RegistrationID `json:"registration_id,omitempty"`
	TriggeredBy    *id.UserID         `json:"triggered_by,omitempty"`
	Event          string             `json:"event"`
	Channel        Channel            `json:"channel"`
	Subject        string             `json:"subject"`
	Body           string             `json:"body"`
	Tokens         map[string]string  `json:"tokens,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	ReadAt         *time.Time         `json:"read_at,omitempty"`
}

func (n *Notification) IsRead() bool { return n.ReadAt != nil }

// SendRequest asks for a notification to be rendered, stored and published.
// MessageKey selects the localized subject and body; MessageArgs fill the
// body placeholders.
type SendRequest struct {
	RegistrationID *id.RegistrationID
	Event          string
	TriggeredBy    id.UserID
	RecipientID    id.UserID
	Channel        Channel
	Tokens         map[string]string
	MessageKey     string
	MessageArgs    []any
}

func (r SendRequest) Validate() error {
	if r.RecipientID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "recipient is required")
	}
	if r.Event == "" {
		return dErrors.New(dErrors.CodeValidation, "event is required")
	}
	if r.MessageKey == "" {
		return dErrors.New(dErrors.CodeValidation, "message key is required")
	}
	return nil
}

// ListFilter narrows a recipient's inbox.
type ListFilter struct {
	UnreadOnly bool
	Limit      int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

func (f ListFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}
