package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/aria7-op/school-mis-backend/pkg/db/models"
)

// Wire event names. Server-to-client events mirror the channel the web client
// listens on; auth:login, notification:read and notification:delete arrive
// client-to-server.
const (
	EventAuthLogin   = "auth:login"
	EventAuthSuccess = "auth:success"
	EventAuthError   = "auth:error"

	EventNotificationNew     = "notification:new"
	EventNotificationRead    = "notification:read"
	EventNotificationDelete  = "notification:delete"
	EventNotificationDeleted = "notification:deleted"
	EventNotificationCount   = "notification:count"
)

// frame is the envelope every websocket message travels in.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is the closed set of server-to-client messages. New variants must be
// added to Encode, which fails loudly on anything it does not know.
type Event interface {
	Name() string
}

// AuthSuccess acknowledges a completed handshake.
type AuthSuccess struct {
	UserID    uuid.UUID `json:"userId"`
	SchoolID  uuid.UUID `json:"schoolId"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
}

func (AuthSuccess) Name() string { return EventAuthSuccess }

// AuthError reports a failed handshake. The session closes after sending it.
type AuthError struct {
	Message string `json:"message"`
}

func (AuthError) Name() string { return EventAuthError }

// NotificationNew carries a freshly created notification.
type NotificationNew struct {
	Notification models.Notification
}

func (NotificationNew) Name() string { return EventNotificationNew }

// NotificationRead announces a single notification transitioning to read.
type NotificationRead struct {
	NotificationID uuid.UUID `json:"notificationId"`
	UserID         uuid.UUID `json:"userId"`
}

func (NotificationRead) Name() string { return EventNotificationRead }

// NotificationDeleted announces a removed notification.
type NotificationDeleted struct {
	NotificationID uuid.UUID `json:"notificationId"`
	UserID         uuid.UUID `json:"userId"`
}

func (NotificationDeleted) Name() string { return EventNotificationDeleted }

// NotificationCount pushes the authoritative unread count for a user.
type NotificationCount struct {
	UserID uuid.UUID `json:"userId"`
	Count  int64     `json:"count"`
}

func (NotificationCount) Name() string { return EventNotificationCount }

// Encode serializes an event into its wire frame. The type switch is
// exhaustive over the Event set; an unknown variant is a programming error.
func Encode(ev Event) ([]byte, error) {
	var data any
	switch e := ev.(type) {
	case AuthSuccess:
		data = e
	case AuthError:
		data = e
	case NotificationNew:
		data = e.Notification
	case NotificationRead:
		data = e
	case NotificationDeleted:
		data = e
	case NotificationCount:
		data = e
	default:
		return nil, fmt.Errorf("unhandled realtime event %T", ev)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", ev.Name(), err)
	}
	return json.Marshal(frame{Event: ev.Name(), Data: raw})
}

// Client-to-server messages.

// ClientAuthLogin opens the handshake with a bearer token. The profile
// fields, when present, are cross-checked against the token claims.
type ClientAuthLogin struct {
	Token     string    `json:"token"`
	UserID    uuid.UUID `json:"userId,omitempty"`
	SchoolID  uuid.UUID `json:"schoolId,omitempty"`
	Role      string    `json:"role,omitempty"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
}

// ClientNotificationRead mirrors a locally applied read back to the server.
type ClientNotificationRead struct {
	NotificationID uuid.UUID `json:"notificationId"`
	UserID         uuid.UUID `json:"userId"`
}

// ClientNotificationDelete mirrors a locally applied delete back to the server.
type ClientNotificationDelete struct {
	NotificationID uuid.UUID `json:"notificationId"`
	UserID         uuid.UUID `json:"userId"`
}

// DecodeClientFrame parses an inbound websocket message into one of the
// accepted client messages. Anything else is rejected.
func DecodeClientFrame(raw []byte) (any, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}

	switch f.Event {
	case EventAuthLogin:
		var msg ClientAuthLogin
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", f.Event, err)
		}
		return msg, nil
	case EventNotificationRead:
		var msg ClientNotificationRead
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", f.Event, err)
		}
		return msg, nil
	case EventNotificationDelete:
		var msg ClientNotificationDelete
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", f.Event, err)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("unsupported client event %q", f.Event)
	}
}
