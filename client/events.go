// Package client is the Go consumer of the notification pipeline: a
// WebSocket transport with reconnection, a local notification store
// reconciling REST and real-time sources, and a typed REST wrapper.
package client

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire event names shared with the server.
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

// Notification is the client-side view of a delivered notification.
type Notification struct {
	ID                string    `json:"id"`
	SchoolID          string    `json:"schoolId"`
	UserID            string    `json:"userId"`
	Type              string    `json:"type"`
	Priority          string    `json:"priority"`
	Status            string    `json:"status"`
	Title             string    `json:"title"`
	Message           string    `json:"message"`
	IsRead            bool      `json:"isRead"`
	RelatedEntityType *string   `json:"relatedEntityType,omitempty"`
	RelatedEntityID   *string   `json:"relatedEntityId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// ServerEvent is the closed union of events the server pushes. Adding a
// variant requires touching every switch over this type.
type ServerEvent interface {
	serverEvent()
}

// AuthSuccessEvent confirms the handshake.
type AuthSuccessEvent struct {
	UserID    string `json:"userId"`
	SchoolID  string `json:"schoolId"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// AuthErrorEvent rejects the handshake; terminal for the connection.
type AuthErrorEvent struct {
	Message string `json:"message"`
}

// NotificationNewEvent delivers a freshly created notification.
type NotificationNewEvent struct {
	Notification Notification
}

// NotificationReadEvent marks one notification read.
type NotificationReadEvent struct {
	NotificationID string `json:"notificationId"`
	UserID         string `json:"userId"`
}

// NotificationDeletedEvent removes one notification.
type NotificationDeletedEvent struct {
	NotificationID string `json:"notificationId"`
	UserID         string `json:"userId"`
}

// NotificationCountEvent carries the authoritative unread count.
type NotificationCountEvent struct {
	UserID string `json:"userId"`
	Count  int64  `json:"count"`
}

func (AuthSuccessEvent) serverEvent()         {}
func (AuthErrorEvent) serverEvent()           {}
func (NotificationNewEvent) serverEvent()     {}
func (NotificationReadEvent) serverEvent()    {}
func (NotificationDeletedEvent) serverEvent() {}
func (NotificationCountEvent) serverEvent()   {}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DecodeServerFrame parses one wire frame into its typed event. Unknown
// event names are an error so drift against the server shows up loudly.
func DecodeServerFrame(raw []byte) (ServerEvent, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch f.Event {
	case EventAuthSuccess:
		var ev AuthSuccessEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return ev, nil
	case EventAuthError:
		var ev AuthErrorEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return ev, nil
	case EventNotificationNew:
		var n Notification
		if err := json.Unmarshal(f.Data, &n); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return NotificationNewEvent{Notification: n}, nil
	case EventNotificationRead:
		var ev NotificationReadEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return ev, nil
	case EventNotificationDeleted:
		var ev NotificationDeletedEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return ev, nil
	case EventNotificationCount:
		var ev NotificationCountEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown server event %q", f.Event)
	}
}

func encodeFrame(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(frame{Event: event, Data: payload})
}
