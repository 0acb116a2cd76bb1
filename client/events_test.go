package client

import (
	"testing"
	"time"
)

func TestDecodeServerFrameVariants(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`{"event":"auth:success","data":{"userId":"u1","schoolId":"s1"}}`, "auth:success"},
		{`{"event":"auth:error","data":{"message":"invalid token"}}`, "auth:error"},
		{`{"event":"notification:read","data":{"notificationId":"n1","userId":"u1"}}`, "notification:read"},
		{`{"event":"notification:deleted","data":{"notificationId":"n1","userId":"u1"}}`, "notification:deleted"},
		{`{"event":"notification:count","data":{"userId":"u1","count":3}}`, "notification:count"},
	}

	for _, tc := range cases {
		ev, err := DecodeServerFrame([]byte(tc.raw))
		if err != nil {
			t.Fatalf("%s: %v", tc.want, err)
		}
		var got string
		switch ev.(type) {
		case AuthSuccessEvent:
			got = EventAuthSuccess
		case AuthErrorEvent:
			got = EventAuthError
		case NotificationNewEvent:
			got = EventNotificationNew
		case NotificationReadEvent:
			got = EventNotificationRead
		case NotificationDeletedEvent:
			got = EventNotificationDeleted
		case NotificationCountEvent:
			got = EventNotificationCount
		}
		if got != tc.want {
			t.Fatalf("expected %s got %s", tc.want, got)
		}
	}
}

func TestDecodeServerFrameNotificationNew(t *testing.T) {
	raw := `{"event":"notification:new","data":{"id":"n1","schoolId":"s1","userId":"u1","type":"PAYMENT","priority":"HIGH","title":"Fee due","message":"Pay up","isRead":false,"createdAt":"2026-09-01T10:00:00Z"}}`
	ev, err := DecodeServerFrame([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	typed, ok := ev.(NotificationNewEvent)
	if !ok {
		t.Fatalf("expected NotificationNewEvent got %T", ev)
	}
	n := typed.Notification
	if n.ID != "n1" || n.Type != "PAYMENT" || n.IsRead {
		t.Fatalf("unexpected notification %+v", n)
	}
	if n.CreatedAt != time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC) {
		t.Fatalf("unexpected createdAt %v", n.CreatedAt)
	}
}

func TestDecodeServerFrameRejectsUnknownEvent(t *testing.T) {
	if _, err := DecodeServerFrame([]byte(`{"event":"auth:login","data":{}}`)); err == nil {
		t.Fatal("client-bound decoding must reject client-to-server events")
	}
	if _, err := DecodeServerFrame([]byte(`{"event":"mystery","data":{}}`)); err == nil {
		t.Fatal("unknown events must error")
	}
	if _, err := DecodeServerFrame([]byte(`not json`)); err == nil {
		t.Fatal("malformed frames must error")
	}
}

func TestAuthFailureHeuristic(t *testing.T) {
	for _, message := range []string{"jwt expired", "Invalid Signature", "AUTHENTICATION REQUIRED", "bad auth handshake"} {
		if !isAuthFailure(message) {
			t.Fatalf("%q should match the auth-failure heuristic", message)
		}
	}
	for _, message := range []string{"connection refused", "i/o timeout", "EOF"} {
		if isAuthFailure(message) {
			t.Fatalf("%q should be transient", message)
		}
	}
}
