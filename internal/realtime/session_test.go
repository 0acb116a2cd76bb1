package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aria7-op/school-mis-backend/pkg/auth"
	"github.com/aria7-op/school-mis-backend/pkg/config"
	"github.com/aria7-op/school-mis-backend/pkg/enums"
	"github.com/aria7-op/school-mis-backend/pkg/logger"
	"github.com/aria7-op/school-mis-backend/pkg/metrics"
)

type scriptedConn struct {
	mu     sync.Mutex
	reads  [][]byte
	writes [][]byte
	closed bool
}

func (c *scriptedConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.reads) == 0 {
		return 0, nil, errors.New("connection closed")
	}
	msg := c.reads[0]
	c.reads = c.reads[1:]
	return websocket.TextMessage, msg, nil
}

func (c *scriptedConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *scriptedConn) WriteControl(int, []byte, time.Time) error { return nil }
func (c *scriptedConn) SetReadLimit(int64)                        {}
func (c *scriptedConn) SetReadDeadline(time.Time) error           { return nil }
func (c *scriptedConn) SetWriteDeadline(time.Time) error          { return nil }
func (c *scriptedConn) SetPongHandler(func(string) error)         {}

func (c *scriptedConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *scriptedConn) writtenEvents(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]string, 0, len(c.writes))
	for _, raw := range c.writes {
		var f struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("unmarshal written frame: %v", err)
		}
		events = append(events, f.Event)
	}
	return events
}

type mirrorRecorder struct {
	mu      sync.Mutex
	reads   []uuid.UUID
	deletes []uuid.UUID
	userIDs []uuid.UUID
}

func (m *mirrorRecorder) HandleMirrorRead(_ context.Context, _, userID, notificationID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = append(m.reads, notificationID)
	m.userIDs = append(m.userIDs, userID)
	return nil
}

func (m *mirrorRecorder) HandleMirrorDelete(_ context.Context, _, userID, notificationID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, notificationID)
	m.userIDs = append(m.userIDs, userID)
	return nil
}

func sessionJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "session-test-secret",
		Issuer:            "school-mis",
		ExpirationMinutes: 15,
	}
}

func loginFrame(t *testing.T, token string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"event": EventAuthLogin,
		"data":  map[string]string{"token": token},
	})
	if err != nil {
		t.Fatalf("marshal login frame: %v", err)
	}
	return raw
}

func mirrorFrame(t *testing.T, event string, notificationID, userID uuid.UUID) []byte {
	t.Helper()
	data := map[string]string{"notificationId": notificationID.String()}
	if userID != uuid.Nil {
		data["userId"] = userID.String()
	}
	raw, err := json.Marshal(map[string]any{"event": event, "data": data})
	if err != nil {
		t.Fatalf("marshal mirror frame: %v", err)
	}
	return raw
}

func newTestSession(t *testing.T, conn *scriptedConn, mirror MirrorHandler) *Session {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	hub := NewHub(4, metrics.NewRealtimeMetrics(nil), logg)
	sess, err := NewSession(conn, hub, mirror, sessionJWTConfig(), config.RealtimeConfig{
		WriteTimeout:    time.Second,
		PingInterval:    time.Minute,
		PongTimeout:     time.Minute,
		HandshakeWindow: time.Second,
		ReadLimitBytes:  64 * 1024,
	}, metrics.NewRealtimeMetrics(nil), logg)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return sess
}

func mintSessionToken(t *testing.T, userID, schoolID uuid.UUID) string {
	t.Helper()
	token, err := auth.MintAccessToken(sessionJWTConfig(), time.Now(), auth.AccessTokenPayload{
		UserID:    userID,
		SchoolID:  schoolID,
		Role:      enums.RoleTeacher,
		FirstName: "Amina",
		LastName:  "Khan",
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestSessionHandshakeAndMirrorRead(t *testing.T) {
	userID := uuid.New()
	schoolID := uuid.New()
	notificationID := uuid.New()

	conn := &scriptedConn{reads: [][]byte{
		loginFrame(t, mintSessionToken(t, userID, schoolID)),
		mirrorFrame(t, EventNotificationRead, notificationID, uuid.Nil),
		mirrorFrame(t, EventNotificationDelete, notificationID, userID),
	}}
	mirror := &mirrorRecorder{}
	sess := newTestSession(t, conn, mirror)

	if err := sess.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	events := conn.writtenEvents(t)
	if len(events) == 0 || events[0] != EventAuthSuccess {
		t.Fatalf("first written event = %v, want auth:success", events)
	}

	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	if len(mirror.reads) != 1 || mirror.reads[0] != notificationID {
		t.Fatalf("mirror reads = %v", mirror.reads)
	}
	if len(mirror.deletes) != 1 || mirror.deletes[0] != notificationID {
		t.Fatalf("mirror deletes = %v", mirror.deletes)
	}
	for _, got := range mirror.userIDs {
		if got != userID {
			t.Fatalf("mirror applied for user %s, want %s", got, userID)
		}
	}
	if !conn.closed {
		t.Fatal("connection left open")
	}
}

func TestSessionRejectsInvalidToken(t *testing.T) {
	conn := &scriptedConn{reads: [][]byte{loginFrame(t, "not-a-jwt")}}
	sess := newTestSession(t, conn, &mirrorRecorder{})

	err := sess.Run(context.Background())
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if !strings.Contains(err.Error(), "invalid token") {
		t.Fatalf("err = %v, want invalid token", err)
	}

	events := conn.writtenEvents(t)
	if len(events) != 1 || events[0] != EventAuthError {
		t.Fatalf("written events = %v, want single auth:error", events)
	}
}

func TestSessionRequiresLoginBeforeOtherFrames(t *testing.T) {
	conn := &scriptedConn{reads: [][]byte{
		mirrorFrame(t, EventNotificationRead, uuid.New(), uuid.Nil),
	}}
	sess := newTestSession(t, conn, &mirrorRecorder{})

	err := sess.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "authentication required") {
		t.Fatalf("err = %v, want authentication required", err)
	}
}

func TestSessionRejectsMismatchedLoginIdentity(t *testing.T) {
	token := mintSessionToken(t, uuid.New(), uuid.New())
	raw, err := json.Marshal(map[string]any{
		"event": EventAuthLogin,
		"data":  map[string]string{"token": token, "userId": uuid.NewString()},
	})
	if err != nil {
		t.Fatalf("marshal login frame: %v", err)
	}

	conn := &scriptedConn{reads: [][]byte{raw}}
	sess := newTestSession(t, conn, &mirrorRecorder{})

	runErr := sess.Run(context.Background())
	if runErr == nil || !strings.Contains(runErr.Error(), "invalid token") {
		t.Fatalf("err = %v, want invalid token", runErr)
	}
}

func TestSessionRejectsMirrorForForeignUser(t *testing.T) {
	userID := uuid.New()
	conn := &scriptedConn{reads: [][]byte{
		loginFrame(t, mintSessionToken(t, userID, uuid.New())),
		mirrorFrame(t, EventNotificationRead, uuid.New(), uuid.New()),
	}}
	mirror := &mirrorRecorder{}
	sess := newTestSession(t, conn, mirror)

	if err := sess.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	if len(mirror.reads) != 0 {
		t.Fatalf("foreign mirror frame applied: %v", mirror.reads)
	}
}
