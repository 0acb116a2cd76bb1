package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aria7-op/school-mis-backend/pkg/logger"
)

type fakeConn struct {
	mu     sync.Mutex
	reads  chan []byte
	writes [][]byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case raw := <-c.reads:
		return 1, raw, nil
	case <-c.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(t *testing.T, event string, data any) {
	t.Helper()
	raw, err := encodeFrame(event, data)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	c.reads <- raw
}

func (c *fakeConn) writtenEvents(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]string, 0, len(c.writes))
	for _, raw := range c.writes {
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("unmarshal written frame: %v", err)
		}
		events = append(events, f.Event)
	}
	return events
}

// scriptedDialer returns the scripted outcomes in order and counts calls.
type scriptedDialer struct {
	mu      sync.Mutex
	outcome []any // error or transportConn
	calls   int
}

func (d *scriptedDialer) dial(ctx context.Context, endpoint string) (transportConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.calls >= len(d.outcome) {
		return nil, errors.New("dial script exhausted")
	}
	out := d.outcome[d.calls]
	d.calls++
	if err, ok := out.(error); ok {
		return nil, err
	}
	return out.(transportConn), nil
}

func (d *scriptedDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func newTestTransport(t *testing.T, dialer *scriptedDialer, cb Callbacks) *Transport {
	t.Helper()
	tr, err := NewTransport(TransportOptions{
		BaseURL: "http://api.test",
		Auth: AuthData{
			Token:    "test-token",
			UserID:   "user-1",
			SchoolID: "school-1",
			Role:     "TEACHER",
		},
		Callbacks:   cb,
		BaseDelay:   time.Millisecond,
		MaxAttempts: 5,
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	tr.dial = dialer.dial
	return tr
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestTransportResolvesEndpoint(t *testing.T) {
	cases := map[string]string{
		"http://api.test":          "ws://api.test/socket.io",
		"https://api.test/api":     "wss://api.test/api/socket.io",
		"https://api.test/api/v1/": "wss://api.test/api/v1/socket.io",
		"http://localhost:8080":    "ws://localhost:8080/socket.io",
	}
	for base, want := range cases {
		got, err := resolveEndpoint(base)
		if err != nil {
			t.Fatalf("%s: %v", base, err)
		}
		if got != want {
			t.Fatalf("%s: expected %s got %s", base, want, got)
		}
	}
}

func TestTransportRequiresToken(t *testing.T) {
	tr := newTestTransport(t, &scriptedDialer{}, Callbacks{})
	tr.opts.auth.Token = ""
	if err := tr.Connect(context.Background()); err == nil {
		t.Fatal("expected connect to refuse without a token")
	}
}

func TestTransportRetriesTransientErrorsThenConnects(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptedDialer{outcome: []any{
		errors.New("connection refused"),
		errors.New("connection refused"),
		errors.New("connection refused"),
		conn,
	}}

	connected := make(chan struct{}, 4)
	tr := newTestTransport(t, dialer, Callbacks{
		OnConnect: func() { connected <- struct{}{} },
	})

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitSignal(t, connected, "connect callback")

	if got := dialer.callCount(); got != 4 {
		t.Fatalf("expected 4 dial attempts got %d", got)
	}
	select {
	case <-connected:
		t.Fatal("onConnect fired more than once")
	case <-time.After(50 * time.Millisecond):
	}

	tr.mu.Lock()
	attempts := tr.attempts
	tr.mu.Unlock()
	if attempts != 0 {
		t.Fatalf("retry counter not reset, got %d", attempts)
	}

	events := conn.writtenEvents(t)
	if len(events) != 1 || events[0] != EventAuthLogin {
		t.Fatalf("expected exactly one auth:login on success, got %v", events)
	}

	tr.Disconnect()
}

func TestTransportAuthErrorFrameIsTerminal(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptedDialer{outcome: []any{conn}}

	authErrors := make(chan string, 4)
	tr := newTestTransport(t, dialer, Callbacks{
		OnAuthError: func(msg string) { authErrors <- msg },
	})

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn.push(t, EventAuthError, AuthErrorEvent{Message: "jwt expired"})

	select {
	case msg := <-authErrors:
		if msg != "jwt expired" {
			t.Fatalf("unexpected message %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for auth error")
	}

	time.Sleep(50 * time.Millisecond)
	if got := dialer.callCount(); got != 1 {
		t.Fatalf("terminal state must stop retries, saw %d dials", got)
	}
	select {
	case <-authErrors:
		t.Fatal("onAuthError fired more than once")
	default:
	}
	if tr.Connected() {
		t.Fatal("expected disconnected after auth error")
	}
}

func TestTransportAuthFailureHeuristicOnDialError(t *testing.T) {
	for _, message := range []string{"jwt expired", "Invalid signature", "AUTHENTICATION REQUIRED"} {
		dialer := &scriptedDialer{outcome: []any{errors.New(message)}}
		authErrors := make(chan string, 1)
		tr := newTestTransport(t, dialer, Callbacks{
			OnAuthError: func(msg string) { authErrors <- msg },
		})

		if err := tr.Connect(context.Background()); err != nil {
			t.Fatalf("connect: %v", err)
		}
		select {
		case <-authErrors:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s: timed out waiting for auth error", message)
		}
		time.Sleep(20 * time.Millisecond)
		if got := dialer.callCount(); got != 1 {
			t.Fatalf("%s: expected no retries, saw %d dials", message, got)
		}
	}
}

func TestTransportStopsAfterExhaustedAttempts(t *testing.T) {
	dialer := &scriptedDialer{outcome: []any{
		errors.New("connection refused"),
		errors.New("connection refused"),
		errors.New("connection refused"),
		errors.New("connection refused"),
		errors.New("connection refused"),
		errors.New("connection refused"),
	}}
	tr := newTestTransport(t, dialer, Callbacks{})
	tr.opts.maxAttempts = 3

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if dialer.callCount() == 4 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := dialer.callCount(); got != 4 {
		t.Fatalf("expected initial dial + 3 retries, got %d", got)
	}
}

func TestTransportWakeRetriesAfterExhaustion(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptedDialer{outcome: []any{
		errors.New("connection refused"),
		conn,
	}}
	tr := newTestTransport(t, dialer, Callbacks{})
	tr.opts.maxAttempts = 0 // not valid via options; force no retries

	connected := make(chan struct{}, 1)
	tr.cb.OnConnect = func() { connected <- struct{}{} }

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && dialer.callCount() < 1 {
		time.Sleep(5 * time.Millisecond)
	}

	tr.Wake(context.Background())
	waitSignal(t, connected, "connect after wake")
	tr.Disconnect()
}

func TestTransportEmitWhenDisconnectedIsNoop(t *testing.T) {
	tr := newTestTransport(t, &scriptedDialer{}, Callbacks{})
	// Must not panic or dial.
	tr.MarkNotificationRead("n1")
	tr.DeleteNotification("n1")
}

func TestTransportMirrorEventsCarryUser(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptedDialer{outcome: []any{conn}}
	connected := make(chan struct{}, 1)
	tr := newTestTransport(t, dialer, Callbacks{
		OnConnect: func() { connected <- struct{}{} },
	})

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitSignal(t, connected, "connect")

	tr.MarkNotificationRead("n1")
	tr.DeleteNotification("n2")

	events := conn.writtenEvents(t)
	if len(events) != 3 {
		t.Fatalf("expected login + 2 mirrors, got %v", events)
	}
	if events[1] != EventNotificationRead || events[2] != EventNotificationDelete {
		t.Fatalf("unexpected mirror events %v", events)
	}

	conn.mu.Lock()
	var mirror frame
	if err := json.Unmarshal(conn.writes[1], &mirror); err != nil {
		t.Fatalf("unmarshal mirror: %v", err)
	}
	conn.mu.Unlock()
	var payload NotificationReadEvent
	if err := json.Unmarshal(mirror.Data, &payload); err != nil {
		t.Fatalf("unmarshal mirror payload: %v", err)
	}
	if payload.NotificationID != "n1" || payload.UserID != "user-1" {
		t.Fatalf("unexpected mirror payload %+v", payload)
	}

	tr.Disconnect()
}

func TestTransportDisconnectIdempotent(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptedDialer{outcome: []any{conn}}
	connected := make(chan struct{}, 1)
	tr := newTestTransport(t, dialer, Callbacks{
		OnConnect: func() { connected <- struct{}{} },
	})

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitSignal(t, connected, "connect")

	tr.Disconnect()
	tr.Disconnect()
	if tr.Connected() {
		t.Fatal("expected disconnected state")
	}
	time.Sleep(50 * time.Millisecond)
	if got := dialer.callCount(); got != 1 {
		t.Fatalf("disconnect must stop retries, saw %d dials", got)
	}
}

func TestTransportDisconnectReportsTransition(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptedDialer{outcome: []any{conn}}
	connected := make(chan struct{}, 1)
	disconnects := make(chan struct{}, 4)
	tr := newTestTransport(t, dialer, Callbacks{
		OnConnect:    func() { connected <- struct{}{} },
		OnDisconnect: func() { disconnects <- struct{}{} },
	})

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitSignal(t, connected, "connect")

	tr.Disconnect()
	waitSignal(t, disconnects, "disconnect callback")

	// A second Disconnect has no open channel to report.
	tr.Disconnect()
	time.Sleep(50 * time.Millisecond)
	select {
	case <-disconnects:
		t.Fatal("onDisconnect fired for an already-closed channel")
	default:
	}
}

// overlapConn fails the test if two writes ever run concurrently.
type overlapConn struct {
	*fakeConn
	writers atomic.Int32
	overlap atomic.Bool
}

func (c *overlapConn) WriteMessage(messageType int, data []byte) error {
	if c.writers.Add(1) > 1 {
		c.overlap.Store(true)
	}
	defer c.writers.Add(-1)
	time.Sleep(time.Millisecond)
	return c.fakeConn.WriteMessage(messageType, data)
}

func TestTransportSerializesSocketWrites(t *testing.T) {
	conn := &overlapConn{fakeConn: newFakeConn()}
	dialer := &scriptedDialer{outcome: []any{conn}}
	connected := make(chan struct{}, 1)
	tr := newTestTransport(t, dialer, Callbacks{
		OnConnect: func() { connected <- struct{}{} },
	})

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitSignal(t, connected, "connect")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tr.MarkNotificationRead(fmt.Sprintf("n-%d", n))
		}(i)
	}
	wg.Wait()

	if conn.overlap.Load() {
		t.Fatal("concurrent writes reached the socket")
	}
}

func TestTransportForwardsNotificationEvents(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptedDialer{outcome: []any{conn}}

	received := make(chan string, 8)
	tr := newTestTransport(t, dialer, Callbacks{
		OnNotificationNew:     func(n Notification) { received <- "new:" + n.ID },
		OnNotificationRead:    func(ev NotificationReadEvent) { received <- "read:" + ev.NotificationID },
		OnNotificationDeleted: func(ev NotificationDeletedEvent) { received <- "deleted:" + ev.NotificationID },
		OnNotificationCount:   func(ev NotificationCountEvent) { received <- "count" },
	})

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	conn.push(t, EventNotificationNew, Notification{ID: "n1"})
	conn.push(t, EventNotificationRead, NotificationReadEvent{NotificationID: "n1"})
	conn.push(t, EventNotificationDeleted, NotificationDeletedEvent{NotificationID: "n1"})
	conn.push(t, EventNotificationCount, NotificationCountEvent{Count: 4})

	want := []string{"new:n1", "read:n1", "deleted:n1", "count"}
	for _, expected := range want {
		select {
		case got := <-received:
			if got != expected {
				t.Fatalf("expected %s got %s", expected, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", expected)
		}
	}

	tr.Disconnect()
}
