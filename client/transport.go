package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aria7-op/school-mis-backend/pkg/logger"
)

const (
	defaultConnectTimeout = 20 * time.Second
	defaultBaseDelay      = time.Second
	defaultMaxAttempts    = 5
)

// authFailureMarkers drive the substring heuristic that separates bad
// credentials (terminal) from transient network failures (retried).
var authFailureMarkers = []string{
	"invalid token",
	"invalid signature",
	"authentication required",
	"jwt",
	"auth",
}

func isAuthFailure(message string) bool {
	lowered := strings.ToLower(message)
	for _, marker := range authFailureMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// AuthData identifies the session on the realtime channel. Token is
// mandatory; the identity fields ride along for the server cross-check.
type AuthData struct {
	Token     string
	UserID    string
	SchoolID  string
	Role      string
	FirstName string
	LastName  string
}

// Callbacks surface transport activity to the owner. Nil entries are
// skipped. The transport never parks errors anywhere else: all failures
// surface here.
type Callbacks struct {
	OnConnect             func()
	OnDisconnect          func()
	OnAuthSuccess         func(AuthSuccessEvent)
	OnAuthError           func(message string)
	OnNotificationNew     func(Notification)
	OnNotificationRead    func(NotificationReadEvent)
	OnNotificationDeleted func(NotificationDeletedEvent)
	OnNotificationCount   func(NotificationCountEvent)
}

// TransportOptions configures a Transport.
type TransportOptions struct {
	// BaseURL is the HTTP(S) origin of the API, e.g. "https://api.school.example".
	// The channel lives at the base path plus "/socket.io".
	BaseURL string
	Auth    AuthData

	Callbacks Callbacks

	// BaseDelay seeds the exponential backoff (delay = base << attempt).
	BaseDelay      time.Duration
	MaxAttempts    int
	ConnectTimeout time.Duration

	Logger *logger.Logger
}

// transportConn is the slice of *websocket.Conn the transport uses.
type transportConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type dialFunc func(ctx context.Context, endpoint string) (transportConn, error)

// Transport owns at most one realtime connection at a time. A new Connect
// closes any prior channel first; Disconnect is idempotent; an auth failure
// is terminal until the next explicit Connect.
type Transport struct {
	opts socketOptions
	dial dialFunc
	logg *logger.Logger
	cb   Callbacks

	mu         sync.Mutex
	conn       transportConn
	connected  bool
	forced     bool
	terminal   bool
	attempts   int
	generation int

	// writeMu serializes socket writes: the websocket allows one writer at
	// a time, and emit runs on caller goroutines concurrent with the run
	// loop's login frame.
	writeMu sync.Mutex
}

type socketOptions struct {
	endpoint       string
	auth           AuthData
	baseDelay      time.Duration
	maxAttempts    int
	connectTimeout time.Duration
}

// NewTransport validates options and builds a disconnected transport.
func NewTransport(opts TransportOptions) (*Transport, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	endpoint, err := resolveEndpoint(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	resolved := socketOptions{
		endpoint:       endpoint,
		auth:           opts.Auth,
		baseDelay:      opts.BaseDelay,
		maxAttempts:    opts.MaxAttempts,
		connectTimeout: opts.ConnectTimeout,
	}
	if resolved.baseDelay <= 0 {
		resolved.baseDelay = defaultBaseDelay
	}
	if resolved.maxAttempts <= 0 {
		resolved.maxAttempts = defaultMaxAttempts
	}
	if resolved.connectTimeout <= 0 {
		resolved.connectTimeout = defaultConnectTimeout
	}

	t := &Transport{
		opts: resolved,
		logg: opts.Logger,
		cb:   opts.Callbacks,
	}
	t.dial = t.dialWebsocket
	return t, nil
}

// resolveEndpoint turns an HTTP base URL into the websocket endpoint: the
// base path (if any) plus /socket.io.
func resolveEndpoint(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/socket.io"
	u.RawQuery = ""
	return u.String(), nil
}

func (t *Transport) dialWebsocket(ctx context.Context, endpoint string) (transportConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: t.opts.connectTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Connect opens the channel and keeps it alive with bounded backoff. It
// refuses to dial without a credential token, closes any prior channel,
// and clears a previous terminal state (an explicit reconnect is the only
// way out of one).
func (t *Transport) Connect(ctx context.Context) error {
	if t.opts.auth.Token == "" {
		return fmt.Errorf("credential token is required")
	}

	t.mu.Lock()
	wasConnected := t.closeLocked()
	t.forced = false
	t.terminal = false
	t.attempts = 0
	t.generation++
	gen := t.generation
	t.mu.Unlock()

	if wasConnected {
		t.invoke(t.cb.OnDisconnect)
	}
	go t.run(ctx, gen)
	return nil
}

// Wake retries immediately outside the backoff schedule (the analogue of a
// visibility or online signal). No-op while connected, force-closed, or in
// the terminal state.
func (t *Transport) Wake(ctx context.Context) {
	t.mu.Lock()
	if t.connected || t.forced || t.terminal {
		t.mu.Unlock()
		return
	}
	t.attempts = 0
	t.generation++
	gen := t.generation
	t.mu.Unlock()

	go t.run(ctx, gen)
}

// Disconnect force-closes the channel and stops all retries. Idempotent.
// A deliberate close still reports the transition; only the reconnect
// schedule is suppressed.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.forced = true
	t.attempts = 0
	t.generation++
	wasConnected := t.closeLocked()
	t.mu.Unlock()

	if wasConnected {
		t.invoke(t.cb.OnDisconnect)
	}
}

// Connected reports whether a channel is currently open and authenticated
// against the server.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// MarkNotificationRead mirrors a read mutation to the user's other
// sessions. A warning no-op when disconnected.
func (t *Transport) MarkNotificationRead(notificationID string) {
	t.emit(EventNotificationRead, NotificationReadEvent{
		NotificationID: notificationID,
		UserID:         t.opts.auth.UserID,
	})
}

// DeleteNotification mirrors a delete mutation to the user's other sessions.
func (t *Transport) DeleteNotification(notificationID string) {
	t.emit(EventNotificationDelete, NotificationDeletedEvent{
		NotificationID: notificationID,
		UserID:         t.opts.auth.UserID,
	})
}

func (t *Transport) emit(event string, data any) {
	t.mu.Lock()
	conn := t.conn
	connected := t.connected
	t.mu.Unlock()

	if !connected || conn == nil {
		t.logg.Warn(t.logg.WithField(context.Background(), "event", event), "emit skipped: realtime channel not connected")
		return
	}

	raw, err := encodeFrame(event, data)
	if err != nil {
		t.logg.Error(context.Background(), "encode realtime frame", err)
		return
	}
	if err := t.writeFrame(conn, raw); err != nil {
		t.logg.Warn(t.logg.WithField(context.Background(), "error", err.Error()), "write realtime frame failed")
	}
}

func (t *Transport) writeFrame(conn transportConn, raw []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func (t *Transport) run(ctx context.Context, gen int) {
	for {
		if t.stale(gen) {
			return
		}

		dialCtx, cancel := context.WithTimeout(ctx, t.opts.connectTimeout)
		conn, err := t.dial(dialCtx, t.opts.endpoint)
		cancel()
		if err != nil {
			if isAuthFailure(err.Error()) {
				t.failAuth(gen, err.Error())
				return
			}
			if !t.backoff(ctx, gen) {
				return
			}
			continue
		}

		if !t.adopt(conn, gen) {
			_ = conn.Close()
			return
		}
		if err := t.login(conn); err != nil {
			t.dropConn(gen)
			if !t.backoff(ctx, gen) {
				return
			}
			continue
		}
		t.invoke(t.cb.OnConnect)

		t.readLoop(ctx, conn, gen)

		disconnected, retry := t.release(gen)
		if disconnected {
			t.invoke(t.cb.OnDisconnect)
		}
		if !retry {
			return
		}
		if !t.backoff(ctx, gen) {
			return
		}
	}
}

// adopt installs the freshly dialed connection and resets the retry
// counter, unless a newer Connect/Disconnect superseded this loop.
func (t *Transport) adopt(conn transportConn, gen int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.generation || t.forced || t.terminal {
		return false
	}
	t.conn = conn
	t.connected = true
	t.attempts = 0
	return true
}

func (t *Transport) login(conn transportConn) error {
	raw, err := encodeFrame(EventAuthLogin, map[string]string{
		"token":     t.opts.auth.Token,
		"userId":    t.opts.auth.UserID,
		"schoolId":  t.opts.auth.SchoolID,
		"role":      t.opts.auth.Role,
		"firstName": t.opts.auth.FirstName,
		"lastName":  t.opts.auth.LastName,
	})
	if err != nil {
		return err
	}
	return t.writeFrame(conn, raw)
}

func (t *Transport) readLoop(ctx context.Context, conn transportConn, gen int) {
	for {
		if t.stale(gen) {
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		ev, err := DecodeServerFrame(raw)
		if err != nil {
			t.logg.Warn(t.logg.WithField(ctx, "error", err.Error()), "skipping undecodable realtime frame")
			continue
		}

		switch typed := ev.(type) {
		case AuthSuccessEvent:
			t.invokeAuthSuccess(typed)
		case AuthErrorEvent:
			t.failAuth(gen, typed.Message)
			return
		case NotificationNewEvent:
			if t.cb.OnNotificationNew != nil {
				t.cb.OnNotificationNew(typed.Notification)
			}
		case NotificationReadEvent:
			if t.cb.OnNotificationRead != nil {
				t.cb.OnNotificationRead(typed)
			}
		case NotificationDeletedEvent:
			if t.cb.OnNotificationDeleted != nil {
				t.cb.OnNotificationDeleted(typed)
			}
		case NotificationCountEvent:
			if t.cb.OnNotificationCount != nil {
				t.cb.OnNotificationCount(typed)
			}
		}
	}
}

// release tears down the current connection after the read loop exits.
// It reports whether a disconnect actually happened under this generation
// and whether the loop should schedule a reconnect.
func (t *Transport) release(gen int) (disconnected, retry bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.generation {
		return false, false
	}
	disconnected = t.connected
	t.connected = false
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	retry = !t.forced && !t.terminal
	return disconnected, retry
}

func (t *Transport) dropConn(gen int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.generation {
		return
	}
	t.connected = false
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
}

// failAuth transitions to the terminal state and reports the failure
// exactly once. Invalid credentials are never retried blindly.
func (t *Transport) failAuth(gen int, message string) {
	t.mu.Lock()
	if gen != t.generation || t.terminal {
		t.mu.Unlock()
		return
	}
	t.terminal = true
	wasConnected := t.closeLocked()
	t.mu.Unlock()

	if wasConnected {
		t.invoke(t.cb.OnDisconnect)
	}
	if t.cb.OnAuthError != nil {
		t.cb.OnAuthError(message)
	}
}

// backoff sleeps base << attempt before the next try and reports false
// once attempts are exhausted or the loop was superseded.
func (t *Transport) backoff(ctx context.Context, gen int) bool {
	t.mu.Lock()
	if gen != t.generation || t.forced || t.terminal {
		t.mu.Unlock()
		return false
	}
	attempt := t.attempts
	t.attempts++
	if t.attempts > t.opts.maxAttempts {
		t.mu.Unlock()
		t.logg.Warn(context.Background(), "realtime reconnect attempts exhausted")
		return false
	}
	t.mu.Unlock()

	delay := t.opts.baseDelay << attempt
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
	}
	return !t.stale(gen)
}

func (t *Transport) stale(gen int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return gen != t.generation || t.forced || t.terminal
}

// closeLocked drops the current connection and reports whether one was open.
func (t *Transport) closeLocked() bool {
	wasConnected := t.connected
	t.connected = false
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	return wasConnected
}

func (t *Transport) invoke(fn func()) {
	if fn != nil {
		fn()
	}
}

func (t *Transport) invokeAuthSuccess(ev AuthSuccessEvent) {
	if t.cb.OnAuthSuccess != nil {
		t.cb.OnAuthSuccess(ev)
	}
}
