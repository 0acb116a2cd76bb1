package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aria7-op/school-mis-backend/pkg/auth"
	"github.com/aria7-op/school-mis-backend/pkg/config"
	"github.com/aria7-op/school-mis-backend/pkg/logger"
	"github.com/aria7-op/school-mis-backend/pkg/metrics"
)

// MirrorHandler applies client-side state changes that sessions mirror back
// over the socket.
type MirrorHandler interface {
	HandleMirrorRead(ctx context.Context, schoolID, userID, notificationID uuid.UUID) error
	HandleMirrorDelete(ctx context.Context, schoolID, userID, notificationID uuid.UUID) error
}

// wsConn is the slice of *websocket.Conn the session uses.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Session owns one websocket connection: the auth handshake, the read pump
// for mirror events, and the write pump draining the hub subscription.
type Session struct {
	conn    wsConn
	hub     *Hub
	mirror  MirrorHandler
	jwtCfg  config.JWTConfig
	rtCfg   config.RealtimeConfig
	metrics *metrics.RealtimeMetrics
	logg    *logger.Logger
}

// NewSession wraps an upgraded connection.
func NewSession(conn wsConn, hub *Hub, mirror MirrorHandler, jwtCfg config.JWTConfig, rtCfg config.RealtimeConfig, m *metrics.RealtimeMetrics, logg *logger.Logger) (*Session, error) {
	if conn == nil {
		return nil, fmt.Errorf("connection required")
	}
	if hub == nil {
		return nil, fmt.Errorf("hub required")
	}
	if mirror == nil {
		return nil, fmt.Errorf("mirror handler required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Session{
		conn:    conn,
		hub:     hub,
		mirror:  mirror,
		jwtCfg:  jwtCfg,
		rtCfg:   rtCfg,
		metrics: m,
		logg:    logg,
	}, nil
}

// Run drives the session until the connection drops or the context ends.
func (s *Session) Run(ctx context.Context) error {
	defer s.conn.Close()

	s.conn.SetReadLimit(s.rtCfg.ReadLimitBytes)

	claims, err := s.handshake(ctx)
	if err != nil {
		s.metrics.IncAuthError()
		s.writeEvent(AuthError{Message: err.Error()})
		return err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":   claims.UserID.String(),
		"school_id": claims.SchoolID.String(),
	})

	if err := s.writeEvent(AuthSuccess{
		UserID:    claims.UserID,
		SchoolID:  claims.SchoolID,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
	}); err != nil {
		return fmt.Errorf("acknowledging handshake: %w", err)
	}

	sub := s.hub.Subscribe(claims.UserID, claims.SchoolID)
	defer sub.Close()

	s.logg.Info(logCtx, "realtime session authenticated")

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		s.writePump(ctx, sub)
	}()

	err = s.readPump(logCtx, claims)

	// Drop the subscription so the write pump drains out and exits.
	sub.Close()
	s.conn.Close()
	<-writeDone

	return err
}

// handshake waits for auth:login and validates the bearer token. The window
// is enforced with a read deadline so an idle client cannot hold the socket.
func (s *Session) handshake(ctx context.Context) (*auth.AccessTokenClaims, error) {
	window := s.rtCfg.HandshakeWindow
	if window <= 0 {
		window = 20 * time.Second
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		return nil, fmt.Errorf("setting handshake deadline: %w", err)
	}

	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("authentication required")
	}

	msg, err := DecodeClientFrame(raw)
	if err != nil {
		return nil, fmt.Errorf("authentication required")
	}

	login, ok := msg.(ClientAuthLogin)
	if !ok {
		return nil, fmt.Errorf("authentication required")
	}

	claims, err := auth.ParseAccessToken(s.jwtCfg, login.Token)
	if err != nil {
		s.logg.Error(ctx, "realtime handshake rejected", err)
		return nil, fmt.Errorf("invalid token")
	}

	// The login frame may carry the client's view of its identity; it must
	// agree with the token.
	if login.UserID != uuid.Nil && login.UserID != claims.UserID {
		return nil, fmt.Errorf("invalid token")
	}
	if login.SchoolID != uuid.Nil && login.SchoolID != claims.SchoolID {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func (s *Session) readPump(ctx context.Context, claims *auth.AccessTokenClaims) error {
	pongTimeout := s.rtCfg.PongTimeout
	if pongTimeout <= 0 {
		pongTimeout = 60 * time.Second
	}

	resetDeadline := func() error {
		return s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	}
	if err := resetDeadline(); err != nil {
		return err
	}
	s.conn.SetPongHandler(func(string) error { return resetDeadline() })

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logg.Error(ctx, "realtime session closed unexpectedly", err)
				return err
			}
			return nil
		}

		msg, err := DecodeClientFrame(raw)
		if err != nil {
			s.logg.Error(ctx, "discarding malformed client frame", err)
			continue
		}

		switch m := msg.(type) {
		case ClientAuthLogin:
			// Already authenticated; re-login frames are ignored.
			s.logg.Warn(ctx, "ignoring auth:login on authenticated session")

		case ClientNotificationRead:
			if !s.ownsMirror(ctx, claims, m.UserID) {
				continue
			}
			if err := s.mirror.HandleMirrorRead(ctx, claims.SchoolID, claims.UserID, m.NotificationID); err != nil {
				s.logg.Error(ctx, "mirror read failed", err)
			}

		case ClientNotificationDelete:
			if !s.ownsMirror(ctx, claims, m.UserID) {
				continue
			}
			if err := s.mirror.HandleMirrorDelete(ctx, claims.SchoolID, claims.UserID, m.NotificationID); err != nil {
				s.logg.Error(ctx, "mirror delete failed", err)
			}
		}
	}
}

// ownsMirror rejects mirror frames claiming another user's identity. An empty
// user id falls back to the session's own.
func (s *Session) ownsMirror(ctx context.Context, claims *auth.AccessTokenClaims, claimed uuid.UUID) bool {
	if claimed == uuid.Nil || claimed == claims.UserID {
		return true
	}
	s.logg.Warn(s.logg.WithField(ctx, "claimed_user_id", claimed.String()), "mirror frame for foreign user rejected")
	return false
}

func (s *Session) writePump(ctx context.Context, sub *Subscription) {
	pingInterval := s.rtCfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 25 * time.Second
	}
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case raw := <-sub.Frames():
			if err := s.writeRaw(raw); err != nil {
				return
			}

		case <-sub.Done():
			return

		case <-ticker.C:
			deadline := time.Now().Add(s.writeTimeout())
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) writeEvent(ev Event) error {
	raw, err := Encode(ev)
	if err != nil {
		return err
	}
	return s.writeRaw(raw)
}

func (s *Session) writeRaw(raw []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout())); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}

func (s *Session) writeTimeout() time.Duration {
	if s.rtCfg.WriteTimeout > 0 {
		return s.rtCfg.WriteTimeout
	}
	return 10 * time.Second
}
