package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/aria7-op/school-mis-backend/pkg/logger"
	"github.com/aria7-op/school-mis-backend/pkg/metrics"
)

// Publisher pushes events toward a user's live sessions. The hub implements
// it for a single process; the bridge implements it across instances.
type Publisher interface {
	PublishToUser(ctx context.Context, userID uuid.UUID, ev Event) error
}

// Hub fans events out to the websocket sessions registered for each user.
// Slow consumers never block delivery: a full session buffer drops the frame
// for that session only.
type Hub struct {
	mu     sync.RWMutex
	byUser map[uuid.UUID]map[*Subscription]struct{}

	buffer  int
	metrics *metrics.RealtimeMetrics
	logg    *logger.Logger
}

// Subscription is one session's view of the hub. The frames channel is never
// closed: a publish racing a close would panic on send. Teardown is signaled
// through done instead.
type Subscription struct {
	userID   uuid.UUID
	schoolID uuid.UUID
	frames   chan []byte
	done     chan struct{}

	hub  *Hub
	once sync.Once
}

// Frames returns the channel the session's write pump drains.
func (s *Subscription) Frames() <-chan []byte { return s.frames }

// Done is closed once the subscription detaches from the hub.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close detaches the subscription from the hub. Safe to call repeatedly.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

// NewHub builds a hub with the given per-session buffer size.
func NewHub(buffer int, m *metrics.RealtimeMetrics, logg *logger.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		byUser:  make(map[uuid.UUID]map[*Subscription]struct{}),
		buffer:  buffer,
		metrics: m,
		logg:    logg,
	}
}

// Subscribe registers a session for a user and returns its subscription.
func (h *Hub) Subscribe(userID, schoolID uuid.UUID) *Subscription {
	sub := &Subscription{
		userID:   userID,
		schoolID: schoolID,
		frames:   make(chan []byte, h.buffer),
		done:     make(chan struct{}),
		hub:      h,
	}

	h.mu.Lock()
	sessions, ok := h.byUser[userID]
	if !ok {
		sessions = make(map[*Subscription]struct{})
		h.byUser[userID] = sessions
	}
	sessions[sub] = struct{}{}
	h.mu.Unlock()

	h.metrics.ConnOpened()
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if sessions, ok := h.byUser[sub.userID]; ok {
		delete(sessions, sub)
		if len(sessions) == 0 {
			delete(h.byUser, sub.userID)
		}
	}
	h.mu.Unlock()

	close(sub.done)
	h.metrics.ConnClosed()
}

// PublishToUser encodes the event once and hands it to every live session of
// the user. Users with no sessions are a no-op.
func (h *Hub) PublishToUser(ctx context.Context, userID uuid.UUID, ev Event) error {
	raw, err := Encode(ev)
	if err != nil {
		return err
	}
	h.deliverFrame(ctx, userID, ev.Name(), raw)
	return nil
}

func (h *Hub) deliverFrame(ctx context.Context, userID uuid.UUID, event string, raw []byte) {
	h.mu.RLock()
	sessions := make([]*Subscription, 0, len(h.byUser[userID]))
	for sub := range h.byUser[userID] {
		sessions = append(sessions, sub)
	}
	h.mu.RUnlock()

	for _, sub := range sessions {
		select {
		case <-sub.done:
			continue
		default:
		}
		select {
		case sub.frames <- raw:
			h.metrics.IncDelivered(event)
		default:
			h.metrics.IncDropped(event)
			if h.logg != nil {
				h.logg.Warn(h.logg.WithFields(ctx, map[string]any{
					"user_id": userID.String(),
					"event":   event,
				}), "realtime session buffer full, frame dropped")
			}
		}
	}
}

// SessionCount reports live sessions for a user.
func (h *Hub) SessionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}
