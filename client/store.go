package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/aria7-op/school-mis-backend/pkg/logger"
)

func errNilDependency(name string) error {
	return fmt.Errorf("%s is required", name)
}

const defaultLoadLimit = 20

// restAPI is the slice of RESTClient the store depends on.
type restAPI interface {
	Recent(ctx context.Context, limit, offset int) (*NotificationPage, error)
	UnreadCount(ctx context.Context) (int64, error)
	MarkRead(ctx context.Context, notificationID string) error
	MarkManyRead(ctx context.Context, notificationIDs []string) error
	Delete(ctx context.Context, notificationID string) error
}

// mirrorEmitter mirrors REST mutations to the user's other sessions.
type mirrorEmitter interface {
	MarkNotificationRead(notificationID string)
	DeleteNotification(notificationID string)
}

// StoreState is a point-in-time copy of the store's view.
type StoreState struct {
	Notifications []Notification
	UnreadCount   int64
	IsLoading     bool
	IsConnected   bool
}

// Store reconciles REST and real-time sources into one local view of the
// user's notifications. Mutations apply in arrival order; the only
// correction mechanism is the authoritative notification:count event.
type Store struct {
	rest     restAPI
	mirror   mirrorEmitter
	onLogout func()
	logg     *logger.Logger

	mu            sync.Mutex
	notifications []Notification
	unreadCount   int64
	isLoading     bool
	isConnected   bool
	limit         int
}

// NewStore wires the store. onLogout fires when the transport reports a
// terminal auth failure; it may be nil.
func NewStore(rest restAPI, mirror mirrorEmitter, onLogout func(), logg *logger.Logger) (*Store, error) {
	if rest == nil {
		return nil, errNilDependency("rest client")
	}
	if mirror == nil {
		return nil, errNilDependency("mirror emitter")
	}
	if logg == nil {
		return nil, errNilDependency("logger")
	}
	return &Store{
		rest:     rest,
		mirror:   mirror,
		onLogout: onLogout,
		logg:     logg,
		limit:    defaultLoadLimit,
	}, nil
}

// Callbacks returns the transport callback set that feeds this store.
func (s *Store) Callbacks() Callbacks {
	return Callbacks{
		OnConnect:    func() { s.setConnected(true) },
		OnDisconnect: func() { s.setConnected(false) },
		OnAuthError: func(message string) {
			s.logg.Warn(s.logg.WithField(context.Background(), "message", message), "realtime auth failure, escalating to logout")
			if s.onLogout != nil {
				s.onLogout()
			}
		},
		OnNotificationNew:     func(n Notification) { s.applyNew(n) },
		OnNotificationRead:    func(ev NotificationReadEvent) { s.applyRead(ev.NotificationID) },
		OnNotificationDeleted: func(ev NotificationDeletedEvent) { s.applyDeleted(ev.NotificationID) },
		OnNotificationCount:   func(ev NotificationCountEvent) { s.applyCount(ev.Count) },
	}
}

// Load performs the initial concurrent fetch of the recent feed and the
// authoritative unread count. Either half failing falls back to empty
// state for that half rather than leaving stale data.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	s.isLoading = true
	limit := s.limit
	s.mu.Unlock()

	var (
		wg    sync.WaitGroup
		page  *NotificationPage
		count int64
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		result, err := s.rest.Recent(ctx, limit, 0)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "initial notification load failed")
			result = &NotificationPage{Data: []Notification{}}
		}
		page = result
	}()
	go func() {
		defer wg.Done()
		result, err := s.rest.UnreadCount(ctx)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "initial unread count failed")
			result = 0
		}
		count = result
	}()
	wg.Wait()

	s.mu.Lock()
	s.notifications = page.Data
	s.unreadCount = count
	s.isLoading = false
	s.mu.Unlock()
}

// LoadMore grows the page limit and replaces the list wholesale with the
// larger page.
func (s *Store) LoadMore(ctx context.Context, step int) error {
	if step <= 0 {
		step = defaultLoadLimit
	}

	s.mu.Lock()
	s.limit += step
	limit := s.limit
	s.isLoading = true
	s.mu.Unlock()

	page, err := s.rest.Recent(ctx, limit, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.isLoading = false
	if err != nil {
		s.limit -= step
		return err
	}
	s.notifications = page.Data
	return nil
}

// MarkAsRead persists the flip, mirrors it to other sessions, then applies
// the same local mutation the realtime read event would.
func (s *Store) MarkAsRead(ctx context.Context, notificationID string) error {
	if err := s.rest.MarkRead(ctx, notificationID); err != nil {
		return err
	}
	s.mirror.MarkNotificationRead(notificationID)
	s.applyRead(notificationID)
	return nil
}

// MarkAllAsRead flips every locally unread notification. With zero unread
// it performs no REST call and leaves state untouched.
func (s *Store) MarkAllAsRead(ctx context.Context) error {
	s.mu.Lock()
	unreadIDs := make([]string, 0)
	for _, n := range s.notifications {
		if !n.IsRead {
			unreadIDs = append(unreadIDs, n.ID)
		}
	}
	s.mu.Unlock()

	if len(unreadIDs) == 0 {
		return nil
	}
	if err := s.rest.MarkManyRead(ctx, unreadIDs); err != nil {
		return err
	}

	s.mu.Lock()
	for i := range s.notifications {
		s.notifications[i].IsRead = true
	}
	s.unreadCount = 0
	s.mu.Unlock()
	return nil
}

// Delete persists the removal, mirrors it, then applies the local
// mutation. The REST delete is attempted even when the id is absent from
// the local list.
func (s *Store) Delete(ctx context.Context, notificationID string) error {
	if err := s.rest.Delete(ctx, notificationID); err != nil {
		return err
	}
	s.mirror.DeleteNotification(notificationID)
	s.applyDeleted(notificationID)
	return nil
}

// State returns a copy of the current view.
func (s *Store) State() StoreState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := StoreState{
		Notifications: make([]Notification, len(s.notifications)),
		UnreadCount:   s.unreadCount,
		IsLoading:     s.isLoading,
		IsConnected:   s.isConnected,
	}
	copy(out.Notifications, s.notifications)
	return out
}

func (s *Store) setConnected(connected bool) {
	s.mu.Lock()
	s.isConnected = connected
	s.mu.Unlock()
}

// applyNew prepends and counts the incoming notification. Real-time
// arrivals are not de-duplicated against REST pages; the periodic count
// event reconciles any drift.
func (s *Store) applyNew(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append([]Notification{n}, s.notifications...)
	s.unreadCount++
}

// applyRead flips one notification read. The flag only ever moves
// false→true and the counter never dips below zero.
func (s *Store) applyRead(notificationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID != notificationID {
			continue
		}
		if !s.notifications[i].IsRead {
			s.notifications[i].IsRead = true
			if s.unreadCount > 0 {
				s.unreadCount--
			}
		}
		return
	}
}

func (s *Store) applyDeleted(notificationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID != notificationID {
			continue
		}
		wasUnread := !s.notifications[i].IsRead
		s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
		if wasUnread && s.unreadCount > 0 {
			s.unreadCount--
		}
		return
	}
}

// applyCount is the single authoritative-override path: the server value
// replaces whatever arithmetic preceded it.
func (s *Store) applyCount(count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if count < 0 {
		count = 0
	}
	s.unreadCount = count
}
