package notifications

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aria7-op/school-mis-backend/internal/realtime"
	"github.com/aria7-op/school-mis-backend/pkg/db/models"
	"github.com/aria7-op/school-mis-backend/pkg/enums"
	pkgerrors "github.com/aria7-op/school-mis-backend/pkg/errors"
	"github.com/aria7-op/school-mis-backend/pkg/logger"
	"github.com/aria7-op/school-mis-backend/pkg/pagination"
	"github.com/aria7-op/school-mis-backend/pkg/types"
)

// Service defines the notification operations the API and the realtime
// channel share.
type Service interface {
	List(ctx context.Context, params ListParams) (*types.Page[models.Notification], error)
	Recent(ctx context.Context, params RecentParams) ([]models.Notification, error)
	UnreadCount(ctx context.Context, schoolID, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, schoolID, userID, notificationID uuid.UUID) error
	MarkManyRead(ctx context.Context, schoolID, userID uuid.UUID, ids []uuid.UUID) (int64, error)
	MarkAllRead(ctx context.Context, schoolID, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, schoolID, userID, notificationID uuid.UUID) error
	Create(ctx context.Context, params CreateParams) (*models.Notification, error)
	CreateBulk(ctx context.Context, params CreateParams, userIDs []uuid.UUID) (int, error)
	Produce(ctx context.Context, kind string, params ProduceParams) (*models.Notification, error)
	Stats(ctx context.Context, schoolID, userID uuid.UUID) (*Stats, error)
	Templates() []Template

	realtime.MirrorHandler
}

type service struct {
	repo      Repository
	publisher realtime.Publisher
	logg      *logger.Logger
}

// NewService wires notifications dependencies. The publisher may span
// instances (the bridge) or stay in-process (the hub).
func NewService(repo Repository, publisher realtime.Publisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if publisher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "realtime publisher required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{repo: repo, publisher: publisher, logg: logg}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*types.Page[models.Notification], error) {
	if err := requireScope(params.SchoolID, params.UserID); err != nil {
		return nil, err
	}

	rows, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	page := pagination.NormalizePage(params.Page)
	return &types.Page[models.Notification]{
		Data:       rows,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: pagination.TotalPages(total, limit),
	}, nil
}

func (s *service) Recent(ctx context.Context, params RecentParams) ([]models.Notification, error) {
	if err := requireScope(params.SchoolID, params.UserID); err != nil {
		return nil, err
	}
	rows, err := s.repo.Recent(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recent notifications")
	}
	return rows, nil
}

func (s *service) UnreadCount(ctx context.Context, schoolID, userID uuid.UUID) (int64, error) {
	if err := requireScope(schoolID, userID); err != nil {
		return 0, err
	}
	count, err := s.repo.UnreadCount(ctx, schoolID, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unread count")
	}
	return count, nil
}

func (s *service) MarkRead(ctx context.Context, schoolID, userID, notificationID uuid.UUID) error {
	if err := requireScope(schoolID, userID); err != nil {
		return err
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, schoolID, userID, notificationID, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	if result.Updated {
		s.push(ctx, userID, realtime.NotificationRead{NotificationID: notificationID, UserID: userID})
		s.pushCount(ctx, schoolID, userID)
	}
	return nil
}

func (s *service) MarkManyRead(ctx context.Context, schoolID, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if err := requireScope(schoolID, userID); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "notification ids required")
	}

	count, err := s.repo.MarkManyRead(ctx, schoolID, userID, ids, time.Now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	if count > 0 {
		s.pushCount(ctx, schoolID, userID)
	}
	return count, nil
}

func (s *service) MarkAllRead(ctx context.Context, schoolID, userID uuid.UUID) (int64, error) {
	if err := requireScope(schoolID, userID); err != nil {
		return 0, err
	}

	count, err := s.repo.MarkAllRead(ctx, schoolID, userID, time.Now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark all notifications read")
	}
	if count > 0 {
		s.pushCount(ctx, schoolID, userID)
	}
	return count, nil
}

func (s *service) Delete(ctx context.Context, schoolID, userID, notificationID uuid.UUID) error {
	if err := requireScope(schoolID, userID); err != nil {
		return err
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	deleted, err := s.repo.Delete(ctx, schoolID, userID, notificationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete notification")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}

	s.push(ctx, userID, realtime.NotificationDeleted{NotificationID: notificationID, UserID: userID})
	s.pushCount(ctx, schoolID, userID)
	return nil
}

func (s *service) Create(ctx context.Context, params CreateParams) (*models.Notification, error) {
	notification, err := buildNotification(params)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}

	s.push(ctx, notification.UserID, realtime.NotificationNew{Notification: *notification})
	s.pushCount(ctx, notification.SchoolID, notification.UserID)
	return notification, nil
}

func (s *service) CreateBulk(ctx context.Context, params CreateParams, userIDs []uuid.UUID) (int, error) {
	if len(userIDs) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "recipient user ids required")
	}

	batch := make([]models.Notification, 0, len(userIDs))
	for _, userID := range userIDs {
		perUser := params
		perUser.UserID = userID
		notification, err := buildNotification(perUser)
		if err != nil {
			return 0, err
		}
		batch = append(batch, *notification)
	}

	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notifications")
	}

	for i := range batch {
		s.push(ctx, batch[i].UserID, realtime.NotificationNew{Notification: batch[i]})
		s.pushCount(ctx, batch[i].SchoolID, batch[i].UserID)
	}
	return len(batch), nil
}

func (s *service) Produce(ctx context.Context, kind string, params ProduceParams) (*models.Notification, error) {
	tpl, ok := TemplateFor(kind)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown notification kind").WithDetails(kind)
	}
	if strings.TrimSpace(params.Subject) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subject required")
	}

	return s.Create(ctx, CreateParams{
		SchoolID:          params.SchoolID,
		UserID:            params.UserID,
		Type:              tpl.Type,
		Priority:          tpl.Priority,
		Title:             tpl.Title,
		Message:           tpl.Render(params.Subject),
		RelatedEntityType: params.RelatedEntityType,
		RelatedEntityID:   params.RelatedEntityID,
	})
}

func (s *service) Stats(ctx context.Context, schoolID, userID uuid.UUID) (*Stats, error) {
	if err := requireScope(schoolID, userID); err != nil {
		return nil, err
	}
	stats, err := s.repo.Stats(ctx, schoolID, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "notification stats")
	}
	return &stats, nil
}

func (s *service) Templates() []Template {
	return Templates()
}

// HandleMirrorRead applies a read mirrored from a websocket session. A
// missing notification is not an error here: the other side may have already
// removed it.
func (s *service) HandleMirrorRead(ctx context.Context, schoolID, userID, notificationID uuid.UUID) error {
	err := s.MarkRead(ctx, schoolID, userID, notificationID)
	if appErr := pkgerrors.As(err); appErr != nil && appErr.Code() == pkgerrors.CodeNotFound {
		return nil
	}
	return err
}

// HandleMirrorDelete applies a delete mirrored from a websocket session.
func (s *service) HandleMirrorDelete(ctx context.Context, schoolID, userID, notificationID uuid.UUID) error {
	err := s.Delete(ctx, schoolID, userID, notificationID)
	if appErr := pkgerrors.As(err); appErr != nil && appErr.Code() == pkgerrors.CodeNotFound {
		return nil
	}
	return err
}

func (s *service) push(ctx context.Context, userID uuid.UUID, ev realtime.Event) {
	if err := s.publisher.PublishToUser(ctx, userID, ev); err != nil {
		s.logg.Error(ctx, "realtime push failed", err)
	}
}

func (s *service) pushCount(ctx context.Context, schoolID, userID uuid.UUID) {
	count, err := s.repo.UnreadCount(ctx, schoolID, userID)
	if err != nil {
		s.logg.Error(ctx, "unread count for push failed", err)
		return
	}
	s.push(ctx, userID, realtime.NotificationCount{UserID: userID, Count: count})
}

func buildNotification(params CreateParams) (*models.Notification, error) {
	if err := requireScope(params.SchoolID, params.UserID); err != nil {
		return nil, err
	}
	if !params.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid notification type")
	}
	priority := params.Priority
	if priority == "" {
		priority = enums.NotificationPriorityNormal
	}
	if !priority.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid notification priority")
	}
	if strings.TrimSpace(params.Title) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}
	if strings.TrimSpace(params.Message) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message required")
	}

	return &models.Notification{
		ID:                uuid.New(),
		SchoolID:          params.SchoolID,
		UserID:            params.UserID,
		Type:              params.Type,
		Priority:          priority,
		Status:            enums.NotificationStatusSent,
		Title:             strings.TrimSpace(params.Title),
		Message:           strings.TrimSpace(params.Message),
		RelatedEntityType: params.RelatedEntityType,
		RelatedEntityID:   params.RelatedEntityID,
	}, nil
}

func requireScope(schoolID, userID uuid.UUID) error {
	if schoolID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "school id required")
	}
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	return nil
}
