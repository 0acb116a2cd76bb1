package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aria7-op/school-mis-backend/pkg/db/models"
	"github.com/aria7-op/school-mis-backend/pkg/pagination"
)

// Repository exposes persistence helpers for notifications.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) error
	CreateBatch(ctx context.Context, notifications []models.Notification) error
	List(ctx context.Context, params ListParams) ([]models.Notification, int64, error)
	Recent(ctx context.Context, params RecentParams) ([]models.Notification, error)
	UnreadCount(ctx context.Context, schoolID, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, schoolID, userID, notificationID uuid.UUID, now time.Time) (markResult, error)
	MarkManyRead(ctx context.Context, schoolID, userID uuid.UUID, ids []uuid.UUID, now time.Time) (int64, error)
	MarkAllRead(ctx context.Context, schoolID, userID uuid.UUID, now time.Time) (int64, error)
	Delete(ctx context.Context, schoolID, userID, notificationID uuid.UUID) (bool, error)
	Stats(ctx context.Context, schoolID, userID uuid.UUID) (Stats, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type markResult struct {
	Updated bool
	Found   bool
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *repositoryImpl) CreateBatch(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&notifications).Error
}

func (r *repositoryImpl) scopedQuery(ctx context.Context, schoolID, userID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("school_id = ? AND user_id = ?", schoolID, userID)
}

func (r *repositoryImpl) List(ctx context.Context, params ListParams) ([]models.Notification, int64, error) {
	query := r.scopedQuery(ctx, params.SchoolID, params.UserID)
	if params.Type != nil {
		query = query.Where("type = ?", *params.Type)
	}
	if params.Priority != nil {
		query = query.Where("priority = ?", *params.Priority)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.IsRead != nil {
		query = query.Where("is_read = ?", *params.IsRead)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	page := pagination.NormalizePage(params.Page)

	var notifications []models.Notification
	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(pagination.Offset(page, limit)).
		Find(&notifications).Error
	if err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}

func (r *repositoryImpl) Recent(ctx context.Context, params RecentParams) ([]models.Notification, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	var notifications []models.Notification
	err := r.scopedQuery(ctx, params.SchoolID, params.UserID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&notifications).Error
	return notifications, err
}

func (r *repositoryImpl) UnreadCount(ctx context.Context, schoolID, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.scopedQuery(ctx, schoolID, userID).
		Where("is_read = ?", false).
		Count(&count).Error
	return count, err
}

// MarkRead flips a single notification to read. Already-read rows are left
// untouched so the transition only ever runs false to true.
func (r *repositoryImpl) MarkRead(ctx context.Context, schoolID, userID, notificationID uuid.UUID, now time.Time) (markResult, error) {
	result := r.scopedQuery(ctx, schoolID, userID).
		Where("id = ? AND is_read = ?", notificationID, false).
		UpdateColumns(map[string]any{"is_read": true, "updated_at": now})
	if result.Error != nil {
		return markResult{}, result.Error
	}

	mark := markResult{Updated: result.RowsAffected > 0}
	if mark.Updated {
		mark.Found = true
		return mark, nil
	}

	var count int64
	if err := r.scopedQuery(ctx, schoolID, userID).
		Where("id = ?", notificationID).
		Count(&count).Error; err != nil {
		return markResult{}, err
	}
	mark.Found = count > 0
	return mark, nil
}

func (r *repositoryImpl) MarkManyRead(ctx context.Context, schoolID, userID uuid.UUID, ids []uuid.UUID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.scopedQuery(ctx, schoolID, userID).
		Where("id IN ? AND is_read = ?", ids, false).
		UpdateColumns(map[string]any{"is_read": true, "updated_at": now})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) MarkAllRead(ctx context.Context, schoolID, userID uuid.UUID, now time.Time) (int64, error) {
	result := r.scopedQuery(ctx, schoolID, userID).
		Where("is_read = ?", false).
		UpdateColumns(map[string]any{"is_read": true, "updated_at": now})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) Delete(ctx context.Context, schoolID, userID, notificationID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND school_id = ? AND user_id = ?", notificationID, schoolID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

type groupCount struct {
	Key   string
	Count int64
}

func (r *repositoryImpl) Stats(ctx context.Context, schoolID, userID uuid.UUID) (Stats, error) {
	stats := Stats{
		ByType:     map[string]int64{},
		ByPriority: map[string]int64{},
	}

	if err := r.scopedQuery(ctx, schoolID, userID).Count(&stats.Total).Error; err != nil {
		return Stats{}, err
	}

	unread, err := r.UnreadCount(ctx, schoolID, userID)
	if err != nil {
		return Stats{}, err
	}
	stats.Unread = unread

	var byType []groupCount
	if err := r.scopedQuery(ctx, schoolID, userID).
		Select("type AS key, COUNT(*) AS count").
		Group("type").
		Scan(&byType).Error; err != nil {
		return Stats{}, err
	}
	for _, row := range byType {
		stats.ByType[row.Key] = row.Count
	}

	var byPriority []groupCount
	if err := r.scopedQuery(ctx, schoolID, userID).
		Select("priority AS key, COUNT(*) AS count").
		Group("priority").
		Scan(&byPriority).Error; err != nil {
		return Stats{}, err
	}
	for _, row := range byPriority {
		stats.ByPriority[row.Key] = row.Count
	}

	return stats, nil
}

// DeleteOlderThan removes notifications created before the cutoff across all
// schools. Used by the retention job.
func (r *repositoryImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.Notification{})
	return result.RowsAffected, result.Error
}
