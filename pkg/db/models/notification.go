package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/aria7-op/school-mis-backend/pkg/enums"
)

// Notification stores one in-app message delivered to a user, scoped to a school.
type Notification struct {
	ID                uuid.UUID                  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SchoolID          uuid.UUID                  `gorm:"type:uuid;not null;index:idx_notifications_school_user" json:"schoolId"`
	UserID            uuid.UUID                  `gorm:"type:uuid;not null;index:idx_notifications_school_user" json:"userId"`
	Type              enums.NotificationType     `gorm:"type:text;not null" json:"type"`
	Priority          enums.NotificationPriority `gorm:"type:text;not null;default:NORMAL" json:"priority"`
	Status            enums.NotificationStatus   `gorm:"type:text;not null;default:PENDING" json:"status"`
	Title             string                     `gorm:"type:text;not null" json:"title"`
	Message           string                     `gorm:"type:text;not null" json:"message"`
	IsRead            bool                       `gorm:"not null;default:false" json:"isRead"`
	RelatedEntityType *string                    `gorm:"type:text" json:"relatedEntityType,omitempty"`
	RelatedEntityID   *string                    `gorm:"type:text" json:"relatedEntityId,omitempty"`
	CreatedAt         time.Time                  `gorm:"type:timestamptz;default:now()" json:"createdAt"`
	UpdatedAt         time.Time                  `gorm:"type:timestamptz;default:now()" json:"updatedAt"`
}
