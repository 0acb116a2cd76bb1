package notifications

import (
	"github.com/google/uuid"

	"github.com/aria7-op/school-mis-backend/pkg/enums"
)

// ListParams filters a paginated notification listing.
type ListParams struct {
	SchoolID uuid.UUID
	UserID   uuid.UUID

	Type     *enums.NotificationType
	Priority *enums.NotificationPriority
	Status   *enums.NotificationStatus
	IsRead   *bool

	Page  int
	Limit int
}

// RecentParams fetches the most recent notifications for the realtime feed.
type RecentParams struct {
	SchoolID uuid.UUID
	UserID   uuid.UUID
	Limit    int
	Offset   int
}

// CreateParams captures a new notification before persistence.
type CreateParams struct {
	SchoolID uuid.UUID
	UserID   uuid.UUID

	Type     enums.NotificationType
	Priority enums.NotificationPriority
	Title    string
	Message  string

	RelatedEntityType *string
	RelatedEntityID   *string
}

// ProduceParams feeds a notification template.
type ProduceParams struct {
	SchoolID uuid.UUID
	UserID   uuid.UUID

	// Subject is interpolated into the template message, e.g. a student
	// name or a formatted amount.
	Subject string

	RelatedEntityType *string
	RelatedEntityID   *string
}

// Stats aggregates a user's notifications for the dashboard widgets.
type Stats struct {
	Total      int64            `json:"total"`
	Unread     int64            `json:"unread"`
	ByType     map[string]int64 `json:"byType"`
	ByPriority map[string]int64 `json:"byPriority"`
}
