package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeSuccess    NotificationType = "SUCCESS"
	NotificationTypeWarning    NotificationType = "WARNING"
	NotificationTypeError      NotificationType = "ERROR"
	NotificationTypeSystem     NotificationType = "SYSTEM"
	NotificationTypeStudent    NotificationType = "STUDENT"
	NotificationTypeAttendance NotificationType = "ATTENDANCE"
	NotificationTypePayment    NotificationType = "PAYMENT"
	NotificationTypeUser       NotificationType = "USER"
	NotificationTypeCustomer   NotificationType = "CUSTOMER"
	NotificationTypeInventory  NotificationType = "INVENTORY"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeSuccess,
	NotificationTypeWarning,
	NotificationTypeError,
	NotificationTypeSystem,
	NotificationTypeStudent,
	NotificationTypeAttendance,
	NotificationTypePayment,
	NotificationTypeUser,
	NotificationTypeCustomer,
	NotificationTypeInventory,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

// NotificationPriority orders delivery urgency.
type NotificationPriority string

const (
	NotificationPriorityUrgent NotificationPriority = "URGENT"
	NotificationPriorityHigh   NotificationPriority = "HIGH"
	NotificationPriorityNormal NotificationPriority = "NORMAL"
	NotificationPriorityLow    NotificationPriority = "LOW"
)

var validNotificationPriorities = []NotificationPriority{
	NotificationPriorityUrgent,
	NotificationPriorityHigh,
	NotificationPriorityNormal,
	NotificationPriorityLow,
}

func (p NotificationPriority) IsValid() bool {
	for _, candidate := range validNotificationPriorities {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseNotificationPriority converts raw strings into NotificationPriority.
func ParseNotificationPriority(value string) (NotificationPriority, error) {
	for _, candidate := range validNotificationPriorities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification priority %q", value)
}

// NotificationStatus tracks delivery progress.
type NotificationStatus string

const (
	NotificationStatusPending   NotificationStatus = "PENDING"
	NotificationStatusSent      NotificationStatus = "SENT"
	NotificationStatusDelivered NotificationStatus = "DELIVERED"
	NotificationStatusFailed    NotificationStatus = "FAILED"
)

var validNotificationStatuses = []NotificationStatus{
	NotificationStatusPending,
	NotificationStatusSent,
	NotificationStatusDelivered,
	NotificationStatusFailed,
}

func (s NotificationStatus) IsValid() bool {
	for _, candidate := range validNotificationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseNotificationStatus converts raw strings into NotificationStatus.
func ParseNotificationStatus(value string) (NotificationStatus, error) {
	for _, candidate := range validNotificationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification status %q", value)
}
