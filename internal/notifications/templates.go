package notifications

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aria7-op/school-mis-backend/pkg/enums"
)

// Template pre-bakes the type, priority and copy for the notification kinds
// domain events produce.
type Template struct {
	Kind     string                     `json:"kind"`
	Type     enums.NotificationType     `json:"type"`
	Priority enums.NotificationPriority `json:"priority"`
	Title    string                     `json:"title"`
	Message  string                     `json:"message"`
}

const (
	KindStudent    = "student"
	KindAttendance = "attendance"
	KindPayment    = "payment"
	KindUser       = "user"
	KindSystem     = "system"
	KindCustomer   = "customer"
	KindInventory  = "inventory"
)

var templatesByKind = map[string]Template{
	KindStudent: {
		Kind:     KindStudent,
		Type:     enums.NotificationTypeStudent,
		Priority: enums.NotificationPriorityNormal,
		Title:    "New Student Admission",
		Message:  "Student %s has been admitted.",
	},
	KindAttendance: {
		Kind:     KindAttendance,
		Type:     enums.NotificationTypeAttendance,
		Priority: enums.NotificationPriorityNormal,
		Title:    "Attendance Update",
		Message:  "Attendance recorded for %s.",
	},
	KindPayment: {
		Kind:     KindPayment,
		Type:     enums.NotificationTypePayment,
		Priority: enums.NotificationPriorityHigh,
		Title:    "Payment Received",
		Message:  "Payment of %s has been received.",
	},
	KindUser: {
		Kind:     KindUser,
		Type:     enums.NotificationTypeUser,
		Priority: enums.NotificationPriorityNormal,
		Title:    "New User Account",
		Message:  "User account created for %s.",
	},
	KindSystem: {
		Kind:     KindSystem,
		Type:     enums.NotificationTypeSystem,
		Priority: enums.NotificationPriorityUrgent,
		Title:    "System Alert",
		Message:  "%s",
	},
	KindCustomer: {
		Kind:     KindCustomer,
		Type:     enums.NotificationTypeCustomer,
		Priority: enums.NotificationPriorityNormal,
		Title:    "New Customer",
		Message:  "Customer %s has been registered.",
	},
	KindInventory: {
		Kind:     KindInventory,
		Type:     enums.NotificationTypeInventory,
		Priority: enums.NotificationPriorityHigh,
		Title:    "Low Stock Alert",
		Message:  "Inventory item %s is running low.",
	},
}

// TemplateFor looks up a producer template by kind.
func TemplateFor(kind string) (Template, bool) {
	tpl, ok := templatesByKind[strings.ToLower(strings.TrimSpace(kind))]
	return tpl, ok
}

// Templates lists every producer template in a stable order.
func Templates() []Template {
	kinds := make([]string, 0, len(templatesByKind))
	for kind := range templatesByKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	out := make([]Template, 0, len(kinds))
	for _, kind := range kinds {
		out = append(out, templatesByKind[kind])
	}
	return out
}

// TemplateKinds lists the producer kinds in a stable order, one route per
// kind on the API surface.
func TemplateKinds() []string {
	kinds := make([]string, 0, len(templatesByKind))
	for kind := range templatesByKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Render fills the template message with its subject.
func (t Template) Render(subject string) string {
	return strings.TrimSpace(fmt.Sprintf(t.Message, subject))
}
