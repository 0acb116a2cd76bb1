package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aria7-op/school-mis-backend/api/middleware"
	"github.com/aria7-op/school-mis-backend/api/responses"
	"github.com/aria7-op/school-mis-backend/api/validators"
	"github.com/aria7-op/school-mis-backend/internal/notifications"
	"github.com/aria7-op/school-mis-backend/pkg/enums"
	pkgerrors "github.com/aria7-op/school-mis-backend/pkg/errors"
	"github.com/aria7-op/school-mis-backend/pkg/logger"
)

// tenantScope resolves the authenticated school and user from the request
// context. Every notification endpoint is scoped to both.
func tenantScope(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	schoolRaw := middleware.SchoolIDFromContext(r.Context())
	if schoolRaw == "" {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "school context missing")
	}
	schoolID, err := uuid.Parse(schoolRaw)
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid school id")
	}

	userRaw := middleware.UserIDFromContext(r.Context())
	if userRaw == "" {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(userRaw)
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return schoolID, userID, nil
}

func isAdminRole(r *http.Request) bool {
	switch middleware.RoleFromContext(r.Context()) {
	case enums.RoleSuperAdmin.String(), enums.RoleAdmin.String():
		return true
	}
	return false
}

func notificationIDParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "notificationId")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification id")
	}
	return id, nil
}

// ListNotifications returns the paginated, filterable feed for the caller.
func ListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schoolID, userID, err := tenantScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := notifications.ListParams{SchoolID: schoolID, UserID: userID}
		q := r.URL.Query()

		if raw := strings.TrimSpace(q.Get("userId")); raw != "" {
			target, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid userId filter"))
				return
			}
			if target != userID && !isAdminRole(r) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "cannot list another user's notifications"))
				return
			}
			params.UserID = target
		}
		if raw := strings.TrimSpace(q.Get("type")); raw != "" {
			typ, err := enums.ParseNotificationType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type filter"))
				return
			}
			params.Type = &typ
		}
		if raw := strings.TrimSpace(q.Get("priority")); raw != "" {
			priority, err := enums.ParseNotificationPriority(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid priority filter"))
				return
			}
			params.Priority = &priority
		}
		if raw := strings.TrimSpace(q.Get("status")); raw != "" {
			status, err := enums.ParseNotificationStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			params.Status = &status
		}
		if raw := strings.TrimSpace(q.Get("isRead")); raw != "" {
			value, err := strconv.ParseBool(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid isRead value"))
				return
			}
			params.IsRead = &value
		}
		if params.Page, err = positiveIntQuery(q.Get("page"), "page"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.Limit, err = positiveIntQuery(q.Get("limit"), "limit"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "notifications retrieved", page)
	}
}

// RecentNotifications serves the most-recent-first realtime catch-up feed.
func RecentNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schoolID, userID, err := tenantScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := notifications.RecentParams{SchoolID: schoolID, UserID: userID}
		q := r.URL.Query()
		if params.Limit, err = positiveIntQuery(q.Get("limit"), "limit"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
			value, convErr := strconv.Atoi(raw)
			if convErr != nil || value < 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "offset must be a non-negative integer"))
				return
			}
			params.Offset = value
		}

		items, err := svc.Recent(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "recent notifications retrieved", items)
	}
}

// UnreadNotificationCount returns the caller's unread badge count.
func UnreadNotificationCount(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schoolID, userID, err := tenantScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		count, err := svc.UnreadCount(r.Context(), schoolID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "unread count retrieved", map[string]int64{"count": count})
	}
}

// MarkNotificationRead flips a single notification to read.
func MarkNotificationRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schoolID, userID, err := tenantScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		notificationID, err := notificationIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.MarkRead(r.Context(), schoolID, userID, notificationID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "notification marked as read", map[string]bool{"read": true})
	}
}

type markReadRequest struct {
	NotificationIDs []string `json:"notificationIds" validate:"omitempty,dive,uuid"`
}

// MarkNotificationsRead marks the listed notifications read, or all unread
// notifications when the list is empty.
func MarkNotificationsRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schoolID, userID, err := tenantScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body markReadRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var updated int64
		if len(body.NotificationIDs) == 0 {
			updated, err = svc.MarkAllRead(r.Context(), schoolID, userID)
		} else {
			ids := make([]uuid.UUID, 0, len(body.NotificationIDs))
			for _, raw := range body.NotificationIDs {
				id, parseErr := uuid.Parse(raw)
				if parseErr != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid notification id"))
					return
				}
				ids = append(ids, id)
			}
			updated, err = svc.MarkManyRead(r.Context(), schoolID, userID, ids)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "notifications marked as read", map[string]int64{"updated": updated})
	}
}

// DeleteNotification removes one of the caller's notifications.
func DeleteNotification(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schoolID, userID, err := tenantScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		notificationID, err := notificationIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), schoolID, userID, notificationID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "notification deleted", map[string]bool{"deleted": true})
	}
}

type createNotificationRequest struct {
	UserID   string `json:"userId" validate:"required,uuid"`
	Type     string `json:"type" validate:"required"`
	Priority string `json:"priority" validate:"omitempty"`
	Title    string `json:"title" validate:"required,min=1,max=255"`
	Message  string `json:"message" validate:"required,min=1"`

	RelatedEntityType *string `json:"relatedEntityType" validate:"omitempty,max=64"`
	RelatedEntityID   *string `json:"relatedEntityId" validate:"omitempty,max=64"`
}

// CreateNotification persists a notification and pushes it in real time.
func CreateNotification(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schoolID, _, err := tenantScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createNotificationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		recipient, err := uuid.Parse(body.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
			return
		}
		typ, err := enums.ParseNotificationType(body.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification type"))
			return
		}

		params := notifications.CreateParams{
			SchoolID:          schoolID,
			UserID:            recipient,
			Type:              typ,
			Title:             body.Title,
			Message:           body.Message,
			RelatedEntityType: body.RelatedEntityType,
			RelatedEntityID:   body.RelatedEntityID,
		}
		if body.Priority != "" {
			priority, err := enums.ParseNotificationPriority(body.Priority)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification priority"))
				return
			}
			params.Priority = priority
		}

		created, err := svc.Create(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, "notification created", created)
	}
}

func positiveIntQuery(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, name+" must be a positive integer")
	}
	return value, nil
}
