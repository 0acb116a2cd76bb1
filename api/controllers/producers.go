package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/aria7-op/school-mis-backend/api/responses"
	"github.com/aria7-op/school-mis-backend/api/validators"
	"github.com/aria7-op/school-mis-backend/internal/notifications"
	"github.com/aria7-op/school-mis-backend/pkg/enums"
	pkgerrors "github.com/aria7-op/school-mis-backend/pkg/errors"
	"github.com/aria7-op/school-mis-backend/pkg/logger"
)

type produceRequest struct {
	UserID  string `json:"userId" validate:"required,uuid"`
	Subject string `json:"subject" validate:"required,min=1,max=255"`

	RelatedEntityType *string `json:"relatedEntityType" validate:"omitempty,max=64"`
	RelatedEntityID   *string `json:"relatedEntityId" validate:"omitempty,max=64"`
}

// ProduceNotification renders a canned template for the given kind
// (student, attendance, payment, ...) and delivers it.
func ProduceNotification(kind string, svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schoolID, _, err := tenantScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body produceRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		recipient, err := uuid.Parse(body.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
			return
		}

		created, err := svc.Produce(r.Context(), kind, notifications.ProduceParams{
			SchoolID:          schoolID,
			UserID:            recipient,
			Subject:           body.Subject,
			RelatedEntityType: body.RelatedEntityType,
			RelatedEntityID:   body.RelatedEntityID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, "notification created", created)
	}
}

type bulkNotificationRequest struct {
	UserIDs  []string `json:"userIds" validate:"required,min=1,dive,uuid"`
	Type     string   `json:"type" validate:"required"`
	Priority string   `json:"priority" validate:"omitempty"`
	Title    string   `json:"title" validate:"required,min=1,max=255"`
	Message  string   `json:"message" validate:"required,min=1"`
}

// BulkCreateNotifications fans one notification out to many recipients.
func BulkCreateNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schoolID, _, err := tenantScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body bulkNotificationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		recipients := make([]uuid.UUID, 0, len(body.UserIDs))
		for _, raw := range body.UserIDs {
			id, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid user id"))
				return
			}
			recipients = append(recipients, id)
		}

		typ, err := enums.ParseNotificationType(body.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification type"))
			return
		}
		params := notifications.CreateParams{
			SchoolID: schoolID,
			Type:     typ,
			Title:    body.Title,
			Message:  body.Message,
		}
		if body.Priority != "" {
			priority, err := enums.ParseNotificationPriority(body.Priority)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification priority"))
				return
			}
			params.Priority = priority
		}

		created, err := svc.CreateBulk(r.Context(), params, recipients)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, "notifications created", map[string]int{"created": created})
	}
}

// NotificationStats aggregates totals for the dashboard widgets.
func NotificationStats(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schoolID, userID, err := tenantScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		stats, err := svc.Stats(r.Context(), schoolID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "notification stats retrieved", stats)
	}
}

// NotificationTemplates lists the canned producer templates.
func NotificationTemplates(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := tenantScope(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "notification templates retrieved", svc.Templates())
	}
}
