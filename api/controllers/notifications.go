package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/bidhaven-backend/api/validators"
	"github.com/angelmondragon/bidhaven-backend/internal/notifications"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
)

// ListNotifications pages through the caller's inbox, newest first.
// Query: limit, cursor, unread_only.
func ListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return endpoint("notifications service", svc != nil, logg, authed(func(r *http.Request, caller uuid.UUID) (reply, error) {
		page, err := pageParams(r)
		if err != nil {
			return reply{}, err
		}
		unread, err := validators.ParseQueryBool(r, "unread_only")
		if err != nil {
			return reply{}, err
		}
		list, err := svc.List(r.Context(), notifications.ListParams{
			RecipientID: caller,
			Limit:       page.Limit,
			Cursor:      page.Cursor,
			UnreadOnly:  unread,
		})
		return ok(list), err
	}))
}

func MarkNotificationRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return endpoint("notifications service", svc != nil, logg, authed(func(r *http.Request, caller uuid.UUID) (reply, error) {
		notificationID, err := uuidParam(r, "notificationId")
		if err != nil {
			return reply{}, err
		}
		if err := svc.MarkRead(r.Context(), caller, notificationID); err != nil {
			return reply{}, err
		}
		return ok(map[string]bool{"read": true}), nil
	}))
}

// MarkAllNotificationsRead reports how many unread rows were flipped.
func MarkAllNotificationsRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return endpoint("notifications service", svc != nil, logg, authed(func(r *http.Request, caller uuid.UUID) (reply, error) {
		updated, err := svc.MarkAllRead(r.Context(), caller)
		return ok(map[string]int64{"updated": updated}), err
	}))
}
