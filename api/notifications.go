package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/staffing-engine/generic"
	"github.com/warp/staffing-engine/notification"
	"github.com/warp/staffing-engine/staffing"
)

// =============================================================================
// NOTIFICATION FEED
// =============================================================================

// Every feed operation is scoped to what the caller can see. A notification
// outside the caller's audience is reported as not found.

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := notification.ListFilter{
		Status: notification.Status(q.Get("status")),
		Type:   notification.Type(q.Get("type")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		h.writeServiceError(w, r, &generic.ValidationError{Field: "status", Message: "unknown notification status"})
		return
	}
	if filter.Type != "" && !filter.Type.Valid() {
		h.writeServiceError(w, r, &generic.ValidationError{Field: "type", Message: "unknown notification type"})
		return
	}
	limit, offset, err := pagination(r, 20, 100)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	filter.Limit, filter.Offset = limit, offset

	page, err := h.Notifications.List(r.Context(), principal(r), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	dto := NotificationPageDTO{
		Items:  make([]NotificationDTO, 0, len(page.Items)),
		Total:  page.Total,
		Unread: page.Unread,
		Limit:  limit,
		Offset: offset,
	}
	for _, n := range page.Items {
		dto.Items = append(dto.Items, toNotificationDTO(n))
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.Notifications.UnreadCount(r.Context(), principal(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	h.updateNotification(w, r, h.Notifications.MarkRead, notification.StatusRead)
}

func (h *Handler) DismissNotification(w http.ResponseWriter, r *http.Request) {
	h.updateNotification(w, r, h.Notifications.Dismiss, notification.StatusDismissed)
}

func (h *Handler) ActionNotification(w http.ResponseWriter, r *http.Request) {
	h.updateNotification(w, r, h.Notifications.MarkActioned, notification.StatusActioned)
}

type notificationMutation func(ctx context.Context, viewer staffing.Principal, id string) error

func (h *Handler) updateNotification(w http.ResponseWriter, r *http.Request, apply notificationMutation, status notification.Status) {
	id := chi.URLParam(r, "id")
	if err := apply(r.Context(), principal(r), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(status)})
}

func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.Notifications.Delete(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Notifications.MarkAllRead(r.Context(), principal(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *Handler) ClearReadNotifications(w http.ResponseWriter, r *http.Request) {
	n, err := h.Notifications.ClearRead(r.Context(), principal(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// =============================================================================
// SETTINGS (admin)
// =============================================================================

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Notifications.RawSettings(r.Context(), principal(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

// GetSetting reports one key. default is true when it was never written.
func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, stored, err := h.Notifications.Setting(r.Context(), principal(r), key)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SettingDTO{Key: key, Value: value, Default: !stored})
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	viewer := principal(r)
	if err := h.Notifications.UpdateSettings(r.Context(), viewer, req.Settings); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	settings, err := h.Notifications.RawSettings(r.Context(), viewer)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}
