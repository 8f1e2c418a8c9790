package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"regflow/internal/notification/models"
	id "regflow/pkg/domain"
	dErrors "regflow/pkg/domain-errors"
	"regflow/pkg/platform/httputil"
	"regflow/pkg/requestcontext"
)

type Service interface {
	List(ctx context.Context, recipient id.UserID, f models.ListFilter) ([]*models.Notification, error)
	MarkRead(ctx context.Context, recipient id.UserID, nid id.NotificationID) error
}

// Handler serves the caller's notification inbox.
type Handler struct {
	service   Service
	logger    *slog.Logger
	localizer httputil.ErrorLocalizer
}

func New(service Service, logger *slog.Logger, localizer httputil.ErrorLocalizer) *Handler {
	return &Handler{service: service, logger: logger, localizer: localizer}
}

// Register mounts the inbox routes. r must already run auth.RequireAuth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/me/notifications", h.HandleList)
	r.Post("/me/notifications/{id}/read", h.HandleMarkRead)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f := models.ListFilter{UnreadOnly: r.URL.Query().Get("unread") == "true"}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httputil.WriteLocalizedError(w, r, h.localizer, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		f.Limit = limit
	}
	items, err := h.service.List(ctx, requestcontext.UserID(ctx), f)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list notifications",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteLocalizedError(w, r, h.localizer, err)
		return
	}
	if items == nil {
		items = []*models.Notification{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"notifications": items})
}

func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	nid, err := id.ParseNotificationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteLocalizedError(w, r, h.localizer, err)
		return
	}
	if err := h.service.MarkRead(ctx, requestcontext.UserID(ctx), nid); err != nil {
		httputil.WriteLocalizedError(w, r, h.localizer, err)
		return
	}
	httputil.WriteNoContent(w)
}
