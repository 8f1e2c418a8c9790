package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"regflow/internal/rbac/permissions"
	"regflow/internal/registration/models"
	"regflow/internal/registration/service"
	id "regflow/pkg/domain"
	dErrors "regflow/pkg/domain-errors"
	"regflow/pkg/platform/audit"
	"regflow/pkg/platform/httputil"
	"regflow/pkg/platform/middleware/auth"
	"regflow/pkg/requestcontext"
)

type Registrations interface {
	Create(ctx context.Context, inst models.Institution, createdBy id.UserID, remarks string) (*models.Registration, error)
	Get(ctx context.Context, regID id.RegistrationID) (*models.Registration, error)
	List(ctx context.Context, f models.Filter) ([]*models.Registration, error)
	UpdateDetails(ctx context.Context, regID id.RegistrationID, in service.UpdateInput, actor id.UserID) (*models.Registration, error)
	History(ctx context.Context, regID id.RegistrationID) ([]*models.StatusLog, error)
}

type Workflow interface {
	RequestTransition(ctx context.Context, req service.TransitionRequest) (*models.Registration, error)
	AllowedTransitions(ctx context.Context, regID id.RegistrationID, userID id.UserID) ([]models.Status, error)
}

// Handler serves the /registrations endpoints.
type Handler struct {
	registrations Registrations
	workflow      Workflow
	authz         auth.Authorizer
	auditor       audit.Emitter
	localizer     httputil.ErrorLocalizer
	logger        *slog.Logger
}

type Option func(*Handler)

func WithAuditEmitter(e audit.Emitter) Option {
	return func(h *Handler) { h.auditor = e }
}

func WithLocalizer(l httputil.ErrorLocalizer) Option {
	return func(h *Handler) { h.localizer = l }
}

func New(registrations Registrations, wf Workflow, authz auth.Authorizer, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		registrations: registrations,
		workflow:      wf,
		authz:         authz,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the registration routes. r must already run
// auth.RequireAuth. Transitions are gated by workflow roles rather than a
// permission.
func (h *Handler) Register(r chi.Router) {
	r.Route("/registrations", func(r chi.Router) {
		r.With(h.gate(permissions.RegistrationCreate)).Post("/", h.HandleCreate)
		r.With(h.gate(permissions.RegistrationView)).Get("/", h.HandleList)
		r.With(h.gate(permissions.RegistrationView)).Get("/{id}", h.HandleGet)
		r.With(h.gate(permissions.RegistrationEdit)).Put("/{id}", h.HandleUpdate)
		r.Post("/{id}/transitions", h.HandleTransition)
		r.With(h.gate(permissions.RegistrationView)).Get("/{id}/transitions", h.HandleAllowedTransitions)
		r.With(h.gate(permissions.RegistrationViewHistory)).Get("/{id}/history", h.HandleHistory)
	})
}

func (h *Handler) gate(permission string) func(http.Handler) http.Handler {
	return auth.RequirePermission(h.authz, permission, h.logger, h.onDenied)
}

func (h *Handler) onDenied(ctx context.Context, userID id.UserID, permission string) {
	if h.auditor == nil {
		return
	}
	err := h.auditor.Emit(ctx, audit.Event{
		Action:       string(audit.EventAccessDenied),
		UserID:       userID,
		ActorID:      userID.String(),
		ResourceType: "permission",
		ResourceID:   permission,
		Decision:     "denied",
		RequestID:    requestcontext.RequestID(ctx),
		ClientIP:     requestcontext.ClientIP(ctx),
		Timestamp:    requestcontext.Now(ctx),
	})
	if err != nil {
		h.logger.WarnContext(ctx, "audit emit failed", "error", err)
	}
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateRegistrationRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	inst, err := req.Institution()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	reg, err := h.registrations.Create(ctx, inst, requestcontext.UserID(ctx), req.Remarks)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, reg)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f models.Filter
	if raw := q.Get("status"); raw != "" {
		st, err := models.ParseStatus(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		f.Status = st
	}
	if raw := q.Get("created_by"); raw != "" {
		userID, err := id.ParseUserID(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		f.CreatedBy = userID
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		f.Limit = limit
	}

	regs, err := h.registrations.List(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if regs == nil {
		regs = []*models.Registration{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"registrations": regs})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	regID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	reg, err := h.registrations.Get(r.Context(), regID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reg)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	regID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateRegistrationRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	inst, err := req.Institution()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	reg, err := h.registrations.UpdateDetails(ctx, regID, service.UpdateInput{Institution: inst, Version: req.Version}, requestcontext.UserID(ctx))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reg)
}

func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	regID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransitionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	target, err := models.ParseStatus(req.Target)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	reg, err := h.workflow.RequestTransition(ctx, service.TransitionRequest{
		RegistrationID: regID,
		Target:         target,
		ActingUserID:   requestcontext.UserID(ctx),
		Remarks:        req.Remarks,
		SubStatuses:    req.SubStatuses(),
	})
	if err != nil {
		h.logger.InfoContext(ctx, "transition refused",
			"registration_id", regID.String(),
			"target", target.String(),
			"code", string(dErrors.GetCode(err)),
			"request_id", requestcontext.RequestID(ctx),
		)
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reg)
}

func (h *Handler) HandleAllowedTransitions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	regID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	reg, err := h.registrations.Get(ctx, regID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	allowed, err := h.workflow.AllowedTransitions(ctx, regID, requestcontext.UserID(ctx))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TransitionsResponse{Current: reg.Status, Allowed: allowed})
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	regID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	logs, err := h.registrations.History(r.Context(), regID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"history": logs})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (id.RegistrationID, bool) {
	regID, err := id.ParseRegistrationID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return id.RegistrationID{}, false
	}
	return regID, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(r.Context(), "registration request failed",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err,
		)
	}
	httputil.WriteLocalizedError(w, r, h.localizer, err)
}
