package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"labelcheck/internal/application/models"
	"labelcheck/internal/application/service"
	"labelcheck/pkg/domain"
	dErrors "labelcheck/pkg/domain-errors"
	"labelcheck/pkg/platform/httputil"
	"labelcheck/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

// Service defines the application operations exposed over HTTP.
type Service interface {
	CreateApplication(ctx context.Context, req service.CreateRequest) (*models.Application, error)
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	ListApplications(ctx context.Context, actor *domain.Actor) ([]*models.Application, error)
	ListEvents(ctx context.Context, id string) ([]models.Event, error)
	RecordScannerQuickCheck(ctx context.Context, id string, result models.QuickCheckResult, expected *models.Expected) (*models.Application, error)
	MergeClientSync(ctx context.Context, id string, patch map[string]any) (*models.Application, error)
	AppendCrdtOps(ctx context.Context, id, actorID string, ops []models.Operation) ([]models.Operation, error)
	ListCrdtOps(ctx context.Context, id string, after int64) ([]models.Operation, error)
	ClaimApplicationOwnerForActor(ctx context.Context, id, userID string) (models.ClaimResult, error)
	CanActorAccessApplication(ctx context.Context, id string, actor domain.Actor) (bool, error)
	RecordReviewerOverride(ctx context.Context, id string, actor domain.Actor, status models.Status, reason string) (*models.Application, error)
	ComputeKPIs(ctx context.Context, since, until time.Time) (*models.KPIs, error)
}

// Handler wires application endpoints to the application service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts application endpoints on the router. Callers install the
// authentication middleware; every route expects an actor in the context.
func (h *Handler) Register(r chi.Router) {
	r.Post("/applications", h.HandleCreate)
	r.Get("/applications", h.HandleList)
	r.Route("/applications/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Get("/events", h.HandleListEvents)
		r.Post("/quick-checks", h.HandleQuickCheck)
		r.Post("/sync", h.HandleSync)
		r.Post("/claim", h.HandleClaim)
		r.Post("/override", h.HandleOverride)
		r.Get("/ops", h.HandleListOps)
		r.Post("/ops", h.HandleAppendOps)
	})
	r.Get("/kpis", h.HandleKPIs)
}

// HandleCreate handles POST /applications.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	req, ok := decode[CreateApplicationRequest](w, r)
	if !ok {
		return
	}

	doc, err := h.service.CreateApplication(ctx, service.CreateRequest{
		Profile:        req.parsedProfile,
		SubmissionType: req.parsedSubmission,
		ActorID:        actor.ID,
		DocumentID:     req.DocumentID,
	})
	if err != nil {
		h.fail(w, r, "create application failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, doc)
}

// HandleList handles GET /applications.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	apps, err := h.service.ListApplications(r.Context(), &actor)
	if err != nil {
		h.fail(w, r, "list applications failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ApplicationListResponse{Applications: apps, Total: len(apps)})
}

// HandleGet handles GET /applications/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, _, ok := h.authorize(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetApplication(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get application failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandleListEvents handles GET /applications/{id}/events.
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	id, _, ok := h.authorize(w, r)
	if !ok {
		return
	}
	events, err := h.service.ListEvents(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list events failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, EventListResponse{ApplicationID: id, Events: events})
}

// HandleQuickCheck handles POST /applications/{id}/quick-checks.
func (h *Handler) HandleQuickCheck(w http.ResponseWriter, r *http.Request) {
	id, _, ok := h.authorize(w, r)
	if !ok {
		return
	}
	req, ok := decode[QuickCheckRequest](w, r)
	if !ok {
		return
	}
	doc, err := h.service.RecordScannerQuickCheck(r.Context(), id, req.Result, req.Expected)
	if err != nil {
		h.fail(w, r, "record quick check failed", err)
		return
	}
	h.writeDoc(w, doc)
}

// HandleSync handles POST /applications/{id}/sync. The body is the patch.
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	id, _, ok := h.authorize(w, r)
	if !ok {
		return
	}
	patch, ok := httputil.DecodeJSON[map[string]any](w, r)
	if !ok {
		return
	}
	doc, err := h.service.MergeClientSync(r.Context(), id, *patch)
	if err != nil {
		h.fail(w, r, "merge client sync failed", err)
		return
	}
	h.writeDoc(w, doc)
}

// HandleClaim handles POST /applications/{id}/claim.
// Claims are not gated on access: an unowned application is claimable by any officer.
func (h *Handler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	result, err := h.service.ClaimApplicationOwnerForActor(ctx, id, actor.ID)
	if err != nil {
		h.fail(w, r, "claim application failed", err)
		return
	}
	if result == models.ClaimApplicationNotFound {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "application not found"))
		return
	}
	h.logger.InfoContext(ctx, "claim processed",
		"request_id", requestcontext.RequestID(ctx),
		"application_id", id,
		"actor_id", actor.ID,
		"result", result,
	)
	httputil.WriteJSON(w, http.StatusOK, ClaimResponse{ApplicationID: id, Result: result})
}

// HandleOverride handles POST /applications/{id}/override.
func (h *Handler) HandleOverride(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	req, ok := decode[OverrideRequest](w, r)
	if !ok {
		return
	}
	doc, err := h.service.RecordReviewerOverride(r.Context(), chi.URLParam(r, "id"), actor, req.parsedStatus, req.Reason)
	if err != nil {
		h.fail(w, r, "reviewer override failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandleListOps handles GET /applications/{id}/ops?after=N.
func (h *Handler) HandleListOps(w http.ResponseWriter, r *http.Request) {
	id, _, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var after int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "after must be a non-negative integer"))
			return
		}
		after = n
	}
	ops, err := h.service.ListCrdtOps(r.Context(), id, after)
	if err != nil {
		h.fail(w, r, "list crdt ops failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newOperationsResponse(id, ops))
}

// HandleAppendOps handles POST /applications/{id}/ops.
func (h *Handler) HandleAppendOps(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.authorize(w, r)
	if !ok {
		return
	}
	req, ok := decode[AppendOpsRequest](w, r)
	if !ok {
		return
	}
	actorID := req.ActorID
	if actorID == "" {
		actorID = actor.ID
	}
	ops, err := h.service.AppendCrdtOps(r.Context(), id, actorID, req.Ops)
	if err != nil {
		h.fail(w, r, "append crdt ops failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newOperationsResponse(id, ops))
}

// HandleKPIs handles GET /kpis?since=&until=. Managers only.
func (h *Handler) HandleKPIs(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if !actor.IsManager() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "kpis are restricted to managers"))
		return
	}
	since, err := parseTime(r.URL.Query().Get("since"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "since must be RFC 3339"))
		return
	}
	until, err := parseTime(r.URL.Query().Get("until"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "until must be RFC 3339"))
		return
	}
	kpis, err := h.service.ComputeKPIs(r.Context(), since, until)
	if err != nil {
		h.fail(w, r, "compute kpis failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, kpis)
}

func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := requestcontext.Actor(r.Context())
	if !ok || actor.ID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return domain.Actor{}, false
	}
	return actor, true
}

// authorize resolves the path id and checks the actor may access it.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (string, domain.Actor, bool) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return "", domain.Actor{}, false
	}
	id := chi.URLParam(r, "id")
	allowed, err := h.service.CanActorAccessApplication(r.Context(), id, actor)
	if err != nil {
		h.fail(w, r, "access check failed", err)
		return "", domain.Actor{}, false
	}
	if !allowed {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "actor cannot access this application"))
		return "", domain.Actor{}, false
	}
	return id, actor, true
}

func (h *Handler) writeDoc(w http.ResponseWriter, doc *models.Application) {
	if doc == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "application not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	level := slog.LevelWarn
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"application_id", chi.URLParam(r, "id"),
		"error", err,
	)
	httputil.WriteError(w, err)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
