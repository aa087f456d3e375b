package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	appModels "labelcheck/internal/application/models"
	"labelcheck/internal/batch/models"
	"labelcheck/internal/batch/service"
	"labelcheck/pkg/domain"
	dErrors "labelcheck/pkg/domain-errors"
	"labelcheck/pkg/platform/httputil"
	"labelcheck/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

// Service defines the batch operations exposed over HTTP.
type Service interface {
	Start(ctx context.Context, req service.StartRequest) (*models.Job, error)
	GetJob(ctx context.Context, batchID string) (*models.Job, error)
	GetItem(ctx context.Context, itemID string) (*models.Item, error)
	ListItems(ctx context.Context, batchID string, page service.Page, status *models.ItemStatus) (models.ItemPage, error)
	ListAttempts(ctx context.Context, itemID string) ([]models.Attempt, error)
}

const defaultMaxUploadBytes int64 = 256 << 20

type Handler struct {
	service        Service
	logger         *slog.Logger
	uploadDir      string
	maxUploadBytes int64
}

type Option func(*Handler)

// WithUploadDir sets where uploaded archives are spooled before processing.
func WithUploadDir(dir string) Option {
	return func(h *Handler) {
		h.uploadDir = dir
	}
}

func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service:        service,
		logger:         logger,
		maxUploadBytes: defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts batch endpoints. Every route expects an actor in the context.
func (h *Handler) Register(r chi.Router) {
	r.Post("/batches", h.HandleStart)
	r.Post("/batches/archive", h.HandleStartArchive)
	r.Route("/batches/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Get("/items", h.HandleListItems)
		r.Get("/items/{itemID}/attempts", h.HandleListAttempts)
	})
}

// HandleStart handles POST /batches with a JSON item list.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[StartBatchRequest](w, r)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	job, err := h.service.Start(r.Context(), service.StartRequest{
		Items:   req.inputs(),
		Profile: req.parsedProfile,
		ActorID: actor.ID,
	})
	if err != nil {
		h.fail(w, r, "start batch failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, newJobResponse(job))
}

// HandleStartArchive handles POST /batches/archive, a multipart upload with
// an "archive" zip part and a "regulatoryProfile" field.
func (h *Handler) HandleStartArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "expected a multipart upload"))
		return
	}

	path, profile, err := h.spool(mr)
	if err != nil {
		if path != "" {
			os.Remove(path)
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, models.CodeBatchSizeOutOfRange+": upload exceeds "+strconv.FormatInt(h.maxUploadBytes, 10)+" bytes"))
			return
		}
		h.fail(w, r, "read archive upload failed", err)
		return
	}

	job, err := h.service.Start(ctx, service.StartRequest{
		ArchivePath:   path,
		RemoveArchive: true,
		Profile:       profile,
		ActorID:       actor.ID,
	})
	if err != nil {
		os.Remove(path)
		h.fail(w, r, "start archive batch failed", err)
		return
	}
	h.logger.InfoContext(ctx, "archive batch accepted",
		"request_id", requestcontext.RequestID(ctx),
		"batch_id", job.ID,
		"actor_id", actor.ID,
	)
	httputil.WriteJSON(w, http.StatusAccepted, newJobResponse(job))
}

// spool copies the archive part to a temp file. A returned path must be
// removed by the caller on error.
func (h *Handler) spool(mr *multipart.Reader) (string, appModels.RegulatoryProfile, error) {
	var (
		path    string
		profile appModels.RegulatoryProfile
	)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return path, "", err
		}
		switch part.FormName() {
		case "regulatoryProfile":
			raw, err := io.ReadAll(io.LimitReader(part, 64))
			if err != nil {
				return path, "", err
			}
			profile = appModels.RegulatoryProfile(strings.TrimSpace(string(raw)))
		case "archive":
			if path != "" {
				return path, "", dErrors.New(dErrors.CodeValidation, "only one archive per upload")
			}
			f, err := os.CreateTemp(h.uploadDir, "upload-*.zip")
			if err != nil {
				return "", "", err
			}
			path = f.Name()
			_, err = io.Copy(f, part)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return path, "", err
			}
		}
		part.Close()
	}
	if path == "" {
		return "", "", dErrors.New(dErrors.CodeValidation, "archive part is required")
	}
	if !profile.IsValid() {
		return path, "", dErrors.New(dErrors.CodeValidation, "regulatoryProfile must be distilled_spirits, wine or malt_beverage")
	}
	return path, profile, nil
}

// HandleGet handles GET /batches/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	job, ok := h.authorize(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newJobResponse(job))
}

// HandleListItems handles GET /batches/{id}/items?offset=&limit=&status=.
func (h *Handler) HandleListItems(w http.ResponseWriter, r *http.Request) {
	job, ok := h.authorize(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	offset, err := intParam(q.Get("offset"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "offset must be a non-negative integer"))
		return
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer"))
		return
	}
	var status *models.ItemStatus
	if raw := q.Get("status"); raw != "" {
		st := models.ItemStatus(raw)
		status = &st
	}

	page, err := h.service.ListItems(r.Context(), job.ID, service.Page{Offset: offset, Limit: limit}, status)
	if err != nil {
		h.fail(w, r, "list batch items failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ItemListResponse{
		BatchID: job.ID,
		Items:   page.Items,
		Total:   page.Total,
		Offset:  offset,
	})
}

// HandleListAttempts handles GET /batches/{id}/items/{itemID}/attempts.
func (h *Handler) HandleListAttempts(w http.ResponseWriter, r *http.Request) {
	job, ok := h.authorize(w, r)
	if !ok {
		return
	}
	itemID := chi.URLParam(r, "itemID")
	it, err := h.service.GetItem(r.Context(), itemID)
	if err != nil {
		h.fail(w, r, "get batch item failed", err)
		return
	}
	if it.BatchID != job.ID {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "batch item not found"))
		return
	}
	attempts, err := h.service.ListAttempts(r.Context(), itemID)
	if err != nil {
		h.fail(w, r, "list attempts failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AttemptListResponse{BatchItemID: itemID, Attempts: attempts})
}

func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := requestcontext.Actor(r.Context())
	if !ok || actor.ID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return domain.Actor{}, false
	}
	return actor, true
}

// authorize loads the job; officers only see batches they started.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (*models.Job, bool) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return nil, false
	}
	job, err := h.service.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "get batch failed", err)
		return nil, false
	}
	if !actor.IsManager() && job.ActorID != actor.ID {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "actor cannot access this batch"))
		return nil, false
	}
	return job, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	level := slog.LevelWarn
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"batch_id", chi.URLParam(r, "id"),
		"error", err,
	)
	httputil.WriteError(w, err)
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
