package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"domainreader/internal/reader"
	"domainreader/internal/reader/model"
	"domainreader/internal/schema"
	dErrors "domainreader/pkg/domain-errors"
	"domainreader/pkg/platform/httputil"
	request "domainreader/pkg/platform/middleware/request"
	"domainreader/pkg/requestcontext"
)

// Service is the resolution engine as seen by the HTTP layer.
type Service interface {
	Resolve(ctx context.Context, req reader.Request) ([]reader.Record, error)
	Count(ctx context.Context, req reader.Request) (int64, error)
}

// Handler serves the reader API.
type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
	}
}

// Register mounts the reader routes under /reader/api/v1.
func (h *Handler) Register(r chi.Router) {
	r.Route("/reader/api/v1", func(r chi.Router) {
		r.Get("/{map}/{version}/{type}/history/{id}", h.handleHistory)
		r.Get("/{map}/{version}/{type}/{filter}/count", h.handleCount)
		r.Post("/{map}/{version}/{type}/{filter}/count", h.handleCount)
		r.Get("/{map}/{version}/{type}/{filter}", h.handleResolve)
		r.Post("/{map}/{version}/{type}/{filter}", h.handleResolve)
		r.Get("/{map}/{version}/{type}", h.handleResolve)
		r.Post("/{map}/{version}/{type}", h.handleResolve)
	})
}

type countResponse struct {
	Count int64 `json:"count"`
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	records, err := h.service.Resolve(r.Context(), req)
	if err != nil {
		h.writeError(w, r, "resolve", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}

func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	n, err := h.service.Count(r.Context(), req)
	if err != nil {
		h.writeError(w, r, "count", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, countResponse{Count: n})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	params := paramsFromQuery(r)
	applyHeaders(r, params)
	params[reader.ParamID] = chi.URLParam(r, "id")

	req := reader.Request{
		Map:     chi.URLParam(r, "map"),
		Version: chi.URLParam(r, "version"),
		Type:    chi.URLParam(r, "type"),
		Params:  params,
		History: true,
	}

	records, err := h.service.Resolve(r.Context(), req)
	if err != nil {
		h.writeError(w, r, "history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}

func (h *Handler) parseRequest(w http.ResponseWriter, r *http.Request) (reader.Request, bool) {
	var params map[string]any
	if r.Method == http.MethodPost {
		var err error
		params, err = paramsFromBody(r)
		if err != nil {
			h.logger.WarnContext(r.Context(), "invalid reader request body",
				"request_id", request.GetRequestID(r.Context()),
				"error", err.Error(),
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body must be a JSON object"))
			return reader.Request{}, false
		}
	} else {
		params = paramsFromQuery(r)
	}
	applyHeaders(r, params)

	return reader.Request{
		Map:     chi.URLParam(r, "map"),
		Version: chi.URLParam(r, "version"),
		Type:    chi.URLParam(r, "type"),
		Filter:  chi.URLParam(r, "filter"),
		Params:  params,
	}, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	mapped := toDomainError(err)
	level := slog.LevelWarn
	if dErrors.CodeOf(mapped) == dErrors.CodeInternal || dErrors.CodeOf(mapped) == dErrors.CodeSchemaMismatch {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "reader request failed",
		"request_id", request.GetRequestID(r.Context()),
		"client_ip", requestcontext.ClientIP(r.Context()),
		"user_agent", requestcontext.UserAgent(r.Context()),
		"op", op,
		"path", r.URL.Path,
		"error", err.Error(),
	)
	httputil.WriteError(w, mapped)
}

// toDomainError maps engine errors onto transport-neutral codes.
func toDomainError(err error) error {
	var bindErr *model.BindingError
	var execErr *reader.ExecutionError
	switch {
	case errors.Is(err, reader.ErrSchemaNotFound), errors.Is(err, reader.ErrFilterNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, err.Error())
	case reader.IsCompilationError(err):
		return dErrors.Wrap(err, dErrors.CodeBadRequest, err.Error())
	case errors.As(err, &bindErr):
		return dErrors.Wrap(err, dErrors.CodeSchemaMismatch, bindErr.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "query timed out")
	case errors.As(err, &execErr):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "query execution failed")
	case schema.IsRetryable(err):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "schema registry unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "internal error")
	}
}
