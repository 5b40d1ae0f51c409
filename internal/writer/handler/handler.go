package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"domainreader/internal/writer"
	dErrors "domainreader/pkg/domain-errors"
	"domainreader/pkg/platform/httputil"
	authmw "domainreader/pkg/platform/middleware/auth"
	request "domainreader/pkg/platform/middleware/request"
	"domainreader/pkg/requestcontext"
)

const maxBatchBytes = 16 << 20

// Service accepts batch writes.
type Service interface {
	EnqueueBatch(ctx context.Context, payload []byte) (writer.Receipt, error)
}

// Handler serves the writer API.
type Handler struct {
	logger    *slog.Logger
	service   Service
	saver     writer.Saver
	validator authmw.TokenValidator
}

// New creates the writer handler. A nil validator leaves the routes open.
func New(service Service, saver writer.Saver, validator authmw.TokenValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		saver:     saver,
		validator: validator,
	}
}

// Register mounts the writer routes under /writer/api/v1.
func (h *Handler) Register(r chi.Router) {
	r.Route("/writer/api/v1", func(r chi.Router) {
		r.Use(authmw.RequireBearer(h.validator, h.logger))
		r.Post("/batch", h.handleBatch)
		r.Post("/instances/{instanceID}", h.handleSave)
	})
}

type saveResponse struct {
	InstanceID string `json:"instance_id"`
	Status     string `json:"status"`
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBatchBytes))
	if err != nil {
		h.logger.WarnContext(ctx, "unreadable batch body",
			"request_id", requestID,
			"client_ip", requestcontext.ClientIP(ctx),
			"user_agent", requestcontext.UserAgent(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "batch body could not be read"))
		return
	}

	receipt, err := h.service.EnqueueBatch(ctx, body)
	if err != nil {
		h.logger.WarnContext(ctx, "batch rejected",
			"request_id", requestID,
			"client_ip", requestcontext.ClientIP(ctx),
			"user_agent", requestcontext.UserAgent(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, receipt)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instanceID := chi.URLParam(r, "instanceID")
	if instanceID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "instance id is required"))
		return
	}

	if err := h.saver.SaveData(ctx, instanceID); err != nil {
		h.logger.ErrorContext(ctx, "save failed",
			"request_id", request.GetRequestID(ctx),
			"client_ip", requestcontext.ClientIP(ctx),
			"user_agent", requestcontext.UserAgent(ctx),
			"instance_id", instanceID,
			"error", err.Error(),
		)
		if dErrors.HasCode(err, dErrors.CodeBadRequest) {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "save failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, saveResponse{InstanceID: instanceID, Status: "accepted"})
}
