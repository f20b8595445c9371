package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	dErrors "vcissuer/pkg/domain-errors"
	"vcissuer/pkg/platform/httputil"
	"vcissuer/pkg/requestcontext"
)

// Service renders status lists.
type Service interface {
	Render(ctx context.Context, listID int64) (string, error)
}

// Handler serves status lists to verifiers.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the status list endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/credentials/status/list/{list_id}", h.HandleRender)
}

// HandleRender handles GET /credentials/status/list/{list_id}.
func (h *Handler) HandleRender(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listID, err := ParseListID(chi.URLParam(r, "list_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	encoded, err := h.service.Render(ctx, listID)
	if err != nil {
		h.logger.WarnContext(ctx, "status list render failed",
			"request_id", requestcontext.RequestID(ctx),
			"list_id", listID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteRaw(w, http.StatusOK, "text/plain; charset=utf-8", []byte(encoded))
}

// ParseListID parses a list id path parameter.
func ParseListID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "invalid status list id")
	}
	return id, nil
}
