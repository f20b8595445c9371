package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"vcissuer/internal/credentials"
	dErrors "vcissuer/pkg/domain-errors"
	"vcissuer/pkg/platform/httputil"
	"vcissuer/pkg/requestcontext"
)

// Service changes credential status and removes credential records.
type Service interface {
	ChangeStatus(ctx context.Context, id string, status credentials.Status) (*credentials.IssuedCredential, error)
	Delete(ctx context.Context, id string) (*credentials.IssuedCredential, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Put("/credentials/{vc_id}/status", h.HandleChangeStatus)
	r.Delete("/credentials/{vc_id}", h.HandleDelete)
}

type changeStatusRequest struct {
	Status credentials.Status `json:"status"`
}

func (r *changeStatusRequest) Validate() error {
	if r.Status == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	return nil
}

type statusResponse struct {
	ID     string             `json:"id"`
	Status credentials.Status `json:"status"`
}

// HandleChangeStatus handles PUT /credentials/{vc_id}/status.
func (h *Handler) HandleChangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	id, ok := credentialID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[changeStatusRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	cred, err := h.service.ChangeStatus(ctx, id, req.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{ID: cred.ID, Status: cred.Status()})
}

// HandleDelete handles DELETE /credentials/{vc_id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := credentialID(w, r)
	if !ok {
		return
	}
	if _, err := h.service.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func credentialID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := url.PathUnescape(chi.URLParam(r, "vc_id"))
	if err != nil || id == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid credential id"))
		return "", false
	}
	return id, true
}
