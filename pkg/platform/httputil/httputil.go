// Package httputil holds the response and request helpers shared by handlers.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"

	dErrors "vcissuer/pkg/domain-errors"
	"vcissuer/pkg/platform/upstream"
)

// ErrorResponse is the OAuth-style error body.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Validatable is implemented by request types that validate and normalize
// themselves after decoding.
type Validatable interface {
	Validate() error
}

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeBadRequest:         http.StatusBadRequest,
	dErrors.CodeInvalidInput:       http.StatusBadRequest,
	dErrors.CodeInvalidRequest:     http.StatusBadRequest,
	dErrors.CodeValidation:         http.StatusBadRequest,
	dErrors.CodeUnauthorized:       http.StatusUnauthorized,
	dErrors.CodeForbidden:          http.StatusForbidden,
	dErrors.CodeNotFound:           http.StatusNotFound,
	dErrors.CodeConflict:           http.StatusConflict,
	dErrors.CodeTimeout:            http.StatusGatewayTimeout,
	dErrors.CodeUnavailable:        http.StatusServiceUnavailable,
	dErrors.CodeBadGateway:         http.StatusBadGateway,
	dErrors.CodeInternal:           http.StatusInternalServerError,
	dErrors.CodeInvariantViolation: http.StatusInternalServerError,
}

// StatusFor maps a domain error code to an HTTP status.
func StatusFor(code dErrors.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteError renders err as an ErrorResponse. Descriptions of 5xx errors are
// never exposed. An upstream error anywhere in the chain is relayed verbatim.
func WriteError(w http.ResponseWriter, err error) {
	var ue *upstream.Error
	if errors.As(err, &ue) {
		WriteRaw(w, ue.Status, ue.ContentType, ue.Body)
		return
	}
	code := dErrors.CodeOf(err)
	status := StatusFor(code)
	resp := ErrorResponse{Error: string(code)}
	if status < http.StatusInternalServerError {
		resp.ErrorDescription = dErrors.MessageOf(err)
	}
	if code == dErrors.CodeInvariantViolation {
		resp.Error = string(dErrors.CodeInternal)
	}
	WriteJSON(w, status, resp)
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteRaw writes an upstream body verbatim with its content type.
func WriteRaw(w http.ResponseWriter, status int, contentType string, body []byte) {
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// DecodeAndPrepare decodes a JSON body into T, checks its validate tags and
// runs its Validate method when T implements Validatable. On failure the error
// response is already written.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "failed to decode request",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid json payload"))
		return nil, false
	}
	return prepare(w, &req, logger, ctx, requestID)
}

// FormDecoder is implemented by request types that also accept
// application/x-www-form-urlencoded bodies.
type FormDecoder interface {
	DecodeForm(form url.Values)
}

// DecodeFormOrJSON reads a form body when the request is form encoded and T
// implements FormDecoder, and a JSON body otherwise. Validation is the same as
// DecodeAndPrepare.
func DecodeFormOrJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/x-www-form-urlencoded" && mediaType != "multipart/form-data" {
		return DecodeAndPrepare[T](w, r, logger, ctx, requestID)
	}
	var req T
	fd, ok := any(&req).(FormDecoder)
	if !ok {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "form bodies are not accepted"))
		return nil, false
	}
	if err := r.ParseForm(); err != nil {
		logger.WarnContext(ctx, "failed to parse form",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid form payload"))
		return nil, false
	}
	fd.DecodeForm(r.PostForm)
	return prepare(w, &req, logger, ctx, requestID)
}

func prepare[T any](w http.ResponseWriter, req *T, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	err := ValidateStruct(req)
	if err == nil {
		if v, ok := any(req).(Validatable); ok {
			err = v.Validate()
		}
	}
	if err != nil {
		logger.WarnContext(ctx, "invalid request",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, err)
		return nil, false
	}
	return req, true
}
