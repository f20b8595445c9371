package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"vcissuer/internal/openid"
	dErrors "vcissuer/pkg/domain-errors"
	"vcissuer/pkg/platform/httputil"
	strutil "vcissuer/pkg/platform/strings"
	"vcissuer/pkg/platform/upstream"
	"vcissuer/pkg/requestcontext"
)

// maxRegisterBody bounds deferred registration payloads.
const maxRegisterBody = 1 << 20

// Service is the issuance protocol surface served over HTTP.
type Service interface {
	Authorize(ctx context.Context, req openid.AuthorizeRequest) (*upstream.Response, error)
	DirectPost(ctx context.Context, req openid.DirectPostRequest) (*upstream.Response, error)
	Token(ctx context.Context, req openid.TokenRequest) (*upstream.Response, error)
	Credentials(ctx context.Context, bearer string, req openid.CredentialRequest) (*openid.IssueResult, error)
	DeferredCredentials(ctx context.Context, bearer string) (*openid.IssueResult, error)
	ExternalData(ctx context.Context, vcType, userID, pin string) (*upstream.Response, error)
	RegisterDeferred(ctx context.Context, body json.RawMessage) (*upstream.Response, error)
	ExchangeDeferred(ctx context.Context, code string) (*upstream.Response, error)
	IssuerMetadata(ctx context.Context) (*openid.IssuerMetadata, error)
	AuthorizationMetadata(ctx context.Context) (map[string]any, error)
	JWKS(ctx context.Context) (jwk.Set, error)
	StatusListCredential(ctx context.Context, listID int64) (*upstream.Response, error)
	CredentialOffer(ctx context.Context, req openid.OfferRequest) (*openid.Offer, error)
	DirectAccreditation(ctx context.Context, did, credentialType string) (*openid.Offer, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/.well-known/openid-configuration", h.HandleAuthorizationMetadata)
	r.Get("/.well-known/openid-credential-issuer", h.HandleIssuerMetadata)
	r.Get("/jwks", h.HandleJWKS)

	r.Get("/auth/authorize", h.HandleAuthorize)
	r.Post("/auth/direct_post", h.HandleDirectPost)
	r.Post("/auth/token", h.HandleToken)

	r.Post("/credentials", h.HandleCredentials)
	r.Post("/credential_deferred", h.HandleDeferredCredentials)
	r.Get("/credentials/external-data", h.HandleExternalData)
	r.Get("/credentials/status/list/{list_id}/credential", h.HandleStatusListCredential)
	r.Get("/credentials/ebsi/accreditation", h.HandleDirectAccreditation)
	r.Get("/credential-offer", h.HandleCredentialOffer)

	r.Post("/deferred/register", h.HandleRegisterDeferred)
	r.Get("/deferred/exchange/{code}", h.HandleExchangeDeferred)
}

// HandleAuthorize handles GET /auth/authorize. A successful upstream answer
// becomes a redirect to the location it names.
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req := openid.AuthorizeRequestFromQuery(r.URL.Query())
	if err := httputil.ValidateStruct(&req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp, err := h.service.Authorize(ctx, req)
	if err != nil {
		h.writeError(ctx, w, "authorize", err)
		return
	}
	if resp.Status == http.StatusOK || resp.Status == http.StatusFound {
		if location := redirectLocation(resp); location != "" {
			http.Redirect(w, r, location, http.StatusFound)
			return
		}
	}
	relay(w, resp)
}

// redirectLocation reads the redirect target from the Location header or a
// JSON body's location field.
func redirectLocation(resp *upstream.Response) string {
	if location := resp.Header.Get("Location"); location != "" {
		return location
	}
	var body struct {
		Location string `json:"location"`
	}
	if json.Unmarshal(resp.Body, &body) == nil {
		return body.Location
	}
	return ""
}

// HandleDirectPost handles POST /auth/direct_post.
func (h *Handler) HandleDirectPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeFormOrJSON[openid.DirectPostRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	resp, err := h.service.DirectPost(ctx, *req)
	if err != nil {
		h.writeError(ctx, w, "direct_post", err)
		return
	}
	if resp.Status == http.StatusFound || resp.Status == http.StatusSeeOther {
		if location := resp.Header.Get("Location"); location != "" {
			http.Redirect(w, r, location, http.StatusFound)
			return
		}
	}
	relay(w, resp)
}

// HandleToken handles POST /auth/token.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeFormOrJSON[openid.TokenRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	resp, err := h.service.Token(ctx, *req)
	if err != nil {
		h.writeError(ctx, w, "token", err)
		return
	}
	relay(w, resp)
}

// HandleCredentials handles POST /credentials.
func (h *Handler) HandleCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bearer := r.Header.Get("Authorization")
	if bearer == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "access token is required"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[openid.CredentialRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	result, err := h.service.Credentials(ctx, bearer, *req)
	if err != nil {
		h.writeError(ctx, w, "credentials", err)
		return
	}
	relay(w, result.Response)
}

// HandleDeferredCredentials handles POST /credential_deferred. The bearer is
// the acceptance token from an earlier deferred response.
func (h *Handler) HandleDeferredCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.service.DeferredCredentials(ctx, r.Header.Get("Authorization"))
	if err != nil {
		h.writeError(ctx, w, "deferred_credentials", err)
		return
	}
	relay(w, result.Response)
}

// HandleExternalData handles GET /credentials/external-data.
func (h *Handler) HandleExternalData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	resp, err := h.service.ExternalData(ctx, q.Get("vc_type"), q.Get("user_id"), q.Get("pin"))
	if err != nil {
		h.writeError(ctx, w, "external_data", err)
		return
	}
	relay(w, resp)
}

// HandleRegisterDeferred handles POST /deferred/register.
func (h *Handler) HandleRegisterDeferred(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRegisterBody))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "failed to read body"))
		return
	}
	resp, err := h.service.RegisterDeferred(ctx, body)
	if err != nil {
		h.writeError(ctx, w, "register_deferred", err)
		return
	}
	relay(w, resp)
}

// HandleExchangeDeferred handles GET /deferred/exchange/{code}.
func (h *Handler) HandleExchangeDeferred(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp, err := h.service.ExchangeDeferred(ctx, chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(ctx, w, "exchange_deferred", err)
		return
	}
	relay(w, resp)
}

// HandleStatusListCredential handles
// GET /credentials/status/list/{list_id}/credential.
func (h *Handler) HandleStatusListCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listID, err := strconv.ParseInt(chi.URLParam(r, "list_id"), 10, 64)
	if err != nil || listID <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid list id"))
		return
	}
	resp, err := h.service.StatusListCredential(ctx, listID)
	if err != nil {
		h.writeError(ctx, w, "status_list_credential", err)
		return
	}
	relay(w, resp)
}

// HandleIssuerMetadata handles GET /.well-known/openid-credential-issuer.
func (h *Handler) HandleIssuerMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := h.service.IssuerMetadata(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, "issuer_metadata", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, meta)
}

// HandleAuthorizationMetadata handles GET /.well-known/openid-configuration.
func (h *Handler) HandleAuthorizationMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := h.service.AuthorizationMetadata(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, "authorization_metadata", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, meta)
}

// HandleJWKS handles GET /jwks.
func (h *Handler) HandleJWKS(w http.ResponseWriter, r *http.Request) {
	set, err := h.service.JWKS(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, "jwks", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, set)
}

// HandleCredentialOffer handles GET /credential-offer. types is a comma
// separated list.
func (h *Handler) HandleCredentialOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	types := strutil.DedupeAndTrim(strings.Split(q.Get("types"), ","))
	pinRequired, _ := strconv.ParseBool(q.Get("user_pin_required"))
	offer, err := h.service.CredentialOffer(ctx, openid.OfferRequest{
		Types:             types,
		PreAuthorizedCode: q.Get("pre-authorized_code"),
		UserPinRequired:   pinRequired,
	})
	if err != nil {
		h.writeError(ctx, w, "credential_offer", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, offer)
}

// HandleDirectAccreditation handles GET /credentials/ebsi/accreditation.
func (h *Handler) HandleDirectAccreditation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	offer, err := h.service.DirectAccreditation(ctx, q.Get("did"), q.Get("type"))
	if err != nil {
		h.writeError(ctx, w, "direct_accreditation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, offer)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if status := httputil.StatusFor(dErrors.CodeOf(err)); status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request failed",
			"request_id", requestcontext.RequestID(ctx),
			"operation", op,
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

func relay(w http.ResponseWriter, resp *upstream.Response) {
	if location := resp.Header.Get("Location"); location != "" {
		w.Header().Set("Location", location)
	}
	httputil.WriteRaw(w, resp.Status, resp.ContentType(), resp.Body)
}
