// Package openid drives the credential issuance protocol: authorization,
// token exchange, synchronous and deferred issuance, and the metadata and
// offers wallets need to start it.
package openid

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vcissuer/internal/accreditation"
	"vcissuer/internal/catalog"
	"vcissuer/internal/credentials"
	"vcissuer/internal/entitydata"
	"vcissuer/internal/nonce"
	"vcissuer/internal/openid/metrics"
	"vcissuer/internal/signer"
	"vcissuer/internal/statuslist"
	dErrors "vcissuer/pkg/domain-errors"
	"vcissuer/pkg/platform/sentinel"
	strutil "vcissuer/pkg/platform/strings"
	"vcissuer/pkg/platform/upstream"
	"vcissuer/pkg/requestcontext"
)

const signerService = "signer"

// Signer is the external signing and authorization service.
type Signer interface {
	Authorize(ctx context.Context, params url.Values) (*upstream.Response, error)
	DirectPost(ctx context.Context, form url.Values) (*upstream.Response, error)
	Token(ctx context.Context, form url.Values) (*upstream.Response, error)
	AuthorizationMetadata(ctx context.Context) (*upstream.Response, error)
	IssueCredential(ctx context.Context, bearer string, req signer.CredentialRequest) (*upstream.Response, error)
	DeferredCredential(ctx context.Context, bearer string) (*upstream.Response, error)
	StatusListCredential(ctx context.Context, req signer.StatusListRequest) (*upstream.Response, error)
}

// Catalog yields the current configuration snapshot.
type Catalog interface {
	Current() *catalog.Snapshot
}

// Nonces correlates authorization requests with their callbacks.
type Nonces interface {
	Issue(ctx context.Context, did string, state any) (*nonce.Record, error)
	Consume(ctx context.Context, nonce string) (*nonce.Record, error)
}

// StatusLists reserves revocation slots and renders lists.
type StatusLists interface {
	Allocate(ctx context.Context) (statuslist.Reservation, error)
	Render(ctx context.Context, listID int64) (string, error)
}

// Recorder persists issued credentials and runs the materialized hook.
type Recorder interface {
	Record(ctx context.Context, claims *credentials.Claims) (*credentials.IssuedCredential, error)
}

// EntityData is the backend holding subject data and deferred registrations.
type EntityData interface {
	ExternalData(ctx context.Context, vcType, userID, pin string) (*upstream.Response, error)
	RegisterDeferred(ctx context.Context, body json.RawMessage) (*upstream.Response, error)
	ExchangeDeferred(ctx context.Context, code string) (*upstream.Response, error)
}

// Accreditations issues accreditations directly to whitelisted entities.
type Accreditations interface {
	IssueDirect(ctx context.Context, did, credentialType string) (*accreditation.DirectOffer, error)
}

// KeySet publishes the issuer's public keys.
type KeySet interface {
	JWKS() (jwk.Set, error)
}

type Config struct {
	BaseURL               string
	VerifierID            string
	IncludeAccreditations bool
}

// Service is the protocol orchestrator. It holds no per-flow state; every
// correlation lives in the nonce store.
type Service struct {
	cfg            Config
	signer         Signer
	catalog        Catalog
	nonces         Nonces
	lists          StatusLists
	credentials    Recorder
	entity         EntityData
	accreditations Accreditations
	keys           KeySet
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithEntityData(e EntityData) Option {
	return func(s *Service) {
		s.entity = e
	}
}

func WithAccreditations(a Accreditations) Option {
	return func(s *Service) {
		s.accreditations = a
	}
}

func WithKeys(k KeySet) Option {
	return func(s *Service) {
		s.keys = k
	}
}

func New(cfg Config, sgn Signer, cat Catalog, nonces Nonces, lists StatusLists, recorder Recorder, opts ...Option) *Service {
	s := &Service{
		cfg:         cfg,
		signer:      sgn,
		catalog:     cat,
		nonces:      nonces,
		lists:       lists,
		credentials: recorder,
		logger:      slog.Default(),
		tracer:      otel.Tracer("vcissuer/openid"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "openid."+op, trace.WithAttributes(
		attribute.String("request_id", requestcontext.RequestID(ctx)),
	))
}

func (s *Service) finish(span trace.Span, op string, err error) {
	s.metrics.IncrementRequest(op, outcomeOf(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func outcomeOf(err error) string {
	var ue *upstream.Error
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ue):
		return "upstream_error"
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidRequest,
		dErrors.CodeUnauthorized, dErrors.CodeForbidden, dErrors.CodeNotFound:
		return "rejected"
	}
	return "error"
}

// Authorize validates an authorization request against the catalog, stores
// its state under a fresh nonce and forwards it to the authorization
// service. The upstream response is returned whatever its status.
func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest) (_ *upstream.Response, err error) {
	ctx, span := s.start(ctx, "authorize")
	defer func() { s.finish(span, "authorize", err) }()

	snap := s.catalog.Current()
	state := nonce.AuthorizationState{
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
		ClientState: req.State,
	}
	var responseType catalog.ResponseType

	if req.AuthorizationDetails != "" {
		types, err := requestedTypes(req.AuthorizationDetails)
		if err != nil {
			return nil, err
		}
		if !snap.Issuable(types) {
			return nil, dErrors.New(dErrors.CodeBadRequest, "Unsupported credentials for issuance process")
		}
		responseType = catalog.ResponseIDToken
		if flow, ok := snap.MatchFlow(types); ok && flow.ResponseType.Valid() {
			responseType = flow.ResponseType
			if responseType == catalog.ResponseVPToken {
				state.PresentationDefinitionID = flow.PresentationDefinitionID
			}
		}
		state.CredentialTypes = types
	} else {
		flow, ok := snap.VerifyFlow(req.Scope)
		if !ok {
			return nil, dErrors.New(dErrors.CodeBadRequest, "Unsupported scope for verification process")
		}
		def, ok := snap.PresentationDefinition(flow.PresentationDefinitionID)
		if !ok {
			return nil, dErrors.New(dErrors.CodeNotFound, "presentation definition not found")
		}
		responseType = flow.ResponseType
		if !responseType.Valid() {
			responseType = catalog.ResponseVPToken
		}
		state.PresentationDefinitionID = def.ID
	}
	state.ResponseType = string(responseType)

	record, err := s.nonces.Issue(ctx, req.ClientID, state)
	if err != nil {
		return nil, err
	}
	params := req.values()
	params.Set("state", record.Nonce)
	params.Set("requested_response_type", string(responseType))
	if state.PresentationDefinitionID != "" {
		params.Set("definition_id", state.PresentationDefinitionID)
	}
	span.SetAttributes(attribute.String("response_type", string(responseType)))

	resp, err := s.signer.Authorize(ctx, params)
	if err != nil {
		return nil, s.transportError(ctx, "authorize", err)
	}
	s.logger.InfoContext(ctx, "authorization request forwarded",
		"request_id", requestcontext.RequestID(ctx),
		"client_id", req.ClientID,
		"client_ip", requestcontext.ClientIP(ctx),
		"response_type", responseType,
		"upstream_status", resp.Status,
	)
	return resp, nil
}

// requestedTypes returns the union of types named by authorization_details.
func requestedTypes(raw string) ([]string, error) {
	var details []AuthorizationDetail
	if err := json.Unmarshal([]byte(raw), &details); err != nil {
		var single AuthorizationDetail
		if json.Unmarshal([]byte(raw), &single) != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "authorization_details is not valid JSON")
		}
		details = []AuthorizationDetail{single}
	}
	var types []string
	for _, d := range details {
		types = append(types, d.Types...)
	}
	types = strutil.DedupeAndTrim(types)
	if len(types) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "authorization_details names no credential types")
	}
	return types, nil
}

// DirectPost relays a wallet's id_token or vp_token response. A state
// parameter must redeem an unspent nonce; the client's own state is then
// handed back upstream so it reaches the redirect.
func (s *Service) DirectPost(ctx context.Context, req DirectPostRequest) (_ *upstream.Response, err error) {
	ctx, span := s.start(ctx, "direct_post")
	defer func() { s.finish(span, "direct_post", err) }()

	switch {
	case req.VPToken == "" && req.IDToken == "":
		return nil, dErrors.New(dErrors.CodeBadRequest, "Either vp_token or id_token must be present.")
	case req.VPToken != "" && req.IDToken != "":
		return nil, dErrors.New(dErrors.CodeBadRequest, "Both vp_token and id_token can't be present at the same time.")
	case req.VPToken != "" && req.PresentationSubmission == "":
		return nil, dErrors.New(dErrors.CodeBadRequest, "presentation_submission is required.")
	}

	form := url.Values{}
	if req.VPToken != "" {
		form.Set("vp_token", req.VPToken)
		form.Set("presentation_submission", req.PresentationSubmission)
		form.Set("verifier_id", s.cfg.VerifierID)
	} else {
		form.Set("id_token", req.IDToken)
	}

	if req.State != "" {
		record, err := s.nonces.Consume(ctx, req.State)
		if err != nil {
			return nil, err
		}
		var state nonce.AuthorizationState
		if err := nonce.DecodeState(record, &state); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode authorization state")
		}
		form.Set("state", req.State)
		if state.ClientState != "" {
			form.Set("state", state.ClientState)
		}
		if state.PresentationDefinitionID != "" {
			form.Set("definition_id", state.PresentationDefinitionID)
		}
	}

	resp, err := s.signer.DirectPost(ctx, form)
	if err != nil {
		return nil, s.transportError(ctx, "direct_post", err)
	}
	return resp, nil
}

// Token validates the grant and forwards the token request. A pre-authorized
// code minted by this gateway is redeemed first; codes it does not know are
// left for the authorization service to judge.
func (s *Service) Token(ctx context.Context, req TokenRequest) (_ *upstream.Response, err error) {
	ctx, span := s.start(ctx, "token")
	defer func() { s.finish(span, "token", err) }()

	switch req.GrantType {
	case "":
		return nil, dErrors.New(dErrors.CodeBadRequest, "grant_type is required")
	case GrantAuthorizationCode:
		if req.Code == "" {
			return nil, dErrors.New(dErrors.CodeBadRequest, "code is required")
		}
	case GrantPreAuthorizedCode:
		if req.PreAuthorizedCode == "" {
			return nil, dErrors.New(dErrors.CodeBadRequest, "pre-authorized_code is required")
		}
		if err := s.redeemPreAuthorized(ctx, req); err != nil {
			return nil, err
		}
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, "unsupported grant_type")
	}
	span.SetAttributes(attribute.String("grant_type", req.GrantType))

	resp, err := s.signer.Token(ctx, req.values())
	if err != nil {
		return nil, s.transportError(ctx, "token", err)
	}
	return resp, nil
}

func (s *Service) redeemPreAuthorized(ctx context.Context, req TokenRequest) error {
	record, err := s.nonces.Consume(ctx, req.PreAuthorizedCode)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var state nonce.PreAuthorizedState
	if err := nonce.DecodeState(record, &state); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode pre-authorized state")
	}
	if state.UserPin != "" && state.UserPin != req.UserPin {
		return dErrors.New(dErrors.CodeBadRequest, "invalid user_pin")
	}
	s.logger.InfoContext(ctx, "pre-authorized code redeemed",
		"request_id", requestcontext.RequestID(ctx),
		"client_ip", requestcontext.ClientIP(ctx),
		"user_agent", requestcontext.UserAgent(ctx),
		"credential_type", state.CredentialType,
		"did", state.HolderDID,
	)
	return nil
}

// Credentials issues a credential for the bearer. Flows revoked through a
// status list get their slot reserved before the signer is called.
func (s *Service) Credentials(ctx context.Context, bearer string, req CredentialRequest) (_ *IssueResult, err error) {
	ctx, span := s.start(ctx, "credentials")
	defer func() { s.finish(span, "credentials", err) }()

	if bearer == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "access token is required")
	}
	if len(req.Types) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "types is required")
	}
	snap := s.catalog.Current()
	for _, t := range req.Types {
		if reason, unavailable := snap.Unavailable(t); unavailable {
			return nil, dErrors.New(dErrors.CodeBadRequest, t+" cannot be issued: "+reason)
		}
	}
	if !snap.AllKnown(req.Types) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unsupported credential type")
	}
	flow, ok := snap.MatchFlow(req.Types)
	if !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, "no issuance flow matches the requested types")
	}
	span.SetAttributes(attribute.String("credential_type", flow.CredentialType))

	format := req.Format
	if format == "" {
		format = FormatJWTVC
	}
	signReq := signer.CredentialRequest{
		Types:            req.Types,
		Format:           format,
		Proof:            req.Proof,
		CredentialSchema: flow.SchemaAddress,
		ExpiresIn:        int64(flow.ExpirySeconds),
		TermsOfUse:       flow.TermsOfUseID,
	}
	var reserved *statuslist.Reservation
	if flow.Revocation == catalog.RevocationStatusList {
		reservation, err := s.lists.Allocate(ctx)
		if err != nil {
			return nil, err
		}
		reserved = &reservation
		s.metrics.IncrementReservations()
		signReq.CredentialStatus = reservation.Entry(s.cfg.BaseURL)
		s.logger.InfoContext(ctx, "status list slot reserved",
			"request_id", requestcontext.RequestID(ctx),
			"credential_type", flow.CredentialType,
			"list_id", reservation.ListID,
			"index", reservation.Index,
		)
	}

	resp, err := s.signer.IssueCredential(ctx, bearer, signReq)
	if err != nil {
		return nil, s.transportError(ctx, "credentials", err)
	}
	result, err := s.materialize(ctx, "credentials", resp)
	if err != nil {
		return nil, err
	}
	if reserved != nil && result.Credential != nil {
		s.checkReservationCarried(ctx, *reserved, result.Credential)
	}
	return result, nil
}

// checkReservationCarried flags a reserved slot the signed credential does
// not point at. The bit stays allocated but nothing can ever revoke it.
func (s *Service) checkReservationCarried(ctx context.Context, reserved statuslist.Reservation, cred *credentials.IssuedCredential) {
	l := cred.Locator
	if cred.RevocationType == credentials.RevocationStatusList && l != nil && l.Index != nil &&
		l.ListID == reserved.ListID && *l.Index == reserved.Index {
		return
	}
	s.metrics.IncrementOrphanedReservation()
	s.logger.ErrorContext(ctx, "issued credential does not carry its reserved status list slot",
		"request_id", requestcontext.RequestID(ctx),
		"credential_id", cred.ID,
		"list_id", reserved.ListID,
		"index", reserved.Index,
		"revocation_type", cred.RevocationType,
	)
}

// DeferredCredentials exchanges an acceptance token for its credential.
func (s *Service) DeferredCredentials(ctx context.Context, bearer string) (_ *IssueResult, err error) {
	ctx, span := s.start(ctx, "deferred_credentials")
	defer func() { s.finish(span, "deferred_credentials", err) }()

	if bearer == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "acceptance token is required")
	}
	resp, err := s.signer.DeferredCredential(ctx, bearer)
	if err != nil {
		return nil, s.transportError(ctx, "deferred_credentials", err)
	}
	return s.materialize(ctx, "deferred_credentials", resp)
}

// materialize records the credential carried by a signer response. Deferred
// responses are passed through untouched.
func (s *Service) materialize(ctx context.Context, op string, resp *upstream.Response) (*IssueResult, error) {
	if resp.Status < http.StatusOK || resp.Status >= http.StatusMultipleChoices {
		s.metrics.IncrementUpstreamReject(op, strconv.Itoa(resp.Status))
		return nil, resp.AsError(signerService)
	}
	var body credentialResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadGateway, "signer returned an unreadable credential response")
	}
	result := &IssueResult{Response: resp}
	if body.Credential == "" {
		if body.AcceptanceToken == "" {
			return nil, dErrors.New(dErrors.CodeBadGateway, "signer response carries neither a credential nor an acceptance token")
		}
		result.Deferred = true
		s.metrics.IncrementIssued(true)
		s.logger.InfoContext(ctx, "credential issuance deferred",
			"request_id", requestcontext.RequestID(ctx),
		)
		return result, nil
	}

	claims, err := credentials.ParseJWT(body.Credential)
	if err != nil {
		s.logger.ErrorContext(ctx, "signer returned a malformed credential",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeBadGateway, "signer returned a malformed credential")
	}
	cred, err := s.credentials.Record(ctx, claims)
	if err != nil {
		return nil, err
	}
	result.Credential = cred
	s.metrics.IncrementIssued(false)
	return result, nil
}

// ExternalData fetches subject data from the entity data backend.
func (s *Service) ExternalData(ctx context.Context, vcType, userID, pin string) (_ *upstream.Response, err error) {
	ctx, span := s.start(ctx, "external_data")
	defer func() { s.finish(span, "external_data", err) }()

	if vcType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "vc_type is required")
	}
	if s.entity == nil {
		return nil, errEntityDataDisabled
	}
	resp, err := s.entity.ExternalData(ctx, vcType, userID, pin)
	if err != nil {
		return nil, entityError(err)
	}
	return resp, nil
}

// RegisterDeferred registers a deferred issuance with the entity data
// backend.
func (s *Service) RegisterDeferred(ctx context.Context, body json.RawMessage) (_ *upstream.Response, err error) {
	ctx, span := s.start(ctx, "register_deferred")
	defer func() { s.finish(span, "register_deferred", err) }()

	if len(body) == 0 || !json.Valid(body) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid json payload")
	}
	if s.entity == nil {
		return nil, errEntityDataDisabled
	}
	resp, err := s.entity.RegisterDeferred(ctx, body)
	if err != nil {
		return nil, entityError(err)
	}
	return resp, nil
}

// ExchangeDeferred redeems a deferred registration code.
func (s *Service) ExchangeDeferred(ctx context.Context, code string) (_ *upstream.Response, err error) {
	ctx, span := s.start(ctx, "exchange_deferred")
	defer func() { s.finish(span, "exchange_deferred", err) }()

	if code == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "code is required")
	}
	if s.entity == nil {
		return nil, errEntityDataDisabled
	}
	resp, err := s.entity.ExchangeDeferred(ctx, code)
	if err != nil {
		return nil, entityError(err)
	}
	return resp, nil
}

var errEntityDataDisabled = dErrors.New(dErrors.CodeUnavailable, "entity data backend is not configured")

func entityError(err error) error {
	if errors.Is(err, entitydata.ErrNotConfigured) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "entity data backend is not configured")
	}
	return dErrors.Wrap(err, dErrors.CodeBadGateway, "entity data backend unavailable")
}

// IssuerMetadata renders the credential issuer metadata from the catalog.
func (s *Service) IssuerMetadata(ctx context.Context) (*IssuerMetadata, error) {
	supported := s.catalog.Current().CredentialsSupported(s.cfg.IncludeAccreditations)
	entries := make([]supportedForWallet, len(supported))
	for i, c := range supported {
		entries[i] = supportedForWallet{
			Format:  c.Format,
			Types:   c.Types,
			Display: []display{{Name: c.Types[len(c.Types)-1], Locale: "en-GB"}},
		}
	}
	return &IssuerMetadata{
		CredentialIssuer:           s.cfg.BaseURL,
		AuthorizationServer:        s.cfg.BaseURL,
		CredentialEndpoint:         s.cfg.BaseURL + "/credentials",
		DeferredCredentialEndpoint: s.cfg.BaseURL + "/credential_deferred",
		CredentialsSupported:       entries,
	}, nil
}

// AuthorizationMetadata relays the authorization server metadata with the
// verifier scopes appended to scopes_supported.
func (s *Service) AuthorizationMetadata(ctx context.Context) (_ map[string]any, err error) {
	ctx, span := s.start(ctx, "authorization_metadata")
	defer func() { s.finish(span, "authorization_metadata", err) }()

	resp, err := s.signer.AuthorizationMetadata(ctx)
	if err != nil {
		return nil, s.transportError(ctx, "authorization_metadata", err)
	}
	if resp.Status != http.StatusOK {
		return nil, resp.AsError(signerService)
	}
	var meta map[string]any
	if err := json.Unmarshal(resp.Body, &meta); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadGateway, "authorization metadata is not valid JSON")
	}
	scopes, _ := meta["scopes_supported"].([]any)
	for _, scope := range s.catalog.Current().VerifierScopes() {
		if !slices.Contains(scopes, any(scope)) {
			scopes = append(scopes, scope)
		}
	}
	if scopes == nil {
		scopes = []any{}
	}
	meta["scopes_supported"] = scopes
	return meta, nil
}

// JWKS returns the issuer's public key set.
func (s *Service) JWKS(ctx context.Context) (jwk.Set, error) {
	if s.keys == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "issuer keys are not configured")
	}
	set, err := s.keys.JWKS()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build jwks")
	}
	return set, nil
}

// StatusListCredential wraps a rendered status list in a credential signed
// by the signer.
func (s *Service) StatusListCredential(ctx context.Context, listID int64) (_ *upstream.Response, err error) {
	ctx, span := s.start(ctx, "status_list_credential")
	defer func() { s.finish(span, "status_list_credential", err) }()

	encoded, err := s.lists.Render(ctx, listID)
	if err != nil {
		return nil, err
	}
	resp, err := s.signer.StatusListCredential(ctx, signer.StatusListRequest{
		ID:          statuslist.ListURL(s.cfg.BaseURL, listID) + "/credential",
		EncodedList: encoded,
		Purpose:     statuslist.PurposeRevoke,
	})
	if err != nil {
		return nil, s.transportError(ctx, "status_list_credential", err)
	}
	if resp.Status < http.StatusOK || resp.Status >= http.StatusMultipleChoices {
		return nil, resp.AsError(signerService)
	}
	return resp, nil
}

// CredentialOffer builds an offer for configured credential types.
func (s *Service) CredentialOffer(ctx context.Context, req OfferRequest) (*Offer, error) {
	if len(req.Types) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "types is required")
	}
	snap := s.catalog.Current()
	offered := catalog.WithoutReserved(req.Types)
	for _, t := range offered {
		if _, ok := snap.IssuanceFlow(t); !ok {
			return nil, dErrors.New(dErrors.CodeBadRequest, "unsupported credential type "+t)
		}
	}
	if len(offered) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "types names no issuable credential")
	}
	return s.buildOffer(offered, req.PreAuthorizedCode, req.UserPinRequired)
}

// DirectAccreditation issues a pre-authorized accreditation offer to a
// whitelisted entity.
func (s *Service) DirectAccreditation(ctx context.Context, did, credentialType string) (_ *Offer, err error) {
	ctx, span := s.start(ctx, "direct_accreditation")
	defer func() { s.finish(span, "direct_accreditation", err) }()

	if s.accreditations == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "direct accreditation is not enabled")
	}
	direct, err := s.accreditations.IssueDirect(ctx, did, credentialType)
	if err != nil {
		return nil, err
	}
	return s.buildOffer([]string{string(direct.Kind)}, direct.PreAuthorizedCode, false)
}

func (s *Service) buildOffer(types []string, preAuthorizedCode string, pinRequired bool) (*Offer, error) {
	offer := CredentialOffer{CredentialIssuer: s.cfg.BaseURL}
	for _, t := range types {
		offer.Credentials = append(offer.Credentials, OfferedCredential{
			Format: FormatJWTVC,
			Types:  []string{catalog.TypeVerifiableCredential, catalog.TypeVerifiableAttestation, t},
		})
	}
	if preAuthorizedCode != "" {
		offer.Grants = map[string]any{GrantPreAuthorizedCode: preAuthorizedGrant{
			PreAuthorizedCode: preAuthorizedCode,
			UserPinRequired:   pinRequired,
		}}
	} else {
		offer.Grants = map[string]any{GrantAuthorizationCode: authorizationCodeGrant{
			IssuerState: uuid.NewString(),
		}}
	}
	raw, err := json.Marshal(offer)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode credential offer")
	}
	return &Offer{
		Offer: offer,
		URI:   OfferScheme + "?credential_offer=" + url.QueryEscape(string(raw)),
	}, nil
}

// transportError reports a failure to reach the signer. It is not retried.
func (s *Service) transportError(ctx context.Context, op string, err error) error {
	s.logger.ErrorContext(ctx, "signer request failed",
		"request_id", requestcontext.RequestID(ctx),
		"operation", op,
		"error", err,
	)
	return dErrors.Wrap(err, dErrors.CodeBadGateway, "signer unavailable")
}
