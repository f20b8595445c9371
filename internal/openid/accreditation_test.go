package openid_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcissuer/internal/accreditation"
	accstore "vcissuer/internal/accreditation/store"
	"vcissuer/internal/catalog"
	catstore "vcissuer/internal/catalog/store"
	"vcissuer/internal/credentials"
	credstore "vcissuer/internal/credentials/store"
	"vcissuer/internal/nonce"
	noncestore "vcissuer/internal/nonce/store"
	"vcissuer/internal/openid"
	"vcissuer/internal/statuslist"
	slstore "vcissuer/internal/statuslist/store"
	txcontext "vcissuer/pkg/platform/tx"
)

const operatorDID = "did:ebsi:operator"

type recordingScheduler struct {
	mu      sync.Mutex
	did     []string
	trusted []string
}

func (r *recordingScheduler) ScheduleDIDOnboarding(_ context.Context, vc string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.did = append(r.did, vc)
	return nil
}

func (r *recordingScheduler) ScheduleTrustedEntity(_ context.Context, _, attributeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trusted = append(r.trusted, attributeID)
	return nil
}

type lateReloader struct{ cat *catalog.Catalog }

func (r *lateReloader) Reload(ctx context.Context) error {
	return r.cat.Reload(ctx)
}

func trustChainJWT(t *testing.T, id, attributeID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": operatorDID,
		"sub": operatorDID,
		"iat": 1700000000,
		"vc": map[string]any{
			"id":   id,
			"type": []string{"VerifiableCredential", "VerifiableAttestation", string(catalog.KindTrustChain)},
			"credentialSubject": map[string]any{
				"id":                  operatorDID,
				"reservedAttributeId": attributeID,
				"accreditedFor": []map[string]any{
					{"types": []string{"VerifiableDiploma"}, "schemaId": "https://schemas/diploma"},
				},
			},
			"credentialStatus": map[string]any{
				"id":   "https://api.ebsi/trusted-issuers-registry/v5/issuers/" + operatorDID + "/attributes/" + attributeID + "/revisions/0xabc",
				"type": "EbsiAccreditationEntry",
			},
		},
	}).SignedString([]byte("test-only"))
	require.NoError(t, err)
	return token
}

// A fresh deployment has no grants. Issuing the operator its trust-chain
// root must still reach the cascade and schedule the registration chains.
func TestTrustChainRootBootstrapsCascade(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tx := txcontext.NewLockRunner()

	scheduler := &recordingScheduler{}
	reloader := &lateReloader{}
	grants := accstore.NewInMemory()
	acc := accreditation.New(grants, tx,
		accreditation.Config{OperatorDID: operatorDID, BaseURL: baseURL},
		accreditation.WithLogger(logger),
		accreditation.WithScheduler(scheduler),
		accreditation.WithReloader(reloader),
	)
	cat := catalog.New(catstore.NewInMemory(), acc, catalog.WithLogger(logger))
	reloader.cat = cat
	require.NoError(t, cat.Reload(ctx))
	require.False(t, cat.Current().IsKnownType(string(catalog.KindOnboard)))

	signer := &fakeSigner{}
	creds := credstore.NewInMemory()
	recorder := credentials.New(creds, tx,
		credentials.WithLogger(logger),
		credentials.WithMaterializedHook(acc.OnMaterialized),
	)
	service := openid.New(openid.Config{BaseURL: baseURL},
		signer, cat, nonce.New(noncestore.NewInMemory()), statuslist.New(slstore.NewInMemory()), recorder,
		openid.WithLogger(logger),
	)

	vc := trustChainJWT(t, "urn:uuid:root-1", "0xattr-root")
	signer.response = signerJSON(http.StatusOK, `{"format":"jwt_vc","credential":"`+vc+`"}`)
	result, err := service.Credentials(ctx, "Bearer at", openid.CredentialRequest{
		Types: []string{"VerifiableCredential", "VerifiableAttestation", string(catalog.KindTrustChain)},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Credential)
	assert.Equal(t, credentials.RevocationLedgerEntry, result.Credential.RevocationType)

	require.Len(t, signer.issued, 1)
	assert.Equal(t, catalog.AttestationSchema, signer.issued[0].CredentialSchema)
	assert.Nil(t, signer.issued[0].CredentialStatus)

	stored, err := grants.ListGrants(ctx)
	require.NoError(t, err)
	kinds := map[catalog.AccreditationKind]int{}
	for _, g := range stored {
		kinds[g.Kind]++
		assert.Equal(t, "0xattr-root", g.AttributeID)
	}
	assert.Equal(t, map[catalog.AccreditationKind]int{
		catalog.KindAccredit: 1,
		catalog.KindAttest:   1,
		catalog.KindOnboard:  1,
	}, kinds)
	assert.Equal(t, []string{"0xattr-root"}, scheduler.trusted)
	assert.Equal(t, []string{vc}, scheduler.did)

	snap := cat.Current()
	assert.ElementsMatch(t,
		[]catalog.AccreditationKind{catalog.KindAccredit, catalog.KindAttest, catalog.KindOnboard},
		snap.GrantableKinds())

	// the deferred path delivering the same credential changes nothing
	signer.response = signerJSON(http.StatusOK, `{"credential":"`+vc+`"}`)
	_, err = service.DeferredCredentials(ctx, "Bearer tok")
	require.NoError(t, err)
	stored, err = grants.ListGrants(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
	assert.Len(t, scheduler.trusted, 1)
}
