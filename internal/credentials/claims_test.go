package credentials_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcissuer/internal/credentials"
)

func encodeVC(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-only"))
	require.NoError(t, err)
	return token
}

func statusListVC(t *testing.T, id string, listID, index int) string {
	return encodeVC(t, jwt.MapClaims{
		"jti": id,
		"sub": "did:key:holder",
		"iat": time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Unix(),
		"vc": map[string]any{
			"id":   id,
			"type": []string{"VerifiableCredential", "VerifiableAttestation", "VerifiableId"},
			"credentialSubject": map[string]any{
				"id": "did:key:holder",
			},
			"credentialStatus": map[string]any{
				"id":                   "https://issuer.example/credentials/status/list/" + strconv.Itoa(listID) + "#" + strconv.Itoa(index),
				"type":                 "StatusList2021Entry",
				"statusPurpose":        "revocation",
				"statusListIndex":      strconv.Itoa(index),
				"statusListCredential": "https://issuer.example/credentials/status/list/" + strconv.Itoa(listID),
			},
		},
	})
}

func accreditationVC(t *testing.T, id, holder, attributeID string) string {
	return encodeVC(t, jwt.MapClaims{
		"jti": id,
		"vc": map[string]any{
			"id":   id,
			"type": []string{"VerifiableCredential", "VerifiableAttestation", "VerifiableAccreditationToAttest"},
			"credentialSubject": map[string]any{
				"id":                  holder,
				"reservedAttributeId": attributeID,
				"accreditedFor": []map[string]any{
					{"schemaId": "https://schemas.example/s", "types": []string{"VerifiableCredential", "X"}},
				},
			},
			"credentialStatus": map[string]any{
				"id":   "https://api.example/trusted-issuers-registry/v5/issuers/" + holder + "/attributes/0xabc123",
				"type": "EbsiAccreditationEntry",
			},
		},
	})
}

func TestParseJWT(t *testing.T) {
	t.Run("status list credential", func(t *testing.T) {
		claims, err := credentials.ParseJWT(statusListVC(t, "urn:uuid:1", 3, 42))
		require.NoError(t, err)
		assert.Equal(t, "urn:uuid:1", claims.ID)
		assert.Equal(t, "did:key:holder", claims.HolderDID())
		assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), claims.IssuedAt)

		revType, locator := claims.Revocation()
		assert.Equal(t, credentials.RevocationStatusList, revType)
		require.NotNil(t, locator)
		assert.Equal(t, int64(3), locator.ListID)
		require.NotNil(t, locator.Index)
		assert.Equal(t, 42, *locator.Index)
	})

	t.Run("accreditation credential", func(t *testing.T) {
		claims, err := credentials.ParseJWT(accreditationVC(t, "urn:uuid:2", "did:ebsi:me", "0xattr"))
		require.NoError(t, err)
		assert.Equal(t, "0xattr", claims.Subject.ReservedAttributeID)
		require.Len(t, claims.Subject.AccreditedFor, 1)
		assert.Equal(t, "https://schemas.example/s", claims.Subject.AccreditedFor[0].SchemaAddress())

		revType, locator := claims.Revocation()
		assert.Equal(t, credentials.RevocationLedgerEntry, revType)
		rev, ok := locator.RevisionID()
		assert.True(t, ok)
		assert.Equal(t, "0xabc123", rev)
	})

	t.Run("falls back to jti and sub", func(t *testing.T) {
		claims, err := credentials.ParseJWT(encodeVC(t, jwt.MapClaims{
			"jti": "urn:uuid:3",
			"sub": "did:key:sub",
			"vc":  map[string]any{"type": []string{"VerifiableCredential"}},
		}))
		require.NoError(t, err)
		assert.Equal(t, "urn:uuid:3", claims.ID)
		assert.Equal(t, "did:key:sub", claims.HolderDID())
		revType, locator := claims.Revocation()
		assert.Equal(t, credentials.RevocationNone, revType)
		assert.Nil(t, locator)
	})

	t.Run("numeric status list index", func(t *testing.T) {
		claims, err := credentials.ParseJWT(encodeVC(t, jwt.MapClaims{
			"vc": map[string]any{
				"id":   "urn:uuid:4",
				"type": []string{"VerifiableCredential"},
				"credentialStatus": map[string]any{
					"type":                 "StatusList2021Entry",
					"statusListIndex":      7,
					"statusListCredential": "https://issuer.example/credentials/status/list/1",
				},
			},
		}))
		require.NoError(t, err)
		_, locator := claims.Revocation()
		require.NotNil(t, locator)
		assert.Equal(t, 7, *locator.Index)
	})

	t.Run("missing id is malformed", func(t *testing.T) {
		_, err := credentials.ParseJWT(encodeVC(t, jwt.MapClaims{"vc": map[string]any{}}))
		assert.ErrorIs(t, err, credentials.ErrMalformedCredential)
	})

	t.Run("garbage is malformed", func(t *testing.T) {
		_, err := credentials.ParseJWT("not-a-jwt")
		assert.ErrorIs(t, err, credentials.ErrMalformedCredential)
	})
}

func TestRevisionID(t *testing.T) {
	l := &credentials.Locator{AccreditationID: "https://tir/issuers/did:ebsi:z/attributes/0xDEADbeef?x=1"}
	rev, ok := l.RevisionID()
	assert.True(t, ok)
	assert.Equal(t, "0xDEADbeef", rev)

	_, ok = (&credentials.Locator{AccreditationID: "no revision"}).RevisionID()
	assert.False(t, ok)

	var nilLocator *credentials.Locator
	_, ok = nilLocator.RevisionID()
	assert.False(t, ok)
}
