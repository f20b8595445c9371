package issuerkey

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 7638 section 3.1 example key with a private component added.
const testKey = `{
	"kty":"EC",
	"crv":"P-256",
	"x":"f83OJ3D2xF1Bg8vub9tLe1gHMzV76e8Tus9uPHvRVEU",
	"y":"x_FEzRu9m36HLN_tue659LNpXW6pCyStikYjKIWI5a0",
	"d":"jpsQnnGQmL-YBIffH1136cLV_fQm9ePsvcpF0wiNRlM"
}`

func TestParse(t *testing.T) {
	keys, err := Parse([]byte(testKey))
	require.NoError(t, err)
	assert.NotEmpty(t, keys.KeyID())

	var public map[string]any
	require.NoError(t, json.Unmarshal(keys.PublicJSON(), &public))
	assert.Equal(t, "EC", public["kty"])
	assert.Equal(t, "P-256", public["crv"])
	assert.Equal(t, "ES256", public["alg"])
	assert.Equal(t, keys.KeyID(), public["kid"])
	assert.NotContains(t, public, "d")

	var private map[string]any
	require.NoError(t, json.Unmarshal(keys.PrivateJSON(), &private))
	assert.Contains(t, private, "d")
}

func TestParseKeepsExplicitKid(t *testing.T) {
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(testKey), &raw))
	raw["kid"] = "issuer-key-1"
	b, err := json.Marshal(raw)
	require.NoError(t, err)

	keys, err := Parse(b)
	require.NoError(t, err)
	assert.Equal(t, "issuer-key-1", keys.KeyID())
}

func TestParseRejectsPublicKey(t *testing.T) {
	_, err := Parse([]byte(`{"kty":"EC","crv":"P-256","x":"f83OJ3D2xF1Bg8vub9tLe1gHMzV76e8Tus9uPHvRVEU","y":"x_FEzRu9m36HLN_tue659LNpXW6pCyStikYjKIWI5a0"}`))
	assert.Error(t, err)

	_, err = Parse(nil)
	assert.Error(t, err)
}

func TestJWKS(t *testing.T) {
	keys, err := Generate()
	require.NoError(t, err)
	set, err := keys.JWKS()
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())

	b, err := json.Marshal(set)
	require.NoError(t, err)
	var decoded struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Len(t, decoded.Keys, 1)
	assert.Equal(t, keys.KeyID(), decoded.Keys[0]["kid"])
}
