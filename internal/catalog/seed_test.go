package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSeed = `
presentation_definitions:
  - id: pd-id
    scope: openid verify-id
    content:
      id: pd-id
      input_descriptors:
        - id: id-credential
issuance_flows:
  - credential_type: VerifiableId
    scope: openid
    response_type: vp_token
    schema_address: https://schemas.example/id
    presentation_definition_id: pd-id
    revocation: bitstring-status-list
    expiry_seconds: 31536000
  - credential_type: VerifiableDiploma
    scope: openid
    response_type: id_token
    deferred: true
    schema_address: https://schemas.example/diploma
verify_flows:
  - scope: openid verify-id
    response_type: vp_token
    presentation_definition_id: pd-id
`

func TestParseSeed(t *testing.T) {
	seed, err := ParseSeed(strings.NewReader(validSeed))
	require.NoError(t, err)

	require.Len(t, seed.IssuanceFlows, 2)
	assert.Equal(t, RevocationStatusList, seed.IssuanceFlows[0].Revocation)
	assert.Equal(t, RevocationNone, seed.IssuanceFlows[1].Revocation, "revocation defaults to none")
	assert.True(t, seed.IssuanceFlows[1].Deferred)
	require.Len(t, seed.PresentationDefinitions, 1)
	assert.JSONEq(t, `{"id":"pd-id","input_descriptors":[{"id":"id-credential"}]}`, string(seed.PresentationDefinitions[0].Content))
}

func TestParseSeedRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "duplicate credential type",
			yaml: `
issuance_flows:
  - {credential_type: A, response_type: id_token}
  - {credential_type: A, response_type: vp_token}
`,
			want: "duplicate issuance flow",
		},
		{
			name: "ledger revocation is not configurable",
			yaml: `
issuance_flows:
  - {credential_type: A, response_type: id_token, revocation: ledger-accreditation-entry}
`,
			want: "not configurable",
		},
		{
			name: "accreditation kinds are reserved",
			yaml: `
issuance_flows:
  - {credential_type: VerifiableAccreditationToAttest, response_type: id_token}
`,
			want: "reserved",
		},
		{
			name: "unknown presentation definition",
			yaml: `
verify_flows:
  - {scope: s, response_type: vp_token, presentation_definition_id: missing}
`,
			want: "unknown presentation definition",
		},
		{
			name: "bad response type",
			yaml: `
issuance_flows:
  - {credential_type: A, response_type: code}
`,
			want: "invalid response_type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSeed(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseSeedEmpty(t *testing.T) {
	seed, err := ParseSeed(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, seed.IssuanceFlows)
}
