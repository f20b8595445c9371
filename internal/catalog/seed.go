package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the file representation of operator configuration.
type Seed struct {
	IssuanceFlows           []IssuanceFlow
	VerifyFlows             []VerifyFlow
	PresentationDefinitions []PresentationDefinition
}

type seedFile struct {
	IssuanceFlows           []IssuanceFlow `yaml:"issuance_flows"`
	VerifyFlows             []VerifyFlow   `yaml:"verify_flows"`
	PresentationDefinitions []struct {
		ID      string         `yaml:"id"`
		Scope   string         `yaml:"scope"`
		Content map[string]any `yaml:"content"`
	} `yaml:"presentation_definitions"`
}

// LoadSeedFile reads and validates a YAML catalog seed.
func LoadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog seed: %w", err)
	}
	defer f.Close()
	return ParseSeed(f)
}

// ParseSeed decodes and validates a YAML catalog seed.
func ParseSeed(r io.Reader) (*Seed, error) {
	var raw seedFile
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode catalog seed: %w", err)
	}

	seed := &Seed{
		IssuanceFlows: raw.IssuanceFlows,
		VerifyFlows:   raw.VerifyFlows,
	}
	for _, d := range raw.PresentationDefinitions {
		content, err := json.Marshal(d.Content)
		if err != nil {
			return nil, fmt.Errorf("presentation definition %q: %w", d.ID, err)
		}
		seed.PresentationDefinitions = append(seed.PresentationDefinitions, PresentationDefinition{
			ID:      d.ID,
			Scope:   d.Scope,
			Content: content,
		})
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return seed, nil
}

// Validate enforces the uniqueness and reference rules of the catalog.
func (s *Seed) Validate() error {
	defs := make(map[string]bool, len(s.PresentationDefinitions))
	scopes := make(map[string]bool, len(s.PresentationDefinitions))
	for _, d := range s.PresentationDefinitions {
		if d.ID == "" || d.Scope == "" {
			return errors.New("presentation definition requires id and scope")
		}
		if defs[d.ID] {
			return fmt.Errorf("duplicate presentation definition %q", d.ID)
		}
		if scopes[d.Scope] {
			return fmt.Errorf("duplicate presentation definition scope %q", d.Scope)
		}
		defs[d.ID] = true
		scopes[d.Scope] = true
	}

	types := make(map[string]bool, len(s.IssuanceFlows))
	for i := range s.IssuanceFlows {
		f := &s.IssuanceFlows[i]
		if f.CredentialType == "" {
			return errors.New("issuance flow requires credential_type")
		}
		if types[f.CredentialType] {
			return fmt.Errorf("duplicate issuance flow for credential type %q", f.CredentialType)
		}
		types[f.CredentialType] = true
		if _, isKind := ParseAccreditationKind(f.CredentialType); isKind {
			return fmt.Errorf("credential type %q is reserved for accreditations", f.CredentialType)
		}
		if !f.ResponseType.Valid() {
			return fmt.Errorf("issuance flow %q: invalid response_type %q", f.CredentialType, f.ResponseType)
		}
		if f.Revocation == "" {
			f.Revocation = RevocationNone
		}
		if !f.Revocation.Configurable() {
			return fmt.Errorf("issuance flow %q: revocation %q is not configurable", f.CredentialType, f.Revocation)
		}
		if f.PresentationDefinitionID != "" && !defs[f.PresentationDefinitionID] {
			return fmt.Errorf("issuance flow %q: unknown presentation definition %q", f.CredentialType, f.PresentationDefinitionID)
		}
		if f.ExpirySeconds < 0 {
			return fmt.Errorf("issuance flow %q: expiry_seconds must not be negative", f.CredentialType)
		}
	}

	for _, v := range s.VerifyFlows {
		if v.Scope == "" {
			return errors.New("verify flow requires scope")
		}
		if !v.ResponseType.Valid() {
			return fmt.Errorf("verify flow %q: invalid response_type %q", v.Scope, v.ResponseType)
		}
		if v.PresentationDefinitionID != "" && !defs[v.PresentationDefinitionID] {
			return fmt.Errorf("verify flow %q: unknown presentation definition %q", v.Scope, v.PresentationDefinitionID)
		}
	}
	return nil
}
