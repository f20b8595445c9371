package entitydata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Credentials configures how requests to the backend authenticate: a plain
// API key, or OAuth2 client credentials whose token is sent as a bearer.
type Credentials struct {
	APIKey       string `json:"api_key"`
	AuthHeader   string `json:"auth_header"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TokenURL     string `json:"token_url"`
}

// ParseCredentials accepts either a bare API key or a JSON object.
func ParseCredentials(raw string) Credentials {
	raw = strings.TrimSpace(raw)
	creds := Credentials{APIKey: raw}
	if strings.HasPrefix(raw, "{") {
		var parsed Credentials
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			creds = parsed
		}
	}
	if creds.AuthHeader == "" {
		creds.AuthHeader = "Authorization"
	}
	return creds
}

func (c Credentials) hasAPIKey() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

func (c Credentials) hasOAuth2() bool {
	return strings.TrimSpace(c.ClientID) != "" &&
		strings.TrimSpace(c.ClientSecret) != "" &&
		strings.TrimSpace(c.TokenURL) != ""
}

// authorizer sets the authentication header on outgoing requests.
type authorizer struct {
	header string
	apiKey string
	tokens oauth2.TokenSource
}

func newAuthorizer(creds Credentials, httpClient *http.Client) *authorizer {
	a := &authorizer{header: creds.AuthHeader}
	switch {
	case creds.hasAPIKey():
		a.apiKey = creds.APIKey
	case creds.hasOAuth2():
		cc := &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     creds.TokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		a.tokens = cc.TokenSource(ctx)
	}
	return a
}

func (a *authorizer) apply(req *http.Request) error {
	switch {
	case a.apiKey != "":
		req.Header.Set(a.header, a.apiKey)
	case a.tokens != nil:
		token, err := a.tokens.Token()
		if err != nil {
			return fmt.Errorf("entity data token: %w", err)
		}
		req.Header.Set(a.header, "Bearer "+token.AccessToken)
	}
	return nil
}
