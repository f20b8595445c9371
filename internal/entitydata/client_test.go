package entitydata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcissuer/internal/platform/config"
	"vcissuer/pkg/platform/sentinel"
)

func TestParseCredentials(t *testing.T) {
	t.Run("bare api key", func(t *testing.T) {
		creds := ParseCredentials("  secret-key ")
		assert.Equal(t, "secret-key", creds.APIKey)
		assert.Equal(t, "Authorization", creds.AuthHeader)
	})

	t.Run("json with custom header", func(t *testing.T) {
		creds := ParseCredentials(`{"api_key":"k","auth_header":"X-API-Key"}`)
		assert.Equal(t, "k", creds.APIKey)
		assert.Equal(t, "X-API-Key", creds.AuthHeader)
	})

	t.Run("json oauth2", func(t *testing.T) {
		creds := ParseCredentials(`{"client_id":"id","client_secret":"s","token_url":"https://idp/token"}`)
		assert.True(t, creds.hasOAuth2())
		assert.False(t, creds.hasAPIKey())
	})
}

func TestModes(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled without url or mock", func(t *testing.T) {
		c := New(config.EntityDataConfig{})
		assert.Equal(t, ModeDisabled, c.Mode())
		_, err := c.ExternalData(ctx, "VerifiableId", "u", "")
		assert.ErrorIs(t, err, ErrNotConfigured)
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("mock returns canned data", func(t *testing.T) {
		c := New(config.EntityDataConfig{Mock: true})
		assert.Equal(t, ModeMock, c.Mode())
		resp, err := c.ExchangeDeferred(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.Status)
		assert.JSONEq(t, `{"acceptance_token":"abc"}`, string(resp.Body))
	})

	t.Run("url wins over mock", func(t *testing.T) {
		c := New(config.EntityDataConfig{URL: "http://backend", Mock: true})
		assert.Equal(t, ModeRemote, c.Mode())
	})
}

func TestRemoteWithAPIKey(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := New(config.EntityDataConfig{URL: srv.URL, Auth: "k-123"})
	resp, err := c.ExternalData(context.Background(), "VerifiableId", "user-1", "1234")
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.Status)
	assert.Equal(t, "k-123", gotAuth)
	assert.Equal(t, "/credentials/external-data", gotPath)
	assert.Contains(t, gotQuery, "vc_type=VerifiableId")
	assert.Contains(t, gotQuery, "pin=1234")

	_, err = c.RegisterDeferred(context.Background(), json.RawMessage(`{"vc_type":"X"}`))
	require.NoError(t, err)
	assert.Equal(t, "/deferred/registry", gotPath)
}

func TestRemoteWithClientCredentials(t *testing.T) {
	var tokenCalls atomic.Int32
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			tokenCalls.Add(1)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
			assert.Equal(t, "cid", r.PostForm.Get("client_id"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	c := New(config.EntityDataConfig{
		URL:  srv.URL,
		Auth: `{"client_id":"cid","client_secret":"sec","token_url":"` + srv.URL + `/token"}`,
	})
	for i := 0; i < 2; i++ {
		_, err := c.ExchangeDeferred(context.Background(), "code")
		require.NoError(t, err)
	}
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, int32(1), tokenCalls.Load())
}
