package admin

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/optiview/adminrelay/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.PlatformURL = srv.URL
	cfg.APIToken = "test-token"

	c, err := NewClient(cfg, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}), zerolog.Nop())
	require.NoError(t, err)
	return c, srv
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": message, "status": http.StatusText(status)},
	})
}

func TestCreateSendsAuthenticatedPost(t *testing.T) {
	var gotAuth, gotAccept string
	var gotBody map[string]any

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/properties/123/audiences", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept-Encoding")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(Resource{Name: "properties/123/audiences/9", DisplayName: "A"})
	}))

	res, err := c.Create(context.Background(), "properties/123/audiences", map[string]any{"displayName": "A"})
	require.NoError(t, err)
	assert.Equal(t, "properties/123/audiences/9", res.Name)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "gzip", gotAccept)
	assert.Equal(t, "A", gotBody["displayName"])
}

func TestUpdateSendsPatchWithUpdateMask(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/properties/123/audiences/9", r.URL.Path)
		assert.Equal(t, "displayName,description", r.URL.Query().Get("updateMask"))
		_ = json.NewEncoder(w).Encode(Resource{Name: "properties/123/audiences/9", DisplayName: "B"})
	}))

	res, err := c.Update(context.Background(), "properties/123/audiences/9",
		map[string]any{"displayName": "B"}, []string{"displayName", "description"})
	require.NoError(t, err)
	assert.Equal(t, "B", res.DisplayName)
}

func TestDeleteSendsDelete(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/properties/123/audiences/9", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))

	assert.NoError(t, c.Delete(context.Background(), "properties/123/audiences/9"))
}

func TestCreateClassifiesRemoteErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    Class
	}{
		{"missing parent", http.StatusNotFound, "parent property not found", ClassNotFound},
		{"plan ceiling", http.StatusForbidden, "audience limit reached", ClassFeatureLimit},
		{"no access", http.StatusForbidden, "caller lacks edit access", ClassPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, tt.status, tt.message)
			}))

			_, err := c.Create(context.Background(), "properties/123/audiences", map[string]any{})
			require.Error(t, err)
			var re *RemoteError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.want, re.Class)
			assert.Equal(t, tt.message, re.Message)
		})
	}
}

func TestRateLimitedNotRetriedAtTransportLevel(t *testing.T) {
	var hits atomic.Int64
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeError(w, http.StatusTooManyRequests, "quota exhausted, retry later")
	}))

	_, err := c.Create(context.Background(), "properties/123/audiences", map[string]any{})
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.Equal(t, int64(1), hits.Load(), "429 belongs to the wave controller, not the transport")
}

func TestGzipResponseUnwrapped(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_ = json.NewEncoder(gz).Encode(Resource{Name: "accounts/5", DisplayName: "Org"})
		_ = gz.Close()
	}))

	res, err := c.Create(context.Background(), "accounts", map[string]any{"displayName": "Org"})
	require.NoError(t, err)
	assert.Equal(t, "accounts/5", res.Name)
}

func TestErrorBodyFallsBackToRawText(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("plain text not-found page"))
	}))

	err := c.Delete(context.Background(), "accounts/404")
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ClassNotFound, re.Class)
	assert.Equal(t, "plain text not-found page", re.Message)
}
