package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	mcpauth "github.com/modelcontextprotocol/go-sdk/auth"
	"github.com/stretchr/testify/assert"
)

func newProtected(allowQuery bool, scopes []string) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := mcpauth.TokenInfoFromContext(r.Context())
		if info == nil {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(info.UserID))
	})
	return New("secret", allowQuery).Wrap(next, true, scopes)
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name       string
		allowQuery bool
		scopes     []string
		prepare    func(r *http.Request)
		status     int
	}{
		{"missing token", false, nil, func(r *http.Request) {}, http.StatusUnauthorized},
		{"bearer", false, nil, func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret") }, http.StatusOK},
		{"wrong bearer", false, nil, func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"custom header", false, nil, func(r *http.Request) { r.Header.Set(HeaderName, "secret") }, http.StatusOK},
		{"query token disabled", false, nil, func(r *http.Request) { r.URL.RawQuery = QueryTokenParam + "=secret" }, http.StatusUnauthorized},
		{"query token enabled", true, nil, func(r *http.Request) { r.URL.RawQuery = QueryTokenParam + "=secret" }, http.StatusOK},
		{"scopes", false, AllScopes, func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret") }, http.StatusOK},
		{"unknown scope", false, []string{"admin"}, func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret") }, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/chats/x/members", nil)
			tt.prepare(req)
			rec := httptest.NewRecorder()
			newProtected(tt.allowQuery, tt.scopes).ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "mxcomposer", rec.Body.String())
			}
		})
	}
}

func TestEmptyTokenRejectsEverything(t *testing.T) {
	handler := New("", false).Wrap(http.NotFoundHandler(), false, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedResourceMetadataURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Host = "localhost:23380"
	assert.Equal(t, "http://localhost:23380/.well-known/oauth-protected-resource", ProtectedResourceMetadataURL(req))

	req.Header.Set("X-Forwarded-Proto", "https, http")
	req.Header.Set("X-Forwarded-Host", "composer.example.org")
	assert.Equal(t, "https://composer.example.org/.well-known/oauth-protected-resource", ProtectedResourceMetadataURL(req))
}
