package server

import (
	"net"
	"net/http"
	"runtime"
	"strings"

	mcpauth "github.com/modelcontextprotocol/go-sdk/auth"
	"github.com/modelcontextprotocol/go-sdk/oauthex"

	"github.com/batuhan/mxcomposer/internal/auth"
)

func (s *Server) requestBaseURL(r *http.Request) string {
	proto := strings.TrimSpace(strings.Split(r.Header.Get("X-Forwarded-Proto"), ",")[0])
	if proto == "" {
		if r.TLS != nil {
			proto = "https"
		} else {
			proto = "http"
		}
	}
	host := strings.TrimSpace(strings.Split(r.Header.Get("X-Forwarded-Host"), ",")[0])
	if host == "" {
		host = strings.TrimSpace(r.Host)
	}
	if host == "" {
		host = s.cfg.ListenAddr
	}
	return proto + "://" + host
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) error {
	baseURL := s.requestBaseURL(r)
	backends := s.members.Backends()
	serverStatus := "ready"
	if len(backends) == 0 {
		serverStatus = "not_ready"
	}
	listenHost, listenPort, splitErr := net.SplitHostPort(s.cfg.ListenAddr)
	if splitErr != nil {
		listenHost = s.cfg.ListenAddr
		listenPort = ""
	}
	if strings.TrimSpace(listenHost) == "" {
		listenHost = "localhost"
	}
	response := map[string]any{
		"app": map[string]any{
			"name":    "mxcomposer",
			"version": appVersion,
		},
		"platform": map[string]any{
			"os":      runtime.GOOS,
			"arch":    runtime.GOARCH,
			"release": runtime.Version(),
		},
		"server": map[string]any{
			"status":        serverStatus,
			"base_url":      baseURL,
			"port":          listenPort,
			"hostname":      listenHost,
			"mcp_enabled":   true,
			"link_previews": s.previews != nil,
		},
		"backends": backends,
		"endpoints": map[string]any{
			"mcp":      baseURL + "/mcp",
			"composer": baseURL + "/v1/chats/{chatID}/composer",
		},
	}
	return writeJSON(w, response)
}

func (s *Server) protectedResourceMetadata(w http.ResponseWriter, r *http.Request) error {
	baseURL := s.requestBaseURL(r)
	bearerMethods := []string{"header"}
	if s.cfg.AllowQueryTokenAuth {
		bearerMethods = append(bearerMethods, "query")
	}
	metadata := &oauthex.ProtectedResourceMetadata{
		Resource:                          baseURL + "/v1",
		AuthorizationServers:              []string{},
		BearerMethodsSupported:            bearerMethods,
		ScopesSupported:                   auth.AllScopes,
		ResourceName:                      "mxcomposer",
		ResourceSigningAlgValuesSupported: []string{},
	}
	mcpauth.ProtectedResourceMetadataHandler(metadata).ServeHTTP(w, r)
	return nil
}
