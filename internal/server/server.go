package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	beeperdesktopapi "github.com/beeper/desktop-api-go"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"go.mau.fi/util/exhttp"
	"go.mau.fi/util/requestlog"
	"maunium.net/go/mautrix"

	"github.com/batuhan/mxcomposer/internal/auth"
	"github.com/batuhan/mxcomposer/internal/config"
	errs "github.com/batuhan/mxcomposer/internal/errors"
	"github.com/batuhan/mxcomposer/internal/linkpreview"
	"github.com/batuhan/mxcomposer/internal/members"
	"github.com/batuhan/mxcomposer/internal/mention"
)

const appVersion = "0.1.0"

type Options struct {
	Config   config.Config
	Log      zerolog.Logger
	Matrix   *mautrix.Client
	Desktop  *beeperdesktopapi.Client
	Previews *linkpreview.Manager
}

type Server struct {
	cfg      config.Config
	log      zerolog.Logger
	matrix   *mautrix.Client
	members  *members.Resolver
	previews *linkpreview.Manager
	auth     *auth.Middleware
	mcp      *mcp.Server
}

type apiHandler func(http.ResponseWriter, *http.Request) error

func New(opts Options) *Server {
	s := &Server{
		cfg:      opts.Config,
		log:      opts.Log,
		matrix:   opts.Matrix,
		members:  &members.Resolver{Matrix: opts.Matrix, Desktop: opts.Desktop},
		previews: opts.Previews,
		auth:     auth.New(opts.Config.AccessToken, opts.Config.AllowQueryTokenAuth),
	}
	s.mcp = s.newMCPServer()
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /v1/info", s.wrap(s.info))
	mux.Handle("GET /.well-known/oauth-protected-resource", s.wrap(s.protectedResourceMetadata))

	s.handle(mux, "GET /v1/chats/{chatID}/members", s.listMembers, false)
	s.handle(mux, "GET /v1/chats/{chatID}/mentions", s.suggestMentions, false)
	s.handle(mux, "GET /v1/chats/{chatID}/composer", s.composer, true)

	s.handle(mux, "POST /v1/pills/insert", s.insertPill, false)
	s.handle(mux, "POST /v1/pills/render", s.renderPills, false)
	s.handle(mux, "POST /v1/pills/extract", s.extractPills, false)

	s.handle(mux, "GET /v1/users/search", s.searchUsers, false)
	s.handle(mux, "POST /v1/link-previews", s.linkPreviews, false)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
	mux.Handle("/mcp", s.auth.Wrap(mcpHandler, false, []string{auth.ScopeRead}))

	return exhttp.ApplyMiddleware(mux,
		hlog.NewHandler(s.log),
		requestlog.AccessLogger(requestlog.Options{TrustXForwardedFor: true, Recover: true}),
		exhttp.CORSMiddleware,
	)
}

func (s *Server) handle(mux *http.ServeMux, pattern string, handler apiHandler, allowQueryToken bool) {
	wrapped := s.wrap(handler)
	mux.Handle(pattern, s.auth.Wrap(wrapped, allowQueryToken, []string{auth.ScopeRead}))
}

func (s *Server) wrap(handler apiHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := handler(w, r); err != nil {
			errs.Write(w, err)
		}
	})
}

func writeJSON(w http.ResponseWriter, value any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(value)
}

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return errs.Validation(map[string]any{"error": err.Error()})
	}
	return nil
}

func readChatID(r *http.Request) (string, error) {
	chatID := strings.TrimSpace(r.PathValue("chatID"))
	if chatID == "" {
		return "", errs.Validation(map[string]any{"chatID": "chatID is required"})
	}
	return chatID, nil
}

func parseLimit(raw string, fallback, maxLimit int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.Validation(map[string]any{"limit": "must be an integer"})
	}
	if limit < 1 || limit > maxLimit {
		return 0, errs.Validation(map[string]any{"limit": fmt.Sprintf("must be between 1 and %d", maxLimit)})
	}
	return limit, nil
}

func (s *Server) selfID() string {
	if s.matrix == nil {
		return ""
	}
	return string(s.matrix.UserID)
}

func (s *Server) memberSource(chatID string) (mention.MemberSource, error) {
	source, err := s.members.Source(chatID)
	if errors.Is(err, members.ErrNoSource) {
		return nil, errs.Unavailable(fmt.Sprintf("No member source is configured for chat %s", chatID))
	} else if err != nil {
		return nil, err
	}
	return source, nil
}

func (s *Server) memberFetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.MemberFetchTimeout
	if timeout <= 0 {
		timeout = mention.DefaultFetchTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *Server) fetchMembers(ctx context.Context, chatID string) ([]mention.Member, error) {
	source, err := s.memberSource(chatID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.memberFetchContext(ctx)
	defer cancel()
	list, err := source.FetchMembers(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("chat_id", chatID).Msg("Failed to fetch members")
		if errors.Is(err, mautrix.MNotFound) {
			return nil, errs.NotFound("Chat not found")
		}
		return nil, errs.Upstream(err)
	}
	return list, nil
}
