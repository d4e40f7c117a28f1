package app

import (
	"context"
	"fmt"
	"os"
	"time"

	beeperdesktopapi "github.com/beeper/desktop-api-go"
	"github.com/beeper/desktop-api-go/option"
	"github.com/rs/zerolog"
	"go.mau.fi/util/exzerolog"
	"maunium.net/go/mautrix"

	"github.com/batuhan/mxcomposer/internal/config"
	"github.com/batuhan/mxcomposer/internal/linkpreview"
	"github.com/batuhan/mxcomposer/internal/matrixruntime"
	"github.com/batuhan/mxcomposer/internal/members"
	"github.com/batuhan/mxcomposer/internal/server"
)

// App wires the configured backends together. Matrix and the Desktop API are
// optional, link previews are always available.
type App struct {
	Config   config.Config
	Log      zerolog.Logger
	Runtime  *matrixruntime.Runtime
	Desktop  *beeperdesktopapi.Client
	Store    *linkpreview.Store
	Previews *linkpreview.Manager
}

func NewLogger(level zerolog.Level) zerolog.Logger {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli}).
		With().Timestamp().Logger().
		Level(level)
	exzerolog.SetupDefaults(&log)
	return log
}

func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}
	if cfg.MatrixEnabled() {
		rt, err := matrixruntime.New(cfg, log)
		if err != nil {
			return nil, err
		}
		a.Runtime = rt
	}
	if cfg.DesktopEnabled() {
		opts := []option.RequestOption{option.WithAccessToken(cfg.DesktopAPIToken)}
		if cfg.DesktopAPIURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.DesktopAPIURL))
		}
		desktop := beeperdesktopapi.NewClient(opts...)
		a.Desktop = &desktop
	}

	store, err := linkpreview.OpenStore(ctx, cfg.PreviewDBPath(), log)
	if err != nil {
		return nil, err
	}
	a.Store = store
	previewCfg := linkpreview.DefaultConfig()
	previewCfg.CacheTTL = cfg.PreviewTTL
	previewCfg.FetchTimeout = cfg.PreviewFetchTimeout
	previewCfg.MaxURLs = cfg.PreviewMaxURLs
	previewCfg.CleanupSchedule = cfg.PreviewCleanup
	a.Previews = linkpreview.NewManager(previewCfg, nil, store, log)
	return a, nil
}

func (a *App) Matrix() *mautrix.Client {
	return a.Runtime.Client()
}

func (a *App) Members() *members.Resolver {
	return &members.Resolver{Matrix: a.Matrix(), Desktop: a.Desktop}
}

// Start verifies the Matrix session and schedules preview cache cleanup.
func (a *App) Start(ctx context.Context) error {
	if a.Runtime != nil {
		if err := a.Runtime.Start(ctx); err != nil {
			return err
		}
	}
	if err := a.Previews.Start(ctx); err != nil {
		return fmt.Errorf("failed to schedule preview cleanup: %w", err)
	}
	return nil
}

func (a *App) Server() *server.Server {
	return server.New(server.Options{
		Config:   a.Config,
		Log:      a.Log,
		Matrix:   a.Matrix(),
		Desktop:  a.Desktop,
		Previews: a.Previews,
	})
}

func (a *App) Stop() error {
	a.Previews.Stop()
	if a.Runtime != nil {
		a.Runtime.Stop()
	}
	return a.Store.Close()
}
