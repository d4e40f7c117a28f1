package matrixruntime

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"

	"github.com/batuhan/mxcomposer/internal/config"
)

var ErrNotConfigured = errors.New("matrix is not configured")

type Runtime struct {
	cfg config.Config
	log zerolog.Logger
	cli *mautrix.Client
}

func New(cfg config.Config, log zerolog.Logger) (*Runtime, error) {
	if !cfg.MatrixEnabled() {
		return nil, ErrNotConfigured
	}
	cli, err := mautrix.NewClient(cfg.HomeserverURL, cfg.UserID, cfg.MatrixToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create matrix client: %w", err)
	}
	cli.Log = log.With().Str("component", "matrix").Logger()
	return &Runtime{cfg: cfg, log: log, cli: cli}, nil
}

// Start checks the access token against the homeserver.
func (r *Runtime) Start(ctx context.Context) error {
	resp, err := r.cli.Whoami(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify matrix access token: %w", err)
	}
	if r.cfg.UserID != "" && resp.UserID != r.cfg.UserID {
		return fmt.Errorf("access token belongs to %s, expected %s", resp.UserID, r.cfg.UserID)
	}
	r.cli.UserID = resp.UserID
	r.cli.DeviceID = resp.DeviceID
	r.log.Info().
		Stringer("user_id", resp.UserID).
		Str("homeserver", r.cfg.HomeserverURL).
		Msg("Matrix runtime started")
	return nil
}

func (r *Runtime) Stop() {
	r.cli.StopSync()
}

func (r *Runtime) Client() *mautrix.Client {
	if r == nil {
		return nil
	}
	return r.cli
}
