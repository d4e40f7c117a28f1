package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"
)

type Config struct {
	ListenAddr          string
	AccessToken         string
	StateDir            string
	AllowQueryTokenAuth bool
	LogLevel            zerolog.Level

	HomeserverURL string
	UserID        id.UserID
	MatrixToken   string

	DesktopAPIURL   string
	DesktopAPIToken string

	MentionDebounce    time.Duration
	MemberFetchTimeout time.Duration

	PreviewTTL          time.Duration
	PreviewFetchTimeout time.Duration
	PreviewMaxURLs      int
	PreviewCleanup      string
}

const (
	defaultListenAddr = "127.0.0.1:23380"
	envPrefix         = "MXCOMPOSER_"
)

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first if present.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

func FromEnv(getenv func(string) string) (Config, error) {
	env := func(key string) string {
		return strings.TrimSpace(getenv(envPrefix + key))
	}
	envDefault := func(key, fallback string) string {
		if val := env(key); val != "" {
			return val
		}
		return fallback
	}

	cfg := Config{
		ListenAddr:          envDefault("LISTEN", defaultListenAddr),
		AccessToken:         env("ACCESS_TOKEN"),
		AllowQueryTokenAuth: env("ALLOW_QUERY_TOKEN") == "true",
		HomeserverURL:       strings.TrimSuffix(env("HOMESERVER_URL"), "/"),
		UserID:              id.UserID(env("USER_ID")),
		MatrixToken:         env("MATRIX_TOKEN"),
		DesktopAPIURL:       env("DESKTOP_API_URL"),
		DesktopAPIToken:     env("DESKTOP_API_TOKEN"),
		PreviewCleanup:      envDefault("PREVIEW_CLEANUP", "@every 10m"),
	}

	var err error
	if cfg.LogLevel, err = zerolog.ParseLevel(envDefault("LOG_LEVEL", "info")); err != nil {
		return Config{}, fmt.Errorf("invalid %sLOG_LEVEL: %w", envPrefix, err)
	}
	durations := []struct {
		key      string
		fallback string
		out      *time.Duration
	}{
		{"MENTION_DEBOUNCE", "500ms", &cfg.MentionDebounce},
		{"MEMBER_FETCH_TIMEOUT", "10s", &cfg.MemberFetchTimeout},
		{"PREVIEW_TTL", "1h", &cfg.PreviewTTL},
		{"PREVIEW_FETCH_TIMEOUT", "10s", &cfg.PreviewFetchTimeout},
	}
	for _, d := range durations {
		if *d.out, err = time.ParseDuration(envDefault(d.key, d.fallback)); err != nil {
			return Config{}, fmt.Errorf("invalid %s%s: %w", envPrefix, d.key, err)
		} else if *d.out <= 0 {
			return Config{}, fmt.Errorf("invalid %s%s: must be positive", envPrefix, d.key)
		}
	}
	if cfg.PreviewMaxURLs, err = strconv.Atoi(envDefault("PREVIEW_MAX_URLS", "3")); err != nil {
		return Config{}, fmt.Errorf("invalid %sPREVIEW_MAX_URLS: %w", envPrefix, err)
	} else if cfg.PreviewMaxURLs <= 0 {
		return Config{}, fmt.Errorf("invalid %sPREVIEW_MAX_URLS: must be positive", envPrefix)
	}

	stateDir := env("STATE_DIR")
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("failed to resolve home dir: %w", err)
		}
		stateDir = filepath.Join(home, ".local", "share", "mxcomposer")
	}
	cfg.StateDir = stateDir

	if cfg.MatrixEnabled() {
		if _, _, err = cfg.UserID.Parse(); err != nil {
			return Config{}, fmt.Errorf("invalid %sUSER_ID: %w", envPrefix, err)
		}
	}
	return cfg, nil
}

func (cfg Config) MatrixEnabled() bool {
	return cfg.HomeserverURL != "" && cfg.MatrixToken != ""
}

func (cfg Config) DesktopEnabled() bool {
	return cfg.DesktopAPIToken != ""
}

func (cfg Config) PreviewDBPath() string {
	return filepath.Join(cfg.StateDir, "previews.db")
}
