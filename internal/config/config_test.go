package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"MXCOMPOSER_STATE_DIR": "/tmp/mxc",
	}))
	require.NoError(t, err)

	assert.Equal(t, defaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, 500*time.Millisecond, cfg.MentionDebounce)
	assert.Equal(t, 10*time.Second, cfg.MemberFetchTimeout)
	assert.Equal(t, time.Hour, cfg.PreviewTTL)
	assert.Equal(t, 3, cfg.PreviewMaxURLs)
	assert.Equal(t, "@every 10m", cfg.PreviewCleanup)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.False(t, cfg.MatrixEnabled())
	assert.False(t, cfg.DesktopEnabled())
	assert.Equal(t, filepath.Join("/tmp/mxc", "previews.db"), cfg.PreviewDBPath())
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"MXCOMPOSER_STATE_DIR":         "/tmp/mxc",
		"MXCOMPOSER_LISTEN":            "0.0.0.0:9000",
		"MXCOMPOSER_ALLOW_QUERY_TOKEN": "true",
		"MXCOMPOSER_HOMESERVER_URL":    "https://matrix.example.org/",
		"MXCOMPOSER_USER_ID":           "@bot:example.org",
		"MXCOMPOSER_MATRIX_TOKEN":      "syt_abc",
		"MXCOMPOSER_MENTION_DEBOUNCE":  "250ms",
		"MXCOMPOSER_LOG_LEVEL":         "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	assert.True(t, cfg.AllowQueryTokenAuth)
	assert.Equal(t, "https://matrix.example.org", cfg.HomeserverURL)
	assert.True(t, cfg.MatrixEnabled())
	assert.Equal(t, 250*time.Millisecond, cfg.MentionDebounce)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	tests := map[string]map[string]string{
		"duration":           {"MXCOMPOSER_MENTION_DEBOUNCE": "soon"},
		"max urls":           {"MXCOMPOSER_PREVIEW_MAX_URLS": "many"},
		"zero max urls":      {"MXCOMPOSER_PREVIEW_MAX_URLS": "0"},
		"zero fetch timeout": {"MXCOMPOSER_MEMBER_FETCH_TIMEOUT": "0s"},
		"negative ttl":       {"MXCOMPOSER_PREVIEW_TTL": "-1h"},
		"level":              {"MXCOMPOSER_LOG_LEVEL": "loud"},
		"user id": {
			"MXCOMPOSER_HOMESERVER_URL": "https://matrix.example.org",
			"MXCOMPOSER_MATRIX_TOKEN":   "syt_abc",
			"MXCOMPOSER_USER_ID":        "not-a-user",
		},
	}
	for name, values := range tests {
		t.Run(name, func(t *testing.T) {
			values["MXCOMPOSER_STATE_DIR"] = "/tmp/mxc"
			_, err := FromEnv(envMap(values))
			assert.Error(t, err)
		})
	}
}
