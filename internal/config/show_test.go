package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective_RedactsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Graph.ClientSecret = "super-secret-value"
	cfg.Logging.SentryDSN = "https://key@o1.ingest.sentry.io/1"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, &buf))

	out := buf.String()
	assert.NotContains(t, out, "super-secret-value")
	assert.NotContains(t, out, "ingest.sentry.io")
	assert.Contains(t, out, `client_secret  = "(redacted)"`)
	assert.Contains(t, out, `default_folder  = "SAV_Images"`)
}

func TestRenderEffective_IsLoadableTOML(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.StaticDir = "/srv/client"
	cfg.Network.UserAgent = "sav-uploader/test"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, &buf))

	decoded := DefaultConfig()
	md, err := toml.Decode(buf.String(), decoded)
	require.NoError(t, err)
	require.NoError(t, checkUnknownKeys(&md))

	assert.Equal(t, cfg, decoded)
}

type failingWriter struct{ n int }

func (w *failingWriter) Write(p []byte) (int, error) {
	w.n++
	return 0, errors.New("disk full")
}

func TestRenderEffective_StopsAtFirstWriteError(t *testing.T) {
	w := &failingWriter{}

	err := RenderEffective(DefaultConfig(), w)
	require.Error(t, err)
	assert.Equal(t, 1, w.n)
}

func TestRedacted_CopiesAndHidesSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Graph.ClientSecret = "super-secret-value"

	out := Redacted(cfg)
	out.Upload.AllowedTypes[0] = "changed/type"

	assert.Equal(t, "(redacted)", out.Graph.ClientSecret)
	assert.Empty(t, out.Logging.SentryDSN)
	assert.Equal(t, "super-secret-value", cfg.Graph.ClientSecret)
	assert.NotEqual(t, "changed/type", cfg.Upload.AllowedTypes[0])
}
