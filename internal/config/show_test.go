package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective_Defaults(t *testing.T) {
	cfg := DefaultConfig()

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, &buf))

	output := buf.String()
	assert.Contains(t, output, "[sync]")
	assert.Contains(t, output, "[cloud]")
	assert.Contains(t, output, "[store]")
	assert.Contains(t, output, "[logging]")
	assert.Contains(t, output, "[daemon]")
	assert.Contains(t, output, `direction         = "between"`)
	assert.Contains(t, output, `strategy          = "realtime"`)
}

func TestRenderEffective_ShadowsListed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.Shadows = []ShadowRef{
		{Thing: "lamp", Name: ""},
		{Thing: "thermostat", Name: "config"},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, &buf))

	output := buf.String()
	assert.Contains(t, output, `thing = "lamp"`)
	assert.Contains(t, output, `thing = "thermostat", name = "config"`)
}

func TestRenderEffective_NeverPrintsClientSecret(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cloud.ClientSecret = "top-secret-value"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, &buf))

	assert.NotContains(t, buf.String(), "top-secret-value")
}

func TestRenderEffective_PropagatesWriteError(t *testing.T) {
	cfg := DefaultConfig()
	err := RenderEffective(cfg, &failingWriter{err: errors.New("disk full")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

type failingWriter struct {
	err error
}

func (w *failingWriter) Write([]byte) (int, error) {
	return 0, w.err
}
