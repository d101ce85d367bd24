package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/kahani/pkg/generation"
	"github.com/go-go-golems/kahani/pkg/reveal"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	v, err := NewViper(writeConfig(t, ""))
	require.NoError(t, err)
	s, err := Load(v)
	require.NoError(t, err)

	require.Equal(t, generation.DefaultBaseURL, s.API.BaseURL)
	require.Equal(t, "sqlite", s.Storage.Backend)
	require.Equal(t, 500, s.Generate.MaxLength)
	require.InDelta(t, 0.8, s.Generate.Temperature, 1e-9)
	require.Equal(t, reveal.PolicyProgressive, s.RevealPolicy())
	require.Equal(t, 60*time.Millisecond, s.Reveal.Delay)
	require.False(t, s.Events.Redis.Enabled)
	require.NotEmpty(t, s.Storage.Path)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, `
api:
  base-url: http://from-file/
generate:
  max-length: 300
  temperature: 1.1
reveal:
  policy: instant
`)
	t.Setenv("KAHANI_GENERATE_MAX_LENGTH", "700")
	t.Setenv("KAHANI_REVEAL_DELAY", "5ms")

	v, err := NewViper(path)
	require.NoError(t, err)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--temperature", "1.5", "--storage", "memory"}))
	require.NoError(t, BindFlags(v, fs))

	s, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "http://from-file", s.API.BaseURL)
	require.Equal(t, 700, s.Generate.MaxLength)
	require.InDelta(t, 1.5, s.Generate.Temperature, 1e-9)
	require.Equal(t, reveal.PolicyInstant, s.RevealPolicy())
	require.Equal(t, 5*time.Millisecond, s.Reveal.Delay)
	require.Equal(t, "memory", s.KVSettings().Backend)
}

func TestLoad_RejectsUnknownValues(t *testing.T) {
	v, err := NewViper(writeConfig(t, "storage:\n  backend: postgres\n"))
	require.NoError(t, err)
	_, err = Load(v)
	require.Error(t, err)

	v, err = NewViper(writeConfig(t, "reveal:\n  policy: typewriter\n"))
	require.NoError(t, err)
	_, err = Load(v)
	require.Error(t, err)
}

func TestNewViper_MissingExplicitFile(t *testing.T) {
	_, err := NewViper(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEditor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	e, err := NewEditor(path)
	require.NoError(t, err)
	require.Empty(t, e.ListKeys())

	require.NoError(t, e.Set("api.base-url", "http://localhost:8000"))
	require.NoError(t, e.Set("generate.max-length", "250"))
	require.NoError(t, e.Set("events.redis.enabled", "true"))
	require.NoError(t, e.Save())

	e, err = NewEditor(path)
	require.NoError(t, err)
	require.Equal(t, []string{"api.base-url", "events.redis.enabled", "generate.max-length"}, e.ListKeys())
	v, err := e.Get("generate.max-length")
	require.NoError(t, err)
	require.Equal(t, 250, v)
	v, err = e.Get("events.redis.enabled")
	require.NoError(t, err)
	require.Equal(t, true, v)

	require.NoError(t, e.Delete("events.redis.enabled"))
	require.Error(t, e.Delete("events.redis.enabled"))
	_, err = e.Get("events.redis.enabled")
	require.Error(t, err)
	require.Equal(t, "http://localhost:8000", FormatValue(e.GetAll()["api.base-url"]))

	vp, err := NewViper(path)
	require.NoError(t, err)
	s, err := Load(vp)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", s.API.BaseURL)
	require.Equal(t, 250, s.Generate.MaxLength)
}
