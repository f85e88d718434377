package sfutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type config struct {
	Addr    string   `yaml:"addr"`
	Origins []string `yaml:"origins"`
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(p, []byte("addr: :9000\norigins:\n  - http://localhost:3000\n"), 0o644))

	cfg := config{Addr: "localhost:8000"}
	require.NoError(t, LoadYAML(p, &cfg))
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Origins)

	missing := config{Addr: "localhost:8000"}
	require.NoError(t, LoadYAML(filepath.Join(dir, "nope.yaml"), &missing))
	assert.Equal(t, "localhost:8000", missing.Addr)

	require.NoError(t, os.WriteFile(p, []byte("addr: [unterminated"), 0o644))
	assert.Error(t, LoadYAML(p, &cfg))
}

func TestReadSecret(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Empty(t, ReadSecret("OPENAI_API_KEY"))

	require.NoError(t, os.MkdirAll(filepath.Join(home, ".secrets"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".secrets", "OPENAI_API_KEY"), []byte("sk-test\n"), 0o600))
	assert.Equal(t, "sk-test", ReadSecret("OPENAI_API_KEY"))
}

func TestConfigLoggingLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	debug := true
	ConfigLogging(&debug)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	debug = false
	t.Setenv(LogEnv, "trace")
	ConfigLogging(&debug)
	assert.Equal(t, zerolog.TraceLevel, zerolog.GlobalLevel())

	path := filepath.Join(t.TempDir(), "scaffold.log")
	closer := ConfigLogging(nil, WithLogFile(path))
	require.NoError(t, closer.Close())
}
