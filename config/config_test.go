package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(cfg *Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs, cfg)
	return fs
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestApplyEnv_FlagBeatsEnv(t *testing.T) {
	cfg := Default()
	fs := newFlags(cfg)
	require.NoError(t, fs.Parse([]string{"--fetch-delay=5s"}))

	env := map[string]string{
		"SERIAL2EPUB_FETCH_DELAY":  "10s",
		"SERIAL2EPUB_EPUB_VERSION": "2",
	}
	err := ApplyEnv(fs, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Fetch.Delay)
	assert.Equal(t, 2, cfg.Epub.Version)
	assert.Equal(t, 3, cfg.Fetch.RetryCount)
}

func TestApplyEnv_InvalidValue(t *testing.T) {
	cfg := Default()
	fs := newFlags(cfg)
	err := ApplyEnv(fs, func(k string) (string, bool) {
		if k == "SERIAL2EPUB_MAX_CHAPTERS" {
			return "lots", true
		}
		return "", false
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERIAL2EPUB_MAX_CHAPTERS")
}

func TestValidate_RejectsUnknownVersion(t *testing.T) {
	cfg := Default()
	cfg.Epub.Version = 4
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Version")
}

func TestValidate_RejectsNegativeDelay(t *testing.T) {
	cfg := Default()
	cfg.Fetch.Delay = -time.Second
	require.Error(t, cfg.Validate())
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "SERIAL2EPUB_CACHE_DIR", EnvName("cache-dir"))
}
