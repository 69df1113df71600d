// Package config holds command configuration resolved from flags, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to the upper-cased flag name to form its environment variable,
// e.g. --fetch-delay is read from SERIAL2EPUB_FETCH_DELAY.
const EnvPrefix = "SERIAL2EPUB_"

type Config struct {
	Fetch FetchConfig
	Cache CacheConfig
	Epub  EpubConfig
	Log   LogConfig
}

type FetchConfig struct {
	UserAgent  string
	Timeout    time.Duration `validate:"gt=0"`
	RetryCount int           `validate:"gte=0"`
	RetryWait  time.Duration `validate:"gte=0"`
	// Delay is the pause between consecutive network fetches to the same host.
	Delay   time.Duration `validate:"gte=0"`
	Browser bool
}

type CacheConfig struct {
	Dir      string
	MaxAge   time.Duration `validate:"gte=0"`
	Disabled bool
}

type EpubConfig struct {
	Version              int `validate:"oneof=2 3"`
	MaxChapters          int `validate:"gte=0"`
	StyleSheetPath       string
	TocTitle             string
	NoAdditionalMetadata bool
	WriteErrorLog        bool
	SkipImages           bool
	OutputDir            string
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn warning error"`
	Format string `validate:"oneof=text json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Fetch: FetchConfig{
			UserAgent:  "Mozilla/5.0 (X11; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0",
			Timeout:    30 * time.Second,
			RetryCount: 3,
			RetryWait:  3 * time.Second,
			Delay:      time.Second,
		},
		Cache: CacheConfig{
			Dir:    defaultCacheDir(),
			MaxAge: 30 * 24 * time.Hour,
		},
		Epub: EpubConfig{
			Version:       3,
			TocTitle:      "Contents",
			WriteErrorLog: true,
			OutputDir:     ".",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "serial2epub")
	}
	return filepath.Join(dir, "serial2epub", "chapters")
}

// BindFlags registers persistent flags backed by cfg's fields, using cfg's values as defaults.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Fetch.UserAgent, "user-agent", cfg.Fetch.UserAgent, "User-Agent header sent with every request")
	fs.DurationVar(&cfg.Fetch.Timeout, "fetch-timeout", cfg.Fetch.Timeout, "timeout of a single fetch")
	fs.IntVar(&cfg.Fetch.RetryCount, "retry-count", cfg.Fetch.RetryCount, "retries for failed or rate limited requests")
	fs.DurationVar(&cfg.Fetch.RetryWait, "retry-wait", cfg.Fetch.RetryWait, "wait between retries")
	fs.DurationVar(&cfg.Fetch.Delay, "fetch-delay", cfg.Fetch.Delay, "pause between network fetches to the same site")
	fs.BoolVar(&cfg.Fetch.Browser, "browser", cfg.Fetch.Browser, "render pages in headless Chrome before extraction")

	fs.StringVar(&cfg.Cache.Dir, "cache-dir", cfg.Cache.Dir, "chapter cache directory")
	fs.DurationVar(&cfg.Cache.MaxAge, "cache-max-age", cfg.Cache.MaxAge, "evict cached chapters older than this")
	fs.BoolVar(&cfg.Cache.Disabled, "no-cache", cfg.Cache.Disabled, "do not read or write the chapter cache")

	fs.IntVar(&cfg.Epub.Version, "epub-version", cfg.Epub.Version, "package format version (2 or 3)")
	fs.IntVar(&cfg.Epub.MaxChapters, "max-chapters", cfg.Epub.MaxChapters, "maximum chapters per book, 0 for no limit")
	fs.StringVar(&cfg.Epub.StyleSheetPath, "stylesheet", cfg.Epub.StyleSheetPath, "css file to embed instead of the default stylesheet")
	fs.StringVar(&cfg.Epub.TocTitle, "toc-title", cfg.Epub.TocTitle, "heading of the table of contents")
	fs.BoolVar(&cfg.Epub.NoAdditionalMetadata, "no-additional-metadata", cfg.Epub.NoAdditionalMetadata, "leave subject and description out of the book")
	fs.BoolVar(&cfg.Epub.WriteErrorLog, "write-error-log", cfg.Epub.WriteErrorLog, "write <file>.ErrorLog.txt when chapters fail")
	fs.BoolVar(&cfg.Epub.SkipImages, "text-only", cfg.Epub.SkipImages, "drop images from chapters")
	fs.StringVarP(&cfg.Epub.OutputDir, "output-path", "o", cfg.Epub.OutputDir, "output directory")

	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "log format (text, json)")
}

// ApplyEnv sets every flag the user did not pass explicitly from its environment variable.
func ApplyEnv(fs *pflag.FlagSet, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		value, ok := lookup(EnvName(f.Name))
		if !ok {
			return
		}
		if err := fs.Set(f.Name, value); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", EnvName(f.Name), err))
		}
	})
	return errors.Join(errs...)
}

// EnvName maps a flag name to its environment variable.
func EnvName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", e.Namespace(), e.Tag(), e.Param()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Load fills cfg from the environment for flags not set on the command line, then validates it.
// cfg must be the value previously passed to BindFlags with fs.
func Load(fs *pflag.FlagSet, cfg *Config) error {
	if err := ApplyEnv(fs, os.LookupEnv); err != nil {
		return err
	}
	return cfg.Validate()
}
