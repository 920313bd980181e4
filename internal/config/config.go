// Package config loads editor settings from a TOML file and the environment.
//
// Resolution order is defaults, then the file, then ELIDE_* environment
// variables. A missing file is not an error.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

// Duration is a time.Duration written as a string such as "150ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Server selects and talks to the language server.
type Server struct {
	// WorkspaceCommand runs inside a project that has a manifest.
	WorkspaceCommand []string `toml:"workspace_command"`
	// FileCommand runs for standalone files.
	FileCommand []string `toml:"file_command"`
	// Manifests are the file names that mark a project root.
	Manifests []string `toml:"manifests"`
	// SearchDepth bounds the walk up parent directories.
	SearchDepth int `toml:"search_depth"`

	LanguageID        string   `toml:"language_id"`
	HandshakeRetries  int      `toml:"handshake_retries"`
	HandshakeInterval Duration `toml:"handshake_interval"`
}

// Editor holds document session settings.
type Editor struct {
	CheckpointDebounce Duration `toml:"checkpoint_debounce"`
	HistoryLimit       int      `toml:"history_limit"`
	TickInterval       Duration `toml:"tick_interval"`
	// RequestTimeout bounds how long a tool call waits for server replies.
	RequestTimeout Duration `toml:"request_timeout"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `toml:"level"`
	File        string `toml:"file"`
	Development bool   `toml:"development"`
}

type Config struct {
	Server Server `toml:"server"`
	Editor Editor `toml:"editor"`
	Log    Log    `toml:"log"`
}

// Default returns the built-in configuration for Lean 4.
func Default() Config {
	return Config{
		Server: Server{
			WorkspaceCommand:  []string{"lake", "serve"},
			FileCommand:       []string{"lean", "--server"},
			Manifests:         []string{"lakefile.lean", "lakefile.toml"},
			SearchDepth:       64,
			LanguageID:        "lean4",
			HandshakeRetries:  200,
			HandshakeInterval: Duration{50 * time.Millisecond},
		},
		Editor: Editor{
			CheckpointDebounce: Duration{150 * time.Millisecond},
			HistoryLimit:       1000,
			TickInterval:       Duration{20 * time.Millisecond},
			RequestTimeout:     Duration{10 * time.Second},
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if cfg, err = Parse(data); err != nil {
				return cfg, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Parse decodes TOML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from ELIDE_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("ELIDE_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := lookup("ELIDE_LOG_FILE"); ok {
		c.Log.File = v
	}
	if v, ok := lookup("ELIDE_FILE_COMMAND"); ok {
		c.Server.FileCommand = strings.Fields(v)
	}
	if v, ok := lookup("ELIDE_WORKSPACE_COMMAND"); ok {
		c.Server.WorkspaceCommand = strings.Fields(v)
	}
	if v, ok := lookup("ELIDE_CHECKPOINT_DEBOUNCE"); ok {
		if err := c.Editor.CheckpointDebounce.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("ELIDE_CHECKPOINT_DEBOUNCE: %w", err)
		}
	}
	if v, ok := lookup("ELIDE_REQUEST_TIMEOUT"); ok {
		if err := c.Editor.RequestTimeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("ELIDE_REQUEST_TIMEOUT: %w", err)
		}
	}
	return nil
}

// Validate checks the fields the rest of the program relies on.
func (c Config) Validate() error {
	if len(c.Server.FileCommand) == 0 {
		return errors.New("server.file_command is empty")
	}
	if len(c.Server.WorkspaceCommand) == 0 {
		return errors.New("server.workspace_command is empty")
	}
	if c.Server.SearchDepth <= 0 {
		return fmt.Errorf("server.search_depth must be positive, got %d", c.Server.SearchDepth)
	}
	if c.Server.HandshakeRetries <= 0 {
		return fmt.Errorf("server.handshake_retries must be positive, got %d", c.Server.HandshakeRetries)
	}
	return nil
}

// Logger builds a zap logger from the Log section.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", c.Log.Level, err)
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	// stdout may carry a protocol; logs never go there.
	zc.OutputPaths = []string{"stderr"}
	if c.Log.File != "" {
		zc.OutputPaths = []string{c.Log.File}
	}
	return zc.Build()
}
