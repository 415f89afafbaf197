// Package config resolves the command line configuration of dynforecast from
// DYNFORECAST_* environment variables, flags and a YAML request file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	forecaster "github.com/aouyang1/go-dynforecaster"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingModelPath = errors.New("model path is required")
	ErrMissingDrawsPath = errors.New("draws path is required")
	ErrUnknownLogFormat = errors.New("unknown log format")
	ErrUnknownProfile   = errors.New("unknown profile mode")
)

// Config holds the dynforecast command configuration
type Config struct {
	ModelPath   string `env:"DYNFORECAST_MODEL_PATH"`
	DrawsPath   string `env:"DYNFORECAST_DRAWS_PATH"`
	RequestPath string `env:"DYNFORECAST_REQUEST_PATH"`
	// OutputPath of the result JSON, stdout when empty
	OutputPath string `env:"DYNFORECAST_OUTPUT_PATH"`

	LogLevel  string `env:"DYNFORECAST_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"DYNFORECAST_LOG_FORMAT" envDefault:"text"`

	// Parallelism and Seed override the request file when non zero
	Parallelism int    `env:"DYNFORECAST_PARALLELISM"`
	Seed        uint64 `env:"DYNFORECAST_SEED"`

	// Profile is empty, cpu or mem
	Profile string `env:"DYNFORECAST_PROFILE"`

	// Print writes the model and forecast summaries to stderr
	Print bool `env:"DYNFORECAST_PRINT"`
}

// ParseConfig reads the environment and then the flags in args, flags taking
// precedence
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to parse env, %w", err)
	}

	fs.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "path to the fitted model json (default: DYNFORECAST_MODEL_PATH)")
	fs.StringVar(&cfg.DrawsPath, "draws", cfg.DrawsPath, "path to the posterior draws, .json, .csv or .db (default: DYNFORECAST_DRAWS_PATH)")
	fs.StringVar(&cfg.RequestPath, "request", cfg.RequestPath, "path to the forecast request yaml")
	fs.StringVar(&cfg.OutputPath, "out", cfg.OutputPath, "path to write the result json, stdout if empty")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")
	fs.IntVar(&cfg.Parallelism, "parallelism", cfg.Parallelism, "number of draws simulated concurrently")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	fs.StringVar(&cfg.Profile, "profile", cfg.Profile, "cpu or mem profile written to the working directory")
	fs.BoolVar(&cfg.Print, "print", cfg.Print, "print model and forecast summaries to stderr")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate checks the required paths and the enumerated settings
func (c Config) Validate() error {
	if strings.TrimSpace(c.ModelPath) == "" {
		return ErrMissingModelPath
	}
	if strings.TrimSpace(c.DrawsPath) == "" {
		return ErrMissingDrawsPath
	}
	switch c.Profile {
	case "", "cpu", "mem":
	default:
		return fmt.Errorf("%q, %w", c.Profile, ErrUnknownProfile)
	}
	if _, err := c.level(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%q, %w", c.LogFormat, ErrUnknownLogFormat)
	}
	return nil
}

func (c Config) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return lvl, fmt.Errorf("unable to parse log level, %w", err)
	}
	return lvl, nil
}

// NewLogger returns the structured logger writing to w
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	lvl, err := c.level()
	if err != nil {
		return nil, err
	}
	opt := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(c.LogFormat) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opt)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opt)), nil
	}
	return nil, fmt.Errorf("%q, %w", c.LogFormat, ErrUnknownLogFormat)
}

// Request returns the forecast request of the request file, or the default
// request without one, with the parallelism and seed overrides applied
func (c Config) Request() (*forecaster.Request, error) {
	req := forecaster.NewDefaultRequest()
	if c.RequestPath != "" {
		f, err := os.Open(c.RequestPath)
		if err != nil {
			return nil, fmt.Errorf("unable to open request file, %w", err)
		}
		defer f.Close()

		if req, err = DecodeRequest(f); err != nil {
			return nil, err
		}
	}
	if c.Parallelism > 0 {
		req.Parallelism = c.Parallelism
	}
	if c.Seed > 0 {
		req.Seed = c.Seed
	}
	return req, nil
}

// DecodeRequest reads a YAML request on top of the default request
func DecodeRequest(r io.Reader) (*forecaster.Request, error) {
	req := forecaster.NewDefaultRequest()
	if err := yaml.NewDecoder(r).Decode(req); err != nil {
		if errors.Is(err, io.EOF) {
			return req, nil
		}
		return nil, fmt.Errorf("unable to decode request, %w", err)
	}
	return req, nil
}
