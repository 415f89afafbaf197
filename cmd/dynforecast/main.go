// Command dynforecast loads a fitted model with its posterior draws, runs a
// forecast request and writes the result as JSON.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	forecaster "github.com/aouyang1/go-dynforecaster"
	"github.com/aouyang1/go-dynforecaster/drawstore"
	"github.com/aouyang1/go-dynforecaster/internal/config"
	"github.com/goccy/go-json"
	"github.com/pkg/profile"
)

var summaryProbs = []float64{0.05, 0.5, 0.95}

func main() {
	cfg, err := config.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "dynforecast: %v\n", err)
		os.Exit(2)
	}
	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dynforecast: %v\n", err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	switch cfg.Profile {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.Quiet).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.Quiet).Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("forecast failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	draws, err := loadDraws(ctx, cfg.DrawsPath)
	if err != nil {
		return err
	}
	slog.Info("loaded draws", "path", cfg.DrawsPath, "draws", draws.NumDraws(), "parameters", len(draws.Names()))

	mf, err := os.Open(cfg.ModelPath)
	if err != nil {
		return fmt.Errorf("unable to open model, %w", err)
	}
	defer mf.Close()
	model, err := forecaster.LoadModel(mf, draws)
	if err != nil {
		return err
	}

	req, err := cfg.Request()
	if err != nil {
		return err
	}

	f, err := forecaster.New(model)
	if err != nil {
		return err
	}
	res, err := f.Forecast(ctx, req)
	if err != nil {
		return err
	}
	slog.Info("forecast complete",
		"series", len(res.Labels()),
		"draws", res.NumDraws(),
		"output", req.Output.String(),
		"effective_trend", f.EffectiveTrend().String(),
	)

	if cfg.Print {
		if err := printSummary(os.Stderr, model, res); err != nil {
			return err
		}
	}
	return writeResult(cfg.OutputPath, res)
}

// loadDraws picks the draw store reader from the file extension
func loadDraws(ctx context.Context, path string) (*drawstore.Store, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".db", ".sqlite", ".sqlite3":
		return drawstore.OpenSQLite(ctx, path)
	case ".json", ".csv":
	default:
		return nil, fmt.Errorf("unsupported draws file extension %q", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open draws, %w", err)
	}
	defer f.Close()
	if ext == ".csv" {
		return drawstore.LoadCSV(f)
	}
	return drawstore.LoadJSON(f)
}

func writeResult(path string, res *forecaster.Result) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("unable to create output, %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("unable to write result, %w", err)
	}
	return nil
}

func printSummary(w io.Writer, m *forecaster.Model, res *forecaster.Result) error {
	if err := m.TablePrint(w, "", "  "); err != nil {
		return err
	}
	for _, label := range res.Labels() {
		sum, err := res.Summary(label, summaryProbs)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s\n", label); err != nil {
			return err
		}
		for i, t := range sum.Forecast.Times {
			if _, err := fmt.Fprintf(w, "  t=%d mean=%.4f p05=%.4f p50=%.4f p95=%.4f\n",
				t, sum.Forecast.Mean[i],
				sum.Forecast.Quantiles[0][i], sum.Forecast.Quantiles[1][i], sum.Forecast.Quantiles[2][i],
			); err != nil {
				return err
			}
		}
	}
	return nil
}
