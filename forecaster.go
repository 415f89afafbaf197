// Package forecaster turns the posterior draws of a fitted dynamic trend model
// into draws x time hindcasts and forecasts for a collection of time series.
package forecaster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aouyang1/go-dynforecaster/family"
	"github.com/aouyang1/go-dynforecaster/trend"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

const tracerName = "github.com/aouyang1/go-dynforecaster"

var ErrNoModel = errors.New("no fitted model")

// DrawError reports the failure of a single draw. Any draw failure aborts the
// whole forecast.
type DrawError struct {
	Draw   int
	Series string
	Output family.Output
	Err    error
}

func (e *DrawError) Error() string {
	series := e.Series
	if series == "" {
		series = "all"
	}
	return fmt.Sprintf("draw %d of series %s with %s output, %v", e.Draw, series, e.Output, e.Err)
}

func (e *DrawError) Unwrap() error {
	return e.Err
}

// Forecaster generates probabilistic forecasts from a fitted model
type Forecaster struct {
	model     *Model
	extractor *trend.Extractor
}

// New validates the fitted model and prepares the trend extraction
func New(model *Model) (*Forecaster, error) {
	if model == nil {
		return nil, ErrNoModel
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	extractor, err := trend.NewExtractor(model.Draws, model.Trend, model.Series.Len(), model.StoredTimes())
	if err != nil {
		return nil, fmt.Errorf("unable to initialize trend extraction, %w", err)
	}
	return &Forecaster{
		model:     model,
		extractor: extractor,
	}, nil
}

// Model returns the fitted model
func (f *Forecaster) Model() *Model {
	return f.model
}

// EffectiveTrend is the trend family used to propagate the stored state
func (f *Forecaster) EffectiveTrend() trend.Family {
	return f.extractor.Effective()
}

// Forecast computes the hindcast over the training period and the forecast
// over the requested rows for every retained draw
func (f *Forecaster) Forecast(ctx context.Context, req *Request) (*Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "forecaster.Forecast")
	defer span.End()

	res, err := f.forecast(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

func (f *Forecaster) forecast(ctx context.Context, req *Request) (*Result, error) {
	if err := req.validate(f.model); err != nil {
		return nil, err
	}
	p, err := newPlan(f.model, f.extractor, req)
	if err != nil {
		return nil, err
	}
	draws := selectDraws(f.model.Draws.NumDraws(), req.NumDraws, req.Seed)

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("series", req.Series),
		attribute.String("output", req.Output.String()),
		attribute.Int("draws", len(draws)),
		attribute.Int("horizon", p.horizon),
		attribute.Int("parallelism", req.Parallelism),
	)

	start := time.Now()
	outs, err := f.simulateDraws(ctx, p, draws, req.Parallelism)
	if err != nil {
		return nil, err
	}
	slog.Debug("simulated forecast draws",
		"draws", len(draws),
		"series", len(p.series),
		"horizon", p.horizon,
		"parallelism", req.Parallelism,
		"duration", time.Since(start),
	)

	series := make([]*SeriesResult, len(p.series))
	for i, sp := range p.series {
		s := &SeriesResult{
			Label:             sp.label,
			TrainObservations: f.model.Train.Observations(sp.label),
			TrainTimes:        sp.trainTimes,
			TestObservations:  sp.testRows.Observations(sp.label),
			TestTimes:         sp.testTimes,
		}
		if len(sp.trainTimes) > 0 {
			s.Hindcast = mat.NewDense(len(draws), len(sp.trainTimes), nil)
		}
		if len(sp.testTimes) > 0 {
			s.Forecast = mat.NewDense(len(draws), len(sp.testTimes), nil)
		}
		for d, out := range outs {
			if s.Hindcast != nil {
				s.Hindcast.SetRow(d, out.hindcast[i])
			}
			if s.Forecast != nil {
				s.Forecast.SetRow(d, out.forecast[i])
			}
		}
		series[i] = s
	}

	prov := Provenance{
		ID:             uuid.New(),
		Family:         f.model.Family,
		Trend:          f.model.Trend.Family,
		EffectiveTrend: f.extractor.Effective(),
		LatentFactors:  f.model.Trend.LatentFactors,
		Output:         req.Output,
		Draws:          draws,
		Origin:         p.origin,
		Seed:           req.Seed,
		CreatedAt:      time.Now().UTC(),
	}
	return newResult(prov, series), nil
}

// simulateDraws runs every retained draw in a bounded pool. Outputs are stored
// by retained position so their order never depends on completion order.
func (f *Forecaster) simulateDraws(ctx context.Context, p *plan, draws []int, parallelism int) ([]drawOutput, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "forecaster.simulateDraws",
		trace.WithAttributes(attribute.Int("draws", len(draws))))
	defer span.End()

	outs := make([]drawOutput, len(draws))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, d := range draws {
		task := drawTask{pos: i, draw: d}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := p.run(task)
			if err != nil {
				return err
			}
			outs[task.pos] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return outs, nil
}
