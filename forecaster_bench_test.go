package forecaster

import (
	"context"
	"testing"

	"github.com/aouyang1/go-dynforecaster/trend"
	"github.com/goccy/go-json"
	"github.com/pkg/profile"
)

var benchForecastRes *Result

func benchmarkForecast(b *testing.B, cfg testModelConfig, parallelism int) {
	f, err := New(newTestModel(b, cfg))
	if err != nil {
		panic(err)
	}

	req := NewDefaultRequest()
	req.Horizon = HorizonNewData
	req.NewData = newRows(cfg.series, cfg.trainEnd+1, cfg.trainEnd+30)
	req.Parallelism = parallelism

	b.ResetTimer()
	for b.Loop() {
		benchForecastRes, err = f.Forecast(context.Background(), req)
		if err != nil {
			panic(err)
		}
	}
}

func BenchmarkForecastIndependent(b *testing.B) {
	cfg := defaultTestModelConfig()
	cfg.draws = 500
	benchmarkForecast(b, cfg, 1)
}

func BenchmarkForecastIndependentParallel(b *testing.B) {
	cfg := defaultTestModelConfig()
	cfg.draws = 500
	benchmarkForecast(b, cfg, 4)
}

func BenchmarkForecastShared(b *testing.B) {
	cfg := defaultTestModelConfig()
	cfg.draws = 500
	cfg.shared = true
	defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	benchmarkForecast(b, cfg, 1)
}

func BenchmarkForecastGP(b *testing.B) {
	cfg := defaultTestModelConfig()
	cfg.draws = 100
	cfg.trainEnd = 50
	cfg.spec = trend.Spec{Family: trend.FamilyGP}
	benchmarkForecast(b, cfg, 4)
}

func BenchmarkResultMarshal(b *testing.B) {
	cfg := defaultTestModelConfig()
	cfg.draws = 500
	f, err := New(newTestModel(b, cfg))
	if err != nil {
		panic(err)
	}
	req := NewDefaultRequest()
	req.Horizon = HorizonNewData
	req.NewData = newRows(cfg.series, cfg.trainEnd+1, cfg.trainEnd+30)
	res, err := f.Forecast(context.Background(), req)
	if err != nil {
		panic(err)
	}

	b.ResetTimer()
	for b.Loop() {
		if _, err := json.Marshal(res); err != nil {
			panic(err)
		}
	}
}
