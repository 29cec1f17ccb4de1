package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Trial is the unit the harness times: Setup and Teardown bracket a group of
// warmup and measured iterations of Execute.
type Trial interface {
	Setup(ctx context.Context) error
	Execute(ctx context.Context) error
	Teardown()
}

type Benchmark struct {
	WarmupIterations      int
	WarmupTime            time.Duration
	MeasurementIterations int
	MeasurementTime       time.Duration
}

func NewBenchmark(invocation Invocation) Benchmark {
	return Benchmark{
		WarmupIterations:      invocation.WarmupIterations,
		WarmupTime:            invocation.WarmupTime,
		MeasurementIterations: invocation.MeasurementIterations,
		MeasurementTime:       invocation.MeasurementTime,
	}
}

type TrialParams struct {
	ConnectionType ConnectionType `json:"connection_type"`
	Limit          int64          `json:"limit"`
}

// TrialResult holds average-time samples in milliseconds per operation, one
// per measured iteration.
type TrialResult struct {
	Params      TrialParams        `json:"params"`
	Mode        string             `json:"mode"`
	Unit        string             `json:"unit"`
	RawData     []float64          `json:"raw_data"`
	Score       float64            `json:"score"`
	ScoreStdDev float64            `json:"score_stddev"`
	Percentiles map[string]float64 `json:"percentiles,omitempty"`
	Operations  int64              `json:"operations"`
	Rows        int64              `json:"rows"`
	StartedAt   time.Time          `json:"started_at"`
	Elapsed     float64            `json:"elapsed_seconds"`
	Error       string             `json:"error,omitempty"`
}

func (r TrialResult) Failed() bool { return r.Error != "" }

var reportedPercentiles = []float64{50, 90, 99, 99.9, 100}

const (
	minLatencyMicros = 1
	maxLatencyMicros = int64(time.Hour / time.Microsecond)
)

// RunTrial never returns an error: a failed setup or iteration ends the trial
// and is recorded in TrialResult.Error so the next trial can still run.
func (b *Benchmark) RunTrial(ctx context.Context, params TrialParams, trial Trial) TrialResult {
	result := TrialResult{
		Params:    params,
		Mode:      "avgt",
		Unit:      "ms/op",
		RawData:   make([]float64, 0, b.MeasurementIterations),
		StartedAt: time.Now(),
	}
	defer func() { result.Elapsed = time.Since(result.StartedAt).Seconds() }()
	defer trial.Teardown()

	if err := trial.Setup(ctx); err != nil {
		result.Error = err.Error()
		return result
	}

	if err := b.Warmup(ctx, trial); err != nil {
		result.Error = err.Error()
		return result
	}

	histogram := hdrhistogram.New(minLatencyMicros, maxLatencyMicros, 3)
	for i := 0; i < b.MeasurementIterations; i++ {
		sample, ops, err := b.iteration(ctx, trial, b.MeasurementTime, histogram)
		result.Operations += ops
		if err != nil {
			result.Error = fmt.Errorf("iteration #%v failed: %w", i+1, err).Error()
			break
		}
		Logger.Infof("iteration #%v/%v %v: %.3f ms/op (%v ops)", i+1, b.MeasurementIterations, params, sample, ops)
		result.RawData = append(result.RawData, sample)
	}
	if sink, ok := trial.(interface{ Sink() Sink }); ok {
		result.Rows = sink.Sink().Rows
	}
	if result.Failed() {
		// raw_data keeps the samples that completed; a partial run has no score.
		return result
	}
	result.Score, result.ScoreStdDev = meanStdDev(result.RawData)
	if histogram.TotalCount() > 0 {
		result.Percentiles = make(map[string]float64, len(reportedPercentiles))
		for _, p := range reportedPercentiles {
			key := fmt.Sprintf("p%v", p)
			result.Percentiles[key] = float64(histogram.ValueAtQuantile(p)) / 1000
		}
	}
	return result
}

func (b *Benchmark) Warmup(ctx context.Context, trial Trial) error {
	for i := 0; i < b.WarmupIterations; i++ {
		sample, ops, err := b.iteration(ctx, trial, b.WarmupTime, nil)
		if err != nil {
			return fmt.Errorf("warmup #%v failed: %w", i+1, err)
		}
		Logger.Debugf("warmup #%v/%v: %.3f ms/op (%v ops)", i+1, b.WarmupIterations, sample, ops)
	}
	return nil
}

// iteration runs Execute back to back until duration has passed, at least
// once, and returns the average milliseconds per operation.
func (b *Benchmark) iteration(ctx context.Context, trial Trial, duration time.Duration, histogram *hdrhistogram.Histogram) (float64, int64, error) {
	var ops int64
	var total time.Duration
	for ops == 0 || total < duration {
		if err := ctx.Err(); err != nil {
			return 0, ops, err
		}
		start := time.Now()
		err := trial.Execute(ctx)
		elapsed := time.Since(start)
		if err != nil {
			return 0, ops, err
		}
		ops++
		total += elapsed
		if histogram != nil {
			micros := max(elapsed.Microseconds(), minLatencyMicros)
			if err := histogram.RecordValue(min(micros, maxLatencyMicros)); err != nil {
				Logger.Debugf("failed to record latency %v: %v", elapsed, err)
			}
		}
	}
	return float64(total) / float64(time.Millisecond) / float64(ops), ops, nil
}

func meanStdDev(samples []float64) (float64, float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, sample := range samples {
		sum += sample
	}
	mean := sum / float64(len(samples))
	if len(samples) == 1 {
		return mean, 0
	}
	variance := 0.0
	for _, sample := range samples {
		variance += (sample - mean) * (sample - mean)
	}
	return mean, math.Sqrt(variance / float64(len(samples)-1))
}

func (p TrialParams) String() string {
	return fmt.Sprintf("%v/%v", p.ConnectionType, p.Limit)
}
