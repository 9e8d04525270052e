package engine

import (
	"fmt"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/alexisbeaulieu97/toolweave/internal/model"
)

const (
	minTrackedLatency = int64(1)
	maxTrackedLatency = int64(24 * time.Hour / time.Microsecond)
)

// Report aggregates line durations of a run.
type Report struct {
	model.Summary
	Elapsed time.Duration
	P50     time.Duration
	P90     time.Duration
	P99     time.Duration
	Max     time.Duration
	Mean    time.Duration
}

// NewReport summarizes results. Durations are tracked at microsecond
// resolution with three significant digits.
func NewReport(results []model.LineResult, elapsed time.Duration) Report {
	hist := hdrhistogram.New(minTrackedLatency, maxTrackedLatency, 3)
	for _, r := range results {
		if r.Status == model.StatusPending || r.Duration <= 0 {
			continue
		}
		v := int64(r.Duration / time.Microsecond)
		if v < minTrackedLatency {
			v = minTrackedLatency
		}
		if v > maxTrackedLatency {
			v = maxTrackedLatency
		}
		_ = hist.RecordValue(v)
	}

	rep := Report{Summary: model.Summarize(results), Elapsed: elapsed}
	if hist.TotalCount() == 0 {
		return rep
	}
	rep.P50 = micros(hist.ValueAtQuantile(50))
	rep.P90 = micros(hist.ValueAtQuantile(90))
	rep.P99 = micros(hist.ValueAtQuantile(99))
	rep.Max = micros(hist.Max())
	rep.Mean = time.Duration(hist.Mean() * float64(time.Microsecond))
	return rep
}

func (r Report) String() string {
	return fmt.Sprintf("%d lines, %d succeeded, %d failed in %s (p50 %s, p90 %s, p99 %s, max %s)",
		r.Total, r.Succeeded, r.Failed, r.Elapsed.Round(time.Millisecond),
		r.P50, r.P90, r.P99, r.Max)
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}
