package health

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/greenlight-sh/greenlight/pkg/types"
)

// LatencyChecker samples response latency with K requests and requires
// the P95 to stay below a threshold.
type LatencyChecker struct {
	// URL is the endpoint to sample
	URL string

	// Samples is the number of requests to issue (default: 10)
	Samples int

	// P95Threshold is the maximum acceptable 95th-percentile latency
	P95Threshold time.Duration

	// Client is the HTTP client to use
	Client *http.Client
}

// NewLatencyChecker creates a new latency sampling checker
func NewLatencyChecker(url string, p95Threshold time.Duration) *LatencyChecker {
	return &LatencyChecker{
		URL:          url,
		Samples:      10,
		P95Threshold: p95Threshold,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Check issues the samples sequentially and evaluates the P95
func (l *LatencyChecker) Check(ctx context.Context) Result {
	start := time.Now()

	samples := l.Samples
	if samples <= 0 {
		samples = 10
	}

	durations := make([]time.Duration, 0, samples)
	for i := 0; i < samples; i++ {
		if err := ctx.Err(); err != nil {
			return Result{
				Status:    types.CheckError,
				Message:   fmt.Sprintf("sampling interrupted after %d/%d requests: %v", i, samples, err),
				CheckedAt: start,
				Duration:  time.Since(start),
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
		if err != nil {
			return Result{
				Status:    types.CheckError,
				Message:   fmt.Sprintf("failed to create request: %v", err),
				CheckedAt: start,
				Duration:  time.Since(start),
			}
		}

		sampleStart := time.Now()
		resp, err := l.Client.Do(req)
		if err != nil {
			return Result{
				Status:    types.CheckFailed,
				Message:   fmt.Sprintf("sample %d/%d failed: %v", i+1, samples, err),
				CheckedAt: start,
				Duration:  time.Since(start),
			}
		}
		resp.Body.Close()

		if resp.StatusCode >= 500 {
			return Result{
				Status:    types.CheckFailed,
				Message:   fmt.Sprintf("sample %d/%d returned HTTP %d", i+1, samples, resp.StatusCode),
				CheckedAt: start,
				Duration:  time.Since(start),
			}
		}

		durations = append(durations, time.Since(sampleStart))
	}

	p95 := percentile(durations, 0.95)
	if p95 > l.P95Threshold {
		return Result{
			Status: types.CheckFailed,
			Message: fmt.Sprintf("P95 latency %v exceeds threshold %v over %d samples",
				p95.Round(time.Millisecond), l.P95Threshold, samples),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Status: types.CheckPassed,
		Message: fmt.Sprintf("P95 latency %v within threshold %v over %d samples",
			p95.Round(time.Millisecond), l.P95Threshold, samples),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (l *LatencyChecker) Type() CheckType {
	return CheckTypeLatency
}

// WithSamples sets the number of requests to issue
func (l *LatencyChecker) WithSamples(n int) *LatencyChecker {
	l.Samples = n
	return l
}

// WithTimeout sets the per-request timeout
func (l *LatencyChecker) WithTimeout(timeout time.Duration) *LatencyChecker {
	l.Client.Timeout = timeout
	return l
}

// percentile returns the p-th percentile (0 < p <= 1) of the samples
func percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted))*p+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
