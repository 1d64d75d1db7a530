package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/greenlight-sh/greenlight/pkg/types"
)

func TestLatencyChecker_WithinThreshold(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewLatencyChecker(server.URL, 5*time.Second).WithSamples(5)
	result := checker.Check(context.Background())

	if result.Status != types.CheckPassed {
		t.Errorf("expected passed, got %s: %s", result.Status, result.Message)
	}
}

func TestLatencyChecker_ExceedsThreshold(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(30 * time.Millisecond)
	}))
	defer server.Close()

	checker := NewLatencyChecker(server.URL, time.Millisecond).WithSamples(3)
	result := checker.Check(context.Background())

	if result.Status != types.CheckFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
}

func TestLatencyChecker_ServerErrorFailsSample(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	checker := NewLatencyChecker(server.URL, 5*time.Second).WithSamples(3)
	result := checker.Check(context.Background())

	if result.Status != types.CheckFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
}

func TestLatencyChecker_CancelledMidSampling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 75*time.Millisecond)
	defer cancel()

	checker := NewLatencyChecker(server.URL, 5*time.Second).WithSamples(10)
	result := checker.Check(ctx)

	if result.Status == types.CheckPassed {
		t.Errorf("expected failure or error for interrupted sampling, got %s", result.Status)
	}
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
		40 * time.Millisecond,
		100 * time.Millisecond,
	}

	if got := percentile(samples, 0.95); got != 100*time.Millisecond {
		t.Errorf("expected p95 of 100ms, got %v", got)
	}
	if got := percentile(samples, 0.5); got != 30*time.Millisecond {
		t.Errorf("expected p50 of 30ms, got %v", got)
	}
	if got := percentile(nil, 0.95); got != 0 {
		t.Errorf("expected 0 for empty samples, got %v", got)
	}
}
