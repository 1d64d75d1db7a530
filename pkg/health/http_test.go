package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/greenlight-sh/greenlight/pkg/types"
)

func TestHTTPChecker_HealthyEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("healthy"))
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL)

	result := checker.Check(context.Background())

	if result.Status != types.CheckPassed {
		t.Errorf("Expected passed, got %s: %s", result.Status, result.Message)
	}

	if result.Duration <= 0 {
		t.Error("Expected positive duration")
	}
}

func TestHTTPChecker_UnhealthyEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL)

	result := checker.Check(context.Background())

	// The endpoint answered with a bad status: executed but failed
	if result.Status != types.CheckFailed {
		t.Errorf("Expected failed, got %s: %s", result.Status, result.Message)
	}
}

func TestHTTPChecker_UnreachableEndpoint(t *testing.T) {
	// Nothing listens here
	checker := NewHTTPChecker("http://127.0.0.1:1/health")

	result := checker.Check(context.Background())

	// The check could not execute at all: error, not failed
	if result.Status != types.CheckError {
		t.Errorf("Expected error, got %s: %s", result.Status, result.Message)
	}
}

func TestHTTPChecker_CustomStatusRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated) // 201
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL).WithStatusRange(200, 299)

	result := checker.Check(context.Background())

	if result.Status != types.CheckPassed {
		t.Errorf("Expected passed for 201 status, got %s: %s", result.Status, result.Message)
	}
}

func TestHTTPChecker_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL).WithTimeout(50 * time.Millisecond)

	result := checker.Check(context.Background())

	if result.Status == types.CheckPassed {
		t.Errorf("Expected unhealthy due to timeout, got passed: %s", result.Message)
	}
}

func TestHTTPChecker_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := checker.Check(ctx)

	if result.Status == types.CheckPassed {
		t.Errorf("Expected unhealthy due to cancelled context, got passed: %s", result.Message)
	}
}

func TestHTTPChecker_Type(t *testing.T) {
	checker := NewHTTPChecker("http://example.com")
	if checker.Type() != CheckTypeHTTP {
		t.Errorf("Expected type %s, got %s", CheckTypeHTTP, checker.Type())
	}
}
