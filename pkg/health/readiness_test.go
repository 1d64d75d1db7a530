package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/greenlight-sh/greenlight/pkg/types"
)

func TestReadinessChecker_Ready(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ready","modules":["auth","billing","search"]}`))
	}))
	defer server.Close()

	checker := NewReadinessChecker(server.URL)
	result := checker.Check(context.Background())

	if result.Status != types.CheckPassed {
		t.Errorf("expected passed, got %s: %s", result.Status, result.Message)
	}
}

func TestReadinessChecker_NotReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"starting","modules":[]}`))
	}))
	defer server.Close()

	checker := NewReadinessChecker(server.URL)
	result := checker.Check(context.Background())

	if result.Status != types.CheckFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
}

func TestReadinessChecker_MissingModules(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ready","modules":["auth"]}`))
	}))
	defer server.Close()

	checker := NewReadinessChecker(server.URL).
		WithExpectedModules([]string{"auth", "billing"})
	result := checker.Check(context.Background())

	if result.Status != types.CheckFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
	if !strings.Contains(result.Message, "billing") {
		t.Errorf("expected message to name the missing module, got %q", result.Message)
	}
}

func TestReadinessChecker_MalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	checker := NewReadinessChecker(server.URL)
	result := checker.Check(context.Background())

	if result.Status != types.CheckError {
		t.Errorf("expected error, got %s", result.Status)
	}
}

func TestReadinessChecker_Type(t *testing.T) {
	checker := NewReadinessChecker("http://localhost/ready")
	if checker.Type() != CheckTypeReadiness {
		t.Errorf("expected readiness, got %s", checker.Type())
	}
}
