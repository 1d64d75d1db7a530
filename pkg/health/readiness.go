package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/greenlight-sh/greenlight/pkg/types"
)

// readinessPayload is the shape of the application's readiness endpoint
type readinessPayload struct {
	Status  string   `json:"status"`
	Modules []string `json:"modules"`
}

// ReadinessChecker verifies the application-level readiness signal: the
// readiness endpoint must report ready and, when configured, list every
// expected module.
type ReadinessChecker struct {
	// URL is the readiness endpoint
	URL string

	// ExpectedModules must all appear in the endpoint's module list.
	// Empty means only the status field is checked.
	ExpectedModules []string

	// Client is the HTTP client to use
	Client *http.Client
}

// NewReadinessChecker creates a new readiness checker
func NewReadinessChecker(url string) *ReadinessChecker {
	return &ReadinessChecker{
		URL: url,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Check performs the readiness check
func (r *ReadinessChecker) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return Result{
			Status:    types.CheckError,
			Message:   fmt.Sprintf("failed to create request: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return Result{
			Status:    types.CheckError,
			Message:   fmt.Sprintf("request failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{
			Status:    types.CheckFailed,
			Message:   fmt.Sprintf("readiness endpoint returned HTTP %d", resp.StatusCode),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	var payload readinessPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{
			Status:    types.CheckError,
			Message:   fmt.Sprintf("failed to decode readiness payload: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	if payload.Status != "ready" && payload.Status != "ok" {
		return Result{
			Status:    types.CheckFailed,
			Message:   fmt.Sprintf("readiness status is %q", payload.Status),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	loaded := make(map[string]bool, len(payload.Modules))
	for _, m := range payload.Modules {
		loaded[m] = true
	}
	var missing []string
	for _, m := range r.ExpectedModules {
		if !loaded[m] {
			missing = append(missing, m)
		}
	}
	if len(missing) > 0 {
		return Result{
			Status:    types.CheckFailed,
			Message:   fmt.Sprintf("missing expected modules: %v", missing),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Status:    types.CheckPassed,
		Message:   fmt.Sprintf("ready, %d modules loaded", len(payload.Modules)),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (r *ReadinessChecker) Type() CheckType {
	return CheckTypeReadiness
}

// WithExpectedModules sets the modules that must be reported loaded
func (r *ReadinessChecker) WithExpectedModules(modules []string) *ReadinessChecker {
	r.ExpectedModules = modules
	return r
}

// WithTimeout sets the HTTP client timeout
func (r *ReadinessChecker) WithTimeout(timeout time.Duration) *ReadinessChecker {
	r.Client.Timeout = timeout
	return r
}
