package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/greenlight-sh/greenlight/pkg/types"
)

// resourcePayload is the shape of the target's resource stats endpoint
type resourcePayload struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// ResourceChecker verifies CPU and memory utilization stay below
// configured ceilings, leaving headroom for the traffic switch.
type ResourceChecker struct {
	// URL is the stats endpoint reporting cpu_percent and memory_percent
	URL string

	// CPUCeiling is the maximum acceptable CPU utilization in percent
	CPUCeiling float64

	// MemoryCeiling is the maximum acceptable memory utilization in percent
	MemoryCeiling float64

	// Client is the HTTP client to use
	Client *http.Client
}

// NewResourceChecker creates a new resource headroom checker
func NewResourceChecker(url string, cpuCeiling, memoryCeiling float64) *ResourceChecker {
	return &ResourceChecker{
		URL:           url,
		CPUCeiling:    cpuCeiling,
		MemoryCeiling: memoryCeiling,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Check performs the resource headroom check
func (r *ResourceChecker) Check(ctx context.Context) Result {
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
			Status:    types.CheckError,
			Message:   fmt.Sprintf("stats endpoint returned HTTP %d", resp.StatusCode),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	var payload resourcePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{
			Status:    types.CheckError,
			Message:   fmt.Sprintf("failed to decode stats payload: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	if payload.CPUPercent > r.CPUCeiling {
		return Result{
			Status:    types.CheckFailed,
			Message:   fmt.Sprintf("CPU %.1f%% exceeds ceiling %.1f%%", payload.CPUPercent, r.CPUCeiling),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	if payload.MemoryPercent > r.MemoryCeiling {
		return Result{
			Status:    types.CheckFailed,
			Message:   fmt.Sprintf("memory %.1f%% exceeds ceiling %.1f%%", payload.MemoryPercent, r.MemoryCeiling),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Status: types.CheckPassed,
		Message: fmt.Sprintf("CPU %.1f%%/%.1f%%, memory %.1f%%/%.1f%%",
			payload.CPUPercent, r.CPUCeiling, payload.MemoryPercent, r.MemoryCeiling),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (r *ResourceChecker) Type() CheckType {
	return CheckTypeResource
}

// WithTimeout sets the HTTP client timeout
func (r *ResourceChecker) WithTimeout(timeout time.Duration) *ResourceChecker {
	r.Client.Timeout = timeout
	return r
}
