package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/greenlight-sh/greenlight/pkg/types"
)

// Router is the outbound interface to the ingress routing layer. A
// weight of 100 takes all live traffic; 0 takes none.
type Router interface {
	SetRoutingWeight(ctx context.Context, env types.EnvironmentName, weight int) error
}

// weightRequest is the payload sent to the routing control endpoint
type weightRequest struct {
	Environment types.EnvironmentName `json:"environment"`
	Weight      int                   `json:"weight"`
}

// HTTPRouter updates routing weights through an HTTP control endpoint
// (load balancer admin API, ingress controller, etc.).
type HTTPRouter struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRouter creates a router client with a bounded request timeout
func NewHTTPRouter(endpoint string, timeout time.Duration) *HTTPRouter {
	return &HTTPRouter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// SetRoutingWeight implements Router
func (r *HTTPRouter) SetRoutingWeight(ctx context.Context, env types.EnvironmentName, weight int) error {
	body, err := json.Marshal(weightRequest{Environment: env, Weight: weight})
	if err != nil {
		return fmt.Errorf("failed to encode weight request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create weight request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("routing update failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("routing update returned HTTP %d", resp.StatusCode)
	}
	return nil
}
