package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/greenlight-sh/greenlight/pkg/log"
	"github.com/greenlight-sh/greenlight/pkg/types"
)

// Trigger is the outbound interface to the external deployment
// mechanism. The orchestrator treats it as a black box that returns
// once the new revision is live but unverified.
type Trigger interface {
	// TriggerDeployment deploys the environment's current spec and
	// returns the revision identifier of the new deployment
	TriggerDeployment(ctx context.Context, env *types.Environment) (string, error)
}

// triggerRequest is the payload sent to the deployment endpoint
type triggerRequest struct {
	Environment types.EnvironmentName `json:"environment"`
	ImageTag    string                `json:"image_tag"`
}

// triggerResponse is the payload returned by the deployment endpoint
type triggerResponse struct {
	RevisionID string `json:"revision_id"`
}

// WebhookTrigger triggers deployments by POSTing the environment spec to
// an HTTP endpoint and reading back the revision ID.
type WebhookTrigger struct {
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
}

// NewWebhookTrigger creates a trigger against the given endpoint with a
// bounded request timeout.
func NewWebhookTrigger(endpoint string, timeout time.Duration) *WebhookTrigger {
	return &WebhookTrigger{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   log.WithComponent("deploy"),
	}
}

// TriggerDeployment implements Trigger
func (t *WebhookTrigger) TriggerDeployment(ctx context.Context, env *types.Environment) (string, error) {
	body, err := json.Marshal(triggerRequest{
		Environment: env.Name,
		ImageTag:    env.ImageTag,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode deploy request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create deploy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	t.logger.Info().
		Str("environment", string(env.Name)).
		Str("image_tag", env.ImageTag).
		Msg("triggering deployment")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("deploy trigger failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("deploy trigger returned HTTP %d", resp.StatusCode)
	}

	var out triggerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode deploy response: %w", err)
	}
	if out.RevisionID == "" {
		return "", fmt.Errorf("deploy trigger returned empty revision id")
	}

	t.logger.Info().
		Str("environment", string(env.Name)).
		Str("revision_id", out.RevisionID).
		Msg("deployment triggered")

	return out.RevisionID, nil
}
