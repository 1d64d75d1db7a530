package health

import (
	"fmt"
	"net/url"
	"time"

	"github.com/greenlight-sh/greenlight/pkg/config"
)

// BuildBattery translates the configured check list into probes bound to
// one environment's probe surfaces.
func BuildBattery(checks []config.CheckConfig, target config.EnvironmentTarget) ([]Probe, error) {
	probes := make([]Probe, 0, len(checks))

	for _, cc := range checks {
		checker, err := buildChecker(cc, target)
		if err != nil {
			return nil, fmt.Errorf("check %q: %w", cc.Name, err)
		}

		probes = append(probes, Probe{
			Name:      cc.Name,
			Mandatory: cc.Mandatory,
			Timeout:   cc.Timeout.Std(),
			Retries:   cc.Retries,
			Checker:   checker,
		})
	}

	return probes, nil
}

func buildChecker(cc config.CheckConfig, target config.EnvironmentTarget) (Checker, error) {
	switch cc.Type {
	case config.CheckHTTP:
		endpoint, err := joinURL(target.BaseURL, cc.Path)
		if err != nil {
			return nil, err
		}
		return NewHTTPChecker(endpoint).
			WithStatusRange(cc.StatusMin, cc.StatusMax).
			WithTimeout(cc.Timeout.Std()), nil

	case config.CheckTCP:
		return NewTCPChecker(target.DatastoreAddr).
			WithTimeout(cc.Timeout.Std()), nil

	case config.CheckReadiness:
		endpoint, err := joinURL(target.BaseURL, cc.Path)
		if err != nil {
			return nil, err
		}
		return NewReadinessChecker(endpoint).
			WithExpectedModules(cc.ExpectedModules).
			WithTimeout(cc.Timeout.Std()), nil

	case config.CheckLatency:
		endpoint, err := joinURL(target.BaseURL, cc.Path)
		if err != nil {
			return nil, err
		}
		threshold := time.Duration(cc.P95ThresholdMs) * time.Millisecond
		return NewLatencyChecker(endpoint, threshold).
			WithSamples(cc.Samples).
			WithTimeout(cc.Timeout.Std()), nil

	case config.CheckResource:
		endpoint, err := joinURL(target.BaseURL, cc.Path)
		if err != nil {
			return nil, err
		}
		return NewResourceChecker(endpoint, cc.CPUCeiling, cc.MemoryCeiling).
			WithTimeout(cc.Timeout.Std()), nil

	default:
		return nil, fmt.Errorf("unsupported check type: %s", cc.Type)
	}
}

func joinURL(base, path string) (string, error) {
	joined, err := url.JoinPath(base, path)
	if err != nil {
		return "", fmt.Errorf("invalid check URL: %w", err)
	}
	return joined, nil
}
