package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenlight-sh/greenlight/pkg/types"
)

const validYAML = `
data_dir: /var/lib/greenlight
listen_addr: 127.0.0.1:8080
log:
  level: debug
  json: true
deployer:
  endpoint: http://deployer.internal/hooks/deploy
  timeout: 2m
router:
  endpoint: http://lb.internal/admin/weights
gate:
  timeout_budget: 45s
  retry_backoff: 3s
environments:
  blue:
    base_url: http://blue.internal:9000
    datastore_addr: blue-db.internal:5432
  green:
    base_url: http://green.internal:9000
    datastore_addr: green-db.internal:5432
checks:
  - name: liveness
    type: http
    path: /health
    mandatory: true
    timeout: 5s
    retries: 2
  - name: latency
    type: latency
    path: /
    p95_threshold_ms: 250
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "greenlight.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/greenlight", cfg.DataDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2*time.Minute, cfg.Deployer.Timeout.Std())
	assert.Equal(t, 45*time.Second, cfg.Gate.TimeoutBudget.Std())
	assert.Equal(t, 3*time.Second, cfg.Gate.RetryBackoff.Std())

	require.Len(t, cfg.Environments, 2)
	assert.Equal(t, "http://blue.internal:9000", cfg.Environments[types.EnvironmentBlue].BaseURL)
	assert.Equal(t, "green-db.internal:5432", cfg.Environments[types.EnvironmentGreen].DatastoreAddr)

	require.Len(t, cfg.Checks, 2)
	assert.Equal(t, CheckHTTP, cfg.Checks[0].Type)
	assert.True(t, cfg.Checks[0].Mandatory)
	assert.Equal(t, 2, cfg.Checks[0].Retries)
}

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	// Unset values fall back to defaults
	assert.Equal(t, 10*time.Second, cfg.Router.Timeout.Std())
	assert.Equal(t, 15*time.Second, cfg.Gate.PostSwitchBudget.Std())

	// Per-check defaults
	latency := cfg.Checks[1]
	assert.Equal(t, 10*time.Second, latency.Timeout.Std())
	assert.Equal(t, 10, latency.Samples)
	assert.Equal(t, 200, latency.StatusMin)
	assert.Equal(t, 299, latency.StatusMax)
}

func TestLoad_ExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("GREENLIGHT_TEST_DATA_DIR", "/tmp/greenlight-test")

	cfg, err := Load(writeConfig(t, `
data_dir: ${GREENLIGHT_TEST_DATA_DIR}
listen_addr: 127.0.0.1:8080
deployer:
  endpoint: http://deployer.internal/hooks/deploy
router:
  endpoint: http://lb.internal/admin/weights
environments:
  blue:
    base_url: http://blue.internal:9000
    datastore_addr: blue-db.internal:5432
  green:
    base_url: http://green.internal:9000
    datastore_addr: green-db.internal:5432
checks:
  - name: liveness
    type: http
    path: /health
    mandatory: true
`))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/greenlight-test", cfg.DataDir)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidConfigs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			"bad duration",
			`
data_dir: /var/lib/greenlight
listen_addr: 127.0.0.1:8080
deployer:
  endpoint: http://deployer.internal/deploy
  timeout: fortnight
router:
  endpoint: http://lb.internal/weights
environments:
  blue: {base_url: http://blue:9000, datastore_addr: db:5432}
  green: {base_url: http://green:9000, datastore_addr: db:5432}
checks:
  - {name: liveness, type: http, mandatory: true}
`,
		},
		{
			"unknown environment name",
			`
data_dir: /var/lib/greenlight
listen_addr: 127.0.0.1:8080
deployer:
  endpoint: http://deployer.internal/deploy
router:
  endpoint: http://lb.internal/weights
environments:
  blue: {base_url: http://blue:9000, datastore_addr: db:5432}
  purple: {base_url: http://purple:9000, datastore_addr: db:5432}
checks:
  - {name: liveness, type: http, mandatory: true}
`,
		},
		{
			"single environment",
			`
data_dir: /var/lib/greenlight
listen_addr: 127.0.0.1:8080
deployer:
  endpoint: http://deployer.internal/deploy
router:
  endpoint: http://lb.internal/weights
environments:
  blue: {base_url: http://blue:9000, datastore_addr: db:5432}
checks:
  - {name: liveness, type: http, mandatory: true}
`,
		},
		{
			"no checks",
			`
data_dir: /var/lib/greenlight
listen_addr: 127.0.0.1:8080
deployer:
  endpoint: http://deployer.internal/deploy
router:
  endpoint: http://lb.internal/weights
environments:
  blue: {base_url: http://blue:9000, datastore_addr: db:5432}
  green: {base_url: http://green:9000, datastore_addr: db:5432}
checks: []
`,
		},
		{
			"duplicate check names",
			`
data_dir: /var/lib/greenlight
listen_addr: 127.0.0.1:8080
deployer:
  endpoint: http://deployer.internal/deploy
router:
  endpoint: http://lb.internal/weights
environments:
  blue: {base_url: http://blue:9000, datastore_addr: db:5432}
  green: {base_url: http://green:9000, datastore_addr: db:5432}
checks:
  - {name: liveness, type: http, mandatory: true}
  - {name: liveness, type: tcp, mandatory: true}
`,
		},
		{
			"unsupported check type",
			`
data_dir: /var/lib/greenlight
listen_addr: 127.0.0.1:8080
deployer:
  endpoint: http://deployer.internal/deploy
router:
  endpoint: http://lb.internal/weights
environments:
  blue: {base_url: http://blue:9000, datastore_addr: db:5432}
  green: {base_url: http://green:9000, datastore_addr: db:5432}
checks:
  - {name: liveness, type: icmp, mandatory: true}
`,
		},
		{
			"retries over limit",
			`
data_dir: /var/lib/greenlight
listen_addr: 127.0.0.1:8080
deployer:
  endpoint: http://deployer.internal/deploy
router:
  endpoint: http://lb.internal/weights
environments:
  blue: {base_url: http://blue:9000, datastore_addr: db:5432}
  green: {base_url: http://green:9000, datastore_addr: db:5432}
checks:
  - {name: liveness, type: http, mandatory: true, retries: 5}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestDuration_RoundTrip(t *testing.T) {
	d := Duration(90 * time.Second)
	out, err := d.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", out)
}
