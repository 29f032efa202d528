package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requiredEnv(t *testing.T) {
	t.Setenv("QUEUE_URL", "https://sqs.us-east-1.amazonaws.com/000000000000/jobs")
	t.Setenv("TABLE_NAME", "jobs")
	t.Setenv("BUCKET_NAME", "zksync-worker")
}

func TestConfig_Load_DefaultValues(t *testing.T) {
	requiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, "us-east-1", cfg.AWSRegion)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 8, cfg.SubprocessLimit)
	assert.Equal(t, "/tmp/zksync-worker", cfg.WorkspaceRoot)
	assert.Equal(t, 24*time.Hour, cfg.RetentionInterval)
	assert.Equal(t, 10*time.Second, cfg.PurgatorySweepInterval)
	assert.Equal(t, 9090, cfg.MetricsPort)
	assert.Equal(t, "zksync-contract-worker", cfg.OTELServiceName)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestConfig_Load_CustomValues(t *testing.T) {
	requiredEnv(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("AWS_PROFILE", "zksync-worker")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("WORKER_COUNT", "16")
	t.Setenv("SUBPROCESS_LIMIT", "2")
	t.Setenv("WORKSPACE_ROOT", "/var/lib/zksync-worker")
	t.Setenv("RETENTION_INTERVAL", "48h")
	t.Setenv("PURGATORY_SWEEP_INTERVAL", "5s")
	t.Setenv("METRICS_PORT", "9091")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.AppEnv)
	assert.Equal(t, "zksync-worker", cfg.AWSProfile)
	assert.Equal(t, "eu-west-1", cfg.AWSRegion)
	assert.Equal(t, 16, cfg.WorkerCount)
	assert.Equal(t, 2, cfg.SubprocessLimit)
	assert.Equal(t, "/var/lib/zksync-worker", cfg.WorkspaceRoot)
	assert.Equal(t, 48*time.Hour, cfg.RetentionInterval)
	assert.Equal(t, 5*time.Second, cfg.PurgatorySweepInterval)
	assert.Equal(t, 9091, cfg.MetricsPort)
}

func TestConfig_Load_RequiresAWSBackends(t *testing.T) {
	_, err := Load()
	assert.Error(t, err, "QUEUE_URL/TABLE_NAME/BUCKET_NAME have no default and must be required")
}

func TestConfig_Load_ErrorOnBadDuration(t *testing.T) {
	requiredEnv(t)
	t.Setenv("RETENTION_INTERVAL", "not-a-duration")

	_, err := Load()
	assert.Error(t, err)
}

func TestConfig_IsDev_IsProd_IsTest(t *testing.T) {
	testCases := []struct {
		appEnv   string
		wantDev  bool
		wantProd bool
		wantTest bool
	}{
		{"dev", true, false, false},
		{"DEV", true, false, false},
		{"prod", false, true, false},
		{"test", false, false, true},
		{"", true, false, false}, // default value is "dev"
	}

	for _, tc := range testCases {
		t.Run(tc.appEnv, func(t *testing.T) {
			requiredEnv(t)
			if tc.appEnv != "" {
				t.Setenv("APP_ENV", tc.appEnv)
			}

			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, tc.wantDev, cfg.IsDev())
			assert.Equal(t, tc.wantProd, cfg.IsProd())
			assert.Equal(t, tc.wantTest, cfg.IsTest())
		})
	}
}
