package manager_test

import (
	"testing"
	"time"

	"github.com/shoenig/test/must"

	"github.com/fluxcompute/execalloc/manager"
)

func TestDecodeConfig_AppliesDefaultsAndOverrides(t *testing.T) {
	raw := map[string]any{
		"dynamicAllocation.enabled":             true,
		"dynamicAllocation.minExecutors":        2,
		"dynamicAllocation.maxExecutors":        50,
		"dynamicAllocation.initialExecutors":    4,
		"dynamicAllocation.executorIdleTimeout": "30s",
	}

	cfg, err := manager.DecodeConfig(raw)
	must.NoError(t, err)

	must.True(t, cfg.Enabled)
	must.Eq(t, 2, cfg.MinExecutors)
	must.Eq(t, 50, cfg.MaxExecutors)
	must.Eq(t, 4, cfg.InitialExecutors)
	must.Eq(t, 30*time.Second, cfg.ExecutorIdleTimeout)

	// Untouched keys keep their defaults.
	must.Eq(t, time.Second, cfg.SchedulerBacklogTimeout)
	must.Eq(t, 1.0, cfg.ExecutorAllocationRatio)
}

func TestDecodeConfig_SustainedBacklogFallsBackToBacklogTimeout(t *testing.T) {
	raw := map[string]any{
		"dynamicAllocation.schedulerBacklogTimeout": "2s",
	}
	cfg, err := manager.DecodeConfig(raw)
	must.NoError(t, err)
	must.Eq(t, 2*time.Second, cfg.SchedulerBacklogTimeout)
	must.Eq(t, 2*time.Second, cfg.SustainedSchedulerBacklogTimeout)
}

func TestConfig_Validate_AggregatesEveryViolation(t *testing.T) {
	cfg := manager.DefaultConfig()
	cfg.MinExecutors = 10
	cfg.MaxExecutors = 5
	cfg.InitialExecutors = 50
	cfg.ExecutorAllocationRatio = 2
	cfg.ExecutorCores = 0
	cfg.TaskCPUs = 0

	err := cfg.Validate()
	must.Error(t, err)

	cfgErr, ok := err.(*manager.ConfigError)
	must.True(t, ok)
	must.Greater(t, 1, len(cfgErr.Errors.Errors))
}

func TestConfig_Validate_AcceptsDefaults(t *testing.T) {
	cfg := manager.DefaultConfig()
	must.NoError(t, cfg.Validate())
}
