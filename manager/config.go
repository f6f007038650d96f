package manager

import (
	"fmt"
	"math"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-multierror"
)

// NoMaxExecutors represents an unbounded dynamicAllocation.maxExecutors
// (spec §6 default: "∞").
const NoMaxExecutors = math.MaxInt32

// Config is the controller's immutable-after-start configuration, matching
// the dynamicAllocation.* and executor/task sizing keys in spec §6.
type Config struct {
	Enabled bool `mapstructure:"dynamicAllocation.enabled"`

	MinExecutors     int `mapstructure:"dynamicAllocation.minExecutors"`
	MaxExecutors     int `mapstructure:"dynamicAllocation.maxExecutors"`
	InitialExecutors int `mapstructure:"dynamicAllocation.initialExecutors"`

	SchedulerBacklogTimeout          time.Duration `mapstructure:"dynamicAllocation.schedulerBacklogTimeout"`
	SustainedSchedulerBacklogTimeout time.Duration `mapstructure:"dynamicAllocation.sustainedSchedulerBacklogTimeout"`
	ExecutorIdleTimeout              time.Duration `mapstructure:"dynamicAllocation.executorIdleTimeout"`
	ExecutorAllocationRatio          float64       `mapstructure:"dynamicAllocation.executorAllocationRatio"`

	ExecutorCores int `mapstructure:"executor.cores"`
	TaskCPUs      int `mapstructure:"task.cpus"`

	// TickInterval is the period of the periodic schedule tick (spec §3
	// global configuration); not a dynamicAllocation.* key but carried the
	// same way.
	TickInterval time.Duration `mapstructure:"dynamicAllocation.tickInterval"`

	// CachingAware controls whether the executor monitor treats cached
	// blocks as blocking idle eligibility (spec §3 Executor invariant).
	CachingAware bool `mapstructure:"dynamicAllocation.cachingAware"`
}

// DefaultConfig returns the spec §6 defaults. SustainedSchedulerBacklogTimeout
// defaults equal to SchedulerBacklogTimeout per spec §6 ("default =
// schedulerBacklogTimeout"), so a Config built directly from DefaultConfig()
// (without going through DecodeConfig) is already internally consistent and
// passes Validate().
func DefaultConfig() Config {
	return Config{
		Enabled:                          false,
		MinExecutors:                     0,
		MaxExecutors:                     NoMaxExecutors,
		InitialExecutors:                 0,
		SchedulerBacklogTimeout:          time.Second,
		SustainedSchedulerBacklogTimeout: time.Second,
		ExecutorIdleTimeout:              60 * time.Second,
		ExecutorAllocationRatio:          1.0,
		ExecutorCores:                    1,
		TaskCPUs:                         1,
		TickInterval:                     100 * time.Millisecond,
		CachingAware:                     false,
	}
}

// DecodeConfig decodes raw (typically parsed from a config file or flags by
// a layer outside this module's scope) over DefaultConfig(), using
// mapstructure with a string-to-duration hook so "1s"/"60s"-style values
// decode into time.Duration fields. If raw overrides schedulerBacklogTimeout
// without also overriding sustainedSchedulerBacklogTimeout, the latter
// tracks the former (spec §6 default relationship) rather than keeping
// DefaultConfig's value.
func DecodeConfig(raw map[string]any) (Config, error) {
	cfg := DefaultConfig()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Config{}, fmt.Errorf("building config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	if _, overridden := raw["dynamicAllocation.sustainedSchedulerBacklogTimeout"]; !overridden {
		cfg.SustainedSchedulerBacklogTimeout = cfg.SchedulerBacklogTimeout
	}
	if _, overridden := raw["dynamicAllocation.initialExecutors"]; !overridden {
		cfg.InitialExecutors = cfg.MinExecutors
	}
	return cfg, nil
}

// ConfigError aggregates every configuration validation failure found by
// Validate, rather than stopping at the first (spec §7 class 1: "fail fast
// with a descriptive error").
type ConfigError struct {
	Errors *multierror.Error
}

func (e *ConfigError) Error() string { return e.Errors.Error() }

// Unwrap exposes the underlying *multierror.Error for errors.Is/As.
func (e *ConfigError) Unwrap() error { return e.Errors }

// Validate checks the bounds spec §4.1 start() and §6 require, aggregating
// every violation into a single ConfigError.
func (c Config) Validate() error {
	var me *multierror.Error

	if c.MinExecutors < 0 {
		me = multierror.Append(me, fmt.Errorf("minExecutors must be >= 0, got %d", c.MinExecutors))
	}
	if c.MaxExecutors < 0 {
		me = multierror.Append(me, fmt.Errorf("maxExecutors must be >= 0, got %d", c.MaxExecutors))
	}
	if c.MinExecutors > c.MaxExecutors {
		me = multierror.Append(me, fmt.Errorf("minExecutors (%d) must be <= maxExecutors (%d)", c.MinExecutors, c.MaxExecutors))
	}
	if c.InitialExecutors < c.MinExecutors || c.InitialExecutors > c.MaxExecutors {
		me = multierror.Append(me, fmt.Errorf("initialExecutors (%d) must be within [minExecutors, maxExecutors] = [%d, %d]", c.InitialExecutors, c.MinExecutors, c.MaxExecutors))
	}
	if c.ExecutorAllocationRatio <= 0 || c.ExecutorAllocationRatio > 1 {
		me = multierror.Append(me, fmt.Errorf("executorAllocationRatio must be in (0, 1], got %v", c.ExecutorAllocationRatio))
	}
	if c.ExecutorCores < 1 {
		me = multierror.Append(me, fmt.Errorf("executor.cores must be >= 1, got %d", c.ExecutorCores))
	}
	if c.TaskCPUs < 1 {
		me = multierror.Append(me, fmt.Errorf("task.cpus must be >= 1, got %d", c.TaskCPUs))
	}
	if c.SchedulerBacklogTimeout <= 0 {
		me = multierror.Append(me, fmt.Errorf("schedulerBacklogTimeout must be > 0, got %s", c.SchedulerBacklogTimeout))
	}
	if c.SustainedSchedulerBacklogTimeout <= 0 {
		me = multierror.Append(me, fmt.Errorf("sustainedSchedulerBacklogTimeout must be > 0, got %s", c.SustainedSchedulerBacklogTimeout))
	}
	if c.ExecutorIdleTimeout <= 0 {
		me = multierror.Append(me, fmt.Errorf("executorIdleTimeout must be > 0, got %s", c.ExecutorIdleTimeout))
	}
	if c.TickInterval <= 0 {
		me = multierror.Append(me, fmt.Errorf("tickInterval must be > 0, got %s", c.TickInterval))
	}

	if me.ErrorOrNil() == nil {
		return nil
	}
	return &ConfigError{Errors: me}
}
