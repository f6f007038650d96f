// Command execallocd wires the allocation controller's packages together
// against a fake cluster client and a small synthetic workload generator, so
// the whole stack can be exercised end to end without a real cluster
// manager to talk to.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	uuid "github.com/hashicorp/go-uuid"

	"github.com/fluxcompute/execalloc/cluster"
	"github.com/fluxcompute/execalloc/events"
	"github.com/fluxcompute/execalloc/manager"
	"github.com/fluxcompute/execalloc/monitor"
	"github.com/fluxcompute/execalloc/profile"
)

func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "execallocd",
		Level: hclog.Info,
	})

	cfg, err := manager.DecodeConfig(map[string]any{
		"dynamicAllocation.enabled":          true,
		"dynamicAllocation.minExecutors":     1,
		"dynamicAllocation.maxExecutors":     16,
		"dynamicAllocation.initialExecutors": 2,
	})
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	registry := profile.NewRegistry(
		profile.ExecutorRequirements{Cores: cfg.ExecutorCores, MemoryMB: 4096},
		profile.TaskRequirements{CPUs: cfg.TaskCPUs},
	)
	mon := monitor.New(logger, cfg.CachingAware)
	client := cluster.NewFake()
	mgr := manager.New(logger, cfg, registry, mon, client)
	intake := events.New(logger, mgr, mon, 256)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mgr.Start(ctx); err != nil {
		logger.Error("failed to start allocation manager", "error", err)
		os.Exit(1)
	}
	defer mgr.Stop()

	go intake.Run(ctx)
	go runDemoWorkload(ctx, logger, intake, client, mon, registry.Default())

	<-ctx.Done()
	logger.Info("shutting down")
}

// runDemoWorkload feeds a small synthetic stage through the intake every few
// seconds, standing in for a real scheduler's event stream, and registers one
// fresh fake executor each round to run that stage's tasks.
func runDemoWorkload(ctx context.Context, logger hclog.Logger, intake *events.Intake, client *cluster.Fake, mon *monitor.Monitor, profileID int) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var stageID int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stageID++
			id, err := uuid.GenerateUUID()
			if err != nil {
				logger.Warn("failed to generate executor id", "error", err)
				continue
			}

			if !intake.Post(ctx, events.NewExecutorAdded(time.Now(), id, "demo-host", profileID)) {
				return
			}
			client.MarkActive(id)

			if !intake.Post(ctx, events.NewStageSubmitted(time.Now(), stageID, 0, profileID, 4, nil)) {
				return
			}
			for i := 0; i < 4; i++ {
				if !intake.Post(ctx, events.NewTaskStart(time.Now(), stageID, 0, i, id)) {
					return
				}
			}
			logger.Info("submitted demo stage", "stage_id", stageID, "executor_id", id, "running_executors", mon.ExecutorCount())
		}
	}
}
