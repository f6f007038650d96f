package events

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// ManagerSink is the subset of the allocation manager's surface the intake
// drives. Implemented by *manager.Manager.
type ManagerSink interface {
	HandleStageSubmitted(stageID, attemptID int64, profileID, totalTasks int, localityHints map[string]int)
	HandleStageCompleted(stageID int64)
	HandleTaskStart(stageID, attemptID int64, taskIndex int, profileHint int)
	HandleTaskEnd(stageID, attemptID int64, taskIndex int, reason TaskEndReason)
	HandleSpeculativeTaskSubmitted(stageID int64)
	HandleExecutorRemoved(executorID string)
}

// MonitorSink is the subset of the executor monitor's surface the intake
// drives. *monitor.Monitor satisfies this directly.
type MonitorSink interface {
	Add(id, host string, profileID int)
	Remove(id string)
	TaskStart(id string)
	TaskEnd(id string)
}

// envelope pairs an event with the channel Post waits on for the ack once
// dispatch has finished running it through the sinks.
type envelope struct {
	ev   Event
	done chan struct{}
}

// Intake is the single-consumer event queue: a bounded channel drained by
// exactly one goroutine, so every listener observes a total order on
// events (spec §5). Public send methods may be called from any number of
// producer goroutines; only Run's internal loop touches the sinks.
type Intake struct {
	logger  hclog.Logger
	manager ManagerSink
	monitor MonitorSink

	events chan envelope
}

// New constructs an Intake with the given bounded queue depth, routing
// events to manager and monitor once Run is started.
func New(logger hclog.Logger, manager ManagerSink, monitor MonitorSink, queueDepth int) *Intake {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if queueDepth <= 0 {
		queueDepth = 1024
	}
	return &Intake{
		logger:  logger.Named("event_intake"),
		manager: manager,
		monitor: monitor,
		events:  make(chan envelope, queueDepth),
	}
}

// Run drains the event queue until ctx is cancelled. It is meant to be
// started in its own goroutine; on cancellation an event already being
// dispatched finishes first, and events still queued are not processed.
func (in *Intake) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-in.events:
			in.dispatch(env.ev)
			close(env.done)
		}
	}
}

// Post enqueues ev for processing and blocks until the single consumer
// goroutine has run it through both sinks (post-then-wait semantics, spec
// §9: "post-then-wait becomes send then await ack"). It returns false
// without blocking indefinitely if ctx is cancelled before the event is
// either accepted onto the queue or acknowledged as processed.
func (in *Intake) Post(ctx context.Context, ev Event) bool {
	env := envelope{ev: ev, done: make(chan struct{})}
	select {
	case in.events <- env:
	case <-ctx.Done():
		return false
	}

	select {
	case <-env.done:
		return true
	case <-ctx.Done():
		return false
	}
}

func (in *Intake) dispatch(ev Event) {
	switch e := ev.(type) {
	case StageSubmittedEvent:
		in.manager.HandleStageSubmitted(e.StageID, e.AttemptID, e.ProfileID, e.TotalTasks, e.LocalityHints)

	case StageCompletedEvent:
		in.manager.HandleStageCompleted(e.StageID)

	case TaskStartEvent:
		in.manager.HandleTaskStart(e.StageID, e.AttemptID, e.TaskIndex, 0)
		in.monitor.TaskStart(e.ExecutorID)

	case TaskEndEvent:
		in.manager.HandleTaskEnd(e.StageID, e.AttemptID, e.TaskIndex, e.Reason)
		in.monitor.TaskEnd(e.ExecutorID)

	case SpeculativeTaskSubmittedEvent:
		in.manager.HandleSpeculativeTaskSubmitted(e.StageID)

	case ExecutorAddedEvent:
		in.monitor.Add(e.ExecutorID, e.Host, e.ProfileID)

	case ExecutorRemovedEvent:
		in.manager.HandleExecutorRemoved(e.ExecutorID)
		in.monitor.Remove(e.ExecutorID)

	default:
		in.logger.Error("dropping event of unrecognised type", "type", fmt.Sprintf("%T", ev))
	}
}
