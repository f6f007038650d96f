// Package events normalises inbound scheduler events — stage and task
// lifecycle, speculative submissions, executor lifecycle — and routes them
// to the allocation manager and executor monitor over a single-consumer
// queue, per spec §4.5 and §9 ("model as a bounded channel drained by one
// worker").
package events

import "time"

// Kind discriminates the event payload types below.
type Kind int

const (
	KindStageSubmitted Kind = iota
	KindStageCompleted
	KindTaskStart
	KindTaskEnd
	KindSpeculativeTaskSubmitted
	KindExecutorAdded
	KindExecutorRemoved
)

func (k Kind) String() string {
	switch k {
	case KindStageSubmitted:
		return "StageSubmitted"
	case KindStageCompleted:
		return "StageCompleted"
	case KindTaskStart:
		return "TaskStart"
	case KindTaskEnd:
		return "TaskEnd"
	case KindSpeculativeTaskSubmitted:
		return "SpeculativeTaskSubmitted"
	case KindExecutorAdded:
		return "ExecutorAdded"
	case KindExecutorRemoved:
		return "ExecutorRemoved"
	default:
		return "Unknown"
	}
}

// Event is any inbound scheduler event. Every event carries a monotonic
// timestamp and a discriminated kind (spec §6).
type Event interface {
	Kind() Kind
	Time() time.Time
}

type base struct {
	At time.Time
}

func (b base) Time() time.Time { return b.At }

// StageSubmittedEvent announces a new stage attempt with its task count and
// per-host locality hints.
type StageSubmittedEvent struct {
	base
	StageID       int64
	AttemptID     int64
	ProfileID     int
	TotalTasks    int
	LocalityHints map[string]int // host -> count of tasks preferring that host
}

func (StageSubmittedEvent) Kind() Kind { return KindStageSubmitted }

// StageCompletedEvent marks a stage's attempts as zombies: their running
// tasks keep counting toward running totals until each task terminates,
// while their not-yet-started tasks stop counting as pending.
type StageCompletedEvent struct {
	base
	StageID int64
}

func (StageCompletedEvent) Kind() Kind { return KindStageCompleted }

// TaskStartEvent marks a task index as running within a stage attempt.
type TaskStartEvent struct {
	base
	StageID    int64
	AttemptID  int64
	TaskIndex  int
	ExecutorID string
}

func (TaskStartEvent) Kind() Kind { return KindTaskStart }

// TaskEndReason classifies how a task terminated.
type TaskEndReason int

const (
	// TaskEndSuccess is the only reason that does not return the task to
	// the attempt's pending set.
	TaskEndSuccess TaskEndReason = iota
	TaskEndFailed
	TaskEndKilled
	TaskEndFetchFailed
	TaskEndLost
)

// Resubmits reports whether a task ending for this reason should be put
// back in its stage attempt's not-yet-started set. Spec §9 Open Question 1
// resolves this conservatively: every non-Success reason resubmits,
// matching the source's ExceptionFailure handling generalised to the whole
// reason space rather than special-cased per reason.
func (r TaskEndReason) Resubmits() bool { return r != TaskEndSuccess }

// TaskEndEvent marks a task index as terminated within a stage attempt.
type TaskEndEvent struct {
	base
	StageID    int64
	AttemptID  int64
	TaskIndex  int
	Reason     TaskEndReason
	ExecutorID string
}

func (TaskEndEvent) Kind() Kind { return KindTaskEnd }

// SpeculativeTaskSubmittedEvent announces a speculative copy of a running
// task was submitted for a stage.
type SpeculativeTaskSubmittedEvent struct {
	base
	StageID int64
}

func (SpeculativeTaskSubmittedEvent) Kind() Kind { return KindSpeculativeTaskSubmitted }

// ExecutorAddedEvent announces a new executor process.
type ExecutorAddedEvent struct {
	base
	ExecutorID string
	Host       string
	ProfileID  int
}

func (ExecutorAddedEvent) Kind() Kind { return KindExecutorAdded }

// ExecutorRemovedEvent announces an executor process has gone away.
type ExecutorRemovedEvent struct {
	base
	ExecutorID string
}

func (ExecutorRemovedEvent) Kind() Kind { return KindExecutorRemoved }

// Each New* constructor below stamps its event with the given at time;
// callers typically pass time.Now().

func NewStageSubmitted(at time.Time, stageID, attemptID int64, profileID, totalTasks int, localityHints map[string]int) StageSubmittedEvent {
	return StageSubmittedEvent{base: base{at}, StageID: stageID, AttemptID: attemptID, ProfileID: profileID, TotalTasks: totalTasks, LocalityHints: localityHints}
}

func NewStageCompleted(at time.Time, stageID int64) StageCompletedEvent {
	return StageCompletedEvent{base: base{at}, StageID: stageID}
}

func NewTaskStart(at time.Time, stageID, attemptID int64, taskIndex int, executorID string) TaskStartEvent {
	return TaskStartEvent{base: base{at}, StageID: stageID, AttemptID: attemptID, TaskIndex: taskIndex, ExecutorID: executorID}
}

func NewTaskEnd(at time.Time, stageID, attemptID int64, taskIndex int, reason TaskEndReason, executorID string) TaskEndEvent {
	return TaskEndEvent{base: base{at}, StageID: stageID, AttemptID: attemptID, TaskIndex: taskIndex, Reason: reason, ExecutorID: executorID}
}

func NewSpeculativeTaskSubmitted(at time.Time, stageID int64) SpeculativeTaskSubmittedEvent {
	return SpeculativeTaskSubmittedEvent{base: base{at}, StageID: stageID}
}

func NewExecutorAdded(at time.Time, executorID, host string, profileID int) ExecutorAddedEvent {
	return ExecutorAddedEvent{base: base{at}, ExecutorID: executorID, Host: host, ProfileID: profileID}
}

func NewExecutorRemoved(at time.Time, executorID string) ExecutorRemovedEvent {
	return ExecutorRemovedEvent{base: base{at}, ExecutorID: executorID}
}
