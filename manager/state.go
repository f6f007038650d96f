package manager

import (
	"github.com/hashicorp/go-set/v3"
)

// attemptKey identifies one stage attempt.
type attemptKey struct {
	stageID   int64
	attemptID int64
}

// stageAttempt tracks a single stage attempt's outstanding and running task
// indices. Once a stage completes, its current attempt(s) become zombies:
// their not-yet-started tasks are dropped, their running tasks keep counting
// toward the running total until they terminate individually, and a zombie
// attempt's ended tasks never return to notStarted (spec §3, scenario 6).
type stageAttempt struct {
	profileID int

	notStarted *set.Set[int]
	running    *set.Set[int]

	// localityHosts/localityTotal snapshot the locality hint counts given at
	// submission time, so HandleStageCompleted can decrement the right
	// per-profile locality aggregate without re-deriving it later.
	localityHosts map[string]int
	localityTotal int

	zombie bool
}

func newStageAttempt(profileID, totalTasks int, localityHints map[string]int) *stageAttempt {
	notStarted := set.New[int](totalTasks)
	for i := 0; i < totalTasks; i++ {
		notStarted.Insert(i)
	}
	hosts := make(map[string]int, len(localityHints))
	total := 0
	for host, n := range localityHints {
		hosts[host] = n
		total += n
	}
	return &stageAttempt{
		profileID:     profileID,
		notStarted:    notStarted,
		running:       set.New[int](0),
		localityHosts: hosts,
		localityTotal: total,
	}
}

func (a *stageAttempt) done() bool {
	return a.notStarted.Empty() && a.running.Empty()
}

// perProfileState is the controller's per-resource-profile bookkeeping:
// target executor count, pending additions/removals, and the backlog
// aggregates that feed maxNeededLocked (spec §4.1, §4.2).
type perProfileState struct {
	target          int
	toAdd           int
	pendingToRemove *set.Set[string]

	pendingTasks       int
	runningTasks       int
	pendingSpeculative int

	localityAwareTasks int
	hostToLocalTasks   map[string]int
}

func newPerProfileState() *perProfileState {
	return &perProfileState{
		toAdd:            1,
		pendingToRemove:  set.New[string](0),
		hostToLocalTasks: make(map[string]int),
	}
}

// addLocality folds a stage attempt's locality hints into this profile's
// running totals (called on stage submission).
func (ps *perProfileState) addLocality(total int, hosts map[string]int) {
	ps.localityAwareTasks += total
	for host, n := range hosts {
		ps.hostToLocalTasks[host] += n
	}
}

// removeLocality reverses addLocality (called once a stage's attempt is
// marked zombie, so completed stages stop inflating locality preference).
func (ps *perProfileState) removeLocality(total int, hosts map[string]int) {
	ps.localityAwareTasks -= total
	for host, n := range hosts {
		ps.hostToLocalTasks[host] -= n
		if ps.hostToLocalTasks[host] <= 0 {
			delete(ps.hostToLocalTasks, host)
		}
	}
}

// backlogSnapshot is a point-in-time read of a profile's tick-relevant
// counters, used by Manager.Snapshot and tests.
type backlogSnapshot struct {
	Target             int
	ToAdd              int
	PendingToRemove    []string
	PendingTasks       int
	RunningTasks       int
	PendingSpeculative int
	LocalityAwareTasks int
	HostToLocalTasks   map[string]int
}

func (ps *perProfileState) snapshot() backlogSnapshot {
	hosts := make(map[string]int, len(ps.hostToLocalTasks))
	for h, n := range ps.hostToLocalTasks {
		hosts[h] = n
	}
	return backlogSnapshot{
		Target:             ps.target,
		ToAdd:              ps.toAdd,
		PendingToRemove:    ps.pendingToRemove.Slice(),
		PendingTasks:       ps.pendingTasks,
		RunningTasks:       ps.runningTasks,
		PendingSpeculative: ps.pendingSpeculative,
		LocalityAwareTasks: ps.localityAwareTasks,
		HostToLocalTasks:   hosts,
	}
}

// clampInt bounds v to [lo, hi].
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
