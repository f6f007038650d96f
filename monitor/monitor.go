// Package monitor tracks the set of live executors, their busy/idle state,
// and how long each has been idle, so the allocation manager can identify
// executors eligible for removal once they cross the idle timeout.
package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-set/v3"
)

// Executor is the monitor's view of a single live executor process.
type Executor struct {
	ID        string
	Host      string
	ProfileID int

	runningTasks        int
	runningCachedBlocks int
	idleSince           time.Time
}

// RunningTasks returns the executor's current running-task count.
func (e Executor) RunningTasks() int { return e.runningTasks }

// RunningCachedBlocks returns the executor's current cached-block count.
func (e Executor) RunningCachedBlocks() int { return e.runningCachedBlocks }

// isIdle reports whether the executor has no running tasks and, when
// cachingAware is set, no cached blocks either (spec §3 Executor
// invariant).
func (e Executor) isIdle(cachingAware bool) bool {
	if e.runningTasks != 0 {
		return false
	}
	if cachingAware && e.runningCachedBlocks != 0 {
		return false
	}
	return true
}

// Monitor tracks live executors. It is safe for concurrent use; the
// allocation manager's tick and the event intake's single consumer
// goroutine both call into it.
type Monitor struct {
	logger       hclog.Logger
	clock        func() time.Time
	cachingAware bool

	mu        sync.Mutex
	executors map[string]*Executor
	byProfile map[int]*set.Set[string]
}

// New constructs an empty Monitor. logger may be nil, in which case a
// discarding logger is used. When cachingAware is true, an executor holding
// cached blocks is never considered idle even with zero running tasks.
func New(logger hclog.Logger, cachingAware bool) *Monitor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Monitor{
		logger:       logger.Named("executor_monitor"),
		clock:        time.Now,
		cachingAware: cachingAware,
		executors:    make(map[string]*Executor),
		byProfile:    make(map[int]*set.Set[string]),
	}
}

// Add registers a newly seen executor. Re-adding an id already tracked is a
// no-op (ExecutorAdded is idempotent per spec §4.5).
func (m *Monitor) Add(id, host string, profileID int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.executors[id]; ok {
		m.logger.Debug("ignoring duplicate executor add", "executor_id", id)
		return
	}
	m.executors[id] = &Executor{ID: id, Host: host, ProfileID: profileID, idleSince: m.clock()}
	m.profileSet(profileID).Insert(id)
}

// Remove forgets an executor. Removing an id not tracked is a silent no-op
// (§7 class 3: inconsistent event, tolerated).
func (m *Monitor) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.executors[id]
	if !ok {
		m.logger.Debug("ignoring removal of unknown executor", "executor_id", id)
		return
	}
	delete(m.executors, id)
	if s, ok := m.byProfile[e.ProfileID]; ok {
		s.Remove(id)
	}
}

// TaskStart marks one more task running on id. If this is the executor's
// first running task it is no longer idle. Unknown ids are tolerated.
func (m *Monitor) TaskStart(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.executors[id]
	if !ok {
		m.logger.Debug("task start on unknown executor", "executor_id", id)
		return
	}
	wasIdle := e.isIdle(m.cachingAware)
	e.runningTasks++
	if wasIdle && !e.isIdle(m.cachingAware) {
		e.idleSince = time.Time{}
	}
}

// CacheBlocksChanged sets the executor's cached-block count, re-deriving
// its idle status when cachingAware is enabled. Unknown ids are tolerated.
func (m *Monitor) CacheBlocksChanged(id string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.executors[id]
	if !ok {
		m.logger.Debug("cache update on unknown executor", "executor_id", id)
		return
	}
	wasIdle := e.isIdle(m.cachingAware)
	e.runningCachedBlocks = count
	nowIdle := e.isIdle(m.cachingAware)
	switch {
	case !wasIdle && nowIdle:
		e.idleSince = m.clock()
	case wasIdle && !nowIdle:
		e.idleSince = time.Time{}
	}
}

// TaskEnd marks one fewer task running on id. If the executor has no more
// running tasks it becomes idle as of now. Unknown ids are tolerated.
func (m *Monitor) TaskEnd(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.executors[id]
	if !ok {
		m.logger.Debug("task end on unknown executor", "executor_id", id)
		return
	}
	wasIdle := e.isIdle(m.cachingAware)
	if e.runningTasks > 0 {
		e.runningTasks--
	}
	if !wasIdle && e.isIdle(m.cachingAware) {
		e.idleSince = m.clock()
	}
}

// ExecutorCount returns the total number of live executors.
func (m *Monitor) ExecutorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.executors)
}

// RunningCount returns the number of live executors tagged with profileID.
func (m *Monitor) RunningCount(profileID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byProfile[profileID]
	if !ok {
		return 0
	}
	return s.Size()
}

// ProfileOf returns the resource profile id a live executor is tagged with.
func (m *Monitor) ProfileOf(id string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executors[id]
	if !ok {
		return 0, false
	}
	return e.ProfileID, true
}

// RunningIDs returns the ids of live executors tagged with profileID.
func (m *Monitor) RunningIDs(profileID int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byProfile[profileID]
	if !ok {
		return nil
	}
	return s.Slice()
}

// TimedOut returns the ids of idle executors whose idle duration has
// reached or exceeded idleTimeout, ordered by ascending idle-since time
// (ties broken by id) so removal order is deterministic.
func (m *Monitor) TimedOut(idleTimeout time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	var candidates []*Executor
	for _, e := range m.executors {
		if !e.isIdle(m.cachingAware) {
			continue
		}
		if now.Sub(e.idleSince) >= idleTimeout {
			candidates = append(candidates, e)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].idleSince.Equal(candidates[j].idleSince) {
			return candidates[i].idleSince.Before(candidates[j].idleSince)
		}
		return candidates[i].ID < candidates[j].ID
	})

	ids := make([]string, len(candidates))
	for i, e := range candidates {
		ids[i] = e.ID
	}
	return ids
}

// IsIdle reports whether the tracked executor is currently idle. The second
// return value is false if id is not tracked.
func (m *Monitor) IsIdle(id string) (idle bool, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executors[id]
	if !ok {
		return false, false
	}
	return e.isIdle(m.cachingAware), true
}

func (m *Monitor) profileSet(profileID int) *set.Set[string] {
	s, ok := m.byProfile[profileID]
	if !ok {
		s = set.New[string](0)
		m.byProfile[profileID] = s
	}
	return s
}

// SetClock overrides the monitor's time source; used by tests to control
// idle-timeout behaviour deterministically.
func (m *Monitor) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}
