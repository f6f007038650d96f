// Package manager implements the dynamic executor allocation controller: it
// watches scheduler backlog and executor idleness, decides a target executor
// count per resource profile, and drives a cluster.Client to converge on
// that target. The core tick logic mirrors Spark's ExecutorAllocationManager
// ramp-up/ramp-down algorithm, generalised across resource profiles.
package manager

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/fluxcompute/execalloc/cluster"
	"github.com/fluxcompute/execalloc/events"
	"github.com/fluxcompute/execalloc/monitor"
	"github.com/fluxcompute/execalloc/profile"
)

// Manager is the dynamic allocation controller. It implements
// events.ManagerSink and is otherwise driven by its own periodic Tick.
type Manager struct {
	logger hclog.Logger
	clock  func() time.Time

	cfg      Config
	registry *profile.Registry
	mon      *monitor.Monitor
	client   cluster.Client

	// rpcMu serialises the actual cluster RPC round so Reset can wait for
	// any in-flight request before clearing state (spec §9 Open Question
	// 2: reset() must not race an outstanding RPC).
	rpcMu sync.Mutex

	mu            sync.Mutex
	profiles      map[int]*perProfileState
	attempts      map[attemptKey]*stageAttempt
	stageAttempts map[int64][]attemptKey
	addTime       time.Time

	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a Manager. logger may be nil. registry supplies resource
// profile definitions; mon tracks live executors; client is the cluster RPC
// boundary.
func New(logger hclog.Logger, cfg Config, registry *profile.Registry, mon *monitor.Monitor, client cluster.Client) *Manager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Manager{
		logger:        logger.Named("alloc_manager"),
		clock:         time.Now,
		cfg:           cfg,
		registry:      registry,
		mon:           mon,
		client:        client,
		profiles:      make(map[int]*perProfileState),
		attempts:      make(map[attemptKey]*stageAttempt),
		stageAttempts: make(map[int64][]attemptKey),
	}
}

// Start validates the configuration, seeds the default profile's target at
// InitialExecutors, and launches the periodic tick loop. Start is a no-op if
// already started.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.profileLocked(profile.DefaultID).target = m.cfg.InitialExecutors
	m.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go m.runLoop(runCtx)

	m.logger.Info("allocation manager started",
		"min_executors", m.cfg.MinExecutors,
		"max_executors", m.cfg.MaxExecutors,
		"initial_executors", m.cfg.InitialExecutors,
	)
	return nil
}

// Stop cancels the tick loop and waits for it to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Manager) runLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(m.clock())
		}
	}
}

// Reset clears all profile targets, ramp state, and tracked stage attempts,
// first waiting for any in-flight cluster RPC so a concurrent doUpdateRequest
// cannot observe or clobber state Reset is in the middle of clearing.
func (m *Manager) Reset() {
	m.rpcMu.Lock()
	defer m.rpcMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.profiles = make(map[int]*perProfileState)
	m.attempts = make(map[attemptKey]*stageAttempt)
	m.stageAttempts = make(map[int64][]attemptKey)
	m.addTime = time.Time{}
	m.logger.Debug("allocation manager reset")
}

// RequestTotalExecutors returns the controller's current target for the
// given resource profile. Querying a profile id the controller has never
// tracked returns the zero-valued defaults without recording the id.
func (m *Manager) RequestTotalExecutors(profileID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profileViewLocked(profileID).target
}

// Snapshot is a point-in-time, read-only view of every tracked profile's
// state (spec §6 inspection surface).
type Snapshot struct {
	AddTimeSet bool
	Profiles   map[int]backlogSnapshot
}

// Snapshot returns the controller's full observable state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := Snapshot{AddTimeSet: !m.addTime.IsZero(), Profiles: make(map[int]backlogSnapshot, len(m.profiles))}
	for pid, ps := range m.profiles {
		out.Profiles[pid] = ps.snapshot()
	}
	return out
}

// profileLocked returns profileID's tracked state, creating it (seeded with
// toAdd=1, spec §3) if this is the first time the controller has seen it.
// Callers must already have established profileID is one the
// ResourceProfileRegistry actually assigned — it is used from tick-internal
// code and event handlers that validate the id first, never from the
// read-only inspection accessors below.
func (m *Manager) profileLocked(profileID int) *perProfileState {
	ps, ok := m.profiles[profileID]
	if !ok {
		ps = newPerProfileState()
		m.profiles[profileID] = ps
	}
	return ps
}

// profileViewLocked returns profileID's tracked state without creating or
// recording an entry for it, so a read-only query (spec §6 inspection
// surface) about a profile id the controller has never tracked — including
// one the registry never assigned — cannot fabricate state as a side
// effect. Unlike profileLocked, the returned state for an untracked id is
// never stored in m.profiles.
func (m *Manager) profileViewLocked(profileID int) *perProfileState {
	if ps, ok := m.profiles[profileID]; ok {
		return ps
	}
	return newPerProfileState()
}

// tasksPerExecutor looks up profileID's task-to-executor ratio. A profile id
// the registry never assigned is a programmer error (spec §7 class 4): it
// is logged at Error and treated as one task per executor so callers still
// get a finite, if conservative, maxNeeded rather than dividing by zero.
func (m *Manager) tasksPerExecutor(profileID int) int {
	p, ok := m.registry.Lookup(profileID)
	if !ok {
		m.logger.Error("resource profile not found", "profile_id", profileID)
		return 1
	}
	return p.TasksPerExecutor()
}

// maxNeededFor computes how many executors ps's workload needs to run every
// pending, running, and pending-speculative task at the configured
// allocation ratio (spec §3). profileID is only used to look up the
// profile's tasksPerExecutor; ps must already be the caller's state for it.
func (m *Manager) maxNeededFor(ps *perProfileState, profileID int) int {
	numTasks := ps.pendingTasks + ps.runningTasks + ps.pendingSpeculative
	tasksPerExecutor := m.tasksPerExecutor(profileID)
	needed := int(math.Ceil(float64(numTasks) * m.cfg.ExecutorAllocationRatio / float64(tasksPerExecutor)))
	return clampInt(needed, m.cfg.MinExecutors, m.cfg.MaxExecutors)
}

// maxNeededLocked is maxNeededFor for a profile id already tracked in
// m.profiles (tick-internal use; profileLocked is safe here because every
// pid this is called with already passed validation at the point it first
// entered m.profiles).
func (m *Manager) maxNeededLocked(profileID int) int {
	return m.maxNeededFor(m.profileLocked(profileID), profileID)
}

func (m *Manager) totalPendingLocked() int {
	total := 0
	for _, ps := range m.profiles {
		total += ps.pendingTasks
	}
	return total
}

// onSchedulerBackloggedLocked starts the add timer if it is not already
// running, resetting every profile's ramp-up step to 1 (spec §4.1).
func (m *Manager) onSchedulerBackloggedLocked(now time.Time) {
	if !m.addTime.IsZero() {
		return
	}
	m.addTime = now.Add(m.cfg.SchedulerBacklogTimeout)
	for _, ps := range m.profiles {
		ps.toAdd = 1
	}
}

// onSchedulerQueueEmptyLocked stops the add timer and resets every profile's
// ramp-up step, called once the aggregate backlog across all profiles drops
// to zero.
func (m *Manager) onSchedulerQueueEmptyLocked() {
	m.addTime = time.Time{}
	for _, ps := range m.profiles {
		ps.toAdd = 1
	}
}

// syncBacklogTimerLocked re-evaluates the add timer after a change to any
// profile's pendingTasks count.
func (m *Manager) syncBacklogTimerLocked(now time.Time) {
	if m.totalPendingLocked() > 0 {
		m.onSchedulerBackloggedLocked(now)
	} else {
		m.onSchedulerQueueEmptyLocked()
	}
}

// addExecutorsLocked ramps profile pid's target toward maxNeeded, doubling
// its step on every successful round and resetting to 1 once the target
// catches up (mirrors Spark's addExecutors exactly).
func (m *Manager) addExecutorsLocked(profileID, maxNeeded int) int {
	ps := m.profileLocked(profileID)
	if ps.target >= maxNeeded {
		ps.toAdd = 1
		return 0
	}
	old := ps.target
	want := clampInt(old+ps.toAdd, m.cfg.MinExecutors, maxNeeded)
	ps.target = clampInt(want, m.cfg.MinExecutors, m.cfg.MaxExecutors)
	if ps.target >= old+ps.toAdd {
		ps.toAdd *= 2
	} else {
		ps.toAdd = 1
	}
	return ps.target - old
}

// selectSurplusCandidatesLocked deterministically picks up to n running,
// not-already-pending-removal executor ids for profile pid, for the
// target-driven shrink path.
func (m *Manager) selectSurplusCandidatesLocked(profileID, n int) []string {
	if n <= 0 {
		return nil
	}
	ps := m.profileLocked(profileID)
	ids := m.mon.RunningIDs(profileID)
	sort.Strings(ids)
	out := make([]string, 0, n)
	for _, id := range ids {
		if len(out) >= n {
			break
		}
		if ps.pendingToRemove.Contains(id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// idleCandidatesLocked returns every idle-timed-out executor id not already
// queued for removal.
func (m *Manager) idleCandidatesLocked() []string {
	ids := m.mon.TimedOut(m.cfg.ExecutorIdleTimeout)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		pid, ok := m.mon.ProfileOf(id)
		if !ok {
			continue
		}
		if _, known := m.registry.Lookup(pid); !known {
			continue
		}
		if m.profileLocked(pid).pendingToRemove.Contains(id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// totalEffectiveLocked sums, across every profile, the live executors not
// already queued for removal — the count the MinExecutors floor applies to.
func (m *Manager) totalEffectiveLocked() int {
	total := 0
	for pid, ps := range m.profiles {
		total += m.mon.RunningCount(pid) - ps.pendingToRemove.Size()
	}
	return total
}

// removeExecutorsLocked queues ids for removal, honouring the MinExecutors
// floor across the whole cluster. When targetDriven is true (surplus
// shrink), each accepted id also decrements its profile's target by one;
// when false (idle timeout), the target is left untouched — killing an idle
// executor does not itself lower what the controller asked for (spec §8).
func (m *Manager) removeExecutorsLocked(ids []string, targetDriven bool) []string {
	accepted := make([]string, 0, len(ids))
	for _, id := range ids {
		pid, ok := m.mon.ProfileOf(id)
		if !ok {
			continue
		}
		ps := m.profileLocked(pid)
		if ps.pendingToRemove.Contains(id) {
			continue
		}
		if m.totalEffectiveLocked() <= m.cfg.MinExecutors {
			break
		}
		ps.pendingToRemove.Insert(id)
		if targetDriven && ps.target > m.cfg.MinExecutors {
			ps.target--
		}
		accepted = append(accepted, id)
	}
	return accepted
}

// Tick runs one scheduling pass: shrink profiles whose demand dropped below
// target, ramp up profiles still backlogged past the add timer, and queue
// idle-timed-out executors for removal. It is exported so callers (tests, or
// a caller that wants tighter control than the internal ticker) can drive
// the controller deterministically.
func (m *Manager) Tick(now time.Time) {
	var toRequest map[int]int
	var toKill []string

	m.mu.Lock()
	changed := false
	addDue := !m.addTime.IsZero() && !now.Before(m.addTime)

	pids := make([]int, 0, len(m.profiles))
	for pid := range m.profiles {
		pids = append(pids, pid)
	}
	sort.Ints(pids)

	for _, pid := range pids {
		ps := m.profileLocked(pid)
		maxNeeded := m.maxNeededLocked(pid)
		newTarget := clampInt(maxNeeded, m.cfg.MinExecutors, m.cfg.MaxExecutors)

		switch {
		case newTarget < ps.target:
			deltaCount := ps.target - newTarget
			candidates := m.selectSurplusCandidatesLocked(pid, deltaCount)
			if killed := m.removeExecutorsLocked(candidates, true); len(killed) > 0 {
				changed = true
				toKill = append(toKill, killed...)
			}
		case addDue:
			if delta := m.addExecutorsLocked(pid, maxNeeded); delta > 0 {
				changed = true
			}
		}
	}

	if addDue {
		if m.totalPendingLocked() > 0 {
			m.addTime = now.Add(m.cfg.SustainedSchedulerBacklogTimeout)
		} else {
			m.addTime = time.Time{}
		}
	}

	if killed := m.removeExecutorsLocked(m.idleCandidatesLocked(), false); len(killed) > 0 {
		changed = true
		toKill = append(toKill, killed...)
	}

	if changed {
		toRequest = make(map[int]int, len(m.profiles))
		for pid, ps := range m.profiles {
			toRequest[pid] = ps.target
		}
	}
	m.mu.Unlock()

	if toRequest != nil {
		m.doUpdateRequest(toRequest, toKill)
	}
}

// doUpdateRequest performs the cluster RPC round outside the main lock, so a
// slow or blocking client call never stalls event handling. It is guarded by
// rpcMu so Reset can safely wait for an in-flight round to finish.
func (m *Manager) doUpdateRequest(targets map[int]int, kill []string) {
	m.rpcMu.Lock()
	defer m.rpcMu.Unlock()

	m.mu.Lock()
	locality := make(map[int]int, len(m.profiles))
	hostLocal := make(map[int]map[string]int, len(m.profiles))
	for pid, ps := range m.profiles {
		locality[pid] = ps.localityAwareTasks
		hosts := make(map[string]int, len(ps.hostToLocalTasks))
		for h, n := range ps.hostToLocalTasks {
			hosts[h] = n
		}
		hostLocal[pid] = hosts
	}
	m.mu.Unlock()

	if len(targets) > 0 {
		ok, err := m.client.RequestTotalExecutors(targets, locality, hostLocal)
		if err != nil {
			m.logger.Warn("request total executors failed", "error", err)
		} else if !ok {
			m.logger.Warn("cluster manager rejected executor total request", "targets", targets)
		}
	}

	if len(kill) > 0 {
		killed, err := m.client.KillExecutors(kill, false, false, true)
		if err != nil {
			m.logger.Warn("kill executors failed", "error", err, "requested", kill)
			return
		}
		m.logger.Debug("killed executors", "count", len(killed))
	}
}

var _ events.ManagerSink = (*Manager)(nil)
