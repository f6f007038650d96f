package manager

// The following are individual read-only accessors over the same state
// Snapshot exposes in bulk, matching spec §6's enumerated inspection
// surface (Target, ToAdd, PendingToRemove, AddTimeSet, MaxNeeded,
// LocalityAwareTasks, HostToLocalTaskCount) one call each, for callers that
// want a single value rather than the whole snapshot. All of them read via
// profileViewLocked, never profileLocked: querying a profile id — including
// one the registry never assigned — must not fabricate and record state for
// it as a side effect.

// Target returns the current target executor count for profileID.
func (m *Manager) Target(profileID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profileViewLocked(profileID).target
}

// ToAdd returns the current ramp-up step for profileID.
func (m *Manager) ToAdd(profileID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profileViewLocked(profileID).toAdd
}

// PendingToRemove returns the executor ids profileID has queued for
// removal but not yet confirmed gone.
func (m *Manager) PendingToRemove(profileID int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profileViewLocked(profileID).pendingToRemove.Slice()
}

// AddTimeSet reports whether the backlog add timer is currently running.
func (m *Manager) AddTimeSet() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.addTime.IsZero()
}

// MaxNeeded returns the number of executors profileID's current workload
// justifies at the configured allocation ratio.
func (m *Manager) MaxNeeded(profileID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxNeededFor(m.profileViewLocked(profileID), profileID)
}

// LocalityAwareTasks returns the count of outstanding tasks with a host
// locality preference for profileID.
func (m *Manager) LocalityAwareTasks(profileID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profileViewLocked(profileID).localityAwareTasks
}

// HostToLocalTaskCount returns, per host, the number of outstanding tasks
// preferring that host for profileID.
func (m *Manager) HostToLocalTaskCount(profileID int) map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps := m.profileViewLocked(profileID)
	out := make(map[string]int, len(ps.hostToLocalTasks))
	for h, n := range ps.hostToLocalTasks {
		out[h] = n
	}
	return out
}
