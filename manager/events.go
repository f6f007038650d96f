package manager

import (
	"github.com/hashicorp/go-set/v3"

	"github.com/fluxcompute/execalloc/events"
)

// HandleStageSubmitted registers a new stage attempt: its tasks join the
// owning profile's pending count and its locality hints feed the locality
// aggregates RequestTotalExecutors reports to the cluster manager. A
// profileID the ResourceProfileRegistry never assigned is a programmer
// error (spec §7 class 4): the event is dropped and logged at Error rather
// than fabricating tracked state for an unknown profile.
func (m *Manager) HandleStageSubmitted(stageID, attemptID int64, profileID, totalTasks int, localityHints map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.registry.Lookup(profileID); !ok {
		m.logger.Error("dropping stage submission for unknown resource profile", "stage_id", stageID, "attempt_id", attemptID, "profile_id", profileID)
		return
	}

	key := attemptKey{stageID: stageID, attemptID: attemptID}
	if _, exists := m.attempts[key]; exists {
		m.logger.Debug("ignoring duplicate stage submission", "stage_id", stageID, "attempt_id", attemptID)
		return
	}

	attempt := newStageAttempt(profileID, totalTasks, localityHints)
	m.attempts[key] = attempt
	m.stageAttempts[stageID] = append(m.stageAttempts[stageID], key)

	ps := m.profileLocked(profileID)
	ps.pendingTasks += attempt.notStarted.Size()
	ps.addLocality(attempt.localityTotal, attempt.localityHosts)

	m.syncBacklogTimerLocked(m.clock())
}

// HandleStageCompleted marks every live attempt of stageID as a zombie: its
// not-yet-started tasks leave the pending count at once, while its running
// tasks keep counting toward the running total until each terminates
// individually; none of them return to notStarted again (spec §3,
// scenario 6).
func (m *Manager) HandleStageCompleted(stageID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range m.stageAttempts[stageID] {
		a, ok := m.attempts[key]
		if !ok || a.zombie {
			continue
		}
		a.zombie = true

		ps := m.profileLocked(a.profileID)
		ps.pendingTasks -= a.notStarted.Size()
		a.notStarted = set.New[int](0)
		ps.removeLocality(a.localityTotal, a.localityHosts)

		if a.done() {
			delete(m.attempts, key)
		}
	}

	m.syncBacklogTimerLocked(m.clock())
}

// HandleTaskStart moves taskIndex from notStarted to running within its
// attempt. A start for a task already running, or for an unknown attempt, is
// tolerated as a duplicate/late event.
func (m *Manager) HandleTaskStart(stageID, attemptID int64, taskIndex int, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.attempts[attemptKey{stageID: stageID, attemptID: attemptID}]
	if !ok {
		m.logger.Debug("task start for unknown attempt", "stage_id", stageID, "attempt_id", attemptID)
		return
	}
	if a.running.Contains(taskIndex) {
		return
	}

	moved := a.notStarted.Remove(taskIndex)
	a.running.Insert(taskIndex)

	ps := m.profileLocked(a.profileID)
	if moved {
		ps.pendingTasks--
	}
	ps.runningTasks++

	m.syncBacklogTimerLocked(m.clock())
}

// HandleTaskEnd moves taskIndex out of running. Non-Success reasons put the
// task back into notStarted unless its attempt is already a zombie, per the
// conservative resubmission policy in events.TaskEndReason.Resubmits. A
// zombie attempt whose tasks have all finished is forgotten.
func (m *Manager) HandleTaskEnd(stageID, attemptID int64, taskIndex int, reason events.TaskEndReason) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := attemptKey{stageID: stageID, attemptID: attemptID}
	a, ok := m.attempts[key]
	if !ok {
		m.logger.Debug("task end for unknown attempt", "stage_id", stageID, "attempt_id", attemptID)
		return
	}
	if !a.running.Remove(taskIndex) {
		return
	}

	ps := m.profileLocked(a.profileID)
	ps.runningTasks--

	if reason.Resubmits() && !a.zombie {
		a.notStarted.Insert(taskIndex)
		ps.pendingTasks++
	}

	if a.zombie && a.done() {
		delete(m.attempts, key)
	}

	m.syncBacklogTimerLocked(m.clock())
}

// HandleSpeculativeTaskSubmitted bumps the owning profile's speculative-task
// count, which feeds maxNeededLocked exactly like a pending task does.
func (m *Manager) HandleSpeculativeTaskSubmitted(stageID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := m.stageAttempts[stageID]
	for i := len(keys) - 1; i >= 0; i-- {
		a, ok := m.attempts[keys[i]]
		if !ok {
			continue
		}
		m.profileLocked(a.profileID).pendingSpeculative++
		return
	}
	m.logger.Debug("speculative task submitted for unknown stage", "stage_id", stageID)
}

// HandleExecutorRemoved clears executorID from every profile's
// pendingToRemove set. It is safe whether the removal was requested by this
// controller or observed independently.
func (m *Manager) HandleExecutorRemoved(executorID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ps := range m.profiles {
		ps.pendingToRemove.Remove(executorID)
	}
}
