package monitor_test

import (
	"testing"
	"time"

	"github.com/shoenig/test/must"

	"github.com/fluxcompute/execalloc/internal/testlog"
	"github.com/fluxcompute/execalloc/monitor"
)

func TestMonitor_AddIsIdempotent(t *testing.T) {
	m := monitor.New(testlog.HCLogger(t), false)
	m.Add("e1", "host-1", 0)
	m.Add("e1", "host-1", 0) // duplicate, tolerated

	must.Eq(t, 1, m.ExecutorCount())
	must.Eq(t, 1, m.RunningCount(0))
}

func TestMonitor_RemoveUnknownIsToleratedNoOp(t *testing.T) {
	m := monitor.New(testlog.HCLogger(t), false)
	m.Remove("ghost") // must not panic
	must.Eq(t, 0, m.ExecutorCount())
}

func TestMonitor_TaskStartEnd_DrivesIdleState(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }

	m := monitor.New(testlog.HCLogger(t), false)
	m.SetClock(clock)
	m.Add("e1", "host-1", 0)

	idle, ok := m.IsIdle("e1")
	must.True(t, ok)
	must.True(t, idle)

	m.TaskStart("e1")
	idle, _ = m.IsIdle("e1")
	must.False(t, idle)

	now = now.Add(5 * time.Second)
	m.TaskEnd("e1")
	idle, _ = m.IsIdle("e1")
	must.True(t, idle)

	timedOut := m.TimedOut(10 * time.Second)
	must.Len(t, 0, timedOut)

	now = now.Add(10 * time.Second)
	timedOut = m.TimedOut(10 * time.Second)
	must.Eq(t, []string{"e1"}, timedOut)
}

func TestMonitor_TimedOut_DeterministicOrder(t *testing.T) {
	base := time.Unix(2000, 0)
	now := base
	clock := func() time.Time { return now }

	m := monitor.New(testlog.HCLogger(t), false)
	m.SetClock(clock)

	now = base
	m.Add("b", "host", 0)
	now = base.Add(1 * time.Second)
	m.Add("a", "host", 0)
	now = base.Add(1 * time.Second) // same idleSince as "a", tie broken by id
	m.Add("c", "host", 0)

	now = base.Add(time.Hour)
	ids := m.TimedOut(time.Minute)
	must.Eq(t, []string{"b", "a", "c"}, ids)
}

func TestMonitor_CachingAware_CachedBlocksBlockIdle(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }

	m := monitor.New(testlog.HCLogger(t), true)
	m.SetClock(clock)
	m.Add("e1", "host-1", 0)

	m.CacheBlocksChanged("e1", 3)
	idle, _ := m.IsIdle("e1")
	must.False(t, idle)

	now = now.Add(time.Minute)
	timedOut := m.TimedOut(time.Second)
	must.Len(t, 0, timedOut)

	m.CacheBlocksChanged("e1", 0)
	idle, _ = m.IsIdle("e1")
	must.True(t, idle)

	now = now.Add(time.Minute)
	timedOut = m.TimedOut(time.Second)
	must.Eq(t, []string{"e1"}, timedOut)
}

func TestMonitor_RemoveClearsProfileMembership(t *testing.T) {
	m := monitor.New(testlog.HCLogger(t), false)
	m.Add("e1", "host-1", 2)
	must.Eq(t, 1, m.RunningCount(2))

	m.Remove("e1")
	must.Eq(t, 0, m.RunningCount(2))
	must.Eq(t, 0, m.ExecutorCount())
}
