package cluster

import "sync"

// Fake is a deterministic, in-memory Client used by tests and by the
// cmd/execallocd demo in place of a real cluster manager RPC, mirroring the
// minimal test doubles (fauxConnPool, fauxAddr) the teacher's own
// client/servers tests build for the same purpose: no more than the
// interface under test requires.
type Fake struct {
	mu sync.Mutex

	// RequestedTotals is the last totals map passed to
	// RequestTotalExecutors.
	RequestedTotals map[int]int
	// Requests counts how many times RequestTotalExecutors was called.
	Requests int
	// Killed accumulates every executor id ever passed to KillExecutors.
	Killed []string
	// active holds executor ids considered live by IsExecutorActive;
	// starts empty, is filled by the caller via MarkActive, and loses each
	// id passed to KillExecutors.
	active map[string]bool

	// AcceptRequests, when false, makes RequestTotalExecutors report
	// rejection (simulating a transient cluster-client error, §7 class 2).
	AcceptRequests bool
	// KillAll, when true (the default), makes KillExecutors report every
	// requested id as successfully killed.
	KillAll bool
}

// NewFake constructs a Fake that accepts every request and kills every
// executor it is asked to.
func NewFake() *Fake {
	return &Fake{
		active:         make(map[string]bool),
		AcceptRequests: true,
		KillAll:        true,
	}
}

func (f *Fake) RequestTotalExecutors(targets map[int]int, localityAwareTasks map[int]int, hostToLocalTaskCount map[int]map[string]int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests++
	cp := make(map[int]int, len(targets))
	for k, v := range targets {
		cp[k] = v
	}
	f.RequestedTotals = cp
	return f.AcceptRequests, nil
}

func (f *Fake) KillExecutors(ids []string, replace, force, countFailures bool) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.KillAll {
		return nil, nil
	}
	f.Killed = append(f.Killed, ids...)
	for _, id := range ids {
		delete(f.active, id)
	}
	killed := make([]string, len(ids))
	copy(killed, ids)
	return killed, nil
}

func (f *Fake) IsExecutorActive(id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[id], nil
}

// MarkActive records id as live for subsequent IsExecutorActive calls.
func (f *Fake) MarkActive(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[id] = true
}

var _ Client = (*Fake)(nil)
