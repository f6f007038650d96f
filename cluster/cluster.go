// Package cluster defines the boundary the allocation manager consumes to
// talk to an external cluster manager. Everything beyond this interface —
// the actual RPC, authentication, resource discovery — is out of scope for
// this module (spec §1); Client is "a capability-set interface with exactly
// the three operations" the core needs (spec §9).
package cluster

// Client is the contract the allocation manager uses to declare desired
// executor counts and to kill executors it has decided to retire.
//
// Implementations are expected to treat RequestTotalExecutors as idempotent:
// calling it again with the same totals should be a cheap no-op from the
// caller's point of view.
type Client interface {
	// RequestTotalExecutors declares the desired total executor count per
	// profile id, along with the locality-aware task count and
	// host-to-local-task-count maps needed for locality-aware placement.
	// It returns whether the cluster manager accepted the declaration.
	RequestTotalExecutors(
		targets map[int]int,
		localityAwareTasks map[int]int,
		hostToLocalTaskCount map[int]map[string]int,
	) (bool, error)

	// KillExecutors asks the cluster manager to terminate the given
	// executor ids and returns the subset actually killed. If replace is
	// false the cluster manager must not request a replacement for any
	// executor killed this way.
	KillExecutors(ids []string, replace, force, countFailures bool) ([]string, error)

	// IsExecutorActive reports whether the cluster manager still
	// considers the given executor id live.
	IsExecutorActive(id string) (bool, error)
}
