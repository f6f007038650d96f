package profile_test

import (
	"testing"

	"github.com/shoenig/test/must"

	"github.com/fluxcompute/execalloc/profile"
)

func TestRegistry_DefaultProfile(t *testing.T) {
	r := profile.NewRegistry(
		profile.ExecutorRequirements{Cores: 4, MemoryMB: 4096},
		profile.TaskRequirements{CPUs: 1},
	)

	must.Eq(t, 0, r.Default())

	p, ok := r.Lookup(profile.DefaultID)
	must.True(t, ok)
	must.Eq(t, 4, p.Executor().Cores)
	must.Eq(t, 4, p.TasksPerExecutor())
}

func TestRegistry_GetOrCreate_DedupesByValue(t *testing.T) {
	r := profile.NewRegistry(profile.ExecutorRequirements{Cores: 1}, profile.TaskRequirements{CPUs: 1})

	exec := profile.ExecutorRequirements{Cores: 2, MemoryMB: 2048, Resources: map[string]int64{"gpu": 1}}
	task := profile.TaskRequirements{CPUs: 1, Resources: map[string]int64{"gpu": 1}}

	id1 := r.GetOrCreate(exec, task)
	id2 := r.GetOrCreate(exec, task)
	must.Eq(t, id1, id2)
	must.NotEq(t, profile.DefaultID, id1)

	// A different requirement tuple gets a distinct, monotonically next id.
	other := r.GetOrCreate(profile.ExecutorRequirements{Cores: 8}, profile.TaskRequirements{CPUs: 2})
	must.Eq(t, id1+1, other)
}

func TestRegistry_GetOrCreate_IdsAreDenseAndMonotonic(t *testing.T) {
	r := profile.NewRegistry(profile.ExecutorRequirements{Cores: 1}, profile.TaskRequirements{CPUs: 1})

	for i := 0; i < 5; i++ {
		id := r.GetOrCreate(profile.ExecutorRequirements{Cores: i + 2}, profile.TaskRequirements{CPUs: 1})
		must.Eq(t, i+1, id)
	}
	must.Eq(t, []int{0, 1, 2, 3, 4, 5}, r.IDs())
}

func TestRegistry_Lookup_UnknownID(t *testing.T) {
	r := profile.NewRegistry(profile.ExecutorRequirements{Cores: 1}, profile.TaskRequirements{CPUs: 1})
	_, ok := r.Lookup(99)
	must.False(t, ok)
}

func TestProfile_TasksPerExecutor_MinimumOne(t *testing.T) {
	r := profile.NewRegistry(
		profile.ExecutorRequirements{Cores: 1},
		profile.TaskRequirements{CPUs: 4},
	)
	p, ok := r.Lookup(profile.DefaultID)
	must.True(t, ok)
	must.Eq(t, 1, p.TasksPerExecutor())
}
