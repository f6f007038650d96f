package cluster_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxcompute/execalloc/cluster"
)

func TestFake_RequestTotalExecutors_RecordsLastCall(t *testing.T) {
	f := cluster.NewFake()

	ok, err := f.RequestTotalExecutors(map[int]int{0: 3}, nil, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, map[int]int{0: 3}, f.RequestedTotals)
	require.Equal(t, 1, f.Requests)

	ok, err = f.RequestTotalExecutors(map[int]int{0: 5, 1: 2}, nil, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, map[int]int{0: 5, 1: 2}, f.RequestedTotals)
	require.Equal(t, 2, f.Requests)
}

func TestFake_KillExecutors_ReturnsKilledAndClearsActive(t *testing.T) {
	f := cluster.NewFake()
	f.MarkActive("e1")

	active, err := f.IsExecutorActive("e1")
	require.NoError(t, err)
	require.True(t, active)

	killed, err := f.KillExecutors([]string{"e1", "e2"}, false, false, false)
	require.NoError(t, err)
	require.Equal(t, []string{"e1", "e2"}, killed)

	active, _ = f.IsExecutorActive("e1")
	require.False(t, active)
}

func TestFake_RequestTotalExecutors_CanSimulateRejection(t *testing.T) {
	f := cluster.NewFake()
	f.AcceptRequests = false

	ok, err := f.RequestTotalExecutors(map[int]int{0: 1}, nil, nil)
	require.NoError(t, err)
	require.False(t, ok)
}
