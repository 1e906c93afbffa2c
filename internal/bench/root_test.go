package bench_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/zkbench/internal/bench"
	"github.com/wesleyorama2/zkbench/internal/coord"
)

func TestPrepareRoot_Fresh(t *testing.T) {
	mem := newMemory()
	s := session(t, mem)

	require.NoError(t, bench.PrepareRoot(s, "/a/b/benchmark", []byte("run"), nil))

	children, err := s.Children("/a/b/benchmark")
	require.NoError(t, err)
	assert.Empty(t, children)

	data, ok := mem.Data("/a/b/benchmark")
	require.True(t, ok)
	assert.Equal(t, "run", string(data))
}

func TestPrepareRoot_Twice(t *testing.T) {
	mem := newMemory()
	s := session(t, mem)

	require.NoError(t, bench.PrepareRoot(s, "/benchmark", []byte("first"), nil))
	for i := 0; i < 5; i++ {
		_, err := s.Create("/benchmark/node_", nil, coord.PersistentSequential)
		require.NoError(t, err)
	}
	_, err := s.Create("/benchmark/nested", nil, coord.Persistent)
	require.NoError(t, err)
	_, err = s.Create("/benchmark/nested/leaf", nil, coord.Persistent)
	require.NoError(t, err)

	require.NoError(t, bench.PrepareRoot(s, "/benchmark", []byte("second"), nil))

	children, err := s.Children("/benchmark")
	require.NoError(t, err)
	assert.Empty(t, children)

	data, ok := mem.Data("/benchmark")
	require.True(t, ok)
	assert.Equal(t, "second", string(data))

	// The sequence counter belongs to the new node and restarts.
	p, err := s.Create("/benchmark/node_", nil, coord.PersistentSequential)
	require.NoError(t, err)
	assert.Equal(t, "/benchmark/node_0000000000", p)
}

func TestPrepareRoot_ConcurrentModification(t *testing.T) {
	mem := newMemory()
	s := session(t, mem)
	_, err := s.Create("/benchmark", []byte("old"), coord.Persistent)
	require.NoError(t, err)

	err = bench.PrepareRoot(&racingSession{Session: s, mem: mem}, "/benchmark", []byte("new"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, coord.ErrVersionMismatch)
	assert.Contains(t, err.Error(), "prepare root")
}

func TestRemoveTree(t *testing.T) {
	mem := newMemory()
	s := session(t, mem)

	assert.NoError(t, bench.RemoveTree(s, "/missing"))

	require.NoError(t, bench.PrepareRoot(s, "/benchmark", nil, nil))
	_, err := s.Create("/benchmark/a", nil, coord.Persistent)
	require.NoError(t, err)
	_, err = s.Create("/benchmark/a/b", nil, coord.Persistent)
	require.NoError(t, err)
	_, err = s.Create("/benchmark/c", nil, coord.Ephemeral)
	require.NoError(t, err)

	require.NoError(t, bench.RemoveTree(s, "/benchmark"))
	assert.Equal(t, 1, mem.NodeCount())
}
