package coord

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServers(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"127.0.0.1:2181", []string{"127.0.0.1:2181"}},
		{"zk1:2181, zk2:2181 ,zk3:2181", []string{"zk1:2181", "zk2:2181", "zk3:2181"}},
		{"zk1:2181,,", []string{"zk1:2181"}},
		{" , ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseServers(tt.in))
		})
	}
}

func TestZkFlags(t *testing.T) {
	tests := []struct {
		mode Mode
		want int32
	}{
		{Persistent, 0},
		{PersistentSequential, zk.FlagSequence},
		{Ephemeral, zk.FlagEphemeral},
		{EphemeralSequential, zk.FlagEphemeral | zk.FlagSequence},
	}
	for _, tt := range tests {
		if got := zkFlags(tt.mode); got != tt.want {
			t.Errorf("zkFlags(%s) = %d, want %d", tt.mode, got, tt.want)
		}
	}
}

func TestZkError_Classification(t *testing.T) {
	tests := []struct {
		err  error
		kind error
	}{
		{zk.ErrNodeExists, ErrNodeExists},
		{zk.ErrNoNode, ErrNoNode},
		{zk.ErrBadVersion, ErrVersionMismatch},
		{zk.ErrNotEmpty, ErrNotEmpty},
		{zk.ErrConnectionClosed, ErrConnectionLoss},
		{zk.ErrSessionExpired, ErrConnectionLoss},
		{zk.ErrNoServer, ErrConnectionLoss},
		{zk.ErrNoAuth, ErrOperation},
		{fmt.Errorf("wrapped: %w", zk.ErrNoNode), ErrNoNode},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			err := zkError("create", "/benchmark/node_", tt.err)
			assert.ErrorIs(t, err, tt.kind)
			assert.ErrorIs(t, err, tt.err)

			var opErr *OpError
			require.True(t, errors.As(err, &opErr))
			assert.Equal(t, "create", opErr.Op)
			assert.Equal(t, "/benchmark/node_", opErr.Path)
		})
	}
}

func TestFirstMultiError(t *testing.T) {
	assert.NoError(t, firstMultiError(nil))
	assert.NoError(t, firstMultiError([]zk.MultiResponse{{String: "/a"}, {String: "/b"}}))

	resp := []zk.MultiResponse{
		{Error: zk.ErrAPIError},
		{Error: zk.ErrNodeExists},
		{Error: zk.ErrAPIError},
	}
	assert.Equal(t, zk.ErrNodeExists, firstMultiError(resp))

	resp = []zk.MultiResponse{{Error: zk.ErrAPIError}}
	assert.Equal(t, zk.ErrAPIError, firstMultiError(resp))
}

func TestOpError_Error(t *testing.T) {
	tests := []struct {
		err  *OpError
		want string
	}{
		{opError("delete", "/benchmark", ErrNotEmpty, nil), "delete /benchmark: node has children"},
		{opError("connect", "zk1:2181", ErrConnection, errors.New("timeout")), "connect zk1:2181: connection error: timeout"},
		{opError("children", "/x", ErrNoNode, ErrNoNode), "children /x: node does not exist"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestZooKeeper_ConnectNoServers(t *testing.T) {
	z := NewZooKeeper(ZooKeeperOptions{})
	_, err := z.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnection)
}

func TestZooKeeper_ConnectTimeout(t *testing.T) {
	z := NewZooKeeper(ZooKeeperOptions{
		Servers:        []string{"127.0.0.1:1"},
		ConnectTimeout: 100 * time.Millisecond,
	})
	start := time.Now()
	_, err := z.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnection)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{Persistent, PersistentSequential, Ephemeral, EphemeralSequential} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	got, err := ParseMode(" Ephemeral-Sequential ")
	require.NoError(t, err)
	assert.Equal(t, EphemeralSequential, got)

	_, err = ParseMode("container")
	assert.Error(t, err)
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, "/a", Join("/", "a"))
	assert.Equal(t, "/a/b", Join("/a", "b"))
	assert.Equal(t, "/a/b", Clean("a/b/"))
	assert.Equal(t, "/", Clean(""))

	m := NewMemory(MemoryOptions{})
	s := connect(t, m)
	require.NoError(t, EnsurePath(s, "/x/y/z"))
	require.NoError(t, EnsurePath(s, "/x/y/z"))

	st, err := s.Exists("/x/y")
	require.NoError(t, err)
	assert.NotNil(t, st)
	st, err = s.Exists("/x/y/z")
	require.NoError(t, err)
	assert.Nil(t, st)
}
