package bench_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/zkbench/internal/coord"
)

func newMemory() *coord.Memory {
	return coord.NewMemory(coord.MemoryOptions{Latency: time.Millisecond})
}

func session(t *testing.T, c coord.Client) coord.Session {
	t.Helper()
	s, err := c.Connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// countingClient records every session it hands out and can pretend that
// sessions are not safe to share.
type countingClient struct {
	*coord.Memory
	serialOnly bool

	mu       sync.Mutex
	sessions []coord.Session
}

func (c *countingClient) ConcurrentSessions() bool { return !c.serialOnly }

func (c *countingClient) Connect(ctx context.Context) (coord.Session, error) {
	s, err := c.Memory.Connect(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.sessions = append(c.sessions, s)
	c.mu.Unlock()
	return s, nil
}

func (c *countingClient) connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// failingClient returns sessions whose creates start failing after a number
// of successful ones, across all sessions.
type failingClient struct {
	*coord.Memory
	failAfter int64
	creates   atomic.Int64
}

func (c *failingClient) Connect(ctx context.Context) (coord.Session, error) {
	s, err := c.Memory.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &failingSession{Session: s, client: c}, nil
}

type failingSession struct {
	coord.Session
	client *failingClient
}

func (s *failingSession) Create(p string, data []byte, mode coord.Mode) (string, error) {
	// The root itself is created through the control session; only count
	// children.
	if p != "/benchmark" && s.client.creates.Add(1) > s.client.failAfter {
		return "", &coord.OpError{Op: "create", Path: p, Kind: coord.ErrConnectionLoss}
	}
	return s.Session.Create(p, data, mode)
}

// racingSession rewrites the node after every Exists, as a concurrent
// writer would between the read and the conditional delete.
type racingSession struct {
	coord.Session
	mem *coord.Memory
}

func (s *racingSession) Exists(p string) (*coord.Stat, error) {
	st, err := s.Session.Exists(p)
	if err == nil && st != nil {
		_ = s.mem.SetData(p, []byte("other-run"))
	}
	return st, err
}
