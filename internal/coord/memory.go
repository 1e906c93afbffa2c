package coord

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultMemoryLatency is the simulated round trip used for mem:// runs.
const DefaultMemoryLatency = time.Millisecond

// MemoryOptions configures the in-process service.
type MemoryOptions struct {
	// Latency is slept (outside any lock) on every request to stand in for
	// a network round trip. Zero means no delay.
	Latency time.Duration
}

// Memory is an in-process coordination service with ZooKeeper node
// semantics: per-parent sequence counters, data versions, ephemeral nodes
// owned by sessions and removed on Close, and atomic batches.
//
// Memory implements Client; every Connect returns a new Session.
type Memory struct {
	opts MemoryOptions

	mu          sync.Mutex
	nodes       map[string]*memNode
	lastSession int64
}

type memNode struct {
	data     []byte
	version  int32
	owner    int64
	seq      int32
	children map[string]struct{}
}

// NewMemory creates an empty service holding only the "/" node.
func NewMemory(opts MemoryOptions) *Memory {
	return &Memory{
		opts: opts,
		nodes: map[string]*memNode{
			"/": {children: make(map[string]struct{})},
		},
	}
}

// ConcurrentSessions is true: every operation takes the service lock.
func (m *Memory) ConcurrentSessions() bool { return true }

// Connect opens a new session.
func (m *Memory) Connect(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, opError("connect", "mem://", ErrConnection, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSession++
	return &memSession{mem: m, id: m.lastSession}, nil
}

// NodeCount returns the number of nodes, "/" included.
func (m *Memory) NodeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

// SetData replaces a node's data and bumps its version, as another client
// writing to the node would.
func (m *Memory) SetData(p string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[p]
	if !ok {
		return opError("set", p, ErrNoNode, nil)
	}
	n.data = append([]byte(nil), data...)
	n.version++
	return nil
}

// Data returns a copy of a node's data.
func (m *Memory) Data(p string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[p]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), n.data...), true
}

func (m *Memory) delay() {
	if m.opts.Latency > 0 {
		time.Sleep(m.opts.Latency)
	}
}

// create must be called with m.mu held.
func (m *Memory) create(owner int64, p string, data []byte, mode Mode) (string, error) {
	if p == "" || p[0] != '/' || (len(p) > 1 && strings.HasSuffix(p, "/")) {
		return "", opError("create", p, ErrOperation, errors.New("invalid path"))
	}
	parentPath, name := splitPath(p)
	parent, ok := m.nodes[parentPath]
	if !ok {
		return "", opError("create", p, ErrNoNode, nil)
	}
	if parent.owner != 0 {
		return "", opError("create", p, ErrOperation, errors.New("ephemeral nodes may not have children"))
	}

	if mode.Sequential() {
		name = fmt.Sprintf("%s%010d", name, parent.seq)
		p = Join(parentPath, name)
	}
	if _, exists := m.nodes[p]; exists {
		return "", opError("create", p, ErrNodeExists, nil)
	}
	if mode.Sequential() {
		parent.seq++
	}

	n := &memNode{data: append([]byte(nil), data...), children: make(map[string]struct{})}
	if mode.Ephemeral() {
		n.owner = owner
	}
	m.nodes[p] = n
	parent.children[name] = struct{}{}
	return p, nil
}

// remove must be called with m.mu held.
func (m *Memory) remove(p string) {
	parentPath, name := splitPath(p)
	if parent, ok := m.nodes[parentPath]; ok {
		delete(parent.children, name)
	}
	delete(m.nodes, p)
}

type memSession struct {
	mem *Memory
	id  int64

	closeOnce sync.Once
	closed    bool
}

func (s *memSession) ID() int64 { return s.id }

// live must be called with s.mem.mu held.
func (s *memSession) live(op, p string) error {
	if s.closed {
		return opError(op, p, ErrConnectionLoss, fmt.Errorf("session %d closed", s.id))
	}
	return nil
}

func (s *memSession) Create(p string, data []byte, mode Mode) (string, error) {
	s.mem.delay()
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	if err := s.live("create", p); err != nil {
		return "", err
	}
	return s.mem.create(s.id, p, data, mode)
}

func (s *memSession) CreateBatch(reqs []CreateRequest) ([]string, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	s.mem.delay()
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	if err := s.live("multi", reqs[0].Path); err != nil {
		return nil, err
	}

	// Sequence counters are restored on rollback so a failed batch leaves
	// no gaps behind.
	seqs := make(map[*memNode]int32)
	paths := make([]string, 0, len(reqs))
	for _, r := range reqs {
		if parent, ok := s.mem.nodes[parentPathOf(r.Path)]; ok {
			if _, saved := seqs[parent]; !saved {
				seqs[parent] = parent.seq
			}
		}
		actual, err := s.mem.create(s.id, r.Path, r.Data, r.Mode)
		if err != nil {
			for i := len(paths) - 1; i >= 0; i-- {
				s.mem.remove(paths[i])
			}
			for n, seq := range seqs {
				n.seq = seq
			}
			if oe, ok := err.(*OpError); ok {
				oe.Op = "multi"
			}
			return nil, err
		}
		paths = append(paths, actual)
	}
	return paths, nil
}

func (s *memSession) Exists(p string) (*Stat, error) {
	s.mem.delay()
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	if err := s.live("exists", p); err != nil {
		return nil, err
	}
	n, ok := s.mem.nodes[p]
	if !ok {
		return nil, nil
	}
	return &Stat{
		Version:        n.version,
		NumChildren:    int32(len(n.children)),
		EphemeralOwner: n.owner,
	}, nil
}

func (s *memSession) Delete(p string, version int32) error {
	s.mem.delay()
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	if err := s.live("delete", p); err != nil {
		return err
	}
	if p == "/" {
		return opError("delete", p, ErrOperation, errors.New("cannot delete root"))
	}
	n, ok := s.mem.nodes[p]
	if !ok {
		return opError("delete", p, ErrNoNode, nil)
	}
	if version != AnyVersion && version != n.version {
		return opError("delete", p, ErrVersionMismatch, fmt.Errorf("expected %d, have %d", version, n.version))
	}
	if len(n.children) > 0 {
		return opError("delete", p, ErrNotEmpty, nil)
	}
	s.mem.remove(p)
	return nil
}

func (s *memSession) Children(p string) ([]string, error) {
	s.mem.delay()
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	if err := s.live("children", p); err != nil {
		return nil, err
	}
	n, ok := s.mem.nodes[p]
	if !ok {
		return nil, opError("children", p, ErrNoNode, nil)
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close removes every ephemeral node the session owns.
func (s *memSession) Close() {
	s.closeOnce.Do(func() {
		s.mem.mu.Lock()
		defer s.mem.mu.Unlock()
		s.closed = true
		for p, n := range s.mem.nodes {
			if n.owner == s.id {
				s.mem.remove(p)
			}
		}
	})
}

func splitPath(p string) (parent, name string) {
	i := strings.LastIndex(p, "/")
	if i <= 0 {
		return "/", p[i+1:]
	}
	return p[:i], p[i+1:]
}

func parentPathOf(p string) string {
	parent, _ := splitPath(p)
	return parent
}
