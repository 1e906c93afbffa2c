package coord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
	"go.uber.org/zap"
)

// ZooKeeperOptions configures the ZooKeeper client.
type ZooKeeperOptions struct {
	// Servers is the ensemble, "host:port" each.
	Servers []string

	// SessionTimeout is negotiated with the server (default: 10s).
	SessionTimeout time.Duration

	// ConnectTimeout bounds how long Connect waits for a session (default: 5s).
	ConnectTimeout time.Duration

	// Logger receives session events and library output (default: no-op).
	Logger *zap.Logger
}

// ZooKeeper is a Client backed by github.com/go-zookeeper/zk.
type ZooKeeper struct {
	opts ZooKeeperOptions
	log  *zap.Logger
}

// ParseServers splits a comma-separated server list.
func ParseServers(address string) []string {
	var servers []string
	for _, s := range strings.Split(address, ",") {
		if s = strings.TrimSpace(s); s != "" {
			servers = append(servers, s)
		}
	}
	return servers
}

// NewZooKeeper creates a ZooKeeper client. No connection is made until
// Connect is called.
func NewZooKeeper(opts ZooKeeperOptions) *ZooKeeper {
	if opts.SessionTimeout == 0 {
		opts.SessionTimeout = 10 * time.Second
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &ZooKeeper{opts: opts, log: opts.Logger.Named("zk")}
}

// ConcurrentSessions is true: zk.Conn pipelines requests from many goroutines.
func (z *ZooKeeper) ConcurrentSessions() bool { return true }

// Connect dials the ensemble and waits until the server has granted a session.
func (z *ZooKeeper) Connect(ctx context.Context) (Session, error) {
	addr := strings.Join(z.opts.Servers, ",")
	if len(z.opts.Servers) == 0 {
		return nil, opError("connect", addr, ErrConnection, errors.New("no servers configured"))
	}

	conn, events, err := zk.Connect(z.opts.Servers, z.opts.SessionTimeout, zk.WithLogger(zkLogger{z.log.Sugar()}))
	if err != nil {
		return nil, opError("connect", addr, ErrConnection, err)
	}

	timer := time.NewTimer(z.opts.ConnectTimeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.Close()
				return nil, opError("connect", addr, ErrConnection, errors.New("event channel closed"))
			}
			z.log.Debug("session event", zap.Stringer("state", ev.State), zap.String("server", ev.Server))
			switch ev.State {
			case zk.StateHasSession:
				s := &zkSession{conn: conn, done: make(chan struct{}), log: z.log}
				go s.watch(events)
				return s, nil
			case zk.StateAuthFailed, zk.StateExpired:
				conn.Close()
				return nil, opError("connect", addr, ErrConnection, fmt.Errorf("session state %s", ev.State))
			}
		case <-timer.C:
			conn.Close()
			return nil, opError("connect", addr, ErrConnection, fmt.Errorf("no session after %s", z.opts.ConnectTimeout))
		case <-ctx.Done():
			conn.Close()
			return nil, opError("connect", addr, ErrConnection, ctx.Err())
		}
	}
}

type zkSession struct {
	conn      *zk.Conn
	log       *zap.Logger
	done      chan struct{}
	closeOnce sync.Once
}

// watch drains session events until the session is closed. Nothing reacts
// to them beyond logging: a lost session surfaces as ErrConnectionLoss on
// the next call.
func (s *zkSession) watch(events <-chan zk.Event) {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type == zk.EventSession {
				s.log.Debug("session event",
					zap.Int64("session", s.conn.SessionID()),
					zap.Stringer("state", ev.State))
			}
		}
	}
}

func (s *zkSession) ID() int64 { return s.conn.SessionID() }

func (s *zkSession) Create(path string, data []byte, mode Mode) (string, error) {
	actual, err := s.conn.Create(path, data, zkFlags(mode), zk.WorldACL(zk.PermAll))
	if err != nil {
		return "", zkError("create", path, err)
	}
	return actual, nil
}

func (s *zkSession) CreateBatch(reqs []CreateRequest) ([]string, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	ops := make([]interface{}, len(reqs))
	for i, r := range reqs {
		ops[i] = &zk.CreateRequest{
			Path:  r.Path,
			Data:  r.Data,
			Acl:   zk.WorldACL(zk.PermAll),
			Flags: zkFlags(r.Mode),
		}
	}

	resp, err := s.conn.Multi(ops...)
	if failed := firstMultiError(resp); failed != nil {
		err = failed
	}
	if err != nil {
		return nil, zkError("multi", reqs[0].Path, err)
	}

	paths := make([]string, len(resp))
	for i, r := range resp {
		paths[i] = r.String
	}
	return paths, nil
}

// firstMultiError picks the error that aborted a multi-op. The server marks
// the remaining ops with a generic error, so a classified error wins.
func firstMultiError(resp []zk.MultiResponse) error {
	var first error
	for _, r := range resp {
		if r.Error == nil {
			continue
		}
		if first == nil {
			first = r.Error
		}
		if kind := classify(r.Error); kind != ErrOperation {
			return r.Error
		}
	}
	return first
}

func (s *zkSession) Exists(path string) (*Stat, error) {
	ok, st, err := s.conn.Exists(path)
	if err != nil {
		return nil, zkError("exists", path, err)
	}
	if !ok || st == nil {
		return nil, nil
	}
	return &Stat{
		Version:        st.Version,
		NumChildren:    st.NumChildren,
		EphemeralOwner: st.EphemeralOwner,
	}, nil
}

func (s *zkSession) Delete(path string, version int32) error {
	if err := s.conn.Delete(path, version); err != nil {
		return zkError("delete", path, err)
	}
	return nil
}

func (s *zkSession) Children(path string) ([]string, error) {
	children, _, err := s.conn.Children(path)
	if err != nil {
		return nil, zkError("children", path, err)
	}
	return children, nil
}

func (s *zkSession) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func zkFlags(mode Mode) int32 {
	var flags int32
	if mode.Ephemeral() {
		flags |= zk.FlagEphemeral
	}
	if mode.Sequential() {
		flags |= zk.FlagSequence
	}
	return flags
}

func classify(err error) error {
	switch {
	case errors.Is(err, zk.ErrNodeExists):
		return ErrNodeExists
	case errors.Is(err, zk.ErrNoNode):
		return ErrNoNode
	case errors.Is(err, zk.ErrBadVersion):
		return ErrVersionMismatch
	case errors.Is(err, zk.ErrNotEmpty):
		return ErrNotEmpty
	case errors.Is(err, zk.ErrConnectionClosed),
		errors.Is(err, zk.ErrSessionExpired),
		errors.Is(err, zk.ErrSessionMoved),
		errors.Is(err, zk.ErrNoServer),
		errors.Is(err, zk.ErrClosing):
		return ErrConnectionLoss
	default:
		return ErrOperation
	}
}

func zkError(op, path string, err error) error {
	return opError(op, path, classify(err), err)
}

// zkLogger routes the library's Printf output into zap.
type zkLogger struct {
	s *zap.SugaredLogger
}

func (l zkLogger) Printf(format string, args ...interface{}) {
	l.s.Debugf(format, args...)
}
