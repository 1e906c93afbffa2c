// Package coord is the thin client layer between the benchmark and the
// coordination service.
//
// The benchmark only needs a handful of operations from the service:
// open and close sessions, create nodes in one of four modes, check for a
// node's existence, delete a node at an expected version and list children.
// Everything else (wire protocol, heartbeats, ACLs, watches) belongs to the
// underlying client library.
//
// Two implementations are provided: ZooKeeper, backed by
// github.com/go-zookeeper/zk, and Memory, an in-process service with the
// same node semantics used for dry runs and tests.
package coord

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// AnyVersion matches every node version on Delete.
const AnyVersion int32 = -1

// Mode is the node creation mode.
type Mode int

const (
	// Persistent nodes survive independently of any session.
	Persistent Mode = iota
	// PersistentSequential nodes get a service-assigned suffix.
	PersistentSequential
	// Ephemeral nodes are deleted when the owning session closes.
	Ephemeral
	// EphemeralSequential combines Ephemeral and the sequence suffix.
	EphemeralSequential
)

func (m Mode) String() string {
	switch m {
	case Persistent:
		return "persistent"
	case PersistentSequential:
		return "persistent-sequential"
	case Ephemeral:
		return "ephemeral"
	case EphemeralSequential:
		return "ephemeral-sequential"
	default:
		return "unknown"
	}
}

// Sequential reports whether the service appends a suffix to the path.
func (m Mode) Sequential() bool {
	return m == PersistentSequential || m == EphemeralSequential
}

// Ephemeral reports whether nodes created in this mode die with their session.
func (m Mode) Ephemeral() bool {
	return m == Ephemeral || m == EphemeralSequential
}

// ParseMode parses the CLI name of a mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "persistent":
		return Persistent, nil
	case "persistent-sequential":
		return PersistentSequential, nil
	case "ephemeral":
		return Ephemeral, nil
	case "ephemeral-sequential":
		return EphemeralSequential, nil
	default:
		return 0, fmt.Errorf("unknown creation mode %q", s)
	}
}

// Stat is the node metadata returned by Exists.
type Stat struct {
	// Version is the data version, used for conditional deletes.
	Version int32
	// NumChildren is the number of direct children.
	NumChildren int32
	// EphemeralOwner is the owning session id, 0 for persistent nodes.
	EphemeralOwner int64
}

// CreateRequest is one create inside a batch.
type CreateRequest struct {
	Path string
	Data []byte
	Mode Mode
}

// Client opens sessions against a coordination service.
type Client interface {
	// Connect opens a new session. Fails with ErrConnection when the
	// service cannot be reached within the configured timeout.
	Connect(ctx context.Context) (Session, error)

	// ConcurrentSessions reports whether a single Session may be used by
	// many goroutines at once.
	ConcurrentSessions() bool
}

// Session is an open connection to the coordination service.
//
// Ephemeral nodes created through a Session are removed by the service
// when the Session closes.
type Session interface {
	// ID returns the service-assigned session id.
	ID() int64

	// Create creates a node and returns its actual path, which differs from
	// the requested one for sequential modes.
	Create(path string, data []byte, mode Mode) (string, error)

	// CreateBatch creates all nodes in one atomic request. Either every
	// create succeeds or none is applied.
	CreateBatch(reqs []CreateRequest) ([]string, error)

	// Exists returns the node's metadata, or nil if the node is absent.
	Exists(path string) (*Stat, error)

	// Delete removes a node if its version matches. AnyVersion skips the
	// check.
	Delete(path string, version int32) error

	// Children lists the names (not paths) of the node's children.
	Children(path string) ([]string, error)

	// Close ends the session. It is irreversible.
	Close()
}

// Join builds a child path.
func Join(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// Clean normalises a node path: a single leading slash, no trailing slash.
func Clean(p string) string {
	p = path.Clean("/" + strings.TrimSpace(p))
	return p
}

// EnsurePath creates every missing ancestor of p (but not p itself) as a
// Persistent node.
func EnsurePath(s Session, p string) error {
	p = Clean(p)
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	cur := ""
	for _, part := range parts[:len(parts)-1] {
		cur += "/" + part
		if _, err := s.Create(cur, nil, Persistent); err != nil && !IsNodeExists(err) {
			return err
		}
	}
	return nil
}
