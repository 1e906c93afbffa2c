// Package naming allocates child node paths that stay unique under any
// number of concurrent writers.
//
// The policy must match the creation mode. Sequential modes hand uniqueness
// to the service: every writer asks for the same literal path and the
// service appends a per-parent suffix. Non-sequential modes cannot rely on
// the service, so a process-wide counter supplies the suffix instead.
package naming

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/wesleyorama2/zkbench/internal/coord"
)

// Allocator produces the path for the next create.
//
// Implementations are safe for concurrent use.
type Allocator interface {
	// Next returns the path to pass to create.
	Next() string

	// Sequential reports whether the service completes the name.
	Sequential() bool
}

// Sequential requests the same prefix path on every create.
type Sequential struct {
	path string
}

// NewSequential returns an allocator for PersistentSequential and
// EphemeralSequential creates under root.
func NewSequential(root, prefix string) *Sequential {
	return &Sequential{path: coord.Join(root, prefix)}
}

func (s *Sequential) Next() string     { return s.path }
func (s *Sequential) Sequential() bool { return true }

// Counter appends a process-wide unique id to the prefix.
//
// The id is only reachable through an atomic fetch-and-add, so no two
// callers ever see the same value.
type Counter struct {
	base string
	next atomic.Uint64
}

// NewCounter returns an allocator for Persistent and Ephemeral creates
// under root. Ids start at 0.
func NewCounter(root, prefix string) *Counter {
	return &Counter{base: coord.Join(root, prefix)}
}

func (c *Counter) Next() string {
	id := c.next.Add(1) - 1
	return c.base + strconv.FormatUint(id, 10)
}

func (c *Counter) Sequential() bool { return false }

// ForMode returns the allocator whose uniqueness strategy matches mode.
func ForMode(mode coord.Mode, root, prefix string) Allocator {
	if mode.Sequential() {
		return NewSequential(root, prefix)
	}
	return NewCounter(root, prefix)
}

// SequenceOf extracts the numeric suffix of a child name created under
// prefix. ok is false if name does not have that shape.
func SequenceOf(name, prefix string) (seq uint64, ok bool) {
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	digits := name[len(prefix):]
	if digits == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
