package bench

import (
	"time"

	"github.com/wesleyorama2/zkbench/internal/coord"
	"github.com/wesleyorama2/zkbench/internal/naming"
)

// Tally is what the aggregator reads back from the service.
type Tally struct {
	// Count is the number of children under the root.
	Count int `json:"count"`

	// Throughput is Count divided by the measurement window in seconds.
	Throughput float64 `json:"throughput"`

	// Sequence range of service-assigned suffixes; sequential modes only.
	FirstSeq uint64 `json:"firstSeq,omitempty"`
	LastSeq  uint64 `json:"lastSeq,omitempty"`

	// Gaps is the number of suffixes inside [FirstSeq, LastSeq] with no
	// counted child.
	Gaps uint64 `json:"gaps,omitempty"`
}

// Aggregate counts the children of root and derives throughput over d.
// A failed listing fails the run; there is no recovery here.
func Aggregate(s coord.Session, root, prefix string, sequential bool, d time.Duration) (*Tally, error) {
	children, err := s.Children(root)
	if err != nil {
		return nil, err
	}

	t := &Tally{Count: len(children)}
	if d > 0 {
		t.Throughput = float64(t.Count) / d.Seconds()
	}

	if sequential && t.Count > 0 {
		// Foreign names such as node_1 next to node_0000000001 can share a
		// sequence number; gaps are counted over distinct numbers.
		seen := make(map[uint64]struct{}, len(children))
		first, last := ^uint64(0), uint64(0)
		for _, name := range children {
			seq, ok := naming.SequenceOf(name, prefix)
			if !ok {
				continue
			}
			seen[seq] = struct{}{}
			if seq < first {
				first = seq
			}
			if seq > last {
				last = seq
			}
		}
		if len(seen) > 0 {
			t.FirstSeq, t.LastSeq = first, last
			t.Gaps = last - first + 1 - uint64(len(seen))
		}
	}
	return t, nil
}
