package bus

import (
	"sync"

	"github.com/rtivolle/emhacs/internal/telemetry"
)

// Bus provides fan-out pub/sub semantics for *telemetry.Snapshot*
// messages. Each Subscribe call gets its own channel that receives every
// future publication. Past snapshots are not replayed; late subscribers
// read the coordinator's current snapshot accessor instead. Safe for
// concurrent publishers and subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan *telemetry.Snapshot
}

// New creates a ready-to-use Bus.
func New() *Bus { return &Bus{} }

// Subscribe returns a read-only channel that will receive all future
// snapshots.
func (b *Bus) Subscribe() <-chan *telemetry.Snapshot {
	ch := make(chan *telemetry.Snapshot, 1) // small buffer avoids blocking
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers the snapshot to all subscribers in a best-effort,
// non-blocking way. A subscriber that has not drained its buffer simply
// misses this snapshot and picks up the next one.
func (b *Bus) Publish(s *telemetry.Snapshot) {
	b.mu.RLock()
	subs := make([]chan *telemetry.Snapshot, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- s:
		default:
			continue
		}
	}
}
