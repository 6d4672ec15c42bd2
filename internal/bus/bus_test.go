package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtivolle/emhacs/internal/telemetry"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := New()
	first := b.Subscribe()
	second := b.Subscribe()

	snap := &telemetry.Snapshot{FetchedAt: time.Now()}
	b.Publish(snap)

	select {
	case got := <-first:
		assert.Same(t, snap, got)
	default:
		t.Fatal("first subscriber did not receive the snapshot")
	}
	select {
	case got := <-second:
		assert.Same(t, snap, got)
	default:
		t.Fatal("second subscriber did not receive the snapshot")
	}
}

func TestPublishSkipsBusySubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe()

	older := &telemetry.Snapshot{FetchedAt: time.Now()}
	newer := &telemetry.Snapshot{FetchedAt: time.Now().Add(time.Minute)}

	// The buffer holds one snapshot; the second publish must not block.
	done := make(chan struct{})
	go func() {
		b.Publish(older)
		b.Publish(newer)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a busy subscriber")
	}

	got := <-sub
	require.Same(t, older, got, "busy subscriber keeps the buffered snapshot")
	select {
	case <-sub:
		t.Fatal("skipped snapshot must not be delivered later")
	default:
	}
}

func TestSubscribeDoesNotReplayPastSnapshots(t *testing.T) {
	b := New()
	b.Publish(&telemetry.Snapshot{FetchedAt: time.Now()})

	sub := b.Subscribe()
	select {
	case <-sub:
		t.Fatal("late subscriber must not see past snapshots")
	default:
	}
}
