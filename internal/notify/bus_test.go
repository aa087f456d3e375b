package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelcheck/internal/notify/metrics"
)

func receive(t *testing.T, sub *Subscription) Notification {
	t.Helper()
	select {
	case n, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return n
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
	return Notification{}
}

func TestBus_ConnectedOnSubscribe(t *testing.T) {
	bus := NewBus()
	bus.Publish(Notification{Type: TypeStatusChanged, ApplicationID: "before"})

	sub := bus.Subscribe(Filter{})
	defer sub.Close()

	n := receive(t, sub)
	assert.Equal(t, TypeConnected, n.Type)
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.Timestamp.IsZero())

	select {
	case extra := <-sub.C():
		t.Fatalf("unexpected replay: %+v", extra)
	default:
	}
}

func TestBus_FanoutAndFilter(t *testing.T) {
	bus := NewBus()
	all := bus.Subscribe(Filter{})
	onlyA := bus.Subscribe(Filter{ApplicationID: "a"})
	defer all.Close()
	defer onlyA.Close()
	receive(t, all)
	receive(t, onlyA)

	bus.Publish(Notification{Type: TypeStatusChanged, ApplicationID: "b", Scope: ScopeApplication})
	bus.Publish(Notification{Type: TypeSyncAck, ApplicationID: "a", Scope: ScopeApplication})

	assert.Equal(t, "b", receive(t, all).ApplicationID)
	assert.Equal(t, "a", receive(t, all).ApplicationID)
	assert.Equal(t, TypeSyncAck, receive(t, onlyA).Type)
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	bus := NewBus(WithBufferSize(2), WithMetrics(m))
	slow := bus.Subscribe(Filter{})
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		for range 100 {
			bus.Publish(Notification{Type: TypeBatchProgress, BatchID: "b1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}
	// buffer of 2 holds the connected notification plus one progress update
	assert.InDelta(t, 99, testutil.ToFloat64(m.Dropped), 0)
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(Filter{})
	receive(t, sub)
	assert.Equal(t, 1, bus.SubscriberCount())

	sub.Close()
	sub.Close()
	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.Equal(t, 0, bus.SubscriberCount())

	bus.Close()
	late := bus.Subscribe(Filter{})
	_, ok = <-late.C()
	assert.False(t, ok)
	late.Close()
}

func TestBus_ConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewBus()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 50 {
				bus.Publish(Notification{Type: TypeScanProgress})
			}
		}()
		go func() {
			defer wg.Done()
			sub := bus.Subscribe(Filter{})
			sub.Close()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, bus.SubscriberCount())
}
