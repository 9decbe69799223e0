package bridge

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriberReceivesNoticesInOrder(t *testing.T) {
	b := New()

	var got []bool
	sub := b.Subscribe("monitor", func(n Notice) {
		got = append(got, n.Active)
	})
	defer sub.Close()

	b.Publish(true)
	b.Publish(false)

	assert.Equal(t, []bool{true, false}, got)
	assert.Equal(t, uint64(2), b.Published())
}

func TestLateSubscriberGetsNoReplay(t *testing.T) {
	b := New()
	b.Publish(true)

	var count int
	sub := b.Subscribe("late", func(Notice) { count++ })
	defer sub.Close()

	assert.Equal(t, 0, count)

	b.Publish(false)
	assert.Equal(t, 1, count)
}

func TestUnsubscribedHandlerIsNeverInvoked(t *testing.T) {
	b := New()

	var count int
	sub := b.Subscribe("view", func(Notice) { count++ })
	b.Publish(true)
	require.Equal(t, 1, count)

	sub.Close()
	sub.Close() // 2回目は何もしない
	b.Publish(false)

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestUnsubscribeDuringDelivery(t *testing.T) {
	b := New()

	var second *Subscription
	var secondCalls int
	first := b.Subscribe("first", func(Notice) {
		// 配信中に後続の購読者を解除する
		second.Close()
	})
	defer first.Close()
	second = b.Subscribe("second", func(Notice) { secondCalls++ })

	b.Publish(true)

	assert.Equal(t, 0, secondCalls)
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestUnsubscribeWaitsForRunningDelivery(t *testing.T) {
	b := New()

	entered := make(chan struct{})
	proceed := make(chan struct{})
	var calls atomic.Int32
	sub := b.Subscribe("slow", func(Notice) {
		if calls.Add(1) == 1 {
			close(entered)
			<-proceed
		}
	})

	published := make(chan struct{})
	go func() {
		b.Publish(true)
		close(published)
	}()
	<-entered

	unsubscribed := make(chan struct{})
	go func() {
		b.Unsubscribe(sub)
		close(unsubscribed)
	}()

	select {
	case <-unsubscribed:
		t.Fatal("Unsubscribe returned while the handler was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(proceed)
	<-unsubscribed
	<-published

	b.Publish(false)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestNoDeliveryAfterConcurrentUnsubscribe(t *testing.T) {
	for i := 0; i < 200; i++ {
		b := New()

		var gone atomic.Bool
		var late atomic.Int32
		sub := b.Subscribe("racer", func(Notice) {
			if gone.Load() {
				late.Add(1)
			}
		})

		stop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					b.Publish(true)
				}
			}
		}()

		b.Unsubscribe(sub)
		gone.Store(true)
		b.Publish(false)
		close(stop)
		wg.Wait()

		require.Equal(t, int32(0), late.Load(), "handler invoked after Unsubscribe returned")
	}
}

func TestPanickingHandlerDoesNotBlockOthers(t *testing.T) {
	b := New()

	bad := b.Subscribe("bad", func(Notice) { panic("boom") })
	defer bad.Close()

	var received bool
	good := b.Subscribe("good", func(n Notice) { received = n.Active })
	defer good.Close()

	assert.NotPanics(t, func() { b.Publish(true) })
	assert.True(t, received)
}

func TestConcurrentPublishKeepsPerSubscriberOrderConsistent(t *testing.T) {
	b := New()

	var mu sync.Mutex
	var a, c []bool
	subA := b.Subscribe("a", func(n Notice) {
		mu.Lock()
		a = append(a, n.Active)
		mu.Unlock()
	})
	defer subA.Close()
	subC := b.Subscribe("c", func(n Notice) {
		mu.Lock()
		c = append(c, n.Active)
		mu.Unlock()
	})
	defer subC.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(active bool) {
			defer wg.Done()
			b.Publish(active)
		}(i%2 == 0)
	}
	wg.Wait()

	// 全購読者が同じ順序で通知を受け取る
	assert.Len(t, a, 20)
	assert.Equal(t, a, c)
}
