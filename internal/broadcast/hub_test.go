package broadcast

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHub_DeliversOncePerSubscriber(t *testing.T) {
	var h Hub[int]
	var a, b []int

	h.Subscribe(func(v int) { a = append(a, v) })
	h.Subscribe(func(v int) { b = append(b, v) })

	h.Publish(1)
	h.Publish(2)

	assert.Equal(t, []int{1, 2}, a)
	assert.Equal(t, []int{1, 2}, b)
}

func TestHub_Unsubscribe(t *testing.T) {
	var h Hub[string]
	var got []string

	unsub := h.Subscribe(func(v string) { got = append(got, v) })
	h.Publish("x")
	unsub()
	unsub()
	h.Publish("y")

	assert.Equal(t, []string{"x"}, got)
	assert.Equal(t, 0, h.Len())
}

func TestHub_UnsubscribeDuringDelivery(t *testing.T) {
	var h Hub[int]
	var first, second []int

	var unsubSecond func()
	h.Subscribe(func(v int) {
		first = append(first, v)
		unsubSecond()
	})
	unsubSecond = h.Subscribe(func(v int) { second = append(second, v) })

	h.Publish(1)
	h.Publish(2)

	assert.Equal(t, []int{1, 2}, first)
	assert.Empty(t, second, "subscriber removed mid-delivery must not be called")
}

func TestHub_SelfUnsubscribe(t *testing.T) {
	var h Hub[int]
	calls := 0

	var unsub func()
	unsub = h.Subscribe(func(int) {
		calls++
		unsub()
	})

	h.Publish(1)
	h.Publish(2)
	assert.Equal(t, 1, calls)
}

func TestHub_SubscribeDuringDeliveryNotCalledForCurrentValue(t *testing.T) {
	var h Hub[int]
	var late []int

	h.Subscribe(func(v int) {
		if v == 1 {
			h.Subscribe(func(v int) { late = append(late, v) })
		}
	})

	h.Publish(1)
	h.Publish(2)
	assert.Equal(t, []int{2}, late)
}

func TestHub_ConcurrentPublish(t *testing.T) {
	var h Hub[int]
	var mu sync.Mutex
	total := 0
	h.Subscribe(func(v int) {
		mu.Lock()
		total += v
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Publish(1)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, total)
}
