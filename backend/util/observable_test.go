package util

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservable_SetReportsChange(t *testing.T) {
	o := NewObservable(1)
	assert.False(t, o.Set(1))
	assert.True(t, o.Set(2))
	assert.Equal(t, 2, o.Get())
	assert.True(t, o.Update(func(v int) int { return v * 10 }))
	assert.Equal(t, 20, o.Get())
}

func TestObservable_SubscribeDeliversCurrentValue(t *testing.T) {
	o := NewObservable("a")
	got := make(chan string, 4)
	unsub := o.Subscribe(func(s string) { got <- s })
	defer unsub()

	select {
	case v := <-got:
		assert.Equal(t, "a", v)
	case <-time.After(time.Second):
		t.Fatal("no initial value delivered")
	}
}

func TestObservable_ConflatesToLatest(t *testing.T) {
	o := NewObservable(0)
	var mu sync.Mutex
	var last int
	block := make(chan struct{})
	unsub := o.Subscribe(func(v int) {
		<-block
		mu.Lock()
		last = v
		mu.Unlock()
	})
	defer unsub()

	for i := 1; i <= 100; i++ {
		o.Set(i)
	}
	close(block)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last == 100
	}, time.Second, 5*time.Millisecond)
}

func TestObservable_UnsubscribeStopsDelivery(t *testing.T) {
	o := NewObservable(0)
	got := make(chan int, 16)
	unsub := o.Subscribe(func(v int) { got <- v })
	<-got
	unsub()
	unsub()
	o.Set(5)

	select {
	case v := <-got:
		t.Fatalf("unexpected delivery after unsubscribe: %d", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestObservableFunc_CustomEquality(t *testing.T) {
	o := NewObservableFunc([]int{1, 2}, func(a, b []int) bool { return len(a) == len(b) })
	assert.False(t, o.Set([]int{3, 4}))
	assert.True(t, o.Set([]int{3}))
}
