package service

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_TryAcquire(t *testing.T) {
	g := NewGuard()

	release, ok := g.TryAcquire(PostKey(1))
	require.True(t, ok)
	assert.True(t, g.Held(PostKey(1)))

	_, ok = g.TryAcquire(PostKey(1))
	assert.False(t, ok)

	_, ok = g.TryAcquire(PairKey(1, 2))
	assert.True(t, ok, "pair keys are independent of post keys")

	release()
	release()
	assert.False(t, g.Held(PostKey(1)))

	_, ok = g.TryAcquire(PostKey(1))
	assert.True(t, ok)
}

func TestGuard_SingleWinner(t *testing.T) {
	g := NewGuard()
	var winners int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := g.TryAcquire("same"); ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}
