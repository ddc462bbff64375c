package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockTableAcquireRelease(t *testing.T) {
	locks := newLockTable()

	assert.True(t, locks.TryAcquire(1))
	assert.False(t, locks.TryAcquire(1), "second acquire for the same id must fail")
	assert.True(t, locks.TryAcquire(2), "locks are per id")

	locks.Release(1)
	assert.True(t, locks.TryAcquire(1))
}

func TestLockTableSingleWinnerUnderContention(t *testing.T) {
	locks := newLockTable()

	const goroutines = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if locks.TryAcquire(7) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}
