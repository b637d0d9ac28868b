package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	k := newKeyedMutex()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  = map[string]int{}
		maxSeen = map[string]int{}
	)
	for i := 0; i < 40; i++ {
		key := []string{"a", "b"}[i%2]
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.lock(key)
			mu.Lock()
			inside[key]++
			if inside[key] > maxSeen[key] {
				maxSeen[key] = inside[key]
			}
			mu.Unlock()

			mu.Lock()
			inside[key]--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen["a"])
	assert.Equal(t, 1, maxSeen["b"])
	assert.Equal(t, 0, k.size())
}

func TestKeyedMutexDropsReleasedKeys(t *testing.T) {
	k := newKeyedMutex()

	unlockA := k.lock("a")
	unlockB := k.lock("b")
	assert.Equal(t, 2, k.size())

	unlockA()
	assert.Equal(t, 1, k.size())
	unlockB()
	assert.Equal(t, 0, k.size())

	k.lock("a")()
	assert.Equal(t, 0, k.size())
}
