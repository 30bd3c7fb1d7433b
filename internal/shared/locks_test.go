package shared

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserLocksSerializePerUser(t *testing.T) {
	locks := NewUserLocks()

	var mu sync.Mutex
	counters := map[int64]int{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, userID := range []int64{1, 2} {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				unlock := locks.Lock(id)
				defer unlock()
				mu.Lock()
				counters[id]++
				mu.Unlock()
			}(userID)
		}
	}
	wg.Wait()

	require.Equal(t, 50, counters[1])
	require.Equal(t, 50, counters[2])
}

func TestUserLocksReentryAfterUnlock(t *testing.T) {
	locks := NewUserLocks()
	unlock := locks.Lock(1)
	unlock()
	unlock = locks.Lock(1)
	unlock()
}
