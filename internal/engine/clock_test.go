package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/minirx/internal/ir"
)

func TestClock_StartsAtZero(t *testing.T) {
	assert.Equal(t, int64(0), NewClock().Current())
	assert.Equal(t, int64(100), NewClockAt(100).Current())
}

func TestClock_NextIncrements(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}

func TestClock_ConcurrentNextIsUnique(t *testing.T) {
	c := NewClock()
	const n = 200

	var mu sync.Mutex
	seen := make(map[int64]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := c.Next()
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	assert.Equal(t, int64(n), c.Current())
}

func TestStore_TransitionsCarryIncreasingSeq(t *testing.T) {
	s := newTestStore(t, Config{}, WithClock(NewClockAt(10)))

	var seqs []int64
	s.Transitions().Subscribe(func(tr Transition) { seqs = append(seqs, tr.Seq) })
	s.Dispatch(ir.Action{Type: "a"})
	s.Dispatch(ir.Action{Type: "b"})

	// INIT took seq 11.
	assert.Equal(t, []int64{12, 13}, seqs)
}
