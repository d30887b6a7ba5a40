package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequence_ZeroValue(t *testing.T) {
	var s Sequence
	assert.Equal(t, int64(0), s.Last())
	assert.Equal(t, int64(1), s.Next())
	assert.Equal(t, int64(2), s.Next())
	assert.Equal(t, int64(2), s.Last())
}

func TestSequence_UniqueUnderContention(t *testing.T) {
	var s Sequence
	const workers, calls = 50, 100

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool, workers*calls)
		wg   sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				v := s.Next()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*calls, "every value is handed out once")
	assert.Equal(t, int64(workers*calls), s.Last())
}
