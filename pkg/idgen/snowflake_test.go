package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnowflakeRejectsOutOfRangeWorker(t *testing.T) {
	_, err := NewSnowflake(-1)
	require.Error(t, err)

	_, err = NewSnowflake(maxWorkerID + 1)
	require.Error(t, err)
}

func TestGenerateIsUniqueUnderConcurrency(t *testing.T) {
	gen, err := NewSnowflake(7)
	require.NoError(t, err)

	const goroutines = 8
	const perGoroutine = 2000

	var (
		mu   sync.Mutex
		seen = make(map[int64]struct{}, goroutines*perGoroutine)
		wg   sync.WaitGroup
	)
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			local := make([]int64, 0, perGoroutine)
			for j := 0; j < perGoroutine; j++ {
				local = append(local, gen.Generate())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestGenerateTransactionNoFormat(t *testing.T) {
	no := GenerateTransactionNo()
	assert.True(t, strings.HasPrefix(no, "UNT"))
	assert.Len(t, no, 3+14+8)

	id := GenerateEventID()
	assert.True(t, strings.HasPrefix(id, "EVT"))
	assert.NotEqual(t, id, GenerateEventID())
}
