package server

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncPoolRunsInline(t *testing.T) {
	var pool SyncPool
	ran := false
	pool.Submit(func() { ran = true })
	assert.True(t, ran)
}

func TestGoroutinePoolRunsConcurrently(t *testing.T) {
	var pool goroutinePool
	var wg sync.WaitGroup
	wg.Add(1)
	pool.Submit(func() {
		defer wg.Done()
	})
	wg.Wait()
}
