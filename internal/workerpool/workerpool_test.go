package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_SubmitRunsJobs(t *testing.T) {
	p := New(4, 16)
	defer p.Close()

	var n int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		p.Submit(func() {
			defer wg.Done()
			atomic.AddInt32(&n, 1)
		})
	}
	wg.Wait()
	assert.EqualValues(t, 50, atomic.LoadInt32(&n))
}

func TestPool_DefaultsSizeWhenNonPositive(t *testing.T) {
	p := New(0, 0)
	defer p.Close()

	done := make(chan struct{})
	p.Submit(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
}

func TestPool_SubmitAfterCloseIsNoop(t *testing.T) {
	p := New(1, 1)
	p.Close()

	ran := make(chan struct{}, 1)
	p.Submit(func() { ran <- struct{}{} })

	select {
	case <-ran:
		t.Fatal("job should not run after Close")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPool_SubmitContextCancellation(t *testing.T) {
	// A single-worker, zero-queue pool that's already busy forces Submit to
	// block on the full channel; SubmitContext must give up when ctx is done.
	p := New(1, 0)
	defer p.Close()

	blocker := make(chan struct{})
	p.Submit(func() { <-blocker })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	started := time.Now()
	p.SubmitContext(ctx, func() {})
	require.Less(t, time.Since(started), time.Second)

	close(blocker)
}
