package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var processed int32
	done := make(chan struct{}, 3)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&processed, 1)
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "job", Type: "noop"}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job not processed")
		}
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&processed))
}

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{ID: "1"}))
}

func TestQueueReportsFullBuffer(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("full", func(ctx context.Context, job Job) error {
		<-block
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1, DrainTimeout: 10 * time.Millisecond})
	q.Start(context.Background())
	defer func() {
		close(block)
		q.Stop()
	}()

	require.NoError(t, q.Enqueue(Job{ID: "1"}))
	var err error
	for i := 0; i < 5 && err == nil; i++ {
		err = q.Enqueue(Job{ID: "n"})
	}
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestQueueRetriesThenDeadLetters(t *testing.T) {
	var attempts int32
	var mu sync.Mutex
	var dead []Job
	deadCh := make(chan struct{})
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("broker down")
	}, QueueConfig{
		Workers:    1,
		MaxRetries: 2,
		RetryDelay: 5 * time.Millisecond,
		OnDeadLetter: func(job Job, err error) {
			mu.Lock()
			dead = append(dead, job)
			mu.Unlock()
			close(deadCh)
		},
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "n-1", Type: "notification"}))

	select {
	case <-deadCh:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not dead-lettered")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, dead, 1)
	assert.Equal(t, "n-1", dead[0].ID)
}

func TestQueueAccountsForJobsEnqueuedDuringStop(t *testing.T) {
	var handled, deadLettered int64
	q := NewQueue("stopping", func(ctx context.Context, job Job) error {
		atomic.AddInt64(&handled, 1)
		return nil
	}, QueueConfig{
		Workers:    2,
		BufferSize: 64,
		OnDeadLetter: func(Job, error) {
			atomic.AddInt64(&deadLettered, 1)
		},
	})
	q.Start(context.Background())

	var accepted int64
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if q.Enqueue(Job{ID: "j", Type: "noop"}) == nil {
					atomic.AddInt64(&accepted, 1)
				}
			}
		}()
	}
	time.Sleep(time.Millisecond)
	q.Stop()
	wg.Wait()

	assert.Equal(t, atomic.LoadInt64(&accepted), atomic.LoadInt64(&handled)+atomic.LoadInt64(&deadLettered))
	assert.Zero(t, q.Len())
}

func TestQueueDeadLettersJobsLeftAfterDrainTimeout(t *testing.T) {
	release := make(chan struct{})
	var deadLettered int64
	q := NewQueue("slow", func(ctx context.Context, job Job) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}, QueueConfig{
		Workers:      1,
		BufferSize:   4,
		DrainTimeout: 20 * time.Millisecond,
		OnDeadLetter: func(Job, error) {
			atomic.AddInt64(&deadLettered, 1)
		},
	})
	q.Start(context.Background())
	for i := 0; i < 4; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "slow"}))
	}
	q.Stop()
	close(release)

	assert.Zero(t, q.Len())
	assert.Positive(t, atomic.LoadInt64(&deadLettered))
}
