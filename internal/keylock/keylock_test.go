package keylock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunExclusiveSerializesSameKey(t *testing.T) {
	km := New()

	var mu sync.Mutex
	inside := 0
	maxInside := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := km.RunExclusive(context.Background(), "04A1B2", func() error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside, "critical sections for the same key must never overlap")
}

func TestRunExclusiveDifferentKeysRunConcurrently(t *testing.T) {
	km := New()

	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = km.RunExclusive(context.Background(), "CARD-A", func() error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started

	// A different key must not queue behind CARD-A.
	done := make(chan struct{})
	go func() {
		_ = km.RunExclusive(context.Background(), "CARD-B", func() error {
			close(done)
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("CARD-B blocked behind CARD-A")
	}
	close(release)
}

func TestRunExclusiveReleasesOnError(t *testing.T) {
	km := New()
	boom := errors.New("boom")

	err := km.RunExclusive(context.Background(), "CARD-A", func() error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	// The key must be reusable after a failing fn.
	err = km.RunExclusive(context.Background(), "CARD-A", func() error { return nil })
	require.NoError(t, err)
}

func TestRunExclusiveContextCanceled(t *testing.T) {
	km := New()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = km.RunExclusive(context.Background(), "CARD-A", func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := km.RunExclusive(ctx, "CARD-A", func() error {
		t.Fatal("fn must not run when the acquire is canceled")
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestEntriesEvictedWhenIdle(t *testing.T) {
	km := New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := []string{"A", "B", "C"}[n%3]
			_ = km.RunExclusive(context.Background(), key, func() error {
				time.Sleep(time.Millisecond)
				return nil
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, km.Len(), "idle keys must not leak map entries")
}
