package approval

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClaimLocks(t *testing.T) {
	t.Parallel()

	t.Run("serializes the same claim", func(t *testing.T) {
		t.Parallel()
		locks := newClaimLocks()

		var (
			wg      sync.WaitGroup
			inside  int
			maxSeen int
			mu      sync.Mutex
		)
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := locks.lock("claim")
				defer unlock()

				mu.Lock()
				inside++
				maxSeen = max(maxSeen, inside)
				mu.Unlock()

				mu.Lock()
				inside--
				mu.Unlock()
			}()
		}
		wg.Wait()

		require.Equal(t, 1, maxSeen)
		require.Zero(t, locks.size())
	})

	t.Run("different claims do not block each other", func(t *testing.T) {
		t.Parallel()
		locks := newClaimLocks()

		unlockA := locks.lock("a")
		done := make(chan struct{})
		go func() {
			unlockB := locks.lock("b")
			unlockB()
			close(done)
		}()
		<-done

		require.Equal(t, 1, locks.size())
		unlockA()
		require.Zero(t, locks.size())
	})
}
