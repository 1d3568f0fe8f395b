package attempt

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountdownClock_ExpiresExactlyOnce(t *testing.T) {
	for _, seconds := range []int{1, 2, 5, 60} {
		t.Run(fmt.Sprintf("%ds", seconds), func(t *testing.T) {
			hub := &tickerHub{}
			clock, err := NewCountdownClock(seconds, WithTickerFactory(hub.factory))
			require.NoError(t, err)

			var (
				mu       sync.Mutex
				observed []int
				expiries atomic.Int32
			)
			cd, err := clock.Start(func(remaining int) {
				mu.Lock()
				observed = append(observed, remaining)
				mu.Unlock()
			}, func() {
				expiries.Add(1)
			})
			require.NoError(t, err)

			hub.tick(t, seconds)

			select {
			case <-cd.Done():
			case <-time.After(time.Second):
				t.Fatal("countdown did not stop after expiry")
			}

			assert.Equal(t, int32(1), expiries.Load())
			assert.True(t, cd.Expired())
			assert.Equal(t, 0, cd.Remaining())

			mu.Lock()
			defer mu.Unlock()
			require.Len(t, observed, seconds)
			for i, v := range observed {
				assert.GreaterOrEqual(t, v, 0)
				assert.Equal(t, seconds-1-i, v)
			}

			// Further ticks are never consumed.
			select {
			case hub.latest().ch <- time.Now():
				t.Fatal("tick consumed after expiry")
			case <-time.After(20 * time.Millisecond):
			}
			assert.True(t, hub.latest().stopped.Load())
		})
	}
}

func TestCountdownClock_StartOnce(t *testing.T) {
	hub := &tickerHub{}
	clock, err := NewCountdownClock(5, WithTickerFactory(hub.factory))
	require.NoError(t, err)

	cd, err := clock.Start(nil, nil)
	require.NoError(t, err)
	defer cd.Cancel()

	_, err = clock.Start(nil, nil)
	assert.ErrorIs(t, err, ErrClockStarted)
	assert.Equal(t, 1, hub.count())
}

func TestCountdownClock_InvalidDuration(t *testing.T) {
	for _, s := range []int{0, -3} {
		_, err := NewCountdownClock(s)
		assert.ErrorIs(t, err, ErrInvalidDuration)
	}
}

func TestCountdown_CancelIsIdempotent(t *testing.T) {
	hub := &tickerHub{}
	clock, err := NewCountdownClock(10, WithTickerFactory(hub.factory))
	require.NoError(t, err)

	var expiries atomic.Int32
	cd, err := clock.Start(nil, func() { expiries.Add(1) })
	require.NoError(t, err)

	hub.tick(t, 3)
	require.Eventually(t, func() bool { return cd.Remaining() == 7 }, time.Second, time.Millisecond)
	assert.True(t, cd.Cancel())
	assert.False(t, cd.Cancel())
	assert.False(t, cd.Cancel())

	<-cd.Done()
	assert.True(t, cd.Cancelled())
	assert.False(t, cd.Expired())
	assert.Equal(t, 7, cd.Remaining())
	assert.Equal(t, int32(0), expiries.Load())
	assert.True(t, hub.latest().stopped.Load())
}

func TestCountdown_CancelAfterExpiry(t *testing.T) {
	hub := &tickerHub{}
	clock, err := NewCountdownClock(2, WithTickerFactory(hub.factory))
	require.NoError(t, err)

	cd, err := clock.Start(nil, nil)
	require.NoError(t, err)

	hub.tick(t, 2)
	<-cd.Done()

	assert.False(t, cd.Cancel())
	assert.True(t, cd.Expired())
}
