package attempt

import (
	"sync"
	"sync/atomic"
	"time"
)

// Ticker is the tick source driving a countdown. *time.Ticker satisfies it
// through SystemTicker; tests drive it by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory builds a Ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type systemTicker struct{ t *time.Ticker }

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

// SystemTicker is the wall-clock TickerFactory.
func SystemTicker(d time.Duration) Ticker {
	return systemTicker{t: time.NewTicker(d)}
}

// ClockOption configures a CountdownClock.
type ClockOption func(*CountdownClock)

// WithTickerFactory replaces the wall-clock tick source.
func WithTickerFactory(f TickerFactory) ClockOption {
	return func(c *CountdownClock) {
		if f != nil {
			c.newTicker = f
		}
	}
}

// CountdownClock counts a fixed number of seconds down to zero. A clock can
// be started once; Start hands back the Countdown that owns the ticking.
type CountdownClock struct {
	seconds   int
	newTicker TickerFactory
	started   atomic.Bool
}

// NewCountdownClock returns a clock for seconds, which must be positive.
func NewCountdownClock(seconds int, opts ...ClockOption) (*CountdownClock, error) {
	if seconds <= 0 {
		return nil, ErrInvalidDuration
	}
	c := &CountdownClock{seconds: seconds, newTicker: SystemTicker}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Seconds returns the initial duration.
func (c *CountdownClock) Seconds() int { return c.seconds }

// Start begins ticking. onTick receives every new remaining value, including
// the final 0; onExpire fires exactly once, right after that final tick.
// Both run on the countdown goroutine and may be nil.
func (c *CountdownClock) Start(onTick func(remaining int), onExpire func()) (*Countdown, error) {
	if !c.started.CompareAndSwap(false, true) {
		return nil, ErrClockStarted
	}

	cd := &Countdown{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	cd.remaining.Store(int64(c.seconds))

	go cd.run(c.newTicker(time.Second), onTick, onExpire)
	return cd, nil
}

const (
	countdownRunning int32 = iota
	countdownCancelled
	countdownExpired
)

// Countdown is a running clock. Cancel is idempotent and safe after expiry.
type Countdown struct {
	remaining atomic.Int64
	state     atomic.Int32
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

func (cd *Countdown) run(t Ticker, onTick func(int), onExpire func()) {
	defer close(cd.done)
	defer t.Stop()

	for {
		select {
		case <-cd.stop:
			return
		case <-t.C():
			if cd.state.Load() != countdownRunning {
				return
			}

			next := cd.remaining.Add(-1)
			if next > 0 {
				if onTick != nil {
					onTick(int(next))
				}
				continue
			}

			// Lost the race against Cancel: stop silently.
			if !cd.state.CompareAndSwap(countdownRunning, countdownExpired) {
				return
			}
			if onTick != nil {
				onTick(0)
			}
			if onExpire != nil {
				onExpire()
			}
			return
		}
	}
}

// Cancel stops the countdown. It reports whether this call did the
// cancelling; it returns false if the countdown had already expired or been
// cancelled.
func (cd *Countdown) Cancel() bool {
	cancelled := cd.state.CompareAndSwap(countdownRunning, countdownCancelled)
	cd.stopOnce.Do(func() { close(cd.stop) })
	return cancelled
}

// Remaining returns the seconds left. It is never negative.
func (cd *Countdown) Remaining() int {
	if r := cd.remaining.Load(); r > 0 {
		return int(r)
	}
	return 0
}

// Expired reports whether the countdown reached zero.
func (cd *Countdown) Expired() bool { return cd.state.Load() == countdownExpired }

// Cancelled reports whether the countdown was stopped before reaching zero.
func (cd *Countdown) Cancelled() bool { return cd.state.Load() == countdownCancelled }

// Done is closed once the ticking goroutine has exited.
func (cd *Countdown) Done() <-chan struct{} { return cd.done }
