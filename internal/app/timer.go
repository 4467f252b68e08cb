package app

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// RoundTimer drives one countdown per live round: a 1-second tick loop rooted
// at the round's start timestamp. Each PIN owns its own handle; timers for
// different games never contend on anything but the bookkeeping map.
type RoundTimer struct {
	registry    SessionRegistry
	broadcaster Broadcaster
	clock       clockwork.Clock
	log         zerolog.Logger

	// onTimeout runs exactly once per round whose deadline passes without an
	// all-answered fast finish. onFault runs instead when a tick panics.
	onTimeout func(pin string)
	onFault   func(pin string)

	mu      sync.Mutex
	handles map[string]*timerHandle
}

type timerHandle struct {
	stop chan struct{}
	once sync.Once
}

func (h *timerHandle) cancel() {
	h.once.Do(func() { close(h.stop) })
}

func newRoundTimer(registry SessionRegistry, broadcaster Broadcaster, clock clockwork.Clock, log zerolog.Logger, onTimeout, onFault func(pin string)) *RoundTimer {
	return &RoundTimer{
		registry:    registry,
		broadcaster: broadcaster,
		clock:       clock,
		log:         log,
		onTimeout:   onTimeout,
		onFault:     onFault,
		handles:     make(map[string]*timerHandle),
	}
}

// Start cancels any countdown already running for the PIN, stamps the round
// start, and begins ticking immediately.
func (t *RoundTimer) Start(pin string) {
	session, ok := t.registry.Get(pin)
	if !ok {
		return
	}
	session.StampRoundStart(t.clock.Now())

	handle := &timerHandle{stop: make(chan struct{})}
	t.mu.Lock()
	if old, exists := t.handles[pin]; exists {
		old.cancel()
	}
	t.handles[pin] = handle
	t.mu.Unlock()

	go t.run(pin, handle)
}

// Stop cancels the countdown for the PIN if one is running. Safe to call from
// any path, any number of times.
func (t *RoundTimer) Stop(pin string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if handle, ok := t.handles[pin]; ok {
		handle.cancel()
		delete(t.handles, pin)
	}
}

// release drops the bookkeeping entry, but only if it still points at this
// handle; a newer round may have replaced it already.
func (t *RoundTimer) release(pin string, handle *timerHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current, ok := t.handles[pin]; ok && current == handle {
		delete(t.handles, pin)
	}
}

func (t *RoundTimer) run(pin string, handle *timerHandle) {
	defer func() {
		if r := recover(); r != nil {
			// A broken tick must not take the scheduler down or leave the
			// countdown silently stuck: that one game is force-ended.
			t.log.Error().Str("pin", pin).Interface("panic", r).Msg("round timer tick panicked")
			t.release(pin, handle)
			t.onFault(pin)
		}
	}()

	ticker := t.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-handle.stop:
			// Stop won the race against a pending tick; never fire a
			// timeout for a cancelled round.
			return
		default:
		}
		if done := t.tick(pin, handle); done {
			t.release(pin, handle)
			return
		}
		select {
		case <-ticker.Chan():
		case <-handle.stop:
			return
		}
	}
}

// tick broadcasts the remaining seconds for the PIN's current round and
// reports whether the countdown is over.
func (t *RoundTimer) tick(pin string, handle *timerHandle) (done bool) {
	session, ok := t.registry.Get(pin)
	if !ok {
		// Session torn down underneath us; nothing left to count for.
		return true
	}
	snap := session.Snapshot()
	if snap.QuestionStartedAt == nil {
		return true
	}

	elapsed := int64(t.clock.Now().Sub(*snap.QuestionStartedAt) / time.Second)
	remaining := int64(snap.QuestionDuration) - elapsed
	if remaining <= 0 {
		t.broadcaster.Publish(pin, TopicTimer, 0)
		handle.cancel()
		t.onTimeout(pin)
		return true
	}

	t.broadcaster.Publish(pin, TopicTimer, remaining)
	return false
}
