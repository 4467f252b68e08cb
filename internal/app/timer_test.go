package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"pool-quiz-service/internal/app"
	"pool-quiz-service/internal/domain"
)

func TestRoundTimerCountsDown(t *testing.T) {
	ctx := context.Background()
	engine, bcast, fc := newTestEngine(t)

	session, _, _ := engine.StartGame(ctx, "quiz-42")
	pin := session.Pin
	_, _ = engine.Join(ctx, pin, "alice")
	if err := engine.NextRound(ctx, pin); err != nil {
		t.Fatalf("next round: %v", err)
	}

	waitFor(t, "first tick", func() bool {
		ev, ok := bcast.last(pin, app.TopicTimer)
		return ok && ev.payload == int64(15)
	})

	advanceUntil(t, fc, "second tick", func() bool {
		ev, ok := bcast.last(pin, app.TopicTimer)
		return ok && ev.payload == int64(14)
	})
}

func TestRoundTimeoutRevealsAnswerThenScoreboard(t *testing.T) {
	ctx := context.Background()
	engine, bcast, fc := newTestEngine(t)

	session, _, _ := engine.StartGame(ctx, "quiz-42")
	pin := session.Pin
	_, _ = engine.Join(ctx, pin, "alice")
	_, _ = engine.Join(ctx, pin, "bob")
	if err := engine.NextRound(ctx, pin); err != nil {
		t.Fatalf("next round: %v", err)
	}

	// alice answers in time for points; bob never does.
	if _, err := engine.SubmitAnswer(ctx, pin, "alice", "q1", "4"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	advanceUntil(t, fc, "timeout tick", func() bool {
		ev, ok := bcast.last(pin, app.TopicTimer)
		return ok && ev.payload == 0
	})

	waitFor(t, "answer reveal", func() bool {
		ev, ok := bcast.last(pin, app.TopicResult)
		return ok && ev.payload == "4"
	})

	advanceUntil(t, fc, "post-reveal scoreboard", func() bool {
		ev, ok := bcast.last(pin, app.TopicScoreboard)
		if !ok {
			return false
		}
		entries, ok := ev.payload.([]domain.ScoreboardEntry)
		return ok && len(entries) == 2 && entries[0].Nickname == "alice" && entries[0].Score == 200
	})
}

func TestStopCancelsCountdown(t *testing.T) {
	ctx := context.Background()
	engine, bcast, fc := newTestEngine(t)

	session, _, _ := engine.StartGame(ctx, "quiz-42")
	pin := session.Pin
	_, _ = engine.Join(ctx, pin, "alice")
	if err := engine.NextRound(ctx, pin); err != nil {
		t.Fatalf("next round: %v", err)
	}
	waitFor(t, "first tick", func() bool {
		_, ok := bcast.last(pin, app.TopicTimer)
		return ok
	})

	engine.Timer().Stop(pin)
	fc.Advance(20 * time.Second)
	time.Sleep(50 * time.Millisecond)

	for _, ev := range bcast.byTopic(pin, app.TopicTimer) {
		if ev.payload == 0 {
			t.Fatalf("timeout fired after Stop")
		}
	}
	if events := bcast.byTopic(pin, app.TopicResult); len(events) != 0 {
		t.Fatalf("reveal fired after Stop: %+v", events)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	engine.Timer().Stop("123456")
	engine.Timer().Stop("123456")
}

func TestCompleteRoundRevealsWithoutWaitingForDeadline(t *testing.T) {
	ctx := context.Background()
	engine, bcast, fc := newTestEngine(t)

	session, _, _ := engine.StartGame(ctx, "quiz-42")
	pin := session.Pin
	_, _ = engine.Join(ctx, pin, "alice")
	if err := engine.NextRound(ctx, pin); err != nil {
		t.Fatalf("next round: %v", err)
	}

	allAnswered, err := engine.SubmitAnswer(ctx, pin, "alice", "q1", "4")
	if err != nil || !allAnswered {
		t.Fatalf("expected sole player to close the round, got %v %v", allAnswered, err)
	}
	engine.CompleteRound(pin)

	if ev, ok := bcast.last(pin, app.TopicResult); !ok || ev.payload != "4" {
		t.Fatalf("expected immediate reveal, got %+v ok=%v", ev, ok)
	}

	advanceUntil(t, fc, "post-reveal scoreboard", func() bool {
		ev, ok := bcast.last(pin, app.TopicScoreboard)
		if !ok {
			return false
		}
		entries, ok := ev.payload.([]domain.ScoreboardEntry)
		return ok && len(entries) == 1 && entries[0].Score == 200
	})

	for _, ev := range bcast.byTopic(pin, app.TopicTimer) {
		if ev.payload == 0 {
			t.Fatalf("deadline timeout fired after fast finish")
		}
	}
}

func TestRestartReplacesRunningCountdown(t *testing.T) {
	ctx := context.Background()
	engine, bcast, fc := newTestEngine(t)

	session, _, _ := engine.StartGame(ctx, "quiz-42")
	pin := session.Pin
	_, _ = engine.Join(ctx, pin, "alice")

	if err := engine.NextRound(ctx, pin); err != nil {
		t.Fatalf("round 1: %v", err)
	}
	waitFor(t, "round 1 first tick", func() bool {
		ev, ok := bcast.last(pin, app.TopicTimer)
		return ok && ev.payload == int64(15)
	})
	fc.Advance(7 * time.Second)
	if err := engine.NextRound(ctx, pin); err != nil {
		t.Fatalf("round 2: %v", err)
	}

	// The restarted countdown is rooted at round 2's dispatch instant, so a
	// second full-duration tick shows up.
	waitFor(t, "full countdown after restart", func() bool {
		full := 0
		for _, ev := range bcast.byTopic(pin, app.TopicTimer) {
			if ev.payload == int64(15) {
				full++
			}
		}
		return full >= 2
	})
}

// waitFor polls until cond holds; the clock is not touched.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// advanceUntil steps the fake clock forward one second at a time until cond
// holds, giving background goroutines real time to observe each step.
func advanceUntil(t *testing.T, fc *clockwork.FakeClock, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		fc.Advance(time.Second)
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
