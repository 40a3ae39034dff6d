package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/asterixix/tecza/internal/store"
	"github.com/asterixix/tecza/internal/store/memory"
)

func setup(t *testing.T) (*memory.Store, uuid.UUID) {
	t.Helper()
	s := memory.New()
	conv := &store.Conversation{
		ID:           uuid.New(),
		Participants: []string{"alice"},
		WrappedKeys:  store.WrappedKeyMap{},
	}
	if err := s.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	return s, conv.ID
}

func insert(t *testing.T, s *memory.Store, convID uuid.UUID) *store.Message {
	t.Helper()
	msg := &store.Message{ID: uuid.New(), ConversationID: convID, Sender: "alice", Kind: store.KindText}
	if err := s.InsertMessage(context.Background(), msg); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
	return msg
}

func receive(t *testing.T, ch <-chan store.Message) store.Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed unexpectedly")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message")
	}
	return store.Message{}
}

func TestNewPollerDefaults(t *testing.T) {
	p := NewPoller(Config{})
	if p.initial != PollingInitialInterval {
		t.Errorf("initial = %v, want %v", p.initial, PollingInitialInterval)
	}
	if p.max != PollingMaxBackoff {
		t.Errorf("max = %v, want %v", p.max, PollingMaxBackoff)
	}

	p = NewPoller(Config{InitialInterval: time.Minute, MaxBackoff: time.Second})
	if p.max != time.Minute {
		t.Errorf("expected max backoff to be raised to the initial interval, got %v", p.max)
	}
}

func TestNextInterval(t *testing.T) {
	p := NewPoller(Config{InitialInterval: time.Second, MaxBackoff: 3 * time.Second})

	got := p.nextInterval(time.Second)
	if got != 1500*time.Millisecond {
		t.Errorf("nextInterval(1s) = %v, want 1.5s", got)
	}
	got = p.nextInterval(2500 * time.Millisecond)
	if got != 3*time.Second {
		t.Errorf("nextInterval should cap at max backoff, got %v", got)
	}
}

func TestWaitDurationJitter(t *testing.T) {
	p := NewPoller(Config{})
	interval := 2 * time.Second
	minExpected := time.Duration(float64(interval) * (1 - PollingJitterFactor))
	maxExpected := time.Duration(float64(interval) * (1 + PollingJitterFactor))

	for i := 0; i < 100; i++ {
		d := p.waitDuration(interval)
		if d < minExpected || d > maxExpected {
			t.Errorf("wait duration %v outside [%v, %v]", d, minExpected, maxExpected)
		}
	}
}

func TestSubscribeDeliversOnlyNewMessages(t *testing.T) {
	s, convID := setup(t)
	old := insert(t, s, convID)

	p := NewPoller(Config{Messages: s, InitialInterval: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond})
	defer p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := p.Subscribe(ctx, convID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	first := insert(t, s, convID)
	second := insert(t, s, convID)

	got1 := receive(t, ch)
	got2 := receive(t, ch)
	if got1.ID == old.ID || got2.ID == old.ID {
		t.Error("messages inserted before Subscribe must not be delivered")
	}
	if got1.ID != first.ID || got2.ID != second.ID {
		t.Errorf("expected messages in insertion order, got %s then %s", got1.ID, got2.ID)
	}

	// After a quiet period the poller has backed off but still delivers.
	time.Sleep(50 * time.Millisecond)
	third := insert(t, s, convID)
	if got := receive(t, ch); got.ID != third.ID {
		t.Errorf("expected %s after backoff, got %s", third.ID, got.ID)
	}
}

func TestSubscribeClosesOnCancel(t *testing.T) {
	s, convID := setup(t)
	p := NewPoller(Config{Messages: s, InitialInterval: 5 * time.Millisecond})
	defer p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := p.Subscribe(ctx, convID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected the channel to close without a message")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the channel to close")
	}
}

func TestStopClosesAllSubscriptions(t *testing.T) {
	s, convID := setup(t)
	p := NewPoller(Config{Messages: s, InitialInterval: 5 * time.Millisecond})

	ctx := context.Background()
	ch1, err := p.Subscribe(ctx, convID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	ch2, err := p.Subscribe(ctx, convID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	p.Stop()

	for i, ch := range []<-chan store.Message{ch1, ch2} {
		if _, ok := <-ch; ok {
			t.Errorf("subscription %d: expected closed channel after Stop", i)
		}
	}
}

func TestCancelledSubscriptionsAreForgotten(t *testing.T) {
	s, convID := setup(t)
	p := NewPoller(Config{Messages: s, InitialInterval: 5 * time.Millisecond})
	defer p.Stop()

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		ch, err := p.Subscribe(ctx, convID)
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		cancel()
		for range ch {
		}
	}

	if n := p.active(); n != 0 {
		t.Errorf("expected no tracked subscriptions after cancel, got %d", n)
	}

	ch, err := p.Subscribe(context.Background(), convID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if n := p.active(); n != 1 {
		t.Errorf("expected one tracked subscription, got %d", n)
	}
	p.Stop()
	for range ch {
	}
	if n := p.active(); n != 0 {
		t.Errorf("expected no tracked subscriptions after Stop, got %d", n)
	}
}
