package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"livehost/internal/eventbus"
	logx "livehost/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := what.(string); ok {
		f.texts = append(f.texts, s)
	}
	return &tele.Message{}, nil
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func TestForwardsOnlyLogEvents(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	fs := &fakeSender{}
	s := newWithSender(Config{ChatID: 42, RatePerSec: 100}, fs, bus, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(50 * time.Millisecond)

	bus.Publish(eventbus.Log("koneksi terputus"))
	bus.Publish(eventbus.Say("halo"))
	bus.Publish(eventbus.Chat("budi", "p"))
	bus.Publish(eventbus.Log("tersambung lagi"))

	time.Sleep(100 * time.Millisecond)
	cancel()
	s.Wait()

	got := fs.sent()
	if len(got) != 2 || got[0] != "koneksi terputus" || got[1] != "tersambung lagi" {
		t.Fatalf("sent = %q", got)
	}
}

func TestOverRateEventsAreDroppedNotQueued(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	fs := &fakeSender{}
	s := newWithSender(Config{ChatID: 42, RatePerSec: 1}, fs, bus, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 50; i++ {
		bus.Publish(eventbus.Log("spam"))
	}
	time.Sleep(100 * time.Millisecond)
	cancel()
	s.Wait()

	// Burst allows a handful; the rest must be dropped, not delivered late.
	if n := len(fs.sent()); n == 0 || n > 6 {
		t.Fatalf("sent %d messages, want 1..6", n)
	}
}

func TestNewRejectsEmptyToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, eventbus.New(), logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}
