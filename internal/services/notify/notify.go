package notify

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"
	"golang.org/x/time/rate"

	"livehost/internal/eventbus"
	logx "livehost/pkg/logx"
)

type Config struct {
	Token  string
	ChatID int64
	// RatePerSec caps outbound messages. Default 1/s, burst 5.
	RatePerSec int
}

// Sender is the outbound Telegram surface, satisfied by *tele.Bot.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Service mirrors operational log events to a Telegram chat so the
// operator hears about connection trouble without watching the
// dashboard. Spoken lines and chat echoes stay off Telegram; only log
// events are forwarded.
//
// Sends never apply backpressure to the bus: over-rate events are
// counted and summarized instead.
type Service struct {
	cfg     Config
	bot     Sender
	chat    tele.Recipient
	bus     eventbus.Bus
	limiter *rate.Limiter
	log     logx.Logger

	dropped atomic.Uint64
	done    chan struct{}
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("notify: telegram token is empty")
	}
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	return newWithSender(cfg, bot, bus, log), nil
}

func newWithSender(cfg Config, bot Sender, bus eventbus.Bus, log logx.Logger) *Service {
	per := cfg.RatePerSec
	if per <= 0 {
		per = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		bot:     bot,
		chat:    &tele.Chat{ID: cfg.ChatID},
		bus:     bus,
		limiter: rate.NewLimiter(rate.Limit(per), 5),
		log:     log,
		done:    make(chan struct{}),
	}
}

// Start subscribes to the bus and forwards until ctx is canceled.
func (s *Service) Start(ctx context.Context) {
	ch, unsub := s.bus.Subscribe(64)
	go func() {
		defer close(s.done)
		defer unsub()

		summary := time.NewTicker(30 * time.Second)
		defer summary.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-summary.C:
				if n := s.dropped.Swap(0); n > 0 {
					s.log.Warn("telegram notifications dropped", logx.Uint64("count", n))
				}
			case ev := <-ch:
				if ev.Type != eventbus.TypeLog {
					continue
				}
				if !s.limiter.Allow() {
					s.dropped.Add(1)
					continue
				}
				if _, err := s.bot.Send(s.chat, ev.Text); err != nil {
					s.log.Warn("telegram send failed", logx.Err(err))
				}
			}
		}
	}()
}

// Wait blocks until the forwarding loop has exited.
func (s *Service) Wait() { <-s.done }
