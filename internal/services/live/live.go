package live

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"livehost/internal/eventbus"
	"livehost/internal/services/narrator"
	"livehost/internal/transport"
	logx "livehost/pkg/logx"
)

// ErrInvalidUsername rejects empty channel names after normalization.
var ErrInvalidUsername = errors.New("live: username must not be empty")

// State is the adapter's connection phase. It is reported explicitly
// instead of being inferred from log lines.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOnline
	StateReconnecting
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOnline:
		return "online"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

type Config struct {
	// ReconnectMin/ReconnectMax bound the redial backoff after an
	// established session drops. Defaults 1s and 30s.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Responder produces the narrated reply to one viewer message.
type Responder interface {
	RespondToChat(ctx context.Context, user, message string) string
}

// Resetter re-arms the idle promotion countdown.
type Resetter interface {
	Reset()
}

// Service owns the single upstream connection slot. Connecting to a new
// channel always tears down the previous session first, even when that
// session already looks dead. A generation counter fences late events
// and late completion replies from superseded sessions.
type Service struct {
	cfg       Config
	dialer    transport.Dialer
	bus       eventbus.Bus
	responder Responder
	promo     Resetter
	log       logx.Logger

	mu      sync.Mutex
	gen     uint64
	state   State
	channel string
	session transport.Session
	cancel  context.CancelFunc
}

func New(cfg Config, dialer transport.Dialer, bus eventbus.Bus, responder Responder, promo Resetter, log logx.Logger) *Service {
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:       cfg,
		dialer:    dialer,
		bus:       bus,
		responder: responder,
		promo:     promo,
		log:       log,
	}
}

// Normalize strips a leading "@" and surrounding whitespace from a
// channel name. The empty result is invalid.
func Normalize(username string) (string, error) {
	name := strings.TrimPrefix(strings.TrimSpace(username), "@")
	if name == "" {
		return "", ErrInvalidUsername
	}
	return name, nil
}

// Connect tears down any current session and dials the given channel.
// The handshake runs synchronously under ctx; once it succeeds the
// session is pumped in the background until Disconnect or a newer
// Connect supersedes it.
func (s *Service) Connect(ctx context.Context, username string) error {
	channel, err := Normalize(username)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.teardownLocked()
	s.gen++
	gen := s.gen
	s.state = StateConnecting
	s.channel = channel
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.bus.Publish(eventbus.Log("connecting"))

	sess, err := s.dialer.Dial(ctx, channel)
	if err != nil {
		s.mu.Lock()
		if gen == s.gen {
			s.state = StateError
		}
		s.mu.Unlock()
		cancel()
		s.log.Warn("connect failed", logx.String("channel", channel), logx.Err(err))
		// The wire carries the bare status; the detail stays in the log.
		s.bus.Publish(eventbus.Log("error"))
		return err
	}

	s.mu.Lock()
	if gen != s.gen {
		// Another Connect won the race while we were dialing.
		s.mu.Unlock()
		cancel()
		sess.Close()
		return nil
	}
	s.session = sess
	s.state = StateOnline
	s.mu.Unlock()

	s.announceOnline(channel)
	go s.pump(runCtx, gen, channel, sess)
	return nil
}

// Disconnect closes the current session, if any, and returns to idle.
func (s *Service) Disconnect() {
	s.mu.Lock()
	s.teardownLocked()
	s.gen++
	s.state = StateIdle
	s.channel = ""
	s.mu.Unlock()
	s.bus.Publish(eventbus.Log("disconnected"))
}

// Status reports the current phase and channel.
func (s *Service) Status() (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.channel
}

func (s *Service) teardownLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.session != nil {
		s.session.Close()
		s.session = nil
	}
}

func (s *Service) announceOnline(channel string) {
	s.log.Info("session online", logx.String("channel", channel))
	// Going online counts as activity: the idle countdown starts at the
	// connect, not at the first chat message.
	if s.promo != nil {
		s.promo.Reset()
	}
	s.bus.Publish(eventbus.Log("connected"))
	s.bus.Publish(eventbus.Say(narrator.ReconnectLine))
}

// pump drains one session and redials when it drops. It exits when the
// connection context is canceled or the generation is superseded.
func (s *Service) pump(ctx context.Context, gen uint64, channel string, sess transport.Session) {
	for {
		for ev := range sess.Events() {
			if !s.current(gen) {
				return
			}
			s.handle(ctx, gen, ev)
		}

		// Session ended. If we are still the live generation, redial.
		if ctx.Err() != nil || !s.current(gen) {
			return
		}
		s.mu.Lock()
		s.session = nil
		s.state = StateReconnecting
		s.mu.Unlock()
		// The session's own feed already carried the disconnect; this is
		// the explicit transition clients can key on without sniffing text.
		s.bus.Publish(eventbus.Log("reconnecting"))

		next, ok := s.redial(ctx, gen, channel)
		if !ok {
			return
		}
		sess = next
	}
}

func (s *Service) redial(ctx context.Context, gen uint64, channel string) (transport.Session, bool) {
	backoff := s.cfg.ReconnectMin
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(jitter(backoff)):
		}
		if !s.current(gen) {
			return nil, false
		}

		sess, err := s.dialer.Dial(ctx, channel)
		if err == nil {
			s.mu.Lock()
			if gen != s.gen {
				s.mu.Unlock()
				sess.Close()
				return nil, false
			}
			s.session = sess
			s.state = StateOnline
			s.mu.Unlock()
			s.announceOnline(channel)
			return sess, true
		}

		s.log.Warn("redial failed", logx.String("channel", channel), logx.Err(err))
		backoff *= 2
		if backoff > s.cfg.ReconnectMax {
			backoff = s.cfg.ReconnectMax
		}
	}
}

func (s *Service) handle(ctx context.Context, gen uint64, ev transport.Event) {
	switch ev.Kind {
	case transport.KindConnected:
		// The handshake already announced this session; the frame only
		// confirms the upstream room is live.
		s.log.Debug("upstream confirmed connected")

	case transport.KindMember:
		if s.promo != nil {
			s.promo.Reset()
		}
		s.bus.Publish(eventbus.Say(narrator.Greet(ev.User)))

	case transport.KindChat:
		// Echo immediately so the dashboard shows the comment without
		// waiting on the collaborator, then answer asynchronously.
		if s.promo != nil {
			s.promo.Reset()
		}
		s.bus.Publish(eventbus.Chat(ev.User, ev.Text))
		go func() {
			line := s.responder.RespondToChat(ctx, ev.User, ev.Text)
			if s.current(gen) {
				s.bus.Publish(eventbus.Say(line))
			}
		}()

	case transport.KindDisconnected:
		s.bus.Publish(eventbus.Log("disconnected"))

	case transport.KindError:
		s.log.Warn("upstream error", logx.String("detail", ev.Text))
		s.bus.Publish(eventbus.Log("error"))
	}
}

func (s *Service) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen
}

func jitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}
