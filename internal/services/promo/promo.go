package promo

import (
	"math/rand"
	"sync"
	"time"

	"livehost/internal/eventbus"
	"livehost/internal/services/narrator"
	"livehost/internal/storage"
	logx "livehost/pkg/logx"
)

// DefaultIdleWindow matches the dashboard's promotion cadence.
const DefaultIdleWindow = 3 * time.Minute

type Config struct {
	// IdleWindow is the chat silence after which one product line fires.
	// Zero means DefaultIdleWindow.
	IdleWindow time.Duration
}

// Catalog supplies a consistent point-in-time view of promotable items.
type Catalog interface {
	Snapshot() []storage.Product
}

// Service speaks one promotional line after sustained chat silence.
//
// Reset arms (or re-arms) the countdown; it is called on every chat or
// member event. After a fire the timer stays disarmed until the next
// Reset, so promotions only follow genuine activity, never loop.
//
// A generation counter guards the fire/reset race: a fire whose
// generation is stale (a Reset happened while the callback was in
// flight) is discarded.
type Service struct {
	window time.Duration
	bus    eventbus.Bus
	cat    Catalog
	log    logx.Logger

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

func New(cfg Config, bus eventbus.Bus, cat Catalog, log logx.Logger) *Service {
	window := cfg.IdleWindow
	if window <= 0 {
		window = DefaultIdleWindow
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{window: window, bus: bus, cat: cat, log: log}
}

// Reset cancels any pending countdown and arms a fresh one.
// Safe to call concurrently from multiple producers.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armLocked()
}

// Stop cancels any pending countdown without re-arming.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Service) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.window, func() { s.fire(gen) })
}

func (s *Service) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		// A Reset (or Stop) superseded this countdown.
		s.mu.Unlock()
		return
	}
	s.timer = nil

	items := s.cat.Snapshot()
	if len(items) == 0 {
		// Nothing to promote yet; quietly try again after another window.
		s.armLocked()
		s.mu.Unlock()
		return
	}
	item := items[rand.Intn(len(items))]
	s.mu.Unlock()

	line := narrator.Promo(item.ID, item.Name)
	s.log.Debug("idle promotion", logx.Int("product", item.ID))
	s.bus.Publish(eventbus.Say(line))
}
