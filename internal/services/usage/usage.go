package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"livehost/internal/storage"
	logx "livehost/pkg/logx"
)

// DefaultResetCron rolls the token counter at local midnight.
const DefaultResetCron = "0 0 * * *"

type Config struct {
	// TokenLimit overrides the stored limit when > 0.
	TokenLimit int64
	// ResetCron is the rollover schedule. Empty means DefaultResetCron.
	ResetCron string
	// Timezone is the IANA zone for the schedule. Empty means local time.
	Timezone string
}

// Service meters completion tokens against a daily budget and owns the
// dashboard settings record. It doubles as the narrator's budget: once
// the day's allowance is spent, chat replies fall back to the canned
// apology until the next rollover.
type Service struct {
	store storage.Store // may be nil (memory-only)
	log   logx.Logger

	mu       sync.Mutex
	settings storage.Settings

	cron *cron.Cron
}

func New(cfg Config, store storage.Store, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{store: store, log: log, settings: storage.DefaultSettings()}

	if store != nil {
		stored, ok, err := store.Settings(context.Background())
		if err != nil {
			return nil, fmt.Errorf("usage: load settings: %w", err)
		}
		if ok {
			s.settings = stored
		}
	}
	if cfg.TokenLimit > 0 {
		s.settings.TokenLimit = cfg.TokenLimit
	}

	spec := cfg.ResetCron
	if spec == "" {
		spec = DefaultResetCron
	}
	loc := time.Local
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("usage: timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}
	s.cron = cron.New(cron.WithLocation(loc))
	if _, err := s.cron.AddFunc(spec, s.rollover); err != nil {
		return nil, fmt.Errorf("usage: reset schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins the rollover schedule.
func (s *Service) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running rollover to finish.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Allow reports whether another completion may be requested.
// A zero limit means unmetered.
func (s *Service) Allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.TokenLimit <= 0 || s.settings.TokensUsed < s.settings.TokenLimit
}

// Add records tokens consumed by a completed request.
func (s *Service) Add(tokens int) {
	if tokens <= 0 {
		return
	}
	s.mu.Lock()
	s.settings.TokensUsed += int64(tokens)
	snap := s.settings
	s.mu.Unlock()
	s.persist(snap)
}

// Settings returns the current settings record.
func (s *Service) Settings() storage.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// voices the speech endpoint accepts.
var voices = map[string]bool{
	"nova": true, "alloy": true, "echo": true,
	"coral": true, "verse": true, "flow": true,
}

// Update applies partial changes from the dashboard. Nil fields keep
// their current value, as does an unknown voice. TokensUsed is never
// writable from outside.
func (s *Service) Update(developerMode *bool, tokenLimit *int64, voice *string) storage.Settings {
	s.mu.Lock()
	if developerMode != nil {
		s.settings.DeveloperMode = *developerMode
	}
	if tokenLimit != nil && *tokenLimit >= 0 {
		s.settings.TokenLimit = *tokenLimit
	}
	if voice != nil && voices[*voice] {
		s.settings.Voice = *voice
	}
	snap := s.settings
	s.mu.Unlock()

	s.persist(snap)
	return snap
}

func (s *Service) rollover() {
	s.mu.Lock()
	used := s.settings.TokensUsed
	s.settings.TokensUsed = 0
	snap := s.settings
	s.mu.Unlock()

	s.log.Info("daily token rollover", logx.Int64("tokens_used", used))
	s.persist(snap)
}

func (s *Service) persist(snap storage.Settings) {
	if s.store == nil {
		return
	}
	if err := s.store.PutSettings(context.Background(), snap); err != nil {
		s.log.Warn("settings persist failed", logx.Err(err))
	}
}
