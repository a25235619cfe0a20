package pprof

import (
	"context"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	rtsup "livehost/internal/runtime/supervisor"
	logx "livehost/pkg/logx"
)

// Config controls the optional pprof HTTP server.
//
// Binding to a non-loopback address requires a token; the profiler
// exposes goroutine stacks and heap contents.
type Config struct {
	Enabled bool
	Addr    string
	Token   string
}

// Service runs net/http/pprof on its own listener so profiling never
// shares a port with the dashboard API.
type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	srv *http.Server
	sup *rtsup.Supervisor
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if !s.cfg.Enabled || s.sup != nil {
		s.mu.Unlock()
		return
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// Profiling is optional; a bind failure must not take the app down.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	s.mu.Unlock()

	sup.GoRestart("pprof.serve", s.serveOnce,
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	sup := s.sup
	s.srv = nil
	s.sup = nil
	s.mu.Unlock()

	if srv != nil {
		srv.Shutdown(ctx)
	}
	if sup != nil {
		sup.Stop(ctx)
	}
}

func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = "127.0.0.1:6060"
	}
	if cfg.Token == "" && !isLoopback(addr) {
		s.log.Error("pprof refused to start: non-loopback addr requires a token", logx.String("addr", addr))
		return errors.New("pprof: insecure bind")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", s.withAuth(cfg.Token, hpprof.Index))
	mux.HandleFunc("/debug/pprof/cmdline", s.withAuth(cfg.Token, hpprof.Cmdline))
	mux.HandleFunc("/debug/pprof/profile", s.withAuth(cfg.Token, hpprof.Profile))
	mux.HandleFunc("/debug/pprof/symbol", s.withAuth(cfg.Token, hpprof.Symbol))
	mux.HandleFunc("/debug/pprof/trace", s.withAuth(cfg.Token, hpprof.Trace))

	srv := &http.Server{Handler: mux, ReadTimeout: 10 * time.Second}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(cctx)
	}()

	s.log.Info("pprof started", logx.String("addr", ln.Addr().String()))
	err = srv.Serve(ln)
	if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
		return context.Canceled
	}
	return err
}

func (s *Service) withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		const p = "Bearer "
		ah := r.Header.Get("Authorization")
		if strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == token {
			h(w, r)
			return
		}
		if r.URL.Query().Get("token") == token {
			h(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
}

func isLoopback(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil || h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
