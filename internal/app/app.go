package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"livehost/internal/api"
	"livehost/internal/collab/openai"
	"livehost/internal/config"
	"livehost/internal/eventbus"
	"livehost/internal/observability/pprof"
	rtsup "livehost/internal/runtime/supervisor"
	"livehost/internal/services/catalog"
	"livehost/internal/services/live"
	"livehost/internal/services/narrator"
	"livehost/internal/services/notify"
	"livehost/internal/services/promo"
	"livehost/internal/services/stream"
	"livehost/internal/services/usage"
	"livehost/internal/storage"
	"livehost/internal/transport/tiktok"
	logx "livehost/pkg/logx"
)

// App wires the whole dashboard backend: config, logging, bus, storage,
// the collaborator client, the domain services, and the HTTP surface.
type App struct {
	cfgPath string
	cfgm    *config.Manager
	sup     *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	client  *openai.Client
	catalog *catalog.Service
	usage   *usage.Service
	promo   *promo.Service
	live    *live.Service
	notify  *notify.Service
	pprof   *pprof.Service

	httpSrv      *http.Server
	shutdownWait time.Duration
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if cfg.Storage != nil {
		sc, err := mapStorageConfig(cfg.Storage)
		if err != nil {
			return nil, err
		}
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		if st != nil {
			store = st
			log.Info("storage enabled", logx.String("driver", sc.Driver))
		}
	}

	oaTimeout, err := config.ParseDurationOrDefault("openai.timeout", cfg.OpenAI.Timeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	client, err := openai.New(openai.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		ChatModel:   cfg.OpenAI.ChatModel,
		SpeechModel: cfg.OpenAI.SpeechModel,
		Timeout:     oaTimeout,
	}, log.With(logx.String("comp", "openai")))
	if err != nil {
		return nil, err
	}

	cat, err := catalog.New(store, catalog.NewScraper(10*time.Second), log.With(logx.String("comp", "catalog")))
	if err != nil {
		return nil, err
	}

	usageSvc, err := usage.New(usage.Config{
		TokenLimit: cfg.Usage.TokenLimit,
		ResetCron:  cfg.Usage.ResetCron,
		Timezone:   cfg.Usage.Timezone,
	}, store, log.With(logx.String("comp", "usage")))
	if err != nil {
		return nil, err
	}

	narr := narrator.New(client, usageSvc, log.With(logx.String("comp", "narrator")))

	idleWindow, err := config.ParseDurationOrDefault("promo.idle_window", cfg.Promo.IdleWindow, promo.DefaultIdleWindow)
	if err != nil {
		return nil, err
	}
	promoSvc := promo.New(promo.Config{IdleWindow: idleWindow}, bus, cat, log.With(logx.String("comp", "promo")))

	handshake, err := config.ParseDurationOrDefault("tiktok.handshake_timeout", cfg.TikTok.HandshakeTimeout, 15*time.Second)
	if err != nil {
		return nil, err
	}
	dialer, err := tiktok.NewDialer(tiktok.Config{
		BridgeURL:        cfg.TikTok.BridgeURL,
		SessionID:        cfg.TikTok.SessionID,
		HandshakeTimeout: handshake,
	}, log.With(logx.String("comp", "tiktok")))
	if err != nil {
		return nil, err
	}

	liveSvc := live.New(live.Config{}, dialer, bus, narr, promoSvc, log.With(logx.String("comp", "live")))

	var notifSvc *notify.Service
	if cfg.Notifier != nil && cfg.Notifier.Enabled {
		notifSvc, err = notify.New(notify.Config{
			Token:      cfg.Notifier.Token,
			ChatID:     cfg.Notifier.ChatID,
			RatePerSec: cfg.Notifier.RatePerSec,
		}, bus, log.With(logx.String("comp", "notify")))
		if err != nil {
			return nil, err
		}
	}

	var pprofSvc *pprof.Service
	if cfg.Debug != nil {
		pprofSvc = pprof.New(pprof.Config{
			Enabled: cfg.Debug.Enabled,
			Addr:    cfg.Debug.Addr,
			Token:   cfg.Debug.Token,
		}, log.With(logx.String("comp", "pprof")))
	}

	streams := stream.New(bus, log.With(logx.String("comp", "stream")))
	apiSrv := api.New(liveSvc, client, cat, usageSvc, streams, log.With(logx.String("comp", "api")))

	shutdownWait, err := config.ParseDurationOrDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		client:  client,
		catalog: cat,
		usage:   usageSvc,
		promo:   promoSvc,
		live:    liveSvc,
		notify:  notifSvc,
		pprof:   pprofSvc,
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           apiSrv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownWait: shutdownWait,
	}, nil
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	a.usage.Start()
	if a.notify != nil {
		a.notify.Start(a.sup.Context())
	}
	if a.pprof != nil && a.pprof.Enabled() {
		a.pprof.Start(a.sup.Context())
	}

	a.sup.Go("http.serve", func(ctx context.Context) error {
		errc := make(chan error, 1)
		go func() { errc <- a.httpSrv.ListenAndServe() }()
		select {
		case err := <-errc:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			sctx, cancel := context.WithTimeout(context.Background(), a.shutdownWait)
			defer cancel()
			return a.httpSrv.Shutdown(sctx)
		}
	})

	// Hot reload: logging applies live, everything else logs a
	// restart-required notice. Connection state must never flap on a
	// config edit.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(ctx context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
				})
				a.log.Info("config reloaded; non-logging changes take effect on restart")
			}
		}
	})

	a.sup.Go("config.watch", func(ctx context.Context) error {
		return a.cfgm.Watch(ctx)
	})

	a.bus.Publish(eventbus.Log("Sistem host AI dimulai."))
	a.log.Info("app started", logx.String("addr", a.httpSrv.Addr))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	step := func(name string, fn func(context.Context)) {
		done := make(chan struct{})
		go func() {
			defer close(done)
			defer func() {
				if r := recover(); r != nil {
					a.log.Warn("stop step panicked", logx.String("name", name), logx.Any("panic", r))
				}
			}()
			fn(ctx)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			a.log.Warn("stop step deadline reached", logx.String("name", name))
		}
	}

	step("live", func(context.Context) { a.live.Disconnect() })
	step("promo", func(context.Context) { a.promo.Stop() })
	step("usage", func(context.Context) { a.usage.Stop() })
	if a.pprof != nil {
		step("pprof", func(c context.Context) { a.pprof.Stop(c) })
	}
	if a.notify != nil {
		step("notify", func(context.Context) { a.notify.Wait() })
	}
	step("storage", func(context.Context) {
		if a.store != nil {
			a.store.Close()
		}
	})
	step("supervisor", func(c context.Context) { a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func mapStorageConfig(sc *config.StorageConfig) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: sc.Driver, Path: sc.Path, BusyTimeout: busy}, nil
}

// validate rejects a bad hot-reload before it is committed.
func validate(cfg *config.Config) error {
	if _, err := config.ParseDurationOrDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout, 10*time.Second); err != nil {
		return err
	}
	if _, err := config.ParseDurationOrDefault("openai.timeout", cfg.OpenAI.Timeout, 30*time.Second); err != nil {
		return err
	}
	if _, err := config.ParseDurationOrDefault("tiktok.handshake_timeout", cfg.TikTok.HandshakeTimeout, 15*time.Second); err != nil {
		return err
	}
	if _, err := config.ParseDurationOrDefault("promo.idle_window", cfg.Promo.IdleWindow, promo.DefaultIdleWindow); err != nil {
		return err
	}
	if cfg.Usage.TokenLimit < 0 {
		return fmt.Errorf("usage.token_limit must be >= 0")
	}
	if tz := strings.TrimSpace(cfg.Usage.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("usage.timezone: invalid %q: %w", tz, err)
		}
	}
	if cfg.Storage != nil {
		if _, err := mapStorageConfig(cfg.Storage); err != nil {
			return err
		}
	}
	return nil
}
