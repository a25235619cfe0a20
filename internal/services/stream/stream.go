package stream

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"livehost/internal/eventbus"
	logx "livehost/pkg/logx"
)

const (
	// retryHint tells the browser's EventSource to redial after 2s.
	retryHint = "retry: 2000\n\n"
	// pingEvery keeps idle SSE connections from being reaped by proxies.
	pingEvery = 15 * time.Second

	wsWriteWait = 10 * time.Second
)

// Publisher fans bus events out to dashboard clients over SSE and
// WebSocket. Both carry the same JSON frames; a slow client only loses
// its own events (the bus drops, never blocks).
type Publisher struct {
	bus      eventbus.Bus
	log      logx.Logger
	upgrader websocket.Upgrader
	buffer   int
}

func New(bus eventbus.Bus, log logx.Logger) *Publisher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Publisher{
		bus: bus,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served from arbitrary origins in dev.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		buffer: 64,
	}
}

// ServeSSE streams events as text/event-stream until the client goes away.
func (p *Publisher) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte(retryHint)); err != nil {
		return
	}
	flusher.Flush()

	ch, unsub := p.bus.Subscribe(p.buffer)
	defer unsub()

	ping := time.NewTicker(pingEvery)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-ch:
			payload, err := json.Marshal(ev)
			if err != nil {
				p.log.Warn("event marshal failed", logx.Err(err))
				continue
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := w.Write(payload); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// ServeWS upgrades the request and streams events as JSON text frames.
func (p *Publisher) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.log.Warn("websocket upgrade failed", logx.Err(err))
		return
	}
	defer conn.Close()

	// Drain client frames so control messages are processed and the
	// close handshake is noticed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ch, unsub := p.bus.Subscribe(p.buffer)
	defer unsub()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case ev := <-ch:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
