package tiktok

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"livehost/internal/transport"
	logx "livehost/pkg/logx"
)

// The engine does not speak the TikTok webcast protocol itself; a
// connector bridge sidecar does, and re-publishes the session feed as
// JSON frames over a plain WebSocket. This package dials that bridge.

type Config struct {
	// BridgeURL is the base ws:// or wss:// URL of the connector bridge.
	BridgeURL string
	// SessionID is forwarded to the bridge for authenticated rooms.
	SessionID string
	// HandshakeTimeout bounds Dial. Zero means 15s.
	HandshakeTimeout time.Duration
}

type Dialer struct {
	cfg Config
	log logx.Logger
}

func NewDialer(cfg Config, log logx.Logger) (*Dialer, error) {
	if strings.TrimSpace(cfg.BridgeURL) == "" {
		return nil, errors.New("tiktok: bridge url is empty")
	}
	if _, err := url.Parse(cfg.BridgeURL); err != nil {
		return nil, fmt.Errorf("tiktok: invalid bridge url: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dialer{cfg: cfg, log: log}, nil
}

// frame is the bridge wire format. Field names follow the connector's
// upstream payloads (uniqueId, comment).
type frame struct {
	Type     string `json:"type"`
	UniqueID string `json:"uniqueId,omitempty"`
	Comment  string `json:"comment,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (d *Dialer) Dial(ctx context.Context, channel string) (transport.Session, error) {
	u, err := url.Parse(strings.TrimRight(d.cfg.BridgeURL, "/") + "/live/" + url.PathEscape(channel))
	if err != nil {
		return nil, fmt.Errorf("tiktok: bridge url: %w", err)
	}
	if d.cfg.SessionID != "" {
		q := u.Query()
		q.Set("session_id", d.cfg.SessionID)
		u.RawQuery = q.Encode()
	}

	timeout := d.cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	wd := websocket.Dialer{HandshakeTimeout: timeout}

	conn, resp, err := wd.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("tiktok: bridge handshake for %q: %s: %w", channel, resp.Status, err)
		}
		return nil, fmt.Errorf("tiktok: bridge handshake for %q: %w", channel, err)
	}

	s := &session{
		conn:    conn,
		channel: channel,
		log:     d.log.With(logx.String("channel", channel)),
		events:  make(chan transport.Event, 64),
	}
	go s.readLoop()
	return s, nil
}

type session struct {
	conn    *websocket.Conn
	channel string
	log     logx.Logger

	events chan transport.Event

	closeOnce sync.Once
}

func (s *session) Events() <-chan transport.Event { return s.events }

func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		// Best-effort close frame; the read loop exits on the broken conn.
		deadline := time.Now().Add(2 * time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = s.conn.Close()
	})
	return err
}

func (s *session) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.emit(transport.Event{Kind: transport.KindDisconnected})
				return
			}
			s.emit(transport.Event{Kind: transport.KindError, Text: err.Error()})
			s.emit(transport.Event{Kind: transport.KindDisconnected})
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.log.Warn("bridge frame decode failed", logx.Err(err))
			continue
		}
		switch f.Type {
		case "connected":
			s.emit(transport.Event{Kind: transport.KindConnected})
		case "member":
			s.emit(transport.Event{Kind: transport.KindMember, User: f.UniqueID})
		case "chat":
			s.emit(transport.Event{Kind: transport.KindChat, User: f.UniqueID, Text: f.Comment})
		case "disconnected":
			s.emit(transport.Event{Kind: transport.KindDisconnected})
		case "error":
			s.emit(transport.Event{Kind: transport.KindError, Text: f.Message})
		default:
			s.log.Debug("bridge frame ignored", logx.String("type", f.Type))
		}
	}
}

// emit never blocks the read loop; the adapter's consumer is expected to
// keep up, but a wedged consumer must not stall the socket.
func (s *session) emit(e transport.Event) {
	select {
	case s.events <- e:
	default:
		s.log.Warn("upstream event dropped", logx.String("kind", string(e.Kind)))
	}
}
