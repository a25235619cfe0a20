package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"livehost/internal/eventbus"
	logx "livehost/pkg/logx"
)

func TestSSEStreamsEvents(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	p := New(bus, logx.Nop())

	srv := httptest.NewServer(http.HandlerFunc(p.ServeSSE))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if line != "retry: 2000\n" {
		t.Fatalf("first line = %q", line)
	}

	// Give the handler a moment to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	bus.Publish(eventbus.Say("halo semua"))

	var data string
	for {
		line, err = reader.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSuffix(strings.TrimPrefix(line, "data: "), "\n")
			break
		}
	}

	var ev eventbus.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	if ev.Type != eventbus.TypeSay || ev.Text != "halo semua" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestSSEChatFrameShape(t *testing.T) {
	t.Parallel()
	ev := eventbus.Chat("siti", "warnanya apa?")
	payload, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	got := string(payload)
	for _, want := range []string{`"type":"chat"`, `"username":"siti"`, `"message":"warnanya apa?"`} {
		if !strings.Contains(got, want) {
			t.Fatalf("frame %s missing %s", got, want)
		}
	}
	if strings.Contains(got, "Time") || strings.Contains(got, "time") {
		t.Fatalf("timestamp leaked into wire frame: %s", got)
	}
}

func TestWebSocketStreamsEvents(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	p := New(bus, logx.Nop())

	srv := httptest.NewServer(http.HandlerFunc(p.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)
	bus.Publish(eventbus.Log("sistem aktif"))

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var ev eventbus.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != eventbus.TypeLog || ev.Text != "sistem aktif" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestWebSocketClientCloseReleasesSubscription(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	p := New(bus, logx.Nop())

	srv := httptest.NewServer(http.HandlerFunc(p.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()

	// Publishing after the client left must not panic or block.
	time.Sleep(50 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			bus.Publish(eventbus.Say("x"))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked after client close")
	}
}
