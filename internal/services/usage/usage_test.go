package usage

import (
	"path/filepath"
	"testing"

	"livehost/internal/storage"
	logx "livehost/pkg/logx"
)

func newMem(t *testing.T, cfg Config) *Service {
	t.Helper()
	s, err := New(cfg, nil, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAllowUntilLimit(t *testing.T) {
	t.Parallel()
	s := newMem(t, Config{TokenLimit: 100})

	if !s.Allow() {
		t.Fatal("fresh budget should allow")
	}
	s.Add(60)
	if !s.Allow() {
		t.Fatal("under limit should allow")
	}
	s.Add(50)
	if s.Allow() {
		t.Fatal("over limit should deny")
	}
	if got := s.Settings().TokensUsed; got != 110 {
		t.Fatalf("tokens used = %d", got)
	}
}

func TestZeroLimitIsUnmetered(t *testing.T) {
	t.Parallel()
	s := newMem(t, Config{})
	zero := int64(0)
	s.Update(nil, &zero, nil)

	s.Add(1 << 30)
	if !s.Allow() {
		t.Fatal("zero limit must never deny")
	}
}

func TestRolloverClearsUsage(t *testing.T) {
	t.Parallel()
	s := newMem(t, Config{TokenLimit: 10})
	s.Add(25)
	if s.Allow() {
		t.Fatal("should be exhausted before rollover")
	}

	s.rollover()
	if !s.Allow() {
		t.Fatal("rollover should restore the budget")
	}
	if got := s.Settings().TokensUsed; got != 0 {
		t.Fatalf("tokens used after rollover = %d", got)
	}
}

func TestUpdatePartialFields(t *testing.T) {
	t.Parallel()
	s := newMem(t, Config{})

	voice := "alloy"
	got := s.Update(nil, nil, &voice)
	if got.Voice != "alloy" {
		t.Fatalf("voice = %q", got.Voice)
	}
	if got.TokenLimit != storage.DefaultSettings().TokenLimit {
		t.Fatalf("limit changed unexpectedly: %d", got.TokenLimit)
	}

	dev := false
	limit := int64(5000)
	got = s.Update(&dev, &limit, nil)
	if got.DeveloperMode || got.TokenLimit != 5000 || got.Voice != "alloy" {
		t.Fatalf("settings = %+v", got)
	}
}

func TestPersistsAcrossRestart(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}

	s, err := New(Config{}, store, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	s.Add(777)
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	store, err = storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	s2, err := New(Config{}, store, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if got := s2.Settings().TokensUsed; got != 777 {
		t.Fatalf("tokens used after restart = %d", got)
	}
}

func TestBadScheduleRejected(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{ResetCron: "not a cron"}, nil, logx.Nop()); err == nil {
		t.Fatal("expected schedule error")
	}
	if _, err := New(Config{Timezone: "Not/AZone"}, nil, logx.Nop()); err == nil {
		t.Fatal("expected timezone error")
	}
}
