package storage

import (
	"context"
	"path/filepath"
	"testing"

	logx "livehost/pkg/logx"
)

func openDriver(t *testing.T, driver string) Store {
	t.Helper()
	st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "live."+driver)}, logx.Nop())
	if err != nil {
		t.Fatalf("open %s: %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("expected disabled store, got %v %v", st, err)
	}
}

func TestDriversRoundTrip(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			st := openDriver(t, driver)
			ctx := context.Background()

			if err := st.PutProduct(ctx, Product{ID: 2, URL: "https://x/2", Name: "Sepatu"}); err != nil {
				t.Fatalf("put product: %v", err)
			}
			if err := st.PutProduct(ctx, Product{ID: 1, URL: "https://x/1", Name: "Tas", Price: "Rp 120k"}); err != nil {
				t.Fatalf("put product: %v", err)
			}
			// Upsert replaces.
			if err := st.PutProduct(ctx, Product{ID: 2, URL: "https://x/2b", Name: "Sepatu Baru"}); err != nil {
				t.Fatalf("upsert product: %v", err)
			}

			ps, err := st.Products(ctx)
			if err != nil {
				t.Fatalf("products: %v", err)
			}
			if len(ps) != 2 || ps[0].ID != 1 || ps[1].Name != "Sepatu Baru" {
				t.Fatalf("products = %+v", ps)
			}

			if _, ok, err := st.Settings(ctx); err != nil || ok {
				t.Fatalf("expected no settings yet: ok=%v err=%v", ok, err)
			}
			want := Settings{DeveloperMode: true, TokenLimit: 500, TokensUsed: 42, Voice: "coral"}
			if err := st.PutSettings(ctx, want); err != nil {
				t.Fatalf("put settings: %v", err)
			}
			got, ok, err := st.Settings(ctx)
			if err != nil || !ok {
				t.Fatalf("settings: ok=%v err=%v", ok, err)
			}
			if got != want {
				t.Fatalf("settings = %+v, want %+v", got, want)
			}
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "live.json")
	cfg := Config{Driver: "file", Path: path}

	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if err := st.PutProduct(ctx, Product{ID: 3, URL: "https://x/3", Name: "Produk bagus"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	_ = st.Close()

	st2, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	ps, err := st2.Products(ctx)
	if err != nil || len(ps) != 1 || ps[0].Name != "Produk bagus" {
		t.Fatalf("after reopen: %+v err=%v", ps, err)
	}
}
