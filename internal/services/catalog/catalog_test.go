package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logx "livehost/pkg/logx"
)

const productPage = `<!DOCTYPE html>
<html><head>
<title>Sepatu Lari Keren - Toko</title>
<meta property="og:title" content="Sepatu Lari Keren" />
<meta property="og:image" content="https://cdn.example.com/sepatu.jpg" />
<meta name="description" content="Sepatu lari ringan dan nyaman untuk harian." />
</head><body>
<span class="price">Rp 249.000</span>
</body></html>`

func TestAddScrapesMetadata(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "Mozilla") {
			t.Errorf("user agent = %q", ua)
		}
		w.Write([]byte(productPage))
	}))
	defer srv.Close()

	s, err := New(nil, NewScraper(5*time.Second), logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	p, err := s.Add(context.Background(), 3, srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "Sepatu Lari Keren" {
		t.Errorf("name = %q", p.Name)
	}
	if p.Price != "Rp 249.000" {
		t.Errorf("price = %q", p.Price)
	}
	if p.Image != "https://cdn.example.com/sepatu.jpg" {
		t.Errorf("image = %q", p.Image)
	}
	if !strings.Contains(p.Description, "Sepatu lari ringan") {
		t.Errorf("description = %q", p.Description)
	}
}

func TestAddFillsFallbacksWhenScrapeFails(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	s, err := New(nil, NewScraper(5*time.Second), logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	p, err := s.Add(context.Background(), 7, srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "Product 7" {
		t.Errorf("fallback name = %q", p.Name)
	}
	if !strings.HasPrefix(p.Price, "Rp ") || !strings.HasSuffix(p.Price, "k") {
		t.Errorf("fallback price = %q", p.Price)
	}
	if p.Description == "" || p.Image == "" {
		t.Errorf("fallback metadata incomplete: %+v", p)
	}
}

func TestAddRejectsBadInput(t *testing.T) {
	t.Parallel()
	s, err := New(nil, nil, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Add(context.Background(), 0, "https://shop.example/p"); err != ErrInvalidSlot {
		t.Errorf("slot 0: err = %v", err)
	}
	if _, err := s.Add(context.Background(), 11, "https://shop.example/p"); err != ErrInvalidSlot {
		t.Errorf("slot 11: err = %v", err)
	}
	if _, err := s.Add(context.Background(), 1, "not a url"); err != ErrInvalidURL {
		t.Errorf("bad url: err = %v", err)
	}
	if _, err := s.Add(context.Background(), 1, "ftp://shop.example/p"); err != ErrInvalidURL {
		t.Errorf("ftp url: err = %v", err)
	}
}

func TestSnapshotOrderedAndDetached(t *testing.T) {
	t.Parallel()
	s, err := New(nil, nil, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []int{9, 2, 5} {
		if _, err := s.Add(context.Background(), id, "https://shop.example/p"); err != nil {
			t.Fatal(err)
		}
	}

	snap := s.Snapshot()
	if len(snap) != 3 || snap[0].ID != 2 || snap[1].ID != 5 || snap[2].ID != 9 {
		t.Fatalf("snapshot = %+v", snap)
	}

	// Mutating the snapshot must not leak back into the catalog.
	snap[0].Name = "mutated"
	if p, _ := s.Get(2); p.Name == "mutated" {
		t.Fatal("snapshot shares backing storage with catalog")
	}
}

func TestParseMetadataPrefersOGTags(t *testing.T) {
	t.Parallel()
	m := parseMetadata(productPage)
	if m.Name != "Sepatu Lari Keren" {
		t.Errorf("og:title not preferred, name = %q", m.Name)
	}

	m = parseMetadata(`<title>Plain Title</title><p>Rp 99k</p>`)
	if m.Name != "Plain Title" || m.Price != "Rp 99k" {
		t.Errorf("fallback parse = %+v", m)
	}
}
