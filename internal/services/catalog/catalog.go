package catalog

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"sort"
	"strings"
	"sync"

	"livehost/internal/storage"
	logx "livehost/pkg/logx"
)

// Product aliases the storage record; the catalog is its in-memory view.
type Product = storage.Product

const (
	// MinSlot..MaxSlot are the showcase positions on the dashboard overlay.
	MinSlot = 1
	MaxSlot = 10
)

var (
	ErrInvalidSlot = errors.New("catalog: slot id must be between 1 and 10")
	ErrInvalidURL  = errors.New("catalog: product url is invalid")
)

// Service holds the promotable items. Reads are lock-free copies so the
// promo scheduler always sees a consistent point-in-time view even while
// an add-product request is running.
type Service struct {
	mu    sync.RWMutex
	items map[int]Product

	store   storage.Store // may be nil (memory-only)
	scraper *Scraper
	log     logx.Logger
}

func New(store storage.Store, scraper *Scraper, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		items:   map[int]Product{},
		store:   store,
		scraper: scraper,
		log:     log,
	}
	if store != nil {
		ps, err := store.Products(context.Background())
		if err != nil {
			return nil, fmt.Errorf("catalog: load products: %w", err)
		}
		for _, p := range ps {
			s.items[p.ID] = p
		}
	}
	return s, nil
}

// Add scrapes metadata for the product URL, fills deterministic
// fallbacks for anything the page didn't yield, and stores the item in
// the given showcase slot (replacing any previous occupant).
//
// Scrape failures are absorbed: a product with fallback metadata is
// better than a failed add while live.
func (s *Service) Add(ctx context.Context, id int, rawURL string) (Product, error) {
	if id < MinSlot || id > MaxSlot {
		return Product{}, ErrInvalidSlot
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Product{}, ErrInvalidURL
	}

	p := Product{ID: id, URL: u.String()}
	if s.scraper != nil {
		meta, err := s.scraper.Fetch(ctx, u.String())
		if err != nil {
			s.log.Warn("metadata fetch failed", logx.Int("id", id), logx.Err(err))
		} else {
			p.Name = meta.Name
			p.Price = meta.Price
			p.Description = meta.Description
			p.Image = meta.Image
		}
	}
	fillFallbacks(&p)

	s.mu.Lock()
	s.items[id] = p
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.PutProduct(ctx, p); err != nil {
			s.log.Warn("product persist failed", logx.Int("id", id), logx.Err(err))
		}
	}
	return p, nil
}

// Get returns one slot's product.
func (s *Service) Get(id int) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.items[id]
	return p, ok
}

// Snapshot returns all products ordered by slot id. The slice is a copy.
func (s *Service) Snapshot() []Product {
	s.mu.RLock()
	out := make([]Product, 0, len(s.items))
	for _, p := range s.items {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func fillFallbacks(p *Product) {
	if p.Name == "" {
		p.Name = fmt.Sprintf("Product %d", p.ID)
	}
	if p.Price == "" {
		p.Price = fmt.Sprintf("Rp %dk", 50+rand.Intn(500))
	}
	if p.Description == "" {
		p.Description = "Produk berkualitas tinggi dengan harga terjangkau"
	}
	if p.Image == "" {
		p.Image = fmt.Sprintf("https://placehold.co/200x200/6366f1/ffffff?text=Product+%d", p.ID)
	}
}
