package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	logx "livehost/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// The whole state (products + settings) lives in one JSON snapshot file,
// rewritten atomically (temp file + rename) on every mutation. The data
// set is tiny (at most ten products and one settings record), so
// rewrite-on-mutation is cheaper than a journal.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string

	products map[int]Product
	settings *Settings
}

type fileSnapshot struct {
	Products []Product `json:"products"`
	Settings *Settings `json:"settings,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:      log,
		path:     path,
		products: map[int]Product{},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var snap fileSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return err
	}
	for _, p := range snap.Products {
		s.products[p.ID] = p
	}
	s.settings = snap.Settings
	return nil
}

// flushLocked writes the snapshot atomically. Caller holds s.mu.
func (s *fileStore) flushLocked() error {
	snap := fileSnapshot{Settings: s.settings}
	for _, p := range s.products {
		snap.Products = append(snap.Products, p)
	}
	sort.Slice(snap.Products, func(i, j int) bool { return snap.Products[i].ID < snap.Products[j].ID })

	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) Products(ctx context.Context) ([]Product, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fileStore) PutProduct(ctx context.Context, p Product) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
	return s.flushLocked()
}

func (s *fileStore) Settings(ctx context.Context) (Settings, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return Settings{}, false, nil
	}
	return *s.settings, true, nil
}

func (s *fileStore) PutSettings(ctx context.Context, st Settings) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &st
	return s.flushLocked()
}

func (s *fileStore) Close() error { return nil }
