package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSON snapshot backend
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Product is one promotable catalog item. IDs are the showcase slots
// (1..10) shown on the dashboard overlay.
type Product struct {
	ID          int    `json:"id"`
	URL         string `json:"url"`
	Name        string `json:"name,omitempty"`
	Price       string `json:"price,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

// Settings is the dashboard settings record.
type Settings struct {
	DeveloperMode bool   `json:"developerMode"`
	TokenLimit    int64  `json:"tokenLimit"`
	TokensUsed    int64  `json:"tokensUsed"`
	Voice         string `json:"voice"`
}

// DefaultSettings mirrors a fresh install.
func DefaultSettings() Settings {
	return Settings{
		DeveloperMode: true,
		TokenLimit:    1_000_000,
		TokensUsed:    0,
		Voice:         "nova",
	}
}

// Store is the minimal persistence API used by the catalog and usage services.
type Store interface {
	Products(ctx context.Context) ([]Product, error)
	PutProduct(ctx context.Context, p Product) error

	Settings(ctx context.Context) (Settings, bool, error)
	PutSettings(ctx context.Context, s Settings) error

	Close() error
}
