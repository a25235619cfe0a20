package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	logx "livehost/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Products(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, name, price, description, image FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.URL, &p.Name, &p.Price, &p.Description, &p.Image); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutProduct(ctx context.Context, p Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, url, name, price, description, image)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			name = excluded.name,
			price = excluded.price,
			description = excluded.description,
			image = excluded.image`,
		p.ID, p.URL, p.Name, p.Price, p.Description, p.Image)
	return err
}

func (s *sqliteStore) Settings(ctx context.Context) (Settings, bool, error) {
	var st Settings
	var dev int
	err := s.db.QueryRowContext(ctx,
		`SELECT developer_mode, token_limit, tokens_used, voice FROM settings WHERE id = 1`).
		Scan(&dev, &st.TokenLimit, &st.TokensUsed, &st.Voice)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, false, nil
	}
	if err != nil {
		return Settings{}, false, err
	}
	st.DeveloperMode = dev != 0
	return st, true, nil
}

func (s *sqliteStore) PutSettings(ctx context.Context, st Settings) error {
	dev := 0
	if st.DeveloperMode {
		dev = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, developer_mode, token_limit, tokens_used, voice)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			developer_mode = excluded.developer_mode,
			token_limit = excluded.token_limit,
			tokens_used = excluded.tokens_used,
			voice = excluded.voice`,
		dev, st.TokenLimit, st.TokensUsed, st.Voice)
	return err
}
