// Package pagecache keeps fetched page text in SQLite so repeated runs over
// the same input do not refetch the same URLs.
package pagecache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/shpitdev/site-classifier/internal/logging"
	"github.com/shpitdev/site-classifier/internal/research"
	"github.com/shpitdev/site-classifier/internal/util"
)

const writeTimeout = 5 * time.Second

const migration = `
CREATE TABLE IF NOT EXISTS page_cache (
	url        TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	fetched_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_page_cache_expires_at ON page_cache(expires_at);
`

// Store is a TTL cache of page text keyed by URL.
type Store struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// Open opens (creating if needed) the cache database at dsn.
func Open(ctx context.Context, dsn string, ttl time.Duration) (*Store, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "pagecache: open")
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "pagecache: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, migration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "pagecache: migrate")
	}
	return &Store{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the cached text for url. Expired entries are misses.
func (s *Store) Get(ctx context.Context, url string) (string, bool, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM page_cache WHERE url = ? AND expires_at > ?`,
		url, s.now().Unix(),
	).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "pagecache: get")
	}
	return content, true, nil
}

// Put stores text for url, replacing any previous entry.
func (s *Store) Put(ctx context.Context, url, content string) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO page_cache (url, content, fetched_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET content = excluded.content, fetched_at = excluded.fetched_at, expires_at = excluded.expires_at`,
		url, content, now.Unix(), now.Add(s.ttl).Unix(),
	)
	return eris.Wrap(err, "pagecache: put")
}

// Prune deletes expired entries and reports how many were removed.
func (s *Store) Prune(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM page_cache WHERE expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, eris.Wrap(err, "pagecache: prune")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "pagecache: rows affected")
}

// CachedFetcher serves pages from the store and fills it on misses. Cache
// errors are logged and bypassed; they never fail a fetch.
type CachedFetcher struct {
	next   research.Fetcher
	store  *Store
	logger *zap.Logger
}

func NewCachedFetcher(next research.Fetcher, store *Store, logger *zap.Logger) *CachedFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedFetcher{next: next, store: store, logger: logger}
}

func (f *CachedFetcher) Fetch(ctx context.Context, url string) (string, error) {
	logger := logging.FromContext(ctx, f.logger)
	if content, ok, err := f.store.Get(ctx, url); err != nil {
		logger.Warn("pagecache: read failed", zap.String("url", url), zap.String("error", util.RedactSecrets(err.Error())))
	} else if ok {
		logger.Debug("pagecache: hit", zap.String("url", url))
		return content, nil
	}

	content, err := f.next.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	if content != "" {
		// The caller may cancel ctx as soon as it has enough documents; a page
		// already fetched is still stored.
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()
		if err := f.store.Put(wctx, url, content); err != nil {
			logger.Warn("pagecache: write failed", zap.String("url", url), zap.String("error", util.RedactSecrets(err.Error())))
		}
	}
	return content, nil
}
