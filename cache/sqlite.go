package cache

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

type sqliteCache struct {
	db        *sql.DB
	ctx       context.Context
	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
	once      sync.Once
	cfg       config
}

var _ Cache = (*sqliteCache)(nil)

// NewSQLite returns a Cache stored in a SQLite database at dbPath. An empty
// path or ":memory:" keeps the table in memory.
func NewSQLite(parent context.Context, dbPath string, opts ...Option) (Cache, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite cache")
	}
	// a :memory: database exists per connection
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		`PRAGMA journal_mode=WAL`,
		`CREATE TABLE IF NOT EXISTS cache (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_expires_at ON cache(expires_at)`,
	} {
		if _, err := db.ExecContext(parent, stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "prepare sqlite cache")
		}
	}

	ctx, cancel := context.WithCancel(parent)
	c := &sqliteCache{db: db, ctx: ctx, cancel: cancel, cfg: applyOptions(opts)}
	c.waitGroup.Add(1)
	go c.run()
	return c, nil
}

func (c *sqliteCache) Get(ctx context.Context, key string) (bool, any, error) {
	qctx, cancel := context.WithTimeout(ctx, c.cfg.queryTimeout)
	defer cancel()
	var data []byte
	var expiresAt int64
	err := c.db.QueryRowContext(qctx,
		`SELECT value, expires_at FROM cache WHERE key = ?`, c.cfg.key(key),
	).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, errors.Wrap(err, "sqlite get")
	}
	if expiresAt <= time.Now().UnixNano() {
		_, _ = c.db.ExecContext(qctx, `DELETE FROM cache WHERE key = ?`, c.cfg.key(key))
		return false, nil, nil
	}
	return true, data, nil
}

func (c *sqliteCache) Set(ctx context.Context, key string, val any, expires time.Duration) error {
	if expires <= 0 {
		expires = c.cfg.defaultExpires
	}
	data, err := msgpack.Marshal(val)
	if err != nil {
		return errors.Wrapf(err, "encode %q", key)
	}
	qctx, cancel := context.WithTimeout(ctx, c.cfg.queryTimeout)
	defer cancel()
	_, err = c.db.ExecContext(qctx,
		`INSERT INTO cache (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		c.cfg.key(key), data, time.Now().Add(expires).UnixNano(),
	)
	return errors.Wrap(err, "sqlite set")
}

func (c *sqliteCache) Delete(ctx context.Context, key string) (bool, error) {
	qctx, cancel := context.WithTimeout(ctx, c.cfg.queryTimeout)
	defer cancel()
	result, err := c.db.ExecContext(qctx, `DELETE FROM cache WHERE key = ?`, c.cfg.key(key))
	if err != nil {
		return false, errors.Wrap(err, "sqlite delete")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (c *sqliteCache) Close() error {
	var err error
	c.once.Do(func() {
		c.cancel()
		c.waitGroup.Wait()
		err = c.db.Close()
	})
	return err
}

func (c *sqliteCache) run() {
	defer c.waitGroup.Done()
	ticker := time.NewTicker(c.cfg.expiryCheck)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_, _ = c.db.ExecContext(c.ctx, `DELETE FROM cache WHERE expires_at <= ?`, time.Now().UnixNano())
		}
	}
}
