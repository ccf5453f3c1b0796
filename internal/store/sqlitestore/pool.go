package sqlitestore

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog/log"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// pool is a fixed-size set of connections sharing one set of pragmas.
// Connections are not safe for concurrent use; take one per goroutine.
type pool struct {
	inner *sqlitex.Pool
	path  string
}

var connPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=OFF",
	"PRAGMA cache_size=-8192",
	"PRAGMA temp_store=MEMORY",
}

func openPool(path string, size int) (*pool, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlitestore: path is required")
	}
	if size <= 0 {
		size = runtime.NumCPU()
		if size < 4 {
			size = 4
		}
	}
	inner, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: opening %s: %w", path, err)
	}
	log.Info().Str("path", path).Int("pool_size", size).Msg("sqlitestore pool opened")
	return &pool{inner: inner, path: path}, nil
}

func (p *pool) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: take: %w", err)
	}
	return conn, nil
}

func (p *pool) put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

func (p *pool) close() error {
	if err := p.inner.Close(); err != nil {
		log.Error().Err(err).Str("path", p.path).Msg("sqlitestore pool close failed")
		return fmt.Errorf("sqlitestore: closing %s: %w", p.path, err)
	}
	log.Info().Str("path", p.path).Msg("sqlitestore pool closed")
	return nil
}

func prepareConn(conn *sqlite.Conn) error {
	for _, pragma := range connPragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitestore: %s: %w", pragma, err)
		}
	}
	return nil
}
