// Package sqlitestore is the durable store.Store, backed by a pool of
// pure-Go SQLite connections. Every method runs in one IMMEDIATE
// transaction so concurrent transfers serialize on the write lock.
package sqlitestore

import (
	"context"
	"fmt"
	"math"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/Syriven/netvend/internal/store"
)

type Config struct {
	Path        string
	PoolSize    int
	Compression Codec
}

type Store struct {
	pool  *pool
	codec Codec
}

var _ store.Store = (*Store)(nil)

func Open(ctx context.Context, cfg Config) (*Store, error) {
	p, err := openPool(cfg.Path, cfg.PoolSize)
	if err != nil {
		return nil, err
	}
	if err := migrate(ctx, p); err != nil {
		_ = p.close()
		return nil, err
	}
	return &Store{pool: p, codec: cfg.Compression}, nil
}

func (s *Store) Close() error {
	return s.pool.close()
}

func (s *Store) withTx(ctx context.Context, fn func(conn *sqlite.Conn) error) (err error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	end, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin transaction: %w", err)
	}
	defer end(&err)
	return fn(conn)
}

func isUnique(err error) bool {
	code := sqlite.ErrCode(err)
	return code == sqlite.ResultConstraintUnique || code == sqlite.ResultConstraintPrimaryKey
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func columnBlob(stmt *sqlite.Stmt, col int) []byte {
	buf := make([]byte, stmt.ColumnLen(col))
	stmt.ColumnBytes(col, buf)
	return buf
}

func (s *Store) AgentExists(ctx context.Context, address string) (bool, error) {
	var found bool
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT 1 FROM agents WHERE address = ?", &sqlitex.ExecOptions{
			Args: []any{address},
			ResultFunc: func(*sqlite.Stmt) error {
				found = true
				return nil
			},
		})
	})
	return found, err
}

func (s *Store) InsertAgent(ctx context.Context, agent store.Agent) error {
	return s.withTx(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, "INSERT INTO agents (address, pubkey, default_pocket) VALUES (?, ?, ?)", &sqlitex.ExecOptions{
			Args: []any{agent.Address, agent.PublicKeyDER, int64(agent.DefaultPocketID)},
		})
		if isUnique(err) {
			return store.ErrAgentExists
		}
		return err
	})
}

func (s *Store) FetchAgentPubkey(ctx context.Context, address string) ([]byte, error) {
	var der []byte
	found := false
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT pubkey FROM agents WHERE address = ?", &sqlitex.ExecOptions{
			Args: []any{address},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				der = columnBlob(stmt, 0)
				return nil
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &store.AgentNotFoundError{Address: address}
	}
	return der, nil
}

func (s *Store) InsertPocket(ctx context.Context, owner, depositAddress string) (uint32, error) {
	var id uint32
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, "INSERT INTO pockets (owner, credit, deposit_address) VALUES (?, 0, ?)", &sqlitex.ExecOptions{
			Args: []any{nullable(owner), nullable(depositAddress)},
		})
		if err != nil {
			return err
		}
		rowID := conn.LastInsertRowID()
		if rowID <= 0 || rowID > math.MaxUint32 {
			return store.ErrIDSpaceExhausted
		}
		id = uint32(rowID)
		return nil
	})
	return id, err
}

func fetchPocket(conn *sqlite.Conn, id uint32) (store.Pocket, error) {
	var (
		p     store.Pocket
		found bool
	)
	err := sqlitex.Execute(conn, "SELECT owner, credit, deposit_address FROM pockets WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{int64(id)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			p = store.Pocket{
				ID:             id,
				Owner:          stmt.ColumnText(0),
				Credit:         uint64(stmt.ColumnInt64(1)),
				DepositAddress: stmt.ColumnText(2),
			}
			return nil
		},
	})
	if err != nil {
		return store.Pocket{}, err
	}
	if !found {
		return store.Pocket{}, &store.PocketNotFoundError{PocketID: id}
	}
	return p, nil
}

func setCredit(conn *sqlite.Conn, id uint32, credit uint64) error {
	return sqlitex.Execute(conn, "UPDATE pockets SET credit = ? WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{int64(credit), int64(id)},
	})
}

func (s *Store) FetchPocket(ctx context.Context, id uint32) (store.Pocket, error) {
	var p store.Pocket
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		var err error
		p, err = fetchPocket(conn, id)
		return err
	})
	return p, err
}

func (s *Store) FetchPocketOwner(ctx context.Context, id uint32) (string, error) {
	p, err := s.FetchPocket(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Owner, nil
}

func (s *Store) updatePocketColumn(ctx context.Context, id uint32, query string, value any) error {
	return s.withTx(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: []any{value, int64(id)}}); err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return &store.PocketNotFoundError{PocketID: id}
		}
		return nil
	})
}

func (s *Store) UpdatePocketOwner(ctx context.Context, id uint32, owner string) error {
	return s.updatePocketColumn(ctx, id, "UPDATE pockets SET owner = ? WHERE id = ?", nullable(owner))
}

func (s *Store) UpdatePocketDepositAddress(ctx context.Context, id uint32, depositAddress string) error {
	return s.updatePocketColumn(ctx, id, "UPDATE pockets SET deposit_address = ? WHERE id = ?", nullable(depositAddress))
}

func (s *Store) CreditPocket(ctx context.Context, id uint32, amount uint64) error {
	return s.withTx(ctx, func(conn *sqlite.Conn) error {
		p, err := fetchPocket(conn, id)
		if err != nil {
			return err
		}
		next, ok := store.AddCredit(p.Credit, amount)
		if !ok {
			return &store.CreditOverflowError{PocketID: id, Balance: p.Credit, Added: amount}
		}
		return setCredit(conn, id, next)
	})
}

func (s *Store) DebitThenCreditPockets(ctx context.Context, from, to uint32, amount uint64) error {
	return s.withTx(ctx, func(conn *sqlite.Conn) error {
		src, err := fetchPocket(conn, from)
		if err != nil {
			return err
		}
		if src.Credit < amount {
			return &store.InsufficientCreditError{PocketID: from, Required: amount, Available: src.Credit}
		}
		dst, err := fetchPocket(conn, to)
		if err != nil {
			return err
		}
		if from == to {
			return nil
		}
		next, ok := store.AddCredit(dst.Credit, amount)
		if !ok {
			return &store.CreditOverflowError{PocketID: to, Balance: dst.Credit, Added: amount}
		}
		if err := setCredit(conn, from, src.Credit-amount); err != nil {
			return err
		}
		return setCredit(conn, to, next)
	})
}

func (s *Store) InsertFile(ctx context.Context, owner, name string, pocketID uint32) (uint32, error) {
	var id uint32
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		if _, err := fetchPocket(conn, pocketID); err != nil {
			return err
		}
		err := sqlitex.Execute(conn, "INSERT INTO files (owner, name, pocket_id, codec, size, data) VALUES (?, ?, ?, 0, 0, NULL)", &sqlitex.ExecOptions{
			Args: []any{owner, name, int64(pocketID)},
		})
		if isUnique(err) {
			return store.ErrFileExists
		}
		if err != nil {
			return err
		}
		rowID := conn.LastInsertRowID()
		if rowID <= 0 || rowID > math.MaxUint32 {
			return store.ErrIDSpaceExhausted
		}
		id = uint32(rowID)
		return nil
	})
	return id, err
}

func (s *Store) FetchFileOwner(ctx context.Context, id uint32) (string, error) {
	var (
		owner string
		found bool
	)
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT owner FROM files WHERE id = ?", &sqlitex.ExecOptions{
			Args: []any{int64(id)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				owner = stmt.ColumnText(0)
				return nil
			},
		})
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", &store.FileNotFoundError{FileID: id}
	}
	return owner, nil
}

func (s *Store) UpdateFileData(ctx context.Context, id uint32, data []byte) error {
	stored, codec, err := compress(s.codec, data)
	if err != nil {
		return err
	}
	var blob any = stored
	if len(stored) == 0 {
		blob = nil
	}
	return s.withTx(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, "UPDATE files SET codec = ?, size = ?, data = ? WHERE id = ?", &sqlitex.ExecOptions{
			Args: []any{int64(codec), int64(len(data)), blob, int64(id)},
		})
		if err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return &store.FileNotFoundError{FileID: id}
		}
		return nil
	})
}

func (s *Store) ReadFileData(ctx context.Context, id uint32) ([]byte, error) {
	var (
		codec  Codec
		size   int
		stored []byte
		found  bool
	)
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT codec, size, data FROM files WHERE id = ?", &sqlitex.ExecOptions{
			Args: []any{int64(id)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				codec = Codec(stmt.ColumnInt64(0))
				size = int(stmt.ColumnInt64(1))
				stored = columnBlob(stmt, 2)
				return nil
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &store.FileNotFoundError{FileID: id}
	}
	data, err := decompress(codec, stored, size)
	if err != nil {
		return nil, fmt.Errorf("%w: file %d: %v", ErrCorrupt, id, err)
	}
	return data, nil
}

type pocketUsage struct {
	id      uint32
	files   uint64
	bytes   uint64
	credit  uint64
	missing bool
}

func (s *Store) ChargeUpkeepFees(ctx context.Context, schedule store.FeeSchedule) (store.FeeReport, error) {
	var report store.FeeReport
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		var usage []pocketUsage
		err := sqlitex.Execute(conn, `
			SELECT f.pocket_id, COUNT(*), COALESCE(SUM(f.size), 0), COALESCE(p.credit, 0), p.id IS NULL
			FROM files f LEFT JOIN pockets p ON p.id = f.pocket_id
			GROUP BY f.pocket_id
			ORDER BY f.pocket_id`, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				usage = append(usage, pocketUsage{
					id:      uint32(stmt.ColumnInt64(0)),
					files:   uint64(stmt.ColumnInt64(1)),
					bytes:   uint64(stmt.ColumnInt64(2)),
					credit:  uint64(stmt.ColumnInt64(3)),
					missing: stmt.ColumnInt64(4) != 0,
				})
				return nil
			},
		})
		if err != nil {
			return err
		}

		for _, u := range usage {
			fee := store.UpkeepFee(u.files, u.bytes, schedule)
			if fee == 0 {
				continue
			}
			if u.missing || u.credit < fee {
				err := sqlitex.Execute(conn, "DELETE FROM files WHERE pocket_id = ?", &sqlitex.ExecOptions{
					Args: []any{int64(u.id)},
				})
				if err != nil {
					return err
				}
				report.PocketsBankrupt++
				report.FilesDeleted += conn.Changes()
				continue
			}
			if err := setCredit(conn, u.id, u.credit-fee); err != nil {
				return err
			}
			report.PocketsCharged++
			if collected, ok := store.AddCredit(report.Collected, fee); ok {
				report.Collected = collected
			} else {
				report.Collected = math.MaxUint64
			}
		}
		return nil
	})
	if err != nil {
		return store.FeeReport{}, err
	}
	return report, nil
}

func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	var st store.Stats
	err := s.withTx(ctx, func(conn *sqlite.Conn) error {
		counts := []struct {
			query string
			dst   *int
		}{
			{"SELECT COUNT(*) FROM agents", &st.Agents},
			{"SELECT COUNT(*) FROM pockets", &st.Pockets},
			{"SELECT COUNT(*) FROM files", &st.Files},
		}
		for _, c := range counts {
			dst := c.dst
			err := sqlitex.Execute(conn, c.query, &sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					*dst = stmt.ColumnInt(0)
					return nil
				},
			})
			if err != nil {
				return err
			}
		}
		err := sqlitex.Execute(conn, "SELECT credit FROM pockets", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				sum, ok := store.AddCredit(st.TotalCredit, uint64(stmt.ColumnInt64(0)))
				if !ok {
					sum = math.MaxUint64
				}
				st.TotalCredit = sum
				return nil
			},
		})
		if err != nil {
			return err
		}
		return sqlitex.Execute(conn, "SELECT COALESCE(SUM(size), 0) FROM files", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				st.StoredBytes = uint64(stmt.ColumnInt64(0))
				return nil
			},
		})
	})
	return st, err
}
