package sqlitestore

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Version 2 made pocket and file ids AUTOINCREMENT so an id freed by an
// upkeep sweep is never handed out again.
const schemaVersion = 2

const schema = `
CREATE TABLE IF NOT EXISTS agents (
	address        TEXT PRIMARY KEY,
	pubkey         BLOB NOT NULL,
	default_pocket INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS pockets (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	owner           TEXT,
	credit          INTEGER NOT NULL DEFAULT 0,
	deposit_address TEXT
);

CREATE TABLE IF NOT EXISTS files (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	owner     TEXT NOT NULL,
	name      TEXT NOT NULL,
	pocket_id INTEGER NOT NULL,
	codec     INTEGER NOT NULL DEFAULT 0,
	size      INTEGER NOT NULL DEFAULT 0,
	data      BLOB,
	UNIQUE (owner, name)
);
CREATE INDEX IF NOT EXISTS idx_files_pocket ON files(pocket_id);
`

// upgradeV1 moves version 1 tables aside, lets schema recreate them and
// copies the rows back.
const upgradeV1 = `
DROP INDEX IF EXISTS idx_files_pocket;
ALTER TABLE pockets RENAME TO pockets_v1;
ALTER TABLE files RENAME TO files_v1;
`

const copyV1 = `
INSERT INTO pockets (id, owner, credit, deposit_address)
	SELECT id, owner, credit, deposit_address FROM pockets_v1;
INSERT INTO files (id, owner, name, pocket_id, codec, size, data)
	SELECT id, owner, name, pocket_id, codec, size, data FROM files_v1;
DROP TABLE pockets_v1;
DROP TABLE files_v1;
`

func migrate(ctx context.Context, p *pool) (err error) {
	conn, err := p.take(ctx)
	if err != nil {
		return err
	}
	defer p.put(conn)

	version, err := userVersion(conn)
	if err != nil {
		return err
	}
	if version > schemaVersion {
		return fmt.Errorf("sqlitestore: database schema version %d is newer than supported %d", version, schemaVersion)
	}
	if version == schemaVersion {
		return nil
	}

	end, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin migration: %w", err)
	}
	defer end(&err)

	if version == 1 {
		if err := sqlitex.ExecuteScript(conn, upgradeV1, nil); err != nil {
			return fmt.Errorf("sqlitestore: upgrade from version 1: %w", err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("sqlitestore: apply schema: %w", err)
	}
	if version == 1 {
		if err := sqlitex.ExecuteScript(conn, copyV1, nil); err != nil {
			return fmt.Errorf("sqlitestore: copy version 1 rows: %w", err)
		}
	}
	if err := sqlitex.ExecuteTransient(conn, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion), nil); err != nil {
		return fmt.Errorf("sqlitestore: set schema version: %w", err)
	}
	return nil
}

func userVersion(conn *sqlite.Conn) (int, error) {
	var version int
	err := sqlitex.ExecuteTransient(conn, "PRAGMA user_version", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: read schema version: %w", err)
	}
	return version, nil
}
