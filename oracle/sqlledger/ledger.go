// Package sqlledger is an append-only oracle ledger stored in SQLite.
//
// Every accepted commitment becomes one row; the row with the highest
// sequence number for a publisher is its current record.
package sqlledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/oracle"
	"xdao.co/modelsync/storage"
)

type Ledger struct {
	db *sql.DB
}

var _ oracle.Ledger = (*Ledger)(nil)

// Open opens (creating if needed) the ledger database at path.
// Use ":memory:" for a throwaway ledger.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *Ledger) migrate() error {
	_, err := l.db.Exec(`
CREATE TABLE IF NOT EXISTS commitments (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  publisher TEXT NOT NULL,
  namespace TEXT NOT NULL,
  name TEXT NOT NULL,
  content_hash TEXT NOT NULL,
  commit_token TEXT NOT NULL,
  hash_alg TEXT NOT NULL,
  signature TEXT NOT NULL,
  height INTEGER NOT NULL,
  appended_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS commitments_publisher_seq ON commitments(publisher, seq);
`)
	return err
}

func (l *Ledger) Append(ctx context.Context, c oracle.Commitment, height uint64) error {
	if err := c.Verify(); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx, `
INSERT INTO commitments(publisher, namespace, name, content_hash, commit_token, hash_alg, signature, height, appended_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, c.Publisher, c.Identity.Namespace, c.Identity.Name, c.Identity.ContentHash, c.Identity.Commit,
		c.HashAlg, c.Signature, int64(height), time.Now().UTC())
	return mapErr(ctx, err)
}

func (l *Ledger) Record(ctx context.Context, publisher string) (artifact.PublishRecord, bool, error) {
	row := l.db.QueryRowContext(ctx, `
SELECT namespace, name, content_hash, commit_token, height
FROM commitments WHERE publisher=? ORDER BY seq DESC LIMIT 1;
`, publisher)

	var (
		rec    artifact.PublishRecord
		height int64
	)
	err := row.Scan(&rec.Identity.Namespace, &rec.Identity.Name, &rec.Identity.ContentHash, &rec.Identity.Commit, &height)
	if errors.Is(err, sql.ErrNoRows) {
		return artifact.PublishRecord{}, false, nil
	}
	if err != nil {
		return artifact.PublishRecord{}, false, mapErr(ctx, err)
	}
	rec.Height = uint64(height)
	return rec, true, nil
}

func (l *Ledger) Publishers(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT DISTINCT publisher FROM commitments ORDER BY publisher;`)
	if err != nil {
		return nil, mapErr(ctx, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, mapErr(ctx, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(ctx, err)
	}
	return out, nil
}

// History returns every commitment for publisher, oldest first.
func (l *Ledger) History(ctx context.Context, publisher string) ([]artifact.PublishRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT namespace, name, content_hash, commit_token, height
FROM commitments WHERE publisher=? ORDER BY seq ASC;
`, publisher)
	if err != nil {
		return nil, mapErr(ctx, err)
	}
	defer rows.Close()

	var out []artifact.PublishRecord
	for rows.Next() {
		var (
			r      artifact.PublishRecord
			height int64
		)
		if err := rows.Scan(&r.Identity.Namespace, &r.Identity.Name, &r.Identity.ContentHash, &r.Identity.Commit, &height); err != nil {
			return nil, mapErr(ctx, err)
		}
		r.Height = uint64(height)
		out = append(out, r)
	}
	return out, mapErr(ctx, rows.Err())
}

func mapErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if cerr := storage.FromContext(ctx.Err()); cerr != nil {
		return fmt.Errorf("%w: %v", cerr, err)
	}
	return fmt.Errorf("%w: sqlite: %v", storage.ErrUnavailable, err)
}
