package storage

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/tolelom/tolbattle/core"
)

// SQLiteDB implements DB on a single key-value table. BLOB keys compare
// with memcmp, so prefix scans come back in the same order as LevelDB's.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (or creates) a SQLite database at path.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if path == "" {
		return nil, errors.New("empty sqlite path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// one writer; the executor serializes access anyway
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		`CREATE TABLE IF NOT EXISTS kv (
			k BLOB PRIMARY KEY,
			v BLOB NOT NULL
		) WITHOUT ROWID;`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite %q: %w", path, err)
		}
	}
	return &SQLiteDB{db: db}, nil
}

func (s *SQLiteDB) Get(key []byte) ([]byte, error) {
	var v []byte
	err := s.db.QueryRow("SELECT v FROM kv WHERE k = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *SQLiteDB) Set(key, value []byte) error {
	_, err := s.db.Exec(upsertKV, key, value)
	return err
}

func (s *SQLiteDB) Delete(key []byte) error {
	_, err := s.db.Exec("DELETE FROM kv WHERE k = ?", key)
	return err
}

// NewIterator loads the matching rows eagerly; state scans are small and
// this keeps the single connection free for writes.
func (s *SQLiteDB) NewIterator(prefix []byte) Iterator {
	it := &sliceIterator{idx: -1}
	rows, err := s.db.Query("SELECT k, v FROM kv WHERE k >= ? ORDER BY k", append([]byte{}, prefix...))
	if err != nil {
		it.err = err
		return it
	}
	defer rows.Close()
	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			it.err = err
			return it
		}
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		it.pairs = append(it.pairs, kvPair{k: k, v: v})
	}
	it.err = rows.Err()
	return it
}

func (s *SQLiteDB) NewBatch() Batch {
	return &sqliteBatch{db: s.db}
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

const upsertKV = "INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v"

type sqliteOp struct {
	key   []byte
	value []byte // nil means delete
}

// sqliteBatch applies its ops inside one SQL transaction.
type sqliteBatch struct {
	db  *sql.DB
	ops []sqliteOp
}

func (b *sqliteBatch) Set(key, value []byte) {
	b.ops = append(b.ops, sqliteOp{key: bytes.Clone(key), value: append([]byte{}, value...)})
}

func (b *sqliteBatch) Delete(key []byte) {
	b.ops = append(b.ops, sqliteOp{key: bytes.Clone(key)})
}

func (b *sqliteBatch) Reset() { b.ops = nil }

func (b *sqliteBatch) Write() error {
	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	for _, op := range b.ops {
		if op.value == nil {
			_, err = tx.Exec("DELETE FROM kv WHERE k = ?", op.key)
		} else {
			_, err = tx.Exec(upsertKV, op.key, op.value)
		}
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

type kvPair struct{ k, v []byte }

type sliceIterator struct {
	pairs []kvPair
	idx   int
	err   error
}

func (it *sliceIterator) Next() bool    { it.idx++; return it.idx < len(it.pairs) }
func (it *sliceIterator) Key() []byte   { return it.pairs[it.idx].k }
func (it *sliceIterator) Value() []byte { return it.pairs[it.idx].v }
func (it *sliceIterator) Release()      {}
func (it *sliceIterator) Error() error  { return it.err }
