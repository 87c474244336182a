package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"vault_go/internal/engine"
)

// OpStore persists the vault's operation journal in SQLite.
type OpStore struct {
	db *sql.DB
}

// OpRecord is one journaled operation row.
type OpRecord struct {
	Seq     uint64
	Ts      uint64
	Kind    engine.OpKind
	Payload []byte
}

// NewOpStore opens (or creates) the journal database with WAL mode enabled.
func NewOpStore(dbPath string) (*OpStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata table: %w", err)
	}

	// One row per committed operation; seq is assigned by the vault and is
	// strictly increasing, so the primary key doubles as the replay order.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS ops (
			seq INTEGER PRIMARY KEY,
			kind INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create ops table: %w", err)
	}

	return &OpStore{db: db}, nil
}

// Append stores one committed operation. Implements engine.Journal.
func (s *OpStore) Append(ctx context.Context, seq, ts uint64, kind engine.OpKind, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO ops (seq, kind, ts, payload) VALUES (?, ?, ?, ?)",
		seq, kind, ts, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert op %d: %w", seq, err)
	}
	return nil
}

// GetLastSeq returns the highest journaled sequence number, 0 when empty.
func (s *OpStore) GetLastSeq(ctx context.Context) (uint64, error) {
	var lastSeq sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(seq) FROM ops").Scan(&lastSeq)
	if err != nil {
		return 0, fmt.Errorf("failed to get last seq: %w", err)
	}
	if !lastSeq.Valid {
		return 0, nil
	}
	return uint64(lastSeq.Int64), nil
}

// LoadOps loads journaled operations from fromSeq (inclusive) in order.
func (s *OpStore) LoadOps(ctx context.Context, fromSeq uint64) ([]OpRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, kind, ts, payload FROM ops WHERE seq >= ? ORDER BY seq ASC",
		fromSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ops: %w", err)
	}
	defer rows.Close()

	var records []OpRecord
	for rows.Next() {
		var rec OpRecord
		if err := rows.Scan(&rec.Seq, &rec.Kind, &rec.Ts, &rec.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan op: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return records, nil
}

// UpsertMetadata saves a key-value pair to the metadata table.
func (s *OpStore) UpsertMetadata(ctx context.Context, key, value string, ts int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at",
		key, value, ts,
	)
	return err
}

// GetMetadata retrieves a value from the metadata table, "" when absent.
func (s *OpStore) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Close closes the database connection.
func (s *OpStore) Close() error {
	return s.db.Close()
}
