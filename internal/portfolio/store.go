package portfolio

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists positions and trade records in SQLite so the agent can
// restart mid-competition without losing its entry prices.
type Store struct {
	db *sql.DB
}

// TradeRecord is one executed order kept for the audit trail.
type TradeRecord struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Amount    float64   `json:"amount"`
	Price     float64   `json:"price"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		data TEXT NOT NULL,
		checksum BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		amount REAL NOT NULL,
		price REAL NOT NULL,
		reason TEXT NOT NULL,
		executed_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// SavePositions writes the full position set atomically with a checksum.
func (s *Store) SavePositions(ctx context.Context, positions map[string]Position) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	data, err := json.Marshal(positions)
	if err != nil {
		return fmt.Errorf("failed to marshal positions: %w", err)
	}

	checksum := sha256.Sum256(data)
	query := `INSERT OR REPLACE INTO positions (id, data, checksum, updated_at) VALUES (1, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, string(data), checksum[:], time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to write positions: %w", err)
	}

	return tx.Commit()
}

// LoadPositions reads the persisted position set. A missing row returns an
// empty map; a corrupt row returns an error rather than silent data loss.
func (s *Store) LoadPositions(ctx context.Context) (map[string]Position, error) {
	query := `SELECT data, checksum FROM positions WHERE id = 1`
	var data string
	var storedChecksum []byte
	err := s.db.QueryRowContext(ctx, query).Scan(&data, &storedChecksum)
	if err != nil {
		if err == sql.ErrNoRows {
			return map[string]Position{}, nil
		}
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}

	computed := sha256.Sum256([]byte(data))
	if len(storedChecksum) != len(computed) {
		return nil, fmt.Errorf("checksum length mismatch: expected %d, got %d", len(computed), len(storedChecksum))
	}
	for i := range computed {
		if storedChecksum[i] != computed[i] {
			return nil, fmt.Errorf("checksum verification failed: data corruption detected")
		}
	}

	var positions map[string]Position
	if err := json.Unmarshal([]byte(data), &positions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal positions: %w", err)
	}
	return positions, nil
}

// RecordTrade appends one executed trade to the audit trail.
func (s *Store) RecordTrade(ctx context.Context, rec TradeRecord) error {
	query := `INSERT INTO trades (id, symbol, side, amount, price, reason, executed_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Symbol, rec.Side, rec.Amount, rec.Price, rec.Reason, rec.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record trade: %w", err)
	}
	return nil
}

// RecentTrades returns up to limit trades, newest first.
func (s *Store) RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	query := `SELECT id, symbol, side, amount, price, reason, executed_at FROM trades ORDER BY executed_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		var ts int64
		if err := rows.Scan(&rec.ID, &rec.Symbol, &rec.Side, &rec.Amount, &rec.Price, &rec.Reason, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		rec.Timestamp = time.Unix(0, ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
