package status

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
	"github.com/nerrad567/knxnet-core/internal/knxnet/cemi"
)

// SQLiteStore persists entries in the knxnet_status table.
//
// Thread Safety: All methods are safe for concurrent use.
type SQLiteStore struct {
	db *sql.DB

	upsertStmt *sql.Stmt
	stmtMu     sync.Mutex
}

// NewSQLiteStore creates a store on db. The knxnet_status table must exist
// (see migrations).
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Start prepares the upsert statement. Calling it twice is a no-op.
func (s *SQLiteStore) Start() error {
	s.stmtMu.Lock()
	defer s.stmtMu.Unlock()

	if s.upsertStmt != nil {
		return nil
	}
	stmt, err := s.db.Prepare(`
		INSERT INTO knxnet_status (address, address_type, source, apci, payload, updated_at, update_count)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(address) DO UPDATE SET
			source = excluded.source,
			apci = excluded.apci,
			payload = excluded.payload,
			updated_at = excluded.updated_at,
			update_count = update_count + 1
	`)
	if err != nil {
		return fmt.Errorf("preparing status upsert statement: %w", err)
	}
	s.upsertStmt = stmt
	return nil
}

// Stop releases the prepared statement.
func (s *SQLiteStore) Stop() {
	s.stmtMu.Lock()
	defer s.stmtMu.Unlock()
	if s.upsertStmt != nil {
		s.upsertStmt.Close()
		s.upsertStmt = nil
	}
}

// Save upserts e.
func (s *SQLiteStore) Save(ctx context.Context, e Entry) error {
	s.stmtMu.Lock()
	stmt := s.upsertStmt
	s.stmtMu.Unlock()
	if stmt == nil {
		return fmt.Errorf("status store not started")
	}

	_, err := stmt.ExecContext(ctx,
		e.Address.String(),
		e.Address.Type.String(),
		e.Source.String(),
		int64(e.APCI),
		e.Payload,
		e.Time.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving status for %s: %w", e.Address, err)
	}
	return nil
}

// Load returns every persisted entry.
func (s *SQLiteStore) Load(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, address_type, source, apci, payload, updated_at FROM knxnet_status
	`)
	if err != nil {
		return nil, fmt.Errorf("querying status: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			addr, addrType, source string
			apci, updated          int64
			payload                []byte
		)
		if err := rows.Scan(&addr, &addrType, &source, &apci, &payload, &updated); err != nil {
			return nil, fmt.Errorf("scanning status row: %w", err)
		}
		e, err := entryFromRow(addr, addrType, source, apci, payload, updated)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of persisted addresses.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knxnet_status`).Scan(&n)
	return n, err
}

func entryFromRow(addr, addrType, source string, apci int64, payload []byte, updated int64) (Entry, error) {
	dst, err := address.Parse(addr)
	if err != nil {
		return Entry{}, fmt.Errorf("status row %q: %w", addr, err)
	}
	if dst.Type.String() != addrType {
		return Entry{}, fmt.Errorf("status row %q: stored type %q, parsed %s", addr, addrType, dst.Type)
	}
	src, err := address.Parse(source)
	if err != nil {
		return Entry{}, fmt.Errorf("status row %q source %q: %w", addr, source, err)
	}
	return Entry{
		Address: dst,
		Source:  src,
		APCI:    cemi.APCI(apci), //nolint:gosec // stored from a uint16
		Payload: payload,
		Time:    time.Unix(0, updated),
	}, nil
}

var _ Store = (*SQLiteStore)(nil)
