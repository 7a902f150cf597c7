package observer

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
	"github.com/nerrad567/knxnet-core/internal/knxnet/cemi"
)

// GroupAddressRecord is one row of knxnet_group_addresses.
type GroupAddressRecord struct {
	Address         string    `json:"address"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	MessageCount    int64     `json:"message_count"`
	HasReadResponse bool      `json:"has_read_response"`
}

// DeviceRecord is one row of knxnet_devices.
type DeviceRecord struct {
	Address      string    `json:"address"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	MessageCount int64     `json:"message_count"`
}

// AddressRecorder passively builds a table of the group addresses and
// devices active on the bus from received group value telegrams.
//
// The knxnet_group_addresses and knxnet_devices tables must exist (see
// migrations).
//
// Thread Safety: All methods are safe for concurrent use.
type AddressRecorder struct {
	NopObserver

	db     *sql.DB
	logger Logger

	gaUpsertStmt     *sql.Stmt
	deviceUpsertStmt *sql.Stmt
	stmtMu           sync.Mutex
}

// NewAddressRecorder creates a recorder on db. logger may be nil.
func NewAddressRecorder(db *sql.DB, logger Logger) *AddressRecorder {
	if logger == nil {
		logger = nopLogger{}
	}
	return &AddressRecorder{db: db, logger: logger}
}

// Start prepares the upsert statements. Calling it twice is a no-op.
func (r *AddressRecorder) Start() error {
	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.gaUpsertStmt != nil {
		return nil
	}

	gaStmt, err := r.db.Prepare(`
		INSERT INTO knxnet_group_addresses (group_address, first_seen, last_seen, message_count, has_read_response)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(group_address) DO UPDATE SET
			last_seen = excluded.last_seen,
			message_count = message_count + 1,
			has_read_response = MAX(has_read_response, excluded.has_read_response)
	`)
	if err != nil {
		return fmt.Errorf("preparing group address upsert: %w", err)
	}

	deviceStmt, err := r.db.Prepare(`
		INSERT INTO knxnet_devices (individual_address, first_seen, last_seen, message_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(individual_address) DO UPDATE SET
			last_seen = excluded.last_seen,
			message_count = message_count + 1
	`)
	if err != nil {
		gaStmt.Close()
		return fmt.Errorf("preparing device upsert: %w", err)
	}

	r.gaUpsertStmt = gaStmt
	r.deviceUpsertStmt = deviceStmt
	return nil
}

// Stop releases the prepared statements. Telegrams are ignored afterwards.
func (r *AddressRecorder) Stop() {
	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.gaUpsertStmt != nil {
		r.gaUpsertStmt.Close()
		r.gaUpsertStmt = nil
	}
	if r.deviceUpsertStmt != nil {
		r.deviceUpsertStmt.Close()
		r.deviceUpsertStmt = nil
	}
}

// OnTelegram records inbound group value telegrams.
func (r *AddressRecorder) OnTelegram(t Telegram) {
	if t.Direction != Inbound || !t.Message.IsGroupValue() {
		return
	}
	if err := r.Record(context.Background(), t.Message.Source, t.Message.Destination,
		t.Message.APCI.Service() == cemi.GroupValueResponse, t.Time); err != nil {
		r.logger.Warn("recording bus address", "destination", t.Message.Destination.String(), "error", err)
	}
}

// Record upserts the destination group address and the source device.
// A zero source (0.0.0) is not recorded.
func (r *AddressRecorder) Record(ctx context.Context, source, dst address.Address, isResponse bool, seen time.Time) error {
	r.stmtMu.Lock()
	gaStmt, deviceStmt := r.gaUpsertStmt, r.deviceUpsertStmt
	r.stmtMu.Unlock()
	if gaStmt == nil || deviceStmt == nil {
		return ErrRecorderNotStarted
	}

	if seen.IsZero() {
		seen = time.Now()
	}
	ts := seen.Unix()

	if source.Raw != 0 {
		if _, err := deviceStmt.ExecContext(ctx, source.String(), ts, ts); err != nil {
			return fmt.Errorf("recording device %s: %w", source, err)
		}
	}

	hasResponse := 0
	if isResponse {
		hasResponse = 1
	}
	if _, err := gaStmt.ExecContext(ctx, dst.String(), ts, ts, hasResponse); err != nil {
		return fmt.Errorf("recording group address %s: %w", dst, err)
	}
	return nil
}

// GroupAddresses returns recorded group addresses, most recently seen
// first. limit <= 0 means all.
func (r *AddressRecorder) GroupAddresses(ctx context.Context, limit int) ([]GroupAddressRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT group_address, first_seen, last_seen, message_count, has_read_response
		FROM knxnet_group_addresses
		ORDER BY last_seen DESC, group_address ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying group addresses: %w", err)
	}
	defer rows.Close()

	var out []GroupAddressRecord
	for rows.Next() {
		var (
			rec                 GroupAddressRecord
			first, last, hasRsp int64
		)
		if err := rows.Scan(&rec.Address, &first, &last, &rec.MessageCount, &hasRsp); err != nil {
			return nil, fmt.Errorf("scanning group address row: %w", err)
		}
		rec.FirstSeen = time.Unix(first, 0)
		rec.LastSeen = time.Unix(last, 0)
		rec.HasReadResponse = hasRsp != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Devices returns recorded devices, most recently seen first.
func (r *AddressRecorder) Devices(ctx context.Context) ([]DeviceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT individual_address, first_seen, last_seen, message_count
		FROM knxnet_devices
		ORDER BY last_seen DESC, individual_address ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var out []DeviceRecord
	for rows.Next() {
		var (
			rec         DeviceRecord
			first, last int64
		)
		if err := rows.Scan(&rec.Address, &first, &last, &rec.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		rec.FirstSeen = time.Unix(first, 0)
		rec.LastSeen = time.Unix(last, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GroupAddressCount returns the number of recorded group addresses.
func (r *AddressRecorder) GroupAddressCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knxnet_group_addresses`).Scan(&n)
	return n, err
}

// DeviceCount returns the number of recorded devices.
func (r *AddressRecorder) DeviceCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knxnet_devices`).Scan(&n)
	return n, err
}
