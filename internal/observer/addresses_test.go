package observer

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
	"github.com/nerrad567/knxnet-core/internal/knxnet/cemi"
)

// setupRecorderDB creates an in-memory SQLite database with the address tables.
func setupRecorderDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE knxnet_group_addresses (
			group_address TEXT PRIMARY KEY,
			first_seen INTEGER NOT NULL,
			last_seen INTEGER NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 1,
			has_read_response INTEGER NOT NULL DEFAULT 0
		) STRICT;

		CREATE TABLE knxnet_devices (
			individual_address TEXT PRIMARY KEY,
			first_seen INTEGER NOT NULL,
			last_seen INTEGER NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 1
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func startRecorder(t *testing.T) *AddressRecorder {
	t.Helper()
	rec := NewAddressRecorder(setupRecorderDB(t), nil)
	if err := rec.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := rec.Start(); err != nil {
		t.Fatalf("second Start() error: %v", err)
	}
	t.Cleanup(rec.Stop)
	return rec
}

func TestAddressRecorder_RecordTelegrams(t *testing.T) {
	rec := startRecorder(t)
	ctx := context.Background()

	write := inboundTelegram(groupWriteInd(0x01))
	rec.OnTelegram(write)
	rec.OnTelegram(write)

	resp := cemi.NewGroupResponse(address.MustGroup(2, 0, 1), []byte{0x42})
	resp.Code = cemi.LDataInd
	resp.Source = address.MustIndividual(1, 1, 9)
	later := inboundTelegram(resp)
	later.Time = testTime.Add(time.Minute)
	rec.OnTelegram(later)

	gas, err := rec.GroupAddresses(ctx, 0)
	if err != nil {
		t.Fatalf("GroupAddresses() error: %v", err)
	}
	if len(gas) != 2 {
		t.Fatalf("GroupAddresses() = %d rows, want 2", len(gas))
	}
	if gas[0].Address != "2/0/1" || !gas[0].HasReadResponse {
		t.Errorf("first row = %+v, want 2/0/1 with read response", gas[0])
	}
	if gas[1].Address != "1/2/3" || gas[1].MessageCount != 2 || gas[1].HasReadResponse {
		t.Errorf("second row = %+v, want 1/2/3 seen twice without response", gas[1])
	}
	if !gas[1].FirstSeen.Equal(testTime) {
		t.Errorf("FirstSeen = %v, want %v", gas[1].FirstSeen, testTime)
	}

	devices, err := rec.Devices(ctx)
	if err != nil {
		t.Fatalf("Devices() error: %v", err)
	}
	if len(devices) != 2 || devices[0].Address != "1.1.9" || devices[1].MessageCount != 2 {
		t.Errorf("Devices() = %+v", devices)
	}

	limited, err := rec.GroupAddresses(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("GroupAddresses(limit 1) = %d rows, err %v", len(limited), err)
	}
}

func TestAddressRecorder_Ignores(t *testing.T) {
	rec := startRecorder(t)
	ctx := context.Background()

	out := inboundTelegram(groupWriteInd(1))
	out.Direction = Outbound
	rec.OnTelegram(out)

	prop := inboundTelegram(cemi.NewPropertyRead(0, 1, 0x0B, 1, 1))
	rec.OnTelegram(prop)

	if n, _ := rec.GroupAddressCount(ctx); n != 0 {
		t.Errorf("GroupAddressCount() = %d, want 0", n)
	}

	// A zero source records the group address only.
	anon := groupWriteInd(1)
	anon.Source = address.Address{}
	rec.OnTelegram(inboundTelegram(anon))
	if n, _ := rec.GroupAddressCount(ctx); n != 1 {
		t.Errorf("GroupAddressCount() = %d, want 1", n)
	}
	if n, _ := rec.DeviceCount(ctx); n != 0 {
		t.Errorf("DeviceCount() = %d, want 0", n)
	}
}

func TestAddressRecorder_NotStarted(t *testing.T) {
	rec := NewAddressRecorder(setupRecorderDB(t), nil)
	err := rec.Record(context.Background(), testSource, testGroup, false, testTime)
	if !errors.Is(err, ErrRecorderNotStarted) {
		t.Errorf("Record() error = %v, want ErrRecorderNotStarted", err)
	}

	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	rec.Stop()
	rec.Stop()
	err = rec.Record(context.Background(), testSource, testGroup, false, testTime)
	if !errors.Is(err, ErrRecorderNotStarted) {
		t.Errorf("Record() after Stop error = %v, want ErrRecorderNotStarted", err)
	}
}
