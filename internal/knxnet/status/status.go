// Package status keeps the last known payload per KNX address.
//
// The client updates the pool from every group value write or response it
// sees (tunneling or routing). Readers such as the HTTP status surface use
// Lookup and Snapshot; Read operations use WaitFor to block until a fresh
// response arrives.
//
// A Store can be attached to persist entries across restarts.
package status

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
	"github.com/nerrad567/knxnet-core/internal/knxnet/cemi"
)

const (
	// pollInterval matches the correlation pool's wait cadence.
	pollInterval = 10 * time.Millisecond

	// saveTimeout bounds one Store.Save. Update runs on a socket's dispatch
	// goroutine, so a stuck store must not hold it.
	saveTimeout = 250 * time.Millisecond
)

// ErrNoUpdate is returned by WaitFor on timeout.
var ErrNoUpdate = errors.New("status: no update")

// Logger is the logging interface used by the pool.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Entry is the last value seen for one address.
type Entry struct {
	Address address.Address
	Source  address.Address
	APCI    cemi.APCI
	Payload []byte
	Time    time.Time
}

// Reader is the query side consumed by the status surface.
type Reader interface {
	Lookup(addr address.Address) (Entry, bool)
	Snapshot() []Entry
}

// Store persists entries.
type Store interface {
	Save(ctx context.Context, e Entry) error
	Load(ctx context.Context) ([]Entry, error)
}

// Pool holds one entry per address. Safe for concurrent use.
type Pool struct {
	mu      sync.RWMutex
	entries map[address.Address]Entry

	store  Store
	logger Logger
}

// NewPool creates an empty pool. store may be nil.
func NewPool(store Store) *Pool {
	return &Pool{
		entries: make(map[address.Address]Entry),
		store:   store,
	}
}

// SetLogger sets the logger.
func (p *Pool) SetLogger(logger Logger) {
	p.mu.Lock()
	p.logger = logger
	p.mu.Unlock()
}

// Restore loads persisted entries. Entries already in the pool are kept if
// they are newer.
func (p *Pool) Restore(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	loaded, err := p.store.Load(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range loaded {
		if cur, ok := p.entries[e.Address]; ok && cur.Time.After(e.Time) {
			continue
		}
		p.entries[e.Address] = e
	}
	return nil
}

// Update stores e, replacing any earlier entry for the same address. The
// store write is bounded by saveTimeout; a failed write is logged and the
// in-memory entry kept.
func (p *Pool) Update(e Entry) {
	e.Payload = slices.Clone(e.Payload)
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	p.mu.Lock()
	p.entries[e.Address] = e
	store, logger := p.store, p.logger
	p.mu.Unlock()

	if store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := store.Save(ctx, e); err != nil && logger != nil {
		logger.Warn("persisting status entry", "address", e.Address.String(), "error", err)
	}
}

// Observe updates the pool from a telegram if it carries a group value
// write or response.
//
// Returns:
//   - bool: true if the pool was updated
func (p *Pool) Observe(m cemi.Message, now time.Time) bool {
	if !m.IsGroupValue() || m.Code == cemi.LDataReq {
		return false
	}
	switch m.APCI.Service() {
	case cemi.GroupValueWrite, cemi.GroupValueResponse:
	default:
		return false
	}
	p.Update(Entry{
		Address: m.Destination,
		Source:  m.Source,
		APCI:    m.APCI.Service(),
		Payload: m.Value(),
		Time:    now,
	})
	return true
}

// Lookup returns the entry for addr.
func (p *Pool) Lookup(addr address.Address) (Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[addr]
	if ok {
		e.Payload = slices.Clone(e.Payload)
	}
	return e, ok
}

// Snapshot returns all entries ordered by address type then raw value.
func (p *Pool) Snapshot() []Entry {
	p.mu.RLock()
	out := make([]Entry, 0, len(p.entries))
	for _, e := range p.entries {
		e.Payload = slices.Clone(e.Payload)
		out = append(out, e)
	}
	p.mu.RUnlock()

	slices.SortFunc(out, func(a, b Entry) int {
		if c := cmp.Compare(a.Address.Type, b.Address.Type); c != 0 {
			return c
		}
		return cmp.Compare(a.Address.Raw, b.Address.Raw)
	})
	return out
}

// Len returns the number of addresses tracked.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// WaitFor blocks until addr has an entry newer than since.
//
// Returns:
//   - Entry: The fresh entry
//   - error: ErrNoUpdate on timeout, ctx.Err() on cancellation
func (p *Pool) WaitFor(ctx context.Context, addr address.Address, since time.Time, timeout time.Duration) (Entry, error) {
	fresh := func() (Entry, bool) {
		e, ok := p.Lookup(addr)
		return e, ok && e.Time.After(since)
	}
	if e, ok := fresh(); ok {
		return e, nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		case <-deadline.C:
			if e, ok := fresh(); ok {
				return e, nil
			}
			return Entry{}, ErrNoUpdate
		case <-ticker.C:
			if e, ok := fresh(); ok {
				return e, nil
			}
		}
	}
}

var _ Reader = (*Pool)(nil)
