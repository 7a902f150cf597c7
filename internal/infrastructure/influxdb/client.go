package influxdb

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/knxnet-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	// Bus traffic is bursty but small; a hundred telegrams or ten seconds,
	// whichever comes first.
	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second

	// Telegrams on TP1 are at least a few milliseconds apart, so millisecond
	// timestamps keep them distinct without nanosecond line sizes.
	pointPrecision = time.Millisecond
)

// Client records KNXnet/IP traffic history in one InfluxDB v2 bucket.
//
// Points are batched by the non-blocking write API. A write the server
// rejects is reported through SetOnError and makes HealthCheck fail until
// a full flush window passes without another rejection.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	org, bucket string
	// errorWindow is how long a rejected write keeps the client unhealthy.
	errorWindow time.Duration

	connected   atomic.Bool
	writeErrors atomic.Uint64

	mu        sync.RWMutex
	onError   func(err error)
	lastErr   error
	lastErrAt time.Time
}

// Connect opens the bucket named by cfg and verifies the server answers a
// ping. Every point carries an instance tag with the host name so several
// daemons can share a bucket.
//
// Parameters:
//   - cfg: InfluxDB configuration; Org and Bucket are required
//
// Returns:
//   - *Client: Client ready for writes
//   - error: ErrDisabled, ErrInvalidConfig or ErrConnectionFailed
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: url, org and bucket are required", ErrInvalidConfig)
	}

	batchSize := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batchSize = uint(cfg.BatchSize) // #nosec G115 -- checked positive
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(batchSize).
		SetFlushInterval(uint(flush.Milliseconds())). // #nosec G115 -- positive
		SetPrecision(pointPrecision)
	if host, err := os.Hostname(); err == nil && host != "" {
		opts.AddDefaultTag("instance", host)
	}
	ic := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, ic); err != nil {
		ic.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		client:      ic,
		writeAPI:    ic.WriteAPI(cfg.Org, cfg.Bucket),
		org:         cfg.Org,
		bucket:      cfg.Bucket,
		errorWindow: 2 * flush,
	}
	c.connected.Store(true)
	go c.watchWriteErrors(c.writeAPI.Errors())
	return c, nil
}

func ping(ctx context.Context, ic influxdb2.Client) error {
	healthy, err := ic.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return fmt.Errorf("server not healthy")
	}
	return nil
}

// watchWriteErrors records rejected batches until the write API closes.
func (c *Client) watchWriteErrors(errs <-chan error) {
	for err := range errs {
		c.writeErrors.Add(1)
		c.mu.Lock()
		c.lastErr, c.lastErrAt = err, time.Now()
		callback := c.onError
		c.mu.Unlock()

		if callback != nil {
			callback(fmt.Errorf("bucket %s/%s: %w", c.org, c.bucket, err))
		}
	}
}

// Close flushes pending points and releases the client. Safe to call more
// than once and on a nil client.
func (c *Client) Close() error {
	if c == nil || !c.connected.CompareAndSwap(true, false) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// HealthCheck pings the server and fails while a rejected write is recent.
//
// Returns:
//   - error: ErrNotConnected after Close, ErrWriteRejected wrapping the last
//     server error, or the ping failure
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.RLock()
	lastErr, at := c.lastErr, c.lastErrAt
	c.mu.RUnlock()
	if lastErr != nil && time.Since(at) < c.errorWindow {
		return fmt.Errorf("%w (%d total): %w", ErrWriteRejected, c.writeErrors.Load(), lastErr)
	}

	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(checkCtx, c.client); err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	return nil
}

// IsConnected reports whether the client is open. It does not ping.
func (c *Client) IsConnected() bool {
	return c != nil && c.connected.Load()
}

// WriteErrors returns the number of batches the server rejected.
func (c *Client) WriteErrors() uint64 {
	return c.writeErrors.Load()
}

// SetOnError sets a callback for rejected batches. Writes are asynchronous,
// so this is the only place a failed write surfaces.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// Flush blocks until buffered points are written. No-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}
