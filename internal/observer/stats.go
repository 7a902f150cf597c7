package observer

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/knxnet-core/internal/knxnet/stats"
)

// StatsSink receives periodic statistics snapshots.
type StatsSink interface {
	WriteStatistics(s stats.Statistics)
}

// StatsReporter publishes a snapshot to every sink on a fixed interval.
type StatsReporter struct {
	interval time.Duration
	snapshot func() stats.Statistics
	sinks    []StatsSink
	logger   Logger
}

// NewStatsReporter creates a reporter. snapshot is usually client.Stats.
func NewStatsReporter(interval time.Duration, snapshot func() stats.Statistics, logger Logger, sinks ...StatsSink) *StatsReporter {
	if logger == nil {
		logger = nopLogger{}
	}
	return &StatsReporter{interval: interval, snapshot: snapshot, sinks: sinks, logger: logger}
}

// Run reports until ctx is done. A final snapshot is written on exit.
func (r *StatsReporter) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return fmt.Errorf("observer: stats interval must be positive, got %v", r.interval)
	}
	if len(r.sinks) == 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.report()
		case <-ctx.Done():
			r.report()
			return nil
		}
	}
}

func (r *StatsReporter) report() {
	s := r.snapshot()
	for _, sink := range r.sinks {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("stats sink panic", "sink", fmt.Sprintf("%T", sink), "panic", fmt.Sprint(rec))
				}
			}()
			sink.WriteStatistics(s)
		}()
	}
}

var (
	_ StatsSink = (*MQTTPublisher)(nil)
	_ StatsSink = (*InfluxRecorder)(nil)
)
