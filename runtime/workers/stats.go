package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/observability"
)

// StatsWorker periodically logs a live-layer snapshot so operators can
// follow connection and message throughput without polling the debug
// endpoint.
type StatsWorker struct {
	log      *slog.Logger
	stats    *observability.Stats
	interval time.Duration
}

func NewStatsWorker(log *slog.Logger, stats *observability.Stats, interval time.Duration) *StatsWorker {
	return &StatsWorker{log: log, stats: stats, interval: interval}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snap := w.stats.Snapshot()
			w.log.Info("live layer stats",
				"connections", snap.Connections,
				"subscriptions", snap.Subscriptions,
				"messages_persisted", snap.MessagesPersisted,
				"broadcasts", snap.Broadcasts,
				"delivery_failures", snap.DeliveryFailures,
				"rss_mb", snap.RSSBytes/1024/1024,
				"cpu_percent", snap.CPUPercent)
		}
	}
}
