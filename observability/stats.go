// Package observability aggregates live-layer counters and process
// metrics for the stats worker and the debug endpoint.
package observability

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Stats holds the live-layer counters. All methods are safe for
// concurrent use and nil-safe so wiring stays optional in tests.
type Stats struct {
	startedAt time.Time
	proc      *process.Process

	connections       int64
	subscriptions     int64
	messagesPersisted uint64
	broadcasts        uint64
	deliveryFailures  uint64
}

// Snapshot is the JSON shape served at /debug/stats and logged
// periodically by the stats worker.
type Snapshot struct {
	UptimeSeconds     int64   `json:"uptime_seconds"`
	Connections       int64   `json:"connections"`
	Subscriptions     int64   `json:"subscriptions"`
	MessagesPersisted uint64  `json:"messages_persisted"`
	Broadcasts        uint64  `json:"broadcasts"`
	DeliveryFailures  uint64  `json:"delivery_failures"`
	RSSBytes          uint64  `json:"rss_bytes"`
	CPUPercent        float64 `json:"cpu_percent"`
}

func NewStats() *Stats {
	// Process handle failures (exotic platforms) degrade to zeroed
	// process metrics rather than failing startup.
	p, _ := process.NewProcess(int32(os.Getpid()))
	return &Stats{startedAt: time.Now().UTC(), proc: p}
}

func (s *Stats) ConnectionOpened() {
	if s == nil {
		return
	}
	atomic.AddInt64(&s.connections, 1)
}

func (s *Stats) ConnectionClosed() {
	if s == nil {
		return
	}
	atomic.AddInt64(&s.connections, -1)
}

func (s *Stats) Subscribed() {
	if s == nil {
		return
	}
	atomic.AddInt64(&s.subscriptions, 1)
}

func (s *Stats) Unsubscribed() {
	if s == nil {
		return
	}
	atomic.AddInt64(&s.subscriptions, -1)
}

func (s *Stats) MessagePersisted() {
	if s == nil {
		return
	}
	atomic.AddUint64(&s.messagesPersisted, 1)
}

func (s *Stats) Broadcasted() {
	if s == nil {
		return
	}
	atomic.AddUint64(&s.broadcasts, 1)
}

func (s *Stats) DeliveryFailed() {
	if s == nil {
		return
	}
	atomic.AddUint64(&s.deliveryFailures, 1)
}

// Snapshot collects the counters plus process RSS and CPU usage.
func (s *Stats) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	snap := Snapshot{
		UptimeSeconds:     int64(time.Since(s.startedAt).Seconds()),
		Connections:       atomic.LoadInt64(&s.connections),
		Subscriptions:     atomic.LoadInt64(&s.subscriptions),
		MessagesPersisted: atomic.LoadUint64(&s.messagesPersisted),
		Broadcasts:        atomic.LoadUint64(&s.broadcasts),
		DeliveryFailures:  atomic.LoadUint64(&s.deliveryFailures),
	}
	if s.proc != nil {
		if memInfo, err := s.proc.MemoryInfo(); err == nil {
			snap.RSSBytes = memInfo.RSS
		}
		if cpu, err := s.proc.CPUPercent(); err == nil {
			snap.CPUPercent = cpu
		}
	}
	return snap
}
