package workerpool

import (
	"maps"
	"slices"
	"time"
)

// WorkerStats is a snapshot of one worker record.
type WorkerStats struct {
	ID           int
	Status       Status
	Pending      uint8
	LastActivity time.Time
}

// Stats is a point-in-time health snapshot of the pool.
type Stats struct {
	Workers   []WorkerStats
	Busy      int
	Idle      int
	Queued    int
	Completed uint64
	Failed    uint64
	Crashed   uint64
	Spawned   uint64
	Evicted   uint64
	Closed    bool
}

// Stats copies the current worker records and counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	stats := Stats{
		Workers:   make([]WorkerStats, 0, len(p.workers)),
		Queued:    p.queue.Len(),
		Completed: p.counters.completed,
		Failed:    p.counters.failed,
		Crashed:   p.counters.crashed,
		Spawned:   p.counters.spawned,
		Evicted:   p.counters.evicted,
		Closed:    p.closed,
	}
	for _, id := range slices.Sorted(maps.Keys(p.workers)) {
		w := p.workers[id]
		stats.Workers = append(stats.Workers, WorkerStats{
			ID:           w.id,
			Status:       w.status,
			Pending:      uint8(w.pending),
			LastActivity: w.lastActivity,
		})
		if w.status == StatusBusy {
			stats.Busy++
		} else {
			stats.Idle++
		}
	}
	return stats
}
