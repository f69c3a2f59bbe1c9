package recon

import (
	"context"
	"log"
	"time"
)

// Worker periodically reprocesses stuck orders. It catches webhook
// deliveries that were lost to crashes or never sent at all.
type Worker struct {
	Engine    *Engine
	Interval  time.Duration
	Cutoff    time.Duration
	BatchSize int
}

func (w *Worker) Run(ctx context.Context) {
	batch := w.BatchSize
	if batch <= 0 {
		batch = 100
	}
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	log.Printf("reconciler started: interval=%s cutoff=%s", w.Interval, w.Cutoff)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			applied, err := w.Engine.ReprocessPending(ctx, w.Cutoff, batch)
			if err != nil {
				log.Printf("reconciler pass failed: %v", err)
				continue
			}
			if applied > 0 {
				log.Printf("reconciler applied %d transitions", applied)
			}
		}
	}
}
