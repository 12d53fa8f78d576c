package internal

import (
	"context"
	"log/slog"
	"time"

	"fileportal/internal/blobstore"
)

// Sweeper evicts aged rooms on a fixed period and cleans up after them. It
// holds no registry lock while deleting blobs or publishing, so a slow disk
// never stalls unrelated room operations.
type Sweeper struct {
	registry *Registry
	blobs    blobstore.Store
	events   Broadcaster
	metrics  *Metrics
	interval time.Duration
	log      *slog.Logger
}

func NewSweeper(registry *Registry, blobs blobstore.Store, events Broadcaster, metrics *Metrics, interval time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{
		registry: registry,
		blobs:    blobs,
		events:   events,
		metrics:  metrics,
		interval: interval,
		log:      log,
	}
}

// Run loops until the context is cancelled. The process owns all room state,
// so there is nothing to hand off at shutdown; the context exists for wiring
// and tests.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one cycle and returns how many rooms it evicted. A blob deletion
// failure is logged and skipped; it never aborts the room's remaining files or
// the other expired rooms in the cycle.
func (s *Sweeper) Sweep(ctx context.Context) int {
	swept := 0
	for _, code := range s.registry.ExpiredCodes() {
		refs, err := s.registry.Destroy(code)
		if err != nil {
			// Raced an explicit destroy; that caller owns the cleanup.
			continue
		}
		for _, ref := range refs {
			if err := s.blobs.Delete(ctx, ref); err != nil {
				s.log.Warn("sweep: blob delete failed", "room", code, "ref", ref, "error", err)
			}
		}
		s.events.Publish(code, NewEvent(code, EventRoomDestroyed, RoomDestroyedPayload{Reason: DestroyReasonExpired}))
		s.metrics.IncRoomExpired()
		s.log.Info("sweep: room expired", "room", code, "files", len(refs))
		swept++
	}
	return swept
}
