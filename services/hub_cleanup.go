package services

import (
	"context"
	"log/slog"
	"time"
)

const (
	staleRecordMaxAge  = 5 * time.Minute
	staleSweepInterval = 5 * time.Minute
	longSessionMaxAge  = 12 * time.Hour
)

// StartHubCleanup starts a background goroutine that sweeps stale view
// requests and connections on a fixed interval, and flags cashiers whose
// sessions have run unusually long.
func StartHubCleanup(ctx context.Context, hub *Hub) {
	go func() {
		ticker := time.NewTicker(staleSweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("Hub cleanup stopped")
				return
			case <-ticker.C:
				if removed := hub.SweepStale(staleRecordMaxAge); removed > 0 {
					slog.Info("Swept stale view records", "removed", removed)
				}
				hub.SweepLongSessions(longSessionMaxAge)
			}
		}
	}()

	slog.Info("Hub cleanup started")
}
