package services

import (
	"context"
	"log/slog"
	"time"
)

// StartAuthSessionCleanup starts a background goroutine that periodically
// removes expired auth sessions
func StartAuthSessionCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("Auth session cleanup stopped")
				return
			case <-ticker.C:
				cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				count, err := CleanupExpiredAuthSessions(cleanupCtx)
				if err != nil {
					slog.Error("Failed to cleanup expired auth sessions", "error", err)
				} else if count > 0 {
					slog.Info("Cleaned up expired auth sessions", "count", count)
				}
				cancel()
			}
		}
	}()

	slog.Info("Auth session cleanup started")
}
