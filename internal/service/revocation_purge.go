package service

import (
	"context"
	"log/slog"
	"time"
)

// PurgeExpiredRevocations drops revocation entries whose tokens have expired
// on their own. Removing them cannot revive a token.
func (s *AuthService) PurgeExpiredRevocations(ctx context.Context) (int64, error) {
	return s.revocations.PurgeExpired(ctx, s.now())
}

// StartRevocationPurge runs PurgeExpiredRevocations on a regular interval
// until ctx is cancelled.
func (s *AuthService) StartRevocationPurge(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := s.PurgeExpiredRevocations(ctx)
			if err != nil {
				slog.Warn("revocation purge failed", "error", err)
				continue
			}
			if purged > 0 {
				slog.Info("purged expired revocations", "count", purged)
			}
		}
	}
}
