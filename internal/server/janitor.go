package server

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brpsystems/applinks/internal/metrics"
	"github.com/brpsystems/applinks/internal/storage"
)

// runJanitor runs periodic background maintenance tasks:
//   - Physically delete records past the validity window.
//   - Refresh the live-record gauges per platform.
//   - Update the BboltDBSizeBytes gauge (for on-disk stores).
//
// Sweep failures are logged and never stop future sweeps. Returns when ctx is
// cancelled.
func runJanitor(ctx context.Context, store storage.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(store)
		}
	}
}

func sweep(store storage.Store) {
	pruned, err := store.Prune()
	if err != nil {
		metrics.StoreErrors.WithLabelValues("prune").Inc()
		log.Warn().Err(err).Msg("janitor: prune failed")
	} else if pruned > 0 {
		metrics.RecordsPruned.Add(float64(pruned))
		log.Info().Int("pruned", pruned).Msg("janitor: expired records removed")
	}

	for _, p := range []storage.Platform{storage.Android, storage.IOS} {
		if n, err := store.Count(p); err == nil {
			metrics.RecordsLive.WithLabelValues(string(p)).Set(float64(n))
		}
	}

	if path := store.DBPath(); path != "" {
		if info, err := os.Stat(path); err == nil {
			metrics.BboltDBSizeBytes.Set(float64(info.Size()))
		}
	}
}
