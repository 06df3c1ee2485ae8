package worker

import (
	"context"
	"log"
	"time"

	"github.com/Parzival4o4/drawing-app/service"
)

// RefreshSweeper periodically evicts stale entries from the refresh registry.
// An entry older than the token hard lifetime cannot match any token still in
// circulation, so the registry stays bounded.
type RefreshSweeper struct {
	refreshList *service.RefreshRegistry
	interval    time.Duration
	maxAge      time.Duration
}

func NewRefreshSweeper(refreshList *service.RefreshRegistry, tokenHardLifetime time.Duration) *RefreshSweeper {
	return &RefreshSweeper{
		refreshList: refreshList,
		interval:    tokenHardLifetime,
		maxAge:      tokenHardLifetime,
	}
}

func (s *RefreshSweeper) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.refreshList.Sweep(s.maxAge); removed > 0 {
				log.Printf("Refresh registry sweep removed %d stale entries", removed)
			}

		case <-shutdownCtx.Done():
			return
		}
	}
}
