package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/plexhue/internal/config"
	"github.com/dokzlo13/plexhue/internal/ledger"
)

// LedgerService prunes old audit entries on an interval.
type LedgerService struct {
	cfg    *config.Config
	ledger *ledger.Ledger
}

// NewLedgerService creates a new LedgerService. l may be nil when the ledger is disabled.
func NewLedgerService(cfg *config.Config, l *ledger.Ledger) *LedgerService {
	return &LedgerService{cfg: cfg, ledger: l}
}

// Start launches the retention loop.
func (s *LedgerService) Start(ctx context.Context) {
	if s.ledger == nil || s.cfg.Ledger.RetentionDays <= 0 {
		return
	}
	go s.run(ctx)
}

func (s *LedgerService) run(ctx context.Context) {
	interval := s.cfg.Ledger.CleanupInterval.Duration()
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	s.prune()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.prune()
		}
	}
}

func (s *LedgerService) prune() {
	deleted, err := s.ledger.DeleteOlderThan(s.cfg.Ledger.Retention())
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune ledger")
		return
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Int("retention_days", s.cfg.Ledger.RetentionDays).Msg("Pruned ledger entries")
	}
}
