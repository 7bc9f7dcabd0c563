package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"ambush/internal/repo"
	"ambush/internal/storage"
	"ambush/pkg/logx"
)

// Config controls audit retention.
type Config struct {
	// Retention is how long audit rows are kept. Default 90 days.
	Retention time.Duration
	// Spec is the cron expression for the prune job. Default: daily at 03:00.
	Spec string
}

func (c Config) withDefaults() Config {
	if c.Retention <= 0 {
		c.Retention = 90 * 24 * time.Hour
	}
	if c.Spec == "" {
		c.Spec = "0 3 * * *"
	}
	return c
}

// Service prunes old audit rows on a cron schedule.
type Service struct {
	cfg Config
	log logx.Logger
	gw  *storage.Gateway
	c   *cron.Cron
}

func New(cfg Config, gw *storage.Gateway, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg.withDefaults(), log: log, gw: gw}
}

func (s *Service) Start(ctx context.Context) error {
	if s.c != nil {
		return nil
	}
	s.c = cron.New()
	_, err := s.c.AddFunc(s.cfg.Spec, func() { s.prune(ctx) })
	if err != nil {
		s.c = nil
		return err
	}
	s.c.Start()
	s.log.Info("maintenance started",
		logx.String("spec", s.cfg.Spec),
		logx.Duration("retention", s.cfg.Retention))
	return nil
}

func (s *Service) Stop() {
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
	s.log.Info("maintenance stopped")
}

func (s *Service) prune(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.Retention)
	pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := repo.PruneAudit(pctx, s.gw, cutoff)
	if err != nil {
		s.log.Warn("audit prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("audit rows pruned", logx.Int64("rows", n))
	}
}
