package notify

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"ambush/internal/eventbus"
	"ambush/internal/transport"
	"ambush/pkg/logx"
)

// Config tunes delivery. Zero values get sane defaults.
type Config struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

// channelSource is the slice of the config repository the dispatcher reads.
type channelSource interface {
	NotifyChannel(ctx context.Context) (string, error)
}

// Service turns domain events into channel messages. Delivery runs on the
// bus worker for this subscriber: a failed send is retried with bounded
// exponential backoff, then dropped. Nothing here can block a publisher.
type Service struct {
	cfg      Config
	log      logx.Logger
	sink     transport.Messenger
	channels channelSource
	limiter  *rate.Limiter

	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, sink transport.Messenger, channels channelSource, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		cfg:      cfg,
		log:      log,
		sink:     sink,
		channels: channels,
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Start subscribes to every domain event type.
func (s *Service) Start(ctx context.Context, bus *eventbus.Bus) {
	if s.runCancel != nil {
		return
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	for _, t := range []eventbus.Type{
		eventbus.SoundUploaded,
		eventbus.SoundDeleted,
		eventbus.SoundRenamed,
		eventbus.IntervalChanged,
		eventbus.VolumeChanged,
	} {
		bus.Subscribe(t, "notify", s.deliver)
	}
	s.log.Info("notifier started", logx.Int("rate_per_sec", s.cfg.RatePerSec), logx.Int("retry_max", s.cfg.RetryMax))
}

// Stop cancels in-flight retries.
func (s *Service) Stop() {
	if s.runCancel != nil {
		s.runCancel()
	}
}

func (s *Service) deliver(e eventbus.Event) error {
	ctx := s.runCtx
	if ctx == nil {
		ctx = context.Background()
	}

	channelID, err := s.channels.NotifyChannel(ctx)
	if err != nil {
		return fmt.Errorf("resolving notify channel: %w", err)
	}
	if channelID == "" {
		s.log.Debug("no notify channel configured; dropping", logx.String("type", e.Type.String()))
		return nil
	}

	text := Format(e)
	if text == "" {
		return nil
	}

	maxAttempts := 1 + s.cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil // shutting down
		}

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
		err := s.sink.SendText(callCtx, channelID, text)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		s.log.Debug("notification send failed",
			logx.Int("attempt", attempt), logx.Int("max", maxAttempts), logx.Err(err))

		if attempt >= maxAttempts {
			break
		}
		t := time.NewTimer(retryDelay(s.cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return nil
		}
	}

	return fmt.Errorf("dropping notification after %d attempts: %w", maxAttempts, lastErr)
}

// retryDelay is exponential from RetryBase, capped, with a little jitter so
// retries don't align.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase << (attempt - 1)
	if d > cfg.RetryMaxDelay || d <= 0 {
		d = cfg.RetryMaxDelay
	}
	return d + time.Duration(rand.Int63n(int64(d)/5+1))
}
