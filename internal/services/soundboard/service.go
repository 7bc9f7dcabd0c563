package soundboard

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ambush/internal/eventbus"
	"ambush/internal/transport"
	"ambush/pkg/logx"
)

// Service drives the periodic playback cycle:
//
//	Idle -> SelectingChannel -> Connecting -> Playing -> Idle
//
// Any failure along the way logs and falls back to Idle; the loop itself
// never stops on a cycle error. Exactly one cycle is in flight at a time;
// a tick that fires while a slow cycle is still running is dropped.
type Service struct {
	log     logx.Logger
	cfg     settings
	sounds  library
	browser transport.ChannelBrowser
	conn    transport.Connector
	opt     Options

	// rearm wakes the interval wait early after IntervalChanged.
	rearm chan struct{}
	gen   atomic.Uint64

	inflight atomic.Bool

	mu          sync.Mutex
	session     transport.Session
	state       State
	emptyStreak int

	runCancel context.CancelFunc
	done      chan struct{}
	cycleWG   sync.WaitGroup
}

func New(cfg settings, sounds library, browser transport.ChannelBrowser, conn transport.Connector, opt Options, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:     log,
		cfg:     cfg,
		sounds:  sounds,
		browser: browser,
		conn:    conn,
		opt:     opt.withDefaults(),
		rearm:   make(chan struct{}, 1),
	}
}

// State returns the current cycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start launches the timer loop and subscribes to interval changes.
func (s *Service) Start(ctx context.Context, bus *eventbus.Bus) {
	if s.done != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	s.done = make(chan struct{})

	bus.Subscribe(eventbus.IntervalChanged, "soundboard", func(e eventbus.Event) error {
		gen := s.gen.Add(1)
		s.log.Info("interval changed; rearming timer",
			logx.Int("interval", e.Config.New), logx.Uint64("gen", gen))
		select {
		case s.rearm <- struct{}{}:
		default: // a pending rearm already covers this change
		}
		return nil
	})

	go s.run(runCtx)
	s.log.Info("soundboard started",
		logx.Duration("max_play", s.opt.MaxPlayDuration),
		logx.Int("leave_after_empty", s.opt.LeaveAfterEmpty))
}

// Stop cancels the wait and any in-flight cycle, then tears down the voice
// session. The wait is bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	if s.runCancel == nil {
		return
	}
	s.runCancel()

	finished := make(chan struct{})
	go func() {
		<-s.done
		s.cycleWG.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
	}

	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.mu.Unlock()
	if sess != nil {
		if err := sess.Disconnect(ctx); err != nil {
			s.log.Warn("voice disconnect on shutdown failed", logx.Err(err))
		}
	}
	s.log.Info("soundboard stopped")
}

type waitResult int

const (
	waitTick waitResult = iota
	waitRearm
	waitStop
)

func (s *Service) run(ctx context.Context) {
	defer close(s.done)
	for {
		switch s.wait(ctx, s.currentInterval(ctx)) {
		case waitStop:
			return
		case waitRearm:
			// New interval takes effect on the next wait, never mid-cycle.
			continue
		case waitTick:
		}

		s.tick(ctx)
	}
}

// tick starts one cycle unless the previous one is still in flight, in
// which case this tick is dropped. Reports whether a cycle was started.
func (s *Service) tick(ctx context.Context) bool {
	if !s.inflight.CompareAndSwap(false, true) {
		s.log.Warn("previous playback cycle still running; dropping tick")
		return false
	}
	s.cycleWG.Add(1)
	go func() {
		defer s.cycleWG.Done()
		defer s.inflight.Store(false)
		s.runCycle(ctx)
	}()
	return true
}

// wait is an interruptible sleep: a rearm or cancellation wins over a timer
// that has not fired yet.
func (s *Service) wait(ctx context.Context, d time.Duration) waitResult {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return waitStop
	case <-s.rearm:
		return waitRearm
	case <-t.C:
		return waitTick
	}
}

func (s *Service) currentInterval(ctx context.Context) time.Duration {
	sec, err := s.cfg.Interval(ctx)
	if err != nil {
		s.log.Warn("reading interval failed; keeping 30s", logx.Err(err))
		sec = 30
	}
	return time.Duration(sec) * time.Second
}

func (s *Service) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// runCycle is one full pass of the state machine. Every exit path returns
// the service to Idle.
func (s *Service) runCycle(ctx context.Context) {
	defer s.setState(StateIdle)

	s.setState(StateSelectingChannel)
	channels, err := s.browser.VoiceChannels(ctx)
	if err != nil {
		s.log.Error("listing voice channels failed", logx.Err(err))
		return
	}
	target := pickBusiest(channels)
	if target == nil {
		s.log.Debug("no populated voice channel; skipping cycle")
		s.noteEmptyCycle(ctx)
		return
	}
	s.resetEmptyStreak()

	s.setState(StateConnecting)
	sess, err := s.ensureSession(ctx, target.ID)
	if err != nil {
		s.log.Warn("voice connection failed; cycle aborted",
			logx.String("channel", target.Name), logx.Err(err))
		return
	}

	volume, err := s.cfg.Volume(ctx)
	if err != nil {
		s.log.Warn("reading volume failed; using 100", logx.Err(err))
		volume = 100
	}
	snd, ok, err := s.sounds.RandomPick(ctx)
	if err != nil {
		s.log.Error("picking sound failed", logx.Err(err))
		return
	}
	if !ok {
		s.log.Debug("sound library empty; skipping cycle")
		return
	}

	s.setState(StatePlaying)
	// Bound playback so a malformed payload can't hang the cycle forever.
	pctx, cancel := context.WithTimeout(ctx, s.opt.MaxPlayDuration)
	defer cancel()
	s.log.Info("playing sound",
		logx.String("sound", snd.Name),
		logx.String("channel", target.Name),
		logx.Int("volume", volume))
	if err := sess.Play(pctx, snd.Name, snd.Data, volume); err != nil {
		s.log.Warn("playback failed", logx.String("sound", snd.Name), logx.Err(err))
	}
}

// ensureSession reuses the current session when it is already in the target
// channel, moves it when it is elsewhere, and opens a fresh one otherwise.
func (s *Service) ensureSession(ctx context.Context, channelID string) (transport.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		if s.session.ChannelID() == channelID {
			return s.session, nil
		}
		err := s.session.MoveTo(ctx, channelID)
		if err == nil {
			return s.session, nil
		}
		s.log.Warn("moving voice session failed; reconnecting", logx.Err(err))
		_ = s.session.Disconnect(ctx)
		s.session = nil
	}

	sess, err := s.conn.Join(ctx, channelID)
	if err != nil {
		return nil, err
	}
	s.session = sess
	return sess, nil
}

func (s *Service) resetEmptyStreak() {
	s.mu.Lock()
	s.emptyStreak = 0
	s.mu.Unlock()
}

// noteEmptyCycle counts consecutive skips and, when LeaveAfterEmpty is set,
// eventually drops the idle voice session.
func (s *Service) noteEmptyCycle(ctx context.Context) {
	s.mu.Lock()
	s.emptyStreak++
	streak := s.emptyStreak
	var sess transport.Session
	if s.opt.LeaveAfterEmpty > 0 && streak >= s.opt.LeaveAfterEmpty {
		sess = s.session
		s.session = nil
		s.emptyStreak = 0
	}
	s.mu.Unlock()

	if sess != nil {
		s.log.Info("leaving voice after empty cycles", logx.Int("cycles", streak))
		if err := sess.Disconnect(ctx); err != nil {
			s.log.Warn("voice disconnect failed", logx.Err(err))
		}
	}
}

// pickBusiest returns the channel with the strictly greatest member count,
// or nil when every channel is empty. Ties go to the first seen.
func pickBusiest(channels []transport.VoiceChannel) *transport.VoiceChannel {
	var best *transport.VoiceChannel
	for i := range channels {
		c := &channels[i]
		if c.Members <= 0 {
			continue
		}
		if best == nil || c.Members > best.Members {
			best = c
		}
	}
	return best
}
