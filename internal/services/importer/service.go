package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"ambush/internal/eventbus"
	"ambush/internal/repo"
	"ambush/pkg/logx"
)

// Config configures the drop-directory watcher. An empty Dir disables it.
type Config struct {
	Dir string
	// SettleDelay is how long a file must sit unchanged before ingestion,
	// so half-written uploads are not picked up. Default 2s.
	SettleDelay time.Duration
}

var audioExts = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".ogg":  true,
	".opus": true,
	".flac": true,
}

// library is the slice of the sound repository the importer writes through.
type library interface {
	Create(ctx context.Context, name string, data []byte, src eventbus.Source) (repo.Sound, error)
}

// Service ingests audio files dropped into a directory. A successfully
// imported file is removed; duplicates are logged and left in place.
type Service struct {
	cfg    Config
	log    logx.Logger
	sounds library

	watcher *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer

	runCtx    context.Context
	runCancel context.CancelFunc
	done      chan struct{}
}

func New(cfg Config, sounds library, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 2 * time.Second
	}
	return &Service{cfg: cfg, log: log, sounds: sounds, timers: map[string]*time.Timer{}}
}

// Start scans the directory once and then watches it. Disabled when no
// directory is configured.
func (s *Service) Start(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.Dir) == "" {
		return nil
	}
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.cfg.Dir); err != nil {
		_ = w.Close()
		return err
	}
	s.watcher = w
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	s.scanExisting(s.runCtx)

	go s.loop()
	s.log.Info("import watcher started", logx.String("dir", s.cfg.Dir))
	return nil
}

// Stop halts the watcher and pending settle timers.
func (s *Service) Stop() {
	if s.watcher == nil {
		return
	}
	s.runCancel()
	_ = s.watcher.Close()
	<-s.done

	s.mu.Lock()
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	s.mu.Unlock()
}

func (s *Service) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.runCtx.Done():
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) {
				s.scheduleIngest(ev.Name)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("import watcher error", logx.Err(err))
		}
	}
}

// scanExisting ingests whatever is already sitting in the directory.
func (s *Service) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		s.log.Warn("reading import dir failed", logx.Err(err))
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		s.ingest(ctx, filepath.Join(s.cfg.Dir, e.Name()))
	}
}

// scheduleIngest (re)starts the settle timer for one path. Every write
// event pushes the deadline out again.
func (s *Service) scheduleIngest(path string) {
	if !audioExts[strings.ToLower(filepath.Ext(path))] {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[path]; ok {
		t.Reset(s.cfg.SettleDelay)
		return
	}
	s.timers[path] = time.AfterFunc(s.cfg.SettleDelay, func() {
		s.mu.Lock()
		delete(s.timers, path)
		s.mu.Unlock()
		s.ingest(s.runCtx, path)
	})
}

func (s *Service) ingest(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	name := filepath.Base(path)
	if !audioExts[strings.ToLower(filepath.Ext(name))] {
		s.log.Debug("skipping non-audio file", logx.String("file", name))
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		s.log.Warn("reading import file failed", logx.String("file", name), logx.Err(err))
		return
	}
	if len(data) == 0 {
		return
	}

	_, err = s.sounds.Create(ctx, name, data, eventbus.SourceSystem)
	if err != nil {
		if repo.IsValidation(err) {
			s.log.Warn("import skipped", logx.String("file", name), logx.Err(err))
			return
		}
		s.log.Error("import failed", logx.String("file", name), logx.Err(err))
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("removing imported file failed", logx.String("file", name), logx.Err(err))
	}
	s.log.Info("sound imported", logx.String("file", name))
}
