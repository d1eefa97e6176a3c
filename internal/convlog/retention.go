package convlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sinhome/pkg/logger"
)

// DefaultPruneSchedule runs the retention job daily at 03:00.
const DefaultPruneSchedule = "0 0 3 * * *"

// PruneResult counts what one retention pass removed.
type PruneResult struct {
	Files int
	Rows  int64
}

// Prune removes daily files dated before cutoff, session files last
// modified before cutoff, and stored rows created before cutoff.
func (l *Logger) Prune(cutoff time.Time) (PruneResult, error) {
	var (
		res  PruneResult
		errs []error
	)

	if l.dir != "" {
		n, err := pruneDir(filepath.Join(l.dir, dailyDir), func(e os.DirEntry) bool {
			day, err := time.ParseInLocation(dateLayout, strings.TrimSuffix(e.Name(), ".log"), cutoff.Location())
			if err != nil {
				return false
			}
			return day.Add(24 * time.Hour).Before(cutoff)
		})
		res.Files += n
		if err != nil {
			errs = append(errs, err)
		}

		n, err = pruneDir(filepath.Join(l.dir, conversationsDir), func(e os.DirEntry) bool {
			info, err := e.Info()
			if err != nil {
				return false
			}
			return info.ModTime().Before(cutoff)
		})
		res.Files += n
		if err != nil {
			errs = append(errs, err)
		}
	}

	if l.store != nil {
		rows, err := l.store.PruneLogsBefore(cutoff)
		res.Rows = rows
		if err != nil {
			errs = append(errs, err)
		}
	}
	return res, errors.Join(errs...)
}

func pruneDir(dir string, expired func(os.DirEntry) bool) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") || !expired(e) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Pruner runs Prune on a cron schedule.
type Pruner struct {
	cron      *cron.Cron
	log       *Logger
	retention time.Duration

	mu      sync.Mutex
	running bool
}

// NewPruner schedules pruning of entries older than retentionDays. The
// schedule uses six fields (seconds first).
func NewPruner(l *Logger, retentionDays int, schedule string) (*Pruner, error) {
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}

	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cron.PrintfLogger(logger.Get())),
	)
	p := &Pruner{
		cron:      c,
		log:       l,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
	if _, err := c.AddFunc(schedule, func() { p.RunOnce() }); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return p, nil
}

// RunOnce prunes everything older than the retention period now.
func (p *Pruner) RunOnce() PruneResult {
	cutoff := p.log.now().Add(-p.retention)
	res, err := p.log.Prune(cutoff)
	ev := logger.Info()
	if err != nil {
		ev = logger.Warn().Err(err)
	}
	ev.Int("files", res.Files).
		Int64("rows", res.Rows).
		Time("cutoff", cutoff).
		Msg("Conversation logs pruned")
	return res
}

// Start starts the schedule.
func (p *Pruner) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.cron.Start()
	p.running = true
}

// Stop stops the schedule and returns a context done once a running job
// has finished.
func (p *Pruner) Stop() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	p.running = false
	return p.cron.Stop()
}

// Run starts the schedule and blocks until ctx is done.
func (p *Pruner) Run(ctx context.Context) error {
	p.Start()
	<-ctx.Done()
	<-p.Stop().Done()
	return nil
}

// Next returns the next scheduled run, zero if not running.
func (p *Pruner) Next() time.Time {
	entries := p.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
