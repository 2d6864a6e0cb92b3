// Package retention runs scheduled purge sweeps over the store: old
// recording metadata and long-archived notes are hard-deleted on a cron
// schedule.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/murmurapp/murmur/internal/bus"
	"github.com/murmurapp/murmur/internal/library"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Config holds the dependencies and policy for the sweeper.
type Config struct {
	Library *library.Library
	Bus     *bus.Bus // may be nil in tests
	Logger  *slog.Logger

	// Schedule is a 5-field cron expression.
	Schedule string

	// RecordingTTL purges recording rows older than this.
	RecordingTTL time.Duration

	// ArchivedNoteTTL hard-deletes notes archived longer than this.
	ArchivedNoteTTL time.Duration
}

// Sweeper fires purge sweeps on the configured schedule.
type Sweeper struct {
	lib      *library.Library
	bus      *bus.Bus
	logger   *slog.Logger
	schedule cronlib.Schedule

	recordingTTL    time.Duration
	archivedNoteTTL time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a Sweeper. The schedule expression must parse.
func NewSweeper(cfg Config) (*Sweeper, error) {
	schedule, err := cronParser.Parse(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		lib:             cfg.Library,
		bus:             cfg.Bus,
		logger:          logger,
		schedule:        schedule,
		recordingTTL:    cfg.RecordingTTL,
		archivedNoteTTL: cfg.ArchivedNoteTTL,
	}, nil
}

// Start begins the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("retention sweeper started",
		"recording_ttl", s.recordingTTL,
		"archived_note_ttl", s.archivedNoteTTL,
	)
}

// Stop cancels the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("retention sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one purge pass. It is exported so operators can trigger an
// immediate sweep outside the schedule.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now()

	recordings, err := s.lib.PurgeRecordingsBefore(ctx, now.Add(-s.recordingTTL))
	if err != nil {
		s.logger.Error("retention: purge recordings failed", "error", err)
		return
	}
	notes, err := s.lib.PurgeArchivedNotes(ctx, now.Add(-s.archivedNoteTTL))
	if err != nil {
		s.logger.Error("retention: purge archived notes failed", "error", err)
		return
	}

	if s.bus != nil {
		s.bus.Publish(bus.TopicRetentionSweep, bus.SweepEvent{
			RecordingsPurged: recordings,
			NotesPurged:      notes,
		})
	}
	s.logger.Info("retention sweep complete",
		"recordings_purged", recordings,
		"notes_purged", notes,
	)
}

// NextRunTime parses the cron expression and returns the next firing after
// the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
