package notify

import (
	"context"
	"log/slog"
	"time"

	"civic-api/internal/issue"
	"civic-api/internal/metrics"
)

type ReminderConfig struct {
	After    time.Duration // issue age before the first reminder
	Resend   time.Duration // gap between reminders for the same issue
	Interval time.Duration // scan period
	Batch    int
}

// ReminderScheduler periodically reminds departments about unresolved
// issues. The last send time lives on the issue record, so restarts do not
// cause duplicate reminders.
type ReminderScheduler struct {
	repo     issue.Repository
	notifier Notifier
	cfg      ReminderConfig
	now      func() time.Time
	l        *slog.Logger
}

func NewReminderScheduler(repo issue.Repository, n Notifier, cfg ReminderConfig, l *slog.Logger) *ReminderScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	return &ReminderScheduler{repo: repo, notifier: n, cfg: cfg, now: time.Now, l: l}
}

// RunOnce sends one batch and returns how many reminders were recorded.
func (s *ReminderScheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.repo.ListReminderCandidates(ctx, now.Add(-s.cfg.After), now.Add(-s.cfg.Resend), s.cfg.Batch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, it := range due {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if r := s.notifier.Send(ctx, it, KindReminder); !r.Success {
			s.l.Warn("reminder_send_error", "issue_id", it.ID, "err", r.Err)
			continue
		}
		if err := s.repo.MarkReminderSent(ctx, it.ID, now); err != nil {
			s.l.Error("reminder_mark_error", "issue_id", it.ID, "err", err)
			continue
		}
		metrics.RemindersSentTotal.Inc()
		sent++
	}
	return sent, nil
}

// Run blocks until ctx is cancelled, scanning every Interval.
func (s *ReminderScheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	s.l.Info("reminder_scheduler_start", "interval", s.cfg.Interval, "after", s.cfg.After, "resend", s.cfg.Resend)
	for {
		select {
		case <-ctx.Done():
			s.l.Info("reminder_scheduler_stop")
			return
		case <-t.C:
			n, err := s.RunOnce(ctx)
			if err != nil {
				s.l.Error("reminder_scan_error", "err", err)
				continue
			}
			s.l.Debug("reminder_scan_done", "sent", n)
		}
	}
}
