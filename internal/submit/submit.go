// Package submit handles a new issue: route it, store it, notify the department.
package submit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"civic-api/internal/issue"
	"civic-api/internal/metrics"
	"civic-api/internal/municipality"
	"civic-api/internal/notify"
)

const notifyTimeout = 30 * time.Second

type Result struct {
	Issue        *issue.Issue      `json:"issue"`
	Municipality municipality.Info `json:"municipality"`
	Recipients   []string          `json:"-"`
}

type Service struct {
	repo     issue.Repository
	routing  notify.Router
	notifier notify.Notifier
	l        *slog.Logger
	wg       sync.WaitGroup
}

// New accepts a nil notifier.
func New(repo issue.Repository, routing notify.Router, n notify.Notifier, l *slog.Logger) *Service {
	return &Service{repo: repo, routing: routing, notifier: n, l: l}
}

// Submit validates and stores in, then sends the "new" e-mail in the
// background. Routing never fails: unknown locations get the fallback set.
func (s *Service) Submit(ctx context.Context, in issue.Input) (*Result, error) {
	if err := issue.ValidateInput(in); err != nil {
		return nil, err
	}
	c := in.Coordinate()
	info := s.routing.Info(c)
	to := s.routing.DepartmentEmails(c, in.Type)

	it, err := s.repo.Create(ctx, in)
	if err != nil {
		s.l.Error("issue_create_error", "type", in.Type, "err", err)
		return nil, err
	}
	metrics.IssuesCreatedTotal.WithLabelValues(info.Code).Inc()
	s.l.Info("issue_created", "issue_id", it.ID, "report_id", it.ReportID, "type", it.Type,
		"municipality", info.Code, "recipients", len(to))
	s.notify(*it)
	return &Result{Issue: it, Municipality: info, Recipients: to}, nil
}

func (s *Service) notify(it issue.Issue) {
	if s.notifier == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if res := s.notifier.Send(ctx, it, notify.KindNew); !res.Success {
			s.l.Warn("issue_notify_error", "issue_id", it.ID, "err", res.Err)
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (s *Service) Wait() { s.wg.Wait() }
