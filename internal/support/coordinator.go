// Package support runs the per-device support (upvote) flow on top of an
// issue.Repository and fires best-effort notifications.
package support

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"civic-api/internal/apperr"
	"civic-api/internal/issue"
	"civic-api/internal/metrics"
	"civic-api/internal/notify"
)

const notifyTimeout = 30 * time.Second

type Coordinator struct {
	repo     issue.Repository
	notifier notify.Notifier
	l        *slog.Logger
	wg       sync.WaitGroup
}

// New accepts a nil notifier, in which case no e-mail is sent.
func New(repo issue.Repository, n notify.Notifier, l *slog.Logger) *Coordinator {
	return &Coordinator{repo: repo, notifier: n, l: l}
}

func count(action string, err error) {
	result := "ok"
	if err != nil {
		result = apperr.KindOf(err).String()
	}
	metrics.SupportTotal.WithLabelValues(action, result).Inc()
}

func (c *Coordinator) requireIssue(ctx context.Context, issueID int64, deviceID string) error {
	if err := issue.ValidateDeviceID(deviceID); err != nil {
		return err
	}
	it, err := c.repo.GetByID(ctx, issueID)
	if err != nil {
		return err
	}
	if it == nil {
		return apperr.E(apperr.NotFound, "issue %d not found", issueID)
	}
	return nil
}

// Support records deviceID's support for issueID. The storage unique
// constraint is authoritative; the FindSupport check only answers the common
// repeat case early.
func (c *Coordinator) Support(ctx context.Context, issueID int64, deviceID string) (*issue.Issue, error) {
	it, err := c.support(ctx, issueID, deviceID)
	count("support", err)
	if err != nil {
		return nil, err
	}
	c.l.Info("support_added", "issue_id", issueID, "upvotes", it.UpvoteCount)
	c.notify(*it)
	return it, nil
}

func (c *Coordinator) support(ctx context.Context, issueID int64, deviceID string) (*issue.Issue, error) {
	if err := c.requireIssue(ctx, issueID, deviceID); err != nil {
		return nil, err
	}
	existing, err := c.repo.FindSupport(ctx, issueID, deviceID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.E(apperr.Conflict, "already supported")
	}
	return c.repo.AddSupport(ctx, issueID, deviceID)
}

// Revoke removes deviceID's support. No notification is sent.
func (c *Coordinator) Revoke(ctx context.Context, issueID int64, deviceID string) (*issue.Issue, error) {
	it, err := c.revoke(ctx, issueID, deviceID)
	count("revoke", err)
	if err != nil {
		return nil, err
	}
	c.l.Info("support_revoked", "issue_id", issueID, "upvotes", it.UpvoteCount)
	return it, nil
}

func (c *Coordinator) revoke(ctx context.Context, issueID int64, deviceID string) (*issue.Issue, error) {
	if err := c.requireIssue(ctx, issueID, deviceID); err != nil {
		return nil, err
	}
	return c.repo.RemoveSupport(ctx, issueID, deviceID)
}

func (c *Coordinator) IsSupported(ctx context.Context, issueID int64, deviceID string) (bool, error) {
	if err := issue.ValidateDeviceID(deviceID); err != nil {
		return false, err
	}
	s, err := c.repo.FindSupport(ctx, issueID, deviceID)
	if err != nil {
		return false, err
	}
	return s != nil, nil
}

// notify runs detached from the request context so a finished request does
// not cancel delivery.
func (c *Coordinator) notify(it issue.Issue) {
	if c.notifier == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				c.l.Error("support_notify_panic", "issue_id", it.ID, "panic", r)
			}
		}()
		if res := c.notifier.Send(ctx, it, notify.KindSupport); !res.Success {
			c.l.Warn("support_notify_error", "issue_id", it.ID, "err", res.Err)
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (c *Coordinator) Wait() { c.wg.Wait() }
