// Package notify delivers issue e-mails to municipal departments. Delivery is
// best-effort: callers inspect Result and never fail their own operation on it.
package notify

//go:generate mockgen -source=notifier.go -destination=mocks/mock_notifier.go -package=mocks

import (
	"context"
	"log/slog"

	"civic-api/internal/issue"
	"civic-api/internal/metrics"
)

type Kind string

const (
	KindNew      Kind = "new"
	KindSupport  Kind = "support"
	KindReminder Kind = "reminder"
)

type Result struct {
	Success bool
	Err     error
}

func Failed(err error) Result { return Result{Err: err} }

var Delivered = Result{Success: true}

type Notifier interface {
	Send(ctx context.Context, it issue.Issue, kind Kind) Result
}

func record(kind Kind, r Result) Result {
	result := "ok"
	if !r.Success {
		result = "error"
	}
	metrics.NotificationsTotal.WithLabelValues(string(kind), result).Inc()
	return r
}

// LogNotifier stands in when SMTP is not configured.
type LogNotifier struct {
	L       *slog.Logger
	Routing Router
}

func (n LogNotifier) Send(ctx context.Context, it issue.Issue, kind Kind) Result {
	attrs := []any{"kind", kind, "issue_id", it.ID, "report_id", it.ReportID}
	if n.Routing != nil {
		attrs = append(attrs, "to", n.Routing.DepartmentEmails(it.Coordinate, it.Type))
	}
	n.L.Info("notify_log_only", attrs...)
	return record(kind, Delivered)
}
