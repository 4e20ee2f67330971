// internal/jobs/reconcile.go
package jobs

import (
	"context"
	"time"

	"boost-service/internal/domain/boost"
	"boost-service/internal/pkg/events"

	"go.uber.org/zap"
)

// PendingRedirects is the read side of the purchase attempt journal.
type PendingRedirects interface {
	ListPendingRedirects(ctx context.Context, olderThan time.Time, limit int) ([]boost.PurchaseAttempt, error)
	CountPendingRedirects(ctx context.Context) (int, error)
}

type Gauge interface {
	SetPendingRedirects(n int)
}

// RedirectReporter surfaces external payments that never came back. It does not
// resolve them: only the user's return or the upstream boost list can.
type RedirectReporter struct {
	attempts PendingRedirects
	gauge    Gauge
	events   events.Publisher
	maxAge   time.Duration
	batch    int
	now      func() time.Time
	logger   *zap.Logger
}

func NewRedirectReporter(attempts PendingRedirects, gauge Gauge, publisher events.Publisher, maxAge time.Duration, logger *zap.Logger) *RedirectReporter {
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	return &RedirectReporter{
		attempts: attempts,
		gauge:    gauge,
		events:   publisher,
		maxAge:   maxAge,
		batch:    100,
		now:      time.Now,
		logger:   logger,
	}
}

// Run counts every pending redirect and reports the ones older than maxAge.
func (r *RedirectReporter) Run(ctx context.Context) error {
	total, err := r.attempts.CountPendingRedirects(ctx)
	if err != nil {
		r.logger.Error("failed to count pending redirects", zap.Error(err))
		return err
	}
	r.gauge.SetPendingRedirects(total)

	if total == 0 {
		return nil
	}

	now := r.now()
	stale, err := r.attempts.ListPendingRedirects(ctx, now.Add(-r.maxAge), r.batch)
	if err != nil {
		r.logger.Error("failed to list pending redirects", zap.Error(err))
		return err
	}

	for _, a := range stale {
		r.logger.Warn("external payment still pending",
			zap.String("reference", a.Reference),
			zap.String("workflow_id", a.WorkflowID),
			zap.Int64("identity_id", a.IdentityID),
			zap.String("payment_method", a.PaymentMethod),
			zap.Duration("age", now.Sub(a.CreatedAt)))

		if err := r.events.Publish(ctx, events.KeyRedirectStale, events.PurchaseEvent{
			WorkflowID:   a.WorkflowID,
			Reference:    a.Reference,
			IdentityID:   a.IdentityID,
			ListingID:    a.ListingID,
			BoostType:    string(a.BoostType),
			DurationDays: a.DurationDays,
			Price:        a.Price,
			Channel:      a.PaymentMethod,
			Outcome:      string(boost.AttemptRedirectPending),
			RedirectURL:  a.RedirectURL.String,
			Timestamp:    now,
		}); err != nil {
			r.logger.Warn("failed to publish stale redirect", zap.String("reference", a.Reference), zap.Error(err))
		}
	}

	r.logger.Info("pending redirect report",
		zap.Int("pending", total),
		zap.Int("stale", len(stale)))
	return nil
}

// Job adapts Run to the scheduler.
func (r *RedirectReporter) Job() func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_ = r.Run(ctx)
	}
}
