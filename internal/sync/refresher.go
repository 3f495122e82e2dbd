package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"
)

// Resyncer runs a full snapshot fetch.
type Resyncer interface {
	Resync(ctx context.Context, reason string) error
}

// Refresher triggers a snapshot fetch on a cron schedule, bounding how long
// a silently missed event can survive.
type Refresher struct {
	expr   string
	target Resyncer
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRefresher validates expr and builds a stopped refresher.
func NewRefresher(expr string, target Resyncer, logger *zap.Logger) (*Refresher, error) {
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid snapshot cron %q", expr)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{expr: expr, target: target, logger: logger}, nil
}

// Next returns the first tick strictly after ref.
func (r *Refresher) Next(ref time.Time) (time.Time, error) {
	return gronx.NextTickAfter(r.expr, ref, false)
}

// Start runs the schedule until Stop or ctx is done.
func (r *Refresher) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.run(ctx)
}

// Stop ends the schedule and waits for a running resync to return.
func (r *Refresher) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *Refresher) run(ctx context.Context) {
	defer close(r.done)
	for {
		next, err := r.Next(time.Now())
		if err != nil {
			r.logger.Error("snapshot schedule failed", zap.String("cron", r.expr), zap.Error(err))
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err := r.target.Resync(ctx, "scheduled"); err != nil {
			r.logger.Warn("scheduled resync failed", zap.Error(err))
		}
	}
}
