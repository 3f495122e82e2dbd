package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/rest"
	"github.com/matheus3301/huddle/internal/status"
)

// Resync fetches the full snapshot and applies it. Concurrent calls run one
// after the other. The friend lists are best effort; a failed channel list
// fails the resync and leaves the state unchanged.
func (e *Engine) Resync(ctx context.Context, reason string) error {
	e.resyncMu.Lock()
	defer e.resyncMu.Unlock()

	if s := e.machine.Current(); s == status.Live || s == status.Degraded {
		_ = e.machine.TransitionWith(status.Syncing, reason)
	}
	start := time.Now()

	gen := e.beginSnapshot()
	fctx, cancel := e.fetchContext(ctx)
	defer cancel()
	channels, err := e.fetcher.ListChannels(fctx)
	if err != nil {
		e.metrics.Resync(reason, err)
		e.bus.Emit(bus.SyncResyncFailed, err.Error())
		if errors.Is(err, rest.ErrUnauthorized) {
			e.Unauthorized()
		} else if e.machine.Current() == status.Syncing {
			_ = e.machine.TransitionWith(status.Degraded, "snapshot failed")
		}
		return fmt.Errorf("list channels: %w", err)
	}

	e.applySnapshot(channels, gen)
	e.refreshFriends(ctx)
	e.checkpoints.Mark(CheckpointSnapshot, time.Now())
	e.metrics.Resync(reason, nil)

	if active := e.Active(); active != "" {
		e.loadHistory(active)
	}
	if e.machine.Current() == status.Syncing {
		_ = e.machine.Transition(status.Live)
	}
	e.logger.Info("snapshot applied",
		zap.String("reason", reason),
		zap.Int("channels", len(e.ChannelIDs())),
		zap.Duration("took", time.Since(start)),
	)
	e.bus.Emit(bus.SyncResynced, reason)
	return nil
}
