// Package outbox delivers queued outgoing messages. Entries survive a daemon
// restart; transient failures are retried, anything else fails the entry.
package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/model"
	"github.com/matheus3301/huddle/internal/rest"
	"github.com/matheus3301/huddle/internal/store"
)

const (
	defaultInterval    = 500 * time.Millisecond
	defaultMaxAttempts = 5
)

// Poster sends one message and returns the stored record.
type Poster interface {
	Send(ctx context.Context, out rest.Outgoing) (model.Message, error)
}

// Queued is the payload of message.queued.
type Queued struct {
	ClientMsgID string `json:"client_msg_id"`
	ChannelID   string `json:"channel_id"`
}

// Ack is the payload of message.send_ack.
type Ack struct {
	ClientMsgID string `json:"client_msg_id"`
	ServerMsgID string `json:"server_msg_id"`
	ChannelID   string `json:"channel_id"`
}

// Failure is the payload of message.send_failed.
type Failure struct {
	ClientMsgID string `json:"client_msg_id"`
	Error       string `json:"error"`
	Final       bool   `json:"final"`
}

// Sender drains the outbox through a Poster.
type Sender struct {
	db          *store.DB
	poster      Poster
	bus         *bus.Bus
	logger      *zap.Logger
	interval    time.Duration
	maxAttempts int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	kick   chan struct{}
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, poster Poster, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:          db,
		poster:      poster,
		bus:         b,
		logger:      logger,
		interval:    defaultInterval,
		maxAttempts: defaultMaxAttempts,
		kick:        make(chan struct{}, 1),
	}
}

// Queue stores an outgoing message and wakes the sender. It returns the
// client message id used in the ack and failure events.
func (s *Sender) Queue(channelID, content, filePath string) (string, error) {
	if channelID == "" {
		return "", fmt.Errorf("queue message: missing channel id")
	}
	if content == "" && filePath == "" {
		return "", fmt.Errorf("queue message: empty message")
	}
	id := uuid.NewString()
	if err := s.db.QueueOutbox(id, channelID, content, filePath); err != nil {
		return "", fmt.Errorf("queue message: %w", err)
	}
	s.bus.Emit(bus.MessageQueued, Queued{ClientMsgID: id, ChannelID: channelID})
	select {
	case s.kick <- struct{}{}:
	default:
	}
	return id, nil
}

// Start requeues entries interrupted by a previous run and begins polling.
func (s *Sender) Start(ctx context.Context) {
	if n, err := s.db.ResetSendingOutbox(); err != nil {
		s.logger.Error("failed to reset outbox", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("requeued interrupted sends", zap.Int64("count", n))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop stops the sender loop and waits for an in-flight send.
func (s *Sender) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sender) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-s.kick:
		case <-ctx.Done():
			return
		}
		s.processPending(ctx)
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			return
		}
		s.deliver(ctx, entry)
	}
}

func (s *Sender) deliver(ctx context.Context, entry store.OutboxEntry) {
	log := s.logger.With(zap.String("client_msg_id", entry.ClientMsgID), zap.String("channel_id", entry.ChannelID))
	if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
		log.Error("failed to mark sending", zap.Error(err))
		return
	}

	msg, err := s.poster.Send(ctx, rest.Outgoing{
		ChannelID: entry.ChannelID,
		Content:   entry.Content,
		FilePath:  entry.FilePath,
	})
	if err != nil {
		final := !rest.IsTransient(err) || entry.Attempts+1 >= s.maxAttempts
		if final {
			log.Error("failed to send message", zap.Int("attempts", entry.Attempts+1), zap.Error(err))
			_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
		} else {
			log.Warn("send failed, will retry", zap.Int("attempts", entry.Attempts+1), zap.Error(err))
			_ = s.db.RequeueOutbox(entry.ClientMsgID, err.Error())
		}
		s.bus.Emit(bus.MessageSendFailed, Failure{ClientMsgID: entry.ClientMsgID, Error: err.Error(), Final: final})
		return
	}

	if err := s.db.MarkOutboxSent(entry.ClientMsgID, msg.ID); err != nil {
		log.Error("failed to mark sent", zap.Error(err))
	}
	log.Info("message sent", zap.String("server_msg_id", msg.ID))
	s.bus.Emit(bus.MessageSendAck, Ack{ClientMsgID: entry.ClientMsgID, ServerMsgID: msg.ID, ChannelID: entry.ChannelID})
}
