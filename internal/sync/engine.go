// Package sync is the reconciliation engine. It owns the presence set, the
// channel store, the join-request ledger and the message timeline, and folds
// snapshots, push events and mutation results into them behind one lock.
package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/model"
	"github.com/matheus3301/huddle/internal/state"
	"github.com/matheus3301/huddle/internal/status"
	"github.com/matheus3301/huddle/internal/telemetry"
)

// ErrUnknownChannel is returned for operations on a channel the store does
// not hold.
var ErrUnknownChannel = errors.New("unknown channel")

const (
	defaultGapThreshold = 5 * time.Second
	defaultFetchTimeout = 20 * time.Second
	seenCapacity        = 1024
)

// Fetcher is the snapshot side of the REST API.
type Fetcher interface {
	ListChannels(ctx context.Context) ([]model.Channel, error)
	ChannelDetail(ctx context.Context, id string) (model.Channel, error)
	MessageHistory(ctx context.Context, channelID string) ([]model.Message, error)
	Friends(ctx context.Context) ([]model.User, error)
	FriendRequests(ctx context.Context) ([]model.FriendRequest, error)
}

// Subscriber manages push event scopes.
type Subscriber interface {
	Subscribe(channelID string)
	Unsubscribe(channelID string)
}

// MessageCache persists messages seen by this client for local search.
type MessageCache interface {
	UpsertMessages(msgs []model.Message) error
	MarkMessageDeleted(d model.Deletion) error
}

// Options wires an Engine. Fetcher and Self are required.
type Options struct {
	Self        model.User
	Fetcher     Fetcher
	Subscriber  Subscriber
	Cache       MessageCache
	Checkpoints *Checkpoints
	Bus         *bus.Bus
	Machine     *status.Machine
	Metrics     *telemetry.Metrics
	Logger      *zap.Logger
	// GapThreshold is the shortest outage after which a reconnect triggers
	// a full snapshot.
	GapThreshold time.Duration
	FetchTimeout time.Duration
}

// Notification asks the presentation layer to alert about a message in a
// channel that is not open.
type Notification struct {
	ChannelID   string
	ChannelName string
	MessageID   string
	Sender      model.User
	Preview     string
}

// BackfillFailure reports messages for an unknown channel that were dropped
// because the channel could not be fetched.
type BackfillFailure struct {
	ChannelID string
	Dropped   int
	Err       string
}

// ChannelSummary is a read view of one channel.
type ChannelSummary struct {
	model.Channel
	Unread int  `json:"unread"`
	Active bool `json:"active"`
}

// Engine is the single owner of the reconciled client state.
type Engine struct {
	fetcher      Fetcher
	subscriber   Subscriber
	cache        MessageCache
	checkpoints  *Checkpoints
	bus          *bus.Bus
	machine      *status.Machine
	metrics      *telemetry.Metrics
	logger       *zap.Logger
	gapThreshold time.Duration
	fetchTimeout time.Duration

	mu             sync.Mutex
	self           model.User
	presence       *state.Presence
	channels       *state.ChannelStore
	ledger         *state.Ledger
	timeline       *state.Timeline
	friends        []model.User
	friendRequests []model.FriendRequest
	// backfill holds messages for channels whose detail fetch is in flight.
	backfill     map[string][]model.Message
	lastSnapshot time.Time
	// snapshotGen numbers snapshot fetches. inserted and left record the
	// generation current when a channel entered or left the store, so a
	// fetch that started earlier cannot undo the change.
	snapshotGen uint64
	inserted    map[string]uint64
	left        map[string]uint64
	// seen remembers recently applied message ids so a message delivered
	// both by a mutation response and its push mirror counts once.
	seen      map[string]struct{}
	seenOrder []string

	resyncMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates an engine with empty state.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		fetcher:      opts.Fetcher,
		subscriber:   opts.Subscriber,
		cache:        opts.Cache,
		checkpoints:  opts.Checkpoints,
		bus:          opts.Bus,
		machine:      opts.Machine,
		metrics:      opts.Metrics,
		logger:       logger,
		gapThreshold: opts.GapThreshold,
		fetchTimeout: opts.FetchTimeout,
		self:         opts.Self,
		presence:     state.NewPresence(opts.Self.ID),
		channels:     state.NewChannelStore(),
		ledger:       state.NewLedger(),
		timeline:     state.NewTimeline(),
		backfill:     make(map[string][]model.Message),
		seen:         make(map[string]struct{}),
		inserted:     make(map[string]uint64),
		left:         make(map[string]uint64),
	}
	if e.gapThreshold <= 0 {
		e.gapThreshold = defaultGapThreshold
	}
	if e.fetchTimeout <= 0 {
		e.fetchTimeout = defaultFetchTimeout
	}
	if e.machine == nil {
		e.machine = status.NewMachine(opts.Bus)
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

// Start binds the engine's background work to ctx.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		select {
		case <-ctx.Done():
			e.cancel()
		case <-e.ctx.Done():
		}
	}()
}

// Stop cancels in-flight fetches, waits for them and closes the timeline.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
	e.CloseChannel()
}

// Machine returns the status machine driven by the engine.
func (e *Engine) Machine() *status.Machine {
	return e.machine
}

// SetLocalUser changes the identity the engine filters memberships by.
func (e *Engine) SetLocalUser(u model.User) {
	e.mu.Lock()
	e.self = u
	e.presence.SetSelf(u.ID)
	e.mu.Unlock()
}

// LocalUser returns the local identity.
func (e *Engine) LocalUser() model.User {
	e.mu.Lock()
	defer e.mu.Unlock()
	u := e.self
	u.Online = true
	return u
}

// spawn runs fn on the engine context, tracked by Stop.
func (e *Engine) spawn(fn func(ctx context.Context)) {
	if e.ctx.Err() != nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(e.ctx)
	}()
}

func (e *Engine) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.fetchTimeout)
}

func (e *Engine) cacheMessages(msgs ...model.Message) {
	if e.cache == nil || len(msgs) == 0 {
		return
	}
	if err := e.cache.UpsertMessages(msgs); err != nil {
		e.logger.Warn("cache messages failed", zap.Int("count", len(msgs)), zap.Error(err))
	}
}

// Views. Every view is a copy; member and friend online flags come from the
// presence set.

func (e *Engine) summaryLocked(ch model.Channel) ChannelSummary {
	for i := range ch.Members {
		ch.Members[i].Online = e.presence.Online(ch.Members[i].ID)
	}
	return ChannelSummary{
		Channel: ch,
		Unread:  e.channels.Unread(ch.ID),
		Active:  ch.ID == e.channels.Active(),
	}
}

// Channels lists the channel store in order.
func (e *Engine) Channels() []ChannelSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.channels.List()
	out := make([]ChannelSummary, len(list))
	for i, ch := range list {
		out[i] = e.summaryLocked(ch)
	}
	return out
}

// Channel returns one channel.
func (e *Engine) Channel(id string) (ChannelSummary, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.channels.Get(id)
	if !ok {
		return ChannelSummary{}, false
	}
	return e.summaryLocked(ch), true
}

// ChannelIDs lists channel identifiers in store order. It is the push
// adapter's re-subscription source.
func (e *Engine) ChannelIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.channels.IDs()
}

// Active returns the active channel id.
func (e *Engine) Active() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.channels.Active()
}

// Timeline returns the open channel and its messages.
func (e *Engine) Timeline() (string, []model.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	msgs := e.timeline.Messages()
	for i := range msgs {
		msgs[i].Sender.Online = e.presence.Online(msgs[i].Sender.ID)
	}
	return e.timeline.ChannelID(), msgs
}

// Unread returns the unread counter of a channel.
func (e *Engine) Unread(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.channels.Unread(id)
}

// Online reports whether userID is online.
func (e *Engine) Online(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.presence.Online(userID)
}

// OnlineUsers lists online user ids, the local user included.
func (e *Engine) OnlineUsers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.presence.IDs()
}

// Friends returns the friend list.
func (e *Engine) Friends() []model.User {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := append([]model.User(nil), e.friends...)
	for i := range out {
		out[i].Online = e.presence.Online(out[i].ID)
	}
	return out
}

// FriendRequests returns pending incoming friend requests.
func (e *Engine) FriendRequests() []model.FriendRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.FriendRequest(nil), e.friendRequests...)
}

// LastSnapshot returns when the last full snapshot was applied.
func (e *Engine) LastSnapshot() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSnapshot
}

// markSeenLocked records id and reports whether it was new.
func (e *Engine) markSeenLocked(id string) bool {
	if _, ok := e.seen[id]; ok {
		return false
	}
	e.seen[id] = struct{}{}
	e.seenOrder = append(e.seenOrder, id)
	if len(e.seenOrder) > seenCapacity {
		delete(e.seen, e.seenOrder[0])
		e.seenOrder = e.seenOrder[1:]
	}
	return true
}
