package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/model"
	"github.com/matheus3301/huddle/internal/rest"
	"github.com/matheus3301/huddle/internal/status"
)

var errOffline = errors.New("offline")

type fakeFetcher struct {
	mu          gosync.Mutex
	channels    []model.Channel
	listErr     error
	lists       int
	listGate    chan struct{}
	details     map[string]model.Channel
	detailErr   error
	detailCalls map[string]int
	detailGate  chan struct{}
	history     map[string][]model.Message
	historyGate chan struct{}
	friends     []model.User
	requests    []model.FriendRequest
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		details:     make(map[string]model.Channel),
		detailCalls: make(map[string]int),
		history:     make(map[string][]model.Message),
	}
}

func (f *fakeFetcher) ListChannels(ctx context.Context) ([]model.Channel, error) {
	f.mu.Lock()
	f.lists++
	gate := f.listGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Channel, len(f.channels))
	for i, ch := range f.channels {
		out[i] = ch.Clone()
	}
	return out, nil
}

func (f *fakeFetcher) ChannelDetail(ctx context.Context, id string) (model.Channel, error) {
	f.mu.Lock()
	f.detailCalls[id]++
	gate := f.detailGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.Channel{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detailErr != nil {
		return model.Channel{}, f.detailErr
	}
	ch, ok := f.details[id]
	if !ok {
		return model.Channel{}, &rest.StatusError{Method: "GET", Path: "channels/" + id, Code: 404}
	}
	return ch.Clone(), nil
}

func (f *fakeFetcher) MessageHistory(ctx context.Context, channelID string) ([]model.Message, error) {
	f.mu.Lock()
	gate := f.historyGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message(nil), f.history[channelID]...), nil
}

func (f *fakeFetcher) Friends(ctx context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.User(nil), f.friends...), nil
}

func (f *fakeFetcher) FriendRequests(ctx context.Context) ([]model.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.FriendRequest(nil), f.requests...), nil
}

func (f *fakeFetcher) calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailCalls[id]
}

func (f *fakeFetcher) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

type fakeSubscriber struct {
	mu           gosync.Mutex
	subscribed   []string
	unsubscribed []string
	panicOn      string
}

func (s *fakeSubscriber) Subscribe(id string) {
	if id == s.panicOn {
		panic("subscribe " + id)
	}
	s.mu.Lock()
	s.subscribed = append(s.subscribed, id)
	s.mu.Unlock()
}

func (s *fakeSubscriber) Unsubscribe(id string) {
	s.mu.Lock()
	s.unsubscribed = append(s.unsubscribed, id)
	s.mu.Unlock()
}

func (s *fakeSubscriber) unsubs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.unsubscribed...)
}

func (s *fakeSubscriber) subs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.subscribed...)
}

var me = model.User{ID: "me", Username: "me"}

type harness struct {
	engine  *Engine
	fetcher *fakeFetcher
	subs    *fakeSubscriber
	bus     *bus.Bus
	machine *status.Machine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := bus.New()
	h := &harness{
		fetcher: newFakeFetcher(),
		subs:    &fakeSubscriber{},
		bus:     b,
		machine: status.NewMachine(b),
	}
	h.engine = NewEngine(Options{
		Self:         me,
		Fetcher:      h.fetcher,
		Subscriber:   h.subs,
		Bus:          b,
		Machine:      h.machine,
		GapThreshold: time.Second,
		FetchTimeout: 2 * time.Second,
	})
	h.engine.Start(context.Background())
	t.Cleanup(h.engine.Stop)
	return h
}

func channel(id string, members ...string) model.Channel {
	ch := model.Channel{ID: id, Name: "#" + id}
	for _, m := range members {
		ch.Members = append(ch.Members, model.User{ID: m})
	}
	return ch
}

func message(id, channelID, sender string) model.Message {
	return model.Message{
		ID:        id,
		ChannelID: channelID,
		Sender:    model.User{ID: sender, Username: sender},
		Content:   "text " + id,
		CreatedAt: time.Now(),
	}
}

func ids(list []ChannelSummary) []string {
	out := make([]string, len(list))
	for i, ch := range list {
		out[i] = ch.ID
	}
	return out
}
