package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/api"
	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/config"
	"github.com/matheus3301/huddle/internal/ctl"
	"github.com/matheus3301/huddle/internal/lock"
	"github.com/matheus3301/huddle/internal/model"
	"github.com/matheus3301/huddle/internal/outbox"
	"github.com/matheus3301/huddle/internal/push"
	"github.com/matheus3301/huddle/internal/rest"
	"github.com/matheus3301/huddle/internal/session"
	"github.com/matheus3301/huddle/internal/status"
	"github.com/matheus3301/huddle/internal/store"
	intsync "github.com/matheus3301/huddle/internal/sync"
	"github.com/matheus3301/huddle/internal/telemetry"
)

// staticFetcher serves a fixed snapshot.
type staticFetcher struct {
	mu       sync.Mutex
	channels []model.Channel
	history  map[string][]model.Message
}

func (f *staticFetcher) ListChannels(context.Context) ([]model.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Channel, len(f.channels))
	for i, ch := range f.channels {
		out[i] = ch.Clone()
	}
	return out, nil
}

func (f *staticFetcher) ChannelDetail(_ context.Context, id string) (model.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.channels {
		if ch.ID == id {
			return ch.Clone(), nil
		}
	}
	return model.Channel{}, &rest.StatusError{Method: "GET", Path: "channels/" + id, Code: 404}
}

func (f *staticFetcher) MessageHistory(_ context.Context, channelID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message(nil), f.history[channelID]...), nil
}

func (f *staticFetcher) Friends(context.Context) ([]model.User, error) { return nil, nil }

func (f *staticFetcher) FriendRequests(context.Context) ([]model.FriendRequest, error) {
	return nil, nil
}

type nopSubscriber struct{}

func (nopSubscriber) Subscribe(string)   {}
func (nopSubscriber) Unsubscribe(string) {}

func tempSession(t *testing.T) (dir, socketPath string) {
	t.Helper()
	// Short path keeps the socket under the 104-char limit on macOS.
	tmpDir, err := os.MkdirTemp("/tmp", "huddle-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })
	return tmpDir, filepath.Join(tmpDir, "d.sock")
}

func TestDaemonLifecycle(t *testing.T) {
	tmpDir, socketPath := tempSession(t)
	sessionName := "test"
	sessionDir := filepath.Join(tmpDir, sessionName)
	if err := os.MkdirAll(sessionDir, 0700); err != nil {
		t.Fatal(err)
	}

	lk, err := lock.Acquire(sessionDir, "http://localhost:5000/api")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(filepath.Join(sessionDir, "huddle.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	logger := zap.NewNop()
	b := bus.New()
	machine := status.NewMachine(b)
	metrics := telemetry.New()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	me := model.User{ID: "u1", Username: "ana"}
	fetcher := &staticFetcher{
		channels: []model.Channel{
			{ID: "c1", Name: "#general", Members: []model.User{me}, LastActivityAt: created},
		},
		history: map[string][]model.Message{
			"c1": {{ID: "m1", ChannelID: "c1", Sender: me, Content: "hello world", CreatedAt: created}},
		},
	}
	engine := intsync.NewEngine(intsync.Options{
		Self:       me,
		Fetcher:    fetcher,
		Subscriber: nopSubscriber{},
		Cache:      db,
		Bus:        b,
		Machine:    machine,
		Metrics:    metrics,
		Logger:     logger,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)
	defer engine.Stop()

	handlers := api.New(api.Deps{
		Session: sessionName,
		Engine:  engine,
		Machine: machine,
		Index:   db,
		Logger:  logger,
	})
	srv, err := NewServer(Params{SessionName: sessionName, SocketPath: socketPath}, logger, handlers, metrics)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	client := ctl.New(socketPath)
	defer client.Close()

	st, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status error = %v", err)
	}
	if st.Session != sessionName {
		t.Errorf("session = %q, want %q", st.Session, sessionName)
	}
	if st.Status != string(status.Booting) {
		t.Errorf("status = %s, want BOOTING", st.Status)
	}

	if err := machine.Transition(status.Connecting); err != nil {
		t.Fatal(err)
	}
	engine.HandleEvent(push.ConnectionEstablished{})
	deadline := time.Now().Add(2 * time.Second)
	for machine.Current() != status.Live {
		if time.Now().After(deadline) {
			t.Fatalf("status = %s, want LIVE", machine.Current())
		}
		time.Sleep(10 * time.Millisecond)
	}

	channels, err := client.Channels(ctx)
	if err != nil {
		t.Fatalf("Channels error = %v", err)
	}
	if len(channels) != 1 || channels[0].ID != "c1" {
		t.Fatalf("channels = %+v, want [c1]", channels)
	}

	if err := client.Select(ctx, "c1"); err != nil {
		t.Fatalf("Select error = %v", err)
	}
	var tl api.TimelineView
	deadline = time.Now().Add(2 * time.Second)
	for len(tl.Messages) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timeline never filled")
		}
		if tl, err = client.Timeline(ctx); err != nil {
			t.Fatalf("Timeline error = %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if tl.ChannelID != "c1" || tl.Messages[0].Content != "hello world" {
		t.Errorf("timeline = %+v", tl)
	}

	// History came through the engine, so it is now in the local cache.
	var hits []api.SearchHit
	deadline = time.Now().Add(2 * time.Second)
	for len(hits) == 0 && time.Now().Before(deadline) {
		if hits, err = client.SearchMessages(ctx, "hello", "", 10); err != nil {
			t.Fatalf("SearchMessages error = %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(hits) != 1 || hits[0].Message.ID != "m1" {
		t.Errorf("hits = %+v, want [m1]", hits)
	}

	var de *ctl.Error
	if err := client.Select(ctx, "nope"); !errors.As(err, &de) || de.Code != 404 {
		t.Errorf("Select(nope) error = %v, want 404", err)
	}

	exposition, err := client.Metrics(ctx)
	if err != nil {
		t.Fatalf("Metrics error = %v", err)
	}
	if !strings.Contains(exposition, "huddle_resyncs_total") {
		t.Errorf("metrics missing huddle_resyncs_total:\n%s", exposition)
	}
}

func TestSendQueuesThroughOutbox(t *testing.T) {
	tmpDir, socketPath := tempSession(t)
	db, err := store.Open(filepath.Join(tmpDir, "huddle.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	logger := zap.NewNop()
	b := bus.New()
	me := model.User{ID: "u1"}
	engine := intsync.NewEngine(intsync.Options{
		Self:    me,
		Fetcher: &staticFetcher{channels: []model.Channel{{ID: "c1", Members: []model.User{me}}}},
		Bus:     b,
		Logger:  logger,
	})
	if err := engine.Resync(context.Background(), "test"); err != nil {
		t.Fatal(err)
	}
	sender := outbox.NewSender(db, nil, b, logger)

	handlers := api.New(api.Deps{Session: "s", Engine: engine, Machine: status.NewMachine(nil), Outbox: sender, Logger: logger})
	srv, err := NewServer(Params{SessionName: "s", SocketPath: socketPath}, logger, handlers, telemetry.New())
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	client := ctl.New(socketPath)
	defer client.Close()

	id, err := client.Send(context.Background(), api.SendRequest{ChannelID: "c1", Content: "queued"})
	if err != nil {
		t.Fatalf("Send error = %v", err)
	}
	entry, err := db.GetOutbox(id)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || entry.Status != store.OutboxQueued || entry.Content != "queued" {
		t.Errorf("outbox entry = %+v", entry)
	}

	var de *ctl.Error
	_, err = client.Send(context.Background(), api.SendRequest{ChannelID: "gone", Content: "x"})
	if !errors.As(err, &de) || de.Code != 404 {
		t.Errorf("Send(unknown channel) error = %v, want 404", err)
	}
}

// TestModuleWithoutCredentialIsAuthRequired boots the whole fx graph with
// no token: the daemon must serve its socket and report AUTH_REQUIRED.
func TestModuleWithoutCredentialIsAuthRequired(t *testing.T) {
	tmpDir, socketPath := tempSession(t)
	t.Setenv(session.EnvHome, tmpDir)

	cfg := config.Default()
	cfg.Log.Level = "error"
	app := fx.New(
		Module(Params{SessionName: "auth", Config: cfg, SocketPath: socketPath}),
		fx.NopLogger,
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("app start: %v", err)
	}
	defer func() { _ = app.Stop(context.Background()) }()

	client := ctl.New(socketPath)
	defer client.Close()

	var st api.StatusView
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for {
		st, err = client.Status(ctx)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Status error = %v", err)
	}
	if st.Status != string(status.AuthRequired) {
		t.Errorf("status = %s, want AUTH_REQUIRED", st.Status)
	}
	if st.Reason == "" {
		t.Error("expected a reason for AUTH_REQUIRED")
	}

	if _, err := lock.Acquire(session.Dir("auth"), cfg.Server.APIURL); err == nil {
		t.Error("second lock acquisition should fail while the daemon runs")
	}
}
