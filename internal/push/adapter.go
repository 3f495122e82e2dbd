// Package push maintains the long-lived event channel to the chat service.
// It re-subscribes every scope on each connect before reading, decodes
// inbound frames into typed events and carries outbound intents.
package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/telemetry"
)

// ErrNotConnected is returned by Emit while no connection is up.
var ErrNotConnected = errors.New("push: not connected")

const sendBuffer = 64

// Settings configures the connection.
type Settings struct {
	URL              string
	Header           string
	Token            string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
}

// DefaultSettings returns timeouts suited to an interactive client.
func DefaultSettings() Settings {
	return Settings{
		Header:           "x-auth-token",
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     25 * time.Second,
		ReconnectMin:     500 * time.Millisecond,
		ReconnectMax:     30 * time.Second,
	}
}

// EventHandler receives decoded events in arrival order.
type EventHandler func(evt any)

// Adapter owns one websocket connection at a time and reconnects on loss.
type Adapter struct {
	settings Settings
	dialer   *websocket.Dialer
	logger   *zap.Logger
	metrics  *telemetry.Metrics

	mu          sync.Mutex
	token       string
	handlers    map[uint64]EventHandler
	nextHandler uint64
	scopes      map[string]struct{}
	scopeSource func() []string
	out         chan []byte

	// dispatchMu serializes handler invocation.
	dispatchMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewAdapter creates an adapter. Nothing is dialed until Start.
func NewAdapter(settings Settings, logger *zap.Logger, metrics *telemetry.Metrics) *Adapter {
	def := DefaultSettings()
	if settings.Header == "" {
		settings.Header = def.Header
	}
	if settings.HandshakeTimeout <= 0 {
		settings.HandshakeTimeout = def.HandshakeTimeout
	}
	if settings.WriteTimeout <= 0 {
		settings.WriteTimeout = def.WriteTimeout
	}
	if settings.ReadTimeout <= 0 {
		settings.ReadTimeout = def.ReadTimeout
	}
	if settings.PingInterval <= 0 {
		settings.PingInterval = def.PingInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		settings: settings,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: settings.HandshakeTimeout,
		},
		logger:   logger,
		metrics:  metrics,
		token:    settings.Token,
		handlers: make(map[uint64]EventHandler),
		scopes:   make(map[string]struct{}),
	}
}

// AddEventHandler registers h and returns the func that removes it.
func (a *Adapter) AddEventHandler(h EventHandler) (release func()) {
	a.mu.Lock()
	id := a.nextHandler
	a.nextHandler++
	a.handlers[id] = h
	a.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.handlers, id)
			a.mu.Unlock()
		})
	}
}

// SetScopeSource installs the function listing scopes to re-subscribe on
// every connect, typically the ids of the channels in the store.
func (a *Adapter) SetScopeSource(fn func() []string) {
	a.mu.Lock()
	a.scopeSource = fn
	a.mu.Unlock()
}

// SetToken replaces the credential used by the next handshake.
func (a *Adapter) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

// Subscribe adds channelID to the subscribed scopes and asks the service to
// deliver its events now if connected.
func (a *Adapter) Subscribe(channelID string) {
	if channelID == "" {
		return
	}
	a.mu.Lock()
	a.scopes[channelID] = struct{}{}
	a.mu.Unlock()
	if err := a.Emit(IntentJoinChannel, channelID); err != nil && !errors.Is(err, ErrNotConnected) {
		a.logger.Warn("subscribe failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

// Unsubscribe removes channelID from the subscribed scopes.
func (a *Adapter) Unsubscribe(channelID string) {
	a.mu.Lock()
	_, ok := a.scopes[channelID]
	delete(a.scopes, channelID)
	a.mu.Unlock()
	if !ok {
		return
	}
	if err := a.Emit(IntentLeaveChannel, channelID); err != nil && !errors.Is(err, ErrNotConnected) {
		a.logger.Warn("unsubscribe failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

// Scopes returns every scope re-subscribed on connect, sorted.
func (a *Adapter) Scopes() []string {
	a.mu.Lock()
	source := a.scopeSource
	set := make(map[string]struct{}, len(a.scopes))
	for id := range a.scopes {
		set[id] = struct{}{}
	}
	a.mu.Unlock()
	if source != nil {
		for _, id := range source() {
			if id != "" {
				set[id] = struct{}{}
			}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Connected reports whether a connection is currently up.
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.out != nil
}

// Emit queues an outbound intent on the current connection.
func (a *Adapter) Emit(event string, data any) error {
	frame, err := EncodeFrame(event, data)
	if err != nil {
		return err
	}
	a.mu.Lock()
	out := a.out
	a.mu.Unlock()
	if out == nil {
		return ErrNotConnected
	}
	select {
	case out <- frame:
		return nil
	case <-time.After(a.settings.WriteTimeout):
		return fmt.Errorf("emit %s: send buffer full", event)
	}
}

// Start launches the connect loop. It returns immediately.
func (a *Adapter) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.run(ctx)
}

// Stop closes the connection and waits for the loop to exit.
func (a *Adapter) Stop() {
	if a.cancel == nil {
		return
	}
	a.cancel()
	<-a.done
}

func (a *Adapter) run(ctx context.Context) {
	defer close(a.done)

	retry := newBackoff(a.settings.ReconnectMin, a.settings.ReconnectMax)
	var (
		everConnected bool
		lostAt        time.Time
		refused       bool
	)
	wait := func() bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(retry.Next()):
			return true
		}
	}

	for {
		conn, err := a.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, errRefused) {
				if !refused {
					refused = true
					a.dispatch(Unauthorized{})
				}
			} else {
				a.logger.Info("push connect failed", zap.Error(err))
			}
			if !wait() {
				return
			}
			continue
		}
		refused = false

		joined, err := a.resubscribe(conn)
		if err != nil {
			a.logger.Warn("push resubscribe failed", zap.Error(err))
			conn.Close()
			if !wait() {
				return
			}
			continue
		}
		retry.Reset()

		established := ConnectionEstablished{Reconnect: everConnected}
		if everConnected {
			established.Outage = time.Since(lostAt)
			a.metrics.Reconnect()
		}
		everConnected = true
		a.logger.Info("push connected",
			zap.Bool("reconnect", established.Reconnect),
			zap.Duration("outage", established.Outage),
		)

		err = a.serve(ctx, conn, joined, established)
		lostAt = time.Now()
		if ctx.Err() != nil {
			return
		}
		a.logger.Warn("push connection lost", zap.Error(err))
		a.dispatch(ConnectionLost{Err: err})
		if !wait() {
			return
		}
	}
}

var errRefused = errors.New("push: handshake refused")

func (a *Adapter) dial(ctx context.Context) (*websocket.Conn, error) {
	a.mu.Lock()
	token := a.token
	a.mu.Unlock()
	header := http.Header{}
	if token != "" {
		header.Set(a.settings.Header, token)
	}
	conn, resp, err := a.dialer.DialContext(ctx, a.settings.URL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial %s: %w", a.settings.URL, errRefused)
		}
		return nil, fmt.Errorf("dial %s: %w", a.settings.URL, err)
	}
	return conn, nil
}

// resubscribe writes a join frame for every scope before anything is read
// from the new connection, and returns the scopes it joined.
func (a *Adapter) resubscribe(conn *websocket.Conn) ([]string, error) {
	ids := a.Scopes()
	for _, id := range ids {
		frame, err := EncodeFrame(IntentJoinChannel, id)
		if err != nil {
			return nil, err
		}
		conn.SetWriteDeadline(time.Now().Add(a.settings.WriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return nil, fmt.Errorf("join %s: %w", id, err)
		}
	}
	return ids, nil
}

func (a *Adapter) serve(ctx context.Context, conn *websocket.Conn, joined []string, established ConnectionEstablished) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan []byte, sendBuffer)
	a.mu.Lock()
	a.out = out
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.out = nil
		a.mu.Unlock()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-connCtx.Done()
		conn.Close()
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		a.writeLoop(connCtx, conn, out)
	}()

	// Scopes added between resubscribe and publishing out got no frame.
	for _, id := range a.Scopes() {
		if slices.Contains(joined, id) {
			continue
		}
		if err := a.Emit(IntentJoinChannel, id); err != nil {
			a.logger.Warn("subscribe failed", zap.String("channel_id", id), zap.Error(err))
		}
	}

	a.dispatch(established)

	err := a.readLoop(conn)
	cancel()
	wg.Wait()
	return err
}

func (a *Adapter) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan []byte) {
	ticker := time.NewTicker(a.settings.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-out:
			conn.SetWriteDeadline(time.Now().Add(a.settings.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				a.logger.Debug("push write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(a.settings.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				a.logger.Debug("push ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (a *Adapter) readLoop(conn *websocket.Conn) error {
	extend := func(string) error {
		return conn.SetReadDeadline(time.Now().Add(a.settings.ReadTimeout))
	}
	conn.SetPongHandler(extend)
	for {
		_ = extend("")
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if typ != websocket.TextMessage {
			continue
		}
		evt := Parse(data)
		if evt == nil {
			a.logger.Debug("push event ignored", zap.ByteString("frame", truncate(data, 128)))
			continue
		}
		a.dispatch(evt)
	}
}

func (a *Adapter) dispatch(evt any) {
	a.mu.Lock()
	ids := make([]uint64, 0, len(a.handlers))
	for id := range a.handlers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	hs := make([]EventHandler, 0, len(ids))
	for _, id := range ids {
		hs = append(hs, a.handlers[id])
	}
	a.mu.Unlock()

	a.dispatchMu.Lock()
	defer a.dispatchMu.Unlock()
	for _, h := range hs {
		h(evt)
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
