// Package api serves the daemon's control surface: JSON over HTTP on the
// session socket. Reads come from the reconciliation engine, writes go
// through its intents.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/model"
	"github.com/matheus3301/huddle/internal/rest"
	"github.com/matheus3301/huddle/internal/status"
	"github.com/matheus3301/huddle/internal/store"
	intsync "github.com/matheus3301/huddle/internal/sync"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Link reports the push connection.
type Link interface {
	Connected() bool
	Scopes() []string
}

// Directory looks up channels and users on the service.
type Directory interface {
	SearchChannels(ctx context.Context, query string) ([]model.Channel, error)
	SearchUsers(ctx context.Context, query string) ([]model.User, error)
}

// Outbox queues outgoing messages.
type Outbox interface {
	Queue(channelID, content, filePath string) (string, error)
}

// MessageIndex is the local message cache.
type MessageIndex interface {
	SearchMessages(query, channelID string, limit int) ([]store.SearchResult, error)
	ListMessages(channelID string, before int64, limit int) ([]store.CachedMessage, error)
}

// Deps wires the handlers. Engine, Actions and Machine are required.
type Deps struct {
	Session   string
	Engine    *intsync.Engine
	Actions   *intsync.Actions
	Machine   *status.Machine
	Link      Link
	Directory Directory
	Outbox    Outbox
	Index     MessageIndex
	Logger    *zap.Logger
}

// Handlers implements the control routes.
type Handlers struct {
	Deps
	startedAt time.Time
}

// New creates the handlers.
func New(d Deps) *Handlers {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Handlers{Deps: d, startedAt: time.Now()}
}

// Register adds every control route to r.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/status", h.getStatus).Methods(http.MethodGet)
	r.HandleFunc("/resync", h.resync).Methods(http.MethodPost)

	r.HandleFunc("/channels", h.listChannels).Methods(http.MethodGet)
	r.HandleFunc("/channels", h.createChannel).Methods(http.MethodPost)
	r.HandleFunc("/channels/close", h.closeChannel).Methods(http.MethodPost)
	r.HandleFunc("/channels/{id}", h.getChannel).Methods(http.MethodGet)
	r.HandleFunc("/channels/{id}/select", h.selectChannel).Methods(http.MethodPost)
	r.HandleFunc("/channels/{id}/join", h.joinChannel).Methods(http.MethodPost)
	r.HandleFunc("/channels/{id}/history", h.cachedHistory).Methods(http.MethodGet)
	r.HandleFunc("/channels/{id}/requests/{user}/{decision:approve|reject}", h.decideRequest).Methods(http.MethodPost)
	r.HandleFunc("/channels/{id}/members/{user}", h.removeMember).Methods(http.MethodDelete)
	r.HandleFunc("/dm/{user}", h.openDirect).Methods(http.MethodPost)

	r.HandleFunc("/timeline", h.getTimeline).Methods(http.MethodGet)
	r.HandleFunc("/messages", h.sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}", h.deleteMessage).Methods(http.MethodDelete)

	r.HandleFunc("/presence", h.getPresence).Methods(http.MethodGet)
	r.HandleFunc("/friends", h.getFriends).Methods(http.MethodGet)
	r.HandleFunc("/friends/{user}", h.addFriend).Methods(http.MethodPost)
	r.HandleFunc("/friends/requests/{id}/{decision:accept|reject}", h.respondFriend).Methods(http.MethodPost)

	r.HandleFunc("/search/messages", h.searchMessages).Methods(http.MethodGet)
	r.HandleFunc("/search/channels", h.searchChannels).Methods(http.MethodGet)
	r.HandleFunc("/search/users", h.searchUsers).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorView{Error: msg})
}

// fail maps an intent error to a status code.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	var se *rest.StatusError
	switch {
	case errors.Is(err, intsync.ErrUnknownChannel):
		code = http.StatusNotFound
	case errors.Is(err, rest.ErrUnauthorized):
		code = http.StatusUnauthorized
	case errors.As(err, &se) && se.Code >= 400 && se.Code < 500:
		code = se.Code
	case errors.As(err, &se), rest.IsTransient(err):
		code = http.StatusBadGateway
	}
	if code >= http.StatusInternalServerError {
		h.Logger.Warn("control request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, code, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func queryLimit(r *http.Request, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		return n
	}
	return def
}

func (h *Handlers) getStatus(w http.ResponseWriter, _ *http.Request) {
	channels := h.Engine.Channels()
	v := StatusView{
		Session:  h.Session,
		Status:   string(h.Machine.Current()),
		Reason:   h.Machine.Reason(),
		UptimeMs: time.Since(h.startedAt).Milliseconds(),
		User:     h.Engine.LocalUser(),
		Channels: len(channels),
		Active:   h.Engine.Active(),
	}
	for _, ch := range channels {
		v.Unread += ch.Unread
	}
	if h.Link != nil {
		v.Connected = h.Link.Connected()
		v.Scopes = len(h.Link.Scopes())
	}
	if at := h.Engine.LastSnapshot(); !at.IsZero() {
		v.LastSnapshot = &at
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handlers) resync(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Resync(r.Context(), "manual"); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
