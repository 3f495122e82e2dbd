package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/matheus3301/huddle/internal/model"
)

func (h *Handlers) getTimeline(w http.ResponseWriter, _ *http.Request) {
	channelID, msgs := h.Engine.Timeline()
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, TimelineView{ChannelID: channelID, Messages: msgs})
}

// SendRequest is the body of POST /messages.
type SendRequest struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	FilePath  string `json:"file_path,omitempty"`
}

// sendMessage queues the message; delivery is reported on the bus.
func (h *Handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ChannelID == "" {
		req.ChannelID = h.Engine.Active()
	}
	if req.ChannelID == "" {
		writeError(w, http.StatusBadRequest, "channel_id is required when no channel is open")
		return
	}
	if strings.TrimSpace(req.Content) == "" && req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "content or file_path is required")
		return
	}
	if _, ok := h.Engine.Channel(req.ChannelID); !ok {
		writeError(w, http.StatusNotFound, "unknown channel")
		return
	}
	if h.Outbox == nil {
		writeError(w, http.StatusServiceUnavailable, "outbox unavailable")
		return
	}
	id, err := h.Outbox.Queue(req.ChannelID, req.Content, req.FilePath)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, QueuedView{ClientMsgID: id})
}

func (h *Handlers) deleteMessage(w http.ResponseWriter, r *http.Request) {
	d, err := h.Actions.Delete(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handlers) searchMessages(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	if h.Index == nil {
		writeError(w, http.StatusServiceUnavailable, "message cache unavailable")
		return
	}
	results, err := h.Index.SearchMessages(q, r.URL.Query().Get("channel"), queryLimit(r, 50))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchHits(results))
}

// cachedHistory pages through the local cache of a channel, newest first.
func (h *Handlers) cachedHistory(w http.ResponseWriter, r *http.Request) {
	if h.Index == nil {
		writeError(w, http.StatusServiceUnavailable, "message cache unavailable")
		return
	}
	before, _ := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64)
	rows, err := h.Index.ListMessages(mux.Vars(r)["id"], before, queryLimit(r, 50))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]model.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Model())
	}
	writeJSON(w, http.StatusOK, out)
}
