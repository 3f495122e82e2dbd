package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/matheus3301/huddle/internal/rest"
)

func (h *Handlers) listChannels(w http.ResponseWriter, _ *http.Request) {
	channels := h.Engine.Channels()
	out := make([]ChannelView, 0, len(channels))
	for _, ch := range channels {
		out = append(out, channelView(ch))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) getChannel(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.Engine.Channel(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "unknown channel")
		return
	}
	writeJSON(w, http.StatusOK, channelView(ch))
}

// CreateRequest is the body of POST /channels.
type CreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
}

func (h *Handlers) createChannel(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	ch, err := h.Actions.Create(r.Context(), rest.NewChannel{
		Name:        req.Name,
		Description: req.Description,
		Private:     req.Private,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, plainChannelView(ch))
}

func (h *Handlers) selectChannel(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.SelectChannel(mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) closeChannel(w http.ResponseWriter, _ *http.Request) {
	h.Engine.CloseChannel()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) joinChannel(w http.ResponseWriter, r *http.Request) {
	out, err := h.Actions.Join(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v := JoinView{Status: string(out.Status)}
	if out.Channel != nil {
		cv := plainChannelView(*out.Channel)
		v.Channel = &cv
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handlers) decideRequest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var err error
	if vars["decision"] == "approve" {
		err = h.Actions.Approve(r.Context(), vars["id"], vars["user"])
	} else {
		err = h.Actions.Reject(r.Context(), vars["id"], vars["user"])
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) removeMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.Actions.RemoveMember(r.Context(), vars["id"], vars["user"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) openDirect(w http.ResponseWriter, r *http.Request) {
	ch, err := h.Actions.OpenDirect(r.Context(), mux.Vars(r)["user"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plainChannelView(ch))
}

func (h *Handlers) searchChannels(w http.ResponseWriter, r *http.Request) {
	if h.Directory == nil {
		writeError(w, http.StatusServiceUnavailable, "directory unavailable")
		return
	}
	channels, err := h.Directory.SearchChannels(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]ChannelView, 0, len(channels))
	for _, ch := range channels {
		out = append(out, plainChannelView(ch))
	}
	writeJSON(w, http.StatusOK, out)
}
