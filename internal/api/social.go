package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/matheus3301/huddle/internal/model"
)

func (h *Handlers) getPresence(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, PresenceView{Online: h.Engine.OnlineUsers()})
}

func (h *Handlers) getFriends(w http.ResponseWriter, _ *http.Request) {
	v := FriendsView{Friends: h.Engine.Friends(), Requests: h.Engine.FriendRequests()}
	if v.Friends == nil {
		v.Friends = []model.User{}
	}
	if v.Requests == nil {
		v.Requests = []model.FriendRequest{}
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handlers) addFriend(w http.ResponseWriter, r *http.Request) {
	if err := h.Actions.AddFriend(r.Context(), mux.Vars(r)["user"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) respondFriend(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.Actions.RespondFriend(r.Context(), vars["id"], vars["decision"] == "accept"); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) searchUsers(w http.ResponseWriter, r *http.Request) {
	if h.Directory == nil {
		writeError(w, http.StatusServiceUnavailable, "directory unavailable")
		return
	}
	users, err := h.Directory.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}
