package ctl

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/huddle/internal/api"
)

func serve(t *testing.T, r http.Handler) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "huddle-ctl-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	sock := filepath.Join(dir, "ctl.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	srv := &http.Server{Handler: r}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })
	return sock
}

func TestClientDecodesViews(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"session":"work","status":"LIVE","user":{"id":"u1","username":"ana"},"channels":2,"unread":3}`))
	}).Methods(http.MethodGet)
	r.HandleFunc("/channels/{id}/join", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"joined","channel":{"id":"` + mux.Vars(r)["id"] + `","name":"#go","members":[],"join_requests":[{"id":"u7","populated":false}]}}`))
	}).Methods(http.MethodPost)
	var got api.SendRequest
	r.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"client_msg_id":"q-1"}`))
	}).Methods(http.MethodPost)
	r.HandleFunc("/channels/close", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)

	c := New(serve(t, r))
	defer c.Close()
	ctx := context.Background()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "LIVE", st.Status)
	assert.Equal(t, "ana", st.User.Username)
	assert.Equal(t, 3, st.Unread)

	jv, err := c.Join(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "joined", jv.Status)
	require.NotNil(t, jv.Channel)
	assert.Equal(t, "c1", jv.Channel.ID)
	assert.Equal(t, "u7", jv.Channel.JoinRequests[0].ID)

	id, err := c.Send(ctx, api.SendRequest{ChannelID: "c1", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "q-1", id)
	assert.Equal(t, "c1", got.ChannelID)
	assert.Equal(t, "hi", got.Content)

	require.NoError(t, c.CloseChannel(ctx))
}

func TestClientSurfacesDaemonErrors(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/channels/{id}/select", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"unknown channel"}`))
	}).Methods(http.MethodPost)

	c := New(serve(t, r))
	err := c.Select(context.Background(), "nope")

	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusNotFound, de.Code)
	assert.Equal(t, "unknown channel", de.Message)
}

func TestClientReportsDaemonDown(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "missing.sock"))
	_, err := c.Status(context.Background())
	assert.True(t, errors.Is(err, ErrDaemonDown), "err = %v", err)
}
