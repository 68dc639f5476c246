package uazapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagroups/wagroups/internal/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(config.UAZAPIConfig{BaseURL: srv.URL + "/", AdminToken: "admin"}, nil)
}

func TestClient_InitInstance(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/instance/init", r.URL.Path)
		assert.Equal(t, "admin", r.Header.Get("admintoken"))
		_, _ = w.Write([]byte(`{"instance":{"id":"r1","name":"main"},"token":"inst-token"}`))
	})
	p, err := c.InitInstance(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, "inst-token", p.Token)
	assert.Equal(t, "r1", p.ProviderID)
}

func TestClient_ConnectAndStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.Header.Get("token"))
		switch r.URL.Path {
		case "/instance/connect":
			_, _ = w.Write([]byte(`{"instance":{"status":"connecting","qrcode":"data:image/png;base64,AAA"}}`))
		case "/instance/status":
			_, _ = w.Write([]byte(`{"status":{"connected":true},"instance":{"status":"connected","owner":"5511999"}}`))
		}
	})
	st, err := c.Connect(context.Background(), "tok", "")
	require.NoError(t, err)
	assert.Equal(t, "connecting", st.Status)
	assert.Equal(t, "data:image/png;base64,AAA", st.QRCode)

	st, err = c.Status(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "connected", st.Status)
	assert.Equal(t, "5511999", st.Phone)
}

func TestClient_ListGroups(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/group/list", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"JID":"1@g.us","Name":"Sales","Participants":[{"JID":"a"},{"JID":"b"}]},
			{"JID":"2@g.us","subject":"Support","size":7},
			{"JID":"5511@s.whatsapp.net","Name":"not a group"}
		]`))
	})
	groups, err := c.ListGroups(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, Group{JID: "1@g.us", Name: "Sales", Participants: 2}, groups[0])
	assert.Equal(t, Group{JID: "2@g.us", Name: "Support", Participants: 7}, groups[1])
}

func TestClient_SendTextError(t *testing.T) {
	var got map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid token"}`))
	})
	err := c.SendText(context.Background(), "bad", "1@g.us", "hello")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, map[string]string{"number": "1@g.us", "text": "hello"}, got)
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]string{
		"":             "pending",
		"connected":    "connected",
		"disconnected": "disconnected",
		"Connecting":   "connecting",
		"open":         "connected",
		"qrcode":       "pending",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeStatus(in), in)
	}
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"EventType":"messages","message":{"chatid":"1@g.us","sender":"5511@s.whatsapp.net","text":"/rules","fromMe":false}}`))
	require.NoError(t, err)
	assert.Equal(t, EventMessage, ev.Kind)
	assert.True(t, ev.IsGroup)
	assert.Equal(t, "/rules", ev.Text)
	assert.False(t, ev.FromMe)

	ev, err = ParseEvent([]byte(`{"EventType":"connection","instance":{"status":"disconnected"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventConnection, ev.Kind)
	assert.Equal(t, "disconnected", ev.Status)

	_, err = ParseEvent([]byte(`not json`))
	assert.Error(t, err)
}
