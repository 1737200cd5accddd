package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []Event
}

func (r *recorder) Publish(e Event) { r.events = append(r.events, e) }

func TestMultiPublishesToAll(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, nil, b}

	m.Publish(New(TypeResult, "user-1", "HELLO"))

	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	assert.Equal(t, TypeResult, b.events[0].Type)
	assert.Equal(t, "user-1", b.events[0].UserID)
}

func TestSubjectToken(t *testing.T) {
	p := NewNATSPublisher(nil, "signspeak.results")
	assert.Equal(t, "signspeak.results.abc-123", p.Subject("abc-123"))
	assert.Equal(t, "signspeak.results.a_b__", p.Subject("a.b*>"))
	assert.Equal(t, "signspeak.results._", p.Subject(""))
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversToUserSubscribers(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
	defer srv.Close()

	srv.URL += "/?user=user-1"
	conn := dial(t, srv)

	require.Eventually(t, func() bool { return hub.Count("user-1") == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(New(TypeResult, "user-2", "ignored"))
	hub.Publish(New(TypeResult, "user-1", map[string]any{"prediction": "HELLO", "confidence": 85}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		Type    string         `json:"type"`
		UserID  string         `json:"userId"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, TypeResult, got.Type)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "HELLO", got.Payload["prediction"])
}

func TestHubDisconnect(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "user-1")
	}))
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Count("user-1") == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Disconnect("user-1")
	assert.Equal(t, 0, hub.Count("user-1"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	// Publishing after disconnect is harmless.
	hub.Publish(New(TypeState, "user-1", nil))
}
