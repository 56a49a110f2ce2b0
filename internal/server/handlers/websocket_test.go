package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu           sync.Mutex
	subject      string
	handler      func([]byte)
	unsubscribed bool
	err          error
}

func (f *fakeSource) Subscribe(subject string, handler func([]byte)) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subject = subject
	f.handler = handler
	return func() {
		f.mu.Lock()
		f.unsubscribed = true
		f.mu.Unlock()
	}, nil
}

func (f *fakeSource) emit(data []byte) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	handler(data)
}

func (f *fakeSource) isUnsubscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribed
}

func dialFeed(t *testing.T, source EventSource, query string) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(TrendWebSocketHandler(source, "magnet.trend", DefaultWebSocketConfig(), nil))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn, srv
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestTrendFeedStreamsEvents(t *testing.T) {
	source := &fakeSource{}
	conn, _ := dialFeed(t, source, "")
	defer conn.Close()

	welcome := readJSON(t, conn)
	assert.Equal(t, "welcome", welcome["type"])
	assert.Equal(t, "magnet.trend.>", welcome["subject"])

	source.emit([]byte(`{"run_id":"r1","cluster_id":4,"trend":"rising"}`))

	event := readJSON(t, conn)
	assert.Equal(t, "r1", event["run_id"])
	assert.Equal(t, "rising", event["trend"])
}

func TestTrendFeedFilter(t *testing.T) {
	source := &fakeSource{}
	conn, _ := dialFeed(t, source, "?trend=falling")
	defer conn.Close()

	readJSON(t, conn)
	source.mu.Lock()
	defer source.mu.Unlock()
	assert.Equal(t, "magnet.trend.falling", source.subject)
}

func TestTrendFeedRejectsUnknownFilter(t *testing.T) {
	srv := httptest.NewServer(TrendWebSocketHandler(&fakeSource{}, "magnet.trend", DefaultWebSocketConfig(), nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?trend=sideways")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTrendFeedUnsubscribesOnClose(t *testing.T) {
	source := &fakeSource{}
	conn, _ := dialFeed(t, source, "")

	readJSON(t, conn)
	require.NoError(t, conn.Close())

	assert.Eventually(t, source.isUnsubscribed, 2*time.Second, 10*time.Millisecond)
}

func TestTrendFeedSubscribeFailure(t *testing.T) {
	source := &fakeSource{err: errors.New("nats down")}
	conn, _ := dialFeed(t, source, "")
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
