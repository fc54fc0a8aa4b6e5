package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dartmouth-dltg/aspace-onbase/pkg/processor"
)

func newTestServer(t *testing.T) (*StatusServer, *httptest.Server) {
	t.Helper()
	s := NewWithConfig(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var hello Message
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, TypeStatus, hello.Type)
	return conn
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestStatusKeepsLastSummaryPerSweep(t *testing.T) {
	s, ts := newTestServer(t)

	s.Finished(processor.Summary{RunID: "a", Sweep: processor.SweepUnlinked, Processed: 1, Succeeded: 1})
	s.Finished(processor.Summary{RunID: "b", Sweep: processor.SweepUnlinked, Processed: 4, Failed: 1, Succeeded: 3})
	s.Finished(processor.Summary{RunID: "c", Sweep: processor.SweepKeywords})

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var last map[string]processor.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&last))
	require.Len(t, last, 2)
	assert.Equal(t, "b", last[processor.SweepUnlinked].RunID)
	assert.Equal(t, 1, last[processor.SweepUnlinked].Failed)
	assert.Equal(t, "c", last[processor.SweepKeywords].RunID)
}

func TestWebSocketReceivesSweepMessages(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dial(t, ts)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	s.Progress(processor.SweepObsolete, processor.Summary{Sweep: processor.SweepObsolete, Processed: 1})
	s.Finished(processor.Summary{Sweep: processor.SweepObsolete, Processed: 2, Succeeded: 2})

	var progress, finished Message
	require.NoError(t, conn.ReadJSON(&progress))
	require.NoError(t, conn.ReadJSON(&finished))

	assert.Equal(t, TypeProgress, progress.Type)
	require.NotNil(t, progress.Data)
	assert.Equal(t, 1, progress.Data.Processed)

	assert.Equal(t, TypeFinished, finished.Type)
	assert.Equal(t, "obsolete sweep finished: 2 processed, 2 succeeded, 0 failed", finished.Content)
}

func TestBroadcastDropsClosedClients(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dial(t, ts)
	conn.Close()

	assert.Eventually(t, func() bool {
		s.Progress(processor.SweepKeywords, processor.Summary{})
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.clients) == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestBroadcastDropsSlowClients(t *testing.T) {
	s := NewWithConfig(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	// Nothing drains this client's queue.
	stuck := &client{send: make(chan Message, 2)}
	s.clients[stuck] = struct{}{}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			s.Progress(processor.SweepUnlinked, processor.Summary{Processed: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast waited on a client that does not read")
	}

	s.mu.Lock()
	assert.Empty(t, s.clients)
	s.mu.Unlock()

	var queued []Message
	for msg := range stuck.send {
		queued = append(queued, msg)
	}
	assert.Len(t, queued, 2)
}
