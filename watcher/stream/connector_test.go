package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solwatch/tradewatch/shared/models"
)

type captureMerger struct {
	mu   sync.Mutex
	recs []models.TradeRecord
	ch   chan models.TradeRecord
}

func newCaptureMerger() *captureMerger {
	return &captureMerger{ch: make(chan models.TradeRecord, 16)}
}

func (m *captureMerger) Merge(rec models.TradeRecord) {
	m.mu.Lock()
	m.recs = append(m.recs, rec)
	m.mu.Unlock()
	m.ch <- rec
}

func (m *captureMerger) records() []models.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.TradeRecord, len(m.recs))
	copy(out, m.recs)
	return out
}

func newTestConnector(url string, merger Merger) *Connector {
	return NewConnector(url, "", merger, clock.New(), logrus.New())
}

func TestHandleFrameKeepAlive(t *testing.T) {
	merger := newCaptureMerger()
	c := newTestConnector("http://unused", merger)

	c.handleFrame("")
	c.handleFrame("   ")
	c.handleFrame(`{"type": "keep-alive"}`)
	c.handleFrame("keep-alive ping")

	assert.Empty(t, merger.records(), "keep-alive frames must be no-ops")
}

func TestHandleFrameMalformedIsIsolated(t *testing.T) {
	merger := newCaptureMerger()
	c := newTestConnector("http://unused", merger)

	c.handleFrame(`{broken json`)
	c.handleFrame(`{"status": "Confirmed"}`) // parses but has no trade_id
	c.handleFrame(`{"trade_id": "t1", "status": "Confirmed", "trade_type": "Buy"}`)

	recs := merger.records()
	require.Len(t, recs, 1, "only the valid frame should produce a merge")
	assert.Equal(t, "t1", recs[0].TradeID)
	assert.Equal(t, "buy", recs[0].TradeType)
}

func TestConnectorConsumesStream(t *testing.T) {
	frames := []string{
		": comment line\n\n",
		"data: keep-alive\n\n",
		"data: {\"trade_id\": \"t1\", \"status\": \"Pending\", \"trade_type\": \"buy\"}\n\n",
		"event: trade\ndata: {\"trade_id\": \"t1\", \"status\": \"Confirmed\", \"trade_type\": \"buy\"}\n\n",
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		w.Header().Set("Content-Type", "text/event-stream")

		for _, frame := range frames {
			fmt.Fprint(w, frame)
			flusher.Flush()
		}
		// Hold the stream open so the test observes the Open state.
		<-r.Context().Done()
	}))
	defer server.Close()

	merger := newCaptureMerger()
	c := newTestConnector(server.URL, merger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Close()

	var got []models.TradeRecord
	for i := 0; i < 2; i++ {
		select {
		case rec := <-merger.ch:
			got = append(got, rec)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for merged record %d", i)
		}
	}

	require.Len(t, got, 2)
	assert.Equal(t, models.StatusPending, got[0].Status)
	assert.Equal(t, models.StatusConfirmed, got[1].Status)
	assert.Equal(t, StateOpen, c.State())
}

func TestConnectorReconnectsAfterDrop(t *testing.T) {
	var mu sync.Mutex
	connections := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		connections++
		n := connections
		mu.Unlock()

		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: {\"trade_id\": \"conn-%d\", \"status\": \"Pending\", \"trade_type\": \"buy\"}\n\n", n)
		flusher.Flush()
		// Return immediately: the server drops the stream after one event.
	}))
	defer server.Close()

	merger := newCaptureMerger()
	mockClock := clock.NewMock()
	c := NewConnector(server.URL, "", merger, mockClock, logrus.New())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Close()

	// First connection delivers its event, then drops.
	select {
	case <-merger.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first event")
	}

	// Release the reconnect wait and expect a second connection.
	require.Eventually(t, func() bool {
		mockClock.Add(initialReconnectDelay)
		select {
		case <-merger.ch:
			return true
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond, "connector should reconnect after the backoff wait")

	mu.Lock()
	assert.GreaterOrEqual(t, connections, 2)
	mu.Unlock()
}

func TestConnectorCloseStopsReconnect(t *testing.T) {
	merger := newCaptureMerger()
	c := newTestConnector("http://127.0.0.1:0", merger)

	ctx := context.Background()
	c.Start(ctx)

	// Let the first (failing) connect happen, then close.
	time.Sleep(50 * time.Millisecond)
	c.Close()

	assert.Equal(t, StateClosed, c.State())
	assert.Empty(t, merger.records())
}

func TestConnectorAttachesBearerToken(t *testing.T) {
	gotAuth := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	c := NewConnector(server.URL, "secret", newCaptureMerger(), clock.New(), logrus.New())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Close()

	select {
	case auth := <-gotAuth:
		assert.Equal(t, "Bearer secret", auth)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stream request")
	}
}
