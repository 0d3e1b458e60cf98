// Package stream maintains the long-lived SSE channel to the backend's trade
// stream and feeds well-formed records to the reconciler in arrival order.
package stream

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/solwatch/tradewatch/shared/models"
)

// State is the connector's connection state, readable by other components but
// owned exclusively by the connector.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
	keepAliveMarker       = "keep-alive"
	maxFrameSize          = 1 << 20
)

// Merger receives decoded trade records. The reconciler satisfies this.
type Merger interface {
	Merge(rec models.TradeRecord)
}

// Connector consumes the backend's one-way trade event channel. Connection
// errors schedule an unbounded exponential-backoff reconnect; the backoff
// resets after every successful open.
type Connector struct {
	url    string
	token  string
	merger Merger
	logger *logrus.Entry
	clock  clock.Clock

	httpClient *http.Client
	state      atomic.Int32

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewConnector creates a connector for the given SSE endpoint. token is
// attached as a bearer header when non-empty.
func NewConnector(url, token string, merger Merger, clk clock.Clock, logger *logrus.Logger) *Connector {
	return &Connector{
		url:    url,
		token:  token,
		merger: merger,
		logger: logger.WithField("component", "stream"),
		clock:  clk,
		// No overall timeout: the stream is long-lived by design.
		httpClient: &http.Client{},
	}
}

// State returns the current connection state.
func (c *Connector) State() State {
	return State(c.state.Load())
}

// Start launches the connect/consume/reconnect loop. It returns immediately;
// the loop runs until Close or context cancellation.
func (c *Connector) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.started = true
	c.mu.Unlock()

	go c.run(runCtx)
}

// Close stops the consume loop and any pending reconnect wait, then marks the
// connector closed. No further reconnects are scheduled after Close.
func (c *Connector) Close() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	c.setState(StateClosed)
	c.logger.Info("Trade stream disconnected")
}

func (c *Connector) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(StateClosed)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialReconnectDelay
	bo.MaxInterval = maxReconnectDelay
	bo.MaxElapsedTime = 0 // retry indefinitely

	for {
		if ctx.Err() != nil {
			return
		}

		c.setState(StateConnecting)
		opened, err := c.consume(ctx)
		c.setState(StateClosed)

		if ctx.Err() != nil {
			return
		}
		if opened {
			bo.Reset()
		}

		wait := bo.NextBackOff()
		c.logger.Warnf("Trade stream dropped: %v. Reconnecting in %v...", err, wait)

		timer := c.clock.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// consume opens one SSE connection and reads frames until it fails. The
// returned bool reports whether the connection was successfully opened at all
// (used to reset the backoff).
func (c *Connector) consume(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to connect to trade stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("trade stream returned status %d", resp.StatusCode)
	}

	c.setState(StateOpen)
	c.logger.Info("Trade stream connected")

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	// SSE framing: "data:" lines accumulate until a blank line ends the event.
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			c.handleFrame(data.String())
			data.Reset()
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event:/id:/retry: fields and comments carry no trade payload.
		}
	}

	if err := scanner.Err(); err != nil {
		return true, fmt.Errorf("trade stream read error: %w", err)
	}
	return true, fmt.Errorf("trade stream closed by server")
}

// handleFrame classifies one event payload. Keep-alive frames are dropped,
// malformed payloads are logged with the raw data and dropped; only a valid
// record reaches the reconciler. One bad frame never takes down the stream.
func (c *Connector) handleFrame(payload string) {
	payload = strings.TrimSpace(payload)
	if payload == "" || strings.Contains(payload, keepAliveMarker) {
		c.logger.Debug("Skipping keep-alive frame")
		return
	}

	rec, err := models.DecodeTradeRecord([]byte(payload))
	if err != nil {
		c.logger.Warnf("Dropping malformed stream frame: %v (payload=%q)", err, payload)
		return
	}

	c.merger.Merge(rec)
}

func (c *Connector) setState(s State) {
	c.state.Store(int32(s))
}
