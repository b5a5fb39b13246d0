// Package ingress receives animation requests from the dialogue service over
// a WebSocket.
package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/normanking/cortexanim/internal/dispatch"
	"github.com/rs/zerolog"
)

// AnimationMessage is received from the dialogue service
type AnimationMessage struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	Action string `json:"action"`
	Name   string `json:"name,omitempty"`
	HoldMs int64  `json:"hold_ms,omitempty"`
}

// AckMessage answers every animation message
type AckMessage struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// Submitter accepts animation commands.
type Submitter interface {
	Submit(cmd dispatch.Command) (string, error)
}

// Client connects to the dialogue service and forwards animation requests
type Client struct {
	rawURL    string
	submitter Submitter
	logger    zerolog.Logger

	// MinBackoff and MaxBackoff bound the reconnect delay.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	mu        sync.RWMutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}

	onState func(connected bool)
}

// NewClient creates a client for a ws://, wss://, http:// or https:// URL.
func NewClient(rawURL string, submitter Submitter, logger zerolog.Logger) *Client {
	return &Client{
		rawURL:     rawURL,
		submitter:  submitter,
		logger:     logger.With().Str("component", "ingress").Logger(),
		MinBackoff: 3 * time.Second,
		MaxBackoff: 60 * time.Second,
	}
}

// SetStateCallback sets the callback for connection changes
func (c *Client) SetStateCallback(cb func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = cb
}

// Connect starts the connection loop in the background
func (c *Client) Connect(ctx context.Context) error {
	u, err := c.endpoint()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.connectLoop(ctx, u)
	}()
	return nil
}

// Disconnect stops the loop and closes the connection
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.done = nil
	if cancel != nil {
		cancel()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	if done != nil {
		<-done
	}
	c.setConnected(false)
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	changed := c.connected != v
	c.connected = v
	cb := c.onState
	c.mu.Unlock()

	if changed && cb != nil {
		cb(v)
	}
}

// connectLoop maintains the WebSocket connection with reconnection
func (c *Client) connectLoop(ctx context.Context, u string) {
	backoff := c.MinBackoff
	consecutiveFailures := 0

	for {
		if ctx.Err() != nil {
			return
		}
		connected, err := c.connectWS(ctx, u)
		c.setConnected(false)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = c.MinBackoff
			consecutiveFailures = 0
			c.logger.Warn().Err(err).Msg("Ingress connection lost, reconnecting")
		} else {
			consecutiveFailures++
			if consecutiveFailures >= 3 {
				if consecutiveFailures == 3 {
					c.logger.Warn().
						Err(err).
						Int("failures", consecutiveFailures).
						Msg("Dialogue service not available, will retry less frequently")
				} else {
					c.logger.Debug().
						Int("failures", consecutiveFailures).
						Msg("Dialogue service still unavailable")
				}
				backoff = c.MaxBackoff
			} else {
				c.logger.Warn().Err(err).Msg("Ingress connection failed, reconnecting")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if backoff < c.MaxBackoff {
			backoff *= 2
			if backoff > c.MaxBackoff {
				backoff = c.MaxBackoff
			}
		}
	}
}

// connectWS dials and reads until the connection fails. connected reports
// whether the dial succeeded.
func (c *Client) connectWS(ctx context.Context, u string) (connected bool, err error) {
	c.logger.Info().Str("url", u).Msg("Connecting to dialogue service")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setConnected(true)
	c.logger.Info().Msg("Connected to dialogue service")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		var msg json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			return true, fmt.Errorf("read: %w", err)
		}
		c.handleMessage(conn, msg)
	}
}

// handleMessage processes incoming WebSocket messages
func (c *Client) handleMessage(conn *websocket.Conn, raw json.RawMessage) {
	var typeMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &typeMsg); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to parse message type")
		return
	}

	switch typeMsg.Type {
	case "animation":
		var msg AnimationMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to parse animation message")
			return
		}
		c.write(conn, c.submit(msg))

	case "ping":
		c.write(conn, map[string]string{"type": "pong"})

	default:
		c.logger.Debug().Str("type", typeMsg.Type).Msg("Unknown message type")
	}
}

func (c *Client) submit(msg AnimationMessage) AckMessage {
	ack := AckMessage{Type: "ack", ID: msg.ID}

	ct, ok := dispatch.ParseCommandType(msg.Action)
	if !ok {
		ack.Error = fmt.Sprintf("unknown action %q", msg.Action)
		c.logger.Warn().Str("action", msg.Action).Msg("Unknown animation action")
		return ack
	}

	id, err := c.submitter.Submit(dispatch.Command{
		ID:          msg.ID,
		Type:        ct,
		Description: msg.Name,
		Hold:        time.Duration(msg.HoldMs) * time.Millisecond,
	})
	if err != nil {
		ack.Error = err.Error()
		c.logger.Warn().Err(err).Msg("Animation request rejected")
		return ack
	}
	ack.ID = id
	ack.Accepted = true
	c.logger.Debug().Str("id", id).Str("action", msg.Action).Str("name", msg.Name).Msg("Animation request queued")
	return ack
}

func (c *Client) write(conn *websocket.Conn, v any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(v); err != nil {
		c.logger.Debug().Err(err).Msg("Write failed")
	}
}
