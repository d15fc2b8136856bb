// ABOUTME: WebSocket client for the discovery bridge
// ABOUTME: Sends discover requests and matches replies by request id
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned for requests on a closed client
var ErrClosed = errors.New("bridge connection closed")

// Client is a bridge connection
type Client struct {
	conn *websocket.Conn
	log  logrus.FieldLogger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Message
	closed  bool
	err     error
	done    chan struct{}
}

// Dial connects to the bridge at addr (host:port)
func Dial(ctx context.Context, addr string) (*Client, error) {
	return DialWithLogger(ctx, addr, logrus.StandardLogger())
}

// DialWithLogger connects to the bridge and logs through logger
func DialWithLogger(ctx context.Context, addr string, logger logrus.FieldLogger) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: Path}
	logger.Debugf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	c := &Client{
		conn:    conn,
		log:     logger,
		pending: make(map[string]chan Message),
		done:    make(chan struct{}),
	}
	go c.readMessages()
	return c, nil
}

// Discover asks the bridge for one scan and waits for its result
func (c *Client) Discover(ctx context.Context) (*DiscoverResult, error) {
	id := uuid.New().String()
	reply := make(chan Message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[id] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(Message{Type: TypeDiscover, ID: id}); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", TypeDiscover, err)
	}

	select {
	case msg := <-reply:
		return decodeReply(msg)
	case <-c.done:
		return nil, c.closeErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func decodeReply(msg Message) (*DiscoverResult, error) {
	switch msg.Type {
	case TypeServers:
		var result DiscoverResult
		if err := msg.Decode(&result); err != nil {
			return nil, err
		}
		return &result, nil
	case TypeError:
		var remote ErrorPayload
		if err := msg.Decode(&remote); err != nil {
			return nil, err
		}
		return nil, remote
	default:
		return nil, fmt.Errorf("unexpected reply type %s", msg.Type)
	}
}

func (c *Client) send(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// readMessages routes replies to their waiting requests
func (c *Client) readMessages() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.WithError(err).Warn("Failed to parse bridge message")
			continue
		}

		c.mu.Lock()
		reply, ok := c.pending[msg.ID]
		c.mu.Unlock()
		if !ok {
			c.log.Debugf("Dropping %s for unknown request %q", msg.Type, msg.ID)
			continue
		}
		reply <- msg
	}
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
	c.closed = true
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *Client) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil || websocket.IsCloseError(c.err, websocket.CloseNormalClosure) {
		return ErrClosed
	}
	return fmt.Errorf("%w: %v", ErrClosed, c.err)
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}
