// Package signaling connects a call peer to the conversation relay over a
// websocket.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const defaultWriteWait = 10 * time.Second

var ErrClosed = errors.New("signaling channel closed")

// Handler receives every signal read from the relay.
type Handler func(ctx context.Context, sig domain.Signal) error

// Channel is a port.SignalChannel backed by one websocket connection.
type Channel struct {
	conn *websocket.Conn
	conv domain.ConversationID

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// BuildURL returns the relay websocket URL for a conversation member.
func BuildURL(base string, conv domain.ConversationID, self domain.Peer) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("signaling: parse relay url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("signaling: unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}

	q := u.Query()
	q.Set("conversation_id", conv.String())
	if self.ID != "" {
		q.Set("user_id", self.ID.String())
	}
	if self.Name != "" {
		q.Set("name", self.Name)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial opens the relay connection for conv.
func Dial(ctx context.Context, rawURL string, conv domain.ConversationID) (*Channel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("signaling: dial %s: %w", rawURL, err)
	}
	log.Info().Str("url", rawURL).Msg("Connected to relay")
	return &Channel{
		conn: conn,
		conv: conv,
		done: make(chan struct{}),
	}, nil
}

func (c *Channel) SendCallSignal(ctx context.Context, sig domain.Signal) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if sig.ConversationID == "" {
		sig.ConversationID = c.conv
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteWait)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.conn.WriteJSON(sig); err != nil {
		return fmt.Errorf("signaling: write %s: %w", sig.Type, err)
	}
	return nil
}

// Listen reads signals until the connection or ctx closes. Handler errors
// are logged and do not stop the loop.
func (c *Channel) Listen(ctx context.Context, handler Handler) error {
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	for {
		var sig domain.Signal
		if err := c.conn.ReadJSON(&sig); err != nil {
			select {
			case <-c.done:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("signaling: read: %w", err)
		}
		if err := handler(ctx, sig); err != nil {
			log.Warn().Err(err).Str("type", string(sig.Type)).Msg("Call signal not handled")
		}
	}
}

func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
