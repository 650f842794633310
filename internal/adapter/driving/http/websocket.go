package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origins are not checked: the relay only forwards signals between
	// members of the same conversation.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSClient struct {
	id   domain.UserID
	name string
	conv domain.ConversationID
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *WSClient) ID() string {
	return c.id.String()
}

func (c *WSClient) Name() string {
	return c.name
}

func (c *WSClient) ConversationID() domain.ConversationID {
	return c.conv
}

func (c *WSClient) SendSignal(signal domain.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(signal)
}

func (c *WSClient) Close() error {
	return c.conn.Close()
}

// ServeWS upgrades a conversation member and relays its call signals.
// Query: conversation_id (required), user_id, name.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	conv := domain.ConversationID(q.Get("conversation_id"))
	if conv == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}
	clientID := domain.UserID(q.Get("user_id"))
	if clientID == "" {
		clientID = domain.NewUserID()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := &WSClient{
		id:   clientID,
		name: q.Get("name"),
		conv: conv,
		conn: conn,
	}

	l := log.With().Str("client_id", clientID.String()).Str("conversation_id", conv.String()).Logger()
	l.Info().Msg("New client connected")

	h.Hub.Register(client)

	defer func() {
		l.Info().Msg("Client disconnected")
		h.Hub.Unregister(client)
		conn.Close()
	}()

	for {
		var sig domain.Signal
		if err := conn.ReadJSON(&sig); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}

		sig.ConversationID = conv
		if err := sig.Validate(); err != nil {
			l.Warn().Err(err).Msg("Dropping invalid call signal")
			continue
		}
		h.Hub.Relay(client, sig)
	}
}
