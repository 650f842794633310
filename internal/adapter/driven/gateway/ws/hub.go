package ws

import (
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/rs/zerolog/log"
)

type envelope struct {
	from   Client
	signal domain.Signal
}

// Hub relays call signals between the clients of each conversation. It
// stands in for the chat infrastructure's channel.
type Hub struct {
	mu            sync.Mutex
	conversations map[domain.ConversationID]map[Client]bool
	relay         chan envelope
	register      chan Client
	unregister    chan Client
	quit          chan struct{}
	stopOnce      sync.Once
}

func NewHub() *Hub {
	return &Hub{
		conversations: make(map[domain.ConversationID]map[Client]bool),
		relay:         make(chan envelope, 64),
		register:      make(chan Client),
		unregister:    make(chan Client),
		quit:          make(chan struct{}),
	}
}

// Relay queues a signal from a client for delivery to its conversation.
func (h *Hub) Relay(from Client, signal domain.Signal) {
	select {
	case h.relay <- envelope{from: from, signal: signal}:
	case <-h.quit:
	}
}

// Members returns the number of clients in a conversation.
func (h *Hub) Members(conv domain.ConversationID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conversations[conv])
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for conv, clients := range h.conversations {
				for client := range clients {
					client.Close()
				}
				delete(h.conversations, conv)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			conv := client.ConversationID()
			if h.conversations[conv] == nil {
				h.conversations[conv] = make(map[Client]bool)
			}
			h.conversations[conv][client] = true
			count := len(h.conversations[conv])
			h.mu.Unlock()
			log.Info().Str("client_id", client.ID()).Str("conversation_id", conv.String()).Int("count", count).Msg("Client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			conv := client.ConversationID()
			if _, ok := h.conversations[conv][client]; ok {
				delete(h.conversations[conv], client)
				if len(h.conversations[conv]) == 0 {
					delete(h.conversations, conv)
				}
				client.Close()
				log.Info().Str("client_id", client.ID()).Str("conversation_id", conv.String()).Msg("Client unregistered")
			}
			h.mu.Unlock()

		case env := <-h.relay:
			h.deliver(env)
		}
	}
}

func (h *Hub) deliver(env envelope) {
	sig := env.signal
	sig.ConversationID = env.from.ConversationID()
	sig.SenderID = domain.UserID(env.from.ID())
	sig.SenderName = env.from.Name()

	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.conversations[sig.ConversationID]
	delivered := 0
	for client := range clients {
		if client == env.from {
			continue
		}
		if sig.RecipientID != "" && client.ID() != sig.RecipientID.String() {
			continue
		}
		if err := client.SendSignal(sig); err != nil {
			log.Error().Err(err).Str("client_id", client.ID()).Msg("Error relaying call signal")
			client.Close()
			delete(clients, client)
			continue
		}
		delivered++
	}

	log.Debug().
		Str("type", string(sig.Type)).
		Str("sender_id", sig.SenderID.String()).
		Int("delivered", delivered).
		Msg("Relayed call signal")
}

func (h *Hub) Register(c Client) {
	select {
	case h.register <- c:
	case <-h.quit:
	}
}

func (h *Hub) Unregister(c Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// Stop shuts the hub down. Calling it again does nothing.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}
