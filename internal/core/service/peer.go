package service

import (
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog/log"
)

// PeerManager owns the zero-or-one peer connection of the current session.
// Events raised by the connection are stamped with the slot generation and
// handed to the dispatch sink.
type PeerManager struct {
	factory  port.PeerFactory
	dispatch port.EventSink

	mu         sync.Mutex
	pc         port.PeerConnection
	generation uint64
}

func NewPeerManager(factory port.PeerFactory, dispatch port.EventSink) *PeerManager {
	return &PeerManager{
		factory:  factory,
		dispatch: dispatch,
	}
}

// Ensure returns the slot's connection, creating it on first use.
func (m *PeerManager) Ensure() (port.PeerConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pc != nil {
		return m.pc, nil
	}

	gen := m.generation + 1
	pc, err := m.factory.NewPeerConnection(func(ev domain.SessionEvent) {
		ev.Generation = gen
		m.dispatch(ev)
	})
	if err != nil {
		return nil, err
	}

	m.generation = gen
	m.pc = pc
	log.Debug().Uint64("generation", gen).Msg("Peer connection created")
	return pc, nil
}

// Current returns the active connection, or nil.
func (m *PeerManager) Current() port.PeerConnection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pc
}

// Generation is the generation of the active connection, 0 when empty.
func (m *PeerManager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pc == nil {
		return 0
	}
	return m.generation
}

// IsCurrent reports whether an event came from the active connection.
func (m *PeerManager) IsCurrent(ev domain.SessionEvent) bool {
	g := m.Generation()
	return g != 0 && ev.Generation == g
}

func (m *PeerManager) HasRemoteDescription() bool {
	pc := m.Current()
	return pc != nil && pc.HasRemoteDescription()
}

// Close closes and empties the slot. Closing an empty slot does nothing.
func (m *PeerManager) Close() {
	m.mu.Lock()
	pc := m.pc
	m.pc = nil
	m.mu.Unlock()

	if pc == nil {
		return
	}
	if err := pc.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing peer connection")
	}
}
