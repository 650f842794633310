package domain

type ConnectionState string

const (
	ConnNew          ConnectionState = "new"
	ConnConnecting   ConnectionState = "connecting"
	ConnConnected    ConnectionState = "connected"
	ConnDisconnected ConnectionState = "disconnected"
	ConnFailed       ConnectionState = "failed"
	ConnClosed       ConnectionState = "closed"
)

// Terminal reports whether the state ends the call.
func (s ConnectionState) Terminal() bool {
	switch s {
	case ConnDisconnected, ConnFailed, ConnClosed:
		return true
	}
	return false
}

type EventType string

const (
	EventIceGenerated           EventType = "ice_generated"
	EventRemoteTrackAdded       EventType = "remote_track_added"
	EventConnectionStateChanged EventType = "connection_state_changed"
)

// RemoteTrackInfo describes a track received from the other participant.
type RemoteTrackInfo struct {
	ID       string
	StreamID string
	Kind     MediaKind
}

// SessionEvent is raised by a peer connection. Exactly one payload is set,
// matching Type. Generation identifies the peer connection that raised it.
type SessionEvent struct {
	Type       EventType
	Generation uint64

	Candidate *ICECandidate
	Track     *RemoteTrackInfo
	State     ConnectionState

	// Handle is the adapter's remote track value, passed through to the
	// observer untouched.
	Handle any
}

func IceGenerated(c ICECandidate) SessionEvent {
	return SessionEvent{Type: EventIceGenerated, Candidate: &c}
}

func RemoteTrackAdded(info RemoteTrackInfo, handle any) SessionEvent {
	return SessionEvent{Type: EventRemoteTrackAdded, Track: &info, Handle: handle}
}

func ConnectionStateChanged(s ConnectionState) SessionEvent {
	return SessionEvent{Type: EventConnectionStateChanged, State: s}
}
