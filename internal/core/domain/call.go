package domain

import (
	"fmt"
	"time"
)

type CallStatus string

const (
	StatusIdle      CallStatus = "idle"
	StatusCalling   CallStatus = "calling"   // offer sent, waiting for answer
	StatusRinging   CallStatus = "ringing"   // offer received, waiting for the user
	StatusConnected CallStatus = "connected"
	StatusEnded     CallStatus = "ended" // published during teardown only
)

// Active reports whether a session exists in this status.
func (s CallStatus) Active() bool {
	return s != StatusIdle && s != StatusEnded
}

type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

func ParseCallType(s string) (CallType, error) {
	switch CallType(s) {
	case CallAudio, CallVideo:
		return CallType(s), nil
	}
	return "", fmt.Errorf("unknown call type %q", s)
}

func (t CallType) HasVideo() bool {
	return t == CallVideo
}

// Peer is the remote participant of a call.
type Peer struct {
	ID   UserID
	Name string
}

func (p Peer) IsZero() bool {
	return p.ID == "" && p.Name == ""
}

// IncomingCall is handed to the embedding UI when an offer is observed.
type IncomingCall struct {
	ConversationID ConversationID
	From           Peer
	CallType       CallType
}

type EndReason string

const (
	EndLocalHangup  EndReason = "local_hangup"
	EndRemoteHangup EndReason = "remote_hangup"
	EndRejected     EndReason = "rejected"       // we rejected
	EndRemoteReject EndReason = "remote_rejected" // they rejected
	EndConnection   EndReason = "connection_lost"
	EndTimeout      EndReason = "timeout"
	EndShutdown     EndReason = "shutdown"
	EndFailed       EndReason = "failed" // setup failed before the call was up
)

// CallSnapshot is a read-only view of the current session.
type CallSnapshot struct {
	SessionID         SessionID
	ConversationID    ConversationID
	Status            CallStatus
	CallType          CallType
	Peer              Peer
	Outgoing          bool
	Muted             bool
	VideoOff          bool
	LocalTracks       int
	RemoteTracks      int
	PendingCandidates int
	HasPeerConnection bool
	StartedAt         time.Time
}
