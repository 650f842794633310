package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// EventSink receives every event raised by a peer connection.
type EventSink func(domain.SessionEvent)

type PeerConnection interface {
	CreateOffer(ctx context.Context) (domain.SessionDescription, error)
	CreateAnswer(ctx context.Context) (domain.SessionDescription, error)
	SetLocalDescription(ctx context.Context, sd domain.SessionDescription) error
	SetRemoteDescription(ctx context.Context, sd domain.SessionDescription) error
	HasRemoteDescription() bool
	AddICECandidate(c domain.ICECandidate) error
	AddTrack(t LocalTrack) error
	ConnectionState() domain.ConnectionState
	Close() error
}

type PeerFactory interface {
	NewPeerConnection(sink EventSink) (PeerConnection, error)
}
