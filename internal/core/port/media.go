package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// LocalTrack is a captured audio or video track owned by a call session.
type LocalTrack interface {
	ID() string
	Kind() domain.MediaKind
	Enabled() bool
	SetEnabled(enabled bool)
	ReadyState() domain.TrackState
	// Stop releases the device. Stopping an ended track does nothing.
	Stop()
}

// MediaSource opens capture devices for one set of constraints. Failures
// should wrap one of the domain media sentinels so they can be classified.
type MediaSource interface {
	Open(ctx context.Context, c domain.Constraints) ([]LocalTrack, error)
}
