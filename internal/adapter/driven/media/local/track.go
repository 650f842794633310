// Package local holds the local track type shared by the media sources.
package local

import (
	"sync"
	"sync/atomic"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Track is a captured track that can be attached to a pion peer
// connection.
type Track struct {
	kind    domain.MediaKind
	local   webrtc.TrackLocal
	enabled atomic.Bool

	stopOnce sync.Once
	stopped  atomic.Bool
	release  func() error
}

// NewTrack wraps a pion track. release is called once when the track is
// stopped and may be nil.
func NewTrack(kind domain.MediaKind, local webrtc.TrackLocal, release func() error) *Track {
	t := &Track{
		kind:    kind,
		local:   local,
		release: release,
	}
	t.enabled.Store(true)
	return t
}

func (t *Track) ID() string {
	return t.local.ID()
}

func (t *Track) Kind() domain.MediaKind {
	return t.kind
}

func (t *Track) Enabled() bool {
	return t.enabled.Load()
}

func (t *Track) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

func (t *Track) ReadyState() domain.TrackState {
	if t.stopped.Load() {
		return domain.TrackEnded
	}
	return domain.TrackLive
}

func (t *Track) Stop() {
	t.stopOnce.Do(func() {
		t.stopped.Store(true)
		if t.release == nil {
			return
		}
		if err := t.release(); err != nil {
			log.Warn().Err(err).Str("track_id", t.ID()).Msg("Error releasing track")
		}
	})
}

// TrackLocal exposes the pion track for AddTrack.
func (t *Track) TrackLocal() webrtc.TrackLocal {
	return t.local
}
