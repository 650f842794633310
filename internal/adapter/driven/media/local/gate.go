package local

import (
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// NewGatedTrack wraps a track that writes its own packets once bound, such
// as a mediadevices capture track. Outbound RTP is dropped while the track
// is disabled.
func NewGatedTrack(kind domain.MediaKind, lt webrtc.TrackLocal, release func() error) *Track {
	t := NewTrack(kind, lt, release)
	t.local = &gate{TrackLocal: lt, track: t}
	return t
}

type gate struct {
	webrtc.TrackLocal
	track *Track
}

func (g *gate) Bind(ctx webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	return g.TrackLocal.Bind(&gatedContext{TrackLocalContext: ctx, track: g.track})
}

// Unbind passes a fresh wrapper: pion and mediadevices match bindings by
// context ID.
func (g *gate) Unbind(ctx webrtc.TrackLocalContext) error {
	return g.TrackLocal.Unbind(&gatedContext{TrackLocalContext: ctx, track: g.track})
}

type gatedContext struct {
	webrtc.TrackLocalContext
	track *Track
}

func (c *gatedContext) WriteStream() webrtc.TrackLocalWriter {
	return &gatedWriter{TrackLocalWriter: c.TrackLocalContext.WriteStream(), track: c.track}
}

type gatedWriter struct {
	webrtc.TrackLocalWriter
	track *Track
}

func (w *gatedWriter) WriteRTP(header *rtp.Header, payload []byte) (int, error) {
	if !w.track.Enabled() {
		return len(payload), nil
	}
	return w.TrackLocalWriter.WriteRTP(header, payload)
}

func (w *gatedWriter) Write(b []byte) (int, error) {
	if !w.track.Enabled() {
		return len(b), nil
	}
	return w.TrackLocalWriter.Write(b)
}
