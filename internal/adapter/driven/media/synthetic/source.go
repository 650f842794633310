// Package synthetic provides a media source that generates silent audio
// and blank video, for headless peers and tests.
package synthetic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/adapter/driven/media/local"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

const (
	audioFrame = 20 * time.Millisecond
	videoFrame = 33 * time.Millisecond
)

// One opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Devices describes the fake hardware behind the source.
type Devices struct {
	Microphone bool
	Camera     bool
	// MaxWidth and MaxHeight cap what the camera can deliver; 0 means
	// any size is accepted.
	MaxWidth  int
	MaxHeight int
	Denied    bool
	Busy      bool
}

func DefaultDevices() Devices {
	return Devices{Microphone: true, Camera: true}
}

type Source struct {
	mu      sync.Mutex
	devices Devices
	opened  int
}

func NewSource(devices Devices) *Source {
	return &Source{devices: devices}
}

// SetDevices swaps the fake hardware, e.g. to unplug the camera.
func (s *Source) SetDevices(d Devices) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = d
}

// Opened counts successful Open calls.
func (s *Source) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

func (s *Source) Open(ctx context.Context, c domain.Constraints) ([]port.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	d := s.devices
	s.mu.Unlock()

	switch {
	case d.Denied:
		return nil, fmt.Errorf("synthetic: %w", domain.ErrPermissionDenied)
	case d.Busy:
		return nil, fmt.Errorf("synthetic: %w", domain.ErrDeviceBusy)
	case c.WantsAudio() && !d.Microphone:
		return nil, fmt.Errorf("synthetic: microphone: %w", domain.ErrDeviceNotFound)
	case c.WantsVideo() && !d.Camera:
		return nil, fmt.Errorf("synthetic: camera: %w", domain.ErrDeviceNotFound)
	case c.WantsVideo() && overconstrained(c.Video, d):
		return nil, fmt.Errorf("synthetic: camera cannot deliver %dx%d: %w", c.Video.Width, c.Video.Height, domain.ErrDeviceNotFound)
	}

	streamID := "synthetic-" + uuid.New().String()
	var tracks []port.LocalTrack

	if c.WantsAudio() {
		t, err := newTrack(domain.KindAudio, streamID)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	if c.WantsVideo() {
		t, err := newTrack(domain.KindVideo, streamID)
		if err != nil {
			for _, open := range tracks {
				open.Stop()
			}
			return nil, err
		}
		tracks = append(tracks, t)
	}

	s.mu.Lock()
	s.opened++
	s.mu.Unlock()
	return tracks, nil
}

func overconstrained(v *domain.VideoConstraints, d Devices) bool {
	return (d.MaxWidth > 0 && v.Width > d.MaxWidth) || (d.MaxHeight > 0 && v.Height > d.MaxHeight)
}

func newTrack(kind domain.MediaKind, streamID string) (*local.Track, error) {
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	frame, payload := audioFrame, opusSilence
	if kind == domain.KindVideo {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
		frame, payload = videoFrame, make([]byte, 64)
	}

	sample, err := webrtc.NewTrackLocalStaticSample(codec, string(kind), streamID)
	if err != nil {
		return nil, fmt.Errorf("synthetic: create %s track: %w", kind, err)
	}

	done := make(chan struct{})
	t := local.NewTrack(kind, sample, func() error {
		close(done)
		return nil
	})
	go pump(t, sample, frame, payload, done)
	return t, nil
}

// pump writes a frame per tick while the track is enabled.
func pump(t *local.Track, sample *webrtc.TrackLocalStaticSample, frame time.Duration, payload []byte, done <-chan struct{}) {
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !t.Enabled() {
				continue
			}
			if err := sample.WriteSample(media.Sample{Data: payload, Duration: frame}); err != nil {
				log.Debug().Err(err).Str("track_id", t.ID()).Msg("Synthetic sample dropped")
			}
		}
	}
}
