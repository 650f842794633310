// Package devices captures from real cameras and microphones through
// pion/mediadevices. Drivers and encoders are registered by the binary
// (blank imports of mediadevices driver packages plus a codec selector).
package devices

import (
	"context"
	"fmt"
	"strings"

	"github.com/Wyydra/yacall/internal/adapter/driven/media/local"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

const (
	sampleRate   = 48000
	channelCount = 1
)

// getUserMedia is swapped in tests.
var getUserMedia = mediadevices.GetUserMedia

type Source struct {
	codecs *mediadevices.CodecSelector
}

func NewSource(codecs *mediadevices.CodecSelector) *Source {
	return &Source{codecs: codecs}
}

func (s *Source) Open(ctx context.Context, c domain.Constraints) ([]port.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream, err := getUserMedia(Constraints(c, s.codecs))
	if err != nil {
		return nil, Classify(err)
	}

	var tracks []port.LocalTrack
	for _, t := range stream.GetTracks() {
		lt, ok := any(t).(webrtc.TrackLocal)
		if !ok {
			closeAll(stream)
			return nil, fmt.Errorf("devices: track %s cannot be sent", t.ID())
		}
		kind := domain.KindAudio
		if t.Kind() == webrtc.RTPCodecTypeVideo {
			kind = domain.KindVideo
		}
		tracks = append(tracks, local.NewGatedTrack(kind, lt, t.Close))
	}
	return tracks, nil
}

func closeAll(stream mediadevices.MediaStream) {
	for _, t := range stream.GetTracks() {
		_ = t.Close()
	}
}

// Constraints translates a domain tier into mediadevices constraints.
// mediadevices has no echo cancellation, noise suppression or gain
// control knobs; the optimized audio tier asks for a fixed voice format
// instead.
func Constraints(c domain.Constraints, codecs *mediadevices.CodecSelector) mediadevices.MediaStreamConstraints {
	var out mediadevices.MediaStreamConstraints
	out.Codec = codecs

	if a := c.Audio; a != nil {
		optimized := a.EchoCancellation || a.NoiseSuppression || a.AutoGainControl
		out.Audio = func(mc *mediadevices.MediaTrackConstraints) {
			if optimized {
				mc.SampleRate = prop.Int(sampleRate)
				mc.ChannelCount = prop.Int(channelCount)
			}
		}
	}
	if v := c.Video; v != nil {
		out.Video = func(mc *mediadevices.MediaTrackConstraints) {
			if v.Width > 0 {
				mc.Width = prop.Int(v.Width)
			}
			if v.Height > 0 {
				mc.Height = prop.Int(v.Height)
			}
		}
	}
	return out
}

// Classify wraps a mediadevices failure with the matching domain sentinel.
func Classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "operation not permitted"):
		return fmt.Errorf("devices: %w: %v", domain.ErrPermissionDenied, err)
	case strings.Contains(msg, "busy"):
		return fmt.Errorf("devices: %w: %v", domain.ErrDeviceBusy, err)
	case strings.Contains(msg, "failed to find"), strings.Contains(msg, "no such"), strings.Contains(msg, "not found"):
		return fmt.Errorf("devices: %w: %v", domain.ErrDeviceNotFound, err)
	}
	return fmt.Errorf("devices: %w", err)
}
