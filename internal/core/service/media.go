package service

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog/log"
)

// MediaStream is the set of local tracks captured for one session.
type MediaStream struct {
	mu     sync.Mutex
	tracks []port.LocalTrack
	// Tier is the index of the constraint tier that succeeded.
	Tier int
}

func NewMediaStream(tracks []port.LocalTrack) *MediaStream {
	return &MediaStream{tracks: tracks}
}

func (s *MediaStream) Tracks() []port.LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]port.LocalTrack(nil), s.tracks...)
}

func (s *MediaStream) AudioTracks() []port.LocalTrack {
	return s.ofKind(domain.KindAudio)
}

func (s *MediaStream) VideoTracks() []port.LocalTrack {
	return s.ofKind(domain.KindVideo)
}

func (s *MediaStream) ofKind(k domain.MediaKind) []port.LocalTrack {
	var out []port.LocalTrack
	for _, t := range s.Tracks() {
		if t.Kind() == k {
			out = append(out, t)
		}
	}
	return out
}

// Stop stops every live track. Calling it again does nothing.
func (s *MediaStream) Stop() {
	for _, t := range s.Tracks() {
		if t.ReadyState() == domain.TrackLive {
			t.Stop()
		}
	}
}

type MediaService struct {
	source  port.MediaSource
	metrics port.CallMetrics
}

func NewMediaService(source port.MediaSource, metrics port.CallMetrics) *MediaService {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &MediaService{source: source, metrics: metrics}
}

// Acquire opens local media for a call, trying each constraint tier in
// order. Only when every tier fails is the last failure classified and
// returned.
func (m *MediaService) Acquire(ctx context.Context, callType domain.CallType) (*MediaStream, error) {
	tiers := domain.ConstraintTiers(callType)
	l := log.With().Str("call_type", string(callType)).Logger()

	var lastErr error
	for i, c := range tiers {
		tracks, err := m.source.Open(ctx, c)
		if err == nil {
			if i > 0 {
				l.Info().Int("tier", i).Msg("Media acquired with fallback constraints")
				m.metrics.MediaFallback(i)
			}
			stream := NewMediaStream(tracks)
			stream.Tier = i
			return stream, nil
		}
		lastErr = err
		l.Warn().Err(err).Int("tier", i).Msg("Media acquisition attempt failed")

		if ctx.Err() != nil {
			break
		}
	}

	kind := ClassifyMediaError(lastErr)
	m.metrics.MediaFailed(kind)
	return nil, domain.NewCallError(kind, "acquire media", lastErr)
}

// ProbePermissions performs a throwaway acquisition to trigger the
// permission prompt before a real call. Every track it opens is stopped
// before it returns.
func (m *MediaService) ProbePermissions(ctx context.Context, callType domain.CallType) error {
	stream, err := m.Acquire(ctx, callType)
	if stream != nil {
		defer stream.Stop()
	}
	return err
}

// ClassifyMediaError maps a capture failure onto the error taxonomy. It
// understands the domain sentinels, classified CallErrors and the DOM
// exception names browsers report. Other error text is not interpreted.
func ClassifyMediaError(err error) domain.ErrorKind {
	if err == nil {
		return domain.KindUnknown
	}
	if kind := domain.KindOf(err); kind != domain.KindUnknown {
		return kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.KindUnknown
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "notallowederror", "permissiondeniederror"):
		return domain.KindPermissionDenied
	case containsAny(msg, "notfounderror", "devicesnotfounderror", "overconstrainederror", "constraintnotsatisfiederror"):
		return domain.KindDeviceNotFound
	case containsAny(msg, "notreadableerror", "trackstarterror"):
		return domain.KindDeviceBusy
	case containsAny(msg, "securityerror"):
		return domain.KindSecurityContext
	}
	return domain.KindUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// CheckSecureContext reports whether media capture is expected to work from
// origin. It only warns: acquisition is attempted either way.
func CheckSecureContext(origin string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		log.Warn().Err(err).Str("origin", origin).Msg("Cannot parse origin for secure context check")
		return false
	}

	if isSecureOrigin(u) {
		return true
	}
	log.Warn().Str("origin", origin).Msg("Origin is not a secure context, camera and microphone may be blocked")
	return false
}

func isSecureOrigin(u *url.URL) bool {
	switch u.Scheme {
	case "https", "wss", "file":
		return true
	}

	host := u.Hostname()
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}
