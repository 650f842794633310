// Package pion implements the peer connection port on top of pion/webrtc.
package pion

import (
	"context"
	"errors"
	"fmt"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// DefaultICEServers are public STUN servers used when none are configured.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:global.stun.twilio.com:3478",
}

var ErrUnsupportedTrack = errors.New("track cannot be attached to a pion peer connection")

// trackLocalProvider is implemented by local.Track.
type trackLocalProvider interface {
	TrackLocal() webrtc.TrackLocal
}

type Config struct {
	ICEServers []string
	// IncludeLoopback gathers 127.0.0.1 candidates, for same-host peers.
	IncludeLoopback bool
}

// Factory builds pion peer connections sharing one API instance.
type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

func NewFactory(cfg Config) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("pion: register codecs: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.LoggerFactory = NewLoggerFactory(log.Logger)
	if cfg.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}

	var servers []webrtc.ICEServer
	if len(cfg.ICEServers) > 0 {
		servers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	return &Factory{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se)),
		config: webrtc.Configuration{ICEServers: servers},
	}, nil
}

func (f *Factory) NewPeerConnection(sink port.EventSink) (port.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("pion: new peer connection: %w", err)
	}

	p := &PeerConnection{pc: pc}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if c == nil {
			return
		}
		sink(domain.IceGenerated(fromCandidateInit(c.ToJSON())))
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := domain.KindAudio
		if remote.Kind() == webrtc.RTPCodecTypeVideo {
			kind = domain.KindVideo
			// ask for a keyframe so the first frames can be decoded
			if err := pc.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: uint32(remote.SSRC())},
			}); err != nil {
				log.Debug().Err(err).Msg("Failed to send PLI")
			}
		}
		log.Debug().Str("kind", string(kind)).Str("codec", remote.Codec().MimeType).Msg("Received remote track")

		info := domain.RemoteTrackInfo{ID: remote.ID(), StreamID: remote.StreamID(), Kind: kind}
		sink(domain.RemoteTrackAdded(info, &RemoteTrack{TrackRemote: remote}))
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		sink(domain.ConnectionStateChanged(fromConnectionState(s)))
	})

	return p, nil
}

// PeerConnection adapts *webrtc.PeerConnection to port.PeerConnection.
type PeerConnection struct {
	pc *webrtc.PeerConnection
}

func (p *PeerConnection) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return domain.SessionDescription{}, err
	}
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return fromSessionDescription(offer), nil
}

func (p *PeerConnection) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return domain.SessionDescription{}, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return fromSessionDescription(answer), nil
}

func (p *PeerConnection) SetLocalDescription(ctx context.Context, sd domain.SessionDescription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.pc.SetLocalDescription(toSessionDescription(sd))
}

func (p *PeerConnection) SetRemoteDescription(ctx context.Context, sd domain.SessionDescription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.pc.SetRemoteDescription(toSessionDescription(sd))
}

func (p *PeerConnection) HasRemoteDescription() bool {
	return p.pc.RemoteDescription() != nil
}

func (p *PeerConnection) AddICECandidate(c domain.ICECandidate) error {
	return p.pc.AddICECandidate(toCandidateInit(c))
}

func (p *PeerConnection) AddTrack(t port.LocalTrack) error {
	provider, ok := t.(trackLocalProvider)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedTrack, t)
	}

	sender, err := p.pc.AddTrack(provider.TrackLocal())
	if err != nil {
		return err
	}

	// RTCP has to be read for interceptors to run
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (p *PeerConnection) ConnectionState() domain.ConnectionState {
	return fromConnectionState(p.pc.ConnectionState())
}

func (p *PeerConnection) Close() error {
	return p.pc.Close()
}

func fromConnectionState(s webrtc.PeerConnectionState) domain.ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return domain.ConnConnecting
	case webrtc.PeerConnectionStateConnected:
		return domain.ConnConnected
	case webrtc.PeerConnectionStateDisconnected:
		return domain.ConnDisconnected
	case webrtc.PeerConnectionStateFailed:
		return domain.ConnFailed
	case webrtc.PeerConnectionStateClosed:
		return domain.ConnClosed
	}
	return domain.ConnNew
}

func fromSessionDescription(sd webrtc.SessionDescription) domain.SessionDescription {
	return domain.SessionDescription{Type: domain.SDPType(sd.Type.String()), SDP: sd.SDP}
}

func toSessionDescription(sd domain.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(string(sd.Type)), SDP: sd.SDP}
}

func fromCandidateInit(c webrtc.ICECandidateInit) domain.ICECandidate {
	return domain.ICECandidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func toCandidateInit(c domain.ICECandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
