package pion

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Wyydra/yacall/internal/adapter/driven/media/synthetic"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/service"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const conv = domain.ConversationID("loopback")

// pipe delivers signals to the other service asynchronously, like a relay.
type pipe struct {
	from domain.Peer
	to   *service.CallService
	ch   chan domain.Signal
}

func newPipe(from domain.Peer) *pipe {
	return &pipe{from: from, ch: make(chan domain.Signal, 128)}
}

func (p *pipe) SendCallSignal(ctx context.Context, sig domain.Signal) error {
	sig.SenderID = p.from.ID
	sig.SenderName = p.from.Name
	select {
	case p.ch <- sig:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipe) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-p.ch:
			_ = p.to.HandleSignal(ctx, sig)
		}
	}
}

type peerObserver struct {
	service.NopObserver
	ctx        context.Context
	svc        *service.CallService
	autoAnswer bool

	mu      sync.Mutex
	ended   []domain.EndReason
	tracks  []domain.RemoteTrackInfo
	packets atomic.Int64
}

func (o *peerObserver) OnIncomingCall(domain.IncomingCall) {
	if o.autoAnswer {
		go func() { _ = o.svc.AnswerCall(o.ctx) }()
	}
}

func (o *peerObserver) OnCallEnded(reason domain.EndReason) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended = append(o.ended, reason)
}

func (o *peerObserver) OnRemoteTrack(info domain.RemoteTrackInfo, handle any) {
	o.mu.Lock()
	o.tracks = append(o.tracks, info)
	o.mu.Unlock()

	remote, ok := handle.(*RemoteTrack)
	if !ok {
		return
	}
	go func() {
		_ = remote.Consume(o.ctx, func(*rtp.Packet) { o.packets.Add(1) })
	}()
}

func (o *peerObserver) Tracks() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.tracks)
}

func (o *peerObserver) Ended() []domain.EndReason {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.EndReason(nil), o.ended...)
}

func newPeer(t *testing.T, ctx context.Context, self domain.Peer, channel *pipe, autoAnswer bool) (*service.CallService, *peerObserver) {
	t.Helper()

	factory, err := NewFactory(Config{IncludeLoopback: true})
	require.NoError(t, err)

	obs := &peerObserver{ctx: ctx, autoAnswer: autoAnswer}
	media := service.NewMediaService(synthetic.NewSource(synthetic.DefaultDevices()), nil)
	svc := service.NewCallService(service.Options{ConversationID: conv, Self: self}, media, factory, channel, obs)
	obs.svc = svc

	go svc.Run()
	t.Cleanup(svc.Stop)
	return svc, obs
}

func TestLoopbackCall(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real peer connections")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := domain.Peer{ID: "alice", Name: "Alice"}
	bob := domain.Peer{ID: "bob", Name: "Bob"}
	toBob, toAlice := newPipe(alice), newPipe(bob)

	aliceSvc, aliceObs := newPeer(t, ctx, alice, toBob, false)
	bobSvc, bobObs := newPeer(t, ctx, bob, toAlice, true)
	toBob.to, toAlice.to = bobSvc, aliceSvc
	go toBob.run(ctx)
	go toAlice.run(ctx)

	require.NoError(t, aliceSvc.StartCall(ctx, bob, domain.CallVideo))

	require.Eventually(t, func() bool {
		return aliceSvc.Snapshot().Status == domain.StatusConnected &&
			bobSvc.Snapshot().Status == domain.StatusConnected
	}, 15*time.Second, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		return aliceObs.Tracks() == 2 && bobObs.Tracks() == 2
	}, 15*time.Second, 50*time.Millisecond)
	require.Eventually(t, func() bool {
		return aliceObs.packets.Load() > 0 && bobObs.packets.Load() > 0
	}, 10*time.Second, 50*time.Millisecond)

	snap := aliceSvc.Snapshot()
	assert.Equal(t, 2, snap.LocalTracks)
	assert.Equal(t, 2, snap.RemoteTracks)
	assert.Zero(t, snap.PendingCandidates)

	require.NoError(t, aliceSvc.EndCall(ctx))

	require.Eventually(t, func() bool {
		return len(bobObs.Ended()) == 1
	}, 5*time.Second, 20*time.Millisecond)
	// the hangup signal usually beats the DTLS close, but either ends the call once
	assert.Contains(t, []domain.EndReason{domain.EndRemoteHangup, domain.EndConnection}, bobObs.Ended()[0])
	assert.Equal(t, []domain.EndReason{domain.EndLocalHangup}, aliceObs.Ended())
	assert.Equal(t, domain.StatusIdle, bobSvc.Snapshot().Status)
}

func TestAddTrackRejectsForeignTrack(t *testing.T) {
	factory, err := NewFactory(Config{})
	require.NoError(t, err)

	pc, err := factory.NewPeerConnection(func(domain.SessionEvent) {})
	require.NoError(t, err)
	defer pc.Close()

	assert.ErrorIs(t, pc.AddTrack(foreignTrack{}), ErrUnsupportedTrack)
}

func TestOfferAnswerDescriptions(t *testing.T) {
	factory, err := NewFactory(Config{})
	require.NoError(t, err)
	ctx := context.Background()

	source := synthetic.NewSource(synthetic.DefaultDevices())
	tracks, err := source.Open(ctx, domain.MinimalConstraints(domain.CallAudio))
	require.NoError(t, err)
	defer tracks[0].Stop()

	caller, err := factory.NewPeerConnection(func(domain.SessionEvent) {})
	require.NoError(t, err)
	defer caller.Close()
	callee, err := factory.NewPeerConnection(func(domain.SessionEvent) {})
	require.NoError(t, err)
	defer callee.Close()

	require.NoError(t, caller.AddTrack(tracks[0]))
	offer, err := caller.CreateOffer(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SDPOffer, offer.Type)
	require.NoError(t, caller.SetLocalDescription(ctx, offer))

	assert.False(t, callee.HasRemoteDescription())
	require.NoError(t, callee.SetRemoteDescription(ctx, offer))
	assert.True(t, callee.HasRemoteDescription())

	answer, err := callee.CreateAnswer(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SDPAnswer, answer.Type)
	require.NoError(t, callee.SetLocalDescription(ctx, answer))
	require.NoError(t, caller.SetRemoteDescription(ctx, answer))
	assert.True(t, caller.HasRemoteDescription())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = caller.CreateOffer(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConnectionStateMapping(t *testing.T) {
	factory, err := NewFactory(Config{})
	require.NoError(t, err)
	pc, err := factory.NewPeerConnection(func(domain.SessionEvent) {})
	require.NoError(t, err)

	assert.Equal(t, domain.ConnNew, pc.ConnectionState())
	require.NoError(t, pc.Close())
	assert.Equal(t, domain.ConnClosed, pc.ConnectionState())
}

type foreignTrack struct{}

func (foreignTrack) ID() string                    { return "foreign" }
func (foreignTrack) Kind() domain.MediaKind        { return domain.KindAudio }
func (foreignTrack) Enabled() bool                 { return true }
func (foreignTrack) SetEnabled(bool)               {}
func (foreignTrack) ReadyState() domain.TrackState { return domain.TrackLive }
func (foreignTrack) Stop()                         {}
