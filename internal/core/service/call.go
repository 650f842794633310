package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	eventBuffer   = 256
	signalTimeout = 5 * time.Second
)

type Options struct {
	ConversationID domain.ConversationID
	Self           domain.Peer
	// RingTimeout bounds how long a call may stay calling or ringing.
	// Zero waits forever.
	RingTimeout time.Duration
	// Origin is the page or service origin, checked for a secure context.
	Origin  string
	Metrics port.CallMetrics
}

type session struct {
	id        domain.SessionID
	status    domain.CallStatus
	callType  domain.CallType
	peer      domain.Peer
	outgoing  bool
	answered  bool
	offer     *domain.SessionDescription
	local     *MediaStream
	remote    []domain.RemoteTrackInfo
	startedAt time.Time
	timer     *time.Timer
}

// CallService drives one call session at a time over the conversation
// channel. Public operations and peer connection events are serialized.
type CallService struct {
	opts     Options
	media    *MediaService
	peers    *PeerManager
	channel  port.SignalChannel
	observer port.CallObserver
	metrics  port.CallMetrics
	log      zerolog.Logger

	mu      sync.Mutex
	session *session
	queue   *IceCandidateQueue
	pending []func()
	stopped bool

	events   chan domain.SessionEvent
	quit     chan struct{}
	stopOnce sync.Once
}

func NewCallService(opts Options, media *MediaService, factory port.PeerFactory, channel port.SignalChannel, observer port.CallObserver) *CallService {
	if observer == nil {
		observer = NopObserver{}
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics{}
	}

	s := &CallService{
		opts:     opts,
		media:    media,
		channel:  channel,
		observer: observer,
		metrics:  opts.Metrics,
		queue:    NewIceCandidateQueue(),
		events:   make(chan domain.SessionEvent, eventBuffer),
		quit:     make(chan struct{}),
		log: log.With().
			Str("conversation_id", opts.ConversationID.String()).
			Str("user_id", opts.Self.ID.String()).
			Logger(),
	}
	s.peers = NewPeerManager(factory, s.post)
	return s
}

// Run processes peer connection events until Stop is called.
func (s *CallService) Run() {
	for {
		select {
		case <-s.quit:
			return
		case ev := <-s.events:
			s.handleEvent(ev)
		}
	}
}

// Stop ends any active call and stops the event loop.
func (s *CallService) Stop() {
	s.stopOnce.Do(func() {
		s.lock()
		s.stopped = true
		s.teardownLocked(context.Background(), domain.EndShutdown, true)
		s.unlock()
		close(s.quit)
	})
}

func (s *CallService) post(ev domain.SessionEvent) {
	select {
	case s.events <- ev:
	case <-s.quit:
	}
}

func (s *CallService) lock() {
	s.mu.Lock()
}

// unlock releases the lock, then delivers the notifications queued under it.
func (s *CallService) unlock() {
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

func (s *CallService) notify(fn func(o port.CallObserver)) {
	o := s.observer
	s.pending = append(s.pending, func() { fn(o) })
}

func (s *CallService) setStatusLocked(st domain.CallStatus) {
	if s.session != nil {
		s.session.status = st
	}
	s.notify(func(o port.CallObserver) { o.OnStatusChanged(st) })
}

func (s *CallService) statusLocked() domain.CallStatus {
	if s.session == nil {
		return domain.StatusIdle
	}
	return s.session.status
}

// StartCall places an outgoing call to peer.
func (s *CallService) StartCall(ctx context.Context, peer domain.Peer, callType domain.CallType) error {
	if _, err := domain.ParseCallType(string(callType)); err != nil {
		return err
	}
	if peer.ID == "" {
		return errors.New("start call: recipient id is required")
	}

	s.lock()
	defer s.unlock()

	if s.stopped {
		return domain.ErrStopped
	}
	if s.session != nil {
		return domain.ErrCallActive
	}

	CheckSecureContext(s.opts.Origin)

	sess := &session{
		id:        domain.NewSessionID(),
		callType:  callType,
		peer:      peer,
		outgoing:  true,
		startedAt: time.Now(),
	}
	s.session = sess
	s.setStatusLocked(domain.StatusCalling)
	s.metrics.CallStarted(callType, true)

	l := s.log.With().Str("session_id", sess.id.String()).Str("peer_id", peer.ID.String()).Logger()
	l.Info().Str("call_type", string(callType)).Msg("Starting call")

	stream, err := s.media.Acquire(ctx, callType)
	if err != nil {
		return s.failLocked("start call", err)
	}
	sess.local = stream

	pc, err := s.preparePeerLocked(stream)
	if err != nil {
		return s.failLocked("start call", err)
	}

	offer, err := pc.CreateOffer(ctx)
	if err != nil {
		return s.failLocked("create offer", signalingError("create offer", err))
	}
	if err := pc.SetLocalDescription(ctx, offer); err != nil {
		return s.failLocked("set local offer", signalingError("set local offer", err))
	}

	sig := domain.NewOfferSignal(s.opts.ConversationID, offer, callType, peer.ID)
	if err := s.channel.SendCallSignal(ctx, sig); err != nil {
		return s.failLocked("send offer", signalingError("send offer", err))
	}

	s.armTimerLocked(sess)
	l.Debug().Msg("Offer sent")
	return nil
}

// AnswerCall accepts the observed incoming offer.
func (s *CallService) AnswerCall(ctx context.Context) error {
	s.lock()
	defer s.unlock()

	sess := s.session
	if sess == nil || sess.status != domain.StatusRinging || sess.offer == nil {
		return domain.ErrNoIncomingCall
	}
	sess.stopTimer()

	l := s.log.With().Str("session_id", sess.id.String()).Str("peer_id", sess.peer.ID.String()).Logger()
	l.Info().Str("call_type", string(sess.callType)).Msg("Answering call")

	stream, err := s.media.Acquire(ctx, sess.callType)
	if err != nil {
		return s.failLocked("answer call", err)
	}
	sess.local = stream

	pc, err := s.preparePeerLocked(stream)
	if err != nil {
		return s.failLocked("answer call", err)
	}

	if err := pc.SetRemoteDescription(ctx, *sess.offer); err != nil {
		return s.failLocked("set remote offer", signalingError("set remote offer", err))
	}
	sess.offer = nil
	s.queue.Drain(pc)

	answer, err := pc.CreateAnswer(ctx)
	if err != nil {
		return s.failLocked("create answer", signalingError("create answer", err))
	}
	if err := pc.SetLocalDescription(ctx, answer); err != nil {
		return s.failLocked("set local answer", signalingError("set local answer", err))
	}

	if err := s.channel.SendCallSignal(ctx, domain.NewAnswerSignal(s.opts.ConversationID, answer)); err != nil {
		return s.failLocked("send answer", signalingError("send answer", err))
	}

	s.setStatusLocked(domain.StatusConnected)
	s.metrics.CallConnected(sess.callType)
	l.Debug().Msg("Answer sent")
	return nil
}

// RejectCall declines or cancels the current session. It does nothing
// when there is no session.
func (s *CallService) RejectCall(ctx context.Context) error {
	s.lock()
	defer s.unlock()

	if s.session == nil {
		return nil
	}
	s.rejectLocked(ctx, domain.EndRejected)
	return nil
}

// EndCall hangs up. It does nothing when there is no session.
func (s *CallService) EndCall(ctx context.Context) error {
	s.lock()
	defer s.unlock()

	s.teardownLocked(ctx, domain.EndLocalHangup, true)
	return nil
}

// ToggleMute flips the enabled flag of the local audio tracks and reports
// whether audio is now muted.
func (s *CallService) ToggleMute() bool {
	s.lock()
	defer s.unlock()

	if s.session == nil || s.session.local == nil {
		return false
	}
	return !toggle(s.session.local.AudioTracks())
}

// ToggleVideo flips the enabled flag of the local video tracks and reports
// whether video is now off.
func (s *CallService) ToggleVideo() bool {
	s.lock()
	defer s.unlock()

	if s.session == nil || s.session.local == nil {
		return false
	}
	return !toggle(s.session.local.VideoTracks())
}

// toggle flips every track and returns the resulting enabled state.
func toggle(tracks []port.LocalTrack) bool {
	if len(tracks) == 0 {
		return true
	}
	enabled := !tracks[0].Enabled()
	for _, t := range tracks {
		t.SetEnabled(enabled)
	}
	return enabled
}

// ProbePermissions asks for device access without starting a call.
func (s *CallService) ProbePermissions(ctx context.Context, callType domain.CallType) error {
	CheckSecureContext(s.opts.Origin)
	return s.media.ProbePermissions(ctx, callType)
}

func (s *CallService) Snapshot() domain.CallSnapshot {
	s.lock()
	defer s.unlock()

	snap := domain.CallSnapshot{
		ConversationID:    s.opts.ConversationID,
		Status:            s.statusLocked(),
		PendingCandidates: s.queue.Len(),
		HasPeerConnection: s.peers.Current() != nil,
	}
	sess := s.session
	if sess == nil {
		return snap
	}

	snap.SessionID = sess.id
	snap.CallType = sess.callType
	snap.Peer = sess.peer
	snap.Outgoing = sess.outgoing
	snap.StartedAt = sess.startedAt
	snap.RemoteTracks = len(sess.remote)
	if sess.local != nil {
		snap.LocalTracks = len(sess.local.Tracks())
		snap.Muted = allDisabled(sess.local.AudioTracks())
		snap.VideoOff = allDisabled(sess.local.VideoTracks())
	}
	return snap
}

func allDisabled(tracks []port.LocalTrack) bool {
	if len(tracks) == 0 {
		return false
	}
	for _, t := range tracks {
		if t.Enabled() {
			return false
		}
	}
	return true
}

// HandleSignal dispatches an inbound envelope from the channel.
func (s *CallService) HandleSignal(ctx context.Context, sig domain.Signal) error {
	if err := sig.Validate(); err != nil {
		s.log.Warn().Err(err).Str("type", string(sig.Type)).Msg("Dropping invalid call signal")
		return err
	}
	if sig.ConversationID != s.opts.ConversationID {
		s.log.Debug().Str("signal_conversation", sig.ConversationID.String()).Msg("Ignoring signal for another conversation")
		return nil
	}
	if s.opts.Self.ID != "" && sig.SenderID == s.opts.Self.ID {
		return nil
	}

	switch sig.Type {
	case domain.SignalOffer:
		return s.handleOffer(sig)
	case domain.SignalAnswer:
		return s.handleAnswer(ctx, sig.SenderID, *sig.Answer)
	case domain.SignalCandidate:
		return s.handleIceCandidate(sig.SenderID, *sig.Candidate)
	case domain.SignalRejected:
		return s.handleRemoteEnd(sig.Type, sig.SenderID, domain.EndRemoteReject)
	case domain.SignalEnded:
		return s.handleRemoteEnd(sig.Type, sig.SenderID, domain.EndRemoteHangup)
	}
	return nil
}

// foreignLocked reports whether a signal from sender belongs to another
// call in the conversation. Unattributed signals are accepted.
func (s *CallService) foreignLocked(t domain.SignalType, sender domain.UserID) bool {
	sess := s.session
	if sess == nil || sender == "" || sess.peer.ID == "" || sender == sess.peer.ID {
		return false
	}
	s.log.Debug().Str("sender_id", sender.String()).Str("peer_id", sess.peer.ID.String()).Msg("Signal is not from the call peer")
	s.ignoredLocked(t)
	return true
}

func (s *CallService) handleOffer(sig domain.Signal) error {
	s.lock()
	defer s.unlock()

	if s.stopped {
		return nil
	}
	if s.opts.Self.ID != "" && sig.RecipientID != s.opts.Self.ID {
		s.log.Debug().Str("recipient_id", sig.RecipientID.String()).Msg("Ignoring offer for another participant")
		return nil
	}
	if s.session != nil {
		s.ignoredLocked(sig.Type)
		return nil
	}

	offer := *sig.Offer
	sess := &session{
		id:        domain.NewSessionID(),
		callType:  sig.CallType,
		peer:      domain.Peer{ID: sig.SenderID, Name: sig.SenderName},
		offer:     &offer,
		startedAt: time.Now(),
	}
	s.session = sess
	s.setStatusLocked(domain.StatusRinging)
	s.metrics.CallStarted(sig.CallType, false)
	s.armTimerLocked(sess)

	s.log.Info().
		Str("session_id", sess.id.String()).
		Str("peer_id", sess.peer.ID.String()).
		Str("call_type", string(sess.callType)).
		Msg("Incoming call")

	incoming := domain.IncomingCall{
		ConversationID: s.opts.ConversationID,
		From:           sess.peer,
		CallType:       sess.callType,
	}
	s.notify(func(o port.CallObserver) { o.OnIncomingCall(incoming) })
	return nil
}

// HandleAnswer applies the callee's answer to an outgoing call. An answer
// outside the calling state is ignored.
func (s *CallService) HandleAnswer(ctx context.Context, answer domain.SessionDescription) error {
	return s.handleAnswer(ctx, "", answer)
}

func (s *CallService) handleAnswer(ctx context.Context, sender domain.UserID, answer domain.SessionDescription) error {
	s.lock()
	defer s.unlock()

	if s.foreignLocked(domain.SignalAnswer, sender) {
		return nil
	}
	pc := s.peers.Current()
	if s.statusLocked() != domain.StatusCalling || pc == nil || s.session.answered {
		s.ignoredLocked(domain.SignalAnswer)
		return nil
	}
	s.session.answered = true
	s.session.stopTimer()

	if err := pc.SetRemoteDescription(ctx, answer); err != nil {
		cerr := signalingError("set remote answer", err)
		s.log.Error().Err(err).Msg("Failed to apply answer")
		s.notify(func(o port.CallObserver) { o.OnCallError(cerr) })
		s.teardownLocked(ctx, domain.EndConnection, true)
		return cerr
	}
	s.queue.Drain(pc)
	return nil
}

// HandleIceCandidate applies a remote candidate, or queues it until the
// remote description is known. Candidates outside a session are dropped.
func (s *CallService) HandleIceCandidate(c domain.ICECandidate) error {
	return s.handleIceCandidate("", c)
}

func (s *CallService) handleIceCandidate(sender domain.UserID, c domain.ICECandidate) error {
	s.lock()
	defer s.unlock()

	if s.session == nil {
		s.ignoredLocked(domain.SignalCandidate)
		return nil
	}
	if s.foreignLocked(domain.SignalCandidate, sender) {
		return nil
	}
	pc := s.peers.Current()
	if pc == nil || !pc.HasRemoteDescription() {
		s.queue.Enqueue(c)
		return nil
	}
	if err := pc.AddICECandidate(c); err != nil {
		s.log.Warn().Err(err).Str("candidate", c.Candidate).Msg("Failed to apply ICE candidate")
	}
	return nil
}

func (s *CallService) handleRemoteEnd(t domain.SignalType, sender domain.UserID, reason domain.EndReason) error {
	s.lock()
	defer s.unlock()

	if s.session == nil {
		s.ignoredLocked(t)
		return nil
	}
	if s.foreignLocked(t, sender) {
		return nil
	}
	s.log.Info().Str("reason", string(reason)).Msg("Call ended by peer")
	s.teardownLocked(context.Background(), reason, false)
	return nil
}

func (s *CallService) handleEvent(ev domain.SessionEvent) {
	s.lock()
	defer s.unlock()

	if s.session == nil || !s.peers.IsCurrent(ev) {
		return
	}

	switch ev.Type {
	case domain.EventIceGenerated:
		ctx, cancel := context.WithTimeout(context.Background(), signalTimeout)
		defer cancel()
		sig := domain.NewCandidateSignal(s.opts.ConversationID, *ev.Candidate)
		if err := s.channel.SendCallSignal(ctx, sig); err != nil {
			s.log.Error().Err(err).Msg("Failed to send ICE candidate")
		}

	case domain.EventRemoteTrackAdded:
		info := *ev.Track
		s.session.remote = append(s.session.remote, info)
		s.log.Debug().Str("kind", string(info.Kind)).Str("track_id", info.ID).Msg("Remote track added")
		handle := ev.Handle
		s.notify(func(o port.CallObserver) { o.OnRemoteTrack(info, handle) })

	case domain.EventConnectionStateChanged:
		s.log.Info().Str("state", string(ev.State)).Msg("Connection state changed")
		switch {
		case ev.State == domain.ConnConnected:
			s.queue.Drain(s.peers.Current())
			if s.session.status != domain.StatusConnected {
				s.session.stopTimer()
				s.setStatusLocked(domain.StatusConnected)
				s.metrics.CallConnected(s.session.callType)
			}
		case ev.State.Terminal():
			cerr := domain.NewCallError(domain.KindConnectionLost, "peer connection", fmt.Errorf("state %s", ev.State))
			s.notify(func(o port.CallObserver) { o.OnCallError(cerr) })
			s.teardownLocked(context.Background(), domain.EndConnection, true)
		}
	}
}

func (s *CallService) preparePeerLocked(stream *MediaStream) (port.PeerConnection, error) {
	pc, err := s.peers.Ensure()
	if err != nil {
		return nil, signalingError("create peer connection", err)
	}
	for _, t := range stream.Tracks() {
		if err := pc.AddTrack(t); err != nil {
			return nil, signalingError("add local track", err)
		}
	}
	return pc, nil
}

// failLocked resets a half-built session back to idle and reports err.
func (s *CallService) failLocked(op string, err error) error {
	var cerr *domain.CallError
	if !errors.As(err, &cerr) {
		cerr = domain.NewCallError(domain.KindUnknown, op, err)
	}
	s.log.Error().Err(err).Str("op", op).Str("kind", string(cerr.Kind)).Msg("Call setup failed")

	if s.session != nil {
		s.metrics.CallEnded(domain.EndFailed)
	}
	s.releaseLocked()
	s.setStatusLocked(domain.StatusIdle)
	s.notify(func(o port.CallObserver) { o.OnCallError(cerr) })
	return cerr
}

// releaseLocked frees every resource of the session and forgets it. Each
// step checks liveness so it can run any number of times.
func (s *CallService) releaseLocked() {
	sess := s.session
	if sess != nil {
		sess.stopTimer()
		if sess.local != nil {
			sess.local.Stop()
			sess.local = nil
		}
		sess.remote = nil
		sess.offer = nil
	}
	s.peers.Close()
	s.queue.Clear()
	s.session = nil
}

func (s *CallService) rejectLocked(ctx context.Context, reason domain.EndReason) {
	if err := s.channel.SendCallSignal(ctx, domain.NewRejectSignal(s.opts.ConversationID)); err != nil {
		s.log.Error().Err(err).Msg("Failed to send call rejection")
	}
	s.teardownLocked(ctx, reason, true)
}

// teardownLocked is the shared end-of-call path.
func (s *CallService) teardownLocked(ctx context.Context, reason domain.EndReason, announce bool) {
	sess := s.session
	if sess == nil {
		return
	}

	s.log.Info().Str("session_id", sess.id.String()).Str("reason", string(reason)).Msg("Ending call")
	s.releaseLocked()

	if announce {
		if err := s.channel.SendCallSignal(ctx, domain.NewEndSignal(s.opts.ConversationID)); err != nil {
			s.log.Error().Err(err).Msg("Failed to send call end")
		}
	}

	s.notify(func(o port.CallObserver) { o.OnStatusChanged(domain.StatusEnded) })
	s.notify(func(o port.CallObserver) { o.OnStatusChanged(domain.StatusIdle) })
	s.notify(func(o port.CallObserver) { o.OnCallEnded(reason) })
	s.metrics.CallEnded(reason)
}

func (s *CallService) ignoredLocked(t domain.SignalType) {
	st := s.statusLocked()
	s.log.Debug().Str("type", string(t)).Str("status", string(st)).Msg("Ignoring call signal")
	s.metrics.SignalIgnored(t, st)
}

func (s *CallService) armTimerLocked(sess *session) {
	if s.opts.RingTimeout <= 0 {
		return
	}
	id := sess.id
	sess.timer = time.AfterFunc(s.opts.RingTimeout, func() { s.ringTimeout(id) })
}

func (s *CallService) ringTimeout(id domain.SessionID) {
	s.lock()
	defer s.unlock()

	sess := s.session
	if sess == nil || sess.id != id {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), signalTimeout)
	defer cancel()

	switch {
	case sess.status == domain.StatusCalling && !sess.answered:
		s.log.Info().Dur("timeout", s.opts.RingTimeout).Msg("Call was not answered in time")
		s.teardownLocked(ctx, domain.EndTimeout, true)
	case sess.status == domain.StatusRinging:
		s.log.Info().Dur("timeout", s.opts.RingTimeout).Msg("Incoming call was not answered in time")
		s.rejectLocked(ctx, domain.EndTimeout)
	}
}

func (sess *session) stopTimer() {
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
}

func signalingError(op string, err error) error {
	var cerr *domain.CallError
	if errors.As(err, &cerr) {
		return err
	}
	return domain.NewCallError(domain.KindSignalingFailure, op, err)
}
