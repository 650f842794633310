package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

type fakeTrack struct {
	mu      sync.Mutex
	id      string
	kind    domain.MediaKind
	enabled bool
	state   domain.TrackState
	stops   int
}

func newFakeTrack(id string, kind domain.MediaKind) *fakeTrack {
	return &fakeTrack{id: id, kind: kind, enabled: true, state: domain.TrackLive}
}

func (t *fakeTrack) ID() string             { return t.id }
func (t *fakeTrack) Kind() domain.MediaKind { return t.kind }

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *fakeTrack) ReadyState() domain.TrackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
	t.state = domain.TrackEnded
}

func (t *fakeTrack) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

// fakeSource fails with errs[i] on the i-th Open while errs lasts, then
// succeeds.
type fakeSource struct {
	mu       sync.Mutex
	errs     []error
	calls    []domain.Constraints
	opened   [][]*fakeTrack
	lastOpen []*fakeTrack
}

func (s *fakeSource) Open(ctx context.Context, c domain.Constraints) ([]port.LocalTrack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := len(s.calls)
	s.calls = append(s.calls, c)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}

	var created []*fakeTrack
	if c.WantsAudio() {
		created = append(created, newFakeTrack(fmt.Sprintf("audio-%d", i), domain.KindAudio))
	}
	if c.WantsVideo() {
		created = append(created, newFakeTrack(fmt.Sprintf("video-%d", i), domain.KindVideo))
	}
	s.opened = append(s.opened, created)
	s.lastOpen = created

	tracks := make([]port.LocalTrack, 0, len(created))
	for _, t := range created {
		tracks = append(tracks, t)
	}
	return tracks, nil
}

func (s *fakeSource) Calls() []domain.Constraints {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Constraints(nil), s.calls...)
}

func (s *fakeSource) LastTracks() []*fakeTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOpen
}

// alwaysFail returns errs that make every tier fail with err.
func alwaysFail(err error) []error {
	return []error{err, err}
}

type fakePeer struct {
	mu         sync.Mutex
	sink       port.EventSink
	remote     *domain.SessionDescription
	local      *domain.SessionDescription
	candidates []domain.ICECandidate
	tracks     []port.LocalTrack
	closed     int
	remoteSets int

	failRemote   error
	failCreate   error
	failAddTrack error
	failCand     map[string]error
}

func (p *fakePeer) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	if p.failCreate != nil {
		return domain.SessionDescription{}, p.failCreate
	}
	return domain.SessionDescription{Type: domain.SDPOffer, SDP: "v=0 offer"}, nil
}

func (p *fakePeer) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	if p.failCreate != nil {
		return domain.SessionDescription{}, p.failCreate
	}
	return domain.SessionDescription{Type: domain.SDPAnswer, SDP: "v=0 answer"}, nil
}

func (p *fakePeer) SetLocalDescription(ctx context.Context, sd domain.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = &sd
	return nil
}

func (p *fakePeer) SetRemoteDescription(ctx context.Context, sd domain.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remoteSets++
	if p.failRemote != nil {
		return p.failRemote
	}
	p.remote = &sd
	return nil
}

func (p *fakePeer) HasRemoteDescription() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote != nil
}

func (p *fakePeer) AddICECandidate(c domain.ICECandidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failCand[c.Candidate]; err != nil {
		return err
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) AddTrack(t port.LocalTrack) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAddTrack != nil {
		return p.failAddTrack
	}
	p.tracks = append(p.tracks, t)
	return nil
}

func (p *fakePeer) ConnectionState() domain.ConnectionState {
	return domain.ConnNew
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePeer) Candidates() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, c := range p.candidates {
		out = append(out, c.Candidate)
	}
	return out
}

func (p *fakePeer) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) RemoteSets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteSets
}

func (p *fakePeer) Tracks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tracks)
}

// emit raises an event as the real connection would, from its own goroutine.
func (p *fakePeer) emit(ev domain.SessionEvent) {
	p.sink(ev)
}

type fakeFactory struct {
	mu    sync.Mutex
	peers []*fakePeer
	err   error
	// configure runs on every new peer before it is returned.
	configure func(p *fakePeer)
}

func (f *fakeFactory) NewPeerConnection(sink port.EventSink) (port.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePeer{sink: sink}
	if f.configure != nil {
		f.configure(p)
	}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakeFactory) Last() *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.peers) == 0 {
		return nil
	}
	return f.peers[len(f.peers)-1]
}

func (f *fakeFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

type recordingChannel struct {
	mu      sync.Mutex
	signals []domain.Signal
	err     error
}

func (c *recordingChannel) SendCallSignal(ctx context.Context, sig domain.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.signals = append(c.signals, sig)
	return nil
}

func (c *recordingChannel) Types() []domain.SignalType {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.SignalType
	for _, s := range c.signals {
		out = append(out, s.Type)
	}
	return out
}

func (c *recordingChannel) Last() domain.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.signals) == 0 {
		return domain.Signal{}
	}
	return c.signals[len(c.signals)-1]
}

func (c *recordingChannel) Count(t domain.SignalType) int {
	n := 0
	for _, st := range c.Types() {
		if st == t {
			n++
		}
	}
	return n
}

type recordingObserver struct {
	mu       sync.Mutex
	incoming []domain.IncomingCall
	ended    []domain.EndReason
	statuses []domain.CallStatus
	remote   []domain.RemoteTrackInfo
	errs     []error
}

func (o *recordingObserver) OnIncomingCall(call domain.IncomingCall) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.incoming = append(o.incoming, call)
}

func (o *recordingObserver) OnCallEnded(reason domain.EndReason) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended = append(o.ended, reason)
}

func (o *recordingObserver) OnStatusChanged(status domain.CallStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func (o *recordingObserver) OnRemoteTrack(track domain.RemoteTrackInfo, handle any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.remote = append(o.remote, track)
}

func (o *recordingObserver) OnCallError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

func (o *recordingObserver) Ended() []domain.EndReason {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.EndReason(nil), o.ended...)
}

func (o *recordingObserver) Statuses() []domain.CallStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.CallStatus(nil), o.statuses...)
}

func (o *recordingObserver) Errors() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.errs...)
}

func (o *recordingObserver) Incoming() []domain.IncomingCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.IncomingCall(nil), o.incoming...)
}

func (o *recordingObserver) Remote() []domain.RemoteTrackInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.RemoteTrackInfo(nil), o.remote...)
}

type countingMetrics struct {
	NopMetrics
	mu        sync.Mutex
	fallbacks []int
	failures  []domain.ErrorKind
	ignored   []domain.SignalType
}

func (m *countingMetrics) MediaFallback(tier int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks = append(m.fallbacks, tier)
}

func (m *countingMetrics) MediaFailed(kind domain.ErrorKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, kind)
}

func (m *countingMetrics) SignalIgnored(t domain.SignalType, _ domain.CallStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ignored = append(m.ignored, t)
}

var errBoom = errors.New("boom")
