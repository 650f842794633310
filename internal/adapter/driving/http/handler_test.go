package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Wyydra/yacall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yacall/internal/adapter/driven/signaling"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRelay(t *testing.T) (*httptest.Server, *ws.Hub) {
	t.Helper()
	hub := ws.NewHub()
	go hub.Run()

	srv := httptest.NewServer(NewHandler(hub, prometheus.NewRegistry()).NewRouter())
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return srv, hub
}

type member struct {
	channel *signaling.Channel
	signals chan domain.Signal
}

func join(t *testing.T, srv *httptest.Server, conv domain.ConversationID, self domain.Peer) *member {
	t.Helper()

	url, err := signaling.BuildURL(srv.URL, conv, self)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	channel, err := signaling.Dial(ctx, url, conv)
	require.NoError(t, err)

	m := &member{channel: channel, signals: make(chan domain.Signal, 16)}
	listenCtx, stop := context.WithCancel(context.Background())
	go func() {
		_ = channel.Listen(listenCtx, func(_ context.Context, sig domain.Signal) error {
			m.signals <- sig
			return nil
		})
	}()
	t.Cleanup(func() {
		stop()
		channel.Close()
	})
	return m
}

func (m *member) next(t *testing.T) domain.Signal {
	t.Helper()
	select {
	case sig := <-m.signals:
		return sig
	case <-time.After(2 * time.Second):
		t.Fatal("no signal received")
		return domain.Signal{}
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newRelay(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newRelay(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServeWSRequiresConversation(t *testing.T) {
	srv, _ := newRelay(t)

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRelayBetweenMembers(t *testing.T) {
	srv, hub := newRelay(t)
	conv := domain.ConversationID("conv-1")

	alice := join(t, srv, conv, domain.Peer{ID: "alice", Name: "Alice"})
	bob := join(t, srv, conv, domain.Peer{ID: "bob", Name: "Bob"})
	require.Eventually(t, func() bool { return hub.Members(conv) == 2 }, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	offer := domain.NewOfferSignal(conv, domain.SessionDescription{Type: domain.SDPOffer, SDP: "v=0"}, domain.CallVideo, "bob")
	require.NoError(t, alice.channel.SendCallSignal(ctx, offer))

	got := bob.next(t)
	assert.Equal(t, domain.SignalOffer, got.Type)
	assert.Equal(t, conv, got.ConversationID)
	assert.Equal(t, domain.UserID("alice"), got.SenderID)
	assert.Equal(t, "Alice", got.SenderName)
	assert.Equal(t, domain.CallVideo, got.CallType)
	require.NotNil(t, got.Offer)
	assert.Equal(t, "v=0", got.Offer.SDP)

	require.NoError(t, bob.channel.SendCallSignal(ctx, domain.NewRejectSignal(conv)))
	got = alice.next(t)
	assert.Equal(t, domain.SignalRejected, got.Type)
	assert.Equal(t, domain.UserID("bob"), got.SenderID)
}

func TestRelayDropsInvalidSignals(t *testing.T) {
	srv, hub := newRelay(t)
	conv := domain.ConversationID("conv-1")

	alice := join(t, srv, conv, domain.Peer{ID: "alice"})
	bob := join(t, srv, conv, domain.Peer{ID: "bob"})
	require.Eventually(t, func() bool { return hub.Members(conv) == 2 }, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, alice.channel.SendCallSignal(ctx, domain.Signal{ConversationID: conv, Type: domain.SignalAnswer}))
	require.NoError(t, alice.channel.SendCallSignal(ctx, domain.NewEndSignal(conv)))

	// only the valid one arrives
	assert.Equal(t, domain.SignalEnded, bob.next(t).Type)
	select {
	case sig := <-bob.signals:
		t.Fatalf("unexpected signal %s", sig.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRelayIsolatesConversations(t *testing.T) {
	srv, hub := newRelay(t)

	alice := join(t, srv, "conv-1", domain.Peer{ID: "alice"})
	eve := join(t, srv, "conv-2", domain.Peer{ID: "eve"})
	bob := join(t, srv, "conv-1", domain.Peer{ID: "bob"})
	require.Eventually(t, func() bool {
		return hub.Members("conv-1") == 2 && hub.Members("conv-2") == 1
	}, 2*time.Second, 10*time.Millisecond)

	// the relay stamps the sender's conversation, whatever the payload says
	require.NoError(t, alice.channel.SendCallSignal(context.Background(), domain.NewEndSignal("conv-2")))

	got := bob.next(t)
	assert.Equal(t, domain.ConversationID("conv-1"), got.ConversationID)
	select {
	case sig := <-eve.signals:
		t.Fatalf("signal leaked across conversations: %s", sig.Type)
	case <-time.After(100 * time.Millisecond):
	}
}
