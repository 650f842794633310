// Command callpeer is a headless call participant. It joins a conversation
// on the relay and either places a call or answers the first incoming one.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Wyydra/yacall/internal/adapter/driven/media/synthetic"
	"github.com/Wyydra/yacall/internal/adapter/driven/metrics"
	"github.com/Wyydra/yacall/internal/adapter/driven/peer/pion"
	"github.com/Wyydra/yacall/internal/adapter/driven/signaling"
	"github.com/Wyydra/yacall/internal/config"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/Wyydra/yacall/internal/core/service"
	"github.com/pion/rtp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// openDevices is set by devices.go when built with the devices tag.
var openDevices func() (port.MediaSource, error)

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).With().Timestamp().Caller().Logger()

	cfg, err := config.Load()
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to load config")
	}

	var (
		relayURL = flag.String("relay", cfg.RelayURL, "relay websocket url")
		conv     = flag.String("conversation", cfg.ConversationID, "conversation id")
		userID   = flag.String("user", cfg.UserID, "own user id")
		name     = flag.String("name", cfg.DisplayName, "display name")
		callee   = flag.String("call", "", "user id to call; waits for a call when empty")
		callType = flag.String("type", string(domain.CallVideo), "audio or video")
		duration = flag.Duration("duration", 0, "hang up after this long; 0 stays until interrupted")
		devices  = flag.Bool("devices", false, "capture from real devices")
		loopback = flag.Bool("loopback", false, "gather loopback ICE candidates")
	)
	flag.Parse()

	zerolog.SetGlobalLevel(cfg.LogLevel)
	log.Logger = l

	if *conv == "" {
		l.Fatal().Msg("A conversation id is required")
	}
	if *userID == "" {
		*userID = domain.NewUserID().String()
	}
	ct, err := domain.ParseCallType(*callType)
	if err != nil {
		l.Fatal().Err(err).Msg("Invalid call type")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m, err := metrics.NewPrometheus(reg)
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to register metrics")
	}
	if cfg.MetricsAddr != "" {
		go func() {
			l.Info().Str("addr", cfg.MetricsAddr).Msg("Serving metrics")
			if err := http.ListenAndServe(cfg.MetricsAddr, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})); err != nil {
				l.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	var source port.MediaSource = synthetic.NewSource(synthetic.DefaultDevices())
	if *devices {
		if openDevices == nil {
			l.Fatal().Msg("Built without device support, rebuild with -tags devices")
		}
		if source, err = openDevices(); err != nil {
			l.Fatal().Err(err).Msg("Failed to open capture devices")
		}
	}

	servers := cfg.STUNServers
	if len(servers) == 0 {
		servers = pion.DefaultICEServers
	}
	factory, err := pion.NewFactory(pion.Config{ICEServers: servers, IncludeLoopback: *loopback})
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to create peer factory")
	}

	self := domain.Peer{ID: domain.UserID(*userID), Name: *name}
	url, err := signaling.BuildURL(*relayURL, domain.ConversationID(*conv), self)
	if err != nil {
		l.Fatal().Err(err).Msg("Invalid relay url")
	}
	channel, err := signaling.Dial(ctx, url, domain.ConversationID(*conv))
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to connect to relay")
	}
	defer channel.Close()

	obs := &observer{ctx: ctx, done: make(chan struct{}, 1), autoAnswer: *callee == ""}
	svc := service.NewCallService(service.Options{
		ConversationID: domain.ConversationID(*conv),
		Self:           self,
		RingTimeout:    cfg.RingTimeout,
		Origin:         cfg.Origin,
		Metrics:        m,
	}, service.NewMediaService(source, m), factory, channel, obs)
	obs.svc = svc

	go svc.Run()
	defer svc.Stop()

	go func() {
		if err := channel.Listen(ctx, svc.HandleSignal); err != nil {
			l.Error().Err(err).Msg("Relay connection lost")
		}
		stop()
	}()

	if *callee != "" {
		if err := svc.StartCall(ctx, domain.Peer{ID: domain.UserID(*callee)}, ct); err != nil {
			l.Fatal().Err(err).Str("reason", domain.UserMessage(err)).Msg("Failed to start call")
		}
	}

	var timeout <-chan time.Time
	if *duration > 0 {
		timeout = time.After(*duration)
	}

	select {
	case <-ctx.Done():
	case <-timeout:
		l.Info().Msg("Call duration reached")
	case <-obs.done:
	}

	if err := svc.EndCall(context.Background()); err != nil {
		l.Error().Err(err).Msg("Failed to end call")
	}
	l.Info().Int64("rtp_packets", obs.packets.Load()).Msg("Call peer exited")
}

type observer struct {
	ctx        context.Context
	svc        *service.CallService
	autoAnswer bool
	done       chan struct{}
	packets    atomic.Int64
}

func (o *observer) OnIncomingCall(call domain.IncomingCall) {
	log.Info().Str("from", call.From.ID.String()).Str("name", call.From.Name).Str("call_type", string(call.CallType)).Msg("Incoming call")
	if !o.autoAnswer {
		return
	}
	go func() {
		if err := o.svc.AnswerCall(o.ctx); err != nil {
			log.Error().Err(err).Msg("Failed to answer call")
		}
	}()
}

func (o *observer) OnCallEnded(reason domain.EndReason) {
	log.Info().Str("reason", string(reason)).Msg("Call ended")
	if reason == domain.EndLocalHangup {
		return
	}
	select {
	case o.done <- struct{}{}:
	default:
	}
}

func (o *observer) OnStatusChanged(status domain.CallStatus) {
	log.Info().Str("status", string(status)).Msg("Call status")
}

func (o *observer) OnRemoteTrack(track domain.RemoteTrackInfo, handle any) {
	remote, ok := handle.(*pion.RemoteTrack)
	if !ok {
		return
	}
	go func() {
		err := remote.Consume(o.ctx, func(*rtp.Packet) {
			o.packets.Add(1)
		})
		if err != nil && o.ctx.Err() == nil {
			log.Debug().Err(err).Str("track_id", track.ID).Msg("Remote track stopped")
		}
	}()
}

func (o *observer) OnCallError(err error) {
	log.Error().Err(err).Str("kind", string(domain.KindOf(err))).Msg(domain.UserMessage(err))
}
