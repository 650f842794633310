package port

import "github.com/Wyydra/yacall/internal/core/domain"

// CallObserver is implemented by the embedding UI. Methods are invoked
// outside the call service lock and may call back into the service.
type CallObserver interface {
	OnIncomingCall(call domain.IncomingCall)
	OnCallEnded(reason domain.EndReason)
	OnStatusChanged(status domain.CallStatus)
	OnRemoteTrack(track domain.RemoteTrackInfo, handle any)
	OnCallError(err error)
}

type CallMetrics interface {
	CallStarted(t domain.CallType, outgoing bool)
	CallConnected(t domain.CallType)
	CallEnded(reason domain.EndReason)
	MediaFallback(tier int)
	MediaFailed(kind domain.ErrorKind)
	SignalIgnored(t domain.SignalType, status domain.CallStatus)
}
