package service

import "github.com/Wyydra/yacall/internal/core/domain"

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) CallStarted(domain.CallType, bool) {}
func (NopMetrics) CallConnected(domain.CallType)     {}
func (NopMetrics) CallEnded(domain.EndReason)        {}
func (NopMetrics) MediaFallback(int)                 {}
func (NopMetrics) MediaFailed(domain.ErrorKind)      {}

func (NopMetrics) SignalIgnored(domain.SignalType, domain.CallStatus) {}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) OnIncomingCall(domain.IncomingCall)        {}
func (NopObserver) OnCallEnded(domain.EndReason)              {}
func (NopObserver) OnStatusChanged(domain.CallStatus)         {}
func (NopObserver) OnRemoteTrack(domain.RemoteTrackInfo, any) {}
func (NopObserver) OnCallError(error)                         {}
