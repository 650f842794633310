package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies call failures into the cases the UI can act on.
type ErrorKind string

const (
	KindPermissionDenied ErrorKind = "permission_denied"
	KindDeviceNotFound   ErrorKind = "device_not_found"
	KindDeviceBusy       ErrorKind = "device_busy"
	KindSecurityContext  ErrorKind = "security_context"
	KindSignalingFailure ErrorKind = "signaling_failure"
	KindConnectionLost   ErrorKind = "connection_lost"
	KindUnknown          ErrorKind = "unknown"
)

// Media and negotiation errors, one per kind.
var (
	ErrPermissionDenied = errors.New("camera or microphone permission denied")
	ErrDeviceNotFound   = errors.New("no camera or microphone found")
	ErrDeviceBusy       = errors.New("camera or microphone is in use")
	ErrSecurityContext  = errors.New("media capture requires a secure context")
	ErrSignalingFailure = errors.New("call negotiation failed")
	ErrConnectionLost   = errors.New("call connection lost")
	ErrUnknown          = errors.New("unknown call error")
)

// Session state errors.
var (
	ErrCallActive     = errors.New("a call is already active")
	ErrNoIncomingCall = errors.New("no incoming call to answer")
	ErrNoActiveCall   = errors.New("no active call")
	ErrInvalidSignal  = errors.New("invalid call signal")
	ErrStopped        = errors.New("call service stopped")
)

var kindSentinels = map[ErrorKind]error{
	KindPermissionDenied: ErrPermissionDenied,
	KindDeviceNotFound:   ErrDeviceNotFound,
	KindDeviceBusy:       ErrDeviceBusy,
	KindSecurityContext:  ErrSecurityContext,
	KindSignalingFailure: ErrSignalingFailure,
	KindConnectionLost:   ErrConnectionLost,
	KindUnknown:          ErrUnknown,
}

// Sentinel returns the sentinel error for a kind.
func (k ErrorKind) Sentinel() error {
	if err, ok := kindSentinels[k]; ok {
		return err
	}
	return ErrUnknown
}

// CallError is a classified failure raised at the call session boundary.
type CallError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func NewCallError(kind ErrorKind, op string, err error) *CallError {
	return &CallError{Kind: kind, Op: op, Err: err}
}

func (e *CallError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind.Sentinel())
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrPermissionDenied) match a CallError of that kind.
func (e *CallError) Is(target error) bool {
	return target == e.Kind.Sentinel()
}

// KindOf returns the kind of a classified error, or KindUnknown.
func KindOf(err error) ErrorKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// UserMessage turns an error into text the UI can show as is.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrCallActive):
		return "You are already in a call."
	case errors.Is(err, ErrNoIncomingCall):
		return "The call is no longer available."
	}

	switch KindOf(err) {
	case KindPermissionDenied:
		return "Allow camera and microphone access in your browser settings, then try again."
	case KindDeviceNotFound:
		return "No camera or microphone was found. Connect a device and try again."
	case KindDeviceBusy:
		return "Your camera or microphone is being used by another application."
	case KindSecurityContext:
		return "Calls need a secure (https) connection."
	case KindSignalingFailure:
		return "The call could not be set up. Please try again."
	case KindConnectionLost:
		return "The call connection was lost."
	}
	return "Something went wrong with the call."
}
