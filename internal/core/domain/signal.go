package domain

import (
	"fmt"
)

type SignalType string

const (
	SignalOffer     SignalType = "call-offer"
	SignalAnswer    SignalType = "call-answer"
	SignalCandidate SignalType = "ice-candidate"
	SignalRejected  SignalType = "call-rejected"
	SignalEnded     SignalType = "call-ended"
)

func (t SignalType) Known() bool {
	switch t {
	case SignalOffer, SignalAnswer, SignalCandidate, SignalRejected, SignalEnded:
		return true
	}
	return false
}

type SDPType string

const (
	SDPOffer  SDPType = "offer"
	SDPAnswer SDPType = "answer"
)

// SessionDescription has the shape of a browser RTCSessionDescriptionInit.
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

// ICECandidate has the shape of a browser RTCIceCandidateInit.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Signal is one call signaling envelope exchanged over the conversation
// channel. Only the payload field matching Type is set.
type Signal struct {
	ConversationID ConversationID `json:"conversation_id"`
	Type           SignalType     `json:"type"`

	Offer       *SessionDescription `json:"offer,omitempty"`
	CallType    CallType            `json:"callType,omitempty"`
	RecipientID UserID              `json:"recipientId,omitempty"`
	Answer      *SessionDescription `json:"answer,omitempty"`
	Candidate   *ICECandidate       `json:"candidate,omitempty"`

	// Stamped by the channel on delivery.
	SenderID   UserID `json:"senderId,omitempty"`
	SenderName string `json:"senderName,omitempty"`
}

func NewOfferSignal(conv ConversationID, offer SessionDescription, callType CallType, recipient UserID) Signal {
	return Signal{
		ConversationID: conv,
		Type:           SignalOffer,
		Offer:          &offer,
		CallType:       callType,
		RecipientID:    recipient,
	}
}

func NewAnswerSignal(conv ConversationID, answer SessionDescription) Signal {
	return Signal{
		ConversationID: conv,
		Type:           SignalAnswer,
		Answer:         &answer,
	}
}

func NewCandidateSignal(conv ConversationID, candidate ICECandidate) Signal {
	return Signal{
		ConversationID: conv,
		Type:           SignalCandidate,
		Candidate:      &candidate,
	}
}

func NewRejectSignal(conv ConversationID) Signal {
	return Signal{ConversationID: conv, Type: SignalRejected}
}

func NewEndSignal(conv ConversationID) Signal {
	return Signal{ConversationID: conv, Type: SignalEnded}
}

// Validate checks the discriminant and that the payload matches it.
func (s Signal) Validate() error {
	if s.ConversationID == "" {
		return fmt.Errorf("%w: missing conversation_id", ErrInvalidSignal)
	}

	switch s.Type {
	case SignalOffer:
		if s.Offer == nil || s.Offer.SDP == "" {
			return fmt.Errorf("%w: call-offer without offer", ErrInvalidSignal)
		}
		if s.Offer.Type != SDPOffer {
			return fmt.Errorf("%w: call-offer carries sdp type %q", ErrInvalidSignal, s.Offer.Type)
		}
		if _, err := ParseCallType(string(s.CallType)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignal, err)
		}
		if s.RecipientID == "" {
			return fmt.Errorf("%w: call-offer without recipientId", ErrInvalidSignal)
		}
	case SignalAnswer:
		if s.Answer == nil || s.Answer.SDP == "" {
			return fmt.Errorf("%w: call-answer without answer", ErrInvalidSignal)
		}
		if s.Answer.Type != SDPAnswer {
			return fmt.Errorf("%w: call-answer carries sdp type %q", ErrInvalidSignal, s.Answer.Type)
		}
	case SignalCandidate:
		if s.Candidate == nil {
			return fmt.Errorf("%w: ice-candidate without candidate", ErrInvalidSignal)
		}
	case SignalRejected, SignalEnded:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSignal, s.Type)
	}
	return nil
}
