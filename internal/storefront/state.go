package storefront

import (
	"github.com/google/uuid"

	"xpstore/internal/catalog"
)

type MessageKind string

const (
	KindSuccess MessageKind = "success"
	KindError   MessageKind = "error"
)

// Message is the result line shown inside the confirmation modal.
type Message struct {
	Kind MessageKind `json:"kind"`
	Text string      `json:"text"`
}

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSelected   Phase = "selected"
	PhaseConfirming Phase = "confirming"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// State is one step of a purchase flow. Every state except Idle carries the
// selected offering, so an open modal always has something to show.
type State interface {
	Phase() Phase
	isState()
}

type Idle struct{}

type Selected struct {
	Offering catalog.Offering
}

// Confirming is the only state with a request in flight.
type Confirming struct {
	Offering catalog.Offering
	flow     uuid.UUID
}

type Succeeded struct {
	Offering catalog.Offering
	Message  Message
}

type Failed struct {
	Offering catalog.Offering
	Message  Message
}

func (Idle) Phase() Phase       { return PhaseIdle }
func (Selected) Phase() Phase   { return PhaseSelected }
func (Confirming) Phase() Phase { return PhaseConfirming }
func (Succeeded) Phase() Phase  { return PhaseSucceeded }
func (Failed) Phase() Phase     { return PhaseFailed }

func (Idle) isState()       {}
func (Selected) isState()   {}
func (Confirming) isState() {}
func (Succeeded) isState()  {}
func (Failed) isState()     {}

// Selection returns the offering of an open modal.
func Selection(s State) (catalog.Offering, bool) {
	switch s := s.(type) {
	case Selected:
		return s.Offering, true
	case Confirming:
		return s.Offering, true
	case Succeeded:
		return s.Offering, true
	case Failed:
		return s.Offering, true
	}
	return catalog.Offering{}, false
}

// Result returns the message of a finished submission.
func Result(s State) (Message, bool) {
	switch s := s.(type) {
	case Succeeded:
		return s.Message, true
	case Failed:
		return s.Message, true
	}
	return Message{}, false
}

func InFlight(s State) bool {
	_, ok := s.(Confirming)
	return ok
}
