package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/looplab/fsm"
)

type CallState string

const (
	StateNegotiating CallState = "negotiating"
	StateActive      CallState = "active"
	StateTerminating CallState = "terminating"
	StateClosed      CallState = "closed"
)

func (s CallState) String() string {
	return string(s)
}

func (s CallState) IsTerminal() bool {
	return s == StateClosed
}

// Transition events fired against a session's state machine.
const (
	EventActivate  = "activate"
	EventTerminate = "terminate"
	EventClose     = "close"
)

// No state is re-entered; closed has no outgoing edge.
var callEvents = fsm.Events{
	{Name: EventActivate, Src: []string{string(StateNegotiating)}, Dst: string(StateActive)},
	{Name: EventTerminate, Src: []string{string(StateNegotiating), string(StateActive)}, Dst: string(StateTerminating)},
	{Name: EventClose, Src: []string{string(StateNegotiating), string(StateActive), string(StateTerminating)}, Dst: string(StateClosed)},
}

// CallSession is one bridged call, keyed by the platform call id.
type CallSession struct {
	CallID        string
	Ref           SessionRef
	EdgeSessionID string
	State         CallState
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewCallSession(callID string) (*CallSession, error) {
	if callID == "" {
		return nil, fmt.Errorf("%w: call id is required", ErrMalformedEvent)
	}
	now := time.Now().UTC()
	return &CallSession{
		CallID:    callID,
		Ref:       NewSessionRef(),
		State:     StateNegotiating,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Transition applies event to the session. The machine is rebuilt from the
// stored state so a session read back from any store behaves the same.
func (s *CallSession) Transition(ctx context.Context, event string) error {
	m := fsm.NewFSM(string(s.State), callEvents, fsm.Callbacks{})
	if err := m.Event(ctx, event); err != nil {
		return fmt.Errorf("%w: %s from %s: %v", ErrInvalidTransition, event, s.State, err)
	}
	s.State = CallState(m.Current())
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Can reports whether event is allowed from the current state.
func (s *CallSession) Can(event string) bool {
	return fsm.NewFSM(string(s.State), callEvents, fsm.Callbacks{}).Can(event)
}

func (s *CallSession) Clone() *CallSession {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Negotiation is the edge's answer to an offer.
type Negotiation struct {
	EdgeSessionID string
	SDPAnswer     string
}
