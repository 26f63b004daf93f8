package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Wyydra/callbridge/internal/core/domain"
	"github.com/Wyydra/callbridge/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CallService drives the connect and terminate flows of bridged calls. It is
// the only writer of the registry.
//
// Concurrent flows for the same call id never hold a lock across a network
// round trip. Instead every step re-checks the session through an atomic
// registry update: the flow that moves a session to terminating owns the edge
// hangup, and the flow that moves it to closed owns the removal.
type CallService struct {
	sessions port.CallRegistry
	edge     port.EdgeAPI
	platform port.PlatformAPI
	events   port.EventPublisher
}

// events may be nil.
func NewCallService(sessions port.CallRegistry, edge port.EdgeAPI, platform port.PlatformAPI, events port.EventPublisher) *CallService {
	return &CallService{
		sessions: sessions,
		edge:     edge,
		platform: platform,
		events:   events,
	}
}

// Connect negotiates media with the edge for a new inbound call and then
// pre-accepts and accepts it on the platform, in that order. On any failure
// after the session was registered, compensating cleanup runs before the
// error is returned.
func (s *CallService) Connect(ctx context.Context, callID, sdpOffer string) (*domain.CallSession, error) {
	if callID == "" {
		return nil, fmt.Errorf("%w: call id is required", domain.ErrMalformedEvent)
	}
	if strings.TrimSpace(sdpOffer) == "" {
		return nil, fmt.Errorf("%w: sdp offer is required", domain.ErrMalformedEvent)
	}

	l := log.With().Str("call_id", callID).Logger()

	sess, err := s.sessions.Create(ctx, callID)
	if err != nil {
		l.Warn().Err(err).Msg("Rejecting connect")
		return nil, err
	}
	ref := sess.Ref
	s.publish(ctx, sess, "connect")

	neg, err := s.edge.Negotiate(ctx, callID, sdpOffer)
	if err == nil && (neg.EdgeSessionID == "" || neg.SDPAnswer == "") {
		err = domain.ErrIncompleteNegotiation
	}
	if err != nil {
		l.Error().Err(err).Msg("Edge negotiation failed")
		if neg.EdgeSessionID != "" {
			s.hangup(ctx, l.With().Str("edge_session_id", neg.EdgeSessionID).Logger(), neg.EdgeSessionID)
		}
		s.close(ctx, callID, ref, "negotiation failed")
		return nil, fmt.Errorf("%w: %w", domain.ErrNegotiationFailed, err)
	}

	l = l.With().Str("edge_session_id", neg.EdgeSessionID).Logger()

	sess, err = s.sessions.Update(ctx, callID, func(cs *domain.CallSession) error {
		if cs.Ref != ref || cs.State != domain.StateNegotiating {
			return domain.ErrSessionGone
		}
		cs.EdgeSessionID = neg.EdgeSessionID
		return nil
	})
	if err != nil {
		// Terminated before the edge session was recorded: nobody else can
		// know about it, so the hangup is ours.
		l.Warn().Err(err).Msg("Call terminated during negotiation")
		s.hangup(ctx, l, neg.EdgeSessionID)
		return nil, fmt.Errorf("%w: %w", domain.ErrSessionGone, err)
	}
	l.Debug().Msg("Edge session recorded")

	if err := s.platform.PreAccept(ctx, callID, neg.SDPAnswer); err != nil {
		l.Error().Err(err).Msg("Pre-accept failed")
		s.abort(ctx, callID, ref, "pre-accept failed")
		return nil, fmt.Errorf("%w: pre-accept: %w", domain.ErrAcceptanceFailed, err)
	}

	if err := s.platform.Accept(ctx, callID); err != nil {
		l.Error().Err(err).Msg("Accept failed")
		s.abort(ctx, callID, ref, "accept failed")
		return nil, fmt.Errorf("%w: accept: %w", domain.ErrAcceptanceFailed, err)
	}

	sess, err = s.sessions.Update(ctx, callID, func(cs *domain.CallSession) error {
		if cs.Ref != ref {
			return domain.ErrSessionGone
		}
		return cs.Transition(ctx, domain.EventActivate)
	})
	if err != nil {
		// A terminate claimed the session and owns the edge teardown.
		l.Warn().Err(err).Msg("Call terminated during acceptance")
		return nil, fmt.Errorf("%w: %w", domain.ErrSessionGone, err)
	}

	l.Info().Msg("Call active")
	s.publish(ctx, sess, "accepted")
	return sess, nil
}

// Terminate tears down whatever is known locally about callID and notifies
// the platform. Remote failures are logged and never returned, so calling it
// for an unknown or already terminated call succeeds.
func (s *CallService) Terminate(ctx context.Context, callID string) error {
	if callID == "" {
		return fmt.Errorf("%w: call id is required", domain.ErrMalformedEvent)
	}

	l := log.With().Str("call_id", callID).Logger()

	claimed, err := s.sessions.Update(ctx, callID, func(cs *domain.CallSession) error {
		return cs.Transition(ctx, domain.EventTerminate)
	})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		l.Debug().Msg("No local session to clean up")
	case err != nil:
		l.Debug().Err(err).Msg("Session already being torn down")
	default:
		s.publish(ctx, claimed, "terminate")
		if claimed.EdgeSessionID != "" {
			s.hangup(ctx, l.With().Str("edge_session_id", claimed.EdgeSessionID).Logger(), claimed.EdgeSessionID)
		}
		s.close(ctx, callID, claimed.Ref, "terminated")
	}

	bestEffort(ctx, l, "platform terminate", func(ctx context.Context) error {
		return s.platform.Terminate(ctx, callID)
	})
	return nil
}

// TerminateAll runs the terminate flow for every registered call.
func (s *CallService) TerminateAll(ctx context.Context) {
	for _, sess := range s.sessions.List(ctx) {
		if err := s.Terminate(ctx, sess.CallID); err != nil {
			log.Debug().Err(err).Str("call_id", sess.CallID).Msg("Terminate during drain failed")
		}
	}
}

func (s *CallService) Session(ctx context.Context, callID string) (*domain.CallSession, error) {
	sess, ok := s.sessions.Get(ctx, callID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return sess, nil
}

func (s *CallService) ActiveCalls(ctx context.Context) int {
	return s.sessions.Count(ctx)
}

// abort claims a session whose acceptance failed. If a concurrent terminate
// got there first it already owns the hangup.
func (s *CallService) abort(ctx context.Context, callID string, ref domain.SessionRef, reason string) {
	l := log.With().Str("call_id", callID).Logger()

	claimed, err := s.sessions.Update(ctx, callID, func(cs *domain.CallSession) error {
		if cs.Ref != ref {
			return domain.ErrSessionGone
		}
		return cs.Transition(ctx, domain.EventTerminate)
	})
	if err != nil {
		l.Debug().Err(err).Msg("Teardown owned by concurrent terminate")
		return
	}
	s.publish(ctx, claimed, reason)

	if claimed.EdgeSessionID != "" {
		s.hangup(ctx, l.With().Str("edge_session_id", claimed.EdgeSessionID).Logger(), claimed.EdgeSessionID)
	}
	s.close(ctx, callID, ref, reason)
}

// close moves the session to closed and drops it. Only the flow whose
// transition succeeds removes the entry, so a later session reusing the call
// id is never touched.
func (s *CallService) close(ctx context.Context, callID string, ref domain.SessionRef, reason string) {
	closed, err := s.sessions.Update(ctx, callID, func(cs *domain.CallSession) error {
		if cs.Ref != ref {
			return domain.ErrSessionGone
		}
		return cs.Transition(ctx, domain.EventClose)
	})
	if err != nil {
		log.Debug().Err(err).Str("call_id", callID).Msg("Session already closed")
		return
	}
	s.sessions.Remove(ctx, callID)
	log.Info().Str("call_id", callID).Str("reason", reason).Msg("Call closed")
	s.publish(ctx, closed, reason)
}

func (s *CallService) hangup(ctx context.Context, l zerolog.Logger, edgeSessionID string) {
	bestEffort(ctx, l, "edge hangup", func(ctx context.Context) error {
		return s.edge.Hangup(ctx, edgeSessionID)
	})
}

func (s *CallService) publish(ctx context.Context, sess *domain.CallSession, reason string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishCallEvent(ctx, domain.NewCallEvent(sess, reason)); err != nil {
		log.Debug().Err(err).Str("call_id", sess.CallID).Msg("Failed to publish call event")
	}
}
