package domain

import "errors"

var (
	// ErrMalformedEvent: inbound payload is missing required fields. Nothing was mutated.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrConflict: a session for this call id is already tracked.
	ErrConflict = errors.New("call already registered")
	ErrNotFound = errors.New("call not found")
	// ErrNegotiationFailed: the edge rejected the offer or returned an incomplete answer.
	ErrNegotiationFailed = errors.New("edge negotiation failed")
	// ErrIncompleteNegotiation: the edge answered without a session id or an SDP answer.
	ErrIncompleteNegotiation = errors.New("incomplete negotiate response")
	// ErrAcceptanceFailed: pre-accept or accept was rejected after negotiation.
	ErrAcceptanceFailed = errors.New("call acceptance failed")
	// ErrSessionGone: a terminate removed or claimed the session while connect was in flight.
	ErrSessionGone       = errors.New("call terminated during connect")
	ErrInvalidTransition = errors.New("invalid state transition")
)
