package service_test

import (
	"context"
	"sync"

	"github.com/Wyydra/callbridge/internal/core/domain"
)

// recorder keeps the order of remote calls across both fakes.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) Count(call string) int {
	n := 0
	for _, c := range r.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

type fakeEdge struct {
	rec         *recorder
	neg         domain.Negotiation
	negErr      error
	hangupErr   error
	onNegotiate func()
}

func (f *fakeEdge) Negotiate(ctx context.Context, callID, sdpOffer string) (domain.Negotiation, error) {
	f.rec.record("negotiate:" + callID + ":" + sdpOffer)
	if f.onNegotiate != nil {
		f.onNegotiate()
	}
	return f.neg, f.negErr
}

func (f *fakeEdge) Hangup(ctx context.Context, edgeSessionID string) error {
	f.rec.record("hangup:" + edgeSessionID)
	return f.hangupErr
}

type fakePlatform struct {
	rec          *recorder
	preAcceptErr error
	acceptErr    error
	terminateErr error
	onPreAccept  func()
	onAccept     func()
}

func (f *fakePlatform) PreAccept(ctx context.Context, callID, sdpAnswer string) error {
	f.rec.record("pre_accept:" + callID + ":" + sdpAnswer)
	if f.onPreAccept != nil {
		f.onPreAccept()
	}
	return f.preAcceptErr
}

func (f *fakePlatform) Accept(ctx context.Context, callID string) error {
	f.rec.record("accept:" + callID)
	if f.onAccept != nil {
		f.onAccept()
	}
	return f.acceptErr
}

func (f *fakePlatform) Terminate(ctx context.Context, callID string) error {
	f.rec.record("terminate:" + callID)
	return f.terminateErr
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.CallEvent
}

func (f *fakePublisher) PublishCallEvent(ctx context.Context, ev domain.CallEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) States(callID string) []domain.CallState {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CallState
	for _, ev := range f.events {
		if ev.CallID == callID {
			out = append(out, ev.State)
		}
	}
	return out
}
