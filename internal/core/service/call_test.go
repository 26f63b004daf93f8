package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Wyydra/callbridge/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/callbridge/internal/adapter/driven/signaling"
	"github.com/Wyydra/callbridge/internal/core/domain"
	"github.com/Wyydra/callbridge/internal/core/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc      *service.CallService
	sessions *memory.CallRegistry
	edge     *fakeEdge
	platform *fakePlatform
	events   *fakePublisher
	rec      *recorder
}

func newFixture() *fixture {
	rec := &recorder{}
	f := &fixture{
		sessions: memory.NewCallRegistry(),
		edge:     &fakeEdge{rec: rec, neg: domain.Negotiation{EdgeSessionID: "E1", SDPAnswer: "A1"}},
		platform: &fakePlatform{rec: rec},
		events:   &fakePublisher{},
		rec:      rec,
	}
	f.svc = service.NewCallService(f.sessions, f.edge, f.platform, f.events)
	return f
}

func TestConnectActivatesSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sess, err := f.svc.Connect(ctx, "C1", "O1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, sess.State)
	assert.Equal(t, "E1", sess.EdgeSessionID)

	stored, ok := f.sessions.Get(ctx, "C1")
	require.True(t, ok)
	assert.Equal(t, domain.StateActive, stored.State)
	assert.Equal(t, "E1", stored.EdgeSessionID)
	assert.Equal(t, 1, f.sessions.Count(ctx))

	assert.Equal(t, []string{"negotiate:C1:O1", "pre_accept:C1:A1", "accept:C1"}, f.rec.Calls())
	assert.Equal(t, []domain.CallState{domain.StateNegotiating, domain.StateActive}, f.events.States("C1"))
}

func TestConnectMalformed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Connect(ctx, "", "O1")
	assert.ErrorIs(t, err, domain.ErrMalformedEvent)

	_, err = f.svc.Connect(ctx, "C1", "   ")
	assert.ErrorIs(t, err, domain.ErrMalformedEvent)

	assert.Empty(t, f.rec.Calls())
	assert.Equal(t, 0, f.sessions.Count(ctx))
}

func TestConnectConflictSkipsNegotiate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.sessions.Create(ctx, "C1")
	require.NoError(t, err)

	_, err = f.svc.Connect(ctx, "C1", "O1")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, f.rec.Calls())
	assert.Equal(t, 1, f.sessions.Count(ctx))
}

func TestSecondConnectForLiveCallRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Connect(ctx, "C1", "O1")
	require.NoError(t, err)

	_, err = f.svc.Connect(ctx, "C1", "O2")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 1, f.rec.Count("negotiate:C1:O1"))
	assert.Zero(t, f.rec.Count("negotiate:C1:O2"))
}

func TestConnectNegotiationFailure(t *testing.T) {
	f := newFixture()
	f.edge.neg = domain.Negotiation{}
	f.edge.negErr = errors.New("no media resources")
	ctx := context.Background()

	_, err := f.svc.Connect(ctx, "C1", "O1")
	assert.ErrorIs(t, err, domain.ErrNegotiationFailed)

	assert.Equal(t, []string{"negotiate:C1:O1"}, f.rec.Calls())
	_, ok := f.sessions.Get(ctx, "C1")
	assert.False(t, ok)
	assert.Equal(t, []domain.CallState{domain.StateNegotiating, domain.StateClosed}, f.events.States("C1"))
}

func TestConnectIncompleteNegotiation(t *testing.T) {
	ctx := context.Background()

	t.Run("missing session id", func(t *testing.T) {
		f := newFixture()
		f.edge.neg = domain.Negotiation{SDPAnswer: "A1"}

		_, err := f.svc.Connect(ctx, "C1", "O1")
		assert.ErrorIs(t, err, domain.ErrNegotiationFailed)
		assert.Equal(t, []string{"negotiate:C1:O1"}, f.rec.Calls())
		assert.Equal(t, 0, f.sessions.Count(ctx))
	})

	t.Run("missing answer releases edge session", func(t *testing.T) {
		f := newFixture()
		f.edge.neg = domain.Negotiation{EdgeSessionID: "E1"}

		_, err := f.svc.Connect(ctx, "C1", "O1")
		assert.ErrorIs(t, err, domain.ErrNegotiationFailed)
		assert.ErrorIs(t, err, domain.ErrIncompleteNegotiation)
		assert.Equal(t, []string{"negotiate:C1:O1", "hangup:E1"}, f.rec.Calls())
		assert.Equal(t, 0, f.sessions.Count(ctx))
	})

	t.Run("partial result with error releases edge session", func(t *testing.T) {
		f := newFixture()
		f.edge.neg = domain.Negotiation{EdgeSessionID: "E1"}
		f.edge.negErr = fmt.Errorf("protocol violation: %w", domain.ErrIncompleteNegotiation)

		_, err := f.svc.Connect(ctx, "C1", "O1")
		assert.ErrorIs(t, err, domain.ErrNegotiationFailed)
		assert.Equal(t, []string{"negotiate:C1:O1", "hangup:E1"}, f.rec.Calls())
		assert.Equal(t, 0, f.sessions.Count(ctx))
	})
}

func TestConnectReleasesPartialEdgeSession(t *testing.T) {
	var hangups []string
	var mu sync.Mutex
	edgeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/negotiate":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"edgeSessionId":"E1"}`))
		case "/hangup":
			var body struct {
				EdgeSessionID string `json:"edgeSessionId"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			hangups = append(hangups, body.EdgeSessionID)
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer edgeSrv.Close()

	rec := &recorder{}
	sessions := memory.NewCallRegistry()
	edge := signaling.NewEdgeClient(signaling.Config{BaseURL: edgeSrv.URL})
	svc := service.NewCallService(sessions, edge, &fakePlatform{rec: rec}, nil)

	ctx := context.Background()
	_, err := svc.Connect(ctx, "C1", "O1")
	assert.ErrorIs(t, err, domain.ErrNegotiationFailed)
	assert.ErrorIs(t, err, signaling.ErrProtocol)

	mu.Lock()
	assert.Equal(t, []string{"E1"}, hangups)
	mu.Unlock()
	assert.Empty(t, rec.Calls())
	assert.Equal(t, 0, sessions.Count(ctx))
}

func TestConnectPreAcceptFailureHangsUpOnce(t *testing.T) {
	f := newFixture()
	f.platform.preAcceptErr = errors.New("malformed sdp")
	ctx := context.Background()

	_, err := f.svc.Connect(ctx, "C1", "O1")
	assert.ErrorIs(t, err, domain.ErrAcceptanceFailed)

	assert.Equal(t, []string{"negotiate:C1:O1", "pre_accept:C1:A1", "hangup:E1"}, f.rec.Calls())
	_, ok := f.sessions.Get(ctx, "C1")
	assert.False(t, ok)
}

func TestConnectAcceptFailureTearsDownEdgeBeforeRemoval(t *testing.T) {
	f := newFixture()
	f.platform.acceptErr = errors.New("call already terminated")
	ctx := context.Background()

	hook := &hangupProbe{fakeEdge: f.edge, sessions: f.sessions}
	svc := service.NewCallService(f.sessions, hook, f.platform, f.events)

	_, err := svc.Connect(ctx, "C1", "O1")
	assert.ErrorIs(t, err, domain.ErrAcceptanceFailed)

	assert.Equal(t, []string{"negotiate:C1:O1", "pre_accept:C1:A1", "accept:C1", "hangup:E1"}, f.rec.Calls())
	assert.Equal(t, 1, f.rec.Count("hangup:E1"))
	assert.True(t, hook.registered, "session must still be registered while hanging up")
	_, ok := f.sessions.Get(ctx, "C1")
	assert.False(t, ok)
	assert.Equal(t,
		[]domain.CallState{domain.StateNegotiating, domain.StateTerminating, domain.StateClosed},
		f.events.States("C1"))
}

// hangupProbe notes whether the session was still registered when the edge
// hangup was issued.
type hangupProbe struct {
	*fakeEdge
	sessions   *memory.CallRegistry
	registered bool
}

func (h *hangupProbe) Hangup(ctx context.Context, edgeSessionID string) error {
	sess, ok := h.sessions.Get(ctx, "C1")
	h.registered = ok && sess.EdgeSessionID == edgeSessionID
	return h.fakeEdge.Hangup(ctx, edgeSessionID)
}

func TestTerminateActiveCall(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Connect(ctx, "C1", "O1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Terminate(ctx, "C1"))

	assert.Equal(t, []string{"negotiate:C1:O1", "pre_accept:C1:A1", "accept:C1", "hangup:E1", "terminate:C1"}, f.rec.Calls())
	_, ok := f.sessions.Get(ctx, "C1")
	assert.False(t, ok)
	assert.Equal(t,
		[]domain.CallState{domain.StateNegotiating, domain.StateActive, domain.StateTerminating, domain.StateClosed},
		f.events.States("C1"))
}

func TestTerminateUnknownCall(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.Terminate(ctx, "C9"))
	assert.Equal(t, []string{"terminate:C9"}, f.rec.Calls())
}

func TestTerminateHangupFailureStillRemoves(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Connect(ctx, "C1", "O1")
	require.NoError(t, err)

	f.edge.hangupErr = errors.New("connection reset by peer")
	f.platform.terminateErr = errors.New("platform unavailable")

	require.NoError(t, f.svc.Terminate(ctx, "C1"))
	_, ok := f.sessions.Get(ctx, "C1")
	assert.False(t, ok)
	assert.Equal(t, 1, f.rec.Count("terminate:C1"))
}

func TestTerminateTwice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Connect(ctx, "C1", "O1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Terminate(ctx, "C1"))
	require.NoError(t, f.svc.Terminate(ctx, "C1"))

	assert.Equal(t, 1, f.rec.Count("hangup:E1"))
	assert.Equal(t, 2, f.rec.Count("terminate:C1"))
	assert.Equal(t, 0, f.sessions.Count(ctx))
}

func TestTerminateMalformed(t *testing.T) {
	f := newFixture()
	assert.ErrorIs(t, f.svc.Terminate(context.Background(), ""), domain.ErrMalformedEvent)
	assert.Empty(t, f.rec.Calls())
}

func TestConnectAfterTerminateReusesCallID(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Connect(ctx, "C1", "O1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Terminate(ctx, "C1"))

	_, err = f.svc.Connect(ctx, "C1", "O1")
	assert.NoError(t, err)
}

func TestTerminateDuringNegotiate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.edge.onNegotiate = func() {
		require.NoError(t, f.svc.Terminate(ctx, "C1"))
	}

	_, err := f.svc.Connect(ctx, "C1", "O1")
	assert.ErrorIs(t, err, domain.ErrSessionGone)

	// the terminate saw no edge session, so connect releases it
	assert.Equal(t, []string{"negotiate:C1:O1", "terminate:C1", "hangup:E1"}, f.rec.Calls())
	assert.Equal(t, 0, f.sessions.Count(ctx))
}

func TestTerminateDuringPreAccept(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.platform.onPreAccept = func() {
		require.NoError(t, f.svc.Terminate(ctx, "C1"))
	}

	_, err := f.svc.Connect(ctx, "C1", "O1")
	assert.ErrorIs(t, err, domain.ErrSessionGone)

	assert.Equal(t, 1, f.rec.Count("hangup:E1"))
	assert.Equal(t, 0, f.sessions.Count(ctx))
}

func TestTerminateDuringAcceptThenAcceptFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.platform.acceptErr = errors.New("call gone")
	f.platform.onAccept = func() {
		require.NoError(t, f.svc.Terminate(ctx, "C1"))
	}

	_, err := f.svc.Connect(ctx, "C1", "O1")
	assert.ErrorIs(t, err, domain.ErrAcceptanceFailed)

	assert.Equal(t, 1, f.rec.Count("hangup:E1"))
	assert.Equal(t, 0, f.sessions.Count(ctx))
}

func TestConcurrentConnectsForDifferentCalls(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	ids := []string{"C1", "C2", "C3", "C4", "C5", "C6", "C7", "C8"}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.Connect(ctx, id, "O1")
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()
	assert.Equal(t, len(ids), f.svc.ActiveCalls(ctx))

	f.svc.TerminateAll(ctx)
	assert.Equal(t, 0, f.svc.ActiveCalls(ctx))
}

func TestTerminateAllDrainsDespiteRemoteFailures(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for _, id := range []string{"C1", "C2"} {
		f.edge.neg = domain.Negotiation{EdgeSessionID: "E-" + id, SDPAnswer: "A1"}
		_, err := f.svc.Connect(ctx, id, "O1")
		require.NoError(t, err)
	}
	f.edge.hangupErr = errors.New("edge unreachable")
	f.platform.terminateErr = errors.New("platform unreachable")

	f.svc.TerminateAll(ctx)

	assert.Equal(t, 0, f.svc.ActiveCalls(ctx))
	assert.Equal(t, 1, f.rec.Count("hangup:E-C1"))
	assert.Equal(t, 1, f.rec.Count("hangup:E-C2"))
	assert.Equal(t, 1, f.rec.Count("terminate:C1"))
	assert.Equal(t, 1, f.rec.Count("terminate:C2"))
}

func TestConcurrentConnectTerminateNeverLeaks(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		f := newFixture()
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Connect(ctx, "C1", "O1")
		}()
		go func() {
			defer wg.Done()
			_ = f.svc.Terminate(ctx, "C1")
		}()
		wg.Wait()

		// a terminate that lost the race leaves an active call behind;
		// the follow-up terminate must clean it up
		require.NoError(t, f.svc.Terminate(ctx, "C1"))
		assert.Equal(t, 0, f.sessions.Count(ctx))
		assert.Equal(t, 1, f.rec.Count("hangup:E1"))
	}
}

func TestSessionLookup(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Session(ctx, "C1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Connect(ctx, "C1", "O1")
	require.NoError(t, err)

	sess, err := f.svc.Session(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "E1", sess.EdgeSessionID)
}
