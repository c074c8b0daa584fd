package starbook

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/w1xm/starbook_interface/coord"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func newSimSession(t *testing.T) (*Session, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s, err := Connect(ctx, "simulator", nil)
	if err != nil {
		t.Fatalf("Connect(simulator) returned %v", err)
	}
	return s, ctx
}

func TestSimulateGoto(t *testing.T) {
	s, ctx := newSimSession(t)
	rec := &eventRecorder{}
	s.SetEventCallback(rec.record)

	if got := s.Status(); !got.Simulated || got.State != StateInit || got.Round != DefaultRound {
		t.Fatalf("fresh simulate status = %+v", got)
	}

	reply, err := s.Goto(ctx, coord.RAFromHours(2), coord.DecFromDegrees(8))
	if err != nil || reply != ReplyOK {
		t.Fatalf("Goto = %q, %v", reply, err)
	}

	// First tick covers at most one hour of RA and four degrees of DEC,
	// leaving the goto still in flight.
	if err := s.RefreshStatus(ctx); err != nil {
		t.Fatalf("RefreshStatus returned %v", err)
	}
	st := s.Status()
	if got := st.RA.Hours(); math.Abs(got-1) > 1e-9 {
		t.Errorf("RA after one tick = %v hours, want 1", got)
	}
	if got := st.Dec.Degrees(); math.Abs(got-4) > 1e-9 {
		t.Errorf("DEC after one tick = %v degrees, want 4", got)
	}
	if st.Effective() != StateGoto {
		t.Errorf("effective state after one tick = %v, want GOTO", st.Effective())
	}

	// Second tick arrives; the flag drops and the edge events fire.
	if err := s.RefreshStatus(ctx); err != nil {
		t.Fatalf("RefreshStatus returned %v", err)
	}
	st = s.Status()
	if got := st.RA.Hours(); math.Abs(got-2) > 1e-9 {
		t.Errorf("RA after two ticks = %v hours, want 2", got)
	}
	if st.Effective() != StateScope {
		t.Errorf("effective state after arrival = %v, want SCOP", st.Effective())
	}

	// A third tick must not repeat the arrival notification.
	if err := s.RefreshStatus(ctx); err != nil {
		t.Fatalf("RefreshStatus returned %v", err)
	}

	want := []Event{EventGotoStart, EventMoving, EventGotoReached, EventIdle}
	if diff := cmp.Diff(rec.snapshot(), want); diff != "" {
		t.Errorf("event sequence diff (got +want):\n%s", diff)
	}
}

type staticResolver map[string][2]float64

func (r staticResolver) Resolve(name string) (coord.RA, coord.Dec, error) {
	v, ok := r[name]
	if !ok {
		return coord.RA{}, coord.Dec{}, errors.New("not in catalog")
	}
	return coord.RAFromHours(v[0]), coord.DecFromDegrees(v[1]), nil
}

func TestGotoObject(t *testing.T) {
	s, ctx := newSimSession(t)

	if _, err := s.GotoObject(ctx, "vega"); err == nil {
		t.Error("GotoObject without a resolver returned nil error")
	}

	s.SetResolver(staticResolver{"vega": {18.6156, 38.7837}})

	if _, err := s.GotoObject(ctx, "sirius"); err == nil {
		t.Error("GotoObject with an unknown name returned nil error")
	}
	if got := s.Status().Target.Name; got != "" {
		t.Errorf("failed resolve still set target name %q", got)
	}

	reply, err := s.GotoObject(ctx, "vega")
	if err != nil || reply != ReplyOK {
		t.Fatalf("GotoObject = %q, %v", reply, err)
	}
	st := s.Status()
	if st.Target.Name != "vega" {
		t.Errorf("target name = %q, want vega", st.Target.Name)
	}
	if math.Abs(st.Target.RA.Hours()-18.6156) > 1e-9 {
		t.Errorf("target RA = %v hours, want 18.6156", st.Target.RA.Hours())
	}
}

func TestSimulateStepBounds(t *testing.T) {
	s, ctx := newSimSession(t)
	if _, err := s.Goto(ctx, coord.RAFromHours(6), coord.DecFromDegrees(-20)); err != nil {
		t.Fatalf("Goto returned %v", err)
	}
	if err := s.RefreshStatus(ctx); err != nil {
		t.Fatalf("RefreshStatus returned %v", err)
	}
	st := s.Status()
	if got := st.RA.Hours(); math.Abs(got-1) > 1e-9 {
		t.Errorf("RA step = %v hours, want 1", got)
	}
	if got := st.Dec.Degrees(); math.Abs(got+4) > 1e-9 {
		t.Errorf("DEC step = %v degrees, want -4", got)
	}
	if !st.GotoInProgress {
		t.Error("goto flag dropped while both axes are still far from target")
	}
}

func TestSimulateStop(t *testing.T) {
	s, ctx := newSimSession(t)
	if _, err := s.Goto(ctx, coord.RAFromHours(12), coord.DecFromDegrees(40)); err != nil {
		t.Fatalf("Goto returned %v", err)
	}
	if err := s.RefreshStatus(ctx); err != nil {
		t.Fatalf("RefreshStatus returned %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop returned %v", err)
	}
	before := s.Status()
	if err := s.RefreshStatus(ctx); err != nil {
		t.Fatalf("RefreshStatus returned %v", err)
	}
	after := s.Status()
	if math.Abs(after.RA.Hours()-before.RA.Hours()) > 1e-9 {
		t.Errorf("mount moved after Stop: %v -> %v", before.RA, after.RA)
	}
	if after.GotoInProgress {
		t.Error("goto flag still set after Stop")
	}
}

func TestRevertNoopDuringGoto(t *testing.T) {
	s, ctx := newSimSession(t)
	if _, err := s.Goto(ctx, coord.RAFromHours(4), coord.DecFromDegrees(0)); err != nil {
		t.Fatalf("Goto returned %v", err)
	}
	if err := s.RefreshStatus(ctx); err != nil {
		t.Fatalf("RefreshStatus returned %v", err)
	}
	if got := s.Status().Effective(); got != StateGoto {
		t.Fatalf("effective state = %v, want GOTO", got)
	}
	if err := s.Revert(ctx); err != nil {
		t.Fatalf("Revert returned %v", err)
	}
	if got := s.Status().Target.RA.Hours(); math.Abs(got-4) > 1e-9 {
		t.Errorf("Revert during goto replaced the target: RA %v hours", got)
	}
}

func TestRevertWhileTracking(t *testing.T) {
	s, ctx := newSimSession(t)
	// Settle at a fixed position first.
	if _, err := s.Goto(ctx, coord.RAFromHours(1), coord.DecFromDegrees(2)); err != nil {
		t.Fatalf("Goto returned %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.RefreshStatus(ctx); err != nil {
			t.Fatalf("RefreshStatus returned %v", err)
		}
	}
	if got := s.Status().Effective(); got != StateScope {
		t.Fatalf("effective state = %v, want SCOP", got)
	}
	if err := s.Revert(ctx); err != nil {
		t.Fatalf("Revert returned %v", err)
	}
	st := s.Status()
	if math.Abs(st.Target.RA.Hours()-1) > 1e-9 || math.Abs(st.Target.Dec.Degrees()-2) > 1e-9 {
		t.Errorf("revert target = %+v, want current position", st.Target)
	}
	if st.Effective() != StateScope {
		t.Errorf("effective state after revert = %v, want SCOP", st.Effective())
	}
}

func TestConnectUnreachableDowngrades(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := Connect(ctx, "127.0.0.1:1", nil)
	if err != nil {
		t.Fatalf("Connect returned %v, want simulate downgrade", err)
	}
	if got := s.Status(); !got.Simulated {
		t.Errorf("status after failed probe = %+v, want Simulated", got)
	}
}

func TestSetSpeedClamp(t *testing.T) {
	s, ctx := newSimSession(t)
	for _, tt := range []struct {
		level float64
		want  int
	}{
		{-3, 0},
		{0, 0},
		{4.4, 4},
		{4.5, 5},
		{8, 8},
		{11, 8},
	} {
		if err := s.SetSpeed(ctx, tt.level); err != nil {
			t.Fatalf("SetSpeed(%v) returned %v", tt.level, err)
		}
		if got := s.Status().Speed; got != tt.want {
			t.Errorf("SetSpeed(%v) stored %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestLoopbackSimulator(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := ConnectSimulator(ctx, nil)
	if err != nil {
		t.Fatalf("ConnectSimulator returned %v", err)
	}
	defer s.Close()

	st := s.Status()
	if st.Simulated {
		t.Error("loopback session flagged Simulated; it speaks real HTTP")
	}
	if st.Round != DefaultRound {
		t.Errorf("Round = %d, want %d", st.Round, DefaultRound)
	}
	if math.Abs(st.Place.Longitude-(139+41.0/60)) > 1e-6 || st.Place.Timezone != 9 {
		t.Errorf("Place = %+v", st.Place)
	}

	// The device refuses a goto while still on its init screen; the
	// refusal is a reply value, not an error.
	reply, err := s.Goto(ctx, coord.RAFromHours(0.5), coord.DecFromDegrees(-0.5))
	if err != nil {
		t.Fatalf("Goto returned %v", err)
	}
	if reply != ReplyIllegalState {
		t.Errorf("Goto before start = %q, want %q", reply, ReplyIllegalState)
	}

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start returned %v", err)
	}
	reply, err = s.Goto(ctx, coord.RAFromHours(0.5), coord.DecFromDegrees(-0.5))
	if err != nil || reply != ReplyOK {
		t.Fatalf("Goto after start = %q, %v", reply, err)
	}

	if err := s.RefreshStatus(ctx); err != nil {
		t.Fatalf("RefreshStatus returned %v", err)
	}
	if got := s.Status().Effective(); got != StateGoto {
		t.Errorf("effective state after goto = %v, want GOTO", got)
	}
}

func TestPollerHaltsOnCommunicationError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	simCtx, simCancel := context.WithCancel(ctx)
	s, err := ConnectSimulator(simCtx, nil)
	if err != nil {
		t.Fatalf("ConnectSimulator returned %v", err)
	}
	// Kill the fake device out from under the session.
	simCancel()

	errs := make(chan error, 1)
	s.poller.Interval = 10 * time.Millisecond
	go func() { errs <- s.poller.Run(ctx) }()
	select {
	case err := <-errs:
		if err == nil {
			t.Error("poller returned nil after device vanished")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("poller kept running against a dead device")
	}
}
