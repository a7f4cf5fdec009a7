package store

import (
	"context"
	"testing"
	"time"

	"github.com/arkflow-dev/reactor/reducer"
)

type counterState struct {
	count int
}

type incAction struct{ by int }
type incremented struct{ newCount int }
type action struct {
	inc  *incAction
	done *incremented
}

func counterReducer() reducer.Func[counterState, action, struct{}] {
	return func(state *counterState, a action, env struct{}) reducer.Effects[action] {
		if a.inc == nil {
			return nil
		}
		state.count += a.inc.by
		count := state.count
		return reducer.Effects[action]{
			reducer.Future[action](func(ctx context.Context) (action, bool, error) {
				return action{done: &incremented{newCount: count}}, true, nil
			}),
		}
	}
}

func TestStoreDispatchesAndBroadcasts(t *testing.T) {
	s := New[counterState, action, struct{}](counterState{}, counterReducer(), struct{}{})
	defer s.Shutdown(context.Background())

	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	if err := s.Send(action{inc: &incAction{by: 5}}); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	select {
	case a := <-ch:
		if a.inc == nil || a.inc.by != 5 {
			t.Fatalf("broadcast action = %+v, want inc.by=5", a)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}

	if s.State().count != 5 {
		t.Fatalf("State().count = %d, want 5", s.State().count)
	}
}

func TestStoreRunsFutureEffectFollowUp(t *testing.T) {
	s := New[counterState, action, struct{}](counterState{}, counterReducer(), struct{}{})
	defer s.Shutdown(context.Background())

	result, err := s.SendAndWaitFor(
		action{inc: &incAction{by: 3}},
		func(a action) bool { return a.done != nil },
		time.Second,
	)
	if err != nil {
		t.Fatalf("SendAndWaitFor error: %v", err)
	}
	if result.done == nil || result.done.newCount != 3 {
		t.Fatalf("result = %+v, want done.newCount=3", result)
	}
}

func TestSendAndWaitForTimesOut(t *testing.T) {
	s := New[counterState, action, struct{}](counterState{}, counterReducer(), struct{}{})
	defer s.Shutdown(context.Background())

	_, err := s.SendAndWaitFor(
		action{inc: &incAction{by: 1}},
		func(a action) bool { return false },
		10*time.Millisecond,
	)
	if err == nil {
		t.Fatal("expected TimeoutError")
	}
	if _, ok := err.(*TimeoutError); !ok {
		t.Fatalf("err = %T, want *TimeoutError", err)
	}
}

func TestShutdownIsIdempotentAndCancelsWaiters(t *testing.T) {
	s := New[counterState, action, struct{}](counterState{}, counterReducer(), struct{}{})

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown error: %v", err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown error: %v", err)
	}

	if err := s.Send(action{inc: &incAction{by: 1}}); err == nil {
		t.Fatal("expected Send to fail after Shutdown")
	} else if _, ok := err.(*CancelledError); !ok {
		t.Fatalf("err = %T, want *CancelledError", err)
	}
}
