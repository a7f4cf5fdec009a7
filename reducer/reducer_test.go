package reducer

import (
	"context"
	"testing"
)

type counterState struct {
	count int
	log   []string
}

type incAction struct{ by int }

func incReducer(name string) Func[counterState, incAction, struct{}] {
	return func(state *counterState, action incAction, env struct{}) Effects[incAction] {
		state.count += action.by
		state.log = append(state.log, name)
		return nil
	}
}

func TestFuncAdapter(t *testing.T) {
	r := incReducer("r1")
	state := counterState{}
	r.Reduce(&state, incAction{by: 3}, struct{}{})
	if state.count != 3 {
		t.Fatalf("count = %d, want 3", state.count)
	}
}

func TestCombineRunsChildrenInOrderSharingState(t *testing.T) {
	combined := Combine[counterState, incAction, struct{}](incReducer("a"), incReducer("b"))
	state := counterState{}
	combined.Reduce(&state, incAction{by: 1}, struct{}{})

	if state.count != 2 {
		t.Fatalf("count = %d, want 2", state.count)
	}
	if len(state.log) != 2 || state.log[0] != "a" || state.log[1] != "b" {
		t.Fatalf("log = %v, want [a b]", state.log)
	}
}

type parentState struct {
	sub counterState
}

func TestScopeLiftsChildOverSubState(t *testing.T) {
	child := incReducer("child")
	scoped := Scope[parentState, counterState, incAction, struct{}](
		child,
		func(p *parentState) counterState { return p.sub },
		func(p *parentState, sub counterState) { p.sub = sub },
	)

	state := parentState{}
	scoped.Reduce(&state, incAction{by: 5}, struct{}{})

	if state.sub.count != 5 {
		t.Fatalf("sub.count = %d, want 5", state.sub.count)
	}
}

func TestEffectNoneDefaultKind(t *testing.T) {
	var e Effect[incAction]
	if e.Kind() != KindNone {
		t.Fatalf("zero-value Effect kind = %v, want KindNone", e.Kind())
	}
	if None[incAction]().Kind() != KindNone {
		t.Fatalf("None().Kind() != KindNone")
	}
}

func TestEffectFuture(t *testing.T) {
	e := Future[incAction](func(ctx context.Context) (incAction, bool, error) {
		return incAction{by: 7}, true, nil
	})
	if e.Kind() != KindFuture {
		t.Fatalf("Kind() = %v, want KindFuture", e.Kind())
	}
	action, ok, err := e.RunFuture(context.Background())
	if err != nil || !ok || action.by != 7 {
		t.Fatalf("RunFuture() = (%v, %v, %v), want (7, true, nil)", action, ok, err)
	}
}

func TestEffectFireAndForget(t *testing.T) {
	called := false
	e := FireAndForget[incAction](func(ctx context.Context) error {
		called = true
		return nil
	})
	if err := e.RunFireAndForget(context.Background()); err != nil {
		t.Fatalf("RunFireAndForget() error = %v", err)
	}
	if !called {
		t.Fatalf("expected fire-and-forget function to run")
	}
}

func TestAppend(t *testing.T) {
	effects := Append(Effects[incAction]{None[incAction]()}, None[incAction](), None[incAction]())
	if len(effects) != 3 {
		t.Fatalf("len(effects) = %d, want 3", len(effects))
	}
}
