package action_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/brisklabs/buildengine/pkg/action"
	"github.com/brisklabs/buildengine/pkg/key"
	"github.com/brisklabs/buildengine/pkg/registry"
)

func newTestContext(opts action.Options) *action.Context {
	g := action.NewGlobal(opts, nil, registry.New(), nil, 1)
	want := key.Erase[string]("rule", "root")
	return action.NewRootContext(g, want)
}

func TestWithVerbosityRestoresOnExit(t *testing.T) {
	c := newTestContext(action.Options{Verbosity: action.Normal})

	_, _ = action.WithVerbosity(c, action.Loud, func() (struct{}, error) {
		if c.Local.Verbosity != action.Loud {
			t.Fatalf("expected Loud inside scope, got %v", c.Local.Verbosity)
		}
		return struct{}{}, nil
	})

	if c.Local.Verbosity != action.Normal {
		t.Fatalf("expected Normal restored after scope, got %v", c.Local.Verbosity)
	}
}

func TestQuietlySuppressesPutWhenButTracedStillRecords(t *testing.T) {
	var out bytes.Buffer
	g := action.NewGlobal(action.Options{Verbosity: action.Normal}, nil, registry.New(), action.NewWriterSink(&out), 1)
	c := action.NewRootContext(g, key.Erase[string]("rule", "root"))

	_, _ = action.Quietly(c, func() (struct{}, error) {
		return action.Traced(c, "step", func() (struct{}, error) {
			return struct{}{}, nil
		})
	})

	if len(c.Local.Traces) != 1 {
		t.Fatalf("expected one trace recorded even though quiet, got %d", len(c.Local.Traces))
	}
	if out.Len() != 0 {
		t.Fatalf("expected traced's info line to be suppressed under Quietly, got %q", out.String())
	}
}

func TestActionOnExceptionRunsCleanupOnlyOnFailure(t *testing.T) {
	c := newTestContext(action.DefaultOptions())
	_ = c

	ran := false
	_, err := action.ActionOnException(c, func() (struct{}, error) {
		return struct{}{}, errors.New("boom")
	}, func() { ran = true })
	if err == nil || !ran {
		t.Fatalf("expected cleanup to run on failure")
	}

	ran = false
	_, err = action.ActionOnException(c, func() (struct{}, error) {
		return struct{}{}, nil
	}, func() { ran = true })
	if err != nil || ran {
		t.Fatalf("expected cleanup NOT to run on success")
	}
}

func TestActionFinallyAlwaysRuns(t *testing.T) {
	c := newTestContext(action.DefaultOptions())

	ran := 0
	_, _ = action.ActionFinally(c, func() (struct{}, error) { return struct{}{}, nil }, func() { ran++ })
	_, _ = action.ActionFinally(c, func() (struct{}, error) { return struct{}{}, errors.New("x") }, func() { ran++ })

	if ran != 2 {
		t.Fatalf("expected cleanup to run on both paths, ran=%d", ran)
	}
}

func TestBlockApplyThenUnsafeAllow(t *testing.T) {
	c := newTestContext(action.DefaultOptions())

	_, _ = action.BlockApply(c, "no applies here", func() (struct{}, error) {
		if err := c.CheckBlocked(); err == nil {
			t.Fatalf("expected apply to be blocked")
		}
		_, _ = action.UnsafeAllowApply(c, func() (struct{}, error) {
			if err := c.CheckBlocked(); err != nil {
				t.Fatalf("expected apply to be allowed inside unsafeAllowApply, got %v", err)
			}
			return struct{}{}, nil
		})
		if err := c.CheckBlocked(); err == nil {
			t.Fatalf("expected block to be restored after unsafeAllowApply scope")
		}
		return struct{}{}, nil
	})

	if err := c.CheckBlocked(); err != nil {
		t.Fatalf("expected block lifted after blockApply scope, got %v", err)
	}
}

func TestRunAfterHooksReverseOrder(t *testing.T) {
	c := newTestContext(action.DefaultOptions())

	var order []int
	c.RunAfter(func() error { order = append(order, 1); return nil })
	c.RunAfter(func() error { order = append(order, 2); return nil })

	if err := c.Global.RunAfterHooks(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("expected reverse-registration order [2 1], got %v", order)
	}
}
