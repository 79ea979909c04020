package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTimesWaitTimeout(t *testing.T) {
	model := Times(5).Wait(2 * time.Second).Timeout(3 * time.Second)

	if model.retry != 5 {
		t.Errorf("expected retry=5, got %d", model.retry)
	}
	if model.waitTime != 2*time.Second {
		t.Errorf("expected waitTime=2s, got %s", model.waitTime)
	}
	if model.timeout != 3*time.Second {
		t.Errorf("expected timeout=3s, got %s", model.timeout)
	}
}

func TestTry_ActionSucceedsImmediately(t *testing.T) {
	model := Times(3).Wait(0)

	calls := 0
	action := func(attempt uint) error {
		calls++
		return nil
	}

	err := model.Try(action)
	if err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestTry_ActionFailsThenSucceeds(t *testing.T) {
	model := Times(3).Wait(0)

	calls := 0
	action := func(attempt uint) error {
		calls++
		if attempt < 1 {
			return errors.New("fail")
		}
		return nil
	}

	err := model.Try(action)
	if err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestTry_ActionAlwaysFails(t *testing.T) {
	model := Times(3).Wait(0)

	action := func(attempt uint) error {
		return errors.New("fail")
	}

	err := model.Try(action)
	if err == nil {
		t.Error("expected error, got nil")
	}
}

func TestTryWithContext_CancelledBeforeStart(t *testing.T) {
	model := Times(3).Wait(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := model.TryWithContext(ctx, func(attempt uint) error {
		calls++
		return errors.New("fail")
	})
	if err == nil {
		t.Error("expected error, got nil")
	}
	if calls != 0 {
		t.Errorf("expected 0 calls, got %d", calls)
	}
}

func TestTryWithContext_CancelledBetweenRetries(t *testing.T) {
	model := Times(10).Wait(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := model.TryWithContext(ctx, func(attempt uint) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if err == nil {
		t.Error("expected error, got nil")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestTryWithContext_Succeeds(t *testing.T) {
	model := Times(3).Wait(0)

	err := model.TryWithContext(context.Background(), func(attempt uint) error {
		if attempt == 0 {
			return errors.New("fail")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
