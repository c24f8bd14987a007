package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hollis-aero/fleetwatch/pkg/ferrors"
)

func TestRetryWithBackoffResultSuccessOnFirstAttempt(t *testing.T) {
	attempts := 0
	result, err := RetryWithBackoffResult(context.Background(), DefaultRetryConfig(), func() (int, error) {
		attempts++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("RetryWithBackoffResult() error = %v", err)
	}
	if result != 42 || attempts != 1 {
		t.Errorf("result=%d attempts=%d, want 42/1", result, attempts)
	}
}

func TestRetryWithBackoffResultSucceedsAfterTransientRetries(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2.0}

	result, err := RetryWithBackoffResult(context.Background(), cfg, func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, &ferrors.TransientError{Msg: "temporary"}
		}
		return 7, nil
	})
	if err != nil {
		t.Fatalf("RetryWithBackoffResult() error = %v", err)
	}
	if result != 7 || attempts != 3 {
		t.Errorf("result=%d attempts=%d, want 7/3", result, attempts)
	}
}

func TestRetryWithBackoffResultExhaustsRetries(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2.0}

	_, err := RetryWithBackoffResult(context.Background(), cfg, func() (int, error) {
		attempts++
		return 0, &ferrors.TransientError{Msg: "persistent"}
	})
	if err == nil {
		t.Fatal("expected error after max retries")
	}
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4 (initial + 3 retries)", attempts)
	}
}

func TestRetryWithBackoffResultDoesNotRetryNonTransient(t *testing.T) {
	attempts := 0
	_, err := RetryWithBackoffResult(context.Background(), DefaultRetryConfig(), func() (int, error) {
		attempts++
		return 0, errors.New("fatal, not retryable")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (non-transient errors must not be retried)", attempts)
	}
}

func TestRetryWithBackoffResultDoesNotRetryAuthError(t *testing.T) {
	attempts := 0
	_, err := RetryWithBackoffResult(context.Background(), DefaultRetryConfig(), func() (int, error) {
		attempts++
		return 0, &ferrors.AuthError{Msg: "bad credentials"}
	})
	if _, ok := ferrors.AsAuth(err); !ok {
		t.Errorf("error = %v, want *ferrors.AuthError", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (401 must never be retried, spec §4.4)", attempts)
	}
}

func TestRetryWithBackoffResultContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}

	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := RetryWithBackoffResult(ctx, cfg, func() (int, error) {
		attempts++
		return 0, &ferrors.TransientError{Msg: "temporary"}
	})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if attempts == 0 {
		t.Errorf("attempts = 0, want at least 1")
	}
}
