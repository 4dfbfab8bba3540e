package pipeline

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tacivo/tacivo/internal/ai"
)

func TestIsRetryable(t *testing.T) {
	overloaded := &ai.RetryableError{StatusCode: 529, Message: "overloaded"}
	if !IsRetryable(overloaded) {
		t.Error("expected RetryableError to be retryable")
	}
	if !IsRetryable(fmt.Errorf("synthesize: %w", overloaded)) {
		t.Error("expected wrapped RetryableError to be retryable")
	}
	if IsRetryable(errors.New("claude api status 400")) {
		t.Error("expected plain error not to be retryable")
	}
}

func TestBackoff_Bounds(t *testing.T) {
	for attempt := range 8 {
		base := time.Duration(1<<uint(attempt)) * time.Second
		if base > 30*time.Second {
			base = 30 * time.Second
		}
		got := Backoff(attempt)
		if got < base || got >= base+base/2 {
			t.Errorf("attempt %d: backoff %v outside [%v, %v)", attempt, got, base, base+base/2)
		}
	}
}
