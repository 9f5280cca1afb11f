package types

import (
	"errors"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrAppealDeadline, "appeal window closed").
		WithCause(root).
		WithHTTPStatus(422).
		WithRetryable(false)

	if GetErrorCode(err) != ErrAppealDeadline {
		t.Fatalf("expected code %s, got %s", ErrAppealDeadline, GetErrorCode(err))
	}
	if IsRetryable(err) {
		t.Fatalf("expected non-retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestErrorf(t *testing.T) {
	t.Parallel()

	err := Errorf(ErrAgentUnknown, "agent %s not enrolled", "agent-7")
	if err.Message != "agent agent-7 not enrolled" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
}
