package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesCodeAndContext(t *testing.T) {
	err := New(
		CodeExecution,
		WithStrategy("momentum_ma20"),
		WithPath("./strategies/momentum_ma20"),
		WithHTTP(400),
		WithMessage("signal evaluation failed"),
		WithCause(errors.New("TypeError: close is undefined")),
	)

	out := err.Error()
	if !strings.Contains(out, "code=execution") {
		t.Fatalf("expected code marker in error string: %s", out)
	}
	if !strings.Contains(out, "strategy=momentum_ma20") {
		t.Fatalf("expected strategy marker in error string: %s", out)
	}
	if !strings.Contains(out, "path=\"./strategies/momentum_ma20\"") {
		t.Fatalf("expected path marker in error string: %s", out)
	}
	if !strings.Contains(out, "message=\"signal evaluation failed\"") {
		t.Fatalf("expected message in error string: %s", out)
	}
	if !strings.Contains(out, "cause=\"TypeError: close is undefined\"") {
		t.Fatalf("expected wrapped cause in error string: %s", out)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("missing metadata")
	err := New(CodeNotFound, WithCause(cause))
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to reach the cause")
	}
}

func TestPredicatesMatchThroughWrapping(t *testing.T) {
	base := NotFound("strategy 'x' not found")
	wrapped := fmt.Errorf("load bundle: %w", base)

	if !IsNotFound(wrapped) {
		t.Fatalf("expected IsNotFound to match wrapped error")
	}
	if IsInvalidInput(wrapped) {
		t.Fatalf("did not expect IsInvalidInput to match")
	}
	if got := CodeOf(wrapped); got != CodeNotFound {
		t.Fatalf("expected CodeOf to report not_found, got %q", got)
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if got := CodeOf(errors.New("boom")); got != CodeInternal {
		t.Fatalf("expected internal code for plain errors, got %q", got)
	}
}

func TestEmptyCodeFormatsAsInternal(t *testing.T) {
	err := New("")
	if !strings.Contains(err.Error(), "code=internal") {
		t.Fatalf("expected empty code to format as internal: %s", err.Error())
	}
}
