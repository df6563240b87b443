package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			if result := test.class.String(); result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"sink unavailable", ErrSinkUnavailable, true},
		{"circuit open", ErrCircuitOpen, true},
		{"context canceled", context.Canceled, true},
		{"type mismatch", ErrTypeMismatch, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("x")}, true},
		{"classified invalid", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("timeout")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := IsTransient(test.err); result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"unknown keyword", ErrUnknownKeyword, true},
		{"malformed keyword", ErrMalformedKeyword, true},
		{"type mismatch", ErrTypeMismatch, true},
		{"point not found", ErrPointNotFound, true},
		{"wrapped missing option", fmt.Errorf("ctx: %w", ErrMissingOption), true},
		{"connection lost", ErrConnectionLost, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := IsInvalid(test.err); result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	if IsFatal(nil) {
		t.Error("nil must not be fatal")
	}
	if !IsFatal(ErrResourceExhausted) {
		t.Error("resource exhausted must be fatal")
	}
	if !IsFatal(WrapFatal(errors.New("listen"), "Server", "Start", "bind")) {
		t.Error("WrapFatal result must be fatal")
	}
	if IsFatal(ErrInvalidConfig) {
		t.Error("invalid config is classified invalid, not fatal")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil", nil, ErrorTransient},
		{"wrapped invalid", WrapInvalid(ErrTypeMismatch, "Add", "Out", "combine"), ErrorInvalid},
		{"wrapped transient keeps class", WrapTransient(ErrTypeMismatch, "Add", "Out", "combine"), ErrorTransient},
		{"bare invalid sentinel", ErrUnknownFunction, ErrorInvalid},
		{"unknown", errors.New("something odd"), ErrorTransient},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := Classify(test.err); result != test.expected {
				t.Errorf("expected %v, got %v", test.expected, result)
			}
		})
	}
}

func TestWrap_Format(t *testing.T) {
	err := Wrap(ErrPointNotFound, "PointID", "Out", "lookup /App/Load")
	want := "PointID.Out: lookup /App/Load failed: point not found"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
	if !errors.Is(err, ErrPointNotFound) {
		t.Error("wrapped error must unwrap to the sentinel")
	}
	if Wrap(nil, "a", "b", "c") != nil {
		t.Error("wrapping nil must return nil")
	}
}

func TestWrapInvalid_Fields(t *testing.T) {
	err := WrapInvalid(ErrMissingInput, "Builder", "Build", "input 'pass'")

	var ce *ClassifiedError
	if !errors.As(err, &ce) {
		t.Fatal("expected a ClassifiedError")
	}
	if ce.Component != "Builder" || ce.Operation != "Build" {
		t.Errorf("unexpected context %s.%s", ce.Component, ce.Operation)
	}
	if !errors.Is(err, ErrMissingInput) {
		t.Error("classified error must unwrap to the sentinel")
	}
}
