package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeNonInit, "event handle is nil")

	if err == nil {
		t.Fatal("New should return non-nil error")
	}

	if err.Code != ErrCodeNonInit {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNonInit)
	}

	if err.Message != "event handle is nil" {
		t.Errorf("Message = %v, want 'event handle is nil'", err.Message)
	}

	if err.Underlying != nil {
		t.Error("Underlying should be nil for New error")
	}

	if len(err.Stack) == 0 {
		t.Error("Stack should be captured")
	}

	if err.Retryable {
		t.Error("Retryable should default to false for NON_INIT")
	}
}

func TestNew_TimeoutIsRetryable(t *testing.T) {
	err := New(ErrCodeTimeout, "wait timed out")
	if !err.IsRetryable() {
		t.Error("TIMEOUT errors should be retryable")
	}
}

func TestWrap(t *testing.T) {
	underlying := errors.New("connection refused")
	err := Wrap(underlying, ErrCodeGeneral, "dial named event")

	if err == nil {
		t.Fatal("Wrap should return non-nil error")
	}

	if err.Underlying != underlying {
		t.Error("Underlying should be preserved")
	}

	if !strings.Contains(err.Error(), "connection refused") {
		t.Error("Error string should include underlying error")
	}
}

func TestWrap_Nil(t *testing.T) {
	if err := Wrap(nil, ErrCodeGeneral, "test"); err != nil {
		t.Error("Wrap of nil should return nil")
	}
}

func TestWithContext(t *testing.T) {
	err := New(ErrCodeGeneral, "broker failed").
		WithContext("name", "sem1").
		WithContext("peers", 2)

	if err.Context["name"] != "sem1" {
		t.Error("Context should contain 'name' key")
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "name") || !strings.Contains(errStr, "sem1") {
		t.Error("Error string should include context")
	}
}

func TestIs_MatchesByCode(t *testing.T) {
	err := Wrap(errors.New("i/o timeout"), ErrCodeTimeout, "named wait")

	if !errors.Is(err, ErrTimeout) {
		t.Error("errors.Is should match sentinel by code")
	}
	if errors.Is(err, ErrGeneral) {
		t.Error("errors.Is should not match a different code")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if !errors.Is(wrapped, ErrTimeout) {
		t.Error("errors.Is should see through fmt wrapping")
	}
}

func TestIsCode(t *testing.T) {
	err := New(ErrCodeInterrupt, "read interrupted")

	if !IsCode(err, ErrCodeInterrupt) {
		t.Error("IsCode should return true for matching code")
	}
	if IsCode(err, ErrCodeTimeout) {
		t.Error("IsCode should return false for non-matching code")
	}
	if IsCode(nil, ErrCodeInterrupt) {
		t.Error("IsCode should return false for nil error")
	}
	if IsCode(errors.New("standard error"), ErrCodeGeneral) {
		t.Error("IsCode should return false for non-structured errors")
	}
}

func TestGetCode(t *testing.T) {
	if GetCode(New(ErrCodeTimeout, "timeout")) != ErrCodeTimeout {
		t.Error("GetCode should return the error code")
	}
	if GetCode(nil) != "" {
		t.Error("GetCode should return empty string for nil")
	}
	if GetCode(errors.New("standard")) != ErrCodeGeneral {
		t.Error("GetCode should return ErrCodeGeneral for non-structured errors")
	}
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want Status
	}{
		{nil, StatusNone},
		{ErrTimeout, StatusTimeout},
		{ErrNonInit, StatusNonInit},
		{ErrInterrupt, StatusInterrupt},
		{ErrGeneral, StatusGeneral},
		{errors.New("boom"), StatusGeneral},
		{fmt.Errorf("ctx: %w", ErrTimeout), StatusTimeout},
	}
	for _, tc := range cases {
		if got := StatusOf(tc.err); got != tc.want {
			t.Errorf("StatusOf(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestStatus_ErrRoundTrip(t *testing.T) {
	for _, s := range []Status{StatusNone, StatusGeneral, StatusTimeout, StatusNonInit, StatusInterrupt, StatusUnknown} {
		if got := StatusOf(s.Err()); got != s {
			t.Errorf("StatusOf(%v.Err()) = %v", s, got)
		}
	}
	if Status(42).String() != "UNKNOWN" {
		t.Error("out of range status should print as UNKNOWN")
	}
}

func TestStackTrace(t *testing.T) {
	err := New(ErrCodeGeneral, "test error")

	trace := err.StackTrace()
	if !strings.Contains(trace, "Stack trace:") {
		t.Error("StackTrace should contain header")
	}
	if len(err.Stack) == 0 {
		t.Error("Stack should have frames")
	}
}

func TestCaptureStack(t *testing.T) {
	frames := captureStack(0)

	found := false
	for _, frame := range frames {
		if strings.Contains(frame.Function, "Test") || strings.Contains(frame.Function, "errors") {
			found = true
			break
		}
	}

	if !found {
		t.Error("Stack should contain test or errors package frames")
	}
}
