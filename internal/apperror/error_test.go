package apperror

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

var errBoom = errors.New("boom")

func TestNew_UsesRegisteredMessage(t *testing.T) {
	err := New(CodeBlockNotFound, WithContext("block 42"))

	if err.Message != "Block not found" {
		t.Errorf("Message = %q, want %q", err.Message, "Block not found")
	}
	if !strings.Contains(err.Error(), "block 42") {
		t.Errorf("Error() = %q, want context included", err.Error())
	}
}

func TestNew_FallsBackToCode(t *testing.T) {
	err := New(Code("SOMETHING_NEW"))
	if err.Message != "SOMETHING_NEW" {
		t.Errorf("Message = %q, want code as message", err.Message)
	}
}

func TestIs_ComparesByCode(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", New(CodeReorgTooDeep, WithCause(errBoom)))

	if !errors.Is(wrapped, New(CodeReorgTooDeep)) {
		t.Error("expected errors.Is to match by code")
	}
	if errors.Is(wrapped, New(CodeMalformedHeader)) {
		t.Error("expected errors.Is to reject a different code")
	}
	if !errors.Is(wrapped, errBoom) {
		t.Error("expected the cause to stay reachable")
	}
	if !IsCode(wrapped, CodeReorgTooDeep) {
		t.Error("IsCode() = false, want true")
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantNil  bool
		wantCode Code
	}{
		{name: "nil stays nil", err: nil, wantNil: true},
		{name: "plain error gets code", err: errBoom, wantCode: CodeEthereumRPCError},
		{name: "app error keeps code", err: New(CodeBlockNotFound), wantCode: CodeBlockNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Wrap(tt.err, CodeEthereumRPCError, "fetch")
			if tt.wantNil {
				if got != nil {
					t.Fatalf("Wrap() = %v, want nil", got)
				}
				return
			}
			if got.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", got.Code, tt.wantCode)
			}
		})
	}
}

func TestIsTemporary(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{New(CodeEthereumRPCError), true},
		{New(CodeCircuitOpen), true},
		{New(CodeMalformedHeader), false},
		{errBoom, false},
		{fmt.Errorf("ctx: %w", New(CodeServiceTimeout)), true},
	}

	for _, tt := range tests {
		if got := IsTemporary(tt.err); got != tt.want {
			t.Errorf("IsTemporary(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestGetCode_Unknown(t *testing.T) {
	if got := GetCode(errBoom); got != CodeUnknownError {
		t.Errorf("GetCode() = %s, want %s", got, CodeUnknownError)
	}
}

func TestIsAppError(t *testing.T) {
	if !IsAppError(fmt.Errorf("fetch: %w", New(CodeCircuitOpen))) {
		t.Error("wrapped AppError not recognised")
	}
	if IsAppError(errBoom) {
		t.Error("plain error recognised as AppError")
	}
}

func TestAppError_ToLog(t *testing.T) {
	err := New(CodeRetriesExhausted, WithCause(errBoom), WithContext("stream 1"))

	fields := err.ToLog()
	if fields["code"] != CodeRetriesExhausted {
		t.Errorf("code = %v", fields["code"])
	}
	if fields["cause"] != "boom" {
		t.Errorf("cause = %v", fields["cause"])
	}
	if fields["context"] != "stream 1" {
		t.Errorf("context = %v", fields["context"])
	}
	if _, ok := fields["traceId"]; ok {
		t.Error("traceId present without a trace")
	}
}
