package spx

import (
	"errors"
	"fmt"
	"testing"
)

func TestCheckInputRejectsNul(t *testing.T) {
	if err := CheckInput("en-US", "", "héllo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := CheckInput("ok", "bad\x00value"); !errors.Is(err, ErrNulByte) {
		t.Fatalf("expected ErrNulByte, got %v", err)
	}
}

func TestDecodeOutput(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want string
		err  error
	}{
		{name: "empty", in: nil, want: ""},
		{name: "ascii", in: []byte("hello"), want: "hello"},
		{name: "unicode", in: []byte("zażółć"), want: "zażółć"},
		{name: "nul terminated buffer", in: []byte("abc\x00\x00garbage"), want: "abc"},
		{name: "invalid", in: []byte{0xff, 0xfe}, err: ErrInvalidUTF8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeOutput(tc.in)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("expected %v, got %v", tc.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAPIErrorMatchesSentinels(t *testing.T) {
	if err := Check("noop", 0); err != nil {
		t.Fatalf("zero status must be nil, got %v", err)
	}
	err := fmt.Errorf("wait: %w", Check("recognizer_stop_continuous_recognition_async_wait_for", CodeTimeout))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout match, got %v", err)
	}
	if errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("timeout must not match invalid handle")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != CodeTimeout {
		t.Fatalf("expected APIError with timeout code, got %v", err)
	}
}

func TestInvalidHandleDistinct(t *testing.T) {
	if InvalidHandle == 0 {
		t.Fatalf("invalid marker must differ from zero")
	}
	if InvalidHandle.Valid() {
		t.Fatalf("invalid marker reported valid")
	}
	if !Handle(1).Valid() {
		t.Fatalf("ordinary handle reported invalid")
	}
	if FamilyConnection.HasValidityCheck() {
		t.Fatalf("connection family has no validity routine")
	}
	if !FamilyRecognizerEvent.HasValidityCheck() {
		t.Fatalf("event family must have a validity routine")
	}
}
