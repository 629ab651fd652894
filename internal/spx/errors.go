package spx

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Engine status codes the adapter interprets.
const (
	CodeInvalidArg    uintptr = 0x005
	CodeTimeout       uintptr = 0x006
	CodeInvalidHandle uintptr = 0x021
)

var (
	ErrNulByte        = errors.New("spx: string contains interior NUL byte")
	ErrInvalidUTF8    = errors.New("spx: engine returned invalid UTF-8")
	ErrAlreadyStarted = errors.New("spx: session already started")
	ErrNotStarted     = errors.New("spx: session not started")
	ErrResourceAbsent = errors.New("spx: resource not configured")
	ErrWouldBlock     = errors.New("spx: no event ready")
	ErrClosed         = errors.New("spx: closed")
	ErrTimeout        = errors.New("spx: timed out")
	ErrInvalidHandle  = errors.New("spx: invalid handle")
)

// APIError wraps a non-zero engine status.
type APIError struct {
	Op   string
	Code uintptr
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spx: %s failed with code 0x%x", e.Op, e.Code)
}

// Is lets errors.Is match the timeout and invalid-handle sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Code == CodeTimeout
	case ErrInvalidHandle:
		return e.Code == CodeInvalidHandle
	}
	return false
}

// Check converts an engine status into an error. Zero is success.
func Check(op string, code uintptr) error {
	if code == 0 {
		return nil
	}
	return &APIError{Op: op, Code: code}
}

// CheckInput rejects strings that cannot cross into the engine intact.
func CheckInput(values ...string) error {
	for _, v := range values {
		if strings.IndexByte(v, 0) >= 0 {
			return fmt.Errorf("%w: %q", ErrNulByte, v)
		}
	}
	return nil
}

// DecodeOutput converts engine-owned bytes into a Go string. A trailing
// NUL and anything after it is ignored so fixed-size buffers can be passed
// as is.
func DecodeOutput(raw []byte) (string, error) {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	if !utf8.Valid(raw) {
		return "", ErrInvalidUTF8
	}
	return string(raw), nil
}
