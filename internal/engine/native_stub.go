//go:build !speechsdk

package engine

import (
	"log/slog"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

// NativeAvailable reports whether the Speech SDK binding is compiled in.
func NativeAvailable() bool { return false }

// NewNative returns an error when the binding is not built.
func NewNative(*slog.Logger) (spx.Engine, error) {
	return nil, ErrNativeEngineUnavailable
}
