package engine

import (
	"errors"
	"log/slog"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/config"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

// ErrNativeEngineUnavailable indicates that the Speech SDK binding was not compiled in.
var ErrNativeEngineUnavailable = errors.New("engine: native backend unavailable")

// New returns the engine the configuration asks for. The simulator is used
// when forced, and as a fallback when the native backend is unavailable or
// fails to initialise; the fallback error is returned alongside it.
func New(cfg config.Config, logger *slog.Logger) (spx.Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.UseSimulatedEngine {
		logger.Warn("simulated engine forced by configuration")
		return NewSimulator(logger), nil
	}

	if !NativeAvailable() {
		logger.Warn("native backend disabled at build time; using simulated engine")
		return NewSimulator(logger), ErrNativeEngineUnavailable
	}

	native, err := NewNative(logger)
	if err != nil {
		logger.Error("native engine initialisation failed; using simulator", "error", err)
		return NewSimulator(logger), err
	}
	logger.Info("native engine ready")
	return native, nil
}

var _ spx.Engine = (*Simulator)(nil)
