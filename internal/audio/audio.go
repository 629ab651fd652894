// Package audio wraps engine audio configurations, formats and push
// streams.
package audio

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/handle"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

// API is the subset of the engine this package uses.
type API interface {
	spx.HandleAPI
	spx.AudioAPI
}

// Format describes PCM audio.
type Format struct {
	SamplesPerSecond uint32
	BitsPerSample    uint8
	Channels         uint8
}

// DefaultFormat is the engine's default input format.
var DefaultFormat = Format{SamplesPerSecond: 16000, BitsPerSample: 16, Channels: 1}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dbit/%dch", f.SamplesPerSecond, f.BitsPerSample, f.Channels)
}

// Input is an audio configuration handed to a recognizer or synthesizer.
// Push-mode inputs also own the stream audio is written into.
type Input struct {
	config *handle.Owned
	stream *PushStream
}

// Microphone opens the default capture device.
func Microphone(api API, logger *slog.Logger) (*Input, error) {
	h, err := api.NewAudioInputFromMicrophone()
	if err != nil {
		return nil, fmt.Errorf("audio: microphone: %w", err)
	}
	return &Input{config: handle.New(api, spx.FamilyAudioConfig, h, logger)}, nil
}

// WAVFile reads input from a WAV file.
func WAVFile(api API, path string, logger *slog.Logger) (*Input, error) {
	if err := spx.CheckInput(path); err != nil {
		return nil, err
	}
	h, err := api.NewAudioInputFromWAVFile(path)
	if err != nil {
		return nil, fmt.Errorf("audio: wav input %q: %w", path, err)
	}
	return &Input{config: handle.New(api, spx.FamilyAudioConfig, h, logger)}, nil
}

// Push creates an input fed through Write. A zero format selects
// DefaultFormat.
func Push(api API, format Format, logger *slog.Logger) (*Input, error) {
	stream, err := NewPushStream(api, format, logger)
	if err != nil {
		return nil, err
	}
	h, err := api.NewAudioInputFromStream(stream.Handle())
	if err != nil {
		stream.Release()
		return nil, fmt.Errorf("audio: push input: %w", err)
	}
	return &Input{config: handle.New(api, spx.FamilyAudioConfig, h, logger), stream: stream}, nil
}

// Speaker plays synthesized audio on the default output device.
func Speaker(api API, logger *slog.Logger) (*Input, error) {
	h, err := api.NewAudioOutputFromSpeaker()
	if err != nil {
		return nil, fmt.Errorf("audio: speaker: %w", err)
	}
	return &Input{config: handle.New(api, spx.FamilyAudioConfig, h, logger)}, nil
}

// WAVOutput writes synthesized audio to a WAV file.
func WAVOutput(api API, path string, logger *slog.Logger) (*Input, error) {
	if err := spx.CheckInput(path); err != nil {
		return nil, err
	}
	h, err := api.NewAudioOutputFromWAVFile(path)
	if err != nil {
		return nil, fmt.Errorf("audio: wav output %q: %w", path, err)
	}
	return &Input{config: handle.New(api, spx.FamilyAudioConfig, h, logger)}, nil
}

// Handle returns the audio configuration handle, or spx.InvalidHandle for
// a nil Input.
func (in *Input) Handle() spx.Handle {
	if in == nil {
		return spx.InvalidHandle
	}
	return in.config.Handle()
}

// Stream returns the push stream, or nil when the input is not push-mode.
func (in *Input) Stream() *PushStream {
	if in == nil {
		return nil
	}
	return in.stream
}

// Release releases the configuration and stream handles.
func (in *Input) Release() {
	if in == nil {
		return
	}
	in.config.Release()
	in.stream.Release()
}

// PushStream is a writable engine audio stream.
type PushStream struct {
	api    API
	format *handle.Owned
	h      *handle.Owned
	closed atomic.Bool
}

// NewPushStream creates a push stream with the given format.
func NewPushStream(api API, format Format, logger *slog.Logger) (*PushStream, error) {
	if format == (Format{}) {
		format = DefaultFormat
	}
	fh, err := api.NewPCMAudioFormat(format.SamplesPerSecond, format.BitsPerSample, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("audio: format %s: %w", format, err)
	}
	formatHandle := handle.New(api, spx.FamilyAudioStreamFormat, fh, logger)
	sh, err := api.NewPushAudioStream(fh)
	if err != nil {
		formatHandle.Release()
		return nil, fmt.Errorf("audio: push stream: %w", err)
	}
	return &PushStream{
		api:    api,
		format: formatHandle,
		h:      handle.New(api, spx.FamilyAudioStream, sh, logger),
	}, nil
}

// Handle returns the stream handle.
func (p *PushStream) Handle() spx.Handle {
	return p.h.Handle()
}

// Write pushes audio bytes.
func (p *PushStream) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, spx.ErrClosed
	}
	if len(b) == 0 {
		return 0, nil
	}
	if err := p.api.PushAudioStreamWrite(p.h.Handle(), b); err != nil {
		return 0, fmt.Errorf("audio: write: %w", err)
	}
	return len(b), nil
}

// Close signals end of stream. Further writes fail.
func (p *PushStream) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := p.api.PushAudioStreamClose(p.h.Handle()); err != nil {
		return fmt.Errorf("audio: close: %w", err)
	}
	return nil
}

// Release frees the stream and format handles.
func (p *PushStream) Release() {
	if p == nil {
		return
	}
	p.h.Release()
	p.format.Release()
}
