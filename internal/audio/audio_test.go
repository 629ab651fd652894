package audio_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/audio"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/engine"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

func newSimulator() (*engine.Simulator, *slog.Logger) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return engine.NewSimulator(logger), logger
}

func TestPushInputWriteAndClose(t *testing.T) {
	sim, logger := newSimulator()
	in, err := audio.Push(sim, audio.Format{}, logger)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	stream := in.Stream()
	if stream == nil {
		t.Fatal("expected push stream")
	}

	n, err := stream.Write(make([]byte, 640))
	if err != nil || n != 640 {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}
	if n, err := stream.Write(nil); err != nil || n != 0 {
		t.Fatalf("empty Write: n=%d err=%v", n, err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := stream.Write([]byte{1}); !errors.Is(err, spx.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	in.Release()
	if sim.Live() != 0 {
		t.Fatalf("expected every handle released, %d live", sim.Live())
	}
}

func TestPushRejectsPartialFormat(t *testing.T) {
	sim, logger := newSimulator()
	if _, err := audio.Push(sim, audio.Format{SamplesPerSecond: 8000}, logger); err == nil {
		t.Fatal("expected error for incomplete format")
	}
	if sim.Live() != 0 {
		t.Fatalf("expected no leaked handles, %d live", sim.Live())
	}
}

func TestWAVFileRejectsNul(t *testing.T) {
	sim, logger := newSimulator()
	if _, err := audio.WAVFile(sim, "a\x00.wav", logger); !errors.Is(err, spx.ErrNulByte) {
		t.Fatalf("expected ErrNulByte, got %v", err)
	}
	if _, err := audio.WAVFile(sim, " ", logger); err == nil {
		t.Fatal("expected engine to reject blank path")
	}
}

func TestNonPushInputs(t *testing.T) {
	sim, logger := newSimulator()
	for name, open := range map[string]func() (*audio.Input, error){
		"microphone": func() (*audio.Input, error) { return audio.Microphone(sim, logger) },
		"wav":        func() (*audio.Input, error) { return audio.WAVFile(sim, "clip.wav", logger) },
		"speaker":    func() (*audio.Input, error) { return audio.Speaker(sim, logger) },
		"wav output": func() (*audio.Input, error) { return audio.WAVOutput(sim, "out.wav", logger) },
	} {
		in, err := open()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if in.Stream() != nil {
			t.Fatalf("%s: unexpected push stream", name)
		}
		if !in.Handle().Valid() {
			t.Fatalf("%s: invalid handle", name)
		}
		in.Release()
	}
	if sim.Live() != 0 {
		t.Fatalf("expected every handle released, %d live", sim.Live())
	}

	var nilInput *audio.Input
	if nilInput.Handle() != spx.InvalidHandle || nilInput.Stream() != nil {
		t.Fatal("nil input accessors")
	}
	nilInput.Release()
}

func TestFormatString(t *testing.T) {
	if got := audio.DefaultFormat.String(); got != "16000Hz/16bit/1ch" {
		t.Fatalf("unexpected format %q", got)
	}
}
