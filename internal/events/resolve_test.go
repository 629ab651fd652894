package events_test

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/engine"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/events"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

func newResolver() (*engine.Simulator, *events.Resolver) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sim := engine.NewSimulator(logger)
	return sim, events.NewResolver(sim, logger)
}

func TestResolveRecognized(t *testing.T) {
	sim, resolver := newResolver()
	h := sim.NewEventHandle(engine.Say("turn on the lights"))
	evt := events.NewEvent(sim, spx.RecognizedEvent, 0x10, h, nil)

	res, err := resolver.Resolve(evt)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Kind != events.KindRecognition {
		t.Fatalf("unexpected kind %s", res.Kind)
	}
	if res.Flags != events.Recognized|events.Speech {
		t.Fatalf("unexpected flags %s", res.Flags)
	}
	if res.Text() != "turn on the lights" {
		t.Fatalf("unexpected text %q", res.Text())
	}
	if res.Recognition.JSON == "" || !strings.Contains(res.Recognition.JSON, "DisplayText") {
		t.Fatalf("expected JSON result, got %q", res.Recognition.JSON)
	}
	if res.SessionID == "" || res.ResultID == "" {
		t.Fatalf("expected session and result ids, got %+v", res)
	}
	if sim.ReleaseCount(h) != 1 {
		t.Fatalf("expected event handle released once, got %d", sim.ReleaseCount(h))
	}
	if n := sim.LiveFamily(spx.FamilyRecognizerResult); n != 0 {
		t.Fatalf("expected result handles released, %d live", n)
	}
	if n := sim.LiveFamily(spx.FamilyPropertyBag); n != 0 {
		t.Fatalf("expected property bags released, %d live", n)
	}
}

func TestResolveCanceledWithError(t *testing.T) {
	sim, resolver := newResolver()
	h := sim.NewEventHandle(engine.Fail(spx.AuthenticationFailure, "bad key"))
	res, err := resolver.Resolve(events.NewEvent(sim, spx.CanceledEvent, 0x10, h, nil))

	var cancelErr *events.CancellationError
	if !errors.As(err, &cancelErr) {
		t.Fatalf("expected CancellationError, got %v", err)
	}
	if cancelErr.Code != spx.AuthenticationFailure || cancelErr.Details != "bad key" {
		t.Fatalf("unexpected cancellation %+v", cancelErr)
	}
	if res.Kind != events.KindCancellation || res.Cancellation == nil {
		t.Fatalf("expected populated cancellation result, got %+v", res)
	}
	if sim.ReleaseCount(h) != 1 {
		t.Fatalf("expected event handle released")
	}
}

func TestResolveEndOfStreamIsNotAnError(t *testing.T) {
	sim, resolver := newResolver()
	h := sim.NewEventHandle(engine.Utterance{
		Kind:         engine.UtteranceCanceled,
		CancelReason: spx.CancellationEndOfStream,
		CancelCode:   spx.NoError,
	})
	res, err := resolver.Resolve(events.NewEvent(sim, spx.CanceledEvent, 0x10, h, nil))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Cancellation.Reason != spx.CancellationEndOfStream {
		t.Fatalf("unexpected reason %s", res.Cancellation.Reason)
	}
}

func TestResolveNoMatch(t *testing.T) {
	sim, resolver := newResolver()
	h := sim.NewEventHandle(engine.Silence(spx.InitialSilenceTimeout))
	res, err := resolver.Resolve(events.NewEvent(sim, spx.RecognizedEvent, 0x10, h, nil))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Kind != events.KindNoMatch || res.NoMatch.Reason != spx.InitialSilenceTimeout {
		t.Fatalf("unexpected result %+v", res)
	}
	var nm *events.NoMatchError
	if !errors.As(res.Err(), &nm) {
		t.Fatalf("expected NoMatchError from Err, got %v", res.Err())
	}
}

func TestResolveInvalidUTF8ReleasesHandles(t *testing.T) {
	sim, resolver := newResolver()
	u := engine.Say("x")
	u.RawText = []byte{'o', 'k', 0xff}
	h := sim.NewEventHandle(u)
	_, err := resolver.Resolve(events.NewEvent(sim, spx.RecognizedEvent, 0x10, h, nil))
	if !errors.Is(err, spx.ErrInvalidUTF8) {
		t.Fatalf("expected ErrInvalidUTF8, got %v", err)
	}
	if sim.Live() != 0 {
		t.Fatalf("expected no live handles, got %d", sim.Live())
	}
}

func TestResolveSessionEnvelope(t *testing.T) {
	sim, resolver := newResolver()
	h := sim.NewEventHandle(engine.Say("ignored"))
	res, err := resolver.Resolve(events.NewEvent(sim, spx.SessionStartedEvent, 0x10, h, nil))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Kind != events.KindEnvelope || res.Flags != events.SessionStarted {
		t.Fatalf("unexpected envelope %+v", res)
	}
	if res.SessionID == "" {
		t.Fatalf("expected session id")
	}
	if res.Recognition != nil {
		t.Fatalf("session envelopes carry no recognition")
	}
}

func TestResolveClosedEvent(t *testing.T) {
	sim, resolver := newResolver()
	h := sim.NewEventHandle(engine.Say("hello"))
	evt := events.NewEvent(sim, spx.RecognizedEvent, 0x10, h, nil)
	evt.Close()
	if _, err := resolver.Resolve(evt); !errors.Is(err, spx.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if sim.ReleaseCount(h) != 1 {
		t.Fatalf("expected a single release, got %d", sim.ReleaseCount(h))
	}
}

func TestTicks(t *testing.T) {
	if got := events.Ticks(10_000_000); got.Seconds() != 1 {
		t.Fatalf("10M ticks should be one second, got %s", got)
	}
}
