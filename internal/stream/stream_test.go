package stream_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/bridge"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/engine"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/events"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/stream"
)

type fixture struct {
	sim      *engine.Simulator
	registry *bridge.Registry
	reg      *bridge.Registration
	resolver *events.Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sim := engine.NewSimulator(logger)
	registry := bridge.NewRegistry(sim, logger, nil)
	return &fixture{
		sim:      sim,
		registry: registry,
		reg:      registry.Register(),
		resolver: events.NewResolver(sim, logger),
	}
}

func (f *fixture) deliver(c spx.Category, u engine.Utterance) spx.Handle {
	h := f.sim.NewEventHandle(u)
	f.registry.Trampoline(c)(0x30, h, f.reg.Context())
	return h
}

type failureCounter struct{ n int }

func (c *failureCounter) ClassificationFailed() { c.n++ }

func TestFilterReleasesUnmatchedEvents(t *testing.T) {
	f := newFixture(t)
	skipped := f.deliver(spx.RecognizingEvent, engine.Say("partial"))
	f.deliver(spx.RecognizedEvent, engine.Say("final"))

	es := stream.New(f.reg, f.resolver, events.Recognized, events.SessionStopped)
	evt, err := es.TryNext()
	if err != nil {
		t.Fatalf("TryNext: %v", err)
	}
	defer evt.Close()
	if evt.Flags() != events.Recognized {
		t.Fatalf("unexpected flags %s", evt.Flags())
	}
	if f.sim.ReleaseCount(skipped) != 1 {
		t.Fatalf("expected filtered event released, got %d", f.sim.ReleaseCount(skipped))
	}
	if _, err := es.TryNext(); !errors.Is(err, spx.ErrWouldBlock) {
		t.Fatalf("expected ErrWouldBlock, got %v", err)
	}
}

func TestStopEventLatchesAndDrains(t *testing.T) {
	f := newFixture(t)
	f.deliver(spx.RecognizedEvent, engine.Say("one"))
	f.deliver(spx.SessionStoppedEvent, engine.Say(""))
	trailing := f.deliver(spx.RecognizedEvent, engine.Say("after stop"))

	es := stream.New(f.reg, f.resolver, events.Recognized, events.SessionStopped)
	var texts []string
	for res, err := range es.Resulting().All(context.Background()) {
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		texts = append(texts, res.Text())
	}
	if len(texts) != 1 || texts[0] != "one" {
		t.Fatalf("unexpected texts %v", texts)
	}
	if !es.Stopped() {
		t.Fatal("expected stream latched")
	}
	if _, err := es.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after stop, got %v", err)
	}
	if f.sim.ReleaseCount(trailing) != 1 {
		t.Fatalf("expected trailing event drained, got %d", f.sim.ReleaseCount(trailing))
	}
}

func TestStopEventIsYieldedWhenFiltered(t *testing.T) {
	f := newFixture(t)
	f.deliver(spx.SessionStoppedEvent, engine.Say(""))

	es := stream.New(f.reg, f.resolver, events.Session, events.SessionStopped)
	evt, err := es.TryNext()
	if err != nil {
		t.Fatalf("TryNext: %v", err)
	}
	evt.Close()
	if evt.Flags() != events.SessionStopped {
		t.Fatalf("unexpected flags %s", evt.Flags())
	}
	if _, err := es.TryNext(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestClassifyErrorIsNotTerminal(t *testing.T) {
	f := newFixture(t)
	bad := engine.Say("x")
	bad.RawText = []byte{'b', 'a', 'd', 0xff}
	f.deliver(spx.RecognizedEvent, bad)
	f.deliver(spx.RecognizedEvent, engine.Say("good"))
	f.reg.Close()

	counter := &failureCounter{}
	results := stream.New(f.reg, f.resolver, events.Recognized, events.SessionStopped).
		WithObserver(counter).
		Resulting()

	_, err := results.Next(context.Background())
	var ce *stream.ClassifyError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ClassifyError, got %v", err)
	}
	if !errors.Is(err, spx.ErrInvalidUTF8) {
		t.Fatalf("expected wrapped ErrInvalidUTF8, got %v", err)
	}
	if stream.Terminal(err) {
		t.Fatal("classification failure must not be terminal")
	}
	res, err := results.Next(context.Background())
	if err != nil {
		t.Fatalf("Next after failure: %v", err)
	}
	if res.Text() != "good" {
		t.Fatalf("unexpected text %q", res.Text())
	}
	if _, err := results.Next(context.Background()); !errors.Is(err, io.EOF) || !stream.Terminal(err) {
		t.Fatalf("expected terminal io.EOF, got %v", err)
	}
	if counter.n != 1 {
		t.Fatalf("expected one classification failure, got %d", counter.n)
	}
}

func TestTextAndJSONViews(t *testing.T) {
	f := newFixture(t)
	f.deliver(spx.RecognizingEvent, engine.Say("hel"))
	f.deliver(spx.RecognizedEvent, engine.Say("hello"))
	f.deliver(spx.RecognizedEvent, engine.Say("world"))

	text := stream.New(f.reg, f.resolver, events.All, events.SessionStopped).Text()
	got, err := text.Next(context.Background())
	if err != nil {
		t.Fatalf("Text.Next: %v", err)
	}
	if got != "hello" {
		t.Fatalf("unexpected text %q", got)
	}

	js := stream.New(f.reg, f.resolver, events.Recognized, events.SessionStopped).Resulting().JSON()
	doc, err := js.Next(context.Background())
	if err != nil {
		t.Fatalf("JSON.Next: %v", err)
	}
	if doc == "" || doc[0] != '{' {
		t.Fatalf("expected JSON object, got %q", doc)
	}
}

func TestCloseReleasesBufferedEvents(t *testing.T) {
	f := newFixture(t)
	a := f.deliver(spx.RecognizedEvent, engine.Say("a"))
	b := f.deliver(spx.RecognizedEvent, engine.Say("b"))

	es := stream.New(f.reg, f.resolver, events.All, events.SessionStopped)
	if err := es.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if f.sim.ReleaseCount(a) != 1 || f.sim.ReleaseCount(b) != 1 {
		t.Fatal("expected buffered events released on close")
	}
	if f.sim.LiveFamily(spx.FamilyRecognizerEvent) != 0 {
		t.Fatal("expected no live events")
	}
}

func TestTerminal(t *testing.T) {
	if stream.Terminal(nil) {
		t.Fatal("nil is not terminal")
	}
	if !stream.Terminal(io.EOF) || !stream.Terminal(context.Canceled) {
		t.Fatal("end of stream and cancellation are terminal")
	}
	if stream.Terminal(&stream.ClassifyError{Flags: events.Recognized, Err: spx.ErrInvalidUTF8}) {
		t.Fatal("classify errors are not terminal")
	}
}

var recognizerCategories = []spx.Category{
	spx.SessionStartedEvent,
	spx.SessionStoppedEvent,
	spx.SpeechStartDetectedEvent,
	spx.SpeechEndDetectedEvent,
	spx.RecognizingEvent,
	spx.RecognizedEvent,
	spx.CanceledEvent,
}

// For random filters and delivery orders the stream yields exactly the
// events intersecting the filter, in delivery order, up to and including
// the stop event, and every event is released once.
func TestFilteredSubsequenceMatchesDeliveryOrder(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for round := 0; round < 300; round++ {
		f := newFixture(t)
		filter := events.Flags(rng.Uint64()) & events.All

		var (
			delivered []spx.Handle
			want      []spx.Handle
			stopped   bool
		)
		n := rng.IntN(16)
		for i := 0; i < n; i++ {
			c := recognizerCategories[rng.IntN(len(recognizerCategories))]
			h := f.deliver(c, engine.Say("w"))
			delivered = append(delivered, h)
			if !stopped && events.CategoryFlags(c).Intersects(filter) {
				want = append(want, h)
			}
			if c == spx.SessionStoppedEvent {
				stopped = true
			}
		}
		if !stopped {
			f.reg.Close()
		}

		es := stream.New(f.reg, f.resolver, filter, events.SessionStopped)
		var got []spx.Handle
		for evt, err := range es.All(context.Background()) {
			if err != nil {
				t.Fatalf("round %d: All: %v", round, err)
			}
			got = append(got, evt.Handle())
			evt.Close()
		}
		if _, err := es.TryNext(); !errors.Is(err, io.EOF) {
			t.Fatalf("round %d: expected io.EOF after the end, got %v", round, err)
		}
		if !slices.Equal(got, want) {
			t.Fatalf("round %d: filter %s yielded %v, want %v", round, filter, got, want)
		}
		for _, h := range delivered {
			if n := f.sim.ReleaseCount(h); n != 1 {
				t.Fatalf("round %d: event %v released %d times", round, h, n)
			}
		}
	}
}

func TestFilterTable(t *testing.T) {
	seq := []spx.Category{
		spx.SessionStartedEvent,
		spx.RecognizingEvent,
		spx.RecognizingEvent,
		spx.RecognizedEvent,
		spx.SessionStoppedEvent,
		spx.RecognizedEvent,
	}
	cases := []struct {
		filter events.Flags
		want   []int
	}{
		{events.Recognized, []int{3}},
		{events.RecognitionEvents, []int{1, 2, 3}},
		{events.Session, []int{0, 4}},
		{events.All, []int{0, 1, 2, 3, 4}},
		{0, nil},
	}
	for _, tc := range cases {
		t.Run(tc.filter.String(), func(t *testing.T) {
			f := newFixture(t)
			var handles []spx.Handle
			for _, c := range seq {
				handles = append(handles, f.deliver(c, engine.Say("w")))
			}
			es := stream.New(f.reg, f.resolver, tc.filter, events.SessionStopped)
			var got []int
			for evt, err := range es.All(context.Background()) {
				if err != nil {
					t.Fatalf("All: %v", err)
				}
				got = append(got, slices.Index(handles, evt.Handle()))
				evt.Close()
			}
			if !slices.Equal(got, tc.want) {
				t.Fatalf("got positions %v, want %v", got, tc.want)
			}
		})
	}
}
