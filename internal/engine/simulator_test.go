package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

type recorded struct {
	category spx.Category
	source   spx.Handle
	event    spx.Handle
	ctx      spx.Context
}

type collector struct {
	mu     sync.Mutex
	events []recorded
}

func (c *collector) callback(category spx.Category) spx.Callback {
	return func(source, event spx.Handle, ctx spx.Context) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, recorded{category, source, event, ctx})
	}
}

func (c *collector) categories() []spx.Category {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]spx.Category, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.category)
	}
	return out
}

func (c *collector) waitFor(t *testing.T, category spx.Category) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, got := range c.categories() {
			if got == category {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", category)
}

func newRecognizer(t *testing.T, sim *Simulator, audio spx.Handle) spx.Handle {
	t.Helper()
	cfg, err := sim.NewConfigFromSubscription("key", "westus")
	if err != nil {
		t.Fatalf("NewConfigFromSubscription: %v", err)
	}
	reco, err := sim.NewRecognizer(spx.SpeechRecognizer, cfg, audio)
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}
	return reco
}

func TestSimulatorRejectsEmptyCredentials(t *testing.T) {
	sim := NewSimulator(discardLogger())
	if _, err := sim.NewConfigFromSubscription("", "westus"); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestSimulatorReleaseAndValidity(t *testing.T) {
	sim := NewSimulator(discardLogger())
	cfg, err := sim.NewConfigFromSubscription("key", "westus")
	if err != nil {
		t.Fatalf("NewConfigFromSubscription: %v", err)
	}
	if !sim.IsValid(spx.FamilySpeechConfig, cfg) {
		t.Fatalf("expected config handle valid")
	}
	if err := sim.Release(spx.FamilySpeechConfig, cfg); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if sim.IsValid(spx.FamilySpeechConfig, cfg) {
		t.Fatalf("expected config handle invalid after release")
	}
	if got := sim.ReleaseCount(cfg); got != 1 {
		t.Fatalf("expected one release, got %d", got)
	}
	err = sim.Release(spx.FamilySpeechConfig, cfg)
	if !errors.Is(err, spx.ErrInvalidHandle) {
		t.Fatalf("expected ErrInvalidHandle on double release, got %v", err)
	}
}

func TestSimulatorContinuousFromFile(t *testing.T) {
	sim := NewSimulator(discardLogger())
	sim.SetScript(Say("hello there world"))
	audio, err := sim.NewAudioInputFromWAVFile("/tmp/in.wav")
	if err != nil {
		t.Fatalf("NewAudioInputFromWAVFile: %v", err)
	}
	reco := newRecognizer(t, sim, audio)

	var c collector
	for _, cat := range []spx.Category{spx.SessionStartedEvent, spx.RecognizingEvent, spx.RecognizedEvent, spx.SessionStoppedEvent} {
		if err := sim.SetRecognizerCallback(reco, cat, c.callback(cat), 42); err != nil {
			t.Fatalf("SetRecognizerCallback(%s): %v", cat, err)
		}
	}

	async, err := sim.StartContinuous(reco)
	if err != nil {
		t.Fatalf("StartContinuous: %v", err)
	}
	if err := sim.WaitStartContinuous(async, time.Second); err != nil {
		t.Fatalf("WaitStartContinuous: %v", err)
	}
	c.waitFor(t, spx.SessionStoppedEvent)
	if err := sim.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := []spx.Category{
		spx.SessionStartedEvent,
		spx.RecognizingEvent,
		spx.RecognizingEvent,
		spx.RecognizedEvent,
		spx.SessionStoppedEvent,
	}
	got := c.categories()
	if len(got) != len(want) {
		t.Fatalf("unexpected events: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: want %s, got %s", i, want[i], got[i])
		}
	}
	for _, e := range c.events {
		if e.ctx != 42 {
			t.Fatalf("expected context 42, got %d", e.ctx)
		}
		if e.source != reco {
			t.Fatalf("expected source %d, got %d", reco, e.source)
		}
	}

	final := c.events[3].event
	res, err := sim.EventResult(spx.FamilyRecognizerEvent, final)
	if err != nil {
		t.Fatalf("EventResult: %v", err)
	}
	text, err := sim.ResultText(res)
	if err != nil {
		t.Fatalf("ResultText: %v", err)
	}
	if string(text) != "hello there world" {
		t.Fatalf("unexpected text %q", text)
	}
	reason, err := sim.ResultReason(spx.FamilyRecognizerResult, res)
	if err != nil || reason != spx.ReasonRecognizedSpeech {
		t.Fatalf("unexpected reason %v (%v)", reason, err)
	}
}

func TestSimulatorRecognizeOnceFromPushStream(t *testing.T) {
	sim := NewSimulator(discardLogger())
	format, err := sim.NewDefaultAudioFormat()
	if err != nil {
		t.Fatalf("NewDefaultAudioFormat: %v", err)
	}
	stream, err := sim.NewPushAudioStream(format)
	if err != nil {
		t.Fatalf("NewPushAudioStream: %v", err)
	}
	audio, err := sim.NewAudioInputFromStream(stream)
	if err != nil {
		t.Fatalf("NewAudioInputFromStream: %v", err)
	}
	reco := newRecognizer(t, sim, audio)

	done := make(chan spx.Handle, 1)
	go func() {
		h, err := sim.RecognizeOnce(reco)
		if err != nil {
			t.Errorf("RecognizeOnce: %v", err)
		}
		done <- h
	}()

	if err := sim.PushAudioStreamWrite(stream, make([]byte, 3200)); err != nil {
		t.Fatalf("PushAudioStreamWrite: %v", err)
	}
	select {
	case <-done:
		t.Fatalf("RecognizeOnce returned before the stream closed")
	case <-time.After(20 * time.Millisecond):
	}
	if err := sim.PushAudioStreamClose(stream); err != nil {
		t.Fatalf("PushAudioStreamClose: %v", err)
	}

	select {
	case res := <-done:
		text, err := sim.ResultText(res)
		if err != nil {
			t.Fatalf("ResultText: %v", err)
		}
		if string(text) != "simulated transcript of 3200 bytes" {
			t.Fatalf("unexpected text %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("RecognizeOnce did not return")
	}
}

func TestSimulatorHangOnStop(t *testing.T) {
	sim := NewSimulator(discardLogger())
	sim.SetHangOnStop(true)
	mic, err := sim.NewAudioInputFromMicrophone()
	if err != nil {
		t.Fatalf("NewAudioInputFromMicrophone: %v", err)
	}
	reco := newRecognizer(t, sim, mic)
	if _, err := sim.StartContinuous(reco); err != nil {
		t.Fatalf("StartContinuous: %v", err)
	}
	async, err := sim.StopContinuous(reco)
	if err != nil {
		t.Fatalf("StopContinuous: %v", err)
	}
	err = sim.WaitStopContinuous(async, 10*time.Millisecond)
	if !errors.Is(err, spx.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	sim.Close()
}
