package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/audio"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/bridge"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/events"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/handle"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/stream"
)

// Synthesizer converts text or SSML to audio. Its event stream ends at the
// first cancellation.
type Synthesizer struct {
	client *Client
	h      *handle.Owned
	output *audio.Input
	flags  events.Flags
	log    *slog.Logger

	mu         sync.Mutex
	state      State
	reg        *bridge.Registration
	categories []spx.Category
	inflight   sync.WaitGroup
}

func newSynthesizer(c *Client, h spx.Handle, out *audio.Input, flags events.Flags) *Synthesizer {
	log := c.log.With("component", "session.Synthesizer")
	return &Synthesizer{
		client: c,
		h:      handle.New(c.api, spx.FamilySynthesizer, h, log),
		output: out,
		flags:  flags,
		log:    log,
	}
}

// Handle returns the synthesizer handle.
func (s *Synthesizer) Handle() spx.Handle { return s.h.Handle() }

// State returns the lifecycle state.
func (s *Synthesizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Started reports whether callbacks are registered.
func (s *Synthesizer) Started() bool { return s.State() == Running }

// SpeakText synthesizes text and waits for completion.
func (s *Synthesizer) SpeakText(ctx context.Context, text string) (events.Result, error) {
	return s.speak(ctx, text, s.client.api.SpeakText)
}

// SpeakSSML synthesizes an SSML document and waits for completion.
func (s *Synthesizer) SpeakSSML(ctx context.Context, ssml string) (events.Result, error) {
	return s.speak(ctx, ssml, s.client.api.SpeakSSML)
}

// StartSpeakingText begins synthesis and returns once audio has started.
// Progress is reported on the started event stream.
func (s *Synthesizer) StartSpeakingText(text string) (events.Result, error) {
	return s.startSpeaking(text, s.client.api.StartSpeakingText)
}

// StartSpeakingSSML is StartSpeakingText for SSML input.
func (s *Synthesizer) StartSpeakingSSML(ssml string) (events.Result, error) {
	return s.startSpeaking(ssml, s.client.api.StartSpeakingSSML)
}

// StopSpeaking interrupts the current synthesis.
func (s *Synthesizer) StopSpeaking() error {
	if err := s.client.api.StopSpeaking(s.h.Handle()); err != nil {
		return fmt.Errorf("session: stop speaking: %w", err)
	}
	return nil
}

func (s *Synthesizer) startSpeaking(text string, call func(spx.Handle, string) (spx.Handle, error)) (events.Result, error) {
	if err := spx.CheckInput(text); err != nil {
		return events.Result{}, err
	}
	if s.State() == Closed {
		return events.Result{}, spx.ErrClosed
	}
	h, err := call(s.h.Handle(), text)
	if err != nil {
		return events.Result{}, fmt.Errorf("session: start speaking: %w", err)
	}
	return s.client.resolver.ResolveResult(spx.FamilySynthesizerResult, events.Synthesis, h)
}

func (s *Synthesizer) speak(ctx context.Context, text string, call func(spx.Handle, string) (spx.Handle, error)) (events.Result, error) {
	if err := spx.CheckInput(text); err != nil {
		return events.Result{}, err
	}
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return events.Result{}, spx.ErrClosed
	}
	raw := s.h.Handle()
	s.inflight.Add(1)
	s.mu.Unlock()

	type outcome struct {
		h   spx.Handle
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer s.inflight.Done()
		h, err := call(raw, text)
		done <- outcome{h: h, err: err}
	}()

	select {
	case out := <-done:
		s.client.observer.OneShot()
		if out.err != nil {
			return events.Result{}, fmt.Errorf("session: speak: %w", out.err)
		}
		return s.client.resolver.ResolveResult(spx.FamilySynthesizerResult, events.Synthesis, out.h)
	case <-ctx.Done():
		go func() {
			if out := <-done; out.err == nil {
				handle.New(s.client.api, spx.FamilySynthesizerResult, out.h, s.log).Release()
			}
		}()
		return events.Result{}, ctx.Err()
	}
}

// Start registers the session-started and canceled callbacks plus the
// configured flags.
func (s *Synthesizer) Start() (*stream.EventStream, error) {
	return s.StartFlags(events.SessionStarted | events.Canceled)
}

// StartFlags registers callbacks for the configured flags plus extra. The
// canceled callback is always registered so the stream can terminate.
func (s *Synthesizer) StartFlags(extra events.Flags) (*stream.EventStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Running:
		return nil, spx.ErrAlreadyStarted
	case Closed:
		return nil, spx.ErrClosed
	}

	filter := s.flags | extra
	categories := events.SynthesizerCategories(filter | events.Canceled)
	reg := s.client.registry.Register()
	for _, c := range categories {
		if err := s.client.api.SetSynthesizerCallback(s.h.Handle(), c, s.client.registry.Trampoline(c), reg.Context()); err != nil {
			s.teardown(reg, categories)
			return nil, fmt.Errorf("session: register %s: %w", c, err)
		}
	}

	s.state = Running
	s.reg = reg
	s.categories = categories
	s.client.observer.SessionStarted()
	return stream.New(reg, s.client.resolver, filter, events.Canceled).WithObserver(s.client.observer), nil
}

func (s *Synthesizer) teardown(reg *bridge.Registration, categories []spx.Category) error {
	var errs []error
	for _, c := range categories {
		if err := s.client.api.SetSynthesizerCallback(s.h.Handle(), c, nil, 0); err != nil {
			errs = append(errs, fmt.Errorf("unregister %s: %w", c, err))
		}
	}
	reg.Close()
	return errors.Join(errs...)
}

// Stop unregisters callbacks and retires the stream's registration.
func (s *Synthesizer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Synthesizer) stopLocked() error {
	if s.state != Running {
		return spx.ErrNotStarted
	}
	err := s.teardown(s.reg, s.categories)
	s.state = Stopped
	s.reg = nil
	s.categories = nil
	s.client.observer.SessionStopped()
	if err != nil {
		return fmt.Errorf("session: stop: %w", err)
	}
	return nil
}

// Pause disables event delivery.
func (s *Synthesizer) Pause() error { return s.setEnabled(false) }

// Resume re-enables event delivery.
func (s *Synthesizer) Resume() error { return s.setEnabled(true) }

func (s *Synthesizer) setEnabled(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return spx.ErrClosed
	}
	if err := s.client.api.SetSynthesizerEnabled(s.h.Handle(), on); err != nil {
		return fmt.Errorf("session: set enabled %t: %w", on, err)
	}
	return nil
}

// Close unregisters callbacks and releases every handle.
func (s *Synthesizer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return nil
	}
	var err error
	if s.state == Running {
		err = s.stopLocked()
	}
	s.state = Closed
	s.inflight.Wait()
	s.h.Release()
	s.output.Release()
	return err
}
