package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/audio"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/bridge"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/events"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/handle"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/properties"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/stream"
)

// State is the lifecycle position of a session.
type State int

const (
	Idle State = iota
	Running
	Stopped
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Recognizer is a speech, intent or translation recognizer.
//
// At most one continuous session runs at a time. A stopped recognizer can
// be started again; a closed one cannot.
type Recognizer struct {
	client  *Client
	kind    spx.RecognizerKind
	h       *handle.Owned
	input   *audio.Input
	flags   events.Flags
	timeout time.Duration
	log     *slog.Logger

	mu         sync.Mutex
	state      State
	conn       *handle.Owned
	reg        *bridge.Registration
	categories []spx.Category
	inflight   sync.WaitGroup
	// oneShots is raised under mu and lowered without it; Close waits on
	// inflight while holding mu.
	oneShots atomic.Int32
}

func newRecognizer(c *Client, kind spx.RecognizerKind, h spx.Handle, in *audio.Input, flags events.Flags, timeout time.Duration) *Recognizer {
	log := c.log.With("component", "session.Recognizer", "kind", kind.String())
	return &Recognizer{
		client:  c,
		kind:    kind,
		h:       handle.New(c.api, spx.FamilyRecognizer, h, log),
		input:   in,
		flags:   flags,
		timeout: timeout,
		log:     log,
	}
}

// Handle returns the recognizer handle.
func (r *Recognizer) Handle() spx.Handle { return r.h.Handle() }

// Kind returns the recognizer kind.
func (r *Recognizer) Kind() spx.RecognizerKind { return r.kind }

// State returns the lifecycle state.
func (r *Recognizer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Started reports whether a continuous session is running.
func (r *Recognizer) Started() bool {
	return r.State() == Running
}

// OneShotPending reports whether a single-shot recognition is still
// waiting on the engine.
func (r *Recognizer) OneShotPending() bool {
	return r.oneShots.Load() > 0
}

// Properties returns a bag over the recognizer's properties. The caller
// closes it.
func (r *Recognizer) Properties() (*properties.Bag, error) {
	h, err := r.client.api.RecognizerProperties(r.h.Handle())
	if err != nil {
		return nil, fmt.Errorf("session: recognizer properties: %w", err)
	}
	return properties.New(r.client.api, h, r.log), nil
}

// SessionID reads the id of the current or last session.
func (r *Recognizer) SessionID() (string, error) {
	bag, err := r.Properties()
	if err != nil {
		return "", err
	}
	defer bag.Close()
	return bag.GetByID(spx.SpeechSessionID)
}

// RecognizeOnce runs a single-shot recognition and classifies its result.
// Cancellations with an engine error code come back as
// *events.CancellationError. If ctx ends first the call returns ctx.Err()
// and the engine result is released when it arrives.
func (r *Recognizer) RecognizeOnce(ctx context.Context) (events.Result, error) {
	r.mu.Lock()
	switch r.state {
	case Running:
		r.mu.Unlock()
		return events.Result{}, spx.ErrAlreadyStarted
	case Closed:
		r.mu.Unlock()
		return events.Result{}, spx.ErrClosed
	}
	raw := r.h.Handle()
	r.oneShots.Add(1)
	r.inflight.Add(1)
	r.mu.Unlock()

	type outcome struct {
		h   spx.Handle
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer r.inflight.Done()
		h, err := r.client.api.RecognizeOnce(raw)
		r.oneShots.Add(-1)
		done <- outcome{h: h, err: err}
	}()

	select {
	case out := <-done:
		r.client.observer.OneShot()
		if out.err != nil {
			return events.Result{}, fmt.Errorf("session: recognize once: %w", out.err)
		}
		return r.client.resolver.ResolveResult(spx.FamilyRecognizerResult, 0, out.h)
	case <-ctx.Done():
		go func() {
			if out := <-done; out.err == nil {
				handle.New(r.client.api, spx.FamilyRecognizerResult, out.h, r.log).Release()
			}
		}()
		return events.Result{}, ctx.Err()
	}
}

// Recognize runs a single-shot recognition and returns its text.
// A canceled result yields *events.CancellationError, a no-match
// *events.NoMatchError, and any other reason *events.UnexpectedReasonError.
func (r *Recognizer) Recognize(ctx context.Context) (string, error) {
	res, err := r.RecognizeOnce(ctx)
	if err != nil {
		return "", err
	}
	switch {
	case res.Flags.Contains(events.Recognized):
		return res.Text(), nil
	case res.Flags.Contains(events.Canceled):
		c := res.Cancellation
		return "", &events.CancellationError{Reason: c.Reason, Code: c.Code, Details: c.Details}
	case res.Flags.Contains(events.NoMatch):
		return "", res.Err()
	default:
		return "", &events.UnexpectedReasonError{Flags: res.Flags}
	}
}

// Start begins continuous recognition with the configured flags plus the
// session and cancellation categories.
func (r *Recognizer) Start() (*stream.EventStream, error) {
	return r.StartFlags(events.Session | events.Canceled)
}

// StartFlags begins continuous recognition. The stream filter is the
// configured flags plus extra. Session-stopped and canceled callbacks are
// always registered so the stream can terminate and report errors, but
// they are only yielded when the filter includes them.
func (r *Recognizer) StartFlags(extra events.Flags) (*stream.EventStream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case Running:
		return nil, spx.ErrAlreadyStarted
	case Closed:
		return nil, spx.ErrClosed
	}
	if r.OneShotPending() {
		return nil, spx.ErrAlreadyStarted
	}

	api := r.client.api
	filter := r.flags | extra
	categories := events.RecognizerCategories(filter | events.SessionStopped | events.Canceled)

	reg := r.client.registry.Register()
	if err := r.register(reg, categories); err != nil {
		r.teardown(reg, categories)
		return nil, err
	}

	async, err := api.StartContinuous(r.h.Handle())
	if err != nil {
		r.teardown(reg, categories)
		return nil, fmt.Errorf("session: start continuous recognition: %w", err)
	}
	err = api.WaitStartContinuous(async, r.timeout)
	handle.New(api, spx.FamilyRecognizerAsync, async, r.log).Release()
	if err != nil {
		r.teardown(reg, categories)
		return nil, fmt.Errorf("session: wait for start: %w", err)
	}

	r.state = Running
	r.reg = reg
	r.categories = categories
	r.client.observer.SessionStarted()
	r.log.Debug("continuous recognition started", "filter", filter.String(), "token", uint64(reg.Context()))

	return stream.New(reg, r.client.resolver, filter, events.SessionStopped).WithObserver(r.client.observer), nil
}

func (r *Recognizer) register(reg *bridge.Registration, categories []spx.Category) error {
	api := r.client.api
	for _, c := range categories {
		cb := r.client.registry.Trampoline(c)
		if c.IsConnection() {
			conn, err := r.connection()
			if err != nil {
				return err
			}
			if err := api.SetConnectionCallback(conn, c, cb, reg.Context()); err != nil {
				return fmt.Errorf("session: register %s: %w", c, err)
			}
			continue
		}
		if err := api.SetRecognizerCallback(r.h.Handle(), c, cb, reg.Context()); err != nil {
			return fmt.Errorf("session: register %s: %w", c, err)
		}
	}
	return nil
}

func (r *Recognizer) connection() (spx.Handle, error) {
	if r.conn != nil {
		return r.conn.Handle(), nil
	}
	h, err := r.client.api.ConnectionFromRecognizer(r.h.Handle())
	if err != nil {
		return spx.InvalidHandle, fmt.Errorf("session: connection: %w", err)
	}
	r.conn = handle.New(r.client.api, spx.FamilyConnection, h, r.log)
	return h, nil
}

// teardown unregisters every category and retires the token. Engine errors
// are returned joined; the token is retired regardless.
func (r *Recognizer) teardown(reg *bridge.Registration, categories []spx.Category) error {
	api := r.client.api
	var errs []error
	for _, c := range categories {
		var err error
		if c.IsConnection() {
			if r.conn == nil {
				continue
			}
			err = api.SetConnectionCallback(r.conn.Handle(), c, nil, 0)
		} else {
			err = api.SetRecognizerCallback(r.h.Handle(), c, nil, 0)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("unregister %s: %w", c, err))
		}
	}
	reg.Close()
	return errors.Join(errs...)
}

// Stop ends continuous recognition and waits, bounded by the configured
// timeout, for the engine to confirm. Callbacks are unregistered and the
// stream's registration retired even when the engine reports an error,
// which is then returned.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked()
}

func (r *Recognizer) stopLocked() error {
	if r.state != Running {
		return spx.ErrNotStarted
	}
	api := r.client.api
	var errs []error

	async, err := api.StopContinuous(r.h.Handle())
	if err != nil {
		errs = append(errs, fmt.Errorf("stop continuous recognition: %w", err))
	} else {
		if err := api.WaitStopContinuous(async, r.timeout); err != nil {
			errs = append(errs, fmt.Errorf("wait for stop: %w", err))
		}
		handle.New(api, spx.FamilyRecognizerAsync, async, r.log).Release()
	}
	if err := r.teardown(r.reg, r.categories); err != nil {
		errs = append(errs, err)
	}

	r.state = Stopped
	r.reg = nil
	r.categories = nil
	r.client.observer.SessionStopped()

	if err := errors.Join(errs...); err != nil {
		r.log.Warn("continuous recognition stopped with errors", "error", err)
		return fmt.Errorf("session: stop: %w", err)
	}
	r.log.Debug("continuous recognition stopped")
	return nil
}

// Pause disables event delivery without stopping the session.
func (r *Recognizer) Pause() error {
	return r.setEnabled(false)
}

// Resume re-enables event delivery.
func (r *Recognizer) Resume() error {
	return r.setEnabled(true)
}

func (r *Recognizer) setEnabled(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Closed {
		return spx.ErrClosed
	}
	if err := r.client.api.SetRecognizerEnabled(r.h.Handle(), on); err != nil {
		return fmt.Errorf("session: set enabled %t: %w", on, err)
	}
	return nil
}

// WriteStream pushes audio into a push-mode recognizer.
func (r *Recognizer) WriteStream(p []byte) error {
	s := r.input.Stream()
	if s == nil {
		return spx.ErrResourceAbsent
	}
	_, err := s.Write(p)
	return err
}

// CloseStream signals end of audio to a push-mode recognizer.
func (r *Recognizer) CloseStream() error {
	s := r.input.Stream()
	if s == nil {
		return spx.ErrResourceAbsent
	}
	return s.Close()
}

// AddIntent registers a phrase-triggered intent.
func (r *Recognizer) AddIntent(id, phrase string) error {
	if err := spx.CheckInput(id, phrase); err != nil {
		return err
	}
	api := r.client.api
	th, err := api.NewPhraseTrigger(phrase)
	if err != nil {
		return fmt.Errorf("session: phrase trigger %q: %w", phrase, err)
	}
	trigger := handle.New(api, spx.FamilyTrigger, th, r.log)
	defer trigger.Release()
	if err := api.AddIntent(r.h.Handle(), id, th); err != nil {
		return fmt.Errorf("session: add intent %q: %w", id, err)
	}
	return nil
}

// AddModelIntent registers an intent from a language understanding app.
// An empty id uses intentName.
func (r *Recognizer) AddModelIntent(appID, intentName, id string) error {
	if err := spx.CheckInput(appID, intentName, id); err != nil {
		return err
	}
	if id == "" {
		id = intentName
	}
	api := r.client.api
	mh, err := api.NewLanguageUnderstandingModel(appID)
	if err != nil {
		return fmt.Errorf("session: language model %q: %w", appID, err)
	}
	model := handle.New(api, spx.FamilyModel, mh, r.log)
	defer model.Release()
	th, err := api.NewModelTrigger(mh, intentName)
	if err != nil {
		return fmt.Errorf("session: model trigger %q: %w", intentName, err)
	}
	trigger := handle.New(api, spx.FamilyTrigger, th, r.log)
	defer trigger.Release()
	if err := api.AddIntent(r.h.Handle(), id, th); err != nil {
		return fmt.Errorf("session: add intent %q: %w", id, err)
	}
	return nil
}

// Close stops a running session and releases every handle. It is safe to
// call more than once.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Closed {
		return nil
	}
	var err error
	if r.state == Running {
		err = r.stopLocked()
	}
	r.state = Closed
	if s := r.input.Stream(); s != nil {
		s.Close()
	}
	r.inflight.Wait()
	if r.conn != nil {
		r.conn.Release()
	}
	r.h.Release()
	r.input.Release()
	return err
}
