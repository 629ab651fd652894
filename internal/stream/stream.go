// Package stream exposes a session's callbacks as an ordered, filterable,
// terminating sequence of events.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/events"
)

// Source yields events in delivery order. bridge.Registration implements it.
type Source interface {
	Recv(ctx context.Context) (*events.Event, error)
	TryRecv() (*events.Event, error)
}

// Observer is notified of events that failed classification.
type Observer interface {
	ClassificationFailed()
}

// EventStream filters a Source and ends after the first event matching its
// stop flags. An EventStream has a single consumer.
type EventStream struct {
	src      Source
	resolver *events.Resolver
	observer Observer

	filter  events.Flags
	stopOn  events.Flags
	stopped bool
}

// New wraps src. Events outside filter are released unseen; the first event
// intersecting stopOn latches the stream.
func New(src Source, resolver *events.Resolver, filter, stopOn events.Flags) *EventStream {
	return &EventStream{src: src, resolver: resolver, filter: filter, stopOn: stopOn}
}

// WithObserver sets the classification failure observer.
func (s *EventStream) WithObserver(o Observer) *EventStream {
	s.observer = o
	return s
}

// Filter returns the current filter.
func (s *EventStream) Filter() events.Flags { return s.filter }

// SetFilter replaces the filter. It does not change which categories the
// engine delivers.
func (s *EventStream) SetFilter(f events.Flags) { s.filter = f }

// Stopped reports whether the stop latch is set.
func (s *EventStream) Stopped() bool { return s.stopped }

// Next returns the next event that intersects the filter. The caller owns
// the event and must Close it. After the stop event has been observed,
// Next returns io.EOF.
func (s *EventStream) Next(ctx context.Context) (*events.Event, error) {
	return s.next(func() (*events.Event, error) { return s.src.Recv(ctx) })
}

// TryNext is Next without blocking: spx.ErrWouldBlock means no matching
// event is buffered yet.
func (s *EventStream) TryNext() (*events.Event, error) {
	return s.next(s.src.TryRecv)
}

func (s *EventStream) next(recv func() (*events.Event, error)) (*events.Event, error) {
	for {
		if s.stopped {
			s.drain()
			return nil, io.EOF
		}
		evt, err := recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.stopped = true
			}
			return nil, err
		}
		flags := evt.Flags()
		if flags.Intersects(s.stopOn) {
			s.stopped = true
		}
		if flags.Intersects(s.filter) {
			return evt, nil
		}
		evt.Close()
	}
}

// All ranges over the remaining events. Iteration ends at the stop event,
// or after yielding a non-nil error.
func (s *EventStream) All(ctx context.Context) iter.Seq2[*events.Event, error] {
	return func(yield func(*events.Event, error) bool) {
		for {
			evt, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(evt, err) || err != nil {
				return
			}
		}
	}
}

// Close latches the stream and releases any buffered events.
func (s *EventStream) Close() error {
	s.stopped = true
	s.drain()
	return nil
}

func (s *EventStream) drain() {
	for {
		evt, err := s.src.TryRecv()
		if err != nil {
			return
		}
		evt.Close()
	}
}

// Resulting converts the stream into one of classified results.
func (s *EventStream) Resulting() *ResultStream {
	return &ResultStream{events: s}
}

// Text narrows the filter to final recognitions and yields their text.
func (s *EventStream) Text() *TextStream {
	s.SetFilter(events.Recognized)
	return &TextStream{results: s.Resulting()}
}

// ClassifyError reports an event that could not be turned into a Result.
// The stream remains usable.
type ClassifyError struct {
	Flags events.Flags
	Err   error
}

func (e *ClassifyError) Error() string {
	return fmt.Sprintf("stream: classify %s: %v", e.Flags, e.Err)
}

func (e *ClassifyError) Unwrap() error { return e.Err }

// Terminal reports whether err ends a stream, as opposed to describing a
// single event.
func Terminal(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifyError
	return !errors.As(err, &ce)
}

// ResultStream yields classified events.
type ResultStream struct {
	events *EventStream
}

// Next returns the next Result. A *ClassifyError describes one event and
// the stream can be read further; io.EOF and context errors are terminal.
func (s *ResultStream) Next(ctx context.Context) (events.Result, error) {
	evt, err := s.events.Next(ctx)
	if err != nil {
		return events.Result{}, err
	}
	return s.resolve(evt)
}

// TryNext is the non-blocking form of Next.
func (s *ResultStream) TryNext() (events.Result, error) {
	evt, err := s.events.TryNext()
	if err != nil {
		return events.Result{}, err
	}
	return s.resolve(evt)
}

func (s *ResultStream) resolve(evt *events.Event) (events.Result, error) {
	flags := evt.Flags()
	res, err := s.events.resolver.Resolve(evt)
	if err != nil {
		if s.events.observer != nil {
			s.events.observer.ClassificationFailed()
		}
		return res, &ClassifyError{Flags: flags, Err: err}
	}
	return res, nil
}

// All ranges over results, yielding per-event errors alongside and ending
// at the stop event or a terminal error.
func (s *ResultStream) All(ctx context.Context) iter.Seq2[events.Result, error] {
	return func(yield func(events.Result, error) bool) {
		for {
			res, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(res, err) || Terminal(err) {
				return
			}
		}
	}
}

// SetFilter forwards to the underlying event stream.
func (s *ResultStream) SetFilter(f events.Flags) { s.events.SetFilter(f) }

// Close closes the underlying event stream.
func (s *ResultStream) Close() error { return s.events.Close() }

// JSON converts results to their JSON encoding.
func (s *ResultStream) JSON() *JSONStream {
	return &JSONStream{results: s}
}

// TextStream yields recognized text.
type TextStream struct {
	results *ResultStream
}

// Next returns the text of the next final recognition, "" when the result
// carries none. Errors follow ResultStream.Next.
func (s *TextStream) Next(ctx context.Context) (string, error) {
	res, err := s.results.Next(ctx)
	if err != nil {
		return "", err
	}
	return res.Text(), nil
}

// All ranges over recognized text.
func (s *TextStream) All(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for res, err := range s.results.All(ctx) {
			if !yield(res.Text(), err) {
				return
			}
		}
	}
}

// Close closes the underlying event stream.
func (s *TextStream) Close() error { return s.results.Close() }
