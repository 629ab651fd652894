package events

import (
	"log/slog"
	"time"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/handle"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

// API is the subset of the engine needed to inspect events and results.
type API interface {
	spx.HandleAPI
	spx.PropertyAPI
	spx.EventAPI
	spx.ResultAPI
}

// Event is one callback invocation: the category flags it arrived on and
// the event handle, which the Event owns until Close.
type Event struct {
	api    API
	flags  Flags
	source spx.Handle
	h      *handle.Owned
}

// NewEvent adopts an event handle delivered for category c.
func NewEvent(api API, c spx.Category, source, h spx.Handle, logger *slog.Logger) *Event {
	return &Event{
		api:    api,
		flags:  CategoryFlags(c),
		source: source,
		h:      handle.New(api, c.EventFamily(), h, logger),
	}
}

// Flags returns the category flags of the event.
func (e *Event) Flags() Flags { return e.flags }

// Source returns the recognizer or synthesizer that emitted the event.
func (e *Event) Source() spx.Handle { return e.source }

// Handle returns the raw event handle.
func (e *Event) Handle() spx.Handle { return e.h.Handle() }

// Family returns the handle family of the event.
func (e *Event) Family() spx.Family { return e.h.Family() }

// SessionID reads the session identifier carried by session and
// connection events.
func (e *Event) SessionID() (string, error) {
	h := e.h.Handle()
	if !h.Valid() {
		return "", spx.ErrClosed
	}
	raw, err := e.api.EventSessionID(h)
	if err != nil {
		return "", err
	}
	return spx.DecodeOutput(raw)
}

// Offset reads the audio offset of a speech-boundary event.
func (e *Event) Offset() (time.Duration, error) {
	h := e.h.Handle()
	if !h.Valid() {
		return 0, spx.ErrClosed
	}
	ticks, err := e.api.EventOffset(h)
	if err != nil {
		return 0, err
	}
	return Ticks(ticks), nil
}

// Close releases the event handle.
func (e *Event) Close() error {
	if e == nil {
		return nil
	}
	return e.h.Close()
}

// Ticks converts engine time units (100ns) to a Duration.
func Ticks(ticks uint64) time.Duration {
	return time.Duration(ticks) * 100 * time.Nanosecond
}
