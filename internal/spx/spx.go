// Package spx describes the contract of the Speech SDK C API ("SPX") as seen
// from Go: opaque handles, the fixed callback signature, reason enumerations,
// property identifiers and the engine operations the rest of the adapter
// consumes. Implementations live in the engine package.
package spx

import "fmt"

// Handle is an opaque engine-issued reference to a foreign resource.
type Handle uintptr

// InvalidHandle is the engine's "no handle" marker. It never collides with a
// live handle and is distinct from zero.
const InvalidHandle = ^Handle(0)

// Valid reports whether h is not the invalid marker. It says nothing about
// whether the engine still considers the handle alive.
func (h Handle) Valid() bool { return h != InvalidHandle }

// Family tags a handle with the kind of resource it refers to. Each family
// has its own release routine and, for most families, a validity check.
type Family int

const (
	FamilySpeechConfig Family = iota + 1
	FamilyPropertyBag
	FamilyAudioConfig
	FamilyAudioStream
	FamilyAudioStreamFormat
	FamilyRecognizer
	FamilySynthesizer
	FamilyRecognizerAsync
	FamilyRecognizerEvent
	FamilySynthesizerEvent
	FamilyRecognizerResult
	FamilySynthesizerResult
	FamilyConnection
	FamilyTrigger
	FamilyModel
)

var familyNames = map[Family]string{
	FamilySpeechConfig:      "speech_config",
	FamilyPropertyBag:       "property_bag",
	FamilyAudioConfig:       "audio_config",
	FamilyAudioStream:       "audio_stream",
	FamilyAudioStreamFormat: "audio_stream_format",
	FamilyRecognizer:        "recognizer",
	FamilySynthesizer:       "synthesizer",
	FamilyRecognizerAsync:   "recognizer_async",
	FamilyRecognizerEvent:   "recognizer_event",
	FamilySynthesizerEvent:  "synthesizer_event",
	FamilyRecognizerResult:  "recognizer_result",
	FamilySynthesizerResult: "synthesizer_result",
	FamilyConnection:        "connection",
	FamilyTrigger:           "intent_trigger",
	FamilyModel:             "language_understanding_model",
}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("family(%d)", int(f))
}

// HasValidityCheck reports whether the engine exposes an is-valid routine
// for the family. Connection handles have none.
func (f Family) HasValidityCheck() bool {
	return f != FamilyConnection
}

// RecognizerKind selects which recognizer constructor the engine uses.
type RecognizerKind int

const (
	SpeechRecognizer RecognizerKind = iota + 1
	IntentRecognizer
	TranslationRecognizer
)

func (k RecognizerKind) String() string {
	switch k {
	case SpeechRecognizer:
		return "speech"
	case IntentRecognizer:
		return "intent"
	case TranslationRecognizer:
		return "translation"
	default:
		return fmt.Sprintf("recognizer_kind(%d)", int(k))
	}
}

// Category identifies one engine event registration point. Each category
// maps to exactly one set-callback routine.
type Category int

const (
	SessionStartedEvent Category = iota + 1
	SessionStoppedEvent
	SpeechStartDetectedEvent
	SpeechEndDetectedEvent
	RecognizingEvent
	RecognizedEvent
	CanceledEvent
	ConnectedEvent
	DisconnectedEvent
	SynthesisStartedEvent
	SynthesizingEvent
	SynthesisCompletedEvent
	SynthesisCanceledEvent
)

var categoryNames = map[Category]string{
	SessionStartedEvent:      "session_started",
	SessionStoppedEvent:      "session_stopped",
	SpeechStartDetectedEvent: "speech_start_detected",
	SpeechEndDetectedEvent:   "speech_end_detected",
	RecognizingEvent:         "recognizing",
	RecognizedEvent:          "recognized",
	CanceledEvent:            "canceled",
	ConnectedEvent:           "connected",
	DisconnectedEvent:        "disconnected",
	SynthesisStartedEvent:    "synthesis_started",
	SynthesizingEvent:        "synthesizing",
	SynthesisCompletedEvent:  "synthesis_completed",
	SynthesisCanceledEvent:   "synthesis_canceled",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// IsConnection reports whether the category registers on a connection
// handle rather than on the recognizer itself.
func (c Category) IsConnection() bool {
	return c == ConnectedEvent || c == DisconnectedEvent
}

// EventFamily returns the handle family of events delivered for c.
func (c Category) EventFamily() Family {
	switch c {
	case SynthesisStartedEvent, SynthesizingEvent, SynthesisCompletedEvent, SynthesisCanceledEvent:
		return FamilySynthesizerEvent
	default:
		return FamilyRecognizerEvent
	}
}

// Context is the opaque value handed to the engine at registration time and
// passed back verbatim on every callback. It is a token, never a Go pointer.
type Context uintptr

// Callback is the fixed signature every engine callback is delivered
// through. source is the emitting recognizer or synthesizer (InvalidHandle
// for connection events); event is a fresh event handle the receiver owns.
type Callback func(source, event Handle, ctx Context)
