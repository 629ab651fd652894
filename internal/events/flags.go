// Package events classifies engine events and results into typed values.
package events

import (
	"fmt"
	"strings"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

// Flags is a bitmask of event categories and result kinds. One value may
// carry several bits: the callback category that produced an event plus the
// classification of its result.
type Flags uint64

const (
	Connected Flags = 1 << iota
	Disconnected
	SessionStarted
	SessionStopped
	SpeechStartDetected
	SpeechEndDetected
	Recognizing
	Recognized
	Speech
	Intent
	Translation
	Synthesis
	Canceled
	NoMatch
)

const (
	Connection        = Connected | Disconnected
	Session           = SessionStarted | SessionStopped
	SpeechDetection   = SpeechStartDetected | SpeechEndDetected
	RecognitionEvents = Recognizing | Recognized
	Synthesizing      = Recognizing | Synthesis
	Synthesized       = Recognized | Synthesis
	All               = NoMatch<<1 - 1
)

var singleNames = []struct {
	flag Flags
	name string
}{
	{Connected, "Connected"},
	{Disconnected, "Disconnected"},
	{SessionStarted, "SessionStarted"},
	{SessionStopped, "SessionStopped"},
	{SpeechStartDetected, "SpeechStartDetected"},
	{SpeechEndDetected, "SpeechEndDetected"},
	{Recognizing, "Recognizing"},
	{Recognized, "Recognized"},
	{Speech, "Speech"},
	{Intent, "Intent"},
	{Translation, "Translation"},
	{Synthesis, "Synthesis"},
	{Canceled, "Canceled"},
	{NoMatch, "NoMatch"},
}

var parseNames = func() map[string]Flags {
	m := map[string]Flags{
		"none":            0,
		"all":             All,
		"connection":      Connection,
		"session":         Session,
		"speechdetection": SpeechDetection,
		"recognition":     RecognitionEvents,
		"synthesizing":    Synthesizing,
		"synthesized":     Synthesized,
	}
	for _, n := range singleNames {
		m[strings.ToLower(n.name)] = n.flag
	}
	return m
}()

// Contains reports whether every bit of other is set.
func (f Flags) Contains(other Flags) bool {
	return f&other == other
}

// Intersects reports whether any bit of other is set.
func (f Flags) Intersects(other Flags) bool {
	return f&other != 0
}

func (f Flags) String() string {
	if f == 0 {
		return "None"
	}
	var parts []string
	rest := f
	for _, n := range singleNames {
		if f&n.flag != 0 {
			parts = append(parts, n.name)
			rest &^= n.flag
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint64(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseFlags accepts names joined by '|', ',' or spaces, case-insensitive.
// Composite names such as "session" or "recognition" are accepted.
func ParseFlags(s string) (Flags, error) {
	var out Flags
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ',' || r == ' ' || r == '\t'
	})
	for _, field := range fields {
		flag, ok := parseNames[strings.ToLower(field)]
		if !ok {
			return 0, fmt.Errorf("events: unknown flag %q", field)
		}
		out |= flag
	}
	return out, nil
}

// MarshalText encodes the flags as their String form.
func (f Flags) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText accepts the ParseFlags syntax.
func (f *Flags) UnmarshalText(text []byte) error {
	parsed, err := ParseFlags(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// FromReason maps an engine result reason to its flag set. The boolean is
// false for reasons this package does not know, in which case the set is
// empty.
func FromReason(reason spx.ResultReason) (Flags, bool) {
	switch reason {
	case spx.ReasonNoMatch:
		return NoMatch, true
	case spx.ReasonCanceled:
		return Canceled, true
	case spx.ReasonRecognizingSpeech:
		return Recognizing | Speech, true
	case spx.ReasonRecognizedSpeech:
		return Recognized | Speech, true
	case spx.ReasonRecognizingIntent:
		return Recognizing | Intent, true
	case spx.ReasonRecognizedIntent:
		return Recognized | Intent, true
	case spx.ReasonTranslatingSpeech:
		return Recognizing | Translation, true
	case spx.ReasonTranslatedSpeech:
		return Recognized | Translation, true
	case spx.ReasonSynthesizingAudio:
		return Synthesizing, true
	case spx.ReasonSynthesizingAudioComplete:
		return Synthesized, true
	case spx.ReasonSynthesizingAudioStarted:
		return SessionStarted | Synthesis, true
	default:
		return 0, false
	}
}

// Classify combines the category an event arrived on with the reason of its
// result.
func Classify(reason spx.ResultReason, source Flags) Flags {
	flags, _ := FromReason(reason)
	return source | flags
}

// CategoryFlags returns the source flags stamped on events delivered for c.
func CategoryFlags(c spx.Category) Flags {
	switch c {
	case spx.SessionStartedEvent:
		return SessionStarted
	case spx.SessionStoppedEvent:
		return SessionStopped
	case spx.SpeechStartDetectedEvent:
		return SpeechStartDetected
	case spx.SpeechEndDetectedEvent:
		return SpeechEndDetected
	case spx.RecognizingEvent:
		return Recognizing
	case spx.RecognizedEvent:
		return Recognized
	case spx.CanceledEvent:
		return Canceled
	case spx.ConnectedEvent:
		return Connected
	case spx.DisconnectedEvent:
		return Disconnected
	case spx.SynthesisStartedEvent:
		return SessionStarted | Synthesis
	case spx.SynthesizingEvent:
		return Synthesizing
	case spx.SynthesisCompletedEvent:
		return Synthesized
	case spx.SynthesisCanceledEvent:
		return Canceled | Synthesis
	default:
		return 0
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
	spx.ConnectedEvent,
	spx.DisconnectedEvent,
}

var synthesizerCategories = []spx.Category{
	spx.SynthesisStartedEvent,
	spx.SynthesizingEvent,
	spx.SynthesisCompletedEvent,
	spx.SynthesisCanceledEvent,
}

// RecognizerCategories lists the recognizer registration points selected
// by f, in registration order.
func RecognizerCategories(f Flags) []spx.Category {
	var out []spx.Category
	for _, c := range recognizerCategories {
		if f.Intersects(CategoryFlags(c)) {
			out = append(out, c)
		}
	}
	return out
}

// SynthesizerCategories lists the synthesizer registration points selected
// by f. Only the category bits matter; the Synthesis bit is implied.
func SynthesizerCategories(f Flags) []spx.Category {
	var out []spx.Category
	for _, c := range synthesizerCategories {
		if f.Intersects(CategoryFlags(c) &^ Synthesis) {
			out = append(out, c)
		}
	}
	return out
}
