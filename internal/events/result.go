package events

import (
	"fmt"
	"time"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

// Kind tells which payload of a Result is populated.
type Kind int

const (
	KindEnvelope Kind = iota
	KindRecognition
	KindCancellation
	KindNoMatch
)

func (k Kind) String() string {
	switch k {
	case KindEnvelope:
		return "envelope"
	case KindRecognition:
		return "recognition"
	case KindCancellation:
		return "cancellation"
	case KindNoMatch:
		return "no_match"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Result is the classified form of an event. The envelope fields are
// always set; at most one payload pointer is non-nil, selected by Kind.
type Result struct {
	Kind      Kind             `json:"kind"`
	Flags     Flags            `json:"flags"`
	Reason    spx.ResultReason `json:"reason,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	ResultID  string           `json:"result_id,omitempty"`
	Offset    time.Duration    `json:"offset,omitempty"`
	Duration  time.Duration    `json:"duration,omitempty"`

	Recognition  *Recognition  `json:"recognition,omitempty"`
	Cancellation *Cancellation `json:"cancellation,omitempty"`
	NoMatch      *NoMatchInfo  `json:"no_match,omitempty"`
}

// Recognition carries recognized text and the optional intent,
// translation and synthesis details.
type Recognition struct {
	Text         string            `json:"text"`
	JSON         string            `json:"json,omitempty"`
	Intent       *IntentInfo       `json:"intent,omitempty"`
	Translations map[string]string `json:"translations,omitempty"`
	Synthesis    *SynthesisInfo    `json:"synthesis,omitempty"`
}

type IntentInfo struct {
	ID      string `json:"id"`
	Details string `json:"details,omitempty"`
}

type SynthesisInfo struct {
	AudioLength   uint32        `json:"audio_length"`
	AudioDuration time.Duration `json:"audio_duration"`
}

// Cancellation describes why a result was canceled.
type Cancellation struct {
	Reason  spx.CancellationReason    `json:"reason"`
	Code    spx.CancellationErrorCode `json:"code"`
	Details string                    `json:"details,omitempty"`
}

type NoMatchInfo struct {
	Reason spx.NoMatchReason `json:"reason"`
}

// Text returns the recognized text, or "" when the result carries none.
func (r Result) Text() string {
	if r.Recognition == nil {
		return ""
	}
	return r.Recognition.Text
}

// Err converts cancellation and no-match payloads to errors. A
// cancellation with spx.NoError is not an error.
func (r Result) Err() error {
	switch {
	case r.Cancellation != nil && r.Cancellation.Code != spx.NoError:
		return &CancellationError{
			Reason:  r.Cancellation.Reason,
			Code:    r.Cancellation.Code,
			Details: r.Cancellation.Details,
		}
	case r.NoMatch != nil:
		return &NoMatchError{Reason: r.NoMatch.Reason}
	}
	return nil
}

// CancellationError reports a canceled result with an engine error code.
type CancellationError struct {
	Reason  spx.CancellationReason
	Code    spx.CancellationErrorCode
	Details string
}

func (e *CancellationError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("events: canceled (%s, %s)", e.Reason, e.Code)
	}
	return fmt.Sprintf("events: canceled (%s, %s): %s", e.Reason, e.Code, e.Details)
}

// NoMatchError reports that speech could not be recognized.
type NoMatchError struct {
	Reason spx.NoMatchReason
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("events: no match (%s)", e.Reason)
}

// UnexpectedReasonError is returned by one-shot calls when the result is
// neither recognized, canceled nor a no-match.
type UnexpectedReasonError struct {
	Flags Flags
}

func (e *UnexpectedReasonError) Error() string {
	return fmt.Sprintf("events: unexpected result reason %s", e.Flags)
}
