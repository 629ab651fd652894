package server

import (
	"fmt"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/audio"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/events"
)

// AudioFormat describes the PCM carried in Audio fields. The zero value
// selects 16 kHz, 16 bit, mono.
type AudioFormat struct {
	SampleRate uint32 `msgpack:"sample_rate"`
	BitDepth   uint8  `msgpack:"bit_depth"`
	Channels   uint8  `msgpack:"channels"`
}

func (f *AudioFormat) pcm() (audio.Format, error) {
	if f == nil {
		return audio.Format{}, nil
	}
	out := audio.Format{SamplesPerSecond: f.SampleRate, BitsPerSample: f.BitDepth, Channels: f.Channels}
	if out != (audio.Format{}) && (out.SamplesPerSecond == 0 || out.BitsPerSample == 0 || out.Channels == 0) {
		return audio.Format{}, fmt.Errorf("server: incomplete audio format %s", out)
	}
	return out, nil
}

// RecognizeRequest asks for a single-shot recognition of the PCM in Audio.
// Without audio the adapter's configured audio file is recognized.
type RecognizeRequest struct {
	Audio    []byte            `msgpack:"audio,omitempty"`
	Format   *AudioFormat      `msgpack:"format,omitempty"`
	Language string            `msgpack:"language,omitempty"`
	Metadata map[string]string `msgpack:"metadata,omitempty"`
}

// RecognizeResponse carries the classified result. Error is set when the
// result is a cancellation with an engine error or a no-match.
type RecognizeResponse struct {
	RequestID string         `msgpack:"request_id"`
	Result    *ResultMessage `msgpack:"result,omitempty"`
	Error     string         `msgpack:"error,omitempty"`
}

// StreamRequest is one client message of a recognition stream. Language,
// Filter, Format and Metadata are read from the first message only; Filter
// uses the flag syntax of events.ParseFlags and empty selects the adapter
// default. Audio chunks may ride on any message. Last, or closing the send
// side, marks the end of audio.
type StreamRequest struct {
	Audio    []byte            `msgpack:"audio,omitempty"`
	Last     bool              `msgpack:"last,omitempty"`
	Format   *AudioFormat      `msgpack:"format,omitempty"`
	Language string            `msgpack:"language,omitempty"`
	Filter   string            `msgpack:"filter,omitempty"`
	Metadata map[string]string `msgpack:"metadata,omitempty"`
}

// StreamEvent is one item of a recognition stream: a result or a per-item
// classification error.
type StreamEvent struct {
	RequestID string         `msgpack:"request_id"`
	Sequence  uint64         `msgpack:"sequence"`
	Result    *ResultMessage `msgpack:"result,omitempty"`
	Error     string         `msgpack:"error,omitempty"`
}

// ResultMessage is the wire form of events.Result.
type ResultMessage struct {
	Kind         string            `msgpack:"kind"`
	Flags        string            `msgpack:"flags"`
	Reason       string            `msgpack:"reason,omitempty"`
	SessionID    string            `msgpack:"session_id,omitempty"`
	ResultID     string            `msgpack:"result_id,omitempty"`
	OffsetMS     int64             `msgpack:"offset_ms"`
	DurationMS   int64             `msgpack:"duration_ms"`
	Text         string            `msgpack:"text,omitempty"`
	JSON         string            `msgpack:"json,omitempty"`
	IntentID     string            `msgpack:"intent_id,omitempty"`
	Translations map[string]string `msgpack:"translations,omitempty"`
	Cancellation string            `msgpack:"cancellation,omitempty"`
	ErrorCode    string            `msgpack:"error_code,omitempty"`
	ErrorDetails string            `msgpack:"error_details,omitempty"`
	NoMatch      string            `msgpack:"no_match,omitempty"`
	Metadata     map[string]string `msgpack:"metadata,omitempty"`
}

func newResultMessage(res events.Result, metadata map[string]string) *ResultMessage {
	msg := &ResultMessage{
		Kind:       res.Kind.String(),
		Flags:      res.Flags.String(),
		SessionID:  res.SessionID,
		ResultID:   res.ResultID,
		OffsetMS:   res.Offset.Milliseconds(),
		DurationMS: res.Duration.Milliseconds(),
		Metadata:   metadata,
	}
	if res.Reason != 0 {
		msg.Reason = res.Reason.String()
	}
	if r := res.Recognition; r != nil {
		msg.Text = r.Text
		msg.JSON = r.JSON
		msg.Translations = r.Translations
		if r.Intent != nil {
			msg.IntentID = r.Intent.ID
		}
	}
	if c := res.Cancellation; c != nil {
		msg.Cancellation = c.Reason.String()
		msg.ErrorCode = c.Code.String()
		msg.ErrorDetails = c.Details
	}
	if n := res.NoMatch; n != nil {
		msg.NoMatch = n.Reason.String()
	}
	return msg
}
