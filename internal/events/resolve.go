package events

import (
	"fmt"
	"log/slog"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/handle"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/properties"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

// Resolver turns events and result handles into Results.
type Resolver struct {
	api API
	log *slog.Logger
}

// NewResolver constructs a Resolver bound to the engine.
func NewResolver(api API, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{api: api, log: logger.With("component", "events.Resolver")}
}

// Resolve classifies evt and releases it. Session and connection events
// yield an envelope with the session id, speech-boundary events an envelope
// with the offset. Everything else is classified from its result handle.
// A cancellation carrying an engine error code is returned as a
// *CancellationError alongside the populated Result.
func (r *Resolver) Resolve(evt *Event) (Result, error) {
	defer evt.Close()

	flags := evt.Flags()
	if evt.Family() == spx.FamilySynthesizerEvent {
		return r.resolveFromEvent(evt, spx.FamilySynthesizerResult)
	}

	switch {
	case flags.Intersects(Connection | Session):
		sessionID, err := evt.SessionID()
		if err != nil {
			return Result{}, fmt.Errorf("events: session id of %s: %w", flags, err)
		}
		return Result{Kind: KindEnvelope, Flags: flags, SessionID: sessionID}, nil
	case flags.Intersects(SpeechDetection):
		offset, err := evt.Offset()
		if err != nil {
			return Result{}, fmt.Errorf("events: offset of %s: %w", flags, err)
		}
		return Result{Kind: KindEnvelope, Flags: flags, Offset: offset}, nil
	}

	res, err := r.resolveFromEvent(evt, spx.FamilyRecognizerResult)
	if sessionID, sidErr := evt.SessionID(); sidErr == nil {
		res.SessionID = sessionID
	}
	return res, err
}

func (r *Resolver) resolveFromEvent(evt *Event, family spx.Family) (Result, error) {
	h := evt.Handle()
	if !h.Valid() {
		return Result{}, spx.ErrClosed
	}
	resultHandle, err := r.api.EventResult(evt.Family(), h)
	if err != nil {
		return Result{}, fmt.Errorf("events: result of %s: %w", evt.Flags(), err)
	}
	return r.ResolveResult(family, evt.Flags(), resultHandle)
}

// ResolveResult classifies a result handle obtained outside an event, for
// example from a one-shot call, and releases it.
func (r *Resolver) ResolveResult(family spx.Family, source Flags, h spx.Handle) (Result, error) {
	owned := handle.New(r.api, family, h, r.log)
	defer owned.Release()

	reason, err := r.api.ResultReason(family, h)
	if err != nil {
		return Result{}, fmt.Errorf("events: result reason: %w", err)
	}
	classified, known := FromReason(reason)
	if !known {
		r.log.Error("unknown result reason", "reason", int(reason), "source", source.String())
	}
	flags := source | classified

	res := Result{Kind: KindEnvelope, Flags: flags, Reason: reason}
	if res.ResultID, err = r.decode(r.api.ResultID(family, h)); err != nil {
		return Result{}, fmt.Errorf("events: result id: %w", err)
	}

	switch {
	case flags.Contains(NoMatch):
		nm, err := r.api.ResultNoMatch(h)
		if err != nil {
			return Result{}, fmt.Errorf("events: no-match details: %w", err)
		}
		res.Kind = KindNoMatch
		res.NoMatch = &NoMatchInfo{Reason: nm}
		return res, nil

	case flags.Contains(Canceled):
		reason, code, err := r.api.ResultCancellation(family, h)
		if err != nil {
			return Result{}, fmt.Errorf("events: cancellation details: %w", err)
		}
		details := ""
		if code != spx.NoError {
			details, err = r.property(family, h, spx.SpeechServiceResponseJSONErrorDetails)
			if err != nil {
				r.log.Warn("cancellation details unavailable", "error", err)
			}
		}
		res.Kind = KindCancellation
		res.Cancellation = &Cancellation{Reason: reason, Code: code, Details: details}
		return res, res.Err()

	case flags.Intersects(Synthesis):
		length, duration, err := r.api.ResultAudio(h)
		if err != nil {
			return Result{}, fmt.Errorf("events: synthesis audio: %w", err)
		}
		res.Kind = KindRecognition
		res.Duration = duration
		res.Recognition = &Recognition{Synthesis: &SynthesisInfo{AudioLength: length, AudioDuration: duration}}
		return res, nil

	case flags.Intersects(RecognitionEvents):
		return r.recognition(res, h)
	}
	return res, nil
}

func (r *Resolver) recognition(res Result, h spx.Handle) (Result, error) {
	text, err := r.decode(r.api.ResultText(h))
	if err != nil {
		return Result{}, fmt.Errorf("events: result text: %w", err)
	}
	offset, err := r.api.ResultOffset(h)
	if err != nil {
		return Result{}, fmt.Errorf("events: result offset: %w", err)
	}
	duration, err := r.api.ResultDuration(h)
	if err != nil {
		return Result{}, fmt.Errorf("events: result duration: %w", err)
	}
	res.Kind = KindRecognition
	res.Offset = Ticks(offset)
	res.Duration = Ticks(duration)
	rec := &Recognition{Text: text}

	if res.Flags.Contains(Recognized) {
		if raw, err := r.property(spx.FamilyRecognizerResult, h, spx.SpeechServiceResponseJSONResult); err == nil {
			rec.JSON = raw
		}
	}
	if res.Flags.Contains(Intent) {
		id, err := r.decode(r.api.ResultIntentID(h))
		if err != nil {
			return Result{}, fmt.Errorf("events: intent id: %w", err)
		}
		details, err := r.property(spx.FamilyRecognizerResult, h, spx.LanguageUnderstandingJSONResult)
		if err != nil {
			r.log.Debug("intent details unavailable", "error", err)
		}
		rec.Intent = &IntentInfo{ID: id, Details: details}
	}
	if res.Flags.Contains(Translation) {
		raw, err := r.api.ResultTranslations(h)
		if err != nil {
			return Result{}, fmt.Errorf("events: translations: %w", err)
		}
		rec.Translations = make(map[string]string, len(raw))
		for _, tr := range raw {
			lang, err := spx.DecodeOutput(tr.Language)
			if err != nil {
				return Result{}, fmt.Errorf("events: translation language: %w", err)
			}
			text, err := spx.DecodeOutput(tr.Text)
			if err != nil {
				return Result{}, fmt.Errorf("events: translation text: %w", err)
			}
			rec.Translations[lang] = text
		}
	}
	res.Recognition = rec
	return res, nil
}

func (r *Resolver) property(family spx.Family, h spx.Handle, id spx.PropertyID) (string, error) {
	bagHandle, err := r.api.ResultProperties(family, h)
	if err != nil {
		return "", err
	}
	bag := properties.New(r.api, bagHandle, r.log)
	defer bag.Close()
	return bag.GetByID(id)
}

func (r *Resolver) decode(raw []byte, err error) (string, error) {
	if err != nil {
		return "", err
	}
	return spx.DecodeOutput(raw)
}
