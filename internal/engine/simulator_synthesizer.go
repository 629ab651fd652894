package engine

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

// 16 kHz, 16 bit mono PCM.
const simBytesPerMillisecond = 32

type simSynthesizer struct {
	bag       *simBag
	audio     *simAudio
	callbacks map[spx.Category]callbackEntry
	enabled   bool
	stopped   bool
}

// NewSynthesizer implements spx.SynthesizerAPI. An invalid audio handle
// selects the default speaker.
func (s *Simulator) NewSynthesizer(cfg, audio spx.Handle) (spx.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	const op = "synthesizer_create_speech_synthesizer_from_config"
	bag, ok := s.configs[cfg]
	if !ok {
		return spx.InvalidHandle, invalidHandle(op)
	}
	a := &simAudio{kind: audioSpeaker}
	if audio.Valid() {
		if a, ok = s.audios[audio]; !ok {
			return spx.InvalidHandle, invalidHandle(op)
		}
	}
	h := s.alloc(spx.FamilySynthesizer)
	s.synthesizers[h] = &simSynthesizer{
		bag:       bag.clone(),
		audio:     a,
		callbacks: map[spx.Category]callbackEntry{},
		enabled:   true,
	}
	return h, nil
}

// SynthesizerProperties implements spx.SynthesizerAPI.
func (s *Simulator) SynthesizerProperties(synth spx.Handle) (spx.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sy, ok := s.synthesizers[synth]
	if !ok {
		return spx.InvalidHandle, invalidHandle("synthesizer_get_property_bag")
	}
	return s.bagHandle(sy.bag), nil
}

// SpeakText implements spx.SynthesizerAPI.
func (s *Simulator) SpeakText(synth spx.Handle, text string) (spx.Handle, error) {
	return s.speak(synth, text, "synthesizer_speak_text")
}

// SpeakSSML implements spx.SynthesizerAPI.
func (s *Simulator) SpeakSSML(synth spx.Handle, ssml string) (spx.Handle, error) {
	return s.speak(synth, stripMarkup(ssml), "synthesizer_speak_ssml")
}

// StartSpeakingText implements spx.SynthesizerAPI.
func (s *Simulator) StartSpeakingText(synth spx.Handle, text string) (spx.Handle, error) {
	return s.startSpeaking(synth, text, "synthesizer_start_speaking_text")
}

// StartSpeakingSSML implements spx.SynthesizerAPI.
func (s *Simulator) StartSpeakingSSML(synth spx.Handle, ssml string) (spx.Handle, error) {
	return s.startSpeaking(synth, stripMarkup(ssml), "synthesizer_start_speaking_ssml")
}

// StopSpeaking implements spx.SynthesizerAPI.
func (s *Simulator) StopSpeaking(synth spx.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sy, ok := s.synthesizers[synth]
	if !ok {
		return invalidHandle("synthesizer_stop_speaking")
	}
	sy.stopped = true
	return nil
}

// SetSynthesizerEnabled implements spx.SynthesizerAPI.
func (s *Simulator) SetSynthesizerEnabled(synth spx.Handle, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sy, ok := s.synthesizers[synth]
	if !ok {
		return invalidHandle("synthesizer_enable")
	}
	sy.enabled = enabled
	return nil
}

// SetSynthesizerCallback implements spx.SynthesizerAPI.
func (s *Simulator) SetSynthesizerCallback(synth spx.Handle, c spx.Category, cb spx.Callback, ctx spx.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := "synthesizer_" + c.String() + "_set_callback"
	sy, ok := s.synthesizers[synth]
	if !ok {
		return invalidHandle(op)
	}
	if c.EventFamily() != spx.FamilySynthesizerEvent {
		return invalidArg(op)
	}
	if cb == nil {
		delete(sy.callbacks, c)
		return nil
	}
	sy.callbacks[c] = callbackEntry{cb: cb, ctx: ctx}
	return nil
}

func (s *Simulator) speak(synth spx.Handle, text, op string) (spx.Handle, error) {
	s.mu.Lock()
	sy, ok := s.synthesizers[synth]
	if !ok {
		s.mu.Unlock()
		return spx.InvalidHandle, invalidHandle(op)
	}
	sy.stopped = false
	s.mu.Unlock()

	final := s.synthesize(synth, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.alloc(spx.FamilySynthesizerResult)
	s.results[h] = final
	return h, nil
}

func (s *Simulator) startSpeaking(synth spx.Handle, text, op string) (spx.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sy, ok := s.synthesizers[synth]
	if !ok {
		return spx.InvalidHandle, invalidHandle(op)
	}
	sy.stopped = false
	h := s.alloc(spx.FamilySynthesizerResult)
	s.results[h] = &simResult{reason: spx.ReasonSynthesizingAudioStarted, id: uuid.NewString(), props: newSimBag()}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.synthesize(synth, text)
	}()
	return h, nil
}

// synthesize fires started, one synthesizing event per word and then
// completed or canceled. It returns the final result.
func (s *Simulator) synthesize(synth spx.Handle, text string) *simResult {
	id := uuid.NewString()
	s.fireSynth(synth, spx.SynthesisStartedEvent, &simResult{reason: spx.ReasonSynthesizingAudioStarted, id: id, props: newSimBag()})

	s.mu.Lock()
	failure := s.synthFailure
	s.synthFailure = nil
	s.mu.Unlock()

	var total time.Duration
	for _, word := range strings.Fields(text) {
		s.mu.Lock()
		sy, ok := s.synthesizers[synth]
		stopped := !ok || sy.stopped
		s.mu.Unlock()
		if stopped {
			failure = &Utterance{Kind: UtteranceCanceled, CancelReason: spx.CancellationCancelledByUser}
			break
		}
		chunk := time.Duration(utf8.RuneCountInString(word)+1) * 60 * time.Millisecond
		total += chunk
		s.fireSynth(synth, spx.SynthesizingEvent, &simResult{
			reason:      spx.ReasonSynthesizingAudio,
			id:          id,
			audioLength: uint32(chunk.Milliseconds() * simBytesPerMillisecond),
			audioDur:    chunk,
			props:       newSimBag(),
		})
	}

	if failure != nil {
		res := &simResult{
			reason:       spx.ReasonCanceled,
			id:           id,
			cancelReason: failure.CancelReason,
			cancelCode:   failure.CancelCode,
			props:        newSimBag(),
		}
		if failure.Details != "" {
			res.props.set(spx.SpeechServiceResponseJSONErrorDetails, failure.Details)
		}
		s.fireSynth(synth, spx.SynthesisCanceledEvent, res)
		return res
	}

	res := &simResult{
		reason:      spx.ReasonSynthesizingAudioComplete,
		id:          id,
		audioLength: uint32(total.Milliseconds() * simBytesPerMillisecond),
		audioDur:    total,
		props:       newSimBag(),
	}
	s.fireSynth(synth, spx.SynthesisCompletedEvent, res)
	return res
}

func (s *Simulator) fireSynth(synth spx.Handle, c spx.Category, res *simResult) {
	s.mu.Lock()
	sy, ok := s.synthesizers[synth]
	if !ok || !sy.enabled {
		s.mu.Unlock()
		return
	}
	entry, found := sy.callbacks[c]
	if !found {
		s.mu.Unlock()
		return
	}
	h := s.alloc(spx.FamilySynthesizerEvent)
	s.events[h] = &simEvent{result: res}
	s.mu.Unlock()
	entry.cb(synth, h, entry.ctx)
}

func stripMarkup(ssml string) string {
	var b strings.Builder
	inTag := false
	for _, r := range ssml {
		switch {
		case r == '<':
			inTag = true
			b.WriteByte(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
