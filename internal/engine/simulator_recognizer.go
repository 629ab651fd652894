package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

// UtteranceKind selects what a scripted utterance resolves to.
type UtteranceKind int

const (
	UtteranceSpeech UtteranceKind = iota
	UtteranceNoMatch
	UtteranceCanceled
)

// Utterance is one scripted recognition the simulator plays back.
type Utterance struct {
	Kind     UtteranceKind
	Text     string
	Partials []string
	Duration time.Duration

	// RawText, when set, replaces the final text bytes verbatim.
	RawText []byte

	IntentID   string
	IntentJSON string

	NoMatch spx.NoMatchReason

	CancelReason spx.CancellationReason
	CancelCode   spx.CancellationErrorCode
	Details      string
}

// Say returns a recognized utterance whose partials are its growing word
// prefixes.
func Say(text string) Utterance {
	words := strings.Fields(text)
	var partials []string
	for i := 1; i < len(words); i++ {
		partials = append(partials, strings.Join(words[:i], " "))
	}
	return Utterance{Text: text, Partials: partials}
}

// Silence returns an utterance that resolves to no match.
func Silence(reason spx.NoMatchReason) Utterance {
	return Utterance{Kind: UtteranceNoMatch, NoMatch: reason}
}

// Fail returns an utterance that cancels the session with an error code.
func Fail(code spx.CancellationErrorCode, details string) Utterance {
	return Utterance{Kind: UtteranceCanceled, CancelReason: spx.CancellationError, CancelCode: code, Details: details}
}

type callbackEntry struct {
	cb  spx.Callback
	ctx spx.Context
}

type simConnection struct {
	callbacks map[spx.Category]callbackEntry
}

type simRecognizer struct {
	kind      spx.RecognizerKind
	bag       *simBag
	audio     *simAudio
	callbacks map[spx.Category]callbackEntry
	conn      *simConnection
	enabled   bool
	session   *simSession
	script    []Utterance
	cursor    int
	intents   map[string]simTrigger
	targets   []string
}

type simSession struct {
	id       string
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func (ss *simSession) requestStop() {
	ss.stopOnce.Do(func() { close(ss.stop) })
}

func (ss *simSession) finished() bool {
	select {
	case <-ss.done:
		return true
	default:
		return false
	}
}

func (ss *simSession) stopping() bool {
	select {
	case <-ss.stop:
		return true
	default:
		return false
	}
}

type simEvent struct {
	sessionID string
	offset    uint64
	result    *simResult
}

type simResult struct {
	reason       spx.ResultReason
	id           string
	text         []byte
	offset       uint64
	duration     uint64
	noMatch      spx.NoMatchReason
	cancelReason spx.CancellationReason
	cancelCode   spx.CancellationErrorCode
	intentID     string
	translations []spx.RawTranslation
	audioLength  uint32
	audioDur     time.Duration
	props        *simBag
}

func ticks(d time.Duration) uint64 {
	return uint64(d / (100 * time.Nanosecond))
}

// NewRecognizer implements spx.RecognizerAPI. An invalid audio handle
// selects the default microphone.
func (s *Simulator) NewRecognizer(kind spx.RecognizerKind, cfg, audio spx.Handle) (spx.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := fmt.Sprintf("recognizer_create_%s_recognizer_from_config", kind)
	bag, ok := s.configs[cfg]
	if !ok {
		return spx.InvalidHandle, invalidHandle(op)
	}
	a := &simAudio{kind: audioMicrophone}
	if audio.Valid() {
		if a, ok = s.audios[audio]; !ok {
			return spx.InvalidHandle, invalidHandle(op)
		}
	}
	h := s.alloc(spx.FamilyRecognizer)
	s.recognizers[h] = &simRecognizer{
		kind:      kind,
		bag:       bag.clone(),
		audio:     a,
		callbacks: map[spx.Category]callbackEntry{},
		enabled:   true,
		script:    append([]Utterance(nil), s.script...),
		intents:   map[string]simTrigger{},
	}
	return h, nil
}

// RecognizerProperties implements spx.RecognizerAPI.
func (s *Simulator) RecognizerProperties(reco spx.Handle) (spx.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recognizers[reco]
	if !ok {
		return spx.InvalidHandle, invalidHandle("recognizer_get_property_bag")
	}
	return s.bagHandle(r.bag), nil
}

// RecognizeOnce implements spx.RecognizerAPI. Scripted utterances are
// consumed in order; without a script the result is derived from the audio
// source, waiting for a push stream to be closed first.
func (s *Simulator) RecognizeOnce(reco spx.Handle) (spx.Handle, error) {
	s.mu.Lock()
	r, ok := s.recognizers[reco]
	if !ok {
		s.mu.Unlock()
		return spx.InvalidHandle, invalidHandle("recognizer_recognize_once")
	}
	if r.cursor < len(r.script) {
		u := r.script[r.cursor]
		r.cursor++
		defer s.mu.Unlock()
		return s.resultHandle(r, u), nil
	}
	audio := r.audio
	s.mu.Unlock()

	if audio.kind == audioPushStream {
		<-audio.stream.done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recognizers[reco]; !ok {
		return spx.InvalidHandle, invalidHandle("recognizer_recognize_once")
	}
	u, ok := derived(audio)
	if !ok {
		u = Silence(spx.InitialSilenceTimeout)
	}
	return s.resultHandle(r, u), nil
}

func (s *Simulator) resultHandle(r *simRecognizer, u Utterance) spx.Handle {
	h := s.alloc(spx.FamilyRecognizerResult)
	s.results[h] = s.resultFor(r, u, u.Text, true, 0)
	return h
}

func (s *Simulator) resultFor(r *simRecognizer, u Utterance, text string, final bool, offset uint64) *simResult {
	dur := u.Duration
	if dur == 0 {
		dur = wordsDuration(text)
	}
	res := &simResult{
		id:       uuid.NewString(),
		offset:   offset,
		duration: ticks(dur),
		props:    newSimBag(),
	}
	switch u.Kind {
	case UtteranceNoMatch:
		res.reason = spx.ReasonNoMatch
		res.noMatch = u.NoMatch
		if res.noMatch == 0 {
			res.noMatch = spx.NotRecognized
		}
		return res
	case UtteranceCanceled:
		res.reason = spx.ReasonCanceled
		res.cancelReason = u.CancelReason
		res.cancelCode = u.CancelCode
		if u.Details != "" {
			res.props.set(spx.SpeechServiceResponseJSONErrorDetails, u.Details)
		}
		return res
	}

	kind := spx.SpeechRecognizer
	if r != nil {
		kind = r.kind
	}
	res.text = []byte(text)
	if final && u.RawText != nil {
		res.text = append([]byte(nil), u.RawText...)
	}
	res.reason = spx.ReasonRecognizingSpeech
	if final {
		res.reason = spx.ReasonRecognizedSpeech
	}

	switch kind {
	case spx.IntentRecognizer:
		if !final {
			res.reason = spx.ReasonRecognizingIntent
			break
		}
		id := u.IntentID
		if id == "" && r != nil {
			id = matchIntent(r.intents, text)
		}
		if id != "" {
			res.reason = spx.ReasonRecognizedIntent
			res.intentID = id
			details := u.IntentJSON
			if details == "" {
				raw, _ := json.Marshal(map[string]any{
					"query":            text,
					"topScoringIntent": map[string]string{"intent": id},
				})
				details = string(raw)
			}
			res.props.set(spx.LanguageUnderstandingJSONResult, details)
		}
	case spx.TranslationRecognizer:
		res.reason = spx.ReasonTranslatingSpeech
		if final {
			res.reason = spx.ReasonTranslatedSpeech
		}
		if r != nil {
			for _, lang := range r.targets {
				res.translations = append(res.translations, spx.RawTranslation{
					Language: []byte(lang),
					Text:     []byte(fmt.Sprintf("[%s] %s", lang, text)),
				})
			}
		}
	}

	if final {
		raw, _ := json.Marshal(map[string]any{
			"RecognitionStatus": "Success",
			"DisplayText":       text,
			"Offset":            res.offset,
			"Duration":          res.duration,
		})
		res.props.set(spx.SpeechServiceResponseJSONResult, string(raw))
	}
	return res
}

func matchIntent(intents map[string]simTrigger, text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for id, t := range intents {
		if t.phrase != "" && strings.Contains(normalized, strings.ToLower(t.phrase)) {
			return id
		}
	}
	return ""
}

// StartContinuous implements spx.RecognizerAPI.
func (s *Simulator) StartContinuous(reco spx.Handle) (spx.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recognizers[reco]
	if !ok {
		return spx.InvalidHandle, invalidHandle("recognizer_start_continuous_recognition_async")
	}
	if r.session != nil && !r.session.stopping() && !r.session.finished() {
		return spx.InvalidHandle, invalidArg("recognizer_start_continuous_recognition_async")
	}
	sess := &simSession{
		id:   strings.ReplaceAll(uuid.NewString(), "-", ""),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	r.session = sess
	r.bag.set(spx.SpeechSessionID, sess.id)
	plan := append([]Utterance(nil), r.script[r.cursor:]...)
	r.cursor = len(r.script)

	h := s.alloc(spx.FamilyRecognizerAsync)
	s.asyncs[h] = sess
	s.wg.Add(1)
	go s.run(reco, sess, plan, r.audio)
	return h, nil
}

// WaitStartContinuous implements spx.RecognizerAPI.
func (s *Simulator) WaitStartContinuous(async spx.Handle, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check(spx.FamilyRecognizerAsync, async, "recognizer_start_continuous_recognition_async_wait_for")
}

// StopContinuous implements spx.RecognizerAPI.
func (s *Simulator) StopContinuous(reco spx.Handle) (spx.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recognizers[reco]
	if !ok {
		return spx.InvalidHandle, invalidHandle("recognizer_stop_continuous_recognition_async")
	}
	h := s.alloc(spx.FamilyRecognizerAsync)
	if r.session != nil {
		r.session.requestStop()
		s.asyncs[h] = r.session
	}
	return h, nil
}

// WaitStopContinuous implements spx.RecognizerAPI.
func (s *Simulator) WaitStopContinuous(async spx.Handle, timeout time.Duration) error {
	const op = "recognizer_stop_continuous_recognition_async_wait_for"
	s.mu.Lock()
	if err := s.check(spx.FamilyRecognizerAsync, async, op); err != nil {
		s.mu.Unlock()
		return err
	}
	sess := s.asyncs[async]
	hang := s.hangStop
	s.mu.Unlock()

	if hang {
		return &spx.APIError{Op: op, Code: spx.CodeTimeout}
	}
	if sess == nil {
		return nil
	}
	select {
	case <-sess.done:
		return nil
	case <-time.After(timeout):
		return &spx.APIError{Op: op, Code: spx.CodeTimeout}
	}
}

// SetRecognizerEnabled implements spx.RecognizerAPI.
func (s *Simulator) SetRecognizerEnabled(reco spx.Handle, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recognizers[reco]
	if !ok {
		return invalidHandle("recognizer_enable")
	}
	r.enabled = enabled
	return nil
}

// SetRecognizerCallback implements spx.RecognizerAPI.
func (s *Simulator) SetRecognizerCallback(reco spx.Handle, c spx.Category, cb spx.Callback, ctx spx.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := "recognizer_" + c.String() + "_set_callback"
	r, ok := s.recognizers[reco]
	if !ok {
		return invalidHandle(op)
	}
	if c.IsConnection() || c.EventFamily() != spx.FamilyRecognizerEvent {
		return invalidArg(op)
	}
	if cb == nil {
		delete(r.callbacks, c)
		return nil
	}
	r.callbacks[c] = callbackEntry{cb: cb, ctx: ctx}
	return nil
}

// ConnectionFromRecognizer implements spx.RecognizerAPI.
func (s *Simulator) ConnectionFromRecognizer(reco spx.Handle) (spx.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recognizers[reco]
	if !ok {
		return spx.InvalidHandle, invalidHandle("connection_from_recognizer")
	}
	if r.conn == nil {
		r.conn = &simConnection{callbacks: map[spx.Category]callbackEntry{}}
	}
	h := s.alloc(spx.FamilyConnection)
	s.connections[h] = r.conn
	return h, nil
}

// SetConnectionCallback implements spx.RecognizerAPI.
func (s *Simulator) SetConnectionCallback(conn spx.Handle, c spx.Category, cb spx.Callback, ctx spx.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := "connection_" + c.String() + "_set_callback"
	cn, ok := s.connections[conn]
	if !ok {
		return invalidHandle(op)
	}
	if !c.IsConnection() {
		return invalidArg(op)
	}
	if cb == nil {
		delete(cn.callbacks, c)
		return nil
	}
	cn.callbacks[c] = callbackEntry{cb: cb, ctx: ctx}
	return nil
}

// NewPhraseTrigger implements spx.RecognizerAPI.
func (s *Simulator) NewPhraseTrigger(phrase string) (spx.Handle, error) {
	if strings.TrimSpace(phrase) == "" {
		return spx.InvalidHandle, invalidArg("intent_trigger_create_from_phrase")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.alloc(spx.FamilyTrigger)
	s.triggers[h] = simTrigger{phrase: phrase}
	return h, nil
}

// NewLanguageUnderstandingModel implements spx.RecognizerAPI.
func (s *Simulator) NewLanguageUnderstandingModel(appID string) (spx.Handle, error) {
	if strings.TrimSpace(appID) == "" {
		return spx.InvalidHandle, invalidArg("language_understanding_model_create_from_app_id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.alloc(spx.FamilyModel)
	s.models[h] = appID
	return h, nil
}

// NewModelTrigger implements spx.RecognizerAPI.
func (s *Simulator) NewModelTrigger(model spx.Handle, intentName string) (spx.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appID, ok := s.models[model]
	if !ok {
		return spx.InvalidHandle, invalidHandle("intent_trigger_create_from_language_understanding_model")
	}
	h := s.alloc(spx.FamilyTrigger)
	s.triggers[h] = simTrigger{model: appID, intent: intentName}
	return h, nil
}

// AddIntent implements spx.RecognizerAPI.
func (s *Simulator) AddIntent(reco spx.Handle, intentID string, trigger spx.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recognizers[reco]
	if !ok {
		return invalidHandle("intent_recognizer_add_intent")
	}
	t, ok := s.triggers[trigger]
	if !ok {
		return invalidHandle("intent_recognizer_add_intent")
	}
	if r.kind != spx.IntentRecognizer {
		return invalidArg("intent_recognizer_add_intent")
	}
	if intentID == "" {
		intentID = t.intent
	}
	r.intents[intentID] = t
	return nil
}

// AddTargetLanguage implements spx.RecognizerAPI.
func (s *Simulator) AddTargetLanguage(reco spx.Handle, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recognizers[reco]
	if !ok {
		return invalidHandle("translator_add_target_language")
	}
	if r.kind != spx.TranslationRecognizer || strings.TrimSpace(language) == "" {
		return invalidArg("translator_add_target_language")
	}
	r.targets = append(r.targets, language)
	return nil
}

// EventSessionID implements spx.EventAPI.
func (s *Simulator) EventSessionID(event spx.Handle) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[event]
	if !ok {
		return nil, invalidHandle("recognizer_session_event_get_session_id")
	}
	return []byte(ev.sessionID), nil
}

// EventOffset implements spx.EventAPI.
func (s *Simulator) EventOffset(event spx.Handle) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[event]
	if !ok {
		return 0, invalidHandle("recognizer_recognition_event_get_offset")
	}
	return ev.offset, nil
}

// EventResult implements spx.EventAPI. Every call yields a new result
// handle the caller must release.
func (s *Simulator) EventResult(f spx.Family, event spx.Handle) (spx.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(f, event, "event_get_result"); err != nil {
		return spx.InvalidHandle, err
	}
	ev := s.events[event]
	if ev.result == nil {
		return spx.InvalidHandle, invalidArg("event_get_result")
	}
	family := spx.FamilyRecognizerResult
	if f == spx.FamilySynthesizerEvent {
		family = spx.FamilySynthesizerResult
	}
	h := s.alloc(family)
	s.results[h] = ev.result
	return h, nil
}

func (s *Simulator) result(f spx.Family, h spx.Handle, op string) (*simResult, error) {
	if f != 0 {
		if err := s.check(f, h, op); err != nil {
			return nil, err
		}
	}
	res, ok := s.results[h]
	if !ok {
		return nil, invalidHandle(op)
	}
	return res, nil
}

// ResultReason implements spx.ResultAPI.
func (s *Simulator) ResultReason(f spx.Family, h spx.Handle) (spx.ResultReason, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.result(f, h, "result_get_reason")
	if err != nil {
		return 0, err
	}
	return res.reason, nil
}

// ResultID implements spx.ResultAPI.
func (s *Simulator) ResultID(f spx.Family, h spx.Handle) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.result(f, h, "result_get_result_id")
	if err != nil {
		return nil, err
	}
	return []byte(res.id), nil
}

// ResultProperties implements spx.ResultAPI.
func (s *Simulator) ResultProperties(f spx.Family, h spx.Handle) (spx.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.result(f, h, "result_get_property_bag")
	if err != nil {
		return spx.InvalidHandle, err
	}
	return s.bagHandle(res.props), nil
}

// ResultCancellation implements spx.ResultAPI.
func (s *Simulator) ResultCancellation(f spx.Family, h spx.Handle) (spx.CancellationReason, spx.CancellationErrorCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.result(f, h, "result_get_reason_canceled")
	if err != nil {
		return 0, 0, err
	}
	return res.cancelReason, res.cancelCode, nil
}

// ResultText implements spx.ResultAPI.
func (s *Simulator) ResultText(h spx.Handle) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.result(0, h, "result_get_text")
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), res.text...), nil
}

// ResultOffset implements spx.ResultAPI.
func (s *Simulator) ResultOffset(h spx.Handle) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.result(0, h, "result_get_offset")
	if err != nil {
		return 0, err
	}
	return res.offset, nil
}

// ResultDuration implements spx.ResultAPI.
func (s *Simulator) ResultDuration(h spx.Handle) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.result(0, h, "result_get_duration")
	if err != nil {
		return 0, err
	}
	return res.duration, nil
}

// ResultNoMatch implements spx.ResultAPI.
func (s *Simulator) ResultNoMatch(h spx.Handle) (spx.NoMatchReason, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.result(0, h, "result_get_no_match_reason")
	if err != nil {
		return 0, err
	}
	return res.noMatch, nil
}

// ResultIntentID implements spx.ResultAPI.
func (s *Simulator) ResultIntentID(h spx.Handle) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.result(0, h, "intent_result_get_intent_id")
	if err != nil {
		return nil, err
	}
	return []byte(res.intentID), nil
}

// ResultTranslations implements spx.ResultAPI.
func (s *Simulator) ResultTranslations(h spx.Handle) ([]spx.RawTranslation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.result(0, h, "translation_text_result_get_translation")
	if err != nil {
		return nil, err
	}
	return append([]spx.RawTranslation(nil), res.translations...), nil
}

// ResultAudio implements spx.ResultAPI.
func (s *Simulator) ResultAudio(h spx.Handle) (uint32, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.result(0, h, "synth_result_get_audio_length_duration")
	if err != nil {
		return 0, 0, err
	}
	return res.audioLength, res.audioDur, nil
}
