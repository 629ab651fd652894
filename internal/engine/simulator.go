package engine

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/adapterinfo"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

// Simulator is an in-process spx.Engine. It hands out counter-based
// handles, keeps property bags in memory, and plays scripted utterances
// through registered callbacks from its own goroutines. It records every
// release so callers can assert handle hygiene.
type Simulator struct {
	log *slog.Logger

	mu         sync.Mutex
	nextHandle uintptr
	live       map[spx.Handle]spx.Family
	releases   map[spx.Handle]int

	bags         map[spx.Handle]*simBag
	configs      map[spx.Handle]*simBag
	audios       map[spx.Handle]*simAudio
	formats      map[spx.Handle]simFormat
	streams      map[spx.Handle]*simStream
	recognizers  map[spx.Handle]*simRecognizer
	connections  map[spx.Handle]*simConnection
	synthesizers map[spx.Handle]*simSynthesizer
	asyncs       map[spx.Handle]*simSession
	events       map[spx.Handle]*simEvent
	results      map[spx.Handle]*simResult
	triggers     map[spx.Handle]simTrigger
	models       map[spx.Handle]string

	script       []Utterance
	hangStop     bool
	synthFailure *Utterance
	wg           sync.WaitGroup
}

// NewSimulator returns an empty simulator.
func NewSimulator(logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		log: logger.With(
			"component", "engine.simulator",
			"adapter", adapterinfo.Info.Slug,
		),
		nextHandle:   0x1000,
		live:         map[spx.Handle]spx.Family{},
		releases:     map[spx.Handle]int{},
		bags:         map[spx.Handle]*simBag{},
		configs:      map[spx.Handle]*simBag{},
		audios:       map[spx.Handle]*simAudio{},
		formats:      map[spx.Handle]simFormat{},
		streams:      map[spx.Handle]*simStream{},
		recognizers:  map[spx.Handle]*simRecognizer{},
		connections:  map[spx.Handle]*simConnection{},
		synthesizers: map[spx.Handle]*simSynthesizer{},
		asyncs:       map[spx.Handle]*simSession{},
		events:       map[spx.Handle]*simEvent{},
		results:      map[spx.Handle]*simResult{},
		triggers:     map[spx.Handle]simTrigger{},
		models:       map[spx.Handle]string{},
	}
}

type simBag struct {
	values map[string][]byte
}

func newSimBag() *simBag { return &simBag{values: map[string][]byte{}} }

func (b *simBag) clone() *simBag {
	out := newSimBag()
	for k, v := range b.values {
		out.values[k] = append([]byte(nil), v...)
	}
	return out
}

func (b *simBag) get(id spx.PropertyID) string {
	return string(b.values[bagKey(id, "")])
}

func (b *simBag) set(id spx.PropertyID, value string) {
	b.values[bagKey(id, "")] = []byte(value)
}

func bagKey(id spx.PropertyID, name string) string {
	if id == spx.NoPropertyID {
		return name
	}
	return fmt.Sprintf("#%d", int(id))
}

type audioKind int

const (
	audioMicrophone audioKind = iota + 1
	audioFile
	audioPushStream
	audioSpeaker
	audioOutputFile
)

type simAudio struct {
	kind   audioKind
	path   string
	stream *simStream
}

type simFormat struct {
	rate     uint32
	bits     uint8
	channels uint8
}

type simStream struct {
	format simFormat
	bytes  int
	closed bool
	done   chan struct{}
}

type simTrigger struct {
	phrase string
	model  string
	intent string
}

// SetScript replaces the utterances new recognizers will play. Recognizers
// created earlier keep their copy.
func (s *Simulator) SetScript(utterances ...Utterance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append([]Utterance(nil), utterances...)
}

// SetHangOnStop makes stop waits report a timeout and suppresses the
// session-stopped event, as a wedged engine would.
func (s *Simulator) SetHangOnStop(hang bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hangStop = hang
}

// FailNextSynthesis makes the next synthesis end canceled with code.
func (s *Simulator) FailNextSynthesis(code spx.CancellationErrorCode, details string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synthFailure = &Utterance{Kind: UtteranceCanceled, CancelReason: spx.CancellationError, CancelCode: code, Details: details}
}

// ReleaseCount reports how many times h was released.
func (s *Simulator) ReleaseCount(h spx.Handle) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases[h]
}

// Live returns the number of handles not yet released.
func (s *Simulator) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// LiveFamily returns the number of live handles of family f.
func (s *Simulator) LiveFamily(f spx.Family) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, fam := range s.live {
		if fam == f {
			n++
		}
	}
	return n
}

// Invalidate drops h as if the engine had released it internally. Later
// validity checks on h fail.
func (s *Simulator) Invalidate(h spx.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forget(h)
}

// SetRawProperty stores raw bytes in a property bag, bypassing input
// validation.
func (s *Simulator) SetRawProperty(bag spx.Handle, id spx.PropertyID, name string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bags[bag]
	if !ok {
		return invalidHandle("property_bag_set_string")
	}
	b.values[bagKey(id, name)] = append([]byte(nil), raw...)
	return nil
}

// NewEventHandle allocates a recognizer event handle carrying u, for
// delivering callbacks by hand.
func (s *Simulator) NewEventHandle(u Utterance) spx.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.alloc(spx.FamilyRecognizerEvent)
	res := s.resultFor(nil, u, u.Text, true, 0)
	s.events[h] = &simEvent{sessionID: uuid.NewString(), result: res}
	return h
}

// CallbackCount reports how many categories have a callback registered on
// the recognizer or synthesizer h, including its connection.
func (s *Simulator) CallbackCount(h spx.Handle) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.recognizers[h]; ok {
		n := len(r.callbacks)
		if r.conn != nil {
			n += len(r.conn.callbacks)
		}
		return n
	}
	if sy, ok := s.synthesizers[h]; ok {
		return len(sy.callbacks)
	}
	return 0
}

// Close stops running sessions and waits for callback goroutines.
func (s *Simulator) Close() error {
	s.mu.Lock()
	for _, r := range s.recognizers {
		if r.session != nil {
			r.session.requestStop()
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *Simulator) alloc(f spx.Family) spx.Handle {
	s.nextHandle++
	h := spx.Handle(s.nextHandle)
	s.live[h] = f
	return h
}

func (s *Simulator) forget(h spx.Handle) {
	delete(s.live, h)
	delete(s.bags, h)
	delete(s.configs, h)
	delete(s.audios, h)
	delete(s.formats, h)
	delete(s.streams, h)
	delete(s.connections, h)
	delete(s.synthesizers, h)
	delete(s.asyncs, h)
	delete(s.events, h)
	delete(s.results, h)
	delete(s.triggers, h)
	delete(s.models, h)
	if r, ok := s.recognizers[h]; ok {
		if r.session != nil {
			r.session.requestStop()
		}
		delete(s.recognizers, h)
	}
}

func (s *Simulator) check(f spx.Family, h spx.Handle, op string) error {
	if fam, ok := s.live[h]; !ok || fam != f {
		return invalidHandle(op)
	}
	return nil
}

func invalidHandle(op string) error {
	return &spx.APIError{Op: op, Code: spx.CodeInvalidHandle}
}

func invalidArg(op string) error {
	return &spx.APIError{Op: op, Code: spx.CodeInvalidArg}
}

// Release implements spx.HandleAPI.
func (s *Simulator) Release(f spx.Family, h spx.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases[h]++
	if err := s.check(f, h, f.String()+"_release"); err != nil {
		return err
	}
	s.forget(h)
	return nil
}

// IsValid implements spx.HandleAPI.
func (s *Simulator) IsValid(f spx.Family, h spx.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	fam, ok := s.live[h]
	return ok && fam == f
}

// GetProperty implements spx.PropertyAPI. Missing entries read as "".
func (s *Simulator) GetProperty(bag spx.Handle, id spx.PropertyID, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bags[bag]
	if !ok {
		return nil, invalidHandle("property_bag_get_string")
	}
	return append([]byte(nil), b.values[bagKey(id, name)]...), nil
}

// SetProperty implements spx.PropertyAPI.
func (s *Simulator) SetProperty(bag spx.Handle, id spx.PropertyID, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bags[bag]
	if !ok {
		return invalidHandle("property_bag_set_string")
	}
	b.values[bagKey(id, name)] = []byte(value)
	return nil
}

func (s *Simulator) newConfig(op string, values map[spx.PropertyID]string) (spx.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bag := newSimBag()
	for id, v := range values {
		if strings.TrimSpace(v) == "" {
			return spx.InvalidHandle, invalidArg(op)
		}
		bag.set(id, v)
	}
	h := s.alloc(spx.FamilySpeechConfig)
	s.configs[h] = bag
	return h, nil
}

// NewConfigFromSubscription implements spx.ConfigAPI.
func (s *Simulator) NewConfigFromSubscription(key, region string) (spx.Handle, error) {
	return s.newConfig("speech_config_from_subscription", map[spx.PropertyID]string{
		spx.SpeechServiceConnectionKey:    key,
		spx.SpeechServiceConnectionRegion: region,
	})
}

// NewConfigFromAuthorizationToken implements spx.ConfigAPI.
func (s *Simulator) NewConfigFromAuthorizationToken(token, region string) (spx.Handle, error) {
	return s.newConfig("speech_config_from_authorization_token", map[spx.PropertyID]string{
		spx.SpeechServiceAuthorizationToken: token,
		spx.SpeechServiceConnectionRegion:   region,
	})
}

// NewConfigFromEndpoint implements spx.ConfigAPI.
func (s *Simulator) NewConfigFromEndpoint(endpoint, key string) (spx.Handle, error) {
	return s.newConfig("speech_config_from_endpoint", map[spx.PropertyID]string{
		spx.SpeechServiceConnectionEndpoint: endpoint,
		spx.SpeechServiceConnectionKey:      key,
	})
}

// ConfigProperties implements spx.ConfigAPI. The returned bag aliases the
// configuration's values.
func (s *Simulator) ConfigProperties(cfg spx.Handle) (spx.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bag, ok := s.configs[cfg]
	if !ok {
		return spx.InvalidHandle, invalidHandle("speech_config_get_property_bag")
	}
	return s.bagHandle(bag), nil
}

func (s *Simulator) bagHandle(bag *simBag) spx.Handle {
	h := s.alloc(spx.FamilyPropertyBag)
	s.bags[h] = bag
	return h
}

func (s *Simulator) newAudio(a *simAudio) spx.Handle {
	h := s.alloc(spx.FamilyAudioConfig)
	s.audios[h] = a
	return h
}

// NewAudioInputFromMicrophone implements spx.AudioAPI.
func (s *Simulator) NewAudioInputFromMicrophone() (spx.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newAudio(&simAudio{kind: audioMicrophone}), nil
}

// NewAudioInputFromWAVFile implements spx.AudioAPI.
func (s *Simulator) NewAudioInputFromWAVFile(path string) (spx.Handle, error) {
	if strings.TrimSpace(path) == "" {
		return spx.InvalidHandle, invalidArg("audio_config_create_audio_input_from_wav_file_name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newAudio(&simAudio{kind: audioFile, path: path}), nil
}

// NewAudioInputFromStream implements spx.AudioAPI.
func (s *Simulator) NewAudioInputFromStream(stream spx.Handle) (spx.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[stream]
	if !ok {
		return spx.InvalidHandle, invalidHandle("audio_config_create_audio_input_from_stream")
	}
	return s.newAudio(&simAudio{kind: audioPushStream, stream: st}), nil
}

// NewAudioOutputFromSpeaker implements spx.AudioAPI.
func (s *Simulator) NewAudioOutputFromSpeaker() (spx.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newAudio(&simAudio{kind: audioSpeaker}), nil
}

// NewAudioOutputFromWAVFile implements spx.AudioAPI.
func (s *Simulator) NewAudioOutputFromWAVFile(path string) (spx.Handle, error) {
	if strings.TrimSpace(path) == "" {
		return spx.InvalidHandle, invalidArg("audio_config_create_audio_output_from_wav_file_name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newAudio(&simAudio{kind: audioOutputFile, path: path}), nil
}

// NewDefaultAudioFormat implements spx.AudioAPI: 16 kHz, 16 bit, mono.
func (s *Simulator) NewDefaultAudioFormat() (spx.Handle, error) {
	return s.NewPCMAudioFormat(16000, 16, 1)
}

// NewPCMAudioFormat implements spx.AudioAPI.
func (s *Simulator) NewPCMAudioFormat(samplesPerSecond uint32, bitsPerSample, channels uint8) (spx.Handle, error) {
	if samplesPerSecond == 0 || bitsPerSample == 0 || channels == 0 {
		return spx.InvalidHandle, invalidArg("audio_stream_format_create_from_waveformat_pcm")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.alloc(spx.FamilyAudioStreamFormat)
	s.formats[h] = simFormat{rate: samplesPerSecond, bits: bitsPerSample, channels: channels}
	return h, nil
}

// NewPushAudioStream implements spx.AudioAPI.
func (s *Simulator) NewPushAudioStream(format spx.Handle) (spx.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.formats[format]
	if !ok {
		return spx.InvalidHandle, invalidHandle("audio_stream_create_push_audio_input_stream")
	}
	h := s.alloc(spx.FamilyAudioStream)
	s.streams[h] = &simStream{format: f, done: make(chan struct{})}
	return h, nil
}

// PushAudioStreamWrite implements spx.AudioAPI.
func (s *Simulator) PushAudioStreamWrite(stream spx.Handle, p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[stream]
	if !ok {
		return invalidHandle("push_audio_input_stream_write")
	}
	if st.closed {
		return invalidArg("push_audio_input_stream_write")
	}
	st.bytes += len(p)
	return nil
}

// PushAudioStreamClose implements spx.AudioAPI.
func (s *Simulator) PushAudioStreamClose(stream spx.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[stream]
	if !ok {
		return invalidHandle("push_audio_input_stream_close")
	}
	if !st.closed {
		st.closed = true
		close(st.done)
	}
	return nil
}

// derived builds the utterance the simulator reports when no script is
// set, from what it knows about the audio source.
func derived(a *simAudio) (Utterance, bool) {
	if a == nil {
		return Utterance{}, false
	}
	switch a.kind {
	case audioFile:
		return Say(fmt.Sprintf("simulated transcript of %s", filepath.Base(a.path))), true
	case audioPushStream:
		if a.stream.bytes == 0 {
			return Utterance{Kind: UtteranceNoMatch, NoMatch: spx.InitialSilenceTimeout}, true
		}
		return Say(fmt.Sprintf("simulated transcript of %d bytes", a.stream.bytes)), true
	}
	return Utterance{}, false
}

func wordsDuration(text string) time.Duration {
	n := len(strings.Fields(text))
	if n == 0 {
		n = 1
	}
	return time.Duration(n) * 300 * time.Millisecond
}
