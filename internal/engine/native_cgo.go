//go:build speechsdk

package engine

/*
#cgo CFLAGS: -I${SRCDIR}/../../third_party/speechsdk/include/c_api
#cgo LDFLAGS: -L${SRCDIR}/../../third_party/speechsdk/lib -Wl,-rpath,${SRCDIR}/../../third_party/speechsdk/lib -lMicrosoft.CognitiveServices.Speech.core

#include <stdlib.h>
#include <string.h>
#include <speechapi_c.h>

#define H(x) ((SPXHANDLE)(x))

extern void spxGoDispatch(int category, uintptr_t source, uintptr_t event, uintptr_t box);

static void on_session_started(SPXRECOHANDLE r, SPXEVENTHANDLE e, void* c) { spxGoDispatch(1, (uintptr_t)r, (uintptr_t)e, (uintptr_t)c); }
static void on_session_stopped(SPXRECOHANDLE r, SPXEVENTHANDLE e, void* c) { spxGoDispatch(2, (uintptr_t)r, (uintptr_t)e, (uintptr_t)c); }
static void on_speech_start(SPXRECOHANDLE r, SPXEVENTHANDLE e, void* c) { spxGoDispatch(3, (uintptr_t)r, (uintptr_t)e, (uintptr_t)c); }
static void on_speech_end(SPXRECOHANDLE r, SPXEVENTHANDLE e, void* c) { spxGoDispatch(4, (uintptr_t)r, (uintptr_t)e, (uintptr_t)c); }
static void on_recognizing(SPXRECOHANDLE r, SPXEVENTHANDLE e, void* c) { spxGoDispatch(5, (uintptr_t)r, (uintptr_t)e, (uintptr_t)c); }
static void on_recognized(SPXRECOHANDLE r, SPXEVENTHANDLE e, void* c) { spxGoDispatch(6, (uintptr_t)r, (uintptr_t)e, (uintptr_t)c); }
static void on_canceled(SPXRECOHANDLE r, SPXEVENTHANDLE e, void* c) { spxGoDispatch(7, (uintptr_t)r, (uintptr_t)e, (uintptr_t)c); }
static void on_connected(SPXEVENTHANDLE e, void* c) { spxGoDispatch(8, (uintptr_t)SPXHANDLE_INVALID, (uintptr_t)e, (uintptr_t)c); }
static void on_disconnected(SPXEVENTHANDLE e, void* c) { spxGoDispatch(9, (uintptr_t)SPXHANDLE_INVALID, (uintptr_t)e, (uintptr_t)c); }
static void on_synth_started(SPXSYNTHHANDLE s, SPXEVENTHANDLE e, void* c) { spxGoDispatch(10, (uintptr_t)s, (uintptr_t)e, (uintptr_t)c); }
static void on_synthesizing(SPXSYNTHHANDLE s, SPXEVENTHANDLE e, void* c) { spxGoDispatch(11, (uintptr_t)s, (uintptr_t)e, (uintptr_t)c); }
static void on_synth_completed(SPXSYNTHHANDLE s, SPXEVENTHANDLE e, void* c) { spxGoDispatch(12, (uintptr_t)s, (uintptr_t)e, (uintptr_t)c); }
static void on_synth_canceled(SPXSYNTHHANDLE s, SPXEVENTHANDLE e, void* c) { spxGoDispatch(13, (uintptr_t)s, (uintptr_t)e, (uintptr_t)c); }

// Registration: box is the Go-side context key; 0 unregisters.
static AZACHR spx_set_reco_callback(int category, uintptr_t reco, uintptr_t box) {
	SPXRECOHANDLE h = H(reco);
	switch (category) {
	case 1: return recognizer_session_started_set_callback(h, box ? on_session_started : NULL, (void*)box);
	case 2: return recognizer_session_stopped_set_callback(h, box ? on_session_stopped : NULL, (void*)box);
	case 3: return recognizer_speech_start_detected_set_callback(h, box ? on_speech_start : NULL, (void*)box);
	case 4: return recognizer_speech_end_detected_set_callback(h, box ? on_speech_end : NULL, (void*)box);
	case 5: return recognizer_recognizing_set_callback(h, box ? on_recognizing : NULL, (void*)box);
	case 6: return recognizer_recognized_set_callback(h, box ? on_recognized : NULL, (void*)box);
	case 7: return recognizer_canceled_set_callback(h, box ? on_canceled : NULL, (void*)box);
	}
	return SPXERR_INVALID_ARG;
}

static AZACHR spx_set_connection_callback(int category, uintptr_t conn, uintptr_t box) {
	SPXCONNECTIONHANDLE h = H(conn);
	switch (category) {
	case 8: return connection_connected_set_callback(h, box ? on_connected : NULL, (void*)box);
	case 9: return connection_disconnected_set_callback(h, box ? on_disconnected : NULL, (void*)box);
	}
	return SPXERR_INVALID_ARG;
}

static AZACHR spx_set_synth_callback(int category, uintptr_t synth, uintptr_t box) {
	SPXSYNTHHANDLE h = H(synth);
	switch (category) {
	case 10: return synthesizer_started_set_callback(h, box ? on_synth_started : NULL, (void*)box);
	case 11: return synthesizer_synthesizing_set_callback(h, box ? on_synthesizing : NULL, (void*)box);
	case 12: return synthesizer_completed_set_callback(h, box ? on_synth_completed : NULL, (void*)box);
	case 13: return synthesizer_canceled_set_callback(h, box ? on_synth_canceled : NULL, (void*)box);
	}
	return SPXERR_INVALID_ARG;
}

static AZACHR spx_release(int family, uintptr_t v) {
	SPXHANDLE h = H(v);
	switch (family) {
	case 1: return speech_config_release(h);
	case 2: return property_bag_release(h);
	case 3: return audio_config_release(h);
	case 4: return audio_stream_release(h);
	case 5: return audio_stream_format_release(h);
	case 6: return recognizer_handle_release(h);
	case 7: return synthesizer_handle_release(h);
	case 8: return recognizer_async_handle_release(h);
	case 9: return recognizer_event_handle_release(h);
	case 10: return synthesizer_event_handle_release(h);
	case 11: return recognizer_result_handle_release(h);
	case 12: return synthesizer_result_handle_release(h);
	case 13: return connection_handle_release(h);
	case 14: return intent_trigger_handle_release(h);
	case 15: return language_understanding_model__handle_release(h);
	}
	return SPXERR_INVALID_ARG;
}

static int spx_is_valid(int family, uintptr_t v) {
	SPXHANDLE h = H(v);
	switch (family) {
	case 1: return speech_config_is_handle_valid(h);
	case 2: return property_bag_is_valid(h);
	case 3: return audio_config_is_handle_valid(h);
	case 4: return audio_stream_is_handle_valid(h);
	case 5: return audio_stream_format_is_handle_valid(h);
	case 6: return recognizer_handle_is_valid(h);
	case 7: return synthesizer_handle_is_valid(h);
	case 8: return recognizer_async_handle_is_valid(h);
	case 9: return recognizer_event_handle_is_valid(h);
	case 10: return synthesizer_event_handle_is_valid(h);
	case 11: return recognizer_result_handle_is_valid(h);
	case 12: return synthesizer_result_handle_is_valid(h);
	case 14: return intent_trigger_handle_is_valid(h);
	case 15: return language_understanding_model_handle_is_valid(h);
	}
	return 0;
}

static AZACHR spx_config(int mode, uintptr_t* out, const char* a, const char* b) {
	SPXSPEECHCONFIGHANDLE h = SPXHANDLE_INVALID;
	AZACHR hr = SPXERR_INVALID_ARG;
	switch (mode) {
	case 1: hr = speech_config_from_subscription(&h, a, b); break;
	case 2: hr = speech_config_from_authorization_token(&h, a, b); break;
	case 3: hr = speech_config_from_endpoint(&h, a, b); break;
	}
	*out = (uintptr_t)h;
	return hr;
}

static AZACHR spx_property_bag(int owner, uintptr_t v, uintptr_t* out) {
	SPXPROPERTYBAGHANDLE bag = SPXHANDLE_INVALID;
	AZACHR hr = SPXERR_INVALID_ARG;
	switch (owner) {
	case 1: hr = speech_config_get_property_bag(H(v), &bag); break;
	case 6: hr = recognizer_get_property_bag(H(v), &bag); break;
	case 7: hr = synthesizer_get_property_bag(H(v), &bag); break;
	case 11: hr = result_get_property_bag(H(v), &bag); break;
	case 12: hr = synth_result_get_property_bag(H(v), &bag); break;
	}
	*out = (uintptr_t)bag;
	return hr;
}

static const char* spx_property_get(uintptr_t bag, int id, const char* name) {
	return property_bag_get_string(H(bag), id, name, "");
}

static AZACHR spx_property_set(uintptr_t bag, int id, const char* name, const char* value) {
	return property_bag_set_string(H(bag), id, name, value);
}

static AZACHR spx_audio_input(int mode, uintptr_t* out, const char* path, uintptr_t stream) {
	SPXAUDIOCONFIGHANDLE h = SPXHANDLE_INVALID;
	AZACHR hr = SPXERR_INVALID_ARG;
	switch (mode) {
	case 1: hr = audio_config_create_audio_input_from_default_microphone(&h); break;
	case 2: hr = audio_config_create_audio_input_from_wav_file_name(&h, path); break;
	case 3: hr = audio_config_create_audio_input_from_stream(&h, H(stream)); break;
	case 4: hr = audio_config_create_audio_output_from_default_speaker(&h); break;
	case 5: hr = audio_config_create_audio_output_from_wav_file_name(&h, path); break;
	}
	*out = (uintptr_t)h;
	return hr;
}

static AZACHR spx_format(uintptr_t* out, int pcm, uint32_t rate, uint8_t bits, uint8_t channels) {
	SPXAUDIOSTREAMFORMATHANDLE h = SPXHANDLE_INVALID;
	AZACHR hr = pcm ? audio_stream_format_create_from_waveformat_pcm(&h, rate, bits, channels)
	                : audio_stream_format_create_from_default_input(&h);
	*out = (uintptr_t)h;
	return hr;
}

static AZACHR spx_push_stream(uintptr_t* out, uintptr_t format) {
	SPXAUDIOSTREAMHANDLE h = SPXHANDLE_INVALID;
	AZACHR hr = audio_stream_create_push_audio_input_stream(&h, H(format));
	*out = (uintptr_t)h;
	return hr;
}

static AZACHR spx_push_write(uintptr_t stream, void* p, uint32_t n) {
	return push_audio_input_stream_write(H(stream), (uint8_t*)p, n);
}

static AZACHR spx_push_close(uintptr_t stream) {
	return push_audio_input_stream_close(H(stream));
}

static AZACHR spx_recognizer(int kind, uintptr_t* out, uintptr_t cfg, uintptr_t audio) {
	SPXRECOHANDLE h = SPXHANDLE_INVALID;
	AZACHR hr = SPXERR_INVALID_ARG;
	switch (kind) {
	case 1: hr = recognizer_create_speech_recognizer_from_config(&h, H(cfg), H(audio)); break;
	case 2: hr = recognizer_create_intent_recognizer_from_config(&h, H(cfg), H(audio)); break;
	case 3: hr = recognizer_create_translation_recognizer_from_config(&h, H(cfg), H(audio)); break;
	}
	*out = (uintptr_t)h;
	return hr;
}

static AZACHR spx_recognize_once(uintptr_t reco, uintptr_t* out) {
	SPXRESULTHANDLE h = SPXHANDLE_INVALID;
	AZACHR hr = recognizer_recognize_once(H(reco), &h);
	*out = (uintptr_t)h;
	return hr;
}

static AZACHR spx_continuous(int start, uintptr_t reco, uintptr_t* out) {
	SPXASYNCHANDLE h = SPXHANDLE_INVALID;
	AZACHR hr = start ? recognizer_start_continuous_recognition_async(H(reco), &h)
	                  : recognizer_stop_continuous_recognition_async(H(reco), &h);
	*out = (uintptr_t)h;
	return hr;
}

static AZACHR spx_continuous_wait(int start, uintptr_t async, uint32_t ms) {
	return start ? recognizer_start_continuous_recognition_async_wait_for(H(async), ms)
	             : recognizer_stop_continuous_recognition_async_wait_for(H(async), ms);
}

static AZACHR spx_enable(int synth, uintptr_t v, int on) {
	if (synth) {
		return on ? synthesizer_enable(H(v)) : synthesizer_disable(H(v));
	}
	return on ? recognizer_enable(H(v)) : recognizer_disable(H(v));
}

static AZACHR spx_connection(uintptr_t reco, uintptr_t* out) {
	SPXCONNECTIONHANDLE h = SPXHANDLE_INVALID;
	AZACHR hr = connection_from_recognizer(H(reco), &h);
	*out = (uintptr_t)h;
	return hr;
}

static AZACHR spx_trigger(int mode, uintptr_t* out, const char* s, uintptr_t model) {
	SPXTRIGGERHANDLE h = SPXHANDLE_INVALID;
	AZACHR hr = mode == 1 ? intent_trigger_create_from_phrase(&h, s)
	                      : intent_trigger_create_from_language_understanding_model(&h, H(model), s);
	*out = (uintptr_t)h;
	return hr;
}

static AZACHR spx_model(uintptr_t* out, const char* app) {
	SPXLUMODELHANDLE h = SPXHANDLE_INVALID;
	AZACHR hr = language_understanding_model_create_from_app_id(&h, app);
	*out = (uintptr_t)h;
	return hr;
}

static AZACHR spx_add_intent(uintptr_t reco, const char* id, uintptr_t trigger) {
	return intent_recognizer_add_intent(H(reco), id, H(trigger));
}

static AZACHR spx_add_target(uintptr_t reco, const char* lang) {
	return translator_add_target_language(H(reco), lang);
}

static AZACHR spx_event_session_id(uintptr_t ev, char* buf, uint32_t n) {
	return recognizer_session_event_get_session_id(H(ev), buf, n);
}

static AZACHR spx_event_offset(uintptr_t ev, uint64_t* out) {
	return recognizer_recognition_event_get_offset(H(ev), out);
}

static AZACHR spx_event_result(int synth, uintptr_t ev, uintptr_t* out) {
	SPXRESULTHANDLE h = SPXHANDLE_INVALID;
	AZACHR hr = synth ? synthesizer_synthesis_event_get_result(H(ev), &h)
	                  : recognizer_recognition_event_get_result(H(ev), &h);
	*out = (uintptr_t)h;
	return hr;
}

static AZACHR spx_result_reason(int synth, uintptr_t res, int* out) {
	Result_Reason r;
	AZACHR hr = synth ? synth_result_get_reason(H(res), &r) : result_get_reason(H(res), &r);
	*out = (int)r;
	return hr;
}

static AZACHR spx_result_id(int synth, uintptr_t res, char* buf, uint32_t n) {
	return synth ? synth_result_get_result_id(H(res), buf, n) : result_get_result_id(H(res), buf, n);
}

static AZACHR spx_result_cancellation(int synth, uintptr_t res, int* reason, int* code) {
	Result_CancellationReason r;
	Result_CancellationErrorCode c;
	AZACHR hr = synth ? synth_result_get_reason_canceled(H(res), &r) : result_get_reason_canceled(H(res), &r);
	if (hr != SPX_NOERROR) return hr;
	hr = synth ? synth_result_get_canceled_error_code(H(res), &c) : result_get_canceled_error_code(H(res), &c);
	*reason = (int)r;
	*code = (int)c;
	return hr;
}

static AZACHR spx_result_text(uintptr_t res, char* buf, uint32_t n) {
	return result_get_text(H(res), buf, n);
}

static AZACHR spx_result_offset(uintptr_t res, uint64_t* out) {
	return result_get_offset(H(res), out);
}

static AZACHR spx_result_duration(uintptr_t res, uint64_t* out) {
	return result_get_duration(H(res), out);
}

static AZACHR spx_result_no_match(uintptr_t res, int* out) {
	Result_NoMatchReason r;
	AZACHR hr = result_get_no_match_reason(H(res), &r);
	*out = (int)r;
	return hr;
}

static AZACHR spx_result_intent_id(uintptr_t res, char* buf, uint32_t n) {
	return intent_result_get_intent_id(H(res), buf, n);
}

static AZACHR spx_translation_count(uintptr_t res, size_t* out) {
	return translation_text_result_get_translation_count(H(res), out);
}

static AZACHR spx_translation(uintptr_t res, size_t i, char* lang, char* text, size_t* langSize, size_t* textSize) {
	return translation_text_result_get_translation(H(res), i, lang, text, langSize, textSize);
}

static AZACHR spx_result_audio(uintptr_t res, uint32_t* length, uint64_t* ms) {
	return synth_result_get_audio_length_duration(H(res), length, ms);
}

static AZACHR spx_synthesizer(uintptr_t* out, uintptr_t cfg, uintptr_t audio) {
	SPXSYNTHHANDLE h = SPXHANDLE_INVALID;
	AZACHR hr = synthesizer_create_speech_synthesizer_from_config(&h, H(cfg), H(audio));
	*out = (uintptr_t)h;
	return hr;
}

static AZACHR spx_speak(int mode, uintptr_t synth, const char* text, uint32_t n, uintptr_t* out) {
	SPXRESULTHANDLE h = SPXHANDLE_INVALID;
	AZACHR hr = SPXERR_INVALID_ARG;
	switch (mode) {
	case 1: hr = synthesizer_speak_text(H(synth), text, n, &h); break;
	case 2: hr = synthesizer_speak_ssml(H(synth), text, n, &h); break;
	case 3: hr = synthesizer_start_speaking_text(H(synth), text, n, &h); break;
	case 4: hr = synthesizer_start_speaking_ssml(H(synth), text, n, &h); break;
	}
	*out = (uintptr_t)h;
	return hr;
}

static AZACHR spx_stop_speaking(uintptr_t synth) {
	return synthesizer_stop_speaking(H(synth));
}
*/
import "C"

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unsafe"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/adapterinfo"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

const (
	idBufferSize   = 1024
	textBufferSize = 64 * 1024
)

// NativeAvailable reports whether the Speech SDK binding is compiled in.
func NativeAvailable() bool { return true }

// Native binds spx.Engine to the Speech SDK C library.
type Native struct {
	log *slog.Logger
}

var nativeLog = slog.Default()

// NewNative returns the Speech SDK engine.
func NewNative(logger *slog.Logger) (spx.Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "engine.native", "adapter", adapterinfo.Info.Slug)
	nativeLog = log
	return &Native{log: log}, nil
}

// Close implements spx.Engine. Handles are owned by their wrappers.
func (n *Native) Close() error { return nil }

func check(op string, hr C.AZACHR) error {
	return spx.Check(op, uintptr(hr))
}

func cstr(s string) (*C.char, func()) {
	p := C.CString(s)
	return p, func() { C.free(unsafe.Pointer(p)) }
}

func readBuffer(size int, call func(*C.char, C.uint32_t) C.AZACHR, op string) ([]byte, error) {
	buf := make([]byte, size)
	if err := check(op, call((*C.char)(unsafe.Pointer(&buf[0])), C.uint32_t(size))); err != nil {
		return nil, err
	}
	return buf, nil
}

func (n *Native) Release(f spx.Family, h spx.Handle) error {
	return check(f.String()+"_release", C.spx_release(C.int(f), C.uintptr_t(h)))
}

func (n *Native) IsValid(f spx.Family, h spx.Handle) bool {
	if !f.HasValidityCheck() {
		return h.Valid()
	}
	return C.spx_is_valid(C.int(f), C.uintptr_t(h)) != 0
}

func (n *Native) GetProperty(bag spx.Handle, id spx.PropertyID, name string) ([]byte, error) {
	var cname *C.char
	if id == spx.NoPropertyID {
		p, free := cstr(name)
		defer free()
		cname = p
	}
	value := C.spx_property_get(C.uintptr_t(bag), C.int(id), cname)
	if value == nil {
		return nil, nil
	}
	defer C.property_bag_free_string(value)
	return C.GoBytes(unsafe.Pointer(value), C.int(C.strlen(value))), nil
}

func (n *Native) SetProperty(bag spx.Handle, id spx.PropertyID, name, value string) error {
	var cname *C.char
	if id == spx.NoPropertyID {
		p, free := cstr(name)
		defer free()
		cname = p
	}
	cvalue, free := cstr(value)
	defer free()
	return check("property_bag_set_string", C.spx_property_set(C.uintptr_t(bag), C.int(id), cname, cvalue))
}

func (n *Native) config(mode int, op, a, b string) (spx.Handle, error) {
	ca, freeA := cstr(a)
	defer freeA()
	cb, freeB := cstr(b)
	defer freeB()
	var out C.uintptr_t
	if err := check(op, C.spx_config(C.int(mode), &out, ca, cb)); err != nil {
		return spx.InvalidHandle, err
	}
	return spx.Handle(out), nil
}

func (n *Native) NewConfigFromSubscription(key, region string) (spx.Handle, error) {
	return n.config(1, "speech_config_from_subscription", key, region)
}

func (n *Native) NewConfigFromAuthorizationToken(token, region string) (spx.Handle, error) {
	return n.config(2, "speech_config_from_authorization_token", token, region)
}

func (n *Native) NewConfigFromEndpoint(endpoint, key string) (spx.Handle, error) {
	return n.config(3, "speech_config_from_endpoint", endpoint, key)
}

func (n *Native) propertyBag(owner spx.Family, h spx.Handle) (spx.Handle, error) {
	var out C.uintptr_t
	if err := check(owner.String()+"_get_property_bag", C.spx_property_bag(C.int(owner), C.uintptr_t(h), &out)); err != nil {
		return spx.InvalidHandle, err
	}
	return spx.Handle(out), nil
}

func (n *Native) ConfigProperties(cfg spx.Handle) (spx.Handle, error) {
	return n.propertyBag(spx.FamilySpeechConfig, cfg)
}

func (n *Native) audio(mode int, op, path string, stream spx.Handle) (spx.Handle, error) {
	var cpath *C.char
	if path != "" {
		p, free := cstr(path)
		defer free()
		cpath = p
	}
	var out C.uintptr_t
	if err := check(op, C.spx_audio_input(C.int(mode), &out, cpath, C.uintptr_t(stream))); err != nil {
		return spx.InvalidHandle, err
	}
	return spx.Handle(out), nil
}

func (n *Native) NewAudioInputFromMicrophone() (spx.Handle, error) {
	return n.audio(1, "audio_config_create_audio_input_from_default_microphone", "", spx.InvalidHandle)
}

func (n *Native) NewAudioInputFromWAVFile(path string) (spx.Handle, error) {
	return n.audio(2, "audio_config_create_audio_input_from_wav_file_name", path, spx.InvalidHandle)
}

func (n *Native) NewAudioInputFromStream(stream spx.Handle) (spx.Handle, error) {
	return n.audio(3, "audio_config_create_audio_input_from_stream", "", stream)
}

func (n *Native) NewAudioOutputFromSpeaker() (spx.Handle, error) {
	return n.audio(4, "audio_config_create_audio_output_from_default_speaker", "", spx.InvalidHandle)
}

func (n *Native) NewAudioOutputFromWAVFile(path string) (spx.Handle, error) {
	return n.audio(5, "audio_config_create_audio_output_from_wav_file_name", path, spx.InvalidHandle)
}

func (n *Native) NewDefaultAudioFormat() (spx.Handle, error) {
	var out C.uintptr_t
	if err := check("audio_stream_format_create_from_default_input", C.spx_format(&out, 0, 0, 0, 0)); err != nil {
		return spx.InvalidHandle, err
	}
	return spx.Handle(out), nil
}

func (n *Native) NewPCMAudioFormat(samplesPerSecond uint32, bitsPerSample, channels uint8) (spx.Handle, error) {
	var out C.uintptr_t
	hr := C.spx_format(&out, 1, C.uint32_t(samplesPerSecond), C.uint8_t(bitsPerSample), C.uint8_t(channels))
	if err := check("audio_stream_format_create_from_waveformat_pcm", hr); err != nil {
		return spx.InvalidHandle, err
	}
	return spx.Handle(out), nil
}

func (n *Native) NewPushAudioStream(format spx.Handle) (spx.Handle, error) {
	var out C.uintptr_t
	if err := check("audio_stream_create_push_audio_input_stream", C.spx_push_stream(&out, C.uintptr_t(format))); err != nil {
		return spx.InvalidHandle, err
	}
	return spx.Handle(out), nil
}

func (n *Native) PushAudioStreamWrite(stream spx.Handle, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	return check("push_audio_input_stream_write", C.spx_push_write(C.uintptr_t(stream), unsafe.Pointer(&p[0]), C.uint32_t(len(p))))
}

func (n *Native) PushAudioStreamClose(stream spx.Handle) error {
	return check("push_audio_input_stream_close", C.spx_push_close(C.uintptr_t(stream)))
}

func (n *Native) NewRecognizer(kind spx.RecognizerKind, cfg, audio spx.Handle) (spx.Handle, error) {
	var out C.uintptr_t
	op := fmt.Sprintf("recognizer_create_%s_recognizer_from_config", kind)
	if err := check(op, C.spx_recognizer(C.int(kind), &out, C.uintptr_t(cfg), C.uintptr_t(audio))); err != nil {
		return spx.InvalidHandle, err
	}
	return spx.Handle(out), nil
}

func (n *Native) RecognizerProperties(reco spx.Handle) (spx.Handle, error) {
	return n.propertyBag(spx.FamilyRecognizer, reco)
}

func (n *Native) RecognizeOnce(reco spx.Handle) (spx.Handle, error) {
	var out C.uintptr_t
	if err := check("recognizer_recognize_once", C.spx_recognize_once(C.uintptr_t(reco), &out)); err != nil {
		return spx.InvalidHandle, err
	}
	return spx.Handle(out), nil
}

func (n *Native) continuous(start int, op string, reco spx.Handle) (spx.Handle, error) {
	var out C.uintptr_t
	if err := check(op, C.spx_continuous(C.int(start), C.uintptr_t(reco), &out)); err != nil {
		return spx.InvalidHandle, err
	}
	return spx.Handle(out), nil
}

func (n *Native) StartContinuous(reco spx.Handle) (spx.Handle, error) {
	return n.continuous(1, "recognizer_start_continuous_recognition_async", reco)
}

func (n *Native) StopContinuous(reco spx.Handle) (spx.Handle, error) {
	return n.continuous(0, "recognizer_stop_continuous_recognition_async", reco)
}

func waitMillis(timeout time.Duration) C.uint32_t {
	ms := timeout.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	// UINT32_MAX means "forever" to the engine.
	if ms >= int64(^uint32(0)) {
		ms = int64(^uint32(0)) - 1
	}
	return C.uint32_t(ms)
}

func (n *Native) WaitStartContinuous(async spx.Handle, timeout time.Duration) error {
	return check("recognizer_start_continuous_recognition_async_wait_for", C.spx_continuous_wait(1, C.uintptr_t(async), waitMillis(timeout)))
}

func (n *Native) WaitStopContinuous(async spx.Handle, timeout time.Duration) error {
	return check("recognizer_stop_continuous_recognition_async_wait_for", C.spx_continuous_wait(0, C.uintptr_t(async), waitMillis(timeout)))
}

func boolInt(b bool) C.int {
	if b {
		return 1
	}
	return 0
}

func (n *Native) SetRecognizerEnabled(reco spx.Handle, enabled bool) error {
	return check("recognizer_enable", C.spx_enable(0, C.uintptr_t(reco), boolInt(enabled)))
}

const (
	ownerRecognizer = iota + 1
	ownerConnection
	ownerSynthesizer
)

func (n *Native) SetRecognizerCallback(reco spx.Handle, c spx.Category, cb spx.Callback, ctx spx.Context) error {
	return n.setCallback(ownerRecognizer, reco, c, cb, ctx)
}

func (n *Native) SetConnectionCallback(conn spx.Handle, c spx.Category, cb spx.Callback, ctx spx.Context) error {
	return n.setCallback(ownerConnection, conn, c, cb, ctx)
}

func (n *Native) SetSynthesizerCallback(synth spx.Handle, c spx.Category, cb spx.Callback, ctx spx.Context) error {
	return n.setCallback(ownerSynthesizer, synth, c, cb, ctx)
}

func setNative(owner int, h spx.Handle, c spx.Category, box uintptr) C.AZACHR {
	switch owner {
	case ownerConnection:
		return C.spx_set_connection_callback(C.int(c), C.uintptr_t(h), C.uintptr_t(box))
	case ownerSynthesizer:
		return C.spx_set_synth_callback(C.int(c), C.uintptr_t(h), C.uintptr_t(box))
	default:
		return C.spx_set_reco_callback(C.int(c), C.uintptr_t(h), C.uintptr_t(box))
	}
}

// nativeSetMu serializes registrations; dispatch only takes the table's
// own lock.
var nativeSetMu sync.Mutex

var nativeBoxes = newCallbackBoxes()

func (n *Native) setCallback(owner int, h spx.Handle, c spx.Category, cb spx.Callback, ctx spx.Context) error {
	op := fmt.Sprintf("%s_set_callback", c)
	nativeSetMu.Lock()
	defer nativeSetMu.Unlock()

	if cb == nil {
		err := check(op, setNative(owner, h, c, 0))
		if nativeBoxes.detach(h, c) && err != nil {
			n.log.Warn("callback unregister failed; late callbacks will be dropped", "category", c.String(), "error", err)
		}
		return err
	}

	key, replaced := nativeBoxes.attach(h, c, cb, ctx)
	if replaced {
		n.log.Warn("replacing callback context with live registrations", "owner", uintptr(h))
	}
	if err := check(op, setNative(owner, h, c, key)); err != nil {
		nativeBoxes.detach(h, c)
		return err
	}
	return nil
}

// nativeDispatch routes one engine callback. Unknown contexts and
// unregistered categories release the event handle.
func nativeDispatch(c spx.Category, source, event spx.Handle, box uintptr) {
	defer func() {
		if r := recover(); r != nil {
			nativeLog.Error("native callback panicked", "category", c.String(), "panic", r)
		}
	}()
	cb, token, ok := nativeBoxes.lookup(box, c)
	if !ok || cb == nil {
		nativeLog.Debug("callback without registration dropped", "category", c.String())
		C.spx_release(C.int(c.EventFamily()), C.uintptr_t(event))
		return
	}
	cb(source, event, token)
}

func (n *Native) ConnectionFromRecognizer(reco spx.Handle) (spx.Handle, error) {
	var out C.uintptr_t
	if err := check("connection_from_recognizer", C.spx_connection(C.uintptr_t(reco), &out)); err != nil {
		return spx.InvalidHandle, err
	}
	return spx.Handle(out), nil
}

func (n *Native) NewPhraseTrigger(phrase string) (spx.Handle, error) {
	cphrase, free := cstr(phrase)
	defer free()
	var out C.uintptr_t
	if err := check("intent_trigger_create_from_phrase", C.spx_trigger(1, &out, cphrase, 0)); err != nil {
		return spx.InvalidHandle, err
	}
	return spx.Handle(out), nil
}

func (n *Native) NewModelTrigger(model spx.Handle, intentName string) (spx.Handle, error) {
	cname, free := cstr(intentName)
	defer free()
	var out C.uintptr_t
	if err := check("intent_trigger_create_from_language_understanding_model", C.spx_trigger(2, &out, cname, C.uintptr_t(model))); err != nil {
		return spx.InvalidHandle, err
	}
	return spx.Handle(out), nil
}

func (n *Native) NewLanguageUnderstandingModel(appID string) (spx.Handle, error) {
	capp, free := cstr(appID)
	defer free()
	var out C.uintptr_t
	if err := check("language_understanding_model_create_from_app_id", C.spx_model(&out, capp)); err != nil {
		return spx.InvalidHandle, err
	}
	return spx.Handle(out), nil
}

func (n *Native) AddIntent(reco spx.Handle, intentID string, trigger spx.Handle) error {
	cid, free := cstr(intentID)
	defer free()
	return check("intent_recognizer_add_intent", C.spx_add_intent(C.uintptr_t(reco), cid, C.uintptr_t(trigger)))
}

func (n *Native) AddTargetLanguage(reco spx.Handle, language string) error {
	clang, free := cstr(language)
	defer free()
	return check("translator_add_target_language", C.spx_add_target(C.uintptr_t(reco), clang))
}

func (n *Native) EventSessionID(event spx.Handle) ([]byte, error) {
	return readBuffer(idBufferSize, func(buf *C.char, size C.uint32_t) C.AZACHR {
		return C.spx_event_session_id(C.uintptr_t(event), buf, size)
	}, "recognizer_session_event_get_session_id")
}

func (n *Native) EventOffset(event spx.Handle) (uint64, error) {
	var out C.uint64_t
	if err := check("recognizer_recognition_event_get_offset", C.spx_event_offset(C.uintptr_t(event), &out)); err != nil {
		return 0, err
	}
	return uint64(out), nil
}

func synthFlag(f spx.Family) C.int {
	if f == spx.FamilySynthesizerEvent || f == spx.FamilySynthesizerResult {
		return 1
	}
	return 0
}

func (n *Native) EventResult(f spx.Family, event spx.Handle) (spx.Handle, error) {
	var out C.uintptr_t
	if err := check("event_get_result", C.spx_event_result(synthFlag(f), C.uintptr_t(event), &out)); err != nil {
		return spx.InvalidHandle, err
	}
	return spx.Handle(out), nil
}

func (n *Native) ResultReason(f spx.Family, result spx.Handle) (spx.ResultReason, error) {
	var out C.int
	if err := check("result_get_reason", C.spx_result_reason(synthFlag(f), C.uintptr_t(result), &out)); err != nil {
		return 0, err
	}
	return spx.ResultReason(out), nil
}

func (n *Native) ResultID(f spx.Family, result spx.Handle) ([]byte, error) {
	return readBuffer(idBufferSize, func(buf *C.char, size C.uint32_t) C.AZACHR {
		return C.spx_result_id(synthFlag(f), C.uintptr_t(result), buf, size)
	}, "result_get_result_id")
}

func (n *Native) ResultProperties(f spx.Family, result spx.Handle) (spx.Handle, error) {
	return n.propertyBag(f, result)
}

func (n *Native) ResultCancellation(f spx.Family, result spx.Handle) (spx.CancellationReason, spx.CancellationErrorCode, error) {
	var reason, code C.int
	if err := check("result_get_reason_canceled", C.spx_result_cancellation(synthFlag(f), C.uintptr_t(result), &reason, &code)); err != nil {
		return 0, 0, err
	}
	return spx.CancellationReason(reason), spx.CancellationErrorCode(code), nil
}

func (n *Native) ResultText(result spx.Handle) ([]byte, error) {
	return readBuffer(textBufferSize, func(buf *C.char, size C.uint32_t) C.AZACHR {
		return C.spx_result_text(C.uintptr_t(result), buf, size)
	}, "result_get_text")
}

func (n *Native) ResultOffset(result spx.Handle) (uint64, error) {
	var out C.uint64_t
	if err := check("result_get_offset", C.spx_result_offset(C.uintptr_t(result), &out)); err != nil {
		return 0, err
	}
	return uint64(out), nil
}

func (n *Native) ResultDuration(result spx.Handle) (uint64, error) {
	var out C.uint64_t
	if err := check("result_get_duration", C.spx_result_duration(C.uintptr_t(result), &out)); err != nil {
		return 0, err
	}
	return uint64(out), nil
}

func (n *Native) ResultNoMatch(result spx.Handle) (spx.NoMatchReason, error) {
	var out C.int
	if err := check("result_get_no_match_reason", C.spx_result_no_match(C.uintptr_t(result), &out)); err != nil {
		return 0, err
	}
	return spx.NoMatchReason(out), nil
}

func (n *Native) ResultIntentID(result spx.Handle) ([]byte, error) {
	return readBuffer(idBufferSize, func(buf *C.char, size C.uint32_t) C.AZACHR {
		return C.spx_result_intent_id(C.uintptr_t(result), buf, size)
	}, "intent_result_get_intent_id")
}

func (n *Native) ResultTranslations(result spx.Handle) ([]spx.RawTranslation, error) {
	var count C.size_t
	if err := check("translation_text_result_get_translation_count", C.spx_translation_count(C.uintptr_t(result), &count)); err != nil {
		return nil, err
	}
	out := make([]spx.RawTranslation, 0, int(count))
	for i := C.size_t(0); i < count; i++ {
		var langSize, textSize C.size_t
		const op = "translation_text_result_get_translation"
		if err := check(op, C.spx_translation(C.uintptr_t(result), i, nil, nil, &langSize, &textSize)); err != nil {
			return nil, err
		}
		lang := make([]byte, int(langSize)+1)
		text := make([]byte, int(textSize)+1)
		hr := C.spx_translation(C.uintptr_t(result), i,
			(*C.char)(unsafe.Pointer(&lang[0])), (*C.char)(unsafe.Pointer(&text[0])),
			&langSize, &textSize)
		if err := check(op, hr); err != nil {
			return nil, err
		}
		out = append(out, spx.RawTranslation{Language: lang, Text: text})
	}
	return out, nil
}

func (n *Native) ResultAudio(result spx.Handle) (uint32, time.Duration, error) {
	var length C.uint32_t
	var ms C.uint64_t
	if err := check("synth_result_get_audio_length_duration", C.spx_result_audio(C.uintptr_t(result), &length, &ms)); err != nil {
		return 0, 0, err
	}
	return uint32(length), time.Duration(ms) * time.Millisecond, nil
}

func (n *Native) NewSynthesizer(cfg, audio spx.Handle) (spx.Handle, error) {
	var out C.uintptr_t
	if err := check("synthesizer_create_speech_synthesizer_from_config", C.spx_synthesizer(&out, C.uintptr_t(cfg), C.uintptr_t(audio))); err != nil {
		return spx.InvalidHandle, err
	}
	return spx.Handle(out), nil
}

func (n *Native) SynthesizerProperties(synth spx.Handle) (spx.Handle, error) {
	return n.propertyBag(spx.FamilySynthesizer, synth)
}

func (n *Native) speak(mode int, op string, synth spx.Handle, text string) (spx.Handle, error) {
	ctext, free := cstr(text)
	defer free()
	var out C.uintptr_t
	if err := check(op, C.spx_speak(C.int(mode), C.uintptr_t(synth), ctext, C.uint32_t(len(text)), &out)); err != nil {
		return spx.InvalidHandle, err
	}
	return spx.Handle(out), nil
}

func (n *Native) SpeakText(synth spx.Handle, text string) (spx.Handle, error) {
	return n.speak(1, "synthesizer_speak_text", synth, text)
}

func (n *Native) SpeakSSML(synth spx.Handle, ssml string) (spx.Handle, error) {
	return n.speak(2, "synthesizer_speak_ssml", synth, ssml)
}

func (n *Native) StartSpeakingText(synth spx.Handle, text string) (spx.Handle, error) {
	return n.speak(3, "synthesizer_start_speaking_text", synth, text)
}

func (n *Native) StartSpeakingSSML(synth spx.Handle, ssml string) (spx.Handle, error) {
	return n.speak(4, "synthesizer_start_speaking_ssml", synth, ssml)
}

func (n *Native) StopSpeaking(synth spx.Handle) error {
	return check("synthesizer_stop_speaking", C.spx_stop_speaking(C.uintptr_t(synth)))
}

func (n *Native) SetSynthesizerEnabled(synth spx.Handle, enabled bool) error {
	return check("synthesizer_enable", C.spx_enable(1, C.uintptr_t(synth), boolInt(enabled)))
}

var _ spx.Engine = (*Native)(nil)
