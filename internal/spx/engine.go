package spx

import "time"

// Engine is the full set of foreign operations the adapter drives. It is
// split by concern so packages can accept only what they use.
type Engine interface {
	HandleAPI
	PropertyAPI
	ConfigAPI
	AudioAPI
	RecognizerAPI
	EventAPI
	ResultAPI
	SynthesizerAPI
	Close() error
}

// HandleAPI releases handles and checks their validity per family.
type HandleAPI interface {
	Release(f Family, h Handle) error
	IsValid(f Family, h Handle) bool
}

// PropertyAPI reads and writes one property bag entry. When id is
// NoPropertyID the entry is addressed by name. Values are returned as raw
// engine bytes; callers decode them.
type PropertyAPI interface {
	GetProperty(bag Handle, id PropertyID, name string) ([]byte, error)
	SetProperty(bag Handle, id PropertyID, name, value string) error
}

// ConfigAPI creates speech configurations.
type ConfigAPI interface {
	NewConfigFromSubscription(key, region string) (Handle, error)
	NewConfigFromAuthorizationToken(token, region string) (Handle, error)
	NewConfigFromEndpoint(endpoint, key string) (Handle, error)
	ConfigProperties(cfg Handle) (Handle, error)
}

// AudioAPI creates audio inputs, outputs, formats and push streams.
type AudioAPI interface {
	NewAudioInputFromMicrophone() (Handle, error)
	NewAudioInputFromWAVFile(path string) (Handle, error)
	NewAudioInputFromStream(stream Handle) (Handle, error)
	NewAudioOutputFromSpeaker() (Handle, error)
	NewAudioOutputFromWAVFile(path string) (Handle, error)
	NewDefaultAudioFormat() (Handle, error)
	NewPCMAudioFormat(samplesPerSecond uint32, bitsPerSample, channels uint8) (Handle, error)
	NewPushAudioStream(format Handle) (Handle, error)
	PushAudioStreamWrite(stream Handle, p []byte) error
	PushAudioStreamClose(stream Handle) error
}

// RecognizerAPI drives recognizers and their callback registrations.
type RecognizerAPI interface {
	NewRecognizer(kind RecognizerKind, cfg, audio Handle) (Handle, error)
	RecognizerProperties(reco Handle) (Handle, error)
	// RecognizeOnce blocks until a single result is available.
	RecognizeOnce(reco Handle) (Handle, error)
	StartContinuous(reco Handle) (Handle, error)
	WaitStartContinuous(async Handle, timeout time.Duration) error
	StopContinuous(reco Handle) (Handle, error)
	WaitStopContinuous(async Handle, timeout time.Duration) error
	SetRecognizerEnabled(reco Handle, enabled bool) error
	// SetRecognizerCallback registers cb for category c. A nil cb
	// unregisters the category.
	SetRecognizerCallback(reco Handle, c Category, cb Callback, ctx Context) error
	ConnectionFromRecognizer(reco Handle) (Handle, error)
	SetConnectionCallback(conn Handle, c Category, cb Callback, ctx Context) error
	NewPhraseTrigger(phrase string) (Handle, error)
	NewModelTrigger(model Handle, intentName string) (Handle, error)
	NewLanguageUnderstandingModel(appID string) (Handle, error)
	AddIntent(reco Handle, intentID string, trigger Handle) error
	AddTargetLanguage(reco Handle, language string) error
}

// EventAPI inspects event handles delivered through callbacks.
type EventAPI interface {
	EventSessionID(event Handle) ([]byte, error)
	EventOffset(event Handle) (uint64, error)
	EventResult(f Family, event Handle) (Handle, error)
}

// RawTranslation is one language/text pair of a translation result.
type RawTranslation struct {
	Language []byte
	Text     []byte
}

// ResultAPI inspects result handles. f is FamilyRecognizerResult or
// FamilySynthesizerResult.
type ResultAPI interface {
	ResultReason(f Family, result Handle) (ResultReason, error)
	ResultID(f Family, result Handle) ([]byte, error)
	ResultProperties(f Family, result Handle) (Handle, error)
	ResultCancellation(f Family, result Handle) (CancellationReason, CancellationErrorCode, error)
	ResultText(result Handle) ([]byte, error)
	ResultOffset(result Handle) (uint64, error)
	ResultDuration(result Handle) (uint64, error)
	ResultNoMatch(result Handle) (NoMatchReason, error)
	ResultIntentID(result Handle) ([]byte, error)
	ResultTranslations(result Handle) ([]RawTranslation, error)
	ResultAudio(result Handle) (length uint32, duration time.Duration, err error)
}

// SynthesizerAPI drives speech synthesizers.
type SynthesizerAPI interface {
	NewSynthesizer(cfg, audio Handle) (Handle, error)
	SynthesizerProperties(synth Handle) (Handle, error)
	SpeakText(synth Handle, text string) (Handle, error)
	SpeakSSML(synth Handle, ssml string) (Handle, error)
	StartSpeakingText(synth Handle, text string) (Handle, error)
	StartSpeakingSSML(synth Handle, ssml string) (Handle, error)
	StopSpeaking(synth Handle) error
	SetSynthesizerEnabled(synth Handle, enabled bool) error
	SetSynthesizerCallback(synth Handle, c Category, cb Callback, ctx Context) error
}
