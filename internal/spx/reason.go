package spx

import "fmt"

// ResultReason is the engine's classification of a result handle.
type ResultReason int

const (
	ReasonNoMatch                   ResultReason = 0
	ReasonCanceled                  ResultReason = 1
	ReasonRecognizingSpeech         ResultReason = 2
	ReasonRecognizedSpeech          ResultReason = 3
	ReasonRecognizingIntent         ResultReason = 4
	ReasonRecognizedIntent          ResultReason = 5
	ReasonTranslatingSpeech         ResultReason = 6
	ReasonTranslatedSpeech          ResultReason = 7
	ReasonSynthesizingAudio         ResultReason = 8
	ReasonSynthesizingAudioComplete ResultReason = 9
	ReasonSynthesizingAudioStarted  ResultReason = 12
)

var resultReasonNames = map[ResultReason]string{
	ReasonNoMatch:                   "NoMatch",
	ReasonCanceled:                  "Canceled",
	ReasonRecognizingSpeech:         "RecognizingSpeech",
	ReasonRecognizedSpeech:          "RecognizedSpeech",
	ReasonRecognizingIntent:         "RecognizingIntent",
	ReasonRecognizedIntent:          "RecognizedIntent",
	ReasonTranslatingSpeech:         "TranslatingSpeech",
	ReasonTranslatedSpeech:          "TranslatedSpeech",
	ReasonSynthesizingAudio:         "SynthesizingAudio",
	ReasonSynthesizingAudioComplete: "SynthesizingAudioComplete",
	ReasonSynthesizingAudioStarted:  "SynthesizingAudioStarted",
}

func (r ResultReason) String() string {
	if name, ok := resultReasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("ResultReason(%d)", int(r))
}

// CancellationReason explains why a result was canceled.
type CancellationReason int

const (
	CancellationError           CancellationReason = 1
	CancellationEndOfStream     CancellationReason = 2
	CancellationCancelledByUser CancellationReason = 3
)

func (r CancellationReason) String() string {
	switch r {
	case CancellationError:
		return "Error"
	case CancellationEndOfStream:
		return "EndOfStream"
	case CancellationCancelledByUser:
		return "CancelledByUser"
	default:
		return fmt.Sprintf("CancellationReason(%d)", int(r))
	}
}

// CancellationErrorCode is the engine error code attached to a canceled
// result. NoError marks a benign cancellation such as end of stream.
type CancellationErrorCode int

const (
	NoError               CancellationErrorCode = 0
	AuthenticationFailure CancellationErrorCode = 1
	BadRequest            CancellationErrorCode = 2
	TooManyRequests       CancellationErrorCode = 3
	Forbidden             CancellationErrorCode = 4
	ConnectionFailure     CancellationErrorCode = 5
	ServiceTimeout        CancellationErrorCode = 6
	ServiceError          CancellationErrorCode = 7
	ServiceUnavailable    CancellationErrorCode = 8
	RuntimeError          CancellationErrorCode = 9
)

var cancellationCodeNames = [...]string{
	"NoError",
	"AuthenticationFailure",
	"BadRequest",
	"TooManyRequests",
	"Forbidden",
	"ConnectionFailure",
	"ServiceTimeout",
	"ServiceError",
	"ServiceUnavailable",
	"RuntimeError",
}

func (c CancellationErrorCode) String() string {
	if c >= 0 && int(c) < len(cancellationCodeNames) {
		return cancellationCodeNames[c]
	}
	return fmt.Sprintf("CancellationErrorCode(%d)", int(c))
}

// NoMatchReason explains why nothing was recognized.
type NoMatchReason int

const (
	NotRecognized         NoMatchReason = 1
	InitialSilenceTimeout NoMatchReason = 2
	InitialBabbleTimeout  NoMatchReason = 3
	KeywordNotRecognized  NoMatchReason = 4
)

func (r NoMatchReason) String() string {
	switch r {
	case NotRecognized:
		return "NotRecognized"
	case InitialSilenceTimeout:
		return "InitialSilenceTimeout"
	case InitialBabbleTimeout:
		return "InitialBabbleTimeout"
	case KeywordNotRecognized:
		return "KeywordNotRecognized"
	default:
		return fmt.Sprintf("NoMatchReason(%d)", int(r))
	}
}
