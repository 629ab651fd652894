package spx

// PropertyID names a well-known engine property. NoPropertyID selects a
// property by its string name instead.
type PropertyID int

const NoPropertyID PropertyID = -1

const (
	SpeechServiceConnectionKey        PropertyID = 1000
	SpeechServiceConnectionEndpoint   PropertyID = 1001
	SpeechServiceConnectionRegion     PropertyID = 1002
	SpeechServiceAuthorizationToken   PropertyID = 1003
	SpeechServiceAuthorizationType    PropertyID = 1004
	SpeechServiceConnectionEndpointID PropertyID = 1005
	SpeechServiceConnectionHost       PropertyID = 1006

	SpeechServiceConnectionProxyHostName PropertyID = 1100
	SpeechServiceConnectionProxyPort     PropertyID = 1101
	SpeechServiceConnectionProxyUserName PropertyID = 1102
	SpeechServiceConnectionProxyPassword PropertyID = 1103

	SpeechServiceConnectionTranslationToLanguages PropertyID = 2000
	SpeechServiceConnectionTranslationVoice       PropertyID = 2001
	SpeechServiceConnectionTranslationFeatures    PropertyID = 2002
	SpeechServiceConnectionIntentRegion           PropertyID = 2003

	SpeechServiceConnectionRecoMode     PropertyID = 3000
	SpeechServiceConnectionRecoLanguage PropertyID = 3001
	SpeechSessionID                     PropertyID = 3002

	SpeechServiceConnectionSynthLanguage     PropertyID = 3100
	SpeechServiceConnectionSynthVoice        PropertyID = 3101
	SpeechServiceConnectionSynthOutputFormat PropertyID = 3102

	SpeechServiceResponseRequestDetailedResultTrueFalse PropertyID = 4000
	SpeechServiceResponseRequestProfanityFilterTrueFalse PropertyID = 4001

	SpeechServiceResponseJSONResult       PropertyID = 5000
	SpeechServiceResponseJSONErrorDetails PropertyID = 5001
	LanguageUnderstandingJSONResult       PropertyID = 5002
)
