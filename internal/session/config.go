package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/audio"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/config"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/events"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/handle"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/properties"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

const (
	// DefaultTimeout bounds start and stop waits.
	DefaultTimeout = 30 * time.Second
	// MaxTimeout caps configured waits; the engine treats its own maximum
	// as "forever", which a session must never do.
	MaxTimeout = 10 * time.Minute
)

type intentSpec struct {
	id     string
	phrase string
	appID  string
	intent string
}

// Config builds recognizers and synthesizers from one speech
// configuration. Property setters record the first failure; it is
// reported by the next build call and by Err.
type Config struct {
	client *Client
	cfg    *handle.Owned
	props  *properties.Bag
	err    error

	flags      events.Flags
	timeout    time.Duration
	audioFile  string
	push       *audio.Format
	outputFile string
	intents    []intentSpec
	targets    []string
}

// FromSubscription creates a configuration for a subscription key and
// service region.
func (c *Client) FromSubscription(key, region string) (*Config, error) {
	if err := spx.CheckInput(key, region); err != nil {
		return nil, err
	}
	h, err := c.api.NewConfigFromSubscription(key, region)
	if err != nil {
		return nil, fmt.Errorf("session: config from subscription: %w", err)
	}
	return c.newConfig(h)
}

// FromAuthorizationToken creates a configuration for a bearer token.
func (c *Client) FromAuthorizationToken(token, region string) (*Config, error) {
	if err := spx.CheckInput(token, region); err != nil {
		return nil, err
	}
	h, err := c.api.NewConfigFromAuthorizationToken(token, region)
	if err != nil {
		return nil, fmt.Errorf("session: config from token: %w", err)
	}
	return c.newConfig(h)
}

// FromEndpoint creates a configuration for a custom service endpoint.
func (c *Client) FromEndpoint(endpoint, key string) (*Config, error) {
	if err := spx.CheckInput(endpoint, key); err != nil {
		return nil, err
	}
	h, err := c.api.NewConfigFromEndpoint(endpoint, key)
	if err != nil {
		return nil, fmt.Errorf("session: config from endpoint: %w", err)
	}
	return c.newConfig(h)
}

// FromSettings creates a configuration from adapter settings: an endpoint
// wins over a token, a token over a subscription key. Without credentials
// (simulated engines) placeholder values are used. Language, flags and
// timeout are applied from settings.
func (c *Client) FromSettings(settings config.Config) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	switch {
	case settings.Endpoint != "":
		cfg, err = c.FromEndpoint(settings.Endpoint, settings.SubscriptionKey)
	case settings.AuthToken != "":
		cfg, err = c.FromAuthorizationToken(settings.AuthToken, settings.Region)
	case settings.HasCredentials():
		cfg, err = c.FromSubscription(settings.SubscriptionKey, settings.Region)
	default:
		cfg, err = c.FromSubscription("simulated", "local")
	}
	if err != nil {
		return nil, err
	}
	if settings.Language != "" {
		cfg.Language(settings.Language)
	}
	if settings.Flags != 0 {
		cfg.Flags(settings.Flags)
	}
	if settings.TimeoutMS > 0 {
		cfg.Timeout(settings.Timeout())
	}
	return cfg, nil
}

func (c *Client) newConfig(h spx.Handle) (*Config, error) {
	owned := handle.New(c.api, spx.FamilySpeechConfig, h, c.log)
	bagHandle, err := c.api.ConfigProperties(h)
	if err != nil {
		owned.Release()
		return nil, fmt.Errorf("session: config properties: %w", err)
	}
	return &Config{
		client:  c,
		cfg:     owned,
		props:   properties.New(c.api, bagHandle, c.log),
		flags:   events.Recognized,
		timeout: DefaultTimeout,
	}, nil
}

// Err returns the first property failure, if any.
func (c *Config) Err() error { return c.err }

// Properties exposes the configuration's property bag.
func (c *Config) Properties() *properties.Bag { return c.props }

func (c *Config) put(id spx.PropertyID, value string) *Config {
	if c.err == nil {
		c.err = c.props.PutByID(id, value)
	}
	return c
}

// Property sets an arbitrary named property.
func (c *Config) Property(name, value string) *Config {
	if c.err == nil {
		c.err = c.props.PutByName(name, value)
	}
	return c
}

// Language sets the recognition language, e.g. "en-US".
func (c *Config) Language(lang string) *Config {
	return c.put(spx.SpeechServiceConnectionRecoLanguage, lang)
}

// EndpointID selects a custom model deployment.
func (c *Config) EndpointID(id string) *Config {
	return c.put(spx.SpeechServiceConnectionEndpointID, id)
}

// DetailedResult asks the service for detailed JSON results.
func (c *Config) DetailedResult(on bool) *Config {
	return c.put(spx.SpeechServiceResponseRequestDetailedResultTrueFalse, strconv.FormatBool(on))
}

// ProfanityFilter toggles the service's profanity filter.
func (c *Config) ProfanityFilter(on bool) *Config {
	return c.put(spx.SpeechServiceResponseRequestProfanityFilterTrueFalse, strconv.FormatBool(on))
}

// TranslationVoice sets the voice used for translated speech.
func (c *Config) TranslationVoice(voice string) *Config {
	return c.put(spx.SpeechServiceConnectionTranslationVoice, voice)
}

// TranslationFeatures sets the translation feature list.
func (c *Config) TranslationFeatures(features string) *Config {
	return c.put(spx.SpeechServiceConnectionTranslationFeatures, features)
}

// SynthesisLanguage sets the synthesis language.
func (c *Config) SynthesisLanguage(lang string) *Config {
	return c.put(spx.SpeechServiceConnectionSynthLanguage, lang)
}

// SynthesisVoice sets the synthesis voice name.
func (c *Config) SynthesisVoice(voice string) *Config {
	return c.put(spx.SpeechServiceConnectionSynthVoice, voice)
}

// SynthesisOutputFormat sets the synthesis output format name.
func (c *Config) SynthesisOutputFormat(format string) *Config {
	return c.put(spx.SpeechServiceConnectionSynthOutputFormat, format)
}

// Proxy routes service traffic through an HTTP proxy.
func (c *Config) Proxy(host string, port int, user, password string) *Config {
	if port <= 0 || port > 65535 {
		if c.err == nil {
			c.err = fmt.Errorf("session: proxy port %d out of range", port)
		}
		return c
	}
	c.put(spx.SpeechServiceConnectionProxyHostName, host)
	c.put(spx.SpeechServiceConnectionProxyPort, strconv.Itoa(port))
	if user != "" {
		c.put(spx.SpeechServiceConnectionProxyUserName, user)
		c.put(spx.SpeechServiceConnectionProxyPassword, password)
	}
	return c
}

// Flags sets the categories sessions subscribe to and filter on.
func (c *Config) Flags(f events.Flags) *Config {
	c.flags = f
	return c
}

// Timeout bounds start and stop waits. Non-positive values select
// DefaultTimeout; values above MaxTimeout are capped.
func (c *Config) Timeout(d time.Duration) *Config {
	switch {
	case d <= 0:
		d = DefaultTimeout
	case d > MaxTimeout:
		d = MaxTimeout
	}
	c.timeout = d
	return c
}

// AudioFile reads recognizer input from a WAV file.
func (c *Config) AudioFile(path string) *Config {
	c.audioFile = path
	c.push = nil
	return c
}

// PushAudio feeds recognizer input through Recognizer.WriteStream.
func (c *Config) PushAudio(format audio.Format) *Config {
	c.push = &format
	c.audioFile = ""
	return c
}

// OutputFile writes synthesized audio to a WAV file instead of the
// speaker.
func (c *Config) OutputFile(path string) *Config {
	c.outputFile = path
	return c
}

// Intent adds a phrase-triggered intent for intent recognizers.
func (c *Config) Intent(id, phrase string) *Config {
	c.intents = append(c.intents, intentSpec{id: id, phrase: phrase})
	return c
}

// ModelIntent adds an intent backed by a language understanding model.
func (c *Config) ModelIntent(appID, intentName, id string) *Config {
	c.intents = append(c.intents, intentSpec{id: id, appID: appID, intent: intentName})
	return c
}

// TargetLanguages sets the languages a translator produces.
func (c *Config) TargetLanguages(langs ...string) *Config {
	c.targets = append([]string(nil), langs...)
	return c
}

// Recognizer builds a speech recognizer.
func (c *Config) Recognizer() (*Recognizer, error) {
	return c.recognizer(spx.SpeechRecognizer)
}

// IntentRecognizer builds an intent recognizer with the configured
// intents.
func (c *Config) IntentRecognizer() (*Recognizer, error) {
	return c.recognizer(spx.IntentRecognizer)
}

// Translator builds a translation recognizer with the configured target
// languages.
func (c *Config) Translator() (*Recognizer, error) {
	if len(c.targets) == 0 {
		return nil, errors.New("session: translator needs at least one target language")
	}
	c.put(spx.SpeechServiceConnectionTranslationToLanguages, strings.Join(c.targets, ","))
	return c.recognizer(spx.TranslationRecognizer)
}

// Synthesizer builds a speech synthesizer.
func (c *Config) Synthesizer() (*Synthesizer, error) {
	if c.err != nil {
		return nil, c.err
	}
	api := c.client.api
	var (
		out *audio.Input
		err error
	)
	if c.outputFile != "" {
		out, err = audio.WAVOutput(api, c.outputFile, c.client.log)
	} else {
		out, err = audio.Speaker(api, c.client.log)
	}
	if err != nil {
		return nil, err
	}
	h, err := api.NewSynthesizer(c.cfg.Handle(), out.Handle())
	if err != nil {
		out.Release()
		return nil, fmt.Errorf("session: create synthesizer: %w", err)
	}
	return newSynthesizer(c.client, h, out, c.flags), nil
}

func (c *Config) audioInput() (*audio.Input, error) {
	api, log := c.client.api, c.client.log
	switch {
	case c.push != nil:
		return audio.Push(api, *c.push, log)
	case c.audioFile != "":
		return audio.WAVFile(api, c.audioFile, log)
	default:
		return audio.Microphone(api, log)
	}
}

func (c *Config) recognizer(kind spx.RecognizerKind) (*Recognizer, error) {
	if c.err != nil {
		return nil, c.err
	}
	api := c.client.api
	in, err := c.audioInput()
	if err != nil {
		return nil, err
	}
	h, err := api.NewRecognizer(kind, c.cfg.Handle(), in.Handle())
	if err != nil {
		in.Release()
		return nil, fmt.Errorf("session: create %s recognizer: %w", kind, err)
	}
	r := newRecognizer(c.client, kind, h, in, c.flags, c.timeout)

	switch kind {
	case spx.IntentRecognizer:
		for _, spec := range c.intents {
			if spec.appID != "" {
				err = r.AddModelIntent(spec.appID, spec.intent, spec.id)
			} else {
				err = r.AddIntent(spec.id, spec.phrase)
			}
			if err != nil {
				r.Close()
				return nil, err
			}
		}
	case spx.TranslationRecognizer:
		for _, lang := range c.targets {
			if err := spx.CheckInput(lang); err != nil {
				r.Close()
				return nil, err
			}
			if err := api.AddTargetLanguage(h, lang); err != nil {
				r.Close()
				return nil, fmt.Errorf("session: add target language %q: %w", lang, err)
			}
		}
	}
	return r, nil
}

// Close releases the configuration. Sessions built from it stay usable.
func (c *Config) Close() error {
	c.props.Close()
	return c.cfg.Close()
}
