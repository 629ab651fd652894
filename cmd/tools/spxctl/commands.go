package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/events"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/session"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/stream"
)

func (a *app) recognizeCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "recognize",
		Short: "Recognize a single utterance",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cleanup, err := a.connect()
			if err != nil {
				return err
			}
			defer cleanup()
			if file != "" {
				cfg.AudioFile(file)
			}
			reco, err := cfg.Recognizer()
			if err != nil {
				return err
			}
			defer reco.Close()

			res, err := reco.RecognizeOnce(cmd.Context())
			if printErr := a.printResult(res); printErr != nil {
				return printErr
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "WAV file to recognize (default microphone)")
	return cmd
}

func (a *app) listenCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Stream continuous recognition events",
		Long: `Stream continuous recognition events until the session stops or
the command is interrupted. --flags selects the categories printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cleanup, err := a.connect()
			if err != nil {
				return err
			}
			defer cleanup()
			if file != "" {
				cfg.AudioFile(file)
			}
			reco, err := cfg.Recognizer()
			if err != nil {
				return err
			}
			defer reco.Close()
			return a.stream(cmd.Context(), reco)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "WAV file to recognize (default microphone)")
	return cmd
}

func (a *app) intentCmd() *cobra.Command {
	var (
		file    string
		intents []string
	)
	cmd := &cobra.Command{
		Use:   "intent",
		Short: "Recognize intents from phrase triggers",
		Long: `Recognize intents. Each --intent takes id=phrase.

Examples:
  spxctl intent -f lights.wav --intent on="turn on the lights" --intent off="turn off the lights"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(intents) == 0 {
				return errors.New("at least one --intent is required")
			}
			cfg, cleanup, err := a.connect()
			if err != nil {
				return err
			}
			defer cleanup()
			if file != "" {
				cfg.AudioFile(file)
			}
			for _, spec := range intents {
				id, phrase, ok := strings.Cut(spec, "=")
				if !ok || id == "" || phrase == "" {
					return fmt.Errorf("invalid intent %q, want id=phrase", spec)
				}
				cfg.Intent(id, phrase)
			}
			reco, err := cfg.IntentRecognizer()
			if err != nil {
				return err
			}
			defer reco.Close()
			res, err := reco.RecognizeOnce(cmd.Context())
			if printErr := a.printResult(res); printErr != nil {
				return printErr
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "WAV file to recognize (default microphone)")
	cmd.Flags().StringArrayVar(&intents, "intent", nil, "intent as id=phrase (repeatable)")
	return cmd
}

func (a *app) translateCmd() *cobra.Command {
	var (
		file       string
		targets    []string
		continuous bool
	)
	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Recognize and translate speech",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(targets) == 0 {
				return errors.New("--to is required")
			}
			cfg, cleanup, err := a.connect()
			if err != nil {
				return err
			}
			defer cleanup()
			if file != "" {
				cfg.AudioFile(file)
			}
			cfg.TargetLanguages(targets...)
			reco, err := cfg.Translator()
			if err != nil {
				return err
			}
			defer reco.Close()
			if continuous {
				return a.stream(cmd.Context(), reco)
			}
			res, err := reco.RecognizeOnce(cmd.Context())
			if printErr := a.printResult(res); printErr != nil {
				return printErr
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "WAV file to translate (default microphone)")
	cmd.Flags().StringSliceVar(&targets, "to", nil, "target languages, comma separated")
	cmd.Flags().BoolVar(&continuous, "continuous", false, "stream until the session stops")
	return cmd
}

func (a *app) speakCmd() *cobra.Command {
	var (
		output string
		voice  string
		ssml   bool
		showEvents bool
	)
	cmd := &cobra.Command{
		Use:   "speak TEXT",
		Short: "Synthesize text or SSML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cleanup, err := a.connect()
			if err != nil {
				return err
			}
			defer cleanup()
			if output != "" {
				cfg.OutputFile(output)
			}
			if voice != "" {
				cfg.SynthesisVoice(voice)
			}
			synth, err := cfg.Synthesizer()
			if err != nil {
				return err
			}
			defer synth.Close()

			if showEvents {
				return a.speakStreaming(cmd.Context(), synth, args[0], ssml)
			}
			speak := synth.SpeakText
			if ssml {
				speak = synth.SpeakSSML
			}
			res, err := speak(cmd.Context(), args[0])
			if printErr := a.printResult(res); printErr != nil {
				return printErr
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write audio to a WAV file (default speaker)")
	cmd.Flags().StringVar(&voice, "voice", "", "synthesis voice name")
	cmd.Flags().BoolVar(&ssml, "ssml", false, "treat TEXT as SSML")
	cmd.Flags().BoolVar(&showEvents, "events", false, "print synthesis events while speaking")
	return cmd
}

func (a *app) speakStreaming(ctx context.Context, synth *session.Synthesizer, text string, ssml bool) error {
	es, err := synth.StartFlags(events.Synthesizing | events.Synthesized)
	if err != nil {
		return err
	}
	start := synth.StartSpeakingText
	if ssml {
		start = synth.StartSpeakingSSML
	}
	if _, err := start(text); err != nil {
		return err
	}
	results := es.Resulting()
	defer results.Close()
	for {
		res, err := results.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := a.printResult(res); err != nil {
			return err
		}
		if res.Flags.Contains(events.Synthesized) {
			return synth.Stop()
		}
	}
}

func (a *app) flagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flags EXPR",
		Short: "Parse an event flag expression",
		Long: `Parse an event flag expression and print the resulting set and the
engine callback categories it registers.

Examples:
  spxctl flags "session|recognition"
  spxctl flags synthesized`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := events.ParseFlags(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "flags:      %s (0x%x)\ncategories: %s\n", f, uint64(f), describeCategories(f))
			return err
		},
	}
}

// stream prints recognition results until the session stops. An interrupt
// stops the recognizer and drains what is left.
func (a *app) stream(parent context.Context, reco *session.Recognizer) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	es, err := reco.Start()
	if err != nil {
		return err
	}
	results := es.Resulting()
	defer results.Close()

	for res, err := range results.All(ctx) {
		if err != nil {
			if stream.Terminal(err) {
				if ctx.Err() != nil {
					return reco.Stop()
				}
				return err
			}
			fmt.Fprintln(a.out, "error:", err)
			continue
		}
		if err := a.printResult(res); err != nil {
			return err
		}
	}
	return reco.Stop()
}
