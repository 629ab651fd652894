package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/config"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/engine"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/events"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/session"
)

type globalOptions struct {
	simulate bool
	key      string
	region   string
	endpoint string
	language string
	flags    string
	timeout  int
	jsonOut  bool
	verbose  bool
}

type app struct {
	opts   globalOptions
	out    io.Writer
	lookup func(string) (string, bool)
}

func newRootCmd() *cobra.Command {
	a := &app{out: os.Stdout, lookup: os.LookupEnv}
	root := &cobra.Command{
		Use:   "spxctl",
		Short: "Drive Azure Speech recognizers and synthesizers",
		Long: `Drive Azure Speech recognizers and synthesizers.

Credentials come from the adapter configuration (AZURE_SPEECH_KEY,
AZURE_SPEECH_REGION, AZURE_SPEECH_ENDPOINT, NUPI_ADAPTER_CONFIG_FILE) and
can be overridden by flags. --simulate runs against the in-process engine.

Examples:
  spxctl recognize -f hello.wav
  spxctl listen -f meeting.wav --flags "session|recognizing|recognized" --json
  spxctl translate -f hello.wav --to de,fr
  spxctl speak "good morning" -o morning.wav`,
		SilenceUsage: true,
	}
	root.SetOut(a.out)

	pf := root.PersistentFlags()
	pf.BoolVar(&a.opts.simulate, "simulate", false, "use the in-process simulated engine")
	pf.StringVar(&a.opts.key, "key", "", "subscription key")
	pf.StringVar(&a.opts.region, "region", "", "service region")
	pf.StringVar(&a.opts.endpoint, "endpoint", "", "custom service endpoint")
	pf.StringVarP(&a.opts.language, "language", "l", "", "recognition language (BCP-47)")
	pf.StringVar(&a.opts.flags, "flags", "", "event categories to stream, e.g. \"recognizing|recognized\"")
	pf.IntVar(&a.opts.timeout, "timeout-ms", 0, "bound for start/stop waits in milliseconds")
	pf.BoolVar(&a.opts.jsonOut, "json", false, "print results as JSON")
	pf.BoolVarP(&a.opts.verbose, "verbose", "v", false, "log engine activity to stderr")

	root.AddCommand(
		a.recognizeCmd(),
		a.listenCmd(),
		a.intentCmd(),
		a.translateCmd(),
		a.speakCmd(),
		a.flagsCmd(),
	)
	return root
}

func (a *app) logger() *slog.Logger {
	level := slog.LevelWarn
	if a.opts.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// settings merges the adapter configuration with command-line overrides.
func (a *app) settings() (config.Config, error) {
	overrides := map[string]string{}
	set := func(key, value string) {
		if strings.TrimSpace(value) != "" {
			overrides[key] = value
		}
	}
	set("AZURE_SPEECH_KEY", a.opts.key)
	set("AZURE_SPEECH_REGION", a.opts.region)
	set("AZURE_SPEECH_ENDPOINT", a.opts.endpoint)
	set("NUPI_LANGUAGE_HINT", a.opts.language)
	set("NUPI_ADAPTER_EVENT_FLAGS", a.opts.flags)
	if a.opts.simulate {
		overrides["NUPI_ADAPTER_USE_SIMULATOR"] = "true"
	}
	if a.opts.timeout > 0 {
		overrides["NUPI_ADAPTER_TIMEOUT_MS"] = fmt.Sprint(a.opts.timeout)
	}
	loader := config.Loader{
		Lookup: func(key string) (string, bool) {
			if v, ok := overrides[key]; ok {
				return v, true
			}
			return a.lookup(key)
		},
	}
	return loader.Load()
}

// connect builds the engine, a session client and a speech configuration.
// The returned cleanup releases all of them.
func (a *app) connect() (*session.Config, func(), error) {
	settings, err := a.settings()
	if err != nil {
		return nil, nil, err
	}
	logger := a.logger()
	eng, err := engine.New(settings, logger)
	if err != nil && eng == nil {
		return nil, nil, err
	}
	client := session.NewClient(eng, logger, nil)
	cfg, err := client.FromSettings(settings)
	if err != nil {
		eng.Close()
		return nil, nil, err
	}
	return cfg, func() {
		cfg.Close()
		eng.Close()
	}, nil
}

func (a *app) printResult(res events.Result) error {
	if a.opts.jsonOut {
		raw, err := json.Marshal(res)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.out, string(raw))
		return err
	}
	switch {
	case res.Recognition != nil && res.Recognition.Intent != nil:
		_, err := fmt.Fprintf(a.out, "%s\t%s\tintent=%s\n", res.Flags, res.Text(), res.Recognition.Intent.ID)
		return err
	case res.Recognition != nil && len(res.Recognition.Translations) > 0:
		if _, err := fmt.Fprintf(a.out, "%s\t%s\n", res.Flags, res.Text()); err != nil {
			return err
		}
		for lang, text := range res.Recognition.Translations {
			if _, err := fmt.Fprintf(a.out, "  %s\t%s\n", lang, text); err != nil {
				return err
			}
		}
		return nil
	case res.Recognition != nil:
		_, err := fmt.Fprintf(a.out, "%s\t%s\n", res.Flags, res.Text())
		return err
	default:
		_, err := fmt.Fprintf(a.out, "%s\n", res.Flags)
		return err
	}
}

func describeCategories(f events.Flags) string {
	var names []string
	for _, c := range events.RecognizerCategories(f) {
		names = append(names, c.String())
	}
	for _, c := range events.SynthesizerCategories(f) {
		names = append(names, c.String())
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}
