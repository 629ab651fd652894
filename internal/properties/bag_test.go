package properties_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/engine"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/properties"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

func newBag(t *testing.T) (*engine.Simulator, *properties.Bag) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sim := engine.NewSimulator(logger)
	cfg, err := sim.NewConfigFromSubscription("key", "westeurope")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	h, err := sim.ConfigProperties(cfg)
	if err != nil {
		t.Fatalf("config properties: %v", err)
	}
	return sim, properties.New(sim, h, logger)
}

func TestBagRoundTrip(t *testing.T) {
	_, bag := newBag(t)
	defer bag.Close()

	region, err := bag.GetByID(spx.SpeechServiceConnectionRegion)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if region != "westeurope" {
		t.Fatalf("unexpected region %q", region)
	}

	if err := bag.PutByID(spx.SpeechServiceConnectionRecoLanguage, "de-DE"); err != nil {
		t.Fatalf("PutByID: %v", err)
	}
	if got, _ := bag.GetByID(spx.SpeechServiceConnectionRecoLanguage); got != "de-DE" {
		t.Fatalf("unexpected language %q", got)
	}

	if err := bag.PutByName("custom.flag", "zażółć"); err != nil {
		t.Fatalf("PutByName: %v", err)
	}
	if got, _ := bag.GetByName("custom.flag"); got != "zażółć" {
		t.Fatalf("unexpected custom value %q", got)
	}
	if got, err := bag.GetByName("missing"); err != nil || got != "" {
		t.Fatalf("expected empty missing value, got %q, %v", got, err)
	}
}

func TestBagRejectsNulBytes(t *testing.T) {
	_, bag := newBag(t)
	defer bag.Close()

	if err := bag.PutByName("a\x00b", "v"); !errors.Is(err, spx.ErrNulByte) {
		t.Fatalf("expected ErrNulByte for name, got %v", err)
	}
	if err := bag.PutByID(spx.SpeechServiceConnectionRecoLanguage, "en\x00US"); !errors.Is(err, spx.ErrNulByte) {
		t.Fatalf("expected ErrNulByte for value, got %v", err)
	}
	if _, err := bag.GetByName("x\x00"); !errors.Is(err, spx.ErrNulByte) {
		t.Fatalf("expected ErrNulByte for lookup, got %v", err)
	}
}

func TestBagInvalidUTF8(t *testing.T) {
	sim, bag := newBag(t)
	defer bag.Close()

	if err := sim.SetRawProperty(bag.Handle(), spx.NoPropertyID, "raw", []byte{0xc3, 0x28}); err != nil {
		t.Fatalf("SetRawProperty: %v", err)
	}
	if _, err := bag.GetByName("raw"); !errors.Is(err, spx.ErrInvalidUTF8) {
		t.Fatalf("expected ErrInvalidUTF8, got %v", err)
	}
}

func TestBagTrailingNulIsTrimmed(t *testing.T) {
	sim, bag := newBag(t)
	defer bag.Close()

	if err := sim.SetRawProperty(bag.Handle(), spx.NoPropertyID, "padded", []byte("value\x00junk")); err != nil {
		t.Fatalf("SetRawProperty: %v", err)
	}
	if got, err := bag.GetByName("padded"); err != nil || got != "value" {
		t.Fatalf("expected trimmed value, got %q, %v", got, err)
	}
}

func TestBagAfterClose(t *testing.T) {
	sim, bag := newBag(t)
	h := bag.Handle()
	if err := bag.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sim.ReleaseCount(h) != 1 {
		t.Fatalf("expected bag released once, got %d", sim.ReleaseCount(h))
	}
	if _, err := bag.GetByName("anything"); !errors.Is(err, spx.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := bag.PutByName("k", "v"); !errors.Is(err, spx.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	bag.Close()
	if sim.ReleaseCount(h) != 1 {
		t.Fatalf("expected a single release, got %d", sim.ReleaseCount(h))
	}
}
