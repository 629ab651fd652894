package engine

import (
	"testing"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

func TestCallbackBoxKeysAreNeverReused(t *testing.T) {
	boxes := newCallbackBoxes()
	owner := spx.Handle(0x1000)
	var hits int
	cb := func(spx.Handle, spx.Handle, spx.Context) { hits++ }

	first, _ := boxes.attach(owner, spx.RecognizedEvent, cb, 7)
	if first == 0 {
		t.Fatal("key 0 is reserved for unregister")
	}
	if !boxes.detach(owner, spx.RecognizedEvent) {
		t.Fatal("expected owner box")
	}
	if boxes.size() != 0 {
		t.Fatal("expected empty box retired")
	}

	// Same owner and token again: a fresh key, the old one stays dead.
	second, _ := boxes.attach(owner, spx.RecognizedEvent, cb, 7)
	if second == first {
		t.Fatalf("key %d reused", first)
	}
	if _, _, ok := boxes.lookup(first, spx.RecognizedEvent); ok {
		t.Fatal("stale key routed to the new registration")
	}
	got, token, ok := boxes.lookup(second, spx.RecognizedEvent)
	if !ok || token != 7 {
		t.Fatalf("expected live registration with token 7, got ok=%t token=%d", ok, token)
	}
	got(owner, 1, token)
	if hits != 1 {
		t.Fatalf("expected callback invoked once, got %d", hits)
	}
}

func TestCallbackBoxSharesKeyAcrossCategories(t *testing.T) {
	boxes := newCallbackBoxes()
	owner := spx.Handle(0x2000)
	cb := func(spx.Handle, spx.Handle, spx.Context) {}

	k1, _ := boxes.attach(owner, spx.SessionStartedEvent, cb, 3)
	k2, _ := boxes.attach(owner, spx.CanceledEvent, cb, 3)
	if k1 != k2 {
		t.Fatalf("expected one key per owner and token, got %d and %d", k1, k2)
	}
	if _, _, ok := boxes.lookup(k1, spx.RecognizingEvent); ok {
		t.Fatal("unregistered category must not route")
	}

	boxes.detach(owner, spx.SessionStartedEvent)
	if _, _, ok := boxes.lookup(k1, spx.CanceledEvent); !ok {
		t.Fatal("remaining category lost")
	}
	boxes.detach(owner, spx.CanceledEvent)
	if _, _, ok := boxes.lookup(k1, spx.CanceledEvent); ok {
		t.Fatal("expected key retired with its last category")
	}
	if boxes.detach(owner, spx.CanceledEvent) {
		t.Fatal("detach of an unknown owner reported a box")
	}
}

func TestCallbackBoxNewTokenRetiresOldKey(t *testing.T) {
	boxes := newCallbackBoxes()
	owner := spx.Handle(0x3000)
	cb := func(spx.Handle, spx.Handle, spx.Context) {}

	old, replaced := boxes.attach(owner, spx.RecognizedEvent, cb, 1)
	if replaced {
		t.Fatal("first attach cannot replace")
	}
	fresh, replaced := boxes.attach(owner, spx.RecognizedEvent, cb, 2)
	if !replaced || fresh == old {
		t.Fatalf("expected replacement with a new key, got replaced=%t key=%d", replaced, fresh)
	}
	if _, _, ok := boxes.lookup(old, spx.RecognizedEvent); ok {
		t.Fatal("old key still routes")
	}
	if boxes.size() != 1 {
		t.Fatalf("expected one live box, got %d", boxes.size())
	}
}
