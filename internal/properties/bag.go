// Package properties reads and writes engine property bags.
package properties

import (
	"fmt"
	"log/slog"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/handle"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

// API is the subset of the engine a Bag needs.
type API interface {
	spx.HandleAPI
	spx.PropertyAPI
}

// Bag is a key/value store owned by a config, recognizer, synthesizer or
// result handle.
type Bag struct {
	api API
	h   *handle.Owned
}

// New adopts a property bag handle.
func New(api API, h spx.Handle, logger *slog.Logger) *Bag {
	return &Bag{api: api, h: handle.New(api, spx.FamilyPropertyBag, h, logger)}
}

// Handle returns the underlying bag handle.
func (b *Bag) Handle() spx.Handle {
	return b.h.Handle()
}

// GetByID reads a property by its well-known identifier.
func (b *Bag) GetByID(id spx.PropertyID) (string, error) {
	return b.get(id, "")
}

// GetByName reads a property by string name.
func (b *Bag) GetByName(name string) (string, error) {
	if err := spx.CheckInput(name); err != nil {
		return "", err
	}
	return b.get(spx.NoPropertyID, name)
}

// PutByID writes a property by its well-known identifier.
func (b *Bag) PutByID(id spx.PropertyID, value string) error {
	if err := spx.CheckInput(value); err != nil {
		return err
	}
	return b.put(id, "", value)
}

// PutByName writes a property by string name.
func (b *Bag) PutByName(name, value string) error {
	if err := spx.CheckInput(name, value); err != nil {
		return err
	}
	return b.put(spx.NoPropertyID, name, value)
}

// Close releases the bag handle.
func (b *Bag) Close() error {
	return b.h.Close()
}

func (b *Bag) get(id spx.PropertyID, name string) (string, error) {
	h := b.h.Handle()
	if !h.Valid() {
		return "", spx.ErrClosed
	}
	raw, err := b.api.GetProperty(h, id, name)
	if err != nil {
		return "", fmt.Errorf("properties: get %s: %w", key(id, name), err)
	}
	value, err := spx.DecodeOutput(raw)
	if err != nil {
		return "", fmt.Errorf("properties: get %s: %w", key(id, name), err)
	}
	return value, nil
}

func (b *Bag) put(id spx.PropertyID, name, value string) error {
	h := b.h.Handle()
	if !h.Valid() {
		return spx.ErrClosed
	}
	if err := b.api.SetProperty(h, id, name, value); err != nil {
		return fmt.Errorf("properties: put %s: %w", key(id, name), err)
	}
	return nil
}

func key(id spx.PropertyID, name string) string {
	if id == spx.NoPropertyID {
		return fmt.Sprintf("%q", name)
	}
	return fmt.Sprintf("#%d", int(id))
}
