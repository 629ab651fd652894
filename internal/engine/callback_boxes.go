package engine

import (
	"sync"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

// callbackBox holds the Go callbacks registered on one engine handle under
// one bridge token. Its key is the context value the engine passes back.
type callbackBox struct {
	key       uintptr
	token     spx.Context
	callbacks map[spx.Category]spx.Callback
}

// callbackBoxes maps engine callback contexts back to Go callbacks. Keys
// come from a counter and are never reused, so a callback that arrives for
// a retired key finds nothing. Key 0 is the engine's "unregister" value.
type callbackBoxes struct {
	mu      sync.Mutex
	next    uintptr
	byOwner map[spx.Handle]*callbackBox
	byKey   map[uintptr]*callbackBox
}

func newCallbackBoxes() *callbackBoxes {
	return &callbackBoxes{
		byOwner: map[spx.Handle]*callbackBox{},
		byKey:   map[uintptr]*callbackBox{},
	}
}

// attach records cb for category c of owner and returns the key to hand to
// the engine. A different token for an owner with a live box retires the
// old box; replaced reports that case.
func (b *callbackBoxes) attach(owner spx.Handle, c spx.Category, cb spx.Callback, token spx.Context) (key uintptr, replaced bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	box, ok := b.byOwner[owner]
	if ok && box.token != token {
		delete(b.byKey, box.key)
		replaced = true
		ok = false
	}
	if !ok {
		b.next++
		box = &callbackBox{key: b.next, token: token, callbacks: map[spx.Category]spx.Callback{}}
		b.byOwner[owner] = box
		b.byKey[box.key] = box
	}
	box.callbacks[c] = cb
	return box.key, replaced
}

// detach forgets category c of owner and retires the box once it is empty.
// It reports whether owner had a box at all.
func (b *callbackBoxes) detach(owner spx.Handle, c spx.Category) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	box, ok := b.byOwner[owner]
	if !ok {
		return false
	}
	delete(box.callbacks, c)
	if len(box.callbacks) == 0 {
		delete(b.byOwner, owner)
		delete(b.byKey, box.key)
	}
	return true
}

// lookup returns the callback and token registered for key and c.
func (b *callbackBoxes) lookup(key uintptr, c spx.Category) (spx.Callback, spx.Context, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	box, ok := b.byKey[key]
	if !ok {
		return nil, 0, false
	}
	cb, ok := box.callbacks[c]
	return cb, box.token, ok
}

func (b *callbackBoxes) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byKey)
}
