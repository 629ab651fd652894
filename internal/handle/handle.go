// Package handle owns engine handles on behalf of Go values.
package handle

import (
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

// Owned holds exactly one engine handle and releases it at most once.
type Owned struct {
	api    spx.HandleAPI
	family spx.Family
	log    *slog.Logger

	raw      atomic.Uintptr
	released atomic.Bool
}

// New adopts h without validating it. A finalizer releases the handle if
// the owner is dropped without Release.
func New(api spx.HandleAPI, family spx.Family, h spx.Handle, logger *slog.Logger) *Owned {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Owned{
		api:    api,
		family: family,
		log:    logger.With("component", "handle", "family", family.String()),
	}
	o.raw.Store(uintptr(h))
	if h.Valid() {
		runtime.SetFinalizer(o, (*Owned).finalize)
	}
	return o
}

// Handle returns the raw handle, or spx.InvalidHandle once released.
func (o *Owned) Handle() spx.Handle {
	if o == nil {
		return spx.InvalidHandle
	}
	return spx.Handle(o.raw.Load())
}

// Family returns the handle family.
func (o *Owned) Family() spx.Family {
	return o.family
}

// IsValid asks the engine whether the handle is still alive. Families
// without a validity routine report true until released.
func (o *Owned) IsValid() bool {
	if o == nil || o.released.Load() {
		return false
	}
	h := o.Handle()
	if !h.Valid() {
		return false
	}
	if !o.family.HasValidityCheck() {
		return true
	}
	return o.api.IsValid(o.family, h)
}

// Release returns the handle to the engine. Only the first call has an
// effect. A handle the engine already reports invalid is not released
// again. Failures are logged and never surface as panics.
func (o *Owned) Release() {
	if o == nil || !o.released.CompareAndSwap(false, true) {
		return
	}
	runtime.SetFinalizer(o, nil)
	h := spx.Handle(o.raw.Swap(uintptr(spx.InvalidHandle)))
	o.release(h)
}

// Close implements io.Closer.
func (o *Owned) Close() error {
	o.Release()
	return nil
}

func (o *Owned) finalize() {
	if o.released.CompareAndSwap(false, true) {
		h := spx.Handle(o.raw.Swap(uintptr(spx.InvalidHandle)))
		o.log.Debug("releasing handle from finalizer", "handle", uintptr(h))
		o.release(h)
	}
}

func (o *Owned) release(h spx.Handle) {
	if !h.Valid() || o.api == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("handle release panicked", "handle", uintptr(h), "panic", r)
		}
	}()
	if o.family.HasValidityCheck() && !o.api.IsValid(o.family, h) {
		o.log.Debug("skipping release of handle the engine already invalidated", "handle", uintptr(h))
		return
	}
	if err := o.api.Release(o.family, h); err != nil {
		o.log.Warn("handle release failed", "handle", uintptr(h), "error", err)
	}
}
