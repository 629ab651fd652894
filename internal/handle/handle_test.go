package handle

import (
	"errors"
	"sync"
	"testing"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

type fakeAPI struct {
	mu       sync.Mutex
	released map[spx.Handle]int
	invalid  map[spx.Handle]bool
	checks   int
	fail     error
	panics   bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{released: map[spx.Handle]int{}, invalid: map[spx.Handle]bool{}}
}

func (f *fakeAPI) Release(_ spx.Family, h spx.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("boom")
	}
	f.released[h]++
	return f.fail
}

func (f *fakeAPI) IsValid(_ spx.Family, h spx.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	return !f.invalid[h]
}

func (f *fakeAPI) count(h spx.Handle) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released[h]
}

func TestReleaseExactlyOnce(t *testing.T) {
	api := newFakeAPI()
	o := New(api, spx.FamilyRecognizer, 7, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Release()
		}()
	}
	wg.Wait()
	o.Release()

	if got := api.count(7); got != 1 {
		t.Fatalf("expected one release, got %d", got)
	}
	if o.Handle() != spx.InvalidHandle {
		t.Fatalf("expected invalid marker after release, got %v", o.Handle())
	}
	if o.IsValid() {
		t.Fatalf("released handle reported valid")
	}
}

func TestReleaseSkipsEngineInvalidatedHandle(t *testing.T) {
	api := newFakeAPI()
	api.invalid[9] = true
	o := New(api, spx.FamilyRecognizerEvent, 9, nil)
	o.Release()
	if got := api.count(9); got != 0 {
		t.Fatalf("invalid handle must not be released, got %d", got)
	}
}

func TestConnectionFamilyReleasesWithoutCheck(t *testing.T) {
	api := newFakeAPI()
	o := New(api, spx.FamilyConnection, 3, nil)
	if !o.IsValid() {
		t.Fatalf("connection handle should be treated as valid before release")
	}
	o.Release()
	if api.checks != 0 {
		t.Fatalf("connection family has no validity check, got %d checks", api.checks)
	}
	if got := api.count(3); got != 1 {
		t.Fatalf("expected one release, got %d", got)
	}
}

func TestReleaseInvalidMarkerIsNoop(t *testing.T) {
	api := newFakeAPI()
	o := New(api, spx.FamilyRecognizerResult, spx.InvalidHandle, nil)
	o.Release()
	if len(api.released) != 0 {
		t.Fatalf("invalid marker must not reach the engine")
	}
}

func TestReleaseFailuresAreSwallowed(t *testing.T) {
	api := newFakeAPI()
	api.fail = errors.New("release failed")
	New(api, spx.FamilyAudioConfig, 4, nil).Release()

	api.panics = true
	if err := New(api, spx.FamilyAudioConfig, 5, nil).Close(); err != nil {
		t.Fatalf("Close must not report errors, got %v", err)
	}
}

func TestNilOwnedIsSafe(t *testing.T) {
	var o *Owned
	o.Release()
	if o.Handle() != spx.InvalidHandle {
		t.Fatalf("nil owner should expose invalid marker")
	}
	if o.IsValid() {
		t.Fatalf("nil owner reported valid")
	}
}
