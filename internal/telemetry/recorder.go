package telemetry

import (
	"log/slog"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/events"
)

// Recorder tracks adapter-level telemetry. It satisfies session.Observer so
// the bridge, the streams and the sessions report into the same totals.
type Recorder struct {
	log *slog.Logger

	totalSessions        atomic.Uint64
	activeSessions       atomic.Int64
	totalOneShots        atomic.Uint64
	eventsDelivered      atomic.Uint64
	callbacksDropped     atomic.Uint64
	classificationErrors atomic.Uint64
	totalResults         atomic.Uint64
	totalFinalResults    atomic.Uint64
}

// Snapshot captures cumulative metrics recorded so far.
type Snapshot struct {
	TotalSessions        uint64
	ActiveSessions       int64
	TotalOneShots        uint64
	EventsDelivered      uint64
	CallbacksDropped     uint64
	ClassificationErrors uint64
	TotalResults         uint64
	TotalFinalResults    uint64
}

// NewRecorder constructs a Recorder using the provided logger.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		log: logger.With("component", "telemetry.Recorder"),
	}
}

// Snapshot returns an immutable view of the recorder totals.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		TotalSessions:        r.totalSessions.Load(),
		ActiveSessions:       r.activeSessions.Load(),
		TotalOneShots:        r.totalOneShots.Load(),
		EventsDelivered:      r.eventsDelivered.Load(),
		CallbacksDropped:     r.callbacksDropped.Load(),
		ClassificationErrors: r.classificationErrors.Load(),
		TotalResults:         r.totalResults.Load(),
		TotalFinalResults:    r.totalFinalResults.Load(),
	}
}

// EventDelivered counts a callback queued for a live registration.
func (r *Recorder) EventDelivered() {
	if r != nil {
		r.eventsDelivered.Add(1)
	}
}

// CallbackDropped counts a callback that arrived after its registration ended.
func (r *Recorder) CallbackDropped() {
	if r == nil {
		return
	}
	if n := r.callbacksDropped.Add(1); n == 1 || n%100 == 0 {
		r.log.Debug("late callbacks dropped", "total", n)
	}
}

// ClassificationFailed counts an event whose result could not be read.
func (r *Recorder) ClassificationFailed() {
	if r != nil {
		r.classificationErrors.Add(1)
	}
}

// SessionStarted counts a continuous session entering Running.
func (r *Recorder) SessionStarted() {
	if r == nil {
		return
	}
	r.totalSessions.Add(1)
	r.activeSessions.Add(1)
}

// SessionStopped counts a continuous session leaving Running.
func (r *Recorder) SessionStopped() {
	if r != nil {
		r.activeSessions.Add(-1)
	}
}

// OneShot counts a single-shot recognition or synthesis.
func (r *Recorder) OneShot() {
	if r != nil {
		r.totalOneShots.Add(1)
	}
}

// SessionMetrics accumulates statistics for one served request.
type SessionMetrics struct {
	recorder *Recorder
	log      *slog.Logger

	requestID string
	metadata  map[string]string

	started time.Time
	results int
	finals  int
	errors  int
	runes   int
	closed  atomic.Bool
}

// StartSession initialises a SessionMetrics instance bound to the recorder.
func (r *Recorder) StartSession(requestID, method string, metadata map[string]string) *SessionMetrics {
	if r == nil {
		return nil
	}

	clonedMetadata := cloneMetadata(metadata)

	sessionLogger := r.log.With(
		"request_id", requestID,
		"method", method,
	)
	if len(clonedMetadata) > 0 {
		sessionLogger = sessionLogger.With("metadata", clonedMetadata)
	}

	return &SessionMetrics{
		recorder:  r,
		log:       sessionLogger,
		requestID: requestID,
		metadata:  clonedMetadata,
		started:   time.Now(),
	}
}

// RecordResult stores statistics for an emitted result.
func (s *SessionMetrics) RecordResult(res events.Result) {
	if s == nil {
		return
	}
	s.results++
	s.recorder.totalResults.Add(1)
	final := res.Flags.Contains(events.Recognized)
	if final {
		s.finals++
		s.recorder.totalFinalResults.Add(1)
	}
	text := res.Text()
	s.runes += utf8.RuneCountInString(text)

	s.log.Debug("result emitted",
		"flags", res.Flags.String(),
		"kind", res.Kind.String(),
		"final", final,
		"chars", len(text),
	)
}

// RecordError counts a per-item error sent to the client.
func (s *SessionMetrics) RecordError(err error) {
	if s == nil {
		return
	}
	s.errors++
	s.log.Debug("item error emitted", "error", err)
}

// Finish logs a summary once.
func (s *SessionMetrics) Finish(err error) {
	if s == nil {
		return
	}
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	duration := time.Since(s.started)
	args := []any{
		"duration_ms", duration.Milliseconds(),
		"results", s.results,
		"final_results", s.finals,
		"item_errors", s.errors,
		"runes", s.runes,
	}

	if err != nil {
		s.log.Error("request completed with error", append(args, "error", err)...)
		return
	}

	s.log.Info("request completed", args...)
}

func cloneMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
