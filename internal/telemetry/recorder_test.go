package telemetry

import (
	"io"
	"log/slog"
	"testing"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/events"
)

func TestRecorderSnapshot(t *testing.T) {
	recorder := NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if snapshot := recorder.Snapshot(); snapshot.TotalSessions != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snapshot)
	}

	recorder.SessionStarted()
	recorder.EventDelivered()
	recorder.EventDelivered()
	recorder.CallbackDropped()
	recorder.ClassificationFailed()
	recorder.OneShot()

	snapshot := recorder.Snapshot()
	if snapshot.TotalSessions != 1 || snapshot.ActiveSessions != 1 {
		t.Fatalf("unexpected session counters: %+v", snapshot)
	}
	if snapshot.EventsDelivered != 2 {
		t.Fatalf("unexpected EventsDelivered: %d", snapshot.EventsDelivered)
	}
	if snapshot.CallbacksDropped != 1 {
		t.Fatalf("unexpected CallbacksDropped: %d", snapshot.CallbacksDropped)
	}
	if snapshot.ClassificationErrors != 1 {
		t.Fatalf("unexpected ClassificationErrors: %d", snapshot.ClassificationErrors)
	}
	if snapshot.TotalOneShots != 1 {
		t.Fatalf("unexpected TotalOneShots: %d", snapshot.TotalOneShots)
	}

	recorder.SessionStopped()
	if snapshot := recorder.Snapshot(); snapshot.ActiveSessions != 0 {
		t.Fatalf("expected zero active sessions, got %d", snapshot.ActiveSessions)
	}
}

func TestSessionMetricsFinish(t *testing.T) {
	recorder := NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	session := recorder.StartSession("req-1", "StreamRecognition", map[string]string{"source": "test"})
	if session == nil {
		t.Fatalf("expected session metrics")
	}

	session.RecordResult(events.Result{
		Kind:        events.KindRecognition,
		Flags:       events.Recognizing | events.Speech,
		Recognition: &events.Recognition{Text: "hello"},
	})
	session.RecordResult(events.Result{
		Kind:        events.KindRecognition,
		Flags:       events.Recognized | events.Speech,
		Recognition: &events.Recognition{Text: "hello world"},
	})
	session.RecordError(io.ErrUnexpectedEOF)
	session.Finish(nil)
	session.Finish(io.EOF)

	snapshot := recorder.Snapshot()
	if snapshot.TotalResults != 2 {
		t.Fatalf("unexpected TotalResults: %d", snapshot.TotalResults)
	}
	if snapshot.TotalFinalResults != 1 {
		t.Fatalf("unexpected TotalFinalResults: %d", snapshot.TotalFinalResults)
	}
	if session.errors != 1 || session.runes != len("hello")+len("hello world") {
		t.Fatalf("unexpected session counters: errors=%d runes=%d", session.errors, session.runes)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var recorder *Recorder
	recorder.EventDelivered()
	recorder.CallbackDropped()
	recorder.SessionStarted()
	recorder.SessionStopped()
	recorder.OneShot()
	if snapshot := recorder.Snapshot(); snapshot != (Snapshot{}) {
		t.Fatalf("expected zero snapshot, got %+v", snapshot)
	}
	var session *SessionMetrics = recorder.StartSession("x", "y", nil)
	session.RecordResult(events.Result{})
	session.Finish(nil)
}
