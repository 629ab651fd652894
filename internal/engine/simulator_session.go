package engine

import (
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

type playOutcome int

const (
	playDone playOutcome = iota
	playStopped
	playFailed
)

// run plays one continuous session. Finite sources (files, closed push
// streams) end on their own with an end-of-stream cancellation; the
// microphone runs until stopped.
func (s *Simulator) run(reco spx.Handle, sess *simSession, plan []Utterance, audio *simAudio) {
	defer s.wg.Done()
	defer close(sess.done)

	s.fire(reco, spx.ConnectedEvent, func(*simRecognizer) *simEvent {
		return &simEvent{sessionID: sess.id}
	})
	s.fire(reco, spx.SessionStartedEvent, func(*simRecognizer) *simEvent {
		return &simEvent{sessionID: sess.id}
	})

	var offset uint64
	outcome := s.play(reco, sess, plan, &offset)
	if outcome == playDone {
		outcome = s.playSource(reco, sess, audio, len(plan) > 0, &offset)
	}
	if outcome == playDone {
		s.fire(reco, spx.CanceledEvent, func(r *simRecognizer) *simEvent {
			u := Utterance{Kind: UtteranceCanceled, CancelReason: spx.CancellationEndOfStream, CancelCode: spx.NoError}
			return &simEvent{sessionID: sess.id, offset: offset, result: s.resultFor(r, u, "", true, offset)}
		})
	}
	s.finish(reco, sess)
}

func (s *Simulator) playSource(reco spx.Handle, sess *simSession, audio *simAudio, scripted bool, offset *uint64) playOutcome {
	switch audio.kind {
	case audioPushStream:
		select {
		case <-audio.stream.done:
		case <-sess.stop:
			return playStopped
		}
	case audioFile:
	default:
		<-sess.stop
		return playStopped
	}
	if scripted {
		return playDone
	}
	s.mu.Lock()
	u, ok := derived(audio)
	s.mu.Unlock()
	if !ok {
		return playDone
	}
	return s.play(reco, sess, []Utterance{u}, offset)
}

func (s *Simulator) play(reco spx.Handle, sess *simSession, plan []Utterance, offset *uint64) playOutcome {
	for _, u := range plan {
		if sess.stopping() {
			return playStopped
		}
		start := *offset
		s.fire(reco, spx.SpeechStartDetectedEvent, func(*simRecognizer) *simEvent {
			return &simEvent{sessionID: sess.id, offset: start}
		})
		if u.Kind == UtteranceSpeech {
			for _, partial := range u.Partials {
				s.fire(reco, spx.RecognizingEvent, func(r *simRecognizer) *simEvent {
					return &simEvent{sessionID: sess.id, offset: start, result: s.resultFor(r, u, partial, false, start)}
				})
			}
		}
		final := spx.RecognizedEvent
		if u.Kind == UtteranceCanceled {
			final = spx.CanceledEvent
		}
		s.fire(reco, final, func(r *simRecognizer) *simEvent {
			return &simEvent{sessionID: sess.id, offset: start, result: s.resultFor(r, u, u.Text, true, start)}
		})
		dur := u.Duration
		if dur == 0 {
			dur = wordsDuration(u.Text)
		}
		end := start + ticks(dur)
		*offset = end
		s.fire(reco, spx.SpeechEndDetectedEvent, func(*simRecognizer) *simEvent {
			return &simEvent{sessionID: sess.id, offset: end}
		})
		if u.Kind == UtteranceCanceled && u.CancelCode != spx.NoError {
			return playFailed
		}
	}
	return playDone
}

func (s *Simulator) finish(reco spx.Handle, sess *simSession) {
	s.mu.Lock()
	hang := s.hangStop
	s.mu.Unlock()
	if hang {
		s.log.Debug("simulated stop hang, session-stopped suppressed", "session_id", sess.id)
		return
	}
	s.fire(reco, spx.SessionStoppedEvent, func(*simRecognizer) *simEvent {
		return &simEvent{sessionID: sess.id}
	})
	s.fire(reco, spx.DisconnectedEvent, func(*simRecognizer) *simEvent {
		return &simEvent{sessionID: sess.id}
	})
}

// fire delivers one event of category c if a callback is registered and
// the recognizer is enabled. build runs under the simulator lock.
func (s *Simulator) fire(reco spx.Handle, c spx.Category, build func(*simRecognizer) *simEvent) {
	s.mu.Lock()
	r, ok := s.recognizers[reco]
	if !ok || !r.enabled {
		s.mu.Unlock()
		return
	}
	var (
		entry callbackEntry
		found bool
	)
	if c.IsConnection() {
		if r.conn != nil {
			entry, found = r.conn.callbacks[c]
		}
	} else {
		entry, found = r.callbacks[c]
	}
	if !found {
		s.mu.Unlock()
		return
	}
	h := s.alloc(c.EventFamily())
	s.events[h] = build(r)
	s.mu.Unlock()

	source := reco
	if c.IsConnection() {
		source = spx.InvalidHandle
	}
	entry.cb(source, h, entry.ctx)
}
