package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/adapterinfo"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/audio"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/config"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/events"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/session"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/stream"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/telemetry"
)

// Server implements RecognitionServer on top of a session.Client.
type Server struct {
	cfg     config.Config
	log     *slog.Logger
	client  *session.Client
	metrics *telemetry.Recorder
}

// New returns a new Server instance.
func New(cfg config.Config, logger *slog.Logger, client *session.Client, metrics *telemetry.Recorder) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		panic("server: session client must not be nil")
	}
	if metrics == nil {
		metrics = telemetry.NewRecorder(logger)
	}
	return &Server{
		cfg: cfg,
		log: logger.With(
			"component", "server",
			"language", cfg.Language,
		),
		client:  client,
		metrics: metrics,
	}
}

// Recognize runs a single-shot recognition of the request audio, or of the
// configured audio file when the request carries none.
func (s *Server) Recognize(ctx context.Context, req *RecognizeRequest) (resp *RecognizeResponse, err error) {
	requestID := uuid.NewString()
	metrics := s.metrics.StartSession(requestID, "Recognize", req.Metadata)
	defer func() { metrics.Finish(err) }()

	format, err := req.Format.pcm()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	push := len(req.Audio) > 0
	language := resolveLanguage(s.cfg.Language, req.Language, req.Metadata)
	reco, err := s.recognizer(language, s.cfg.Flags, push, format)
	if err != nil {
		return nil, toStatus(err)
	}
	defer reco.Close()

	if push {
		if err := reco.WriteStream(req.Audio); err != nil {
			return nil, toStatus(fmt.Errorf("server: write audio: %w", err))
		}
		if err := reco.CloseStream(); err != nil {
			return nil, toStatus(fmt.Errorf("server: close audio: %w", err))
		}
	}

	res, err := reco.RecognizeOnce(ctx)
	resp = &RecognizeResponse{RequestID: requestID}
	var (
		cancelErr  *events.CancellationError
		noMatchErr *events.NoMatchError
	)
	switch {
	case err == nil:
	case errors.As(err, &cancelErr), errors.As(err, &noMatchErr):
		resp.Error = err.Error()
		metrics.RecordError(err)
	default:
		return nil, toStatus(err)
	}
	if resErr := res.Err(); resErr != nil && resp.Error == "" {
		resp.Error = resErr.Error()
		metrics.RecordError(resErr)
	}
	resp.Result = newResultMessage(res, adapterinfo.ResultMetadata(language))
	metrics.RecordResult(res)
	s.log.Info("recognize completed",
		"request_id", requestID,
		"flags", res.Flags.String(),
		"chars", len(res.Text()),
		"audio_bytes", len(req.Audio),
	)
	return resp, nil
}

// StreamRecognition runs continuous recognition over audio pushed by the
// client. Results that pass the filter are sent until the session stops or
// the client goes away.
func (s *Server) StreamRecognition(srv RecognitionStreamServer) (err error) {
	ctx := srv.Context()
	first, err := srv.Recv()
	if errors.Is(err, io.EOF) {
		return status.Error(codes.InvalidArgument, "server: stream closed before the first request")
	}
	if err != nil {
		s.log.Error("failed to receive request", "error", err)
		return err
	}

	requestID := uuid.NewString()
	metrics := s.metrics.StartSession(requestID, "StreamRecognition", first.Metadata)
	defer func() { metrics.Finish(err) }()

	flags := s.cfg.Flags
	if strings.TrimSpace(first.Filter) != "" {
		parsed, perr := events.ParseFlags(first.Filter)
		if perr != nil {
			return status.Error(codes.InvalidArgument, perr.Error())
		}
		flags = parsed
	}
	format, err := first.Format.pcm()
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	language := resolveLanguage(s.cfg.Language, first.Language, first.Metadata)
	reco, err := s.recognizer(language, flags, true, format)
	if err != nil {
		return toStatus(err)
	}
	defer reco.Close()

	es, err := reco.StartFlags(0)
	if err != nil {
		return toStatus(err)
	}
	results := es.Resulting()
	defer results.Close()

	s.log.Info("stream opened",
		"request_id", requestID,
		"filter", flags.String(),
		"language", language,
		"format", format.String(),
	)

	quit := make(chan struct{})
	defer close(quit)
	incoming := receive(srv, quit)

	g, gctx := errgroup.WithContext(ctx)
	feedCtx, stopFeed := context.WithCancel(gctx)
	defer stopFeed()
	g.Go(func() error {
		return feed(feedCtx, reco, first, incoming)
	})

	metadata := adapterinfo.ResultMetadata(language)
	var sequence uint64
	for {
		res, nerr := results.Next(gctx)
		if errors.Is(nerr, io.EOF) {
			stopFeed()
			if werr := g.Wait(); werr != nil {
				return toStatus(werr)
			}
			s.log.Info("stream completed", "request_id", requestID, "events", sequence)
			return toStatus(reco.Stop())
		}
		if nerr != nil && stream.Terminal(nerr) {
			stopFeed()
			if werr := g.Wait(); werr != nil {
				s.log.Info("audio feed ended", "request_id", requestID, "error", werr)
				return toStatus(werr)
			}
			if ctx.Err() != nil {
				s.log.Info("client went away", "request_id", requestID)
				return status.FromContextError(ctx.Err()).Err()
			}
			return toStatus(nerr)
		}
		sequence++
		msg := &StreamEvent{RequestID: requestID, Sequence: sequence}
		if nerr != nil {
			msg.Error = nerr.Error()
			metrics.RecordError(nerr)
		} else {
			msg.Result = newResultMessage(res, metadata)
			if resErr := res.Err(); resErr != nil {
				msg.Error = resErr.Error()
			}
			metrics.RecordResult(res)
		}
		if err := srv.Send(msg); err != nil {
			s.log.Error("failed to send event", "request_id", requestID, "error", err)
			stopFeed()
			_ = g.Wait()
			return err
		}
	}
}

type received struct {
	req *StreamRequest
	err error
}

// receive reads client messages until an error, handing each to the feed.
// It never touches the recognizer, so it may outlive the handler until the
// stream is torn down.
func receive(srv RecognitionStreamServer, quit <-chan struct{}) <-chan received {
	out := make(chan received)
	go func() {
		for {
			req, err := srv.Recv()
			select {
			case out <- received{req: req, err: err}:
			case <-quit:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

// feed writes request audio into the recognizer's push stream and closes it
// on Last or when the client half-closes.
func feed(ctx context.Context, reco *session.Recognizer, req *StreamRequest, incoming <-chan received) error {
	for {
		if len(req.Audio) > 0 {
			if err := reco.WriteStream(req.Audio); err != nil {
				return fmt.Errorf("server: write audio: %w", err)
			}
		}
		if req.Last {
			return reco.CloseStream()
		}
		select {
		case <-ctx.Done():
			return nil
		case in := <-incoming:
			if errors.Is(in.err, io.EOF) {
				return reco.CloseStream()
			}
			if in.err != nil {
				return in.err
			}
			req = in.req
		}
	}
}

func (s *Server) recognizer(language string, flags events.Flags, push bool, format audio.Format) (*session.Recognizer, error) {
	if !push && s.cfg.AudioFile == "" {
		return nil, status.Error(codes.InvalidArgument, "server: request carries no audio and no audio file is configured")
	}
	cfg, err := s.client.FromSettings(s.cfg)
	if err != nil {
		return nil, err
	}
	defer cfg.Close()
	cfg.Language(language).Flags(flags)
	if push {
		cfg.PushAudio(format)
	} else {
		cfg.AudioFile(s.cfg.AudioFile)
	}
	reco, err := cfg.Recognizer()
	if err != nil {
		return nil, fmt.Errorf("server: build recognizer: %w", err)
	}
	return reco, nil
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var cancelErr *events.CancellationError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, spx.ErrNulByte), errors.Is(err, spx.ErrInvalidUTF8), errors.Is(err, spx.ErrInvalidHandle):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, spx.ErrTimeout):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, spx.ErrAlreadyStarted):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &cancelErr):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
