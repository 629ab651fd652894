package server_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/config"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/engine"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/events"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/server"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/session"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/telemetry"
)

const bufSize = 1024 * 1024

func testConfig() config.Config {
	return config.Config{
		ListenAddr:         "bufconn",
		Language:           "en-US",
		LogLevel:           "debug",
		Flags:              events.Recognized,
		TimeoutMS:          5000,
		UseSimulatedEngine: true,
	}
}

func startServer(t *testing.T, ctx context.Context, script ...engine.Utterance) (*server.RecognitionClient, *telemetry.Recorder) {
	t.Helper()
	return startServerWithConfig(t, ctx, testConfig(), script...)
}

func startServerWithConfig(t *testing.T, ctx context.Context, cfg config.Config, script ...engine.Utterance) (*server.RecognitionClient, *telemetry.Recorder) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sim := engine.NewSimulator(logger)
	sim.SetScript(script...)
	t.Cleanup(func() { sim.Close() })

	recorder := telemetry.NewRecorder(logger)
	client := session.NewClient(sim, logger, recorder)

	lis := bufconn.Listen(bufSize)
	t.Cleanup(func() { lis.Close() })

	grpcServer := grpc.NewServer()
	t.Cleanup(grpcServer.Stop)
	server.RegisterRecognitionServer(grpcServer, server.New(cfg, logger, client, recorder))

	go func() {
		if err := grpcServer.Serve(lis); err != nil &&
			!errors.Is(err, grpc.ErrServerStopped) &&
			!errors.Is(err, net.ErrClosed) &&
			err.Error() != "closed" {
			t.Errorf("Serve() error: %v", err)
		}
	}()

	conn, err := grpc.DialContext(ctx, "bufconn",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("DialContext error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return server.NewRecognitionClient(conn), recorder
}

func drainStream(t *testing.T, stream *server.RecognitionStreamClient) []*server.StreamEvent {
	t.Helper()
	var out []*server.StreamEvent
	for {
		evt, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Recv error: %v", err)
		}
		out = append(out, evt)
	}
}

func TestRecognize(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, recorder := startServer(t, ctx, engine.Say("hi there"))

	resp, err := client.Recognize(ctx, &server.RecognizeRequest{
		Audio:    make([]byte, 3200),
		Metadata: map[string]string{"nupi.lang.bcp47": "pl-PL"},
	})
	if err != nil {
		t.Fatalf("Recognize error: %v", err)
	}
	if resp.RequestID == "" {
		t.Fatal("expected request id")
	}
	if resp.Error != "" {
		t.Fatalf("unexpected error %q", resp.Error)
	}
	if resp.Result == nil || resp.Result.Text != "hi there" {
		t.Fatalf("unexpected result %+v", resp.Result)
	}
	if resp.Result.Kind != "recognition" || resp.Result.Flags != "Recognized|Speech" {
		t.Fatalf("unexpected classification %s %s", resp.Result.Kind, resp.Result.Flags)
	}
	if got := resp.Result.Metadata["language"]; got != "pl-PL" {
		t.Fatalf("expected language metadata pl-PL, got %q", got)
	}

	snap := recorder.Snapshot()
	if snap.TotalOneShots != 1 || snap.TotalFinalResults != 1 {
		t.Fatalf("unexpected telemetry %+v", snap)
	}
}

func TestRecognizeTranscribesRequestAudio(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _ := startServer(t, ctx)

	resp, err := client.Recognize(ctx, &server.RecognizeRequest{
		Audio:  make([]byte, 3200),
		Format: &server.AudioFormat{SampleRate: 16000, BitDepth: 16, Channels: 1},
	})
	if err != nil {
		t.Fatalf("Recognize error: %v", err)
	}
	if resp.Result == nil || resp.Result.Text != "simulated transcript of 3200 bytes" {
		t.Fatalf("unexpected result %+v", resp.Result)
	}
}

func TestRecognizeFallsBackToConfiguredAudioFile(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cfg := testConfig()
	cfg.AudioFile = "/var/lib/adapter/clip.wav"
	client, _ := startServerWithConfig(t, ctx, cfg)

	resp, err := client.Recognize(ctx, &server.RecognizeRequest{})
	if err != nil {
		t.Fatalf("Recognize error: %v", err)
	}
	if resp.Result == nil || resp.Result.Text != "simulated transcript of clip.wav" {
		t.Fatalf("unexpected result %+v", resp.Result)
	}
}

func TestRecognizeReportsCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _ := startServer(t, ctx, engine.Fail(spx.AuthenticationFailure, "bad key"))

	resp, err := client.Recognize(ctx, &server.RecognizeRequest{Audio: make([]byte, 640)})
	if err != nil {
		t.Fatalf("Recognize error: %v", err)
	}
	if resp.Error == "" {
		t.Fatal("expected cancellation in response error")
	}
	if resp.Result == nil || resp.Result.ErrorCode != "AuthenticationFailure" || resp.Result.ErrorDetails != "bad key" {
		t.Fatalf("unexpected result %+v", resp.Result)
	}
}

func TestRecognizeRequiresAudio(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _ := startServer(t, ctx)

	_, err := client.Recognize(ctx, &server.RecognizeRequest{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestRecognizeRejectsIncompleteFormat(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _ := startServer(t, ctx)

	_, err := client.Recognize(ctx, &server.RecognizeRequest{
		Audio:  make([]byte, 320),
		Format: &server.AudioFormat{SampleRate: 8000},
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestStreamRecognition(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, recorder := startServer(t, ctx, engine.Say("first line"), engine.Say("second line"))

	stream, err := client.StreamRecognition(ctx)
	if err != nil {
		t.Fatalf("StreamRecognition error: %v", err)
	}
	if err := stream.Send(&server.StreamRequest{Language: "en-GB", Audio: make([]byte, 1600)}); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if err := stream.Send(&server.StreamRequest{Audio: make([]byte, 1600)}); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if err := stream.CloseSend(); err != nil {
		t.Fatalf("CloseSend error: %v", err)
	}

	var texts []string
	for i, evt := range drainStream(t, stream) {
		if evt.Sequence != uint64(i+1) {
			t.Fatalf("unexpected sequence %d", evt.Sequence)
		}
		if evt.Result == nil {
			t.Fatalf("expected result, got error %q", evt.Error)
		}
		texts = append(texts, evt.Result.Text)
	}
	if len(texts) != 2 || texts[0] != "first line" || texts[1] != "second line" {
		t.Fatalf("unexpected texts %v", texts)
	}

	snap := recorder.Snapshot()
	if snap.TotalSessions != 1 || snap.ActiveSessions != 0 {
		t.Fatalf("unexpected session totals %+v", snap)
	}
}

func TestStreamRecognitionTranscribesPushedAudio(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _ := startServer(t, ctx)

	stream, err := client.StreamRecognition(ctx)
	if err != nil {
		t.Fatalf("StreamRecognition error: %v", err)
	}
	format := &server.AudioFormat{SampleRate: 16000, BitDepth: 16, Channels: 1}
	if err := stream.Send(&server.StreamRequest{Format: format}); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := stream.Send(&server.StreamRequest{Audio: make([]byte, 1600)}); err != nil {
			t.Fatalf("Send chunk %d error: %v", i, err)
		}
	}
	if err := stream.CloseSend(); err != nil {
		t.Fatalf("CloseSend error: %v", err)
	}

	got := drainStream(t, stream)
	if len(got) != 1 || got[0].Result == nil {
		t.Fatalf("expected one result, got %+v", got)
	}
	if got[0].Result.Text != "simulated transcript of 4800 bytes" {
		t.Fatalf("unexpected text %q", got[0].Result.Text)
	}
}

func TestStreamRecognitionEndsOnLastChunk(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _ := startServer(t, ctx)

	stream, err := client.StreamRecognition(ctx)
	if err != nil {
		t.Fatalf("StreamRecognition error: %v", err)
	}
	if err := stream.Send(&server.StreamRequest{Audio: make([]byte, 800), Last: true}); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	// The send side stays open; the session still ends.
	got := drainStream(t, stream)
	if len(got) != 1 || got[0].Result == nil || got[0].Result.Text != "simulated transcript of 800 bytes" {
		t.Fatalf("unexpected events %+v", got)
	}
}

func TestStreamRecognitionWithFilter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _ := startServer(t, ctx, engine.Say("one two three"))

	stream, err := client.StreamRecognition(ctx)
	if err != nil {
		t.Fatalf("StreamRecognition error: %v", err)
	}
	if err := stream.Send(&server.StreamRequest{Filter: "Recognizing|SessionStopped", Last: true}); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	var (
		partials int
		last     string
	)
	for _, evt := range drainStream(t, stream) {
		last = evt.Result.Flags
		if evt.Result.Flags == "Recognizing|Speech" {
			partials++
		}
	}
	if partials != 2 {
		t.Fatalf("expected 2 partials, got %d", partials)
	}
	if last != "SessionStopped" {
		t.Fatalf("expected stream to end with SessionStopped, got %q", last)
	}
}

func TestStreamRecognitionRejectsBadRequests(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _ := startServer(t, ctx)

	cases := []struct {
		name string
		req  *server.StreamRequest
	}{
		{"unknown filter", &server.StreamRequest{Filter: "Bogus"}},
		{"incomplete format", &server.StreamRequest{Format: &server.AudioFormat{Channels: 2}}},
		{"no request", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stream, err := client.StreamRecognition(ctx)
			if err != nil {
				t.Fatalf("StreamRecognition error: %v", err)
			}
			if tc.req != nil {
				if err := stream.Send(tc.req); err != nil {
					t.Fatalf("Send error: %v", err)
				}
			}
			if err := stream.CloseSend(); err != nil {
				t.Fatalf("CloseSend error: %v", err)
			}
			if _, err := stream.Recv(); status.Code(err) != codes.InvalidArgument {
				t.Fatalf("expected InvalidArgument, got %v", err)
			}
		})
	}
}
