// Package session drives recognizers and synthesizers through their
// Idle, Running, Stopped and Closed states and exposes their callbacks as
// event streams.
package session

import (
	"log/slog"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/bridge"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/events"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/stream"
)

// Observer receives session lifecycle and delivery counters.
// telemetry.Recorder implements it.
type Observer interface {
	bridge.Observer
	stream.Observer
	SessionStarted()
	SessionStopped()
	OneShot()
}

type nopObserver struct{}

func (nopObserver) EventDelivered()       {}
func (nopObserver) CallbackDropped()      {}
func (nopObserver) ClassificationFailed() {}
func (nopObserver) SessionStarted()       {}
func (nopObserver) SessionStopped()       {}
func (nopObserver) OneShot()              {}

// Client holds the engine-wide state shared by every session: the callback
// registry and the result resolver.
type Client struct {
	api      spx.Engine
	log      *slog.Logger
	observer Observer
	registry *bridge.Registry
	resolver *events.Resolver
}

// NewClient binds a Client to an engine. observer may be nil.
func NewClient(api spx.Engine, logger *slog.Logger, observer Observer) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Client{
		api:      api,
		log:      logger,
		observer: observer,
		registry: bridge.NewRegistry(api, logger, observer),
		resolver: events.NewResolver(api, logger),
	}
}

// Engine returns the underlying engine.
func (c *Client) Engine() spx.Engine { return c.api }

// Registry returns the callback registry.
func (c *Client) Registry() *bridge.Registry { return c.registry }

// Resolver returns the result resolver.
func (c *Client) Resolver() *events.Resolver { return c.resolver }
