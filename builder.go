package fundauth

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/campuskit/fundauth/credential"
)

// Builder assembles a [Client]. Single-use: Build may be called once.
type Builder struct {
	config Config
	store  credential.Store
	base   http.RoundTripper
	bus    *Bus
	logger zerolog.Logger

	onSessionEnd func(Event)

	built bool
}

// New returns a builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithBaseURL sets the API base URL, keeping the rest of the defaults.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.API.BaseURL = baseURL
	return b
}

// WithStore injects a credential store. The default is an in-memory store
// honoring Config.Credential.SkewMargin.
func (b *Builder) WithStore(store credential.Store) *Builder {
	b.store = store
	return b
}

// WithBaseTransport injects the underlying round tripper the coordinator
// dispatches through. The default is http.DefaultTransport.
func (b *Builder) WithBaseTransport(base http.RoundTripper) *Builder {
	b.base = base
	return b
}

// WithBus injects a shared session event bus, for applications that wire
// additional subscribers (logout modals, route guards) before building the
// client.
func (b *Builder) WithBus(bus *Bus) *Builder {
	b.bus = bus
	return b
}

// WithLogger sets the structured logger. The default discards everything.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithSessionEndHandler registers a callback invoked with every session
// event the client observes, after its own state has been cleared.
func (b *Builder) WithSessionEndHandler(fn func(Event)) *Builder {
	b.onSessionEnd = fn
	return b
}

// WithMetricsEnabled toggles counter recording.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the request-latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires the components, performs the
// synchronous credential restore, and only then marks the event bus ready.
// The returned client is safe for concurrent use.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	if err := validateConfig(b.config); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		store = credential.NewMemoryStore(b.config.Credential.SkewMargin)
	}
	bus := b.bus
	if bus == nil {
		bus = NewBus(b.logger)
	}

	metrics := NewMetrics(b.config.Metrics)
	transport := NewTransport(b.base, store, bus, metrics, b.logger, b.config.API)

	c := &Client{
		cfg:          b.config,
		store:        store,
		bus:          bus,
		transport:    transport,
		metrics:      metrics,
		logger:       b.logger,
		onSessionEnd: b.onSessionEnd,
		http: &http.Client{
			Transport: transport,
			Timeout:   b.config.API.RequestTimeout,
		},
	}
	c.idle = NewIdleMonitor(b.config.Idle, c.idleTimedOut)
	c.sub = bus.Subscribe(c.handleEvent)

	// Restore must finish before the bus is marked ready: a refreshed
	// process with stale credentials would otherwise announce a logout
	// before anyone could know whether the stored pair is usable.
	c.restore()
	bus.MarkReady()

	return c, nil
}
