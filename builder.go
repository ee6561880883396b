package authgate

import (
	"fmt"
	"log/slog"

	"github.com/takaatuf/authgate/redirect"
	"github.com/takaatuf/authgate/storage"
)

// Builder assembles a [Context]. Construction is allocation-only; no
// storage I/O happens until [Context.Hydrate].
type Builder struct {
	config  Config
	st      storage.Storage
	backend AuthBackend
	sink    AuditSink
	logger  *slog.Logger
	built   bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStorage sets the durable storage driver. Without one, Build falls
// back to an in-process [storage.Memory], which is only appropriate for
// tests and single-run tools.
func (b *Builder) WithStorage(st storage.Storage) *Builder {
	b.st = st
	return b
}

// WithBackend sets the AuthBackend capability. Optional: a Context without
// a backend still supports Login/Logout and the full gate chain, but the
// network flows return ErrNoBackend.
func (b *Builder) WithBackend(backend AuthBackend) *Builder {
	b.backend = backend
	return b
}

// WithAuditSink sets the audit sink and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithLogger sets the structured logger used for swallowed failures.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles the atomic counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and constructs the Context. A Builder
// builds at most once.
func (b *Builder) Build() (*Context, error) {
	if b.built {
		return nil, fmt.Errorf("%w: builder already used", ErrConfigInvalid)
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	st := b.st
	if st == nil {
		st = storage.NewMemory()
	}

	c := &Context{
		config:  b.config,
		st:      st,
		store:   NewSessionStore(st, b.config.Session, logger),
		backend: b.backend,
		audit:   newAuditDispatcher(b.config.Audit, b.sink),
		metrics: newMetrics(b.config.Metrics),
		log:     logger,
	}
	c.intents = redirect.NewIntentStore(st, redirect.Keys{
		Login:    b.config.Redirect.LoginKey,
		Profile:  b.config.Redirect.ProfileKey,
		Location: b.config.Redirect.LocationKey,
	})

	b.built = true
	return c, nil
}
