package stepup

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/idforge/stepup/password"
)

// Builder assembles an Engine. A builder is single-use: Build may be called
// once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	directory UserDirectory
	devices   DeviceStore
	history   PasswordHistoryStore
	senders   map[DeliveryChannel]CodeSender
	auditSink AuditSink

	built bool
}

// New creates a builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config:  defaultConfig(),
		senders: make(map[DeliveryChannel]CodeSender),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client backing the resend throttle and the
// verification attempt limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDirectory supplies the credential store adapter. Required.
func (b *Builder) WithDirectory(directory UserDirectory) *Builder {
	b.directory = directory
	return b
}

func (b *Builder) WithDevices(store DeviceStore) *Builder {
	b.devices = store
	return b
}

func (b *Builder) WithPasswordHistory(store PasswordHistoryStore) *Builder {
	b.history = store
	return b
}

// WithSender wires a delivery channel to its dispatcher. Channels without a
// sender reject sends with ChannelNotSupported.
func (b *Builder) WithSender(channel DeliveryChannel, sender CodeSender) *Builder {
	if b.senders == nil {
		b.senders = make(map[DeliveryChannel]CodeSender)
	}
	b.senders[channel] = sender
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wiring and returns the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.directory == nil {
		return nil, ErrDirectoryRequired
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	hasher, err := password.New(password.Params{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	senders := make(map[DeliveryChannel]CodeSender, len(b.senders))
	for channel, sender := range b.senders {
		senders[channel] = sender
	}

	engine := &Engine{
		config:        cfg,
		directory:     b.directory,
		devices:       b.devices,
		history:       b.history,
		senders:       senders,
		throttle:      newThrottleStore(b.redis),
		verifyLimiter: newVerifyLimiter(b.redis, cfg.OTP),
		hasher:        hasher,
		otp:           newCodeGenerator(cfg.OTP),
		audit:         newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:       NewMetrics(cfg.Metrics),
		messages:      NewMessageCatalog(cfg.Messages),
	}

	b.built = true

	return engine, nil
}
