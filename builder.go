package authcore

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/device"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/mfa"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/store"
)

// PasswordVerifier checks a password against its stored encoding.
//
// VerifyDummy runs a full-cost verification against a fixed hash so that a
// login for an unknown email takes as long as one for a known email.
type PasswordVerifier interface {
	Verify(password, encoded string) (bool, error)
	VerifyDummy(password string) bool
}

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config Config

	identities  store.IdentityStore
	memberships store.MembershipStore
	tenants     store.TenantStore
	devices     store.DeviceStore
	tokens      store.RefreshTokenStore
	roles       store.RolePermissionStore

	markers   mfa.MarkerStore
	redis     redis.UniversalClient
	passwords PasswordVerifier
	auditSink AuditSink
	logger    *slog.Logger
	clock     func() time.Time

	built bool
}

// New returns a Builder over DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithIdentityStore(s store.IdentityStore) *Builder {
	b.identities = s
	return b
}

func (b *Builder) WithMembershipStore(s store.MembershipStore) *Builder {
	b.memberships = s
	return b
}

func (b *Builder) WithTenantStore(s store.TenantStore) *Builder {
	b.tenants = s
	return b
}

func (b *Builder) WithDeviceStore(s store.DeviceStore) *Builder {
	b.devices = s
	return b
}

func (b *Builder) WithRefreshTokenStore(s store.RefreshTokenStore) *Builder {
	b.tokens = s
	return b
}

// WithRolePermissionStore sets the role capability store. Without one, every
// lookup is answered by the static table.
func (b *Builder) WithRolePermissionStore(s store.RolePermissionStore) *Builder {
	b.roles = s
	return b
}

// WithMFAMarkerStore sets the verified-marker store used by the MFA gate.
func (b *Builder) WithMFAMarkerStore(s mfa.MarkerStore) *Builder {
	b.markers = s
	return b
}

// WithRedis builds the MFA marker store on client unless WithMFAMarkerStore
// was also called.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPasswordVerifier replaces the argon2id hasher built from Config.Password.
func (b *Builder) WithPasswordVerifier(v PasswordVerifier) *Builder {
	b.passwords = v
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides time.Now across every component.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates the configuration and wires every component. The
// returned Engine is immutable.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch {
	case b.identities == nil:
		return nil, errors.New("identity store required")
	case b.memberships == nil:
		return nil, errors.New("membership store required")
	case b.tenants == nil:
		return nil, errors.New("tenant store required")
	case b.devices == nil:
		return nil, errors.New("device store required")
	case b.tokens == nil:
		return nil, errors.New("refresh token store required")
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	jwtManager, err := jwt.NewManager(cfg.jwtConfig(now))
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}

	passwords := b.passwords
	if passwords == nil {
		h, err := password.New(cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("password: %w", err)
		}
		passwords = h
	}

	totp, err := mfa.NewTOTP(cfg.totpConfig())
	if err != nil {
		return nil, fmt.Errorf("mfa: %w", err)
	}
	markers := b.markers
	if markers == nil && b.redis != nil {
		markers = mfa.NewRedisMarkerStore(b.redis, cfg.MFA.MarkerPrefix)
	}
	var attempts *rate.Limiter
	if b.redis != nil && cfg.MFA.MaxAttempts > 0 {
		attempts = rate.New(b.redis, rate.Config{
			Prefix:      cfg.MFA.AttemptPrefix,
			MaxAttempts: cfg.MFA.MaxAttempts,
			Window:      cfg.MFA.AttemptWindow,
		})
	}

	static, err := cfg.StaticTable()
	if err != nil {
		return nil, fmt.Errorf("permission: %w", err)
	}

	metrics := NewMetrics(cfg.Metrics)

	e := &Engine{
		config:      cfg,
		identities:  b.identities,
		memberships: b.memberships,
		tenants:     b.tenants,
		jwtManager:  jwtManager,
		passwords:   passwords,
		totp:        totp,
		markers:     markers,
		attempts:    attempts,
		metrics:     metrics,
		logger:      logger,
		now:         now,
	}

	e.permissions = permission.NewResolver(b.roles, static,
		permission.WithCacheTTL(cfg.Permission.CacheTTL),
		permission.WithLogger(logger),
		permission.WithClock(now),
		permission.WithFallbackHook(func(string, error) {
			metrics.Inc(MetricPermissionFallback)
		}),
	)
	e.devices = device.NewTracker(b.devices, b.tokens, now)
	e.refresh = refresh.New(b.tokens, jwtManager, e.devices, refresh.Options{
		Now:     now,
		Logger:  logger,
		OnReuse: e.onReuse,
	})
	e.gate = mfa.NewGate(cfg.Tenant.ElevatedRole, markers, cfg.MFA.ChallengeTTL, now)

	if cfg.Audit.Enabled {
		e.audit = audit.NewDispatcher(audit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			OnDrop: func(ev audit.Event, total uint64) {
				logger.Warn("authcore: audit event dropped",
					slog.String("action", string(ev.Action)),
					slog.String("severity", string(ev.Severity)),
					slog.Uint64("dropped_total", total),
				)
			},
		}, b.auditSink)
	}

	e.flows = e.buildFlowDeps()
	b.built = true
	return e, nil
}
