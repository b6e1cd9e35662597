package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrEthical07/authcore/store"
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithCacheTTL caches successful store lookups for ttl. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.cacheTTL = ttl }
}

// WithLogger sets the logger used for fallback warnings.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides time.Now for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithFallbackHook is called every time the static table answers because the
// store failed.
func WithFallbackHook(fn func(role string, err error)) Option {
	return func(r *Resolver) { r.onFallback = fn }
}

// Resolver answers role capability queries.
//
// Resolver is safe for concurrent use. Its only state is the optional lookup
// cache and the fallback counter.
type Resolver struct {
	store      store.RolePermissionStore
	static     *Table
	cacheTTL   time.Duration
	cache      *capabilityCache
	group      singleflight.Group
	fallbacks  atomic.Uint64
	logger     *slog.Logger
	now        func() time.Time
	onFallback func(role string, err error)
}

// NewResolver returns a Resolver. rs may be nil, in which case every lookup is
// answered by static. static defaults to DefaultTable.
func NewResolver(rs store.RolePermissionStore, static *Table, opts ...Option) *Resolver {
	if static == nil {
		static = DefaultTable()
	}
	r := &Resolver{
		store:    rs,
		static:   static,
		cacheTTL: 30 * time.Second,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cacheTTL > 0 {
		r.cache = newCapabilityCache(r.cacheTTL, r.now)
	}
	return r
}

// Capabilities returns role's capability list, preferring the store.
func (r *Resolver) Capabilities(ctx context.Context, role string) []Capability {
	if r.store == nil {
		caps, _ := r.static.Lookup(role)
		return caps
	}
	if caps, ok := r.cache.get(role); ok {
		return caps
	}

	v, err, _ := r.group.Do(role, func() (interface{}, error) {
		rows, err := r.store.RoleCapabilities(ctx, role)
		if err != nil {
			return nil, err
		}
		caps := r.fromRows(role, rows)
		if len(caps) == 0 {
			if static, ok := r.static.Lookup(role); ok {
				return static, nil
			}
		}
		r.cache.set(role, caps)
		return caps, nil
	})
	if err != nil {
		return r.fallback(ctx, role, err)
	}
	return v.([]Capability)
}

func (r *Resolver) fromRows(role string, rows []store.RolePermission) []Capability {
	caps := make([]Capability, 0, len(rows))
	for _, row := range rows {
		c := Capability{Resource: row.Resource, Action: row.Action, Scope: Scope(row.Scope)}
		if c.Resource == "" || c.Action == "" || !c.Scope.Valid() {
			r.logger.Warn("authcore: skipping malformed role capability",
				slog.String("role", role),
				slog.String("capability", fmt.Sprintf("%s.%s:%s", row.Resource, row.Action, row.Scope)),
			)
			continue
		}
		caps = append(caps, c)
	}
	return caps
}

func (r *Resolver) fallback(ctx context.Context, role string, cause error) []Capability {
	r.fallbacks.Add(1)
	if r.onFallback != nil {
		r.onFallback(role, cause)
	}
	caps, ok := r.static.Lookup(role)
	r.logger.WarnContext(ctx, "authcore: role permission store failed, using static table",
		slog.String("role", role),
		slog.Bool("static_hit", ok),
		slog.String("error", cause.Error()),
	)
	return caps
}

// HasPermission reports whether role may perform action on resource at scope.
func (r *Resolver) HasPermission(ctx context.Context, role, resource, action string, scope Scope) bool {
	if !scope.Valid() {
		return false
	}
	return Any(r.Capabilities(ctx, role), resource, action, scope)
}

// UserPermissions flattens role's capabilities into "resource.action" names.
func (r *Resolver) UserPermissions(ctx context.Context, role string) []string {
	return Names(r.Capabilities(ctx, role))
}

// Fallbacks returns how many lookups were answered by the static table because
// the store failed.
func (r *Resolver) Fallbacks() uint64 {
	return r.fallbacks.Load()
}

// Invalidate drops cached store results, for use after role permissions change.
func (r *Resolver) Invalidate() {
	r.cache.purge()
}

// ErrUnknownRole is returned by Check for roles with no capabilities anywhere.
var ErrUnknownRole = errors.New("unknown role")

// Check is HasPermission with an error for unknown roles, for tooling.
func (r *Resolver) Check(ctx context.Context, role, resource, action string, scope Scope) (bool, error) {
	caps := r.Capabilities(ctx, role)
	if len(caps) == 0 {
		return false, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	return Any(caps, resource, action, scope), nil
}
