// Command authcore-loadtest drives Login, VerifyAccess and Refresh
// concurrently against an Engine whose refresh tokens and devices live in
// Redis, and reports latency percentiles per phase.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	mrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/device"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/store/memstore"
	"github.com/MrEthical07/authcore/store/redisstore"
)

type userState struct {
	email   string
	device  device.Context
	access  string
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 2000, "number of identities to seed and log in")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per verify and refresh phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt", "redis key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, states, err := setup(client, *prefix, *users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	loginStats := runLoginPhase(ctx, engine, states, *concurrency)
	verifyStats := runVerifyPhase(ctx, engine, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("verify", verifyStats)
	printStats("refresh", refreshStats)
}

func setup(client redis.UniversalClient, prefix string, users int) (*authcore.Engine, []userState, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	cfg := authcore.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.Metrics.EnableLatencyHistograms = true
	// Minimum argon2id cost; login latency otherwise measures the hash.
	cfg.Password = password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

	hasher, err := password.New(cfg.Password)
	if err != nil {
		return nil, nil, err
	}
	hash, err := hasher.Hash("load-test-password")
	if err != nil {
		return nil, nil, err
	}

	directory := memstore.New()
	directory.PutTenant(store.Tenant{ID: "t-load", Slug: "load", Active: true, Status: store.StatusActive})
	states := make([]userState, users)
	fmt.Printf("seeding %d identities...\n", users)
	for i := range states {
		id := fmt.Sprintf("u-%d", i)
		states[i].email = id + "@load.test"
		states[i].device = device.Context{UserAgent: "loadtest/1.0", Platform: fmt.Sprintf("worker-%d", i%16)}
		directory.PutIdentity(store.Identity{ID: id, Email: states[i].email, PasswordHash: hash, GlobalRole: "USER", Active: true, Status: store.StatusActive})
		directory.GrantMembership(store.TenantMembership{UserID: id, TenantID: "t-load", Role: permission.RoleStaffMember})
	}

	sessions := redisstore.New(client, prefix)
	engine, err := authcore.New().
		WithConfig(cfg).
		WithIdentityStore(directory).
		WithMembershipStore(directory).
		WithTenantStore(directory).
		WithDeviceStore(sessions).
		WithRefreshTokenStore(sessions).
		WithRedis(client).
		WithPasswordVerifier(hasher).
		WithLogger(authcore.NewLogger(authcore.LogConfig{Level: "error", Output: "stderr"})).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return engine, states, nil
}

func runLoginPhase(ctx context.Context, engine *authcore.Engine, states []userState, concurrency int) phaseStats {
	return runPhase(len(states), concurrency, func(i int, _ *mrand.Rand) error {
		s := &states[i]
		res, err := engine.Login(ctx, authcore.LoginRequest{Email: s.email, Password: "load-test-password", Device: s.device})
		if err != nil {
			return err
		}
		s.access, s.refresh = res.AccessToken, res.RefreshToken
		return nil
	})
}

func runVerifyPhase(ctx context.Context, engine *authcore.Engine, states []userState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, func(_ int, r *mrand.Rand) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		token := s.access
		s.mu.Unlock()
		_, err := engine.VerifyAccess(ctx, token)
		return err
	})
}

func runRefreshPhase(ctx context.Context, engine *authcore.Engine, states []userState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, func(_ int, r *mrand.Rand) error {
		s := &states[r.Intn(len(states))]
		// Serialized per user; concurrent presentation of one token is reuse.
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := engine.Refresh(ctx, s.refresh, s.device)
		if err != nil {
			return err
		}
		s.access, s.refresh = res.AccessToken, res.RefreshToken
		return nil
	})
}

func runPhase(ops, concurrency int, op func(i int, r *mrand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i, r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
