// Command authctl is the operator tool for authcore deployments.
//
// Usage:
//
//	authctl check-config -config authcore.yaml
//	authctl permissions  -config authcore.yaml [-dsn postgres://...] ROLE
//	authctl can          -config authcore.yaml [-dsn postgres://...] ROLE resource.action:scope
//	authctl inspect      [-config authcore.yaml] TOKEN
//	authctl enroll-mfa   -config authcore.yaml ACCOUNT
//	authctl migrate      -dsn postgres://...
//	authctl revoke-all   -config authcore.yaml -dsn postgres://... [-reason text] USER_ID
//
// The DSN may also come from AUTHCORE_DATABASE_URL.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/mfa"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/store/pgstore"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type command struct {
	name string
	help string
	run  func(ctx context.Context, args []string, out io.Writer) error
}

func commands() []command {
	return []command{
		{"check-config", "validate a configuration file", checkConfig},
		{"permissions", "list the permissions a role resolves to", listPermissions},
		{"can", "check one capability for a role", canDo},
		{"inspect", "decode a token, verifying it when -config is given", inspect},
		{"enroll-mfa", "generate a TOTP secret and provisioning URI", enrollMFA},
		{"migrate", "apply the PostgreSQL schema", migrate},
		{"revoke-all", "revoke every session of a user", revokeAll},
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}
	for _, c := range commands() {
		if c.name != args[0] {
			continue
		}
		err := c.run(ctx, args[1:], stdout)
		switch {
		case err == nil:
			return exitOK
		case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
			fmt.Fprintf(stderr, "%s: %v\n", c.name, err)
			return exitUsage
		default:
			fmt.Fprintf(stderr, "%s: %v\n", c.name, err)
			return exitFail
		}
	}
	usage(stderr)
	return exitUsage
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: authctl <command> [flags] [args]")
	for _, c := range commands() {
		fmt.Fprintf(w, "  %-13s %s\n", c.name, c.help)
	}
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func loadConfig(path string) (*authcore.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: -config is required", errUsage)
	}
	return authcore.LoadConfig(path)
}

func dsnOrEnv(dsn string) string {
	if dsn != "" {
		return dsn
	}
	return os.Getenv("AUTHCORE_DATABASE_URL")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func checkConfig(_ context.Context, args []string, out io.Writer) error {
	fs := newFlags("check-config")
	path := fs.String("config", "", "path to the YAML configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "ok: signing=%s issuer=%s audience=%s access_ttl=%s refresh_ttl=%s elevated_role=%s\n",
		cfg.JWT.SigningMethod, cfg.JWT.Issuer, cfg.JWT.Audience,
		cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL, cfg.Tenant.ElevatedRole)
	return nil
}

// resolver builds a permission resolver over the configured static table and,
// when a DSN is set, the PostgreSQL role permission table.
func resolver(cfgPath, dsn string) (*permission.Resolver, func(), error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	static, err := cfg.StaticTable()
	if err != nil {
		return nil, nil, err
	}
	logger := authcore.NewLogger(authcore.LogConfig{Level: "warn", Output: "stderr", Format: "text"})

	dsn = dsnOrEnv(dsn)
	if dsn == "" {
		return permission.NewResolver(nil, static, permission.WithLogger(logger)), func() {}, nil
	}
	pg, err := pgstore.Open(dsn)
	if err != nil {
		return nil, nil, err
	}
	r := permission.NewResolver(pg, static, permission.WithLogger(logger), permission.WithCacheTTL(0))
	return r, func() { _ = pg.Close() }, nil
}

func listPermissions(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("permissions")
	path := fs.String("config", "", "path to the YAML configuration")
	dsn := fs.String("dsn", "", "PostgreSQL DSN for stored role permissions")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: expected ROLE", errUsage)
	}
	r, done, err := resolver(*path, *dsn)
	if err != nil {
		return err
	}
	defer done()

	role := fs.Arg(0)
	caps := r.Capabilities(ctx, role)
	if len(caps) == 0 {
		return fmt.Errorf("%w: %s", permission.ErrUnknownRole, role)
	}
	for _, c := range caps {
		fmt.Fprintln(out, c.String())
	}
	return nil
}

func canDo(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("can")
	path := fs.String("config", "", "path to the YAML configuration")
	dsn := fs.String("dsn", "", "PostgreSQL DSN for stored role permissions")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("%w: expected ROLE resource.action:scope", errUsage)
	}
	want, err := permission.ParseCapability(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	r, done, err := resolver(*path, *dsn)
	if err != nil {
		return err
	}
	defer done()

	ok, err := r.Check(ctx, fs.Arg(0), want.Resource, want.Action, want.Scope)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintln(out, "allowed")
	} else {
		fmt.Fprintln(out, "denied")
	}
	return nil
}

type inspection struct {
	Verified  bool        `json:"verified"`
	VerifyErr string      `json:"verifyError,omitempty"`
	ExpiresAt time.Time   `json:"expiresAt"`
	Claims    *jwt.Claims `json:"claims"`
}

func inspect(_ context.Context, args []string, out io.Writer) error {
	fs := newFlags("inspect")
	path := fs.String("config", "", "path to the YAML configuration; enables signature verification")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: expected TOKEN", errUsage)
	}
	token := strings.TrimSpace(fs.Arg(0))

	claims, err := jwt.DecodeUnverified(token)
	if err != nil {
		return err
	}
	res := inspection{Claims: claims}
	if claims.ExpiresAt != nil {
		res.ExpiresAt = claims.ExpiresAt.Time
	}

	if *path != "" {
		cfg, err := loadConfig(*path)
		if err != nil {
			return err
		}
		m, err := jwt.NewManager(jwt.Config{
			SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
			PrivateKey:    cfg.JWT.PrivateKey,
			PublicKey:     cfg.JWT.PublicKey,
			KeyID:         cfg.JWT.KeyID,
			VerifyKeys:    cfg.JWT.VerifyKeys,
			Issuer:        cfg.JWT.Issuer,
			Audience:      cfg.JWT.Audience,
			AccessTTL:     cfg.JWT.AccessTTL,
			RefreshTTL:    cfg.JWT.RefreshTTL,
			Leeway:        cfg.JWT.Leeway,
			MaxFutureIAT:  cfg.JWT.MaxFutureIAT,
		})
		if err != nil {
			return err
		}
		parse := m.ParseAccess
		if claims.Type == jwt.TypeRefresh {
			parse = m.ParseRefresh
		}
		if _, err := parse(token); err != nil {
			res.VerifyErr = err.Error()
		} else {
			res.Verified = true
		}
	}
	return writeJSON(out, res)
}

func enrollMFA(_ context.Context, args []string, out io.Writer) error {
	fs := newFlags("enroll-mfa")
	path := fs.String("config", "", "path to the YAML configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: expected ACCOUNT", errUsage)
	}
	cfg, err := loadConfig(*path)
	if err != nil {
		return err
	}
	totp, err := mfa.NewTOTP(mfa.TOTPConfig{
		Issuer:    cfg.MFA.Issuer,
		Digits:    cfg.MFA.Digits,
		Period:    cfg.MFA.Period,
		Skew:      cfg.MFA.Skew,
		Algorithm: cfg.MFA.Algorithm,
	})
	if err != nil {
		return err
	}
	_, secret, err := totp.GenerateSecret()
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]string{
		"secret": secret,
		"uri":    totp.ProvisionURI(secret, fs.Arg(0)),
	})
}

func migrate(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("migrate")
	dsn := fs.String("dsn", "", "PostgreSQL DSN")
	if err := fs.Parse(args); err != nil {
		return err
	}
	d := dsnOrEnv(*dsn)
	if d == "" {
		return fmt.Errorf("%w: -dsn or AUTHCORE_DATABASE_URL is required", errUsage)
	}
	pg, err := pgstore.Open(d)
	if err != nil {
		return err
	}
	defer pg.Close()
	if err := pg.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "applied %d statements\n", len(pgstore.Statements()))
	return nil
}

func revokeAll(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("revoke-all")
	path := fs.String("config", "", "path to the YAML configuration")
	dsn := fs.String("dsn", "", "PostgreSQL DSN")
	reason := fs.String("reason", "operator revoke", "reason recorded on the audit event")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: expected USER_ID", errUsage)
	}
	d := dsnOrEnv(*dsn)
	if d == "" {
		return fmt.Errorf("%w: -dsn or AUTHCORE_DATABASE_URL is required", errUsage)
	}
	cfg, err := loadConfig(*path)
	if err != nil {
		return err
	}
	cfg.Audit.Enabled = true
	logger := authcore.NewLogger(cfg.Log)

	pg, err := pgstore.Open(d)
	if err != nil {
		return err
	}
	defer pg.Close()

	engine, err := authcore.New().
		WithConfig(*cfg).
		WithIdentityStore(pg).
		WithMembershipStore(pg).
		WithTenantStore(pg).
		WithDeviceStore(pg).
		WithRefreshTokenStore(pg).
		WithRolePermissionStore(pg).
		WithAuditSink(authcore.NewSlogSink(logger)).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	res, err := engine.RevokeAllSessions(ctx, fs.Arg(0), *reason)
	if err != nil {
		logger.ErrorContext(ctx, "revoke-all failed", slog.String("user_id", fs.Arg(0)), slog.String("error", err.Error()))
		return err
	}
	fmt.Fprintf(out, "revoked %d tokens, deactivated %d devices\n", res.Tokens, res.Devices)
	return nil
}
