package authcore

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/mfa"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/permission"
)

// Config is the process-wide engine configuration.
//
// Config is loaded once at startup. Build clones it, so later mutation of the
// caller's copy has no effect on a running Engine.
type Config struct {
	JWT        JWTConfig        `yaml:"jwt"`
	Tenant     TenantConfig     `yaml:"tenant"`
	Permission PermissionConfig `yaml:"permission"`
	MFA        MFAConfig        `yaml:"mfa"`
	Password   password.Config  `yaml:"password"`
	Audit      AuditConfig      `yaml:"audit"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures token signing and verification.
//
// Key material is loaded from the *File paths by LoadConfig, or set directly
// on PrivateKey/PublicKey/VerifyKeys when building Config in code.
type JWTConfig struct {
	SigningMethod  string            `yaml:"signing_method"` // "ed25519" (default) or "hs256"
	PrivateKeyFile string            `yaml:"private_key_file"`
	PublicKeyFile  string            `yaml:"public_key_file"`
	VerifyKeyFiles map[string]string `yaml:"verify_key_files"`
	KeyID          string            `yaml:"key_id"`
	Issuer         string            `yaml:"issuer"`
	Audience       string            `yaml:"audience"`
	AccessTTL      time.Duration     `yaml:"access_ttl"`
	RefreshTTL     time.Duration     `yaml:"refresh_ttl"`
	Leeway         time.Duration     `yaml:"leeway"`
	MaxFutureIAT   time.Duration     `yaml:"max_future_iat"`

	PrivateKey []byte            `yaml:"-"`
	PublicKey  []byte            `yaml:"-"`
	VerifyKeys map[string][]byte `yaml:"-"`
}

/*
====================================
TENANT CONFIG
====================================
*/

// TenantConfig configures the elevated-role tenant rules.
type TenantConfig struct {
	ElevatedRole    string `yaml:"elevated_role"`
	AdminTenantID   string `yaml:"admin_tenant_id"`
	AdminTenantSlug string `yaml:"admin_tenant_slug"`
	OwnerRole       string `yaml:"owner_role"`
}

// PermissionConfig configures the permission resolver.
//
// StaticTable entries use the "resource.action:scope" form and replace the
// built-in entry of the same role.
type PermissionConfig struct {
	CacheTTL    time.Duration       `yaml:"cache_ttl"`
	StaticTable map[string][]string `yaml:"static_table"`
}

// MFAConfig configures the second-factor gate and TOTP verification.
type MFAConfig struct {
	VerifiedTTL  time.Duration `yaml:"verified_ttl"`
	ChallengeTTL time.Duration `yaml:"challenge_ttl"`
	Issuer       string        `yaml:"issuer"`
	Digits       int           `yaml:"digits"`
	Period       int           `yaml:"period"`
	Skew         int           `yaml:"skew"`
	Algorithm    string        `yaml:"algorithm"`
	MarkerPrefix string        `yaml:"marker_prefix"`

	// MaxAttempts failed codes within AttemptWindow lock verification for the
	// rest of the window. Zero disables the limit. Requires Redis.
	MaxAttempts   int           `yaml:"max_attempts"`
	AttemptWindow time.Duration `yaml:"attempt_window"`
	AttemptPrefix string        `yaml:"attempt_prefix"`
}

// AuditConfig configures asynchronous audit delivery.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig toggles in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"latency_histograms"`
}

// LogConfig configures NewLogger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
	Output string `yaml:"output"` // stdout or stderr
}

// DefaultConfig returns a Config with production defaults. Key material is
// never defaulted.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: string(jwt.MethodEd25519),
			Issuer:        "authcore",
			Audience:      "platform-api",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			Leeway:        30 * time.Second,
			MaxFutureIAT:  10 * time.Minute,
		},
		Tenant: TenantConfig{
			ElevatedRole:    permission.RoleSuperAdmin,
			AdminTenantSlug: "platform",
			OwnerRole:       permission.RoleOwner,
		},
		Permission: PermissionConfig{
			CacheTTL: 30 * time.Second,
		},
		MFA: MFAConfig{
			VerifiedTTL:  5 * time.Minute,
			ChallengeTTL: 5 * time.Minute,
			Issuer:       "authcore",
			Digits:       6,
			Period:       30,
			Skew:         1,
			Algorithm:    "SHA1",
			MarkerPrefix: "mfav",

			MaxAttempts:   5,
			AttemptWindow: 5 * time.Minute,
			AttemptPrefix: "mfaatt",
		},
		Password: password.DefaultConfig(),
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{Enabled: true},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig, applies AUTHCORE_*
// environment overrides, loads key files and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.loadKeyFiles(); err != nil {
		return nil, fmt.Errorf("loading key material: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
// Environment variables follow the pattern AUTHCORE_SECTION_KEY.
func applyEnvOverrides(cfg *Config) {
	// hs256 shared secret; never put it in the YAML file.
	if v := os.Getenv("AUTHCORE_JWT_SECRET"); v != "" {
		cfg.JWT.PrivateKey = []byte(v)
	}
	if v := os.Getenv("AUTHCORE_JWT_ISSUER"); v != "" {
		cfg.JWT.Issuer = v
	}
	if v := os.Getenv("AUTHCORE_JWT_AUDIENCE"); v != "" {
		cfg.JWT.Audience = v
	}
	if v := os.Getenv("AUTHCORE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("AUTHCORE_ADMIN_TENANT_SLUG"); v != "" {
		cfg.Tenant.AdminTenantSlug = v
	}
}

func (c *Config) loadKeyFiles() error {
	if c.JWT.PrivateKeyFile != "" {
		b, err := os.ReadFile(c.JWT.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("private key: %w", err)
		}
		c.JWT.PrivateKey = b
	}
	if c.JWT.PublicKeyFile != "" {
		b, err := os.ReadFile(c.JWT.PublicKeyFile)
		if err != nil {
			return fmt.Errorf("public key: %w", err)
		}
		c.JWT.PublicKey = b
	}
	if len(c.JWT.VerifyKeyFiles) > 0 {
		c.JWT.VerifyKeys = make(map[string][]byte, len(c.JWT.VerifyKeyFiles))
		for kid, path := range c.JWT.VerifyKeyFiles {
			b, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("verify key %q: %w", kid, err)
			}
			c.JWT.VerifyKeys[kid] = b
		}
	}
	return nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	switch jwt.SigningMethod(c.JWT.SigningMethod) {
	case jwt.MethodEd25519:
		if len(c.JWT.PublicKey) == 0 && len(c.JWT.VerifyKeys) == 0 {
			errs = append(errs, "jwt: ed25519 requires a public key or verify key set")
		}
	case jwt.MethodHS256:
		if len(c.JWT.PrivateKey) < 32 {
			errs = append(errs, "jwt: hs256 requires a secret of at least 32 bytes (AUTHCORE_JWT_SECRET)")
		}
	default:
		errs = append(errs, fmt.Sprintf("jwt.signing_method %q is not supported", c.JWT.SigningMethod))
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" || strings.TrimSpace(c.JWT.Audience) == "" {
		errs = append(errs, "jwt.issuer and jwt.audience are required")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		errs = append(errs, "jwt.access_ttl and jwt.refresh_ttl must be positive")
	} else if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		errs = append(errs, "jwt.refresh_ttl must be >= jwt.access_ttl")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		errs = append(errs, "jwt.leeway must be between 0 and 2m")
	}
	if c.JWT.MaxFutureIAT < 0 || c.JWT.MaxFutureIAT > 24*time.Hour {
		errs = append(errs, "jwt.max_future_iat must be between 0 and 24h")
	}

	if c.Tenant.ElevatedRole != "" && c.Tenant.OwnerRole == "" {
		errs = append(errs, "tenant.owner_role is required when tenant.elevated_role is set")
	}

	if c.Permission.CacheTTL < 0 {
		errs = append(errs, "permission.cache_ttl must not be negative")
	}
	for role, specs := range c.Permission.StaticTable {
		if strings.TrimSpace(role) == "" {
			errs = append(errs, "permission.static_table contains an empty role")
			continue
		}
		for _, s := range specs {
			if _, err := permission.ParseCapability(s); err != nil {
				errs = append(errs, fmt.Sprintf("permission.static_table[%s]: %v", role, err))
			}
		}
	}

	if c.MFA.VerifiedTTL <= 0 {
		errs = append(errs, "mfa.verified_ttl must be positive")
	}
	if c.MFA.ChallengeTTL < 0 {
		errs = append(errs, "mfa.challenge_ttl must not be negative")
	}
	if c.MFA.MaxAttempts < 0 {
		errs = append(errs, "mfa.max_attempts must not be negative")
	}
	if c.MFA.MaxAttempts > 0 && c.MFA.AttemptWindow <= 0 {
		errs = append(errs, "mfa.attempt_window must be positive when max_attempts is set")
	}
	if _, err := mfa.NewTOTP(c.totpConfig()); err != nil {
		errs = append(errs, fmt.Sprintf("mfa: %v", err))
	}

	if err := c.Password.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("password: %v", err))
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		errs = append(errs, "audit.buffer_size must be positive when audit is enabled")
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be json or text", c.Log.Format))
	}
	switch strings.ToLower(c.Log.Output) {
	case "", "stdout", "stderr":
	default:
		errs = append(errs, fmt.Sprintf("log.output %q must be stdout or stderr", c.Log.Output))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) totpConfig() mfa.TOTPConfig {
	return mfa.TOTPConfig{
		Issuer:    c.MFA.Issuer,
		Digits:    c.MFA.Digits,
		Period:    c.MFA.Period,
		Skew:      c.MFA.Skew,
		Algorithm: c.MFA.Algorithm,
	}
}

func (c *Config) jwtConfig(clock func() time.Time) jwt.Config {
	return jwt.Config{
		SigningMethod: jwt.SigningMethod(c.JWT.SigningMethod),
		PrivateKey:    c.JWT.PrivateKey,
		PublicKey:     c.JWT.PublicKey,
		KeyID:         c.JWT.KeyID,
		VerifyKeys:    c.JWT.VerifyKeys,
		Issuer:        c.JWT.Issuer,
		Audience:      c.JWT.Audience,
		AccessTTL:     c.JWT.AccessTTL,
		RefreshTTL:    c.JWT.RefreshTTL,
		Leeway:        c.JWT.Leeway,
		MaxFutureIAT:  c.JWT.MaxFutureIAT,
		Clock:         clock,
	}
}

// StaticTable returns the built-in table with configured roles replacing
// their built-in entries.
func (c *Config) StaticTable() (*permission.Table, error) {
	if len(c.Permission.StaticTable) == 0 {
		return permission.DefaultTable(), nil
	}
	def := permission.DefaultTable()
	t := permission.NewTable()
	for _, role := range def.Roles() {
		if _, overridden := c.Permission.StaticTable[role]; overridden {
			continue
		}
		caps, _ := def.Lookup(role)
		if err := t.Register(role, caps...); err != nil {
			return nil, err
		}
	}
	for role, specs := range c.Permission.StaticTable {
		if err := t.RegisterStrings(role, specs); err != nil {
			return nil, err
		}
	}
	t.Freeze()
	return t, nil
}

func cloneConfig(in Config) Config {
	out := in
	out.JWT.PrivateKey = cloneBytes(in.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(in.JWT.PublicKey)
	if in.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(in.JWT.VerifyKeys))
		for kid, key := range in.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	if in.JWT.VerifyKeyFiles != nil {
		out.JWT.VerifyKeyFiles = make(map[string]string, len(in.JWT.VerifyKeyFiles))
		for kid, path := range in.JWT.VerifyKeyFiles {
			out.JWT.VerifyKeyFiles[kid] = path
		}
	}
	if in.Permission.StaticTable != nil {
		out.Permission.StaticTable = make(map[string][]string, len(in.Permission.StaticTable))
		for role, specs := range in.Permission.StaticTable {
			out.Permission.StaticTable[role] = append([]string(nil), specs...)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
