package authcore

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/permission"
)

func TestDefaultConfigNeedsKeys(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "ed25519") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.AccessTTL = time.Hour
	cfg.JWT.RefreshTTL = time.Minute
	cfg.MFA.Digits = 3
	cfg.Log.Format = "xml"
	cfg.Permission.StaticTable = map[string][]string{"AUDITOR": {"reports.read:galaxy"}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"refresh_ttl", "mfa", "log.format", "static_table"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidateShortHS256Secret(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.PrivateKey = []byte("short")
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
}

func writeEd25519Keys(t *testing.T, dir string) (string, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal private: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal public: %v", err)
	}
	privPath := filepath.Join(dir, "signing.pem")
	pubPath := filepath.Join(dir, "signing.pub.pem")
	if err := os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return privPath, pubPath
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	privPath, pubPath := writeEd25519Keys(t, dir)

	yml := `
jwt:
  private_key_file: ` + privPath + `
  public_key_file: ` + pubPath + `
  key_id: k1
  access_ttl: 10m
  refresh_ttl: 72h
tenant:
  admin_tenant_slug: ops
permission:
  cache_ttl: 1m
  static_table:
    VIEWER: ["reports.read:tenant"]
mfa:
  digits: 8
log:
  level: debug
  format: text
`
	path := filepath.Join(dir, "authcore.yaml")
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AUTHCORE_JWT_ISSUER", "auth.example.com")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWT.AccessTTL != 10*time.Minute || cfg.JWT.RefreshTTL != 72*time.Hour {
		t.Fatalf("ttls = %v/%v", cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	}
	if cfg.JWT.Issuer != "auth.example.com" {
		t.Fatalf("issuer = %q", cfg.JWT.Issuer)
	}
	if cfg.JWT.Audience != "platform-api" {
		t.Fatal("unset fields must keep their defaults")
	}
	if len(cfg.JWT.PrivateKey) == 0 || len(cfg.JWT.PublicKey) == 0 {
		t.Fatal("key files must be loaded")
	}
	if cfg.Tenant.AdminTenantSlug != "ops" || cfg.MFA.Digits != 8 || cfg.Log.Format != "text" {
		t.Fatalf("cfg = %+v", cfg)
	}

	table, err := cfg.StaticTable()
	if err != nil {
		t.Fatalf("static table: %v", err)
	}
	caps, _ := table.Lookup(permission.RoleViewer)
	if len(caps) != 1 || caps[0].Resource != "reports" {
		t.Fatalf("viewer override = %+v", caps)
	}
	if caps, ok := table.Lookup(permission.RoleOwner); !ok || len(caps) == 0 {
		t.Fatal("roles without an override keep the built-in entry")
	}
}

func TestLoadConfigSecretFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "authcore.yaml")
	if err := os.WriteFile(path, []byte("jwt:\n  signing_method: hs256\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected missing secret to fail validation")
	}

	t.Setenv("AUTHCORE_JWT_SECRET", testSecret)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(cfg.JWT.PrivateKey) != testSecret {
		t.Fatal("secret must come from the environment")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestBuildClonesConfig(t *testing.T) {
	cfg := testConfig()
	env := newTestEnvWithConfig(t, cfg)
	cfg.JWT.PrivateKey[0] = 'X'

	res := env.login(t, "ada@example.com", laptop)
	if _, err := env.engine.VerifyAccess(t.Context(), res.AccessToken); err != nil {
		t.Fatalf("engine must not observe caller mutation: %v", err)
	}
}

func TestNewLoggerAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	l.Info("dropped")
	l.Warn("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["service"] != "authcore" || rec["version"] != Version || rec["msg"] != "kept" {
		t.Fatalf("record = %v", rec)
	}
}
