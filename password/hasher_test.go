package password

import (
	"errors"
	"strings"
	"testing"
)

func fastConfig() Config {
	return Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func newHasher(t *testing.T, cfg Config) *Hasher {
	t.Helper()
	h, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := newHasher(t, fastConfig())
	encoded, err := h.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding %q", encoded)
	}

	ok, err := h.Verify("correct horse battery", encoded)
	if err != nil || !ok {
		t.Fatalf("verify: %v %v", ok, err)
	}
	ok, err = h.Verify("wrong horse battery", encoded)
	if err != nil || ok {
		t.Fatalf("wrong password verified: %v %v", ok, err)
	}

	again, _ := h.Hash("correct horse battery")
	if again == encoded {
		t.Fatal("salts must differ between hashes")
	}
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	h := newHasher(t, fastConfig())
	valid, _ := h.Hash("correct horse battery")
	parts := strings.Split(valid, "$")

	tests := map[string]string{
		"empty":         "",
		"bcrypt":        "$2a$10$abcdefghijklmnopqrstuv",
		"wrong version": strings.Replace(valid, "v=19", "v=16", 1),
		"weak memory":   strings.Replace(valid, "m=8192", "m=1024", 1),
		"unknown param": strings.Replace(valid, "p=1", "x=1", 1),
		"short salt":    "$" + strings.Join([]string{parts[1], parts[2], parts[3], "c2FsdA", parts[5]}, "$"),
	}
	for name, encoded := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := h.Verify("correct horse battery", encoded); !errors.Is(err, ErrInvalidHash) {
				t.Fatalf("expected ErrInvalidHash, got %v", err)
			}
		})
	}
}

func TestPasswordLengthBounds(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxPasswordBytes = 32
	h := newHasher(t, cfg)

	if _, err := h.Hash("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if _, err := h.Hash(strings.Repeat("a", 33)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	if _, err := h.Hash(strings.Repeat("a", 32)); err != nil {
		t.Fatalf("max length must be accepted: %v", err)
	}
	if _, err := h.Verify(strings.Repeat("a", 33), "$argon2id$"); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong on verify, got %v", err)
	}
}

func TestNeedsRehash(t *testing.T) {
	weak := newHasher(t, fastConfig())
	encoded, _ := weak.Hash("correct horse battery")

	if again, err := weak.NeedsRehash(encoded); err != nil || again {
		t.Fatalf("same parameters must not need rehash: %v %v", again, err)
	}

	stronger := fastConfig()
	stronger.Time = 2
	if again, err := newHasher(t, stronger).NeedsRehash(encoded); err != nil || !again {
		t.Fatalf("stronger parameters must need rehash: %v %v", again, err)
	}
}

func TestVerifyDummyNeverMatches(t *testing.T) {
	h := newHasher(t, fastConfig())
	if h.VerifyDummy("anything at all") {
		t.Fatal("dummy verification must fail")
	}
	if h.VerifyDummy(strings.Repeat("x", 4096)) {
		t.Fatal("dummy verification must fail for oversized input")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	bad := fastConfig()
	bad.SaltLength = 8
	if _, err := New(bad); err == nil {
		t.Fatal("short salt must be rejected")
	}
}
