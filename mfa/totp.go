package mfa

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const totpSecretBytes = 20

var (
	// ErrEmptySecret is returned when verifying against an identity with no secret.
	ErrEmptySecret = errors.New("empty totp secret")
	// ErrUnsupportedAlgorithm is returned for hash names other than SHA1, SHA256 and SHA512.
	ErrUnsupportedAlgorithm = errors.New("unsupported totp algorithm")
)

// TOTPConfig holds RFC 6238 parameters.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Skew      int
	Algorithm string
}

// TOTP generates secrets and verifies codes.
type TOTP struct {
	config TOTPConfig
}

// NewTOTP returns a TOTP. Zero Digits, Period and Algorithm default to 6, 30s
// and SHA1. Skew is taken as given.
func NewTOTP(cfg TOTPConfig) (*TOTP, error) {
	if cfg.Digits == 0 {
		cfg.Digits = 6
	}
	if cfg.Period == 0 {
		cfg.Period = 30
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	if cfg.Digits != 6 && cfg.Digits != 8 {
		return nil, errors.New("totp digits must be 6 or 8")
	}
	if cfg.Period <= 0 || cfg.Skew < 0 || cfg.Skew > 3 {
		return nil, errors.New("invalid totp period or skew")
	}
	if _, err := hmacFunc(cfg.Algorithm); err != nil {
		return nil, err
	}
	return &TOTP{config: cfg}, nil
}

// GenerateSecret returns a random secret and its unpadded base32 form.
func (t *TOTP) GenerateSecret() ([]byte, string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	return raw, encoding().EncodeToString(raw), nil
}

// ProvisionURI returns the otpauth:// URI authenticator apps consume.
func (t *TOTP) ProvisionURI(secretBase32, account string) string {
	issuer := t.config.Issuer
	label := url.PathEscape(issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", issuer)
	v.Set("period", strconv.Itoa(t.config.Period))
	v.Set("digits", strconv.Itoa(t.config.Digits))
	v.Set("algorithm", strings.ToUpper(t.config.Algorithm))

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// VerifyBase32 decodes secretBase32 and checks code at now.
func (t *TOTP) VerifyBase32(secretBase32, code string, now time.Time) (bool, error) {
	secretBase32 = strings.ToUpper(strings.TrimRight(strings.TrimSpace(secretBase32), "="))
	if secretBase32 == "" {
		return false, ErrEmptySecret
	}
	secret, err := encoding().DecodeString(secretBase32)
	if err != nil {
		return false, fmt.Errorf("decode totp secret: %w", err)
	}
	ok, _, err := t.Verify(secret, code, now)
	return ok, err
}

// Verify checks code against secret within the configured skew and returns the
// matching counter.
func (t *TOTP) Verify(secret []byte, code string, now time.Time) (bool, int64, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != t.config.Digits || !isNumeric(trimmed) {
		return false, 0, nil
	}
	if len(secret) == 0 {
		return false, 0, ErrEmptySecret
	}

	base := now.Unix() / int64(t.config.Period)
	for step := -t.config.Skew; step <= t.config.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotp(secret, counter, t.config.Digits, t.config.Algorithm)
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, counter, nil
		}
	}
	return false, 0, nil
}

// Code returns the code for secret at now. It exists for enrollment checks and tests.
func (t *TOTP) Code(secret []byte, now time.Time) (string, error) {
	return hotp(secret, now.Unix()/int64(t.config.Period), t.config.Digits, t.config.Algorithm)
}

func hotp(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

func encoding() *base32.Encoding {
	return base32.StdEncoding.WithPadding(base32.NoPadding)
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
