package device

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// Context carries the client signals observed on one request.
type Context struct {
	UserAgent      string
	Platform       string
	AcceptLanguage string
	IP             string
}

// FromRequest reads device signals from r. ip is passed separately because the
// caller decides how to trust proxy headers.
func FromRequest(r *http.Request, ip string) Context {
	if r == nil {
		return Context{IP: ip}
	}
	return Context{
		UserAgent:      r.Header.Get("User-Agent"),
		Platform:       strings.Trim(r.Header.Get("Sec-CH-UA-Platform"), `"`),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		IP:             ip,
	}
}

// Fingerprint hashes the ordered client signals into a device id.
//
// The components are user agent, platform and accept-language, joined with '|'.
// The IP only participates when all three are empty.
func Fingerprint(c Context) string {
	parts := []string{
		strings.TrimSpace(c.UserAgent),
		strings.TrimSpace(c.Platform),
		strings.TrimSpace(c.AcceptLanguage),
	}
	if parts[0] == "" && parts[1] == "" && parts[2] == "" {
		parts = append(parts, "ip:"+strings.TrimSpace(c.IP))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
