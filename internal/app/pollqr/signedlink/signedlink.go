// Package signedlink issues and verifies expiring, HMAC-authenticated poll links.
//
// A link carries token=base64url(JSON payload) and signature=hex(HMAC-SHA256(payload)).
package signedlink

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"pollqr.local/internal/platform/metrics"
)

// ConfigurationError reports a missing operator setting.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return "signedlink: " + e.Setting + " is not configured"
}

var ErrMissingKey error = &ConfigurationError{Setting: "QR_SIGNING_KEY"}

// Payload is the authenticated content of a link.
type Payload struct {
	PollID          string `json:"pollId"`
	ExpiresAtMillis int64  `json:"expires"`
}

func (p Payload) ExpiresAt() time.Time {
	return time.UnixMilli(p.ExpiresAtMillis)
}

type Signer struct {
	secret []byte
	base   string
	now    func() time.Time
}

type Option func(*Signer)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// New returns a Signer. An empty secret is allowed: Issue then fails with
// ErrMissingKey and Verify rejects everything. baseURL without a scheme gets https.
func New(secret, baseURL string, opts ...Option) *Signer {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "localhost:3000"
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	s := &Signer{
		secret: []byte(secret),
		base:   base,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Signer) Now() time.Time { return s.now() }

// Issue returns a signed link for pollID valid for ttlSeconds from now.
// Non-positive ttl yields a link that is already expired.
func (s *Signer) Issue(pollID string, ttlSeconds int64) (string, error) {
	return s.IssueAt(pollID, s.now().Add(time.Duration(ttlSeconds)*time.Second))
}

// IssueAt returns a signed link for pollID that expires at expiresAt.
func (s *Signer) IssueAt(pollID string, expiresAt time.Time) (string, error) {
	if len(s.secret) == 0 {
		metrics.SignedLinks.WithLabelValues("issue", "error").Inc()
		return "", ErrMissingKey
	}
	raw, err := json.Marshal(Payload{PollID: pollID, ExpiresAtMillis: expiresAt.UnixMilli()})
	if err != nil {
		metrics.SignedLinks.WithLabelValues("issue", "error").Inc()
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	signature := hex.EncodeToString(s.mac(raw))

	metrics.SignedLinks.WithLabelValues("issue", "ok").Inc()
	return s.base + "/polls/" + url.PathEscape(pollID) + "?token=" + token + "&signature=" + signature, nil
}

// Verify returns the payload of a genuine, unexpired link. It fails closed
// and never says why.
func (s *Signer) Verify(token, signature string) (Payload, bool) {
	if len(s.secret) == 0 || token == "" || signature == "" {
		metrics.SignedLinks.WithLabelValues("verify", "invalid").Inc()
		return Payload{}, false
	}
	// Strict: only the exact unpadded encoding produced by IssueAt is accepted.
	raw, err := base64.RawURLEncoding.Strict().DecodeString(token)
	if err != nil {
		metrics.SignedLinks.WithLabelValues("verify", "invalid").Inc()
		return Payload{}, false
	}
	// Compare the canonical lower-case hex text so a case change is a mismatch.
	want := hex.EncodeToString(s.mac(raw))
	if !hmac.Equal([]byte(signature), []byte(want)) {
		metrics.SignedLinks.WithLabelValues("verify", "invalid").Inc()
		return Payload{}, false
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil || p.PollID == "" {
		metrics.SignedLinks.WithLabelValues("verify", "invalid").Inc()
		return Payload{}, false
	}
	if s.now().UnixMilli() > p.ExpiresAtMillis {
		metrics.SignedLinks.WithLabelValues("verify", "expired").Inc()
		return Payload{}, false
	}
	metrics.SignedLinks.WithLabelValues("verify", "ok").Inc()
	return p, true
}

func (s *Signer) mac(msg []byte) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write(msg)
	return h.Sum(nil)
}
