package pollqr

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	// DefaultMaxURLLength is the display-safety ceiling for encoded links.
	DefaultMaxURLLength = 2048
	// MaxQRCapacity is the largest payload a code can carry at the chosen error-correction level.
	MaxQRCapacity = 4296

	maxHostLength = 253
)

var pollIDRe = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// ValidateIdentifier reports whether raw is a version-4 UUID in canonical
// dashed form. Hex digits may be upper or lower case.
func ValidateIdentifier(raw string) bool {
	return pollIDRe.MatchString(raw)
}

// StripScheme removes a leading http:// or https://.
func StripScheme(host string) string {
	if rest, ok := strings.CutPrefix(host, "https://"); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(host, "http://"); ok {
		return rest
	}
	return host
}

// HostValidator maps caller-supplied hosts onto an allow-list.
type HostValidator struct {
	allowed     map[string]struct{}
	defaultHost string
}

func NewHostValidator(allowed []string, defaultHost string) *HostValidator {
	set := make(map[string]struct{}, len(allowed))
	for _, h := range allowed {
		if h = StripScheme(strings.TrimSpace(h)); h != "" {
			set[h] = struct{}{}
		}
	}
	defaultHost = strings.TrimRight(StripScheme(strings.TrimSpace(defaultHost)), "/")
	if defaultHost == "" {
		defaultHost = "localhost:3000"
	}
	return &HostValidator{allowed: set, defaultHost: defaultHost}
}

// Validate returns raw without its scheme when it is allow-listed and the
// default host otherwise. It never fails.
func (v *HostValidator) Validate(raw string) string {
	host := StripScheme(raw)
	if _, ok := v.allowed[host]; ok {
		return host
	}
	return v.defaultHost
}

func (v *HostValidator) Default() string { return v.defaultHost }

// CheckHost rejects strings that cannot name a host at all. Well-formed but
// unknown hosts pass here and are later mapped to the default by Validate.
func CheckHost(raw string) error {
	host := StripScheme(raw)
	if host == "" || len(host) > maxHostLength {
		return ErrInvalidHost
	}
	if strings.ContainsAny(host, " \t\r\n/?#@\\") {
		return ErrInvalidHost
	}
	return nil
}

// URLValidator checks a link before it is handed to the encoder.
type URLValidator struct {
	MaxLength int
}

// Validate checks, in order: emptiness, display length, QR capacity, shape.
func (v URLValidator) Validate(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrEmptyInput
	}
	maxLen := v.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultMaxURLLength
	}
	// Tightest limit first.
	if maxLen <= MaxQRCapacity && len(raw) > maxLen {
		return ErrTooLong
	}
	if len(raw) > MaxQRCapacity {
		return ErrExceedsCapacity
	}
	if len(raw) > maxLen {
		return ErrTooLong
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ErrMalformedURL
	}
	return nil
}
