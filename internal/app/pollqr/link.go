package pollqr

import "strings"

// NormalizeHost guarantees a scheme, defaulting to https.
func NormalizeHost(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "https://" + host
}

// BuildPublicURL returns the canonical public link for a poll.
func BuildPublicURL(host, pollID string) string {
	return strings.TrimRight(NormalizeHost(host), "/") + "/polls/" + pollID
}
