package audit

import (
	"strings"

	"github.com/mssola/useragent"
)

// NormalizeClient reduces a User-Agent header to "Browser Version on OS".
// Unparseable or empty headers pass through trimmed.
func NormalizeClient(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	name, version := ua.Browser()
	if name == "" {
		return userAgent
	}
	client := name
	if version != "" {
		client += " " + version
	}
	if ua.Bot() {
		return client + " (bot)"
	}
	if os := ua.OS(); os != "" {
		client += " on " + os
	}
	return client
}
