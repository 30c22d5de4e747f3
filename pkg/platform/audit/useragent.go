package audit

import (
	"strings"

	"github.com/mssola/useragent"
)

// DescribeUserAgent condenses a User-Agent header into "<browser> on <os>"
// for audit records.
func DescribeUserAgent(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "Unknown Device"
	}
	ua := useragent.New(raw)

	browser, version := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	} else if major, _, _ := strings.Cut(version, "."); major != "" {
		browser += " " + major
	}

	os := ua.OS()
	if os == "" {
		os = ua.Platform()
	}
	if os == "" {
		os = "Unknown OS"
	}
	return browser + " on " + os
}
