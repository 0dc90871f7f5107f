package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// DeviceInfo is the caller metadata recorded in booking audits
type DeviceInfo struct {
	DeviceType string // mobile, tablet, desktop or bot
	Platform   string // android, ios, windows, mac, linux, chromeos or unknown
	Browser    string
	IsBot      bool
}

// ParseUserAgent parses a User-Agent header. An empty header yields an
// unknown desktop so audits always carry a device type.
func ParseUserAgent(userAgent string) DeviceInfo {
	if strings.TrimSpace(userAgent) == "" {
		return DeviceInfo{DeviceType: "unknown", Platform: "unknown", Browser: "Unknown"}
	}

	parser := ua.New(userAgent)
	info := DeviceInfo{
		Platform: getPlatform(parser),
		Browser:  getBrowser(parser),
		IsBot:    parser.Bot(),
	}

	switch {
	case info.IsBot:
		info.DeviceType = "bot"
	case isTablet(userAgent):
		info.DeviceType = "tablet"
	case parser.Mobile():
		info.DeviceType = "mobile"
	default:
		info.DeviceType = "desktop"
	}
	return info
}

var tabletIndicators = []string{"ipad", "tablet", "kindle", "silk", "playbook"}

func isTablet(userAgent string) bool {
	lower := strings.ToLower(userAgent)
	for _, indicator := range tabletIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	// Android tablets omit "Mobile"
	return strings.Contains(lower, "android") && !strings.Contains(lower, "mobile")
}

func getBrowser(parser *ua.UserAgent) string {
	name, _ := parser.Browser()
	if name == "" {
		return "Unknown"
	}
	return name
}

// Ordered so "chrome os" wins over "linux" and "iphone os" over "mac os x"
var platformMatchers = []struct {
	needle   string
	platform string
}{
	{"android", "android"},
	{"iphone os", "ios"},
	{"cpu os", "ios"},
	{"ios", "ios"},
	{"chrome os", "chromeos"},
	{"cros", "chromeos"},
	{"windows", "windows"},
	{"mac os x", "mac"},
	{"macos", "mac"},
	{"linux", "linux"},
	{"ubuntu", "linux"},
}

func getPlatform(parser *ua.UserAgent) string {
	osName := strings.ToLower(parser.OS())
	for _, m := range platformMatchers {
		if strings.Contains(osName, m.needle) {
			return m.platform
		}
	}
	return "unknown"
}
