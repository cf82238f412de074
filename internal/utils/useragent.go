package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// ClientInfo holds parsed information about the software that sent a request.
// Webhook senders are services, not browsers, so the interesting fields are
// the client library and whether the agent identifies itself as automated.
type ClientInfo struct {
	Client    string `json:"client"`    // python-requests, Go-http-client, curl, Chrome
	Version   string `json:"version"`   // Client version
	OS        string `json:"os"`        // Linux, Windows 10, etc.
	Platform  string `json:"platform"`  // linux, windows, mac, server
	Automated bool   `json:"automated"` // Bot, crawler or HTTP library
	Raw       string `json:"raw"`       // Original user agent string
}

// knownLibraries maps user agent prefixes of HTTP libraries to a client name
var knownLibraries = []string{
	"python-requests",
	"python-urllib",
	"aiohttp",
	"go-http-client",
	"curl",
	"wget",
	"okhttp",
	"axios",
	"node-fetch",
	"postmanruntime",
}

// ParseClientAgent parses a User-Agent string and extracts client information
func ParseClientAgent(userAgent string) ClientInfo {
	if userAgent == "" || userAgent == "Unknown" {
		return ClientInfo{
			Client:   "Unknown",
			OS:       "Unknown",
			Platform: "unknown",
			Raw:      userAgent,
		}
	}

	if name, version, ok := parseLibrary(userAgent); ok {
		return ClientInfo{
			Client:    name,
			Version:   version,
			OS:        "Unknown",
			Platform:  "server",
			Automated: true,
			Raw:       userAgent,
		}
	}

	parser := ua.New(userAgent)
	name, version := parser.Browser()
	if name == "" {
		name = "Unknown"
	}

	return ClientInfo{
		Client:    name,
		Version:   version,
		OS:        getOS(parser),
		Platform:  getPlatform(parser),
		Automated: parser.Bot(),
		Raw:       userAgent,
	}
}

// parseLibrary recognises "library/version" agents sent by HTTP clients
func parseLibrary(userAgent string) (name, version string, ok bool) {
	first := strings.Fields(userAgent)[0]
	lower := strings.ToLower(first)
	for _, lib := range knownLibraries {
		if strings.HasPrefix(lower, lib) {
			name, version, _ = strings.Cut(first, "/")
			return name, version, true
		}
	}
	return "", "", false
}

// getOS extracts operating system name and version
func getOS(parser *ua.UserAgent) string {
	osInfo := parser.OSInfo()
	os := osInfo.Name
	version := osInfo.Version

	if os == "" {
		return "Unknown"
	}

	if version != "" {
		return os + " " + version
	}

	return os
}

// getPlatform determines the platform (linux, windows, mac, etc.)
func getPlatform(parser *ua.UserAgent) string {
	osName := strings.ToLower(parser.OSInfo().Name)

	platforms := []struct{ key, platform string }{
		{"android", "android"},
		{"ios", "ios"},
		{"iphone os", "ios"},
		{"windows", "windows"},
		{"mac os x", "mac"},
		{"macos", "mac"},
		{"linux", "linux"},
		{"ubuntu", "linux"},
		{"chrome os", "chromeos"},
	}

	for _, p := range platforms {
		if strings.Contains(osName, p.key) {
			return p.platform
		}
	}

	return "unknown"
}
