// Package browser classifies clients from their User-Agent.
package browser

import "strings"

// ShellHeader is sent by the native app shell that embeds the web pages.
const ShellHeader = "X-Vibz-Shell"

var inAppPatterns = []string{
	"FBAN", "FBAV", // Facebook
	"Instagram",
	"Line",
	"WhatsApp",
	"wv", // Android WebView
	"LinkedIn",
	"Snapchat",
}

// Client describes the browser of a request.
type Client struct {
	InApp      bool   `json:"in_app"`
	Meta       bool   `json:"meta"`
	Embedded   bool   `json:"embedded"`
	OpenTarget string `json:"open_target,omitempty"`
}

// Detect classifies userAgent. shell is the value of ShellHeader.
func Detect(userAgent, shell string) Client {
	c := Client{
		InApp:    IsInAppBrowser(userAgent),
		Meta:     IsMetaBrowser(userAgent),
		Embedded: IsEmbeddedShell(userAgent, shell),
	}
	if c.InApp {
		c.OpenTarget = "_system"
	}
	return c
}

// IsInAppBrowser reports whether userAgent belongs to a social app's
// built-in browser or a WebView.
func IsInAppBrowser(userAgent string) bool {
	for _, p := range inAppPatterns {
		if strings.Contains(userAgent, p) {
			return true
		}
	}
	return false
}

// IsMetaBrowser detects the Facebook and Instagram browsers.
func IsMetaBrowser(userAgent string) bool {
	return strings.Contains(userAgent, "FBAN") ||
		strings.Contains(userAgent, "FBAV") ||
		strings.Contains(userAgent, "Instagram")
}

// IsEmbeddedShell reports whether the request comes from the native app
// that hosts the pages and expects host messages.
func IsEmbeddedShell(userAgent, shell string) bool {
	if strings.EqualFold(strings.TrimSpace(shell), "react-native") {
		return true
	}
	return strings.Contains(userAgent, "ReactNative")
}
