package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	safariUA    = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	instagramUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148 Instagram 300.0.0.0"
	facebookUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148 [FBAN/FBIOS;FBAV/440.0]"
	webViewUA   = "Mozilla/5.0 (Linux; Android 14; Pixel 8; wv) AppleWebKit/537.36 Chrome/120.0 Mobile Safari/537.36"
)

func TestIsInAppBrowser(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want bool
	}{
		{"safari", safariUA, false},
		{"instagram", instagramUA, true},
		{"facebook", facebookUA, true},
		{"android webview", webViewUA, true},
		{"whatsapp", "WhatsApp/2.23", true},
		{"snapchat", "Snapchat/12.0", true},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsInAppBrowser(tt.ua))
		})
	}
}

func TestIsMetaBrowser(t *testing.T) {
	assert.True(t, IsMetaBrowser(instagramUA))
	assert.True(t, IsMetaBrowser(facebookUA))
	assert.False(t, IsMetaBrowser(webViewUA))
}

func TestDetect(t *testing.T) {
	assert.Equal(t, Client{}, Detect(safariUA, ""))
	assert.Equal(t, Client{InApp: true, Meta: true, OpenTarget: "_system"}, Detect(instagramUA, ""))

	c := Detect(safariUA, "react-native")
	assert.True(t, c.Embedded)
	assert.False(t, c.InApp)
}
