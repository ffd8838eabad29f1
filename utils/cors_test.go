package utils

import "testing"

func TestIsAllowedOrigin(t *testing.T) {
	tests := []struct {
		origin  string
		allowed bool
	}{
		{"http://localhost", true},
		{"http://localhost:5173", true},
		{"http://192.168.1.1:7777", true},
		{"http://10.0.0.1", true},
		{"http://172.31.255.255:443", true},
		{"http://127.0.0.1:3000", true},
		{"http://169.254.1.1", true},
		{"http://[::1]:7777", true},
		{"http://mynas.local:7777", true},
		{"http://mediaserver:7777", true},

		{"http://example.com", false},
		{"http://image.tmdb.org.evil.com", false},
		{"http://8.8.8.8", false},
		{"http://[2001:4860::8888]", false},
		{"", false},
		{"not-a-url", false},
	}

	for _, tt := range tests {
		if got := IsAllowedOrigin(tt.origin); got != tt.allowed {
			t.Errorf("IsAllowedOrigin(%q) = %v, want %v", tt.origin, got, tt.allowed)
		}
	}
}

func TestOriginPolicy(t *testing.T) {
	p := NewOriginPolicy([]string{"https://Radar.Example.com", " ", "garbage"})

	if !p.Allows("https://radar.example.com") {
		t.Error("expected configured origin to be allowed")
	}
	if p.Allows("http://radar.example.com") {
		t.Error("expected scheme to matter")
	}
	if !p.Allows("http://192.168.0.10:7777") {
		t.Error("expected LAN origin to stay allowed")
	}
	if p.Allows("https://other.example.com") {
		t.Error("expected unlisted public origin to be blocked")
	}

	if !NewOriginPolicy([]string{"*"}).Allows("https://anything.example.org") {
		t.Error("expected wildcard to allow any origin")
	}
	var nilPolicy *OriginPolicy
	if !nilPolicy.Allows("http://localhost") {
		t.Error("expected nil policy to fall back to LAN rules")
	}
}
