package server

import "testing"

func TestHasSuffixSegment(t *testing.T) {
	cases := []struct {
		path, suffix string
		want         bool
	}{
		{"/v1/accounts/abc/devices", "/devices", true},
		{"/v1/accounts/abc/devices/", "/devices", true},
		{"/v1/accounts/abc/recovery-policy", "/recovery-policy", true},
		{"/v1/accounts/abc", "/devices", false},
		{"/v1/accounts/abc/devices/xyz/revoke", "/devices", false},
	}
	for _, c := range cases {
		if got := hasSuffixSegment(c.path, c.suffix); got != c.want {
			t.Errorf("hasSuffixSegment(%q, %q) = %v, want %v", c.path, c.suffix, got, c.want)
		}
	}
}

func TestContainsSegment(t *testing.T) {
	if !containsSegment("/v1/accounts/abc/devices/xyz/revoke", "/devices/") {
		t.Error("expected /devices/ segment to be found")
	}
	if containsSegment("/v1/accounts/abc/recovery-policy", "/devices/") {
		t.Error("did not expect /devices/ segment to be found")
	}
}
