package util

import (
	"net/http/httptest"
	"net/netip"
	"testing"
)

func TestClientIP(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.1.2.3/8", "2001:db8::/32", "::ffff:172.16.0.9"})
	if err != nil {
		t.Fatalf("new trusted proxies: %v", err)
	}

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xrip       string
		trusted    *TrustedProxies
		want       string
	}{
		{
			name:       "untrusted peer ignores forwarded headers",
			remoteAddr: "198.51.100.10:1234",
			xff:        "203.0.113.5",
			xrip:       "203.0.113.6",
			trusted:    trusted,
			want:       "198.51.100.10",
		},
		{
			name:       "nil set trusts nobody",
			remoteAddr: "10.0.0.20:1234",
			xff:        "203.0.113.5",
			want:       "10.0.0.20",
		},
		{
			name:       "unmasked cidr covers the whole network",
			remoteAddr: "10.200.0.1:443",
			xff:        "203.0.113.5",
			trusted:    trusted,
			want:       "203.0.113.5",
		},
		{
			name:       "ipv4-mapped peer matches ipv4 prefix",
			remoteAddr: "[::ffff:10.0.0.20]:1234",
			xff:        "203.0.113.5",
			trusted:    trusted,
			want:       "203.0.113.5",
		},
		{
			name:       "mapped bare entry trusts the ipv4 peer",
			remoteAddr: "172.16.0.9:80",
			xff:        "203.0.113.8",
			trusted:    trusted,
			want:       "203.0.113.8",
		},
		{
			name:       "mapped forwarded hop is reported as ipv4",
			remoteAddr: "10.0.0.20:1234",
			xff:        "::ffff:203.0.113.5, 10.0.0.10",
			trusted:    trusted,
			want:       "203.0.113.5",
		},
		{
			name:       "ipv6 proxy chain picks right-most untrusted hop",
			remoteAddr: "[2001:db8::1]:8443",
			xff:        "198.51.100.1, 2001:db9::7, 2001:db8::2",
			trusted:    trusted,
			want:       "2001:db9::7",
		},
		{
			name:       "garbage hops are skipped, then x-real-ip is used",
			remoteAddr: "10.0.0.20:1234",
			xff:        "not-an-ip, also bad",
			xrip:       "::ffff:203.0.113.7",
			trusted:    trusted,
			want:       "203.0.113.7",
		},
		{
			name:       "every hop trusted returns left-most hop",
			remoteAddr: "10.0.0.20:1234",
			xff:        "10.0.0.5, 10.0.0.10",
			trusted:    trusted,
			want:       "10.0.0.5",
		},
		{
			name:       "peer without port",
			remoteAddr: "198.51.100.10",
			trusted:    trusted,
			want:       "198.51.100.10",
		},
		{
			name:       "unparseable peer is returned as is",
			remoteAddr: " pipe ",
			trusted:    trusted,
			want:       "pipe",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://legalmitra.test", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xrip != "" {
				req.Header.Set("X-Real-IP", tc.xrip)
			}
			if got := ClientIP(req, tc.trusted); got != tc.want {
				t.Fatalf("client ip = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewTrustedProxies(t *testing.T) {
	set, err := NewTrustedProxies([]string{" ", "192.168.7.99/24"})
	if err != nil {
		t.Fatalf("expected valid entries, got err: %v", err)
	}
	if got := set.prefixes[0]; got != netip.MustParsePrefix("192.168.7.0/24") {
		t.Fatalf("prefix not masked: %s", got)
	}
	if set, err := NewTrustedProxies([]string{"", "  "}); err != nil || set != nil {
		t.Fatalf("blank entries should give a nil set, got %v %v", set, err)
	}
	for _, bad := range []string{"bad-cidr", "10.0.0.0/33", "300.1.1.1"} {
		if _, err := NewTrustedProxies([]string{bad}); err == nil {
			t.Fatalf("expected parse error for %q", bad)
		}
	}
}

func TestTrustedProxiesContains(t *testing.T) {
	set, err := NewTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("new trusted proxies: %v", err)
	}
	if !set.Contains(netip.MustParseAddr("::ffff:10.9.9.9")) {
		t.Fatalf("mapped address should match ipv4 prefix")
	}
	if set.Contains(netip.Addr{}) {
		t.Fatalf("zero address must not match")
	}
	var none *TrustedProxies
	if none.Contains(netip.MustParseAddr("10.0.0.1")) {
		t.Fatalf("nil set must not match")
	}
}
