package jet

import "testing"

func TestHostPortRoundTrip(t *testing.T) {
	cases := []struct {
		host string
		port int
	}{
		{"example.org", 8080},
		{"127.0.0.1", 22},
		{"::1", 5900},
		{"fe80::1", 443},
	}
	for _, c := range cases {
		s := FormatHostPort(c.host, c.port)
		host, port, err := ParseHostPort(s, 0)
		if err != nil {
			t.Fatalf("ParseHostPort(%q) error: %v", s, err)
		}
		if host != c.host || port != c.port {
			t.Errorf("round trip %v: got (%q, %d), want (%q, %d)", s, host, port, c.host, c.port)
		}
	}
}

func TestParseHostPortVariants(t *testing.T) {
	cases := []struct {
		in         string
		defaultPrt int
		wantHost   string
		wantPort   int
	}{
		{"example.org", 80, "example.org", 80},
		{"example.org:9090", 80, "example.org", 9090},
		{"10.0.0.1", 22, "10.0.0.1", 22},
		{"10.0.0.1:2222", 22, "10.0.0.1", 2222},
		{"[::1]", 5900, "::1", 5900},
		{"[::1]:5901", 5900, "::1", 5901},
		{"::1", 5900, "::1", 5900},
	}
	for _, c := range cases {
		host, port, err := ParseHostPort(c.in, c.defaultPrt)
		if err != nil {
			t.Fatalf("ParseHostPort(%q) error: %v", c.in, err)
		}
		if host != c.wantHost || port != c.wantPort {
			t.Errorf("ParseHostPort(%q): got (%q, %d), want (%q, %d)", c.in, host, port, c.wantHost, c.wantPort)
		}
	}
}

func TestParseHostPortMalformed(t *testing.T) {
	bad := []string{"[::1", "example.org:notaport"}
	for _, s := range bad {
		if _, _, err := ParseHostPort(s, 0); err == nil {
			t.Errorf("ParseHostPort(%q): expected error, got nil", s)
		}
	}
}

func TestFormatHostPortBracketsIPv6(t *testing.T) {
	got := FormatHostPort("::1", 22)
	want := "[::1]:22"
	if got != want {
		t.Errorf("FormatHostPort(::1, 22) = %q, want %q", got, want)
	}
}
