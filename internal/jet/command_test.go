package jet

import "testing"

func TestParseCommandForwardTo(t *testing.T) {
	cmd, err := ParseCommand("forward_to 127.0.0.1:5901")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Kind != ForwardTo || cmd.Host != "127.0.0.1" || cmd.Port != 5901 {
		t.Errorf("got %+v", cmd)
	}
}

func TestParseCommandDisconnect(t *testing.T) {
	cmd, err := ParseCommand("disconnect")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Kind != Disconnect {
		t.Errorf("got %+v", cmd)
	}
}

func TestParseCommandRoundTrip(t *testing.T) {
	s := EncodeForwardTo("example.org", 443)
	cmd, err := ParseCommand(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Kind != ForwardTo || cmd.Host != "example.org" || cmd.Port != 443 {
		t.Errorf("round trip %q: got %+v", s, cmd)
	}
}

func TestParseCommandErrors(t *testing.T) {
	bad := []string{"", "forward_to", "forward_to a b", "forward_to example.org", "frobnicate"}
	for _, s := range bad {
		if _, err := ParseCommand(s); err == nil {
			t.Errorf("ParseCommand(%q): expected error, got nil", s)
		}
	}
}
