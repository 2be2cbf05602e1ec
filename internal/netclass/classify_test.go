package netclass

import (
	"context"
	"errors"
	"testing"
)

func TestClassifyRecoverable(t *testing.T) {
	c := Classify(errors.New("dial tcp: No route to host"), nil)
	if c.Kind != Recoverable {
		t.Fatalf("expected recoverable, got %v: %s", c.Kind, c.Message)
	}
}

func TestClassifyRefusedIsFatal(t *testing.T) {
	c := Classify(errors.New("dial tcp: Connection refused"), nil)
	if c.Kind != Fatal {
		t.Fatalf("expected fatal, got %v", c.Kind)
	}
}

func TestClassifyResetIsFatal(t *testing.T) {
	c := Classify(errors.New("read: Connection reset by peer"), nil)
	if c.Kind != Fatal {
		t.Fatalf("expected fatal, got %v", c.Kind)
	}
}

func TestClassifyHostLookupGoodLocalDNS(t *testing.T) {
	probeOK := func(ctx context.Context) error { return nil }
	c := Classify(errors.New("Failed host lookup: 'bad.invalid'"), probeOK)
	if c.Kind != Fatal {
		t.Fatalf("expected fatal when local DNS works, got %v", c.Kind)
	}
}

func TestClassifyHostLookupBadLocalDNS(t *testing.T) {
	probeFail := func(ctx context.Context) error { return errors.New("no network") }
	c := Classify(errors.New("No address associated with hostname"), probeFail)
	if c.Kind != Recoverable {
		t.Fatalf("expected recoverable when local DNS is also broken, got %v", c.Kind)
	}
}

func TestClassifyUpgradeFailureIsFatal(t *testing.T) {
	c := Classify(errors.New("websocket: bad handshake: unexpected HTTP response status: 401"), nil)
	if c.Kind != Fatal {
		t.Fatalf("expected fatal, got %v", c.Kind)
	}
	if c.Message == "" {
		t.Fatal("expected a message")
	}
}

func TestClassifyUnknownIsFatal(t *testing.T) {
	c := Classify(errors.New("something completely unexpected"), nil)
	if c.Kind != Fatal {
		t.Fatalf("expected fatal default, got %v", c.Kind)
	}
}
