package resourceguard

import (
	"testing"

	"github.com/rs/zerolog"
)

func testConfig() Config {
	return Config{
		MaxGoroutines:      2,
		CPURejectThreshold: 1000, // effectively disabled for these tests
		IPBurst:            1,
		IPRate:             0.001,
		GlobalBurst:        10,
		GlobalRate:         100,
	}
}

func TestAdmitGoroutineLimit(t *testing.T) {
	g := New(testConfig(), zerolog.Nop())
	if reason := g.Admit("10.0.0.1"); reason != ReasonNone {
		t.Fatalf("first admit: got %v", reason)
	}
	if reason := g.Admit("10.0.0.2"); reason != ReasonNone {
		t.Fatalf("second admit: got %v", reason)
	}
	if reason := g.Admit("10.0.0.3"); reason != ReasonGoroutines {
		t.Fatalf("third admit: expected ReasonGoroutines, got %v", reason)
	}
	g.Release()
	if reason := g.Admit("10.0.0.3"); reason != ReasonNone {
		t.Fatalf("admit after release: got %v", reason)
	}
}

func TestAdmitIPRateLimit(t *testing.T) {
	g := New(testConfig(), zerolog.Nop())
	if reason := g.Admit("10.0.0.1"); reason != ReasonNone {
		t.Fatalf("first admit from ip: got %v", reason)
	}
	g.Release()
	if reason := g.Admit("10.0.0.1"); reason != ReasonIPRate {
		t.Fatalf("second immediate admit from same ip: expected ReasonIPRate, got %v", reason)
	}
}

func TestAdmitCPURejects(t *testing.T) {
	cfg := testConfig()
	cfg.CPURejectThreshold = 0
	g := New(cfg, zerolog.Nop())
	g.cpuMu.Lock()
	g.cpuPercent = 50
	g.cpuMu.Unlock()
	if reason := g.Admit("10.0.0.1"); reason != ReasonCPU {
		t.Fatalf("expected ReasonCPU, got %v", reason)
	}
}
