// Package resourceguard enforces hub-side admission limits for new PWS
// connections: CPU headroom, a goroutine semaphore, and per-IP/global
// connection rate limiting. Grounded on the teacher's
// internal/shared/limits/resource_guard.go and connection_rate_limiter.go,
// simplified to host-level CPU sampling (shirou/gopsutil/v3) since the hub
// here is not assumed to run under a cgroup quota the way the teacher's
// container deployment does.
package resourceguard

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/time/rate"
)

// Config holds the static admission thresholds.
type Config struct {
	MaxGoroutines      int
	CPURejectThreshold float64 // reject new connections above this host CPU %
	IPBurst            int
	IPRate             float64
	IPTTL              time.Duration
	GlobalBurst        int
	GlobalRate         float64
}

// Guard is the admission gate a hub consults before upgrading a connection.
type Guard struct {
	cfg    Config
	logger zerolog.Logger

	goroutines chan struct{}

	ipMu       sync.Mutex
	ipLimiters map[string]*ipEntry

	global *rate.Limiter

	cpuMu      sync.RWMutex
	cpuPercent float64
}

type ipEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// New constructs a Guard and starts its background CPU sampler and IP-table
// janitor. Both run for the process lifetime and cannot be stopped, matching
// the teacher's package-level CPU monitor.
func New(cfg Config, logger zerolog.Logger) *Guard {
	g := &Guard{
		cfg:        cfg,
		logger:     logger,
		goroutines: make(chan struct{}, cfg.MaxGoroutines),
		ipLimiters: make(map[string]*ipEntry),
		global:     rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst),
	}
	go g.sampleCPULoop()
	go g.janitorLoop()
	return g
}

// AdmitReason explains why Admit refused a connection.
type AdmitReason string

const (
	ReasonNone          AdmitReason = ""
	ReasonCPU           AdmitReason = "cpu_over_threshold"
	ReasonGoroutines    AdmitReason = "goroutine_limit"
	ReasonIPRate        AdmitReason = "ip_rate_limited"
	ReasonGlobalRate    AdmitReason = "global_rate_limited"
)

// Admit decides whether a new connection from ip may proceed. On ReasonNone
// the caller has acquired a goroutine slot and must call Release when the
// connection ends.
func (g *Guard) Admit(ip string) AdmitReason {
	if g.CPUPercent() > g.cfg.CPURejectThreshold {
		return ReasonCPU
	}
	select {
	case g.goroutines <- struct{}{}:
	default:
		return ReasonGoroutines
	}
	if !g.global.Allow() {
		g.Release()
		return ReasonGlobalRate
	}
	if !g.ipLimiter(ip).Allow() {
		g.Release()
		return ReasonIPRate
	}
	return ReasonNone
}

// Release returns a goroutine slot acquired by a successful Admit.
func (g *Guard) Release() { <-g.goroutines }

// CPUPercent returns the last sampled host CPU usage percentage.
func (g *Guard) CPUPercent() float64 {
	g.cpuMu.RLock()
	defer g.cpuMu.RUnlock()
	return g.cpuPercent
}

func (g *Guard) ipLimiter(ip string) *rate.Limiter {
	g.ipMu.Lock()
	defer g.ipMu.Unlock()
	e, ok := g.ipLimiters[ip]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(rate.Limit(g.cfg.IPRate), g.cfg.IPBurst)}
		g.ipLimiters[ip] = e
	}
	e.lastAccess = time.Now()
	return e.limiter
}

func (g *Guard) sampleCPULoop() {
	for {
		percents, err := cpu.Percent(time.Second, false)
		if err != nil || len(percents) == 0 {
			g.logger.Warn().Err(err).Msg("resourceguard: cpu sample failed")
			continue
		}
		g.cpuMu.Lock()
		g.cpuPercent = percents[0]
		g.cpuMu.Unlock()
	}
}

func (g *Guard) janitorLoop() {
	ttl := g.cfg.IPTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-ttl)
		g.ipMu.Lock()
		for ip, e := range g.ipLimiters {
			if e.lastAccess.Before(cutoff) {
				delete(g.ipLimiters, ip)
			}
		}
		g.ipMu.Unlock()
	}
}

func (r AdmitReason) Error() string {
	if r == ReasonNone {
		return ""
	}
	return fmt.Sprintf("resourceguard: admission refused (%s)", string(r))
}
