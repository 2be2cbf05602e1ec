// Command pws-hub terminates inbound PersistentWebSocket connections,
// routing each by conversation id to a resumable PWS instance. Grounded on
// the teacher's ws/main.go (automaxprocs, flag+config+signal shutdown
// shape) and ws/internal/shared/handlers_ws.go (rate limiter + resource
// guard admission before ws.UpgradeHTTP).
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/pws/hubevents"
	"github.com/adred-codev/pws/internal/config"
	"github.com/adred-codev/pws/internal/logging"
	"github.com/adred-codev/pws/internal/metrics"
	"github.com/adred-codev/pws/internal/resourceguard"
	"github.com/adred-codev/pws/pws"
)

var pathPattern = regexp.MustCompile(`^/rpc1/([A-Za-z0-9_-]{18})/([A-Za-z0-9_-]{9})$`)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	bootstrap := logging.New(logging.Config{Level: "info", Format: "json", Service: "pws-hub"})

	cfg, err := config.LoadHub(&bootstrap)
	if err != nil {
		bootstrap.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "pws-hub"})
	cfg.LogConfig(logger)

	logger.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("gomaxprocs resolved via automaxprocs")

	guard := resourceguard.New(resourceguard.Config{
		MaxGoroutines:      cfg.MaxGoroutines,
		CPURejectThreshold: cfg.CPURejectThreshold,
		IPBurst:            cfg.IPBurst,
		IPRate:             cfg.IPRate,
		IPTTL:              cfg.IPTTL,
		GlobalBurst:        cfg.GlobalBurst,
		GlobalRate:         cfg.GlobalRate,
	}, logger)

	var events *hubevents.Publisher
	if cfg.NATSUrl != "" {
		events, err = hubevents.NewPublisher(cfg.NATSUrl, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("NATS event publisher unavailable, continuing without it")
			events = nil
		} else {
			defer events.Close()
		}
	}

	registry := newConvRegistry()

	mux := http.NewServeMux()
	mux.Handle("/rpc1/", rpcHandler(cfg, guard, registry, events, logger))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("pws-hub listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("hub server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("error during shutdown")
	}
}

// convRegistry maps a conversation id to its resumable PWS instance, so a
// reconnect to the same convId attaches to the existing journal/in_index
// state instead of starting a fresh conversation.
type convRegistry struct {
	mu   sync.Mutex
	byID map[string]*pws.PWS
}

func newConvRegistry() *convRegistry {
	return &convRegistry{byID: make(map[string]*pws.PWS)}
}

func (r *convRegistry) getOrCreate(convID string, logger zerolog.Logger) *pws.PWS {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byID[convID]; ok {
		return p
	}
	p := pws.New(convID, logger)
	r.byID[convID] = p
	return p
}

func rpcHandler(cfg *config.Hub, guard *resourceguard.Guard, registry *convRegistry, events *hubevents.Publisher, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := pathPattern.FindStringSubmatch(r.URL.Path)
		if m == nil {
			http.NotFound(w, r)
			return
		}
		convID := m[2]

		ip := clientIP(r)
		if reason := guard.Admit(ip); reason != resourceguard.ReasonNone {
			metrics.AdmissionRejections.WithLabelValues(string(reason)).Inc()
			http.Error(w, "server overloaded or rate limited", http.StatusServiceUnavailable)
			return
		}
		defer guard.Release()

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logger.Warn().Err(err).Str("conv_id", convID).Msg("websocket upgrade failed")
			return
		}

		p := registry.getOrCreate(convID, logger)
		p.AllowPortForwarding(cfg.AllowPortForwarding)
		if events != nil {
			events.Publish(convID, "connected", "")
		}
		p.Connected(r.Context(), conn)
		if events != nil {
			events.Publish(convID, "disconnected", "")
		}
	})
}

func clientIP(r *http.Request) string {
	if h := r.Header.Get("X-Forwarded-For"); h != "" {
		return h
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
