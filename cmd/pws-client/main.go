// Command pws-client dials a pws-hub conversation URL, relaying stdin lines
// to the connection and printing received messages to stdout. Grounded on
// the teacher's src/main.go startup shape (automaxprocs, flag+signal
// shutdown) adapted to the connector/pws.Connect dial path rather than the
// teacher's gorilla/websocket loadtest dialer.
package main

import (
	"bufio"
	"context"
	cryptorand "crypto/rand"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/pws/internal/config"
	"github.com/adred-codev/pws/internal/convid"
	"github.com/adred-codev/pws/internal/logging"
	"github.com/adred-codev/pws/pws"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	auth := flag.String("auth", "", "18-char auth token (generated if omitted)")
	flag.Parse()

	bootstrap := logging.New(logging.Config{Level: "info", Format: "pretty", Service: "pws-client"})

	cfg, err := config.LoadClient(&bootstrap)
	if err != nil {
		bootstrap.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "pws-client"})
	logger.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("gomaxprocs resolved via automaxprocs")

	authToken := *auth
	if authToken == "" {
		authToken = randomToken(18)
	}
	convID, err := convid.New(time.Now().UnixMilli())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to mint conversation id")
	}

	uri := fmt.Sprintf("%s/%s/%s", cfg.HubURL, authToken, convID)
	logger.Info().Str("uri", uri).Msg("connecting")

	conn := pws.New(convID, logger)
	conn.AllowPortForwarding(cfg.AllowPortForwarding)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := conn.Connect(ctx, uri); err != nil {
			logger.Error().Err(err).Msg("connection abandoned")
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info().Msg("shutting down")
		conn.AbandonConnection()
		cancel()
	}()

	go func() {
		for msg := range conn.Incoming() {
			fmt.Printf("< %s\n", msg)
		}
	}()

	go func() {
		for msg := range conn.Errors() {
			logger.Warn().Str("error", msg).Msg("recoverable connection error")
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := conn.Send(ctx, []byte(line), false); err != nil {
			logger.Error().Err(err).Msg("send failed")
		}
	}

	<-ctx.Done()
}

func randomToken(n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	raw := make([]byte, n)
	if _, err := cryptorand.Read(raw); err != nil {
		panic(err)
	}
	buf := make([]byte, n)
	for i, b := range raw {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf)
}
