// Command realtimedemo wires authtransport, jwtstream, and realtime
// together into a minimal interactive client: it logs a user in with a
// password prompt, starts the self-refreshing token stream, joins one
// realtime channel, and prints inbound events until interrupted.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/supabase-community/supabase-realtime-go/internal/authtransport"
	"github.com/supabase-community/supabase-realtime-go/internal/config"
	"github.com/supabase-community/supabase-realtime-go/internal/jwtstream"
	"github.com/supabase-community/supabase-realtime-go/internal/logging"
	"github.com/supabase-community/supabase-realtime-go/internal/protocol"
	"github.com/supabase-community/supabase-realtime-go/internal/realtime"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file found, continuing with process environment")
	}

	logger := logging.WithComponent(logging.New("realtimedemo", logging.Options{Level: "info"}), "demo")

	baseURL := requireEnv("SUPABASE_URL")
	apiKey := requireEnv("SUPABASE_ANON_KEY")
	email := requireEnv("SUPABASE_EMAIL")
	password := readPassword()

	maxAttempts := uint8(5)
	reconnectInterval := 2 * time.Second
	if path := os.Getenv("REALTIME_CONFIG_FILE"); path != "" {
		watcher, err := config.NewWatcher(path, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to load config file")
		}
		defer watcher.Close()
		settings := watcher.Current()
		if settings.MaxReconnectAttempts > 0 {
			maxAttempts = settings.MaxReconnectAttempts
		}
		if settings.ReconnectInterval > 0 {
			reconnectInterval = settings.ReconnectInterval
		}
	}

	cfg, err := authtransport.NewConfig(apiKey, baseURL, maxAttempts, reconnectInterval)
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	creds := authtransport.Credentials{Email: email, Password: password}
	stream := jwtstream.New(cfg, creds, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tokens := stream.Run(ctx)

	wsURL := wsURLFor(baseURL, apiKey)
	rtCfg := realtime.Config{WebSocketURL: wsURL}
	session, err := realtime.Connect(ctx, rtCfg, protocol.NewTopic("demo"), tokens, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect realtime session")
	}
	defer session.Close()

	if _, err := session.Join(ctx, protocol.JoinConfig{
		Broadcast: protocol.BroadcastConfig{Self: true, Ack: true},
	}); err != nil {
		logger.WithError(err).Fatal("join failed")
	}
	logger.Info("joined channel, streaming events (ctrl-c to exit)")

	for result := range session.Messages() {
		if result.Err != nil {
			logger.WithError(result.Err).Warn("session ended")
			return
		}
		logger.WithFields(logrus.Fields{
			"topic": result.Value.Topic,
			"event": result.Value.Event,
		}).Info("inbound message")
	}
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		fmt.Fprintf(os.Stderr, "missing required environment variable %s\n", key)
		os.Exit(1)
	}
	return v
}

func readPassword() string {
	if v := os.Getenv("SUPABASE_PASSWORD"); v != "" {
		return v
	}
	fmt.Fprint(os.Stderr, "password: ")
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		return line
	}
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read password: %v\n", err)
		os.Exit(1)
	}
	return string(raw)
}

func wsURLFor(baseURL, apiKey string) string {
	scheme := "wss"
	host := baseURL
	if len(host) >= 8 && host[:8] == "https://" {
		host = host[8:]
	} else if len(host) >= 7 && host[:7] == "http://" {
		scheme = "ws"
		host = host[7:]
	}
	return fmt.Sprintf("%s://%s/realtime/v1/websocket?apikey=%s&vsn=1.0.0", scheme, host, apiKey)
}
