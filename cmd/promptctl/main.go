package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HsiangNianian/promptrelay/internal/client"
	"github.com/HsiangNianian/promptrelay/internal/config"
	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagURL     string
	flagToken   string
	flagVerbose bool
)

// app is built once flags are parsed and shared by every command.
type app struct {
	cfg    config.Config
	client *client.Client
	logger *log.Logger
	stdout io.Writer
	stderr io.Writer
}

func main() {
	a := &app{stdout: os.Stdout, stderr: os.Stderr}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(a).ExecuteContext(ctx)
	stop()
	if err != nil {
		renderError(a.stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "promptctl",
		Short: "Send prompts to the browser chat page through the relay",
		Long: `promptctl talks to the relay over a websocket. Each command opens its own
connection, submits one request and waits for exactly one terminal reply.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", os.Getenv("RELAY_CONFIG"), "Config file (.json, .jsonc, .yaml)")
	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "Relay websocket URL (or RELAY_URL env var)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "Relay auth token (or RELAY_AUTH_TOKEN env var)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Debug output on stderr")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return a.init()
	}

	rootCmd.AddCommand(askCmd(a))
	rootCmd.AddCommand(tabsCmd(a))
	rootCmd.AddCommand(scrapeCmd(a))
	return rootCmd
}

func (a *app) init() error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagURL != "" {
		cfg.Client.URL = flagURL
	}
	if flagToken != "" {
		cfg.Client.AuthToken = flagToken
	}
	a.cfg = cfg

	a.logger = log.New(io.Discard, "", 0)
	if flagVerbose {
		a.logger = log.New(a.stderr, "promptctl: ", log.LstdFlags)
	}

	c := client.New(cfg.Client.URL)
	c.Dialer.HandshakeTimeout = cfg.Client.DialTimeout.Duration
	c.Timeouts = client.Timeouts{
		Inject: cfg.Client.Timeout.Duration,
		Focus:  cfg.Client.FocusTimeout.Duration,
		Debug:  cfg.Client.DebugTimeout.Duration,
	}
	if cfg.Client.AuthToken != "" {
		c.Header = http.Header{"Authorization": []string{"Bearer " + cfg.Client.AuthToken}}
	}
	c.Logger = a.logger
	a.client = c
	return nil
}

func (a *app) retry() client.Retry {
	r := client.Retry{
		MaxAttempts: a.cfg.Client.Retry.MaxAttempts,
		BaseDelay:   a.cfg.Client.Retry.BaseDelay.Duration,
		Backoff:     a.cfg.Client.Retry.Backoff,
	}
	r.OnRetry = func(attempt int, delay time.Duration, err error) {
		fmt.Fprintf(a.stderr, "attempt %d failed (%v), retrying in %s\n", attempt, err, delay.Round(time.Millisecond))
	}
	return r
}
