package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HsiangNianian/promptrelay/internal/config"
	"github.com/HsiangNianian/promptrelay/internal/store"
	"github.com/HsiangNianian/promptrelay/internal/ws"
	"github.com/spf13/cobra"
)

var (
	flagConfig string
	flagListen string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "relay",
		Short:         "Correlating websocket relay between CLI clients and the browser executor",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", os.Getenv("RELAY_CONFIG"), "Config file (.json, .jsonc, .yaml)")
	rootCmd.Flags().StringVar(&flagListen, "listen", "", "Listen address, overrides the config file")

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("relay failed: %v", err)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagListen != "" {
		cfg.Server.ListenAddr = flagListen
	}

	st, closeStore, err := openStore(cmd.Context(), cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := ws.NewHub(st, cfg.Server)
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           newRouter(hub, cfg.Server.Path),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("relay listening on %s path=%s max_clients=%d", cfg.Server.ListenAddr, cfg.Server.Path, cfg.Server.MaxClients)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("relay shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown failed: %v", err)
	}
	hub.Close()
	return nil
}

func newRouter(hub *ws.Hub, path string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(path, hub.HandleWS)
	mux.HandleFunc("GET /healthz", hub.HandleHealth)
	mux.HandleFunc("GET /requests/{id}", hub.HandleRequestStatus)
	mux.HandleFunc("GET /requests", hub.HandlePending)
	return mux
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, func(), error) {
	if cfg.RedisAddr == "" {
		log.Printf("use memory store")
		return store.NewMemoryStore(), func() {}, nil
	}
	rs := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.KeyPrefix)
	if ctx == nil {
		ctx = context.Background()
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		_ = rs.Close()
		return nil, nil, err
	}
	log.Printf("use redis store: %s", cfg.RedisAddr)
	return rs, func() { _ = rs.Close() }, nil
}
