// Command feedsync serves one chat feed to a rendering layer. It pages the
// feed from PostgreSQL, merges pushed messages from Redis and sends new
// messages optimistically.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GetStream/chat-feed-sync/api"
	"github.com/GetStream/chat-feed-sync/config"
	"github.com/GetStream/chat-feed-sync/feed"
	"github.com/GetStream/chat-feed-sync/postgres"
	"github.com/GetStream/chat-feed-sync/redis"
	"github.com/GetStream/chat-feed-sync/validator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Exiting", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.FeedID)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	if err := db.CreateSchema(ctx); err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, cfg.RedisAddr, cfg.FeedID, logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	store := feed.NewStore(logger.With("feed", cfg.FeedID), feed.NewMetrics(reg))
	defer store.Close()

	rl := &relay{db: db, pub: rdb, logger: logger}
	loader := feed.NewLoader(store, db, logger)
	outbox := feed.NewOutbox(store, rl, logger)
	listener := feed.NewListener(store, rdb, logger)

	listenCtx, cancelListen := context.WithCancel(ctx)
	defer cancelListen()
	listening := make(chan struct{})
	go func() {
		defer close(listening)
		if err := listener.Run(listenCtx); err != nil {
			logger.Error("Listener stopped", "error", err.Error())
		}
	}()

	// Subscribe before paging so no push falls between the page query and the
	// subscription.
	select {
	case <-listener.Ready():
	case <-listening:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := loader.LoadFirst(ctx, cfg.PageSize); err != nil {
		// The feed reports the error; pushed messages still arrive.
		logger.Error("Could not load first page", "error", err.Error())
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("POST /admin/messages/{messageID}/read", rl.markRead)
	mux.Handle("/", &api.API{
		Logger: logger,
		Feed:   store,
		Sender: outbox,
		Loader: loader,
		Val:    validator.New(),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.ListenAddr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Could not shut down server", "error", err.Error())
	}
	cancelListen()
	<-listening
	return nil
}
