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

	"github.com/joho/godotenv"

	"github.com/stake-plus/escrow-market/src/api/chain"
	"github.com/stake-plus/escrow-market/src/api/config"
	"github.com/stake-plus/escrow-market/src/api/data"
	"github.com/stake-plus/escrow-market/src/api/indexer"
	"github.com/stake-plus/escrow-market/src/api/market"
	"github.com/stake-plus/escrow-market/src/api/notify"
	"github.com/stake-plus/escrow-market/src/api/realtime"
	"github.com/stake-plus/escrow-market/src/api/storage"
	"github.com/stake-plus/escrow-market/src/api/webserver"
	"github.com/stake-plus/escrow-market/src/logging"
)

func main() {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := data.ConnectMySQL(cfg.MySQLDSN)
	if err != nil {
		fatal(ctx, "mysql", err)
	}
	if err := data.Migrate(db); err != nil {
		fatal(ctx, "migrate", err)
	}

	rdb, err := data.ConnectRedis(cfg.RedisURL)
	if err != nil {
		fatal(ctx, "redis", err)
	}
	defer rdb.Close()

	opts := market.Options{AdminWallets: cfg.Chain.AdminWallets}
	if cfg.Chain.Enabled() {
		client, err := chain.Dial(ctx, cfg.Chain)
		if err != nil {
			fatal(ctx, "chain", err)
		}
		defer client.Close()

		opts.Syncer = chain.NewSyncer(client, client, chain.SyncOptions{
			Attempts:      cfg.Chain.SyncAttempts,
			BaseDelay:     cfg.Chain.SyncBaseDelay.Duration,
			Factor:        cfg.Chain.SyncFactor,
			Confirmations: cfg.Chain.Confirmations,
		})
		opts.Resolver = client
		logging.Info(ctx, "escrow contract bound", "address", cfg.Chain.EscrowAddress,
			"chain_id", cfg.Chain.ChainID, "can_resolve", client.CanTransact())
	} else {
		logging.Warn(ctx, "no chain configured; contracts are tracked in the database only")
	}

	store, closeStore, err := storage.FromConfig(ctx, cfg.Storage)
	if err != nil {
		fatal(ctx, "storage", err)
	}
	logging.Info(ctx, "file storage ready", "backend", store.Backend())

	hub := realtime.NewHub(cfg.CORSOrigins)
	go hub.Run(ctx)

	var notifyOpts []notify.Option
	if cfg.SMTP.Enabled() {
		notifyOpts = append(notifyOpts, notify.WithMailer(notify.NewSMTPMailer(cfg.SMTP)))
	}
	if cfg.Discord.Enabled() {
		alerter, err := notify.NewDiscordAlerter(cfg.Discord.Token, cfg.Discord.ChannelID)
		if err != nil {
			logging.Warn(ctx, "discord alerts disabled", "error", err)
		} else {
			notifyOpts = append(notifyOpts, notify.WithAlerter(alerter))
		}
	}
	dispatcher := notify.NewDispatcher(db, rdb, hub, notifyOpts...)

	svc := market.NewService(db, dispatcher, opts)

	if svc.ChainEnabled() {
		interval := cfg.Chain.SyncInterval.Duration
		if interval <= 0 {
			interval = time.Minute
		}
		go indexer.IndexerService(ctx, svc, interval)
	}

	router, stopLimiter := webserver.NewRouter(cfg, webserver.Deps{
		DB:     db,
		Redis:  rdb,
		Market: svc,
		Notify: dispatcher,
		Hub:    hub,
		Store:  store,
	})
	defer stopLimiter()

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	useTLS := cfg.TLSCert != "" && cfg.TLSKey != ""
	if useTLS {
		certs, err := webserver.NewCertReloader(ctx, cfg.TLSCert, cfg.TLSKey, 0)
		if err != nil {
			fatal(ctx, "tls", err)
		}
		httpSrv.TLSConfig = certs.TLSConfig()
	}

	go func() {
		var err error
		if useTLS {
			err = httpSrv.ListenAndServeTLS("", "")
		} else {
			err = httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(ctx, "http", err)
		}
	}()
	logging.Info(ctx, "escrow market API listening", "port", cfg.Port, "tls", useTLS)

	<-ctx.Done()
	logging.Info(context.Background(), "shutting down")

	shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logging.Warn(shutCtx, "http shutdown", "error", err)
	}
	dispatcher.Wait()
	if err := closeStore(shutCtx); err != nil {
		logging.Warn(shutCtx, "storage close", "error", err)
	}
}

func fatal(ctx context.Context, what string, err error) {
	logging.Error(ctx, "startup failed", "component", what, "error", err)
	os.Exit(1)
}
