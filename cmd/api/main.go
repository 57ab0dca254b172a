package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"careportal.org/internal/audit"
	"careportal.org/internal/auth"
	"careportal.org/internal/config"
	"careportal.org/internal/httpapi"
	"careportal.org/internal/obs"
	pgstore "careportal.org/internal/store/pg"
	redisstore "careportal.org/internal/store/redis"
	"careportal.org/internal/stream"
)

// Overridden at build time via -ldflags.
var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	codec, err := auth.NewCodec(cfg.AuthSecret, auth.WithCodecIssuer(cfg.TokenIssuer))
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	creds, err := auth.NewCredentialStore(cfg.BcryptCost)
	if err != nil {
		log.Fatalf("credential store: %v", err)
	}

	// Persistent store: PostgreSQL when a DSN is configured, in-memory
	// otherwise. The in-memory store is for development only.
	var (
		store    auth.Store
		apiOpts  []httpapi.Option
		closeFns []func() error
	)
	if cfg.PGDSN != "" {
		pg, err := pgstore.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open postgres: %v", err)
		}
		closeFns = append(closeFns, pg.Close)
		store = pg
		apiOpts = append(apiOpts,
			httpapi.WithReadyProbe(httpapi.ReadyProbe{Check: pg.Ping}),
			httpapi.WithCaseStore(pgstore.NewCaseResolver(pg)),
		)
	} else {
		log.Println("CAREPORTAL_PG_DSN not set, using in-memory store")
		store = auth.NewMemoryStore()
	}

	// Refresh tokens can live in Redis independently of the main store.
	refreshTokens := store.RefreshTokens(ctx)
	if cfg.RedisAddr != "" {
		rts, err := redisstore.Open(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("open redis: %v", err)
		}
		closeFns = append(closeFns, rts.Close)
		refreshTokens = rts
	}

	sessions, err := auth.NewSessionRegistry(refreshTokens, cfg.RefreshTTL)
	if err != nil {
		log.Fatalf("session registry: %v", err)
	}

	events := stream.New()
	apiOpts = append(apiOpts, httpapi.WithAuditStream(events))

	sink := audit.NewSink(
		audit.WithStore(store.Audit(ctx)),
		audit.WithPublisher(events),
	)

	svc, err := auth.NewService(store, codec, creds, sessions,
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithAuditSink(sink),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	// Periodically clear expired refresh records so replay tombstones do not
	// accumulate forever.
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := svc.Sessions().SweepExpired(ctx); err != nil {
					log.Printf("session sweep: %v", err)
				} else if n > 0 {
					log.Printf("session sweep: removed %d expired tokens", n)
				}
			}
		}
	}()

	api := httpapi.New(svc, version, apiOpts...)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting careportal-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	for _, closeFn := range closeFns {
		_ = closeFn()
	}
	log.Println("Stopped")
}
