// Command server runs the vault engine: wiring config, stores, domain
// services, the event feed, and the HTTP boundary. Business logic lives in the
// internal service packages.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	accsvc "fhevault/internal/access/service"
	accstore "fhevault/internal/access/store"
	auditsvc "fhevault/internal/audit/service"
	auditstore "fhevault/internal/audit/store"
	"fhevault/internal/events"
	"fhevault/internal/platform/config"
	"fhevault/internal/platform/httpserver"
	"fhevault/internal/platform/keymutex"
	"fhevault/internal/platform/logger"
	"fhevault/internal/platform/metrics"
	"fhevault/internal/platform/postgres"
	platformredis "fhevault/internal/platform/redis"
	"fhevault/internal/proof"
	recsvc "fhevault/internal/records/service"
	recstore "fhevault/internal/records/store"
	httptransport "fhevault/internal/transport/http"
	usersvc "fhevault/internal/users/service"
	userstore "fhevault/internal/users/store"
	"fhevault/internal/vault"
	id "fhevault/pkg/domain"
	"fhevault/pkg/platform/tx"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: PostgreSQL when a DSN is configured, in-memory otherwise.
	var (
		users   userstore.Store  = userstore.NewMemory()
		records recstore.Store   = recstore.NewMemory()
		audits  auditstore.Store = auditstore.NewMemory()
		acls    accstore.Store   = accstore.NewMemory()
		runner  tx.Runner        = tx.Passthrough{}
	)
	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()

		userPg := userstore.NewPostgres(db)
		recordPg := recstore.NewPostgres(db)
		auditPg := auditstore.NewPostgres(db)
		aclPg := accstore.NewPostgres(db)
		for _, ensure := range []func(context.Context) error{
			userPg.EnsureSchema, recordPg.EnsureSchema, auditPg.EnsureSchema, aclPg.EnsureSchema,
		} {
			if err := ensure(ctx); err != nil {
				return err
			}
		}
		// Redis, when configured below, takes the ACL store over Postgres.
		users, records, audits, acls = userPg, recordPg, auditPg, aclPg
		runner = tx.NewSQLRunner(db)
		log.Info("using postgres stores")
	}

	if cfg.RedisURL != "" {
		redisClient, err := platformredis.New(cfg.Redis())
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		acls = accstore.NewRedis(redisClient)
		log.Info("using redis acl store")
	}

	verifier, err := buildVerifier(cfg)
	if err != nil {
		return err
	}

	bus := events.NewBus(events.WithLogger(log))
	defer bus.Close()

	locks := keymutex.New()
	m := metrics.New()

	userService, err := usersvc.New(users,
		usersvc.WithLogger(log),
		usersvc.WithPublisher(bus),
		usersvc.WithDefaultQuota(cfg.DefaultStorageQuota),
		usersvc.WithReputationFloor(cfg.ReputationFloor),
		usersvc.WithAuthority(id.Address(cfg.ReputationAuthority)),
	)
	if err != nil {
		return err
	}
	accessService, err := accsvc.New(acls, records,
		accsvc.WithLogger(log), accsvc.WithPublisher(bus))
	if err != nil {
		return err
	}
	recordService, err := recsvc.New(records, userService, accessService, locks,
		recsvc.WithLogger(log), recsvc.WithPublisher(bus))
	if err != nil {
		return err
	}
	auditService, err := auditsvc.New(audits, records, accessService, locks,
		auditsvc.WithLogger(log), auditsvc.WithRunner(runner))
	if err != nil {
		return err
	}
	engine, err := vault.New(userService, recordService, accessService, auditService, verifier,
		vault.WithLogger(log), vault.WithMetrics(m))
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.NewHandler(engine, log), []byte(cfg.JWTSigningKey))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", router)

	srv := httpserver.New(cfg.Addr, mux)

	g, ctx := errgroup.WithContext(ctx)

	if len(cfg.KafkaBrokers) > 0 {
		sink, err := events.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			return fmt.Errorf("kafka sink: %w", err)
		}
		sub, cancel := bus.Subscribe(256)
		g.Go(func() error {
			defer cancel()
			defer sink.Close()
			if err := sink.Run(ctx, sub); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("kafka sink: %w", err)
			}
			return nil
		})
		log.Info("kafka event sink enabled", "topic", cfg.KafkaTopic)
	}

	g.Go(func() error {
		log.Info("vault engine listening", "addr", cfg.Addr, "proof_mode", cfg.ProofMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildVerifier(cfg config.Config) (proof.Verifier, error) {
	switch cfg.ProofMode {
	case "mac":
		v, err := proof.NewMAC([]byte(cfg.ProofKey))
		if err != nil {
			return nil, err
		}
		return v, nil
	case "allow", "":
		return proof.Static{Allow: true}, nil
	default:
		return nil, fmt.Errorf("unknown proof mode %q", cfg.ProofMode)
	}
}
