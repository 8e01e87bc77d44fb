// Command server wires the nullifier registry and token ledger behind one
// HTTP listener. Store backends are chosen by configuration: postgres when
// NYMREG_POSTGRES_URL is set, in-memory otherwise; event history goes to
// redis when configured, and events stream to Kafka when brokers are given.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"nymreg/internal/access"
	adminhandler "nymreg/internal/admin/handler"
	"nymreg/internal/events"
	eventskafka "nymreg/internal/events/kafka"
	eventsmem "nymreg/internal/events/store/memory"
	eventspg "nymreg/internal/events/store/postgres"
	eventsredis "nymreg/internal/events/store/redis"
	eventsworker "nymreg/internal/events/worker"
	jwttoken "nymreg/internal/jwt_token"
	ledgerhandler "nymreg/internal/ledger/handler"
	ledgermetrics "nymreg/internal/ledger/metrics"
	ledgersvc "nymreg/internal/ledger/service"
	ledgermem "nymreg/internal/ledger/store/memory"
	ledgerpg "nymreg/internal/ledger/store/postgres"
	"nymreg/internal/platform/config"
	"nymreg/internal/platform/httpserver"
	"nymreg/internal/platform/logger"
	platformmetrics "nymreg/internal/platform/metrics"
	"nymreg/internal/platform/middleware"
	platformredis "nymreg/internal/platform/redis"
	registryhandler "nymreg/internal/registry/handler"
	registrymetrics "nymreg/internal/registry/metrics"
	registrysvc "nymreg/internal/registry/service"
	registrymem "nymreg/internal/registry/store/memory"
	registrypg "nymreg/internal/registry/store/postgres"
	"nymreg/internal/secrets"
	id "nymreg/pkg/domain"
)

func main() {
	log := logger.New()

	if err := run(log); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	adminAccount, err := id.ParseAccount(cfg.AdminAccount)
	if err != nil {
		return fmt.Errorf("NYMREG_ADMIN_ACCOUNT: %w", err)
	}

	secretHash := cfg.AdminSecretHash
	if secretHash == "" {
		// Development convenience: mint a one-off bootstrap secret.
		secret, err := secrets.Generate()
		if err != nil {
			return fmt.Errorf("generate bootstrap secret: %w", err)
		}
		if secretHash, err = secrets.Hash(secret); err != nil {
			return fmt.Errorf("hash bootstrap secret: %w", err)
		}
		log.Warn("NYMREG_ADMIN_SECRET_HASH unset; generated a one-off bootstrap secret",
			"secret", secret,
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.PostgresURL != "" {
		if db, err = sql.Open("postgres", cfg.PostgresURL); err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Event pipeline: store for history, optional Kafka sink. With the
	// postgres outbox the sink is fed by a polling drainer, so delivery
	// survives restarts; the other stores fall back to the in-process inbox.
	var eventStore events.Store
	var outbox *eventspg.Store
	switch {
	case db != nil:
		outbox = eventspg.New(db)
		if err := outbox.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("events schema: %w", err)
		}
		eventStore = outbox
	case redisClient != nil:
		eventStore = eventsredis.New(redisClient.Client)
	default:
		eventStore = eventsmem.New()
	}

	publisherOpts := []events.Option{events.WithLogger(log)}
	var inbox chan events.Event
	var sink *eventskafka.Sink
	if len(cfg.KafkaBrokers) > 0 {
		if sink, err = eventskafka.NewSink(cfg.KafkaBrokers, cfg.KafkaTopic); err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer sink.Close()
		if outbox == nil {
			inbox = make(chan events.Event, 256)
			publisherOpts = append(publisherOpts, events.WithInbox(inbox))
		}
	}
	publisher := events.New(eventStore, publisherOpts...)

	// Domain services.
	ctrl := access.New(adminAccount)

	var registryStore registrysvc.Store
	var ledgerStore ledgersvc.Store
	if db != nil {
		rs := registrypg.New(db)
		if err := rs.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("registry schema: %w", err)
		}
		ls := ledgerpg.New(db)
		if err := ls.EnsureSchema(ctx, cfg.GlobalCap); err != nil {
			return fmt.Errorf("ledger schema: %w", err)
		}
		registryStore, ledgerStore = rs, ls
	} else {
		registryStore, ledgerStore = registrymem.New(), ledgermem.New(cfg.GlobalCap)
	}

	regMetrics := registrymetrics.New()
	registry, err := registrysvc.New(registryStore, ctrl,
		registrysvc.WithLogger(log),
		registrysvc.WithEvents(publisher),
		registrysvc.WithMetrics(regMetrics),
	)
	if err != nil {
		return fmt.Errorf("build registry service: %w", err)
	}

	ledger, err := ledgersvc.New(ledgerStore, registry, ctrl,
		ledgersvc.WithLogger(log),
		ledgersvc.WithEvents(publisher),
		ledgersvc.WithMetrics(ledgermetrics.New()),
		ledgersvc.WithPerOpCap(cfg.PerOpCap),
	)
	if err != nil {
		return fmt.Errorf("build ledger service: %w", err)
	}

	jwts := jwttoken.NewJWTService(cfg.JWTSigningKey, "nymreg", "nymreg-api")
	validator := jwttoken.NewJWTServiceAdapter(jwts)

	// Router.
	httpMetrics := platformmetrics.New()
	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Latency(httpMetrics))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.ContentTypeJSON)

	registryhandler.New(registry, jwts, validator, log).Register(router)
	ledgerhandler.New(ledger, validator, log).Register(router)
	adminhandler.New(registry, ctrl, jwts, validator, secretHash, log,
		adminhandler.WithMetrics(regMetrics),
		adminhandler.WithEventLog(publisher),
	).Register(router)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting nymreg", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if sink != nil {
		if outbox != nil {
			drainer := eventsworker.NewDrainer(outbox, sink, log)
			group.Go(func() error {
				return drainer.Run(groupCtx)
			})
		} else {
			worker := eventsworker.New(sink, inbox, log)
			group.Go(func() error {
				return worker.Run(groupCtx)
			})
		}
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	return group.Wait()
}
