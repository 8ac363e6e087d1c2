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

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"captable/internal/company/store"
	"captable/internal/directory"
	"captable/internal/mail"
	"captable/internal/notification"
	"captable/internal/platform/config"
	"captable/internal/platform/httpserver"
	"captable/internal/platform/kafka"
	"captable/internal/platform/logger"
	"captable/internal/platform/postgres"
	"captable/internal/platform/rabbitmq"
	"captable/internal/platform/redis"
	"captable/internal/registry"
	"captable/internal/verification"
	"captable/internal/verification/backoff"
	verificationMetrics "captable/internal/verification/metrics"
	"captable/internal/verification/queue"
	audit "captable/pkg/platform/audit"
	"captable/pkg/platform/audit/publisher"
	kafkaAudit "captable/pkg/platform/audit/store/kafka"
	memoryAudit "captable/pkg/platform/audit/store/memory"
	postgresAudit "captable/pkg/platform/audit/store/postgres"
)

const (
	clientID        = "captable-verification-worker"
	shutdownTimeout = 30 * time.Second
)

// main loads configuration, builds the verification pipeline and runs the
// queue consumer, the pending-verification sweep and the ops HTTP server
// until a signal arrives.
func main() {
	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("verification worker stopped", "error", err)
		os.Exit(1)
	}
	log.Info("verification worker stopped")
}

// infra holds the connections opened at startup. Nil fields were not configured.
type infra struct {
	db     *pgxpool.Pool
	redis  *redis.Client
	amqp   *rabbitmq.Producer
	closer []func()
}

func (i *infra) close() {
	for n := len(i.closer) - 1; n >= 0; n-- {
		i.closer[n]()
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	auditStore, checks, err := auditSink(ctx, cfg, deps, log)
	if err != nil {
		return err
	}
	auditPublisher := publisher.NewPublisher(auditStore,
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics(reg)),
	)

	var (
		companies companyStore
		contacts  directory.Lookup
	)
	if deps.db != nil {
		companies = store.NewPostgres(deps.db)
		contacts = directory.NewPostgres(deps.db)
		checks["postgres"] = deps.db.Ping
	} else {
		log.Warn("DATABASE_URL not set, companies and contacts are kept in memory")
		companies = store.NewInMemory()
		contacts = directory.NewInMemory()
	}

	var notifier notification.Notifier = notification.NewRecorder()
	if deps.redis != nil {
		notifier = notification.NewRedisNotifier(deps.redis.Client)
		checks["redis"] = deps.redis.Health
	}

	var mailer mail.Mailer = mail.NewOutbox()
	if deps.amqp != nil {
		mailer = mail.NewQueueMailer(deps.amqp, cfg.MailExchange, cfg.MailRoutingKey)
		checks["rabbitmq"] = deps.amqp.Health
	} else {
		log.Warn("RABBITMQ_URL not set, emails are kept in an in-memory outbox")
	}

	m := verificationMetrics.New(reg)
	coordinator := verification.NewCoordinator(auditPublisher, notifier, mailer, contacts,
		verification.WithCoordinatorLogger(log),
		verification.WithCoordinatorMetrics(m),
		verification.WithSideEffectTimeout(cfg.SideEffectTimeout),
	)
	worker := verification.NewWorker(companies, registryClient(cfg, log), coordinator,
		verification.WithWorkerLogger(log),
		verification.WithWorkerMetrics(m),
		verification.WithLookupTimeout(cfg.RegistryTimeout),
	)

	policy := queue.Policy{
		Queue:       cfg.QueueName,
		MaxAttempts: cfg.VerificationMaxAttempts,
		Backoff:     backoff.NewExponential(cfg.VerificationBackoffBase, cfg.VerificationBackoffMax),
		Timeout:     cfg.VerificationJobTimeout,
	}

	jobs, err := newQueueRuntime(cfg, policy, log)
	if err != nil {
		return err
	}
	defer jobs.close()

	dispatcher := verification.NewDispatcher(jobs.enqueuer,
		verification.WithDispatcherLogger(log),
		verification.WithDispatcherMetrics(m),
	)
	reconciler := verification.NewReconciler(companies, dispatcher,
		verification.WithReconcilerLogger(log),
		verification.WithReconcilerMetrics(m),
		verification.WithReconcileInterval(cfg.ReconcileInterval),
		verification.WithStaleAfter(cfg.ReconcileStaleAfter),
	)

	ops := httpserver.New(cfg.OpsAddr, httpserver.OpsRouter(reg, checks))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("ops server listening", "addr", cfg.OpsAddr)
		if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return ops.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return jobs.consume(gctx, worker)
	})
	g.Go(func() error {
		return reconciler.Run(gctx)
	})
	return g.Wait()
}

func connect(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	deps := &infra{}
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, postgres.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return nil, err
		}
		deps.db = pool
		deps.closer = append(deps.closer, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			deps.close()
			return nil, err
		}
	}

	client, err := redis.New(ctx, redis.Config{URL: cfg.RedisURL})
	if err != nil {
		deps.close()
		return nil, err
	}
	if client != nil {
		deps.redis = client
		deps.closer = append(deps.closer, func() { _ = client.Close() })
	}

	if cfg.RabbitMQURL != "" {
		producer, err := rabbitmq.NewProducer(cfg.RabbitMQURL)
		if err != nil {
			deps.close()
			return nil, err
		}
		deps.amqp = producer
		deps.closer = append(deps.closer, producer.Close)
	}
	log.Info("infrastructure connected",
		"postgres", deps.db != nil,
		"redis", deps.redis != nil,
		"rabbitmq", deps.amqp != nil,
	)
	return deps, nil
}

func auditSink(ctx context.Context, cfg config.Config, deps *infra, log *slog.Logger) (audit.Store, map[string]httpserver.Check, error) {
	checks := map[string]httpserver.Check{}
	switch cfg.AuditSink {
	case config.AuditSinkPostgres:
		if deps.db == nil {
			return nil, nil, errors.New("postgres audit sink requires DATABASE_URL")
		}
		return postgresAudit.New(deps.db), checks, nil
	case config.AuditSinkKafka:
		client, err := kafka.NewProducer(cfg.Brokers(), clientID)
		if err != nil {
			return nil, nil, err
		}
		deps.closer = append(deps.closer, client.Close)
		if err := kafka.EnsureTopic(ctx, client, cfg.KafkaAuditTopic, 3, 1); err != nil {
			return nil, nil, err
		}
		checks["kafka"] = func(ctx context.Context) error { return kafka.Health(ctx, client) }
		return kafkaAudit.New(client, cfg.KafkaAuditTopic), checks, nil
	default:
		log.Warn("audit events are kept in memory")
		return memoryAudit.NewInMemoryStore(), checks, nil
	}
}

func registryClient(cfg config.Config, log *slog.Logger) registry.Client {
	if cfg.RegistryMode == config.RegistryModeMock {
		log.Warn("using the deterministic registry mock")
		return registry.NewMockClient()
	}
	return registry.NewHTTPClient(cfg.RegistryBaseURL,
		registry.WithAPIKey(cfg.RegistryAPIKey),
		registry.WithTimeout(cfg.RegistryTimeout),
	)
}

// companyStore is what the worker and the pending sweep need from storage.
type companyStore interface {
	verification.CompanyStore
	verification.PendingLister
}

// queueRuntime pairs the producer side of the configured queue with its
// consumer. The memory runtime is its own producer.
type queueRuntime struct {
	enqueuer verification.Enqueuer
	consume  func(ctx context.Context, worker *verification.Worker) error
	close    func()
}

func newQueueRuntime(cfg config.Config, policy queue.Policy, log *slog.Logger) (*queueRuntime, error) {
	if cfg.QueueDriver == config.QueueDriverMemory {
		log.Warn("in-memory queue: jobs are lost on restart, only the pending sweep feeds it")
		mq := queue.NewMemory(policy,
			queue.WithMemoryLogger(log),
			queue.WithConcurrency(cfg.QueueConcurrency),
		)
		return &queueRuntime{
			enqueuer: mq,
			consume: func(ctx context.Context, worker *verification.Worker) error {
				err := mq.Run(ctx, worker)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			},
			close: func() {},
		}, nil
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url for asynq: %w", err)
	}
	client := asynq.NewClient(redisOpt)
	return &queueRuntime{
		enqueuer: queue.NewAsynqEnqueuer(client, policy),
		consume: func(ctx context.Context, worker *verification.Worker) error {
			srv := queue.NewServer(redisOpt, queue.ServerConfig{
				Concurrency:     cfg.QueueConcurrency,
				Policy:          policy,
				ShutdownTimeout: shutdownTimeout,
			}, log)
			mux := queue.NewServeMux(queue.NewHandler(worker, policy.MaxAttempts, log))
			if err := srv.Start(mux); err != nil {
				return fmt.Errorf("start asynq server: %w", err)
			}
			log.Info("consuming verification jobs", "queue", policy.Queue, "concurrency", cfg.QueueConcurrency)
			<-ctx.Done()
			srv.Shutdown()
			return nil
		},
		close: func() { _ = client.Close() },
	}, nil
}
