// cmd/worker-manager/main.go
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.uber.org/zap"

	"billing-workers/internal/api"
	"billing-workers/internal/billing/payments"
	"billing-workers/internal/common/aws"
	"billing-workers/internal/common/camunda"
	"billing-workers/internal/common/config"
	"billing-workers/internal/common/database"
	"billing-workers/internal/common/logger"
	"billing-workers/internal/common/observability"
	"billing-workers/internal/notification/channel"
	"billing-workers/internal/notification/dispatch"
	"billing-workers/internal/notification/events"
	"billing-workers/internal/notification/lock"
	"billing-workers/internal/notification/preferences"
	"billing-workers/internal/notification/search"
	"billing-workers/internal/notification/store"
	"billing-workers/internal/notification/template"
	"billing-workers/internal/scheduler"
	"billing-workers/pkg/registry"

	gps "billing-workers/internal/workers/billing/generate-payment-schedule"
	rpr "billing-workers/internal/workers/notification/run-payment-reminders"
	sbn "billing-workers/internal/workers/notification/send-bulk-notifications"
	sn "billing-workers/internal/workers/notification/send-notification"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	bootLog := logger.New("info", "console")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog, err := logger.Build(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		Fields: map[string]interface{}{"service": cfg.App.Name},
	})
	if err != nil {
		bootLog.Fatal("logger setup failed", zap.Error(err))
	}
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	log.Info("starting worker manager", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	obs := observability.New(cfg.Observability.ServiceName, cfg.Observability.JaegerEndpoint)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var readiness []api.Option

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	if cfg.Database.Postgres.Host != "" {
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, log, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		readiness = append(readiness, api.WithReadinessCheck("postgres", pg.Ping))
		log.Info("PostgreSQL connected successfully", nil)
	}

	// --- Redis ---
	var rdb *database.RedisClient
	if cfg.Database.Redis.Address != "" {
		rdb = database.NewRedis(cfg.Database.Redis)
		err = retryWithBackoff(func() error { return rdb.Ping(ctx) }, 10, 2*time.Second, log, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rdb.Close()
		readiness = append(readiness, api.WithReadinessCheck("redis", rdb.Ping))
		log.Info("Redis connected successfully", nil)
	}

	// --- Notification store and preferences ---
	var notifications store.Store
	var prefs preferences.Lookup = preferences.Static{}
	switch cfg.Notifications.Store {
	case "memory":
		notifications = store.NewMemory()
		log.Warn("using in-memory notification store; history is lost on restart", nil)
	default:
		notifications = store.NewPostgres(pg.DB)
	}
	if pg != nil {
		prefs = preferences.NewPostgresLookup(pg.DB)
		if rdb != nil {
			prefs = preferences.NewCachedLookup(prefs, rdb.Client, config.GetDuration(cfg.Notifications.PreferenceCacheTTL), log)
		}
	}

	// --- Templates ---
	reg, err := registry.LoadOrDefault(cfg.Notifications.TemplateRegistry)
	if err != nil {
		zapLog.Fatal("template registry load failed", zap.Error(err))
	}
	if err := reg.Validate(); err != nil {
		zapLog.Fatal("template registry invalid", zap.Error(err))
	}
	renderer := template.NewRenderer(reg, cfg.Notifications.DefaultLanguage)

	// --- Channels ---
	channels, err := buildChannels(ctx, cfg, log)
	if err != nil {
		zapLog.Fatal("channel setup failed", zap.Error(err))
	}
	log.Info("delivery channels configured", map[string]interface{}{"channels": channels.Channels()})

	// --- Dispatch engine ---
	engineOpts := []dispatch.Option{dispatch.WithObservability(obs)}

	if cfg.Integrations.Kafka.Enabled {
		publisher := events.NewKafkaPublisher(cfg.Integrations.Kafka.Brokers, cfg.Integrations.Kafka.Topic, log)
		defer publisher.Close()
		engineOpts = append(engineOpts, dispatch.WithListener(publisher))
	}

	var indexer *search.Indexer
	if cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, log, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		indexer = search.NewIndexer(esClient.Client, esClient.Index, log)
		engineOpts = append(engineOpts, dispatch.WithListener(indexer))
		readiness = append(readiness, api.WithReadinessCheck("elasticsearch", esClient.Ping))
		log.Info("Elasticsearch connected successfully", nil)
	}

	engine := dispatch.NewEngine(dispatch.ConfigFrom(cfg.Notifications), notifications, prefs, renderer, channels, log, engineOpts...)

	// --- Scheduler ---
	var sched *scheduler.Scheduler
	if pg != nil {
		schedCfg, err := scheduler.ConfigFrom(cfg.Scheduler)
		if err != nil {
			zapLog.Fatal("scheduler config invalid", zap.Error(err))
		}
		var schedOpts []scheduler.Option
		if cfg.Scheduler.DistributedLock {
			schedOpts = append(schedOpts, scheduler.WithLocker(lock.NewRedisLocker(rdb.Client, "billing:scheduler:")))
		}
		sched = scheduler.New(schedCfg, engine, payments.NewRepository(pg.DB), log, schedOpts...)
		if cfg.Scheduler.Enabled {
			if err := sched.Start(ctx); err != nil {
				zapLog.Fatal("scheduler start failed", zap.Error(err))
			}
			defer sched.Stop()
		}
	} else {
		log.Warn("no postgres configured; payment schedule persistence and reminders are disabled", nil)
	}

	// --- Workers ---
	var workers []worker.JobWorker
	if cfg.Camunda.Enabled {
		zeebe, err := camunda.Connect(ctx, cfg.Camunda, camunda.DefaultRetryConfig, log)
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zeebe.Close()
		readiness = append(readiness, api.WithReadinessCheck("zeebe", zeebe.HealthCheck))
		log.Info("Zeebe client connected successfully", nil)

		workers, err = startWorkers(zeebe, cfg, engine, sched, pg, log)
		if err != nil {
			zapLog.Fatal("worker setup failed", zap.Error(err))
		}
	}
	defer func() {
		for _, w := range workers {
			w.Close()
			w.AwaitClose()
		}
	}()

	// --- HTTP ---
	serverOpts := readiness
	if indexer != nil {
		serverOpts = append(serverOpts, api.WithSearch(indexer))
	}
	var trigger api.Trigger = noScheduler{log: log}
	if sched != nil {
		trigger = sched
	}
	srv := api.NewServer(engine, trigger, log, serverOpts...)

	log.Info("worker manager started", map[string]interface{}{
		"address": cfg.Server.Address,
		"workers": len(workers),
	})
	if err := srv.ListenAndServe(ctx, cfg.Server.Address); err != nil {
		log.Error("http server stopped", map[string]interface{}{"error": err.Error()})
	}
	log.Info("shutting down", nil)
}

func buildChannels(ctx context.Context, cfg *config.Config, log logger.Logger) (*channel.Registry, error) {
	rules := channel.PhoneRules{
		CountryCode:      cfg.Notifications.Phone.CountryCode,
		SubscriberLength: cfg.Notifications.Phone.SubscriberLength,
		MobilePrefix:     cfg.Notifications.Phone.MobilePrefix,
	}
	integrations := cfg.Integrations
	reg := channel.NewRegistry(channel.NewInAppAdapter())

	if integrations.WhatsApp.Enabled {
		reg.Register(channel.NewWhatsAppAdapter(integrations.WhatsApp, rules, config.GetDuration(cfg.Notifications.SendTimeout), log))
	}

	switch {
	case integrations.AWS.SES.Enabled:
		client, err := aws.NewSESClient(ctx, integrations.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
		reg.Register(channel.NewEmailAdapter(client, integrations.AWS.SES.FromEmail))
	case integrations.SMTP.Enabled:
		reg.Register(channel.NewSMTPAdapter(channel.SMTPConfig{
			Host:     integrations.SMTP.Host,
			Port:     integrations.SMTP.Port,
			Username: integrations.SMTP.Username,
			Password: integrations.SMTP.Password,
			From:     integrations.SMTP.DefaultFrom,
			UseTLS:   integrations.SMTP.UseTLS,
		}))
	}

	if integrations.AWS.SNS.Enabled {
		client, err := aws.NewSNSClient(ctx, integrations.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
		reg.Register(channel.NewSMSAdapter(client, integrations.AWS.SNS.DefaultSMSSenderID, rules))
	}
	return reg, nil
}

func startWorkers(zeebe *camunda.Client, cfg *config.Config, engine *dispatch.Engine, sched *scheduler.Scheduler, pg *database.PostgresClient, log logger.Logger) ([]worker.JobWorker, error) {
	client := zeebe.GetClient()
	var workers []worker.JobWorker
	add := func(taskType string, handler camunda.JobHandler) {
		if jw := camunda.StartWorker(client, taskType, config.GetWorkerConfig(cfg, taskType), handler, log); jw != nil {
			workers = append(workers, jw)
		}
	}

	var writer gps.ScheduleWriter
	if pg != nil {
		writer = payments.NewRepository(pg.DB)
	}
	scheduleHandler, err := gps.NewHandler(gps.HandlerOptions{AppConfig: cfg, Writer: writer, Logger: log})
	if err != nil {
		return workers, fmt.Errorf("create %s handler: %w", gps.TaskType, err)
	}
	add(gps.TaskType, scheduleHandler)

	sendHandler, err := sn.NewHandler(sn.HandlerOptions{AppConfig: cfg, Sender: engine, Logger: log})
	if err != nil {
		return workers, fmt.Errorf("create %s handler: %w", sn.TaskType, err)
	}
	add(sn.TaskType, sendHandler)

	bulkHandler, err := sbn.NewHandler(sbn.HandlerOptions{AppConfig: cfg, Sender: engine, Logger: log})
	if err != nil {
		return workers, fmt.Errorf("create %s handler: %w", sbn.TaskType, err)
	}
	add(sbn.TaskType, bulkHandler)

	if sched != nil {
		runHandler, err := rpr.NewHandler(rpr.HandlerOptions{AppConfig: cfg, Runner: sched, Logger: log})
		if err != nil {
			return workers, fmt.Errorf("create %s handler: %w", rpr.TaskType, err)
		}
		add(rpr.TaskType, runHandler)
	}

	return workers, nil
}

// noScheduler answers manual reminder triggers when no payments source is configured.
type noScheduler struct {
	log logger.Logger
}

func (n noScheduler) TriggerReminders() {
	n.log.Warn("payment reminder run requested but the scheduler is disabled", nil)
}
