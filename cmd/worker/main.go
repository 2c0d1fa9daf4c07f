package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/voxleads/lead-relay/internal/audit"
	"github.com/voxleads/lead-relay/internal/config"
	"github.com/voxleads/lead-relay/internal/crm"
	"github.com/voxleads/lead-relay/internal/notify"
	"github.com/voxleads/lead-relay/internal/repository"
	"github.com/voxleads/lead-relay/internal/worker"
	"github.com/voxleads/lead-relay/pkg/logger"
	"github.com/voxleads/lead-relay/pkg/pg"
	"github.com/voxleads/lead-relay/pkg/prom"
	"github.com/voxleads/lead-relay/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.OpenReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewAdapter("default", config.Get().RedisKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	adapters, err := crm.NewRegistry(
		crm.NewWebhookAdapter(config.Get().DeliveryAdapterTimeout),
		crm.NewGenericAdapter(config.Get().DeliveryAdapterTimeout),
	)
	if err != nil {
		logger.Error("failed to build adapter registry", "error", err)
		return
	}

	var notifier notify.Notifier = notify.NopNotifier{}
	if config.Get().MailRelayURL != "" {
		notifier = notify.NewMailRelayNotifier(
			config.Get().MailRelayURL,
			config.Get().MailFrom,
			config.Get().DeliveryAdapterTimeout,
		)
	}

	submissionRepo := repository.NewSubmissionRepository(db)
	attemptRepo := repository.NewDeliveryAttemptRepository(db)
	connectionRepo := repository.NewConnectionRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	var auditPublisher audit.Publisher
	if len(config.Get().KafkaBrokers) > 0 {
		kp := audit.NewKafkaPublisher(config.Get().KafkaBrokers, config.Get().KafkaAuditTopic)
		defer kp.Close()
		auditPublisher = kp
	}
	recorder := audit.NewRecorder(auditRepo, auditPublisher)

	processor := worker.NewDeliveryProcessor(
		submissionRepo,
		attemptRepo,
		connectionRepo,
		adapters,
		recorder,
		notifier,
		config.Get().DeliveryMaxAttempts,
	)

	service, err := worker.NewService(redisAdap, processor)
	if err != nil {
		logger.Error("failed to create worker service", "error", err)
		return
	}

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	go func() {
		prom.ListenAndServer(config.Get().MetricsAddr, "/metrics")
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		err := service.Start()
		if err != nil {
			logger.Error("failed to start worker service", "error", err)
		}
	}()

	select {
	case <-c:
		service.Stop()
	}
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
