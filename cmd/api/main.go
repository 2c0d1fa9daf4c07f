package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/voxleads/lead-relay/internal/audit"
	"github.com/voxleads/lead-relay/internal/config"
	"github.com/voxleads/lead-relay/internal/handlers"
	"github.com/voxleads/lead-relay/internal/queue"
	"github.com/voxleads/lead-relay/internal/repository"
	"github.com/voxleads/lead-relay/internal/services"
	xhttp "github.com/voxleads/lead-relay/pkg/http"
	"github.com/voxleads/lead-relay/pkg/logger"
	"github.com/voxleads/lead-relay/pkg/pg"
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

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 5))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

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

	q, err := queue.New(redisAdap, queue.Config{
		Name:          config.Get().QueueName,
		ConsumerGroup: config.Get().QueueConsumerGroup,
		ConsumerName:  config.Get().QueueConsumerName,
		MaxAttempts:   config.Get().DeliveryMaxAttempts,
		BackoffBase:   config.Get().DeliveryBackoffBase,
		PollInterval:  config.Get().QueuePollInterval,
		BatchSize:     config.Get().QueueBatchSize,
		MaxLen:        config.Get().QueueMaxLen,
		EnableDLQ:     true,
	})
	if err != nil {
		logger.Error("failed creating queue", "error", err)
		return
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

	// services
	intakeService := services.NewIntakeService(submissionRepo, connectionRepo, recorder, q)
	statsService := services.NewStatsService(attemptRepo, q)

	// v1 handlers
	leadHandler := handlers.NewLeadHandler(intakeService)
	statsHandler := handlers.NewStatsHandler(statsService)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := db.Read(ctx).DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return redisAdap.Client().Ping(ctx).Err()
		},
	})

	g := s.Router.Group("/api/v1")
	handlers.RegisterLeadRoutes(g, leadHandler)
	handlers.RegisterStatsRoutes(g, statsHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	select {
	case <-c:
		s.Shutdown()
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
