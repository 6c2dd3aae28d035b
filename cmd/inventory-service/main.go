package main

import (
	"context"

	"golang.org/x/sync/errgroup"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"stocksaga/internal/pkg/bootstrap"
	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/pkg/mq"
	pkgredis "stocksaga/internal/pkg/redis"
	"stocksaga/internal/service/inventory/application"
	"stocksaga/internal/service/inventory/domain/port"
	"stocksaga/internal/service/inventory/infrastructure"
	"stocksaga/internal/service/inventory/interfaces"
)

const (
	serviceName = "inventory-service"
	servicePort = 8081
	groupID     = "inventory-service"
)

func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	db, err := gorm.Open(gormmysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	if err := infrastructure.AutoMigrate(db); err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to migrate schema")
	}

	store := infrastructure.NewStore(db)

	var publisher port.StockEventsPublisher
	var closer interface{ Close() error }
	if cfg.Infra.Kafka.Enabled {
		kafkaPublisher := infrastructure.NewKafkaStockEventsPublisher(cfg.Infra.Kafka)
		publisher, closer = kafkaPublisher, kafkaPublisher
	} else {
		publisher = infrastructure.NoopStockEventsPublisher{}
	}

	var cache port.StockCache = infrastructure.NoopStockCache{}
	var redisClient *pkgredis.Client
	if cfg.Infra.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Infra.Redis.Addr)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		cache = infrastructure.NewRedisStockCache(redisClient)
	}

	service := application.NewService(
		store,
		store.Ledger(),
		publisher,
		cache,
		cfg.App.Inventory.DefaultStock,
		cfg.App.Inventory.LowStockThreshold,
	)

	handler := interfaces.NewStockHandler(service)
	hub := interfaces.NewLowStockHub()

	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	group, consumerCtx := errgroup.WithContext(consumerCtx)

	var dlt *mq.DeadLetterPublisher
	if cfg.Infra.Kafka.Enabled {
		topics := cfg.Infra.Kafka.Topics
		dlt = mq.NewDeadLetterPublisher(cfg.Infra.Kafka.Brokers, topics.DeadLetter)
		consumers := []*mq.Consumer{
			mq.NewConsumer(mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, topics.OrderCreated, groupID), interfaces.NewOrderCreatedHandler(service)).WithDeadLetter(dlt),
			mq.NewConsumer(mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, topics.OrderCancelled, groupID), interfaces.NewOrderCancelledHandler(service)).WithDeadLetter(dlt),
			mq.NewConsumer(mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, topics.ProductCreated, groupID), interfaces.NewProductCreatedHandler(service)).WithDeadLetter(dlt),
			mq.NewConsumer(mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, topics.LowStock, groupID+"-lowstock-push"), hub.NewBroadcastHandler()),
		}
		for _, c := range consumers {
			c := c
			group.Go(func() error { return c.Run(consumerCtx) })
		}
		group.Go(func() error {
			hub.Run(consumerCtx)
			return nil
		})
	}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
			appCtx.Mux.HandleFunc("/ws/low-stock", hub.ServeWS)
		},
		OnShutdown: func(ctx context.Context) {
			stopConsumers()
			if err := group.Wait(); err != nil && err != context.Canceled {
				logger.Logger.Error().Err(err).Msg("consumer group exited with error")
			}
			if closer != nil {
				if err := closer.Close(); err != nil {
					logger.Logger.Error().Err(err).Msg("error closing kafka writers")
				}
			}
			if dlt != nil {
				if err := dlt.Close(); err != nil {
					logger.Logger.Error().Err(err).Msg("error closing dead letter writer")
				}
			}
			if redisClient != nil {
				if err := redisClient.Close(); err != nil {
					logger.Logger.Error().Err(err).Msg("error closing redis client")
				}
			}
		},
	})
}
