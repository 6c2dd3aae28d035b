package main

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"stocksaga/internal/pkg/bootstrap"
	"stocksaga/internal/pkg/httpclient"
	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/pkg/mq"
	"stocksaga/internal/service/order/application"
	"stocksaga/internal/service/order/domain/port"
	"stocksaga/internal/service/order/infrastructure"
	"stocksaga/internal/service/order/interfaces"
)

const (
	serviceName = "orders-service"
	servicePort = 8080
	groupID     = "orders-service"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

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

	var publisher port.OrderEventsPublisher
	var closer interface{ Close() error }
	if cfg.Infra.Kafka.Enabled {
		kafkaPublisher := infrastructure.NewKafkaOrderEventsPublisher(cfg.Infra.Kafka)
		publisher, closer = kafkaPublisher, kafkaPublisher
	} else {
		publisher = infrastructure.NoopOrderEventsPublisher{}
	}

	inventoryBaseURL := getEnv("INVENTORY_SERVICE_URL", "http://localhost:8081")

	var dlt *mq.DeadLetterPublisher
	if cfg.Infra.Kafka.Enabled {
		dlt = mq.NewDeadLetterPublisher(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.Topics.DeadLetter)
	}

	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	group, consumerCtx := errgroup.WithContext(consumerCtx)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			// Nacos 客户端由 bootstrap 按配置创建，这里顺便用于发现库存服务
			inventoryClient := infrastructure.NewHTTPInventoryClient(
				httpclient.NewClient(otel.Tracer(serviceName)),
				appCtx.Nacos,
				inventoryBaseURL,
			)
			service := application.NewService(store, store.Orders(), publisher, inventoryClient)
			interfaces.NewOrderHandler(service).RegisterRoutes(appCtx.Mux)

			if cfg.Infra.Kafka.Enabled {
				topics := cfg.Infra.Kafka.Topics
				consumers := []*mq.Consumer{
					mq.NewConsumer(mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, topics.StockReserved, groupID), interfaces.NewStockReservedHandler(service)).WithDeadLetter(dlt),
					mq.NewConsumer(mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, topics.StockReservationFailed, groupID), interfaces.NewStockReservationFailedHandler(service)).WithDeadLetter(dlt),
					mq.NewConsumer(mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, topics.StockReleased, groupID), interfaces.NewStockReleasedHandler(service)).WithDeadLetter(dlt),
					mq.NewConsumer(mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, topics.ProductCreated, groupID), interfaces.NewProductCreatedHandler(service)).WithDeadLetter(dlt),
				}
				for _, c := range consumers {
					c := c
					group.Go(func() error { return c.Run(consumerCtx) })
				}
			}
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
		},
	})
}
