// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"stocksaga/internal/pkg/logger"
)

// Config 汇总了一个服务运行所需的全部配置。
// 配置来源：CONFIG_FILE 指向的 YAML 文件 + 少量环境变量覆盖。
type Config struct {
	App   AppConfig   `yaml:"app"`
	Infra InfraConfig `yaml:"infra"`
}

type AppConfig struct {
	Inventory InventoryConfig `yaml:"inventory"`
}

type InventoryConfig struct {
	DefaultStock      int `yaml:"default-stock"`
	LowStockThreshold int `yaml:"low-stock-threshold"`
}

type InfraConfig struct {
	Mysql  MysqlConfig  `yaml:"mysql"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	Redis  RedisConfig  `yaml:"redis"`
	Jaeger JaegerConfig `yaml:"jaeger"`
	Nacos  NacosConfig  `yaml:"nacos"`
}

type MysqlConfig struct {
	DSN string `yaml:"dsn"`
}

type KafkaConfig struct {
	// Enabled 为 false 时，事件发布走 no-op 实现，消费者不启动。
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topics  Topics   `yaml:"topics"`
}

// Topics 每种领域事件对应一个独立的主题。
type Topics struct {
	OrderCreated           string `yaml:"order-created"`
	OrderCancelled         string `yaml:"order-cancelled"`
	ProductCreated         string `yaml:"product-created"`
	StockReserved          string `yaml:"stock-reserved"`
	StockReservationFailed string `yaml:"stock-reservation-failed"`
	StockReleased          string `yaml:"stock-released"`
	LowStock               string `yaml:"low-stock"`
	DeadLetter             string `yaml:"dead-letter"`
}

type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type NacosConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServerAddrs string `yaml:"server-addrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

var (
	currentConfig Config
	configOnce    sync.Once
)

// Init 加载配置，必须在 StartService 之前调用。重复调用是安全的。
func Init() {
	configOnce.Do(func() {
		currentConfig = defaultConfig()

		path := getEnv("CONFIG_FILE", "")
		if path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				logger.Logger.Fatal().Err(err).Str("path", path).Msg("failed to read config file")
			}
			if err := yaml.Unmarshal(data, &currentConfig); err != nil {
				logger.Logger.Fatal().Err(err).Str("path", path).Msg("failed to parse config file")
			}
		}

		applyEnvOverrides(&currentConfig)
	})
}

// GetCurrentConfig 返回进程级配置。调用前必须先 Init。
func GetCurrentConfig() Config {
	return currentConfig
}

func defaultConfig() Config {
	return Config{
		App: AppConfig{
			Inventory: InventoryConfig{
				DefaultStock:      100,
				LowStockThreshold: 5,
			},
		},
		Infra: InfraConfig{
			Mysql: MysqlConfig{
				DSN: "root:root@tcp(localhost:3306)/stocksaga?charset=utf8mb4&parseTime=True&loc=UTC",
			},
			Kafka: KafkaConfig{
				Enabled: true,
				Brokers: []string{"localhost:9092"},
				Topics: Topics{
					OrderCreated:           "order-created",
					OrderCancelled:         "order-cancelled",
					ProductCreated:         "product-created",
					StockReserved:          "stock-reserved",
					StockReservationFailed: "stock-reservation-failed",
					StockReleased:          "stock-released",
					LowStock:               "low-stock",
					DeadLetter:             "dead-letter",
				},
			},
			Redis: RedisConfig{
				Enabled: false,
				Addr:    "localhost:6379",
			},
			Jaeger: JaegerConfig{
				Endpoint: "http://localhost:14268/api/traces",
			},
			Nacos: NacosConfig{
				Enabled:     false,
				ServerAddrs: "localhost:8848",
				Group:       "DEFAULT_GROUP",
			},
		},
	}
}

// applyEnvOverrides 允许容器环境在不改配置文件的情况下覆盖关键项。
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.Infra.Mysql.DSN = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Infra.Redis.Addr = v
		cfg.Infra.Redis.Enabled = true
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("NACOS_SERVER_ADDRS"); v != "" {
		cfg.Infra.Nacos.ServerAddrs = v
		cfg.Infra.Nacos.Enabled = true
	}
	if v := os.Getenv("NACOS_NAMESPACE"); v != "" {
		cfg.Infra.Nacos.Namespace = v
	}
	if v := os.Getenv("NACOS_GROUP"); v != "" {
		cfg.Infra.Nacos.Group = v
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
