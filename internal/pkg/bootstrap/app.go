// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/pkg/nacos"
	"stocksaga/internal/tracing"
)

type AppCtx struct {
	Mux    *http.ServeMux
	Config Config
	Nacos  *nacos.Client // 可能为 nil（未启用服务注册时）
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx) // 每个服务注册自己独特的 HTTP 路由
	// OnShutdown 在 HTTP 服务器关闭前执行，用于停掉消费者等后台组件。
	OnShutdown func(ctx context.Context)
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
// 调用方必须先 Init() 加载配置。
func StartService(info AppInfo) {
	cfg := GetCurrentConfig()
	logger.Init(info.ServiceName)

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	// 2. 可选：注册到 Nacos，供下游按服务名发现
	var namingClient *nacos.Client
	var ip string
	if cfg.Infra.Nacos.Enabled {
		namingClient, err = nacos.NewClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to initialize nacos client")
		}

		ip, err = getOutboundIP()
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to get outbound IP address")
		}

		if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to register service with nacos")
		}
	}

	// 3. 创建并启动 HTTP Server
	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Config: cfg, Nacos: namingClient})
	}
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}
	go func() {
		logger.Logger.Info().Str("addr", server.Addr).Msgf("%s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal().Err(err).Str("addr", server.Addr).Msg("http server failed")
		}
	}()

	// 4. 优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Logger.Info().Msgf("Shutting down service %s...", info.ServiceName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 按顺序执行清理操作 (后进先出)
	if namingClient != nil {
		if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			logger.Logger.Error().Err(err).Msg("error deregistering from nacos")
		}
	}

	if info.OnShutdown != nil {
		info.OnShutdown(ctx)
	}

	// 关闭 Tracer Provider，确保所有缓冲的 trace 都被发送出去
	if err := tp.Shutdown(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("error shutting down tracer provider")
	}

	if err := server.Shutdown(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("error shutting down http server")
	}

	logger.Logger.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}

// getOutboundIP 获取本机对外通信使用的 IP，用于服务注册。
func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
