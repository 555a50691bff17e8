package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shipscreen/smh-service/internal/client"
	"github.com/shipscreen/smh-service/internal/config"
	"github.com/shipscreen/smh-service/internal/geo"
	"github.com/shipscreen/smh-service/internal/handler"
	"github.com/shipscreen/smh-service/internal/metrics"
	"github.com/shipscreen/smh-service/internal/mqtt"
	"github.com/shipscreen/smh-service/internal/repository"
	"github.com/shipscreen/smh-service/internal/service"
	"github.com/shipscreen/smh-service/internal/smh"
	"github.com/shipscreen/smh-service/pkg/utils"
)

var (
	// Version будет установлен при сборке через ldflags
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// regionTTL как часто перечитываются таблицы регионов
const regionTTL = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger(cfg.Monitoring.LogLevel, cfg.Monitoring.LogFormat)
	utils.SetDefaultLogger(logger)
	logger.WithField("version", Version).Info("Starting SMH service")
	metrics.SetAppInfo(Version, Commit, BuildTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clientOpts := func(url, token string) client.Options {
		return client.Options{
			BaseURL:        url,
			Token:          token,
			Timeout:        cfg.Clients.Timeout,
			RequestsPerSec: cfg.Clients.RequestsPerSec,
		}
	}

	aisClient, err := client.NewAISClient(clientOpts(cfg.Clients.AISURL, cfg.Clients.AISToken), logger)
	if err != nil {
		logger.WithField("error", err).Fatal("Failed to initialize AIS client")
	}
	sisClient, err := client.NewSISClient(clientOpts(cfg.Clients.SISURL, cfg.Clients.SISToken), cfg.Clients.IHSPageSize, logger)
	if err != nil {
		logger.WithField("error", err).Fatal("Failed to initialize SIS client")
	}
	portClient, err := client.NewPortClient(clientOpts(cfg.Clients.PortURL, ""), cfg.Clients.PortBatchSize, logger)
	if err != nil {
		logger.WithField("error", err).Fatal("Failed to initialize port client")
	}

	// Порты: кэш по ячейкам geohash, под ним повторы и circuit breaker
	ports := service.NewResilientPortResolver(portClient, cfg.Clients.PortRetries, cfg.Clients.PortRetryDelay, logger)
	portCache := geo.NewPortCache(ports, cfg.SMH.PortCacheSize, cfg.SMH.PortCacheTTL, cfg.SMH.PortCachePrecision, logger)

	store, regions := openStores(ctx, cfg, logger)
	defer func() {
		if err := store.Close(); err != nil {
			logger.WithField("error", err).Warn("Failed to close cache store")
		}
	}()

	var regionResolver smh.RegionResolver
	if regions != nil {
		regionResolver = regions
	}
	computer := smh.NewComputer(portCache, regionResolver, logger)
	task := service.NewTask(aisClient, sisClient, computer, store, cfg.SMH.CacheFreshness, logger)

	server := handler.NewServer(cfg, handler.Dependencies{
		Runner:    task,
		Store:     store,
		PortCache: portCache,
		Breaker:   ports,
		Version:   Version,
	}, logger)

	// MQTT воркер (опционально)
	var worker *mqtt.Client
	if cfg.MQTT.URL != "" {
		parser := mqtt.NewParser(cfg.SMH, logger)
		worker, err = mqtt.NewClient(&cfg.MQTT, parser, task, cfg.Server.RequestTimeout, logger)
		if err != nil {
			logger.WithField("error", err).Fatal("Failed to initialize MQTT client")
		}
		if err := worker.Connect(); err != nil {
			logger.WithField("error", err).Fatal("Failed to connect to MQTT broker")
		}
	}

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithField("error", err).Fatal("Failed to start HTTP server")
		}
	}()

	go cleanPortCache(ctx, portCache, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.WithField("signal", sig).Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithField("error", err).Error("HTTP server shutdown error")
	}
	if worker != nil {
		worker.Disconnect()
	}

	logger.Info("Server stopped gracefully")
}

// openStores собирает хранилище кэша: MySQL (или память) и Redis поверх
func openStores(ctx context.Context, cfg *config.Config, logger *utils.Logger) (repository.Store, *geo.RegionIndex) {
	var (
		store   repository.Store
		regions *geo.RegionIndex
	)

	if cfg.MySQL.DSN != "" {
		mysqlStore, err := repository.NewMySQLStore(&cfg.MySQL, logger)
		if err != nil {
			logger.WithField("error", err).Fatal("Failed to initialize MySQL store")
		}
		if err := mysqlStore.Ping(ctx); err != nil {
			logger.WithField("error", err).Fatal("Failed to connect to MySQL")
		}
		if err := mysqlStore.EnsureSchema(ctx); err != nil {
			logger.WithField("error", err).Fatal("Failed to prepare smh cache table")
		}
		logger.Info("Connected to MySQL")
		store = mysqlStore
		regions = geo.NewRegionIndex(mysqlStore, regionTTL, logger)
	} else {
		logger.Warn("MYSQL_DSN is not set, smh cache is kept in memory and EEZ resolution is disabled")
		store = repository.NewMemoryStore()
	}

	if cfg.Redis.URL != "" {
		redisClient, err := repository.NewRedisClient(&cfg.Redis)
		if err != nil {
			logger.WithField("error", err).Fatal("Failed to initialize Redis client")
		}
		redisStore, err := repository.NewRedisStore(redisClient, store, cfg.Redis.CacheTTL, logger)
		if err != nil {
			logger.WithField("error", err).Fatal("Failed to initialize Redis store")
		}
		if err := redisStore.Ping(ctx); err != nil {
			// горячий слой не обязателен: без Redis чтение уходит в нижний слой
			logger.WithField("error", err).Warn("Redis is not reachable")
		} else {
			logger.Info("Connected to Redis")
		}
		store = redisStore
	}

	return store, regions
}

// cleanPortCache периодически удаляет просроченные ячейки кэша портов
func cleanPortCache(ctx context.Context, cache *geo.PortCache, logger *utils.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := cache.Clean(); removed > 0 {
				logger.WithField("removed", removed).Debug("Cleaned expired port cache cells")
			}
		}
	}
}
