package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shipscreen/smh-service/internal/config"
	"github.com/shipscreen/smh-service/internal/metrics"
	"github.com/shipscreen/smh-service/pkg/utils"
	"golang.org/x/time/rate"
)

// Pinger зависимость, доступность которой проверяет /health
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsProvider статистика компонента для /health
type StatsProvider interface {
	Stats() map[string]interface{}
}

// StateProvider состояние circuit breaker для /health
type StateProvider interface {
	State() string
}

// Dependencies компоненты, которые обслуживает HTTP сервер
type Dependencies struct {
	Runner    SMHRunner
	Store     Pinger
	PortCache StatsProvider
	Breaker   StateProvider
	Version   string
}

// Server HTTP сервер SMH API
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     *utils.Logger
	config     *config.Config
	deps       Dependencies
	smhHandler *SMHHandler
}

// NewServer создает новый HTTP сервер
func NewServer(cfg *config.Config, deps Dependencies, logger *utils.Logger) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(LoggerMiddleware(logger))
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware())
	router.Use(RateLimitMiddleware(cfg.Server.RateLimit, cfg.Server.RateBurst))
	router.Use(SecurityHeadersMiddleware())
	if cfg.Monitoring.MetricsEnabled {
		router.Use(metrics.HTTPMetricsMiddleware())
	}

	server := &Server{
		router:     router,
		logger:     logger,
		config:     cfg,
		deps:       deps,
		smhHandler: NewSMHHandler(deps.Runner, cfg.SMH, cfg.Server.RequestTimeout, logger),
	}

	server.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/smh/:imo", s.smhHandler.GetSMH)
	}

	if s.config.Monitoring.MetricsEnabled {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// Router возвращает gin engine (для тестов)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start запускает HTTP сервер
func (s *Server) Start() error {
	s.logger.WithFields(map[string]interface{}{
		"address": s.config.Server.Address,
		"mode":    gin.Mode(),
	}).Info("Starting HTTP server")

	return s.httpServer.ListenAndServe()
}

// Shutdown корректное завершение сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// healthCheck состояние хранилища, кэша портов и breaker
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	body := gin.H{
		"timestamp": time.Now().Unix(),
		"version":   s.deps.Version,
	}

	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(ctx); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
			body["store"] = gin.H{"status": "error", "error": err.Error()}
		} else {
			body["store"] = gin.H{"status": "ok"}
		}
	}
	if s.deps.PortCache != nil {
		body["port_cache"] = s.deps.PortCache.Stats()
	}
	if s.deps.Breaker != nil {
		state := s.deps.Breaker.State()
		body["port_service"] = gin.H{"circuit": state}
		if state == "open" && status == "ok" {
			status = "degraded"
		}
	}

	body["status"] = status
	c.JSON(code, body)
}

// ==================== Middleware ====================

// LoggerMiddleware логирование запросов
func LoggerMiddleware(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": latency.Milliseconds(),
			"client_ip":  c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			logger.WithFields(fields).Debug("HTTP request completed")
			return
		}
		logger.WithFields(fields).Info("HTTP request completed")
	}
}

// CORSMiddleware настройка CORS
func CORSMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})
}

// RateLimitMiddleware ограничение частоты запросов
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    "rate_limit_exceeded",
				"message": "Too many requests",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// SecurityHeadersMiddleware заголовки безопасности
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
