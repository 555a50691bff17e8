package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит конфигурацию приложения
type Config struct {
	Environment string
	Server      ServerConfig
	Redis       RedisConfig
	MQTT        MQTTConfig
	MySQL       MySQLConfig
	Clients     ClientsConfig
	SMH         SMHConfig
	Monitoring  MonitoringConfig
}

// ServerConfig конфигурация HTTP сервера
type ServerConfig struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	RateLimit      float64
	RateBurst      int
}

// RedisConfig конфигурация Redis (горячий слой кэша SMH)
type RedisConfig struct {
	URL          string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	CacheTTL     time.Duration
}

// MQTTConfig конфигурация MQTT воркера задач
type MQTTConfig struct {
	URL          string
	ClientID     string
	Username     string
	Password     string
	CleanSession bool
	RequestTopic string
	ResultPrefix string
}

// MySQLConfig конфигурация MySQL (постоянное хранилище кэша SMH и таблицы регионов)
type MySQLConfig struct {
	DSN          string
	MaxIdleConns int
	MaxOpenConns int
	CacheTable   string
}

// ClientsConfig внешние сервисы: AIS, SIS (IHS) и сервис портов
type ClientsConfig struct {
	AISURL         string
	AISToken       string
	SISURL         string
	SISToken       string
	PortURL        string
	Timeout        time.Duration
	RequestsPerSec float64
	PortBatchSize  int
	PortRetries    int
	PortRetryDelay time.Duration
	IHSPageSize    int
}

// SMHConfig параметры расчета истории движения судна по умолчанию
type SMHConfig struct {
	Rates              []int // минуты
	TrackRateThreshold int   // позиции сохраняются только для rate >= порога
	DefaultAISDays     int
	DefaultAISRate     int
	SpeedFilter        float64
	AISGapHours        float64
	AISGapRate         int
	StopSpeed          float64
	MaxPlausibleSpeed  float64
	VoyageStoppedSpeed float64
	CacheFreshness     time.Duration
	MaxItemsPerObject  int
	PortCacheSize      int
	PortCacheTTL       time.Duration
	PortCachePrecision int
	EEZTable           string
	EEZField           string
}

// MonitoringConfig конфигурация мониторинга
type MonitoringConfig struct {
	MetricsEnabled bool
	LogLevel       string
	LogFormat      string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	rates, err := getIntList("SMH_RATES", []int{10, 60, 120, 240, 1440, 3600})
	if err != nil {
		return nil, fmt.Errorf("failed to parse SMH_RATES: %w", err)
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Address:        getEnv("SERVER_ADDRESS", ":8090"),
			ReadTimeout:    getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			IdleTimeout:    getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			RequestTimeout: getDuration("SERVER_REQUEST_TIMEOUT", 110*time.Second),
			RateLimit:      getFloat("SERVER_RATE_LIMIT", 20),
			RateBurst:      getInt("SERVER_RATE_BURST", 40),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getInt("REDIS_DB", 0),
			PoolSize:     getInt("REDIS_POOL_SIZE", 20),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			CacheTTL:     getDuration("REDIS_CACHE_TTL", 6*time.Hour),
		},
		MQTT: MQTTConfig{
			URL:          getEnv("MQTT_URL", ""),
			ClientID:     getEnv("MQTT_CLIENT_ID", "smh-worker"),
			Username:     getEnv("MQTT_USERNAME", ""),
			Password:     getEnv("MQTT_PASSWORD", ""),
			CleanSession: getBool("MQTT_CLEAN_SESSION", false),
			RequestTopic: getEnv("MQTT_REQUEST_TOPIC", "smh/requests"),
			ResultPrefix: getEnv("MQTT_RESULT_PREFIX", "smh/results"),
		},
		MySQL: MySQLConfig{
			DSN:          getEnv("MYSQL_DSN", ""),
			MaxIdleConns: getInt("MYSQL_MAX_IDLE_CONNS", 5),
			MaxOpenConns: getInt("MYSQL_MAX_OPEN_CONNS", 20),
			CacheTable:   getEnv("MYSQL_CACHE_TABLE", "smh_cache"),
		},
		Clients: ClientsConfig{
			AISURL:         getEnv("AIS_API_URL", "http://localhost:8081"),
			AISToken:       getEnv("AIS_API_TOKEN", ""),
			SISURL:         getEnv("SIS_API_URL", "http://localhost:8082"),
			SISToken:       getEnv("SIS_API_TOKEN", ""),
			PortURL:        getEnv("PORT_SERVICE_URL", "http://localhost:8083"),
			Timeout:        getDuration("CLIENT_TIMEOUT", 30*time.Second),
			RequestsPerSec: getFloat("CLIENT_REQUESTS_PER_SEC", 10),
			PortBatchSize:  getInt("PORT_BATCH_SIZE", 500),
			PortRetries:    getInt("PORT_RETRIES", 3),
			PortRetryDelay: getDuration("PORT_RETRY_DELAY", time.Second),
			IHSPageSize:    getInt("IHS_PAGE_SIZE", 500),
		},
		SMH: SMHConfig{
			Rates:              rates,
			TrackRateThreshold: getInt("SMH_TRACK_RATE_THRESHOLD", 60),
			DefaultAISDays:     getInt("SMH_AIS_DAYS", 365),
			DefaultAISRate:     getInt("SMH_AIS_RATE", 60),
			SpeedFilter:        getFloat("SMH_SPEED_FILTER", 1.5),
			AISGapHours:        getFloat("SMH_AIS_GAP_HOURS", 24),
			AISGapRate:         getInt("SMH_AIS_GAP_RATE", 10),
			StopSpeed:          getFloat("SMH_STOP_SPEED", 1.0),
			MaxPlausibleSpeed:  getFloat("SMH_MAX_PLAUSIBLE_SPEED", 60),
			VoyageStoppedSpeed: getFloat("SMH_VOYAGE_STOPPED_SPEED", 0),
			CacheFreshness:     getDuration("SMH_CACHE_FRESHNESS", 10*time.Minute),
			MaxItemsPerObject:  getInt("SMH_MAX_ITEMS_PER_OBJECT", 0),
			PortCacheSize:      getInt("SMH_PORT_CACHE_SIZE", 50000),
			PortCacheTTL:       getDuration("SMH_PORT_CACHE_TTL", 24*time.Hour),
			PortCachePrecision: getInt("SMH_PORT_CACHE_PRECISION", 7),
			EEZTable:           getEnv("SMH_EEZ_TABLE", "eez_regions"),
			EEZField:           getEnv("SMH_EEZ_FIELD", "name"),
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled: getBool("METRICS_ENABLED", true),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
		},
	}

	// Валидация
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("SERVER_ADDRESS is required")
	}

	if c.Clients.AISURL == "" || c.Clients.SISURL == "" || c.Clients.PortURL == "" {
		return fmt.Errorf("AIS_API_URL, SIS_API_URL and PORT_SERVICE_URL are required")
	}

	if len(c.SMH.Rates) == 0 {
		return fmt.Errorf("SMH_RATES must contain at least one rate")
	}
	for _, r := range c.SMH.Rates {
		if r <= 0 {
			return fmt.Errorf("SMH_RATES must be positive, got %d", r)
		}
	}

	if c.SMH.AISGapHours <= 0 {
		return fmt.Errorf("SMH_AIS_GAP_HOURS must be positive")
	}

	if c.SMH.DefaultAISDays <= 0 {
		return fmt.Errorf("SMH_AIS_DAYS must be positive")
	}

	if c.SMH.PortCachePrecision < 1 || c.SMH.PortCachePrecision > 12 {
		return fmt.Errorf("SMH_PORT_CACHE_PRECISION must be between 1 and 12")
	}

	if c.Clients.PortBatchSize <= 0 {
		return fmt.Errorf("PORT_BATCH_SIZE must be positive")
	}

	if c.Clients.PortRetries < 1 {
		return fmt.Errorf("PORT_RETRIES must be at least 1")
	}

	return nil
}

// Helper функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntList читает список целых через запятую: "10,60,120"
func getIntList(key string, defaultValue []int) ([]int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parts := strings.Split(value, ",")
	result := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", part, err)
		}
		result = append(result, n)
	}
	return result, nil
}

// IsProduction проверяет, запущено ли приложение в production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
