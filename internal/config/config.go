package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации приложения.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	EventBus   EventBusConfig   `yaml:"eventbus"`
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	Server     ServerConfig     `yaml:"server"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type SimulationConfig struct {
	TickRate           float64 `yaml:"tick_rate"` // Тиков в секунду
	Workers            int     `yaml:"workers"`
	DirectionThreshold float64 `yaml:"direction_threshold"`
	CapsuleHalfHeight  float64 `yaml:"capsule_half_height"`
	CellSize           float64 `yaml:"cell_size"`
	Catalog            string  `yaml:"catalog"`  // Путь к описаниям юнитов
	Scenario           string  `yaml:"scenario"` // Путь к стартовой расстановке
}

// TickInterval возвращает длительность одного тика
func (s *SimulationConfig) TickInterval() time.Duration {
	if s.TickRate <= 0 {
		return time.Second / 20
	}
	return time.Duration(float64(time.Second) / s.TickRate)
}

type EventBusConfig struct {
	URL       string `yaml:"url"` // Пусто — шина в памяти
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Buffer    int    `yaml:"buffer"`
	Compress  bool   `yaml:"compress"` // zstd для JetStream
}

// Хранилища снимков целей
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBadger = "badger"
	BackendMaria  = "maria"
)

type StorageConfig struct {
	Backend    string `yaml:"backend"`     // memory | redis | badger | maria
	BadgerPath string `yaml:"badger_path"` // Пусто — Badger в памяти
	MariaDSN   string `yaml:"maria_dsn"`   // user:pass@tcp(host:port)/dbname
}

type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	KeyPrefix  string `yaml:"key_prefix"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// TTL возвращает время жизни снимков в Redis
func (r *RedisConfig) TTL() time.Duration {
	return time.Duration(r.TTLSeconds) * time.Second
}

type ServerConfig struct {
	RESTPort    int    `yaml:"rest_port"`
	MetricsPort int    `yaml:"metrics_port"`
	AdminSecret string `yaml:"admin_secret"` // base64, пусто — админ-маршруты выключены
}

// GetAdminSecret возвращает секрет подписи админских JWT (config -> env AGGRO_ADMIN_SECRET)
func (s *ServerConfig) GetAdminSecret() string {
	if s.AdminSecret != "" {
		return s.AdminSecret
	}
	return os.Getenv("AGGRO_ADMIN_SECRET")
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "AGGRO_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "AGGRO_METRICS_PORT", 2112)
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"` // host:port OTLP/HTTP коллектора
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default возвращает конфигурацию со всеми значениями по умолчанию
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			TickRate:           20,
			Workers:            1,
			DirectionThreshold: 0.1,
			CapsuleHalfHeight:  100,
			CellSize:           16,
		},
		EventBus: EventBusConfig{
			Stream:    "AGGRO_EVENTS",
			Retention: 24,
			Buffer:    1024,
		},
		Storage: StorageConfig{
			Backend:    BackendMemory,
			BadgerPath: "data/targets",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			KeyPrefix:  "aggro:target:",
			TTLSeconds: 60,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "rts-aggro",
			Endpoint:    "localhost:4318",
			Insecure:    true,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// Validate проверяет значения, которые нельзя исправить дефолтами
func (c *Config) Validate() error {
	if c.Simulation.TickRate <= 0 {
		return fmt.Errorf("simulation.tick_rate must be > 0, got %v", c.Simulation.TickRate)
	}
	if c.Simulation.Workers < 1 {
		return fmt.Errorf("simulation.workers must be >= 1, got %d", c.Simulation.Workers)
	}
	if c.Simulation.DirectionThreshold <= 0 || c.Simulation.DirectionThreshold > 1 {
		return fmt.Errorf("simulation.direction_threshold must be in (0, 1], got %v", c.Simulation.DirectionThreshold)
	}
	if c.Simulation.CapsuleHalfHeight <= 0 {
		return fmt.Errorf("simulation.capsule_half_height must be > 0, got %v", c.Simulation.CapsuleHalfHeight)
	}
	if c.Simulation.CellSize <= 0 {
		return fmt.Errorf("simulation.cell_size must be > 0, got %v", c.Simulation.CellSize)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be in [0, 1], got %v", c.Telemetry.SampleRatio)
	}
	switch c.Storage.Backend {
	case BackendMemory, BackendRedis, BackendBadger:
	case BackendMaria:
		if c.Storage.MariaDSN == "" {
			return fmt.Errorf("storage.maria_dsn is required for backend %q", BackendMaria)
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	return nil
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV AGGRO_CONFIG или возвращает nil, nil.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("AGGRO_CONFIG")
		if path == "" {
			return nil, nil // конфиг не задан — использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse разбирает YAML поверх Default() и проверяет результат
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
