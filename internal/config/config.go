package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	Alarming AlarmingConfig `json:"alarming" yaml:"alarming"`
}

type ServerConfig struct {
	BindAddr string `json:"bindAddr" yaml:"bindAddr"`
}

type DatabaseConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"dbname" yaml:"dbname"`
	SSLMode  string `json:"sslmode" yaml:"sslmode"`
}

// DSN renders the pgx connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

type AlarmingConfig struct {
	Correlation CorrelationConfig `json:"correlation" yaml:"correlation"`
	SLA         SLAConfig         `json:"sla" yaml:"sla"`
	Scheduler   SchedulerConfig   `json:"scheduler" yaml:"scheduler"`
	API         APIConfig         `json:"api" yaml:"api"`
	EventBuffer int               `json:"eventBuffer" yaml:"eventBuffer"`
}

type CorrelationConfig struct {
	SimilarityWindow string `json:"similarityWindow" yaml:"similarityWindow"` // e.g. "5m"
	FlapThreshold    int    `json:"flapThreshold" yaml:"flapThreshold"`
}

type SLAConfig struct {
	CacheTTL     string `json:"cacheTTL" yaml:"cacheTTL"` // e.g. "5m"
	MaxRangeDays int    `json:"maxRangeDays" yaml:"maxRangeDays"`
}

type SchedulerConfig struct {
	Interval string `json:"interval" yaml:"interval"` // e.g. "30s"
}

type APIConfig struct {
	Token string `json:"token" yaml:"token"`
}

func Load() (*Config, error) {
	configFile := flag.String("f", "", "Path to configuration file (json or yaml)")
	flag.Parse()

	cfg := &Config{
		Server: ServerConfig{
			BindAddr: getEnv("SERVER_BIND_ADDR", "0.0.0.0:8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "faultline"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Alarming: AlarmingConfig{
			Correlation: CorrelationConfig{
				SimilarityWindow: getEnv("CORRELATION_SIMILARITY_WINDOW", "5m"),
				FlapThreshold:    getEnvInt("CORRELATION_FLAP_THRESHOLD", 5),
			},
			SLA: SLAConfig{
				CacheTTL:     getEnv("SLA_CACHE_TTL", "5m"),
				MaxRangeDays: getEnvInt("SLA_MAX_RANGE_DAYS", 366),
			},
			Scheduler: SchedulerConfig{
				Interval: getEnv("SCHEDULER_INTERVAL", "30s"),
			},
			API: APIConfig{
				Token: getEnv("API_TOKEN", ""),
			},
			EventBuffer: getEnvInt("EVENT_BUFFER_SIZE", 1024),
		},
	}

	if *configFile != "" {
		if err := loadFromFile(cfg, *configFile); err != nil {
			log.Err(err)
			return nil, err
		}
	}

	// fill reasonable defaults when fields omitted in file
	if cfg.Server.BindAddr == "" {
		cfg.Server.BindAddr = "0.0.0.0:8080"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Alarming.Correlation.SimilarityWindow == "" {
		cfg.Alarming.Correlation.SimilarityWindow = "5m"
	}
	if cfg.Alarming.Correlation.FlapThreshold == 0 {
		cfg.Alarming.Correlation.FlapThreshold = 5
	}
	if cfg.Alarming.SLA.CacheTTL == "" {
		cfg.Alarming.SLA.CacheTTL = "5m"
	}
	if cfg.Alarming.SLA.MaxRangeDays == 0 {
		cfg.Alarming.SLA.MaxRangeDays = 366
	}
	if cfg.Alarming.Scheduler.Interval == "" {
		cfg.Alarming.Scheduler.Interval = "30s"
	}
	if cfg.Alarming.EventBuffer == 0 {
		cfg.Alarming.EventBuffer = 1024
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	if strings.HasSuffix(filePath, ".yaml") || strings.HasSuffix(filePath, ".yml") {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", filePath, err)
		}
		return nil
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
