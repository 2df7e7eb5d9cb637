package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string `validate:"oneof=debug info warn error"`
	DB       struct {
		Host     string `validate:"required"`
		Port     int    `validate:"min=1,max=65535"`
		User     string `validate:"required"`
		Password string
		Database string `validate:"required"`
	}
	Redis struct {
		Addr     string `validate:"required"`
		Password string
		DB       int `validate:"min=0"`
		StateTTL time.Duration
	}
	RabbitMQ struct {
		Host     string `validate:"required"`
		Port     int    `validate:"min=1,max=65535"`
		User     string
		Password string
	}
	MQTT struct {
		BrokerURL   string `validate:"required,url"`
		ClientID    string `validate:"required"`
		Username    string
		Password    string
		TopicFilter string `validate:"required"`
		QoS         int    `validate:"min=0,max=2"`
	}
	HTTP struct {
		FleetPort int `validate:"min=1,max=65535"`
		AuthPort  int `validate:"min=1,max=65535"`
	}
	Auth struct {
		JWTSecret     string `validate:"required"`
		TokenDuration time.Duration
	}
	Fleet struct {
		Timezone          string `validate:"required"`
		StickyRunning     bool
		StopScope         string `validate:"oneof=route global"`
		PassInterval      time.Duration
		VehicleTimeout    time.Duration
		PassConcurrency   int `validate:"min=1"`
		FloorSpeedKMH     float64
		ReportIntervalSec int `validate:"min=1"`
	}
	Telemetry struct {
		Workers       int `validate:"min=1"`
		QueueSize     int `validate:"min=1"`
		BatchSize     int `validate:"min=1"`
		FlushInterval time.Duration
	}
	Retention struct {
		Months int    `validate:"min=1"`
		RunAt  string `validate:"required"`
	}
}

// LoadConfig reads an optional env file and then the process environment.
// Variables already set in the environment win over the file.
func LoadConfig(filename string) (*Config, error) {
	if err := godotenv.Load(filename); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("could not load env file: %w", err)
	}

	cfg := &Config{}
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))

	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.DB.User = getEnv("DB_USER", "fleet_user")
	cfg.DB.Password = getEnv("DB_PASS", "fleet_pass")
	cfg.DB.Database = getEnv("DB_NAME", "fleet_db")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", 0)
	cfg.Redis.StateTTL = getEnvAsDuration("REDIS_STATE_TTL", 5*time.Minute)

	cfg.RabbitMQ.Host = getEnv("RABBITMQ_HOST", "localhost")
	cfg.RabbitMQ.Port = getEnvAsInt("RABBITMQ_PORT", 5672)
	cfg.RabbitMQ.User = getEnv("RABBITMQ_USER", "guest")
	cfg.RabbitMQ.Password = getEnv("RABBITMQ_PASS", "guest")

	cfg.MQTT.BrokerURL = getEnv("MQTT_BROKER_URL", "mqtt://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "fleet-service")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.TopicFilter = getEnv("MQTT_TOPIC", "fleet/tracking/bus/#")
	cfg.MQTT.QoS = getEnvAsInt("MQTT_QOS", 1)

	cfg.HTTP.FleetPort = getEnvAsInt("FLEET_SERVICE_PORT", 3000)
	cfg.HTTP.AuthPort = getEnvAsInt("AUTH_SERVICE_PORT", 3005)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET_KEY", "")
	cfg.Auth.TokenDuration = getEnvAsDuration("JWT_TOKEN_DURATION", 24*time.Hour)

	cfg.Fleet.Timezone = getEnv("FLEET_TIMEZONE", "Asia/Jakarta")
	cfg.Fleet.StickyRunning = getEnvAsBool("STATUS_STICKY_RUNNING", true)
	cfg.Fleet.StopScope = strings.ToLower(getEnv("NEAREST_STOP_SCOPE", "route"))
	cfg.Fleet.PassInterval = getEnvAsDuration("STATUS_PASS_INTERVAL", 30*time.Second)
	cfg.Fleet.VehicleTimeout = getEnvAsDuration("STATUS_VEHICLE_TIMEOUT", 5*time.Second)
	cfg.Fleet.PassConcurrency = getEnvAsInt("STATUS_PASS_CONCURRENCY", 8)
	cfg.Fleet.FloorSpeedKMH = getEnvAsFloat("ETA_FLOOR_SPEED_KMH", 20)
	cfg.Fleet.ReportIntervalSec = getEnvAsInt("TELEMETRY_REPORT_INTERVAL_SEC", 3)

	cfg.Telemetry.Workers = getEnvAsInt("TELEMETRY_WORKERS", 8)
	cfg.Telemetry.QueueSize = getEnvAsInt("TELEMETRY_QUEUE_SIZE", 256)
	cfg.Telemetry.BatchSize = getEnvAsInt("TELEMETRY_BATCH_SIZE", 100)
	cfg.Telemetry.FlushInterval = getEnvAsDuration("TELEMETRY_FLUSH_INTERVAL", time.Second)

	cfg.Retention.Months = getEnvAsInt("RETENTION_MONTHS", 3)
	cfg.Retention.RunAt = getEnv("RETENTION_RUN_AT", "02:00")

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Fleet.Timezone); err != nil {
		return nil, fmt.Errorf("invalid FLEET_TIMEZONE %q: %w", cfg.Fleet.Timezone, err)
	}
	if _, _, err := ParseClock(cfg.Retention.RunAt); err != nil {
		return nil, fmt.Errorf("invalid RETENTION_RUN_AT: %w", err)
	}

	return cfg, nil
}

// ParseClock parses an "HH:MM" wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return t.Hour(), t.Minute(), nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
