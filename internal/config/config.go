package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database   DatabaseConfig
	GRPC       GRPCConfig
	HTTP       HTTPConfig
	Auth       AuthConfig
	NATS       NATSConfig
	Allocator  AllocatorConfig
	Simulation SimulationConfig
	Log        LogConfig
}

// DatabaseConfig contains database-related settings.
type DatabaseConfig struct {
	Path string // SQLite database file path
}

// GRPCConfig contains gRPC server settings.
type GRPCConfig struct {
	Address string // gRPC server listen address (e.g., ":50051")
}

// HTTPConfig contains REST/WebSocket server settings.
type HTTPConfig struct {
	Address             string
	AutoStartSimulation bool // start the flight simulation when a mission is created over REST
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	JWTSecret string // JWT signing secret
}

// NATSConfig contains message bus settings.
type NATSConfig struct {
	URL               string
	Stream            string
	Consumer          string
	OrderReadySubject string
	DeliveredSubject  string
	DeadLetterSubject string
	CapacityBackoff   time.Duration // redelivery delay when no drone is available
	RetryBackoff      time.Duration // redelivery delay after a transient failure
}

// AllocatorConfig contains drone selection settings.
type AllocatorConfig struct {
	MinBattery float64 // drones must be strictly above this level to be reserved
}

// SimulationConfig contains flight simulation settings.
type SimulationConfig struct {
	TickInterval        time.Duration
	SpeedKps            float64
	BatteryDrainPerTick float64
	PathSteps           int
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg, err := load("")
	if err != nil {
		return nil, err
	}

	// Validate critical settings
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set; required for production")
	}
	return cfg, nil
}

// LoadWithDefaults is like Load but uses a safe default for JWT_SECRET in development.
// WARNING: Only use in development! Use Load() in production.
func LoadWithDefaults() (*Config, error) {
	return load("dev-secret-change-me")
}

func load(defaultSecret string) (*Config, error) {
	var errs []string
	dur := func(key string, def time.Duration) time.Duration {
		v, err := getEnvDuration(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	num := func(key string, def float64) float64 {
		v, err := getEnvFloat(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	integer := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	boolean := func(key string, def bool) bool {
		v, err := getEnvBool(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "fleet.db"),
		},
		GRPC: GRPCConfig{
			Address: getEnv("GRPC_ADDRESS", ":50051"),
		},
		HTTP: HTTPConfig{
			Address:             getEnv("HTTP_ADDRESS", ":8080"),
			AutoStartSimulation: boolean("AUTO_START_SIMULATION", true),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", defaultSecret),
		},
		NATS: NATSConfig{
			URL:               getEnv("NATS_URL", "nats://localhost:4222"),
			Stream:            getEnv("NATS_STREAM", "ORDERS"),
			Consumer:          getEnv("NATS_CONSUMER", "drone-mission-engine"),
			OrderReadySubject: getEnv("ORDER_READY_SUBJECT", "order.ready"),
			DeliveredSubject:  getEnv("ORDER_DELIVERED_SUBJECT", "order.delivered"),
			DeadLetterSubject: getEnv("DEAD_LETTER_SUBJECT", "order.ready.dead"),
			CapacityBackoff:   dur("CAPACITY_BACKOFF", 5*time.Second),
			RetryBackoff:      dur("RETRY_BACKOFF", 10*time.Second),
		},
		Allocator: AllocatorConfig{
			MinBattery: num("MIN_BATTERY", 25),
		},
		Simulation: SimulationConfig{
			TickInterval:        dur("TICK_INTERVAL", 2*time.Second),
			SpeedKps:            num("SPEED_KPS", 0.05),
			BatteryDrainPerTick: num("BATTERY_DRAIN_PER_TICK", 0.2),
			PathSteps:           integer("PATH_STEPS", 20),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Simulation.TickInterval <= 0:
		return fmt.Errorf("TICK_INTERVAL must be positive")
	case c.Simulation.SpeedKps <= 0:
		return fmt.Errorf("SPEED_KPS must be positive")
	case c.Simulation.BatteryDrainPerTick < 0:
		return fmt.Errorf("BATTERY_DRAIN_PER_TICK must not be negative")
	case c.Simulation.PathSteps < 1:
		return fmt.Errorf("PATH_STEPS must be at least 1")
	case c.Allocator.MinBattery < 0 || c.Allocator.MinBattery >= 100:
		return fmt.Errorf("MIN_BATTERY must be within [0, 100)")
	}
	return nil
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// getEnvInt retrieves an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultVal int) (int, error) {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return intVal, nil
	}
	return defaultVal, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	if value, exists := os.LookupEnv(key); exists {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %w", key, err)
		}
		return f, nil
	}
	return defaultVal, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		return d, nil
	}
	return defaultVal, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	if value, exists := os.LookupEnv(key); exists {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("invalid boolean for %s: %w", key, err)
		}
		return b, nil
	}
	return defaultVal, nil
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	return fmt.Sprintf("Config{DB: %s, gRPC: %s, HTTP: %s, NATS: %s, tick: %s, Auth: *** (masked) ***}",
		c.Database.Path, c.GRPC.Address, c.HTTP.Address, c.NATS.URL, c.Simulation.TickInterval)
}
