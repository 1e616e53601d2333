package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/person-api/backend/internal/model/person"
)

// DefaultAddr 是未配置时的监听地址。
const DefaultAddr = "127.0.0.1:3000"

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	Store  StoreConfig
	Log    LogConfig
	Events EventsConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	events, err := loadEventsConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Store: store, Log: logCfg, Events: events}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// loadServerConfig 解析服务器监听地址。ADDR 优先，其次兼容 PORT。
func loadServerConfig() (ServerConfig, error) {
	timeout, err := parseOptionalIntEnv("SHUTDOWN_TIMEOUT")
	if err != nil {
		return ServerConfig{}, err
	}
	shutdown := 10 * time.Second
	if timeout != nil {
		if *timeout < 0 {
			return ServerConfig{}, fmt.Errorf("invalid SHUTDOWN_TIMEOUT value %d: must not be negative", *timeout)
		}
		shutdown = time.Duration(*timeout) * time.Second
	}

	if addr := strings.TrimSpace(os.Getenv("ADDR")); addr != "" {
		return ServerConfig{Addr: addr, ShutdownTimeout: shutdown}, nil
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		return ServerConfig{Addr: DefaultAddr, ShutdownTimeout: shutdown}, nil
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":3000" 或 "127.0.0.1:3000"。
		return ServerConfig{Addr: port, ShutdownTimeout: shutdown}, nil
	}

	if _, err := strconv.Atoi(port); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: "127.0.0.1:" + port, ShutdownTimeout: shutdown}, nil
}

// StoreConfig 描述 person 存储的初始化方式。
type StoreConfig struct {
	Seed     bool
	IDPolicy person.IDPolicy
}

func loadStoreConfig() (StoreConfig, error) {
	seed, err := parseBoolEnv("PERSON_SEED", true)
	if err != nil {
		return StoreConfig{}, err
	}

	policy, err := person.ParseIDPolicy(os.Getenv("PERSON_ID_POLICY"))
	if err != nil {
		return StoreConfig{}, fmt.Errorf("invalid PERSON_ID_POLICY: %w", err)
	}

	return StoreConfig{Seed: seed, IDPolicy: policy}, nil
}

// InitialPersons 返回存储启动时的记录。
func (c StoreConfig) InitialPersons() []person.Person {
	if !c.Seed {
		return nil
	}
	return person.Seed()
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level   zerolog.Level
	Console bool
}

func loadLogConfig() (LogConfig, error) {
	level, err := ParseLevel(getEnvOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		return LogConfig{}, err
	}

	format := strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json"))
	switch format {
	case "json", "console":
	default:
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value %q", format)
	}

	return LogConfig{Level: level, Console: format == "console"}, nil
}

// ParseLevel 解析日志级别。
func ParseLevel(raw string) (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid LOG_LEVEL value %q: %w", raw, err)
	}
	return level, nil
}

// EventsConfig 描述变更事件推送。
type EventsConfig struct {
	Enabled bool
	Buffer  int
}

func loadEventsConfig() (EventsConfig, error) {
	enabled, err := parseBoolEnv("EVENTS_ENABLED", true)
	if err != nil {
		return EventsConfig{}, err
	}

	buffer := 32
	if override, err := parseOptionalIntEnv("EVENTS_BUFFER"); err != nil {
		return EventsConfig{}, err
	} else if override != nil {
		if *override < 1 {
			buffer = 1
		} else {
			buffer = *override
		}
	}

	return EventsConfig{Enabled: enabled, Buffer: buffer}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
