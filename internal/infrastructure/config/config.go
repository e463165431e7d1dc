package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	sharedConfig "github.com/orris-inc/cellcore/internal/shared/config"
)

type Config struct {
	Server      sharedConfig.ServerConfig      `mapstructure:"server"`
	Database    sharedConfig.DatabaseConfig    `mapstructure:"database"`
	Logger      sharedConfig.LoggerConfig      `mapstructure:"logger"`
	Redis       sharedConfig.RedisConfig       `mapstructure:"redis"`
	Persistence sharedConfig.PersistenceConfig `mapstructure:"persistence"`
	Gateway     sharedConfig.GatewayConfig     `mapstructure:"gateway"`
	Registry    sharedConfig.RegistryConfig    `mapstructure:"registry"`
	Queue       sharedConfig.QueueConfig       `mapstructure:"queue"`
	Admin       sharedConfig.AdminConfig       `mapstructure:"admin"`
	Bridge      sharedConfig.BridgeConfig      `mapstructure:"bridge"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load loads configuration from file and environment variables. A non-empty
// file overrides the search path.
func Load(env, file string) (*Config, error) {
	v, err := read(file)
	if err != nil {
		return nil, err
	}

	// Allow env parameter to override server mode if provided
	if env != "" && env != "default" {
		v.Set("server.mode", env)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	appConfigMu.Lock()
	appConfig = &config
	appConfigMu.Unlock()

	return &config, nil
}

// Get returns the loaded configuration
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

// read builds a fresh viper instance so that reloads see the file as it is now.
func read(file string) (*viper.Viper, error) {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.SetEnvPrefix("CELLCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return v, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "cellcore.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.username", "root")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "cellcore")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_path", "stdout")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("persistence.driver", "sqlite")
	v.SetDefault("persistence.key_prefix", "cellcore:")

	v.SetDefault("gateway.base_url", "http://127.0.0.1:8090")
	v.SetDefault("gateway.timeout", "5s")

	// Registry defaults
	v.SetDefault("registry.policy", "")
	v.SetDefault("registry.subscribers_file", "configs/subscribers.yaml")
	v.SetDefault("registry.registration_ttl", "1h")
	v.SetDefault("registry.number_length", 5)
	v.SetDefault("registry.country_code", "1")
	v.SetDefault("registry.international_prefix", "011")
	v.SetDefault("registry.min_match_digits", 7)
	v.SetDefault("registry.nnsf_bits", 0)
	v.SetDefault("registry.nnsf_node", 0)
	v.SetDefault("registry.emergency_code", "911")
	v.SetDefault("registry.conference_code", "")
	v.SetDefault("registry.welcome_sender", "101")
	v.SetDefault("registry.welcome_text", "Your number is {number}")

	// Queue defaults
	v.SetDefault("queue.tick_interval", "1s")
	v.SetDefault("queue.attempt_budget", 3)
	v.SetDefault("queue.offline_cooldown", "60s")
	v.SetDefault("queue.retry_backoff", "30s")
	v.SetDefault("queue.sweep_every", "60s")

	v.SetDefault("admin.jwt_secret", "")
	v.SetDefault("admin.allowed_origins", []string{})
	v.SetDefault("admin.event_limit", 120)
	v.SetDefault("admin.event_window", "1m")

	v.SetDefault("bridge.enabled", false)
	v.SetDefault("bridge.request_channel", "cellcore:requests")
	v.SetDefault("bridge.reply_channel", "cellcore:replies")
}
