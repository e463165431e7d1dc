package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Path            string `mapstructure:"path"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
	// Debug shows source locations for every level.
	Debug bool `mapstructure:"-"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// PersistenceConfig selects the backend of the section store: sqlite, mysql or redis.
type PersistenceConfig struct {
	Driver    string `mapstructure:"driver"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// GatewayConfig points at the radio-side service that places messages and computes auth vectors.
type GatewayConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RegistryConfig struct {
	Policy              string        `mapstructure:"policy"`
	AcceptPatterns      []string      `mapstructure:"accept_patterns"`
	SubscribersFile     string        `mapstructure:"subscribers_file"`
	RegistrationTTL     time.Duration `mapstructure:"registration_ttl"`
	NumberLength        int           `mapstructure:"number_length"`
	CountryCode         string        `mapstructure:"country_code"`
	InternationalPrefix string        `mapstructure:"international_prefix"`
	MinMatchDigits      int           `mapstructure:"min_match_digits"`
	NodeBits            int           `mapstructure:"nnsf_bits"`
	NodeValue           int           `mapstructure:"nnsf_node"`
	EmergencyCode       string        `mapstructure:"emergency_code"`
	EmergencyTarget     string        `mapstructure:"emergency_target"`
	ConferenceCode      string        `mapstructure:"conference_code"`
	ConferenceTarget    string        `mapstructure:"conference_target"`
	OutboundTarget      string        `mapstructure:"outbound_target"`
	WelcomeSender       string        `mapstructure:"welcome_sender"`
	WelcomeText         string        `mapstructure:"welcome_text"`
}

type QueueConfig struct {
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	AttemptBudget   int           `mapstructure:"attempt_budget"`
	OfflineCooldown time.Duration `mapstructure:"offline_cooldown"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	SweepEvery      time.Duration `mapstructure:"sweep_every"`
}

type AdminConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	EventLimit     int           `mapstructure:"event_limit"`
	EventWindow    time.Duration `mapstructure:"event_window"`
}

// BridgeConfig names the Redis channels external transports publish requests to.
type BridgeConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	RequestChannel string `mapstructure:"request_channel"`
	ReplyChannel   string `mapstructure:"reply_channel"`
}
