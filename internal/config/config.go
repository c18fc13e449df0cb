package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

// CacheConfig controls the epoch slot name and per-read-shape TTLs.
// List pages go stale fastest because membership changes on every create.
type CacheConfig struct {
	EpochKey          string `yaml:"epochKey"`
	ListTTLSeconds    int    `yaml:"listTTLSeconds"`
	DetailTTLSeconds  int    `yaml:"detailTTLSeconds"`
	HistoryTTLSeconds int    `yaml:"historyTTLSeconds"`
}

type RateLimitConfig struct {
	PerMinute int `yaml:"perMinute"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

// Load reads the YAML config, then applies .env and environment overrides so
// deployments can keep the DSN and Redis URL out of the file.
func Load(path string) *Config {
	_ = godotenv.Load()

	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	if v := os.Getenv("JOBTRACK_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("JOBTRACK_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}

	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Cache.EpochKey == "" {
		c.Cache.EpochKey = "jobs:cache:epoch"
	}
	if c.Cache.ListTTLSeconds == 0 {
		c.Cache.ListTTLSeconds = 30
	}
	if c.Cache.DetailTTLSeconds == 0 {
		c.Cache.DetailTTLSeconds = 120
	}
	if c.Cache.HistoryTTLSeconds == 0 {
		c.Cache.HistoryTTLSeconds = 60
	}
}
