package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
)

type Redis struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

type Sign struct {
	BizType string `yaml:"biz_type"`
	// base64 编码的对端公钥与本地私钥，都为空时不启用签名
	RemotePublicKey string `yaml:"remote_public_key"`
	SelfPrivateKey  string `yaml:"self_private_key"`
}

type Config struct {
	Addr         string  `yaml:"addr"`
	LogLevel     string  `yaml:"log_level"`
	MaxBodyBytes int64   `yaml:"max_body_bytes"`
	RateLimit    float64 `yaml:"rate_limit"` // 每秒请求数，0 表示不限制
	RateBurst    int     `yaml:"rate_burst"`
	Redis        Redis   `yaml:"redis"`
	Sign         Sign    `yaml:"sign"`
}

func Default() *Config {
	return &Config{
		Addr:         ":8080",
		LogLevel:     "info",
		MaxBodyBytes: 1 << 20,
		RateBurst:    100,
		Redis: Redis{
			Prefix: "tally:",
			TTL:    10 * time.Minute,
		},
		Sign: Sign{BizType: "tally"},
	}
}

// Load 读取 yaml 配置并应用 TALLYD_* 环境变量，path 为空时只使用默认值和环境变量
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("TALLYD_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("TALLYD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TALLYD_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TALLYD_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TALLYD_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: TALLYD_RATE_LIMIT: %v", ErrInvalidConfig, err)
		}
		cfg.RateLimit = f
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr is empty", ErrInvalidConfig)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: max_body_bytes must be positive", ErrInvalidConfig)
	}
	if c.RateLimit < 0 || (c.RateLimit > 0 && c.RateBurst <= 0) {
		return fmt.Errorf("%w: rate_limit/rate_burst", ErrInvalidConfig)
	}
	if (c.Sign.RemotePublicKey == "") != (c.Sign.SelfPrivateKey == "") {
		return fmt.Errorf("%w: sign keys must be set together", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) SignEnabled() bool { return c.Sign.RemotePublicKey != "" }

func (c *Config) CacheEnabled() bool { return c.Redis.Addr != "" }
