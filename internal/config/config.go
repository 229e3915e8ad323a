package config

import (
	"errors"
	"fmt"
	"time"

	"smartmail/pkg/config"
)

type Config struct {
	Server     config.ServerConfig     `yaml:"server"`
	Store      config.StoreConfig      `yaml:"store"`
	DB         config.DBConfig         `yaml:"db"`
	Redis      config.RedisConfig      `yaml:"redis"`
	MQ         config.MQConfig         `yaml:"mq"`
	JWT        config.JWTConfig        `yaml:"jwt"`
	LLM        config.LLMConfig        `yaml:"llm"`
	Gmail      config.GmailConfig      `yaml:"gmail"`
	Classifier config.ClassifierConfig `yaml:"classifier"`
	Otel       config.OtelConfig       `yaml:"otel"`

	// Env 当前配置环境（CONFIG_ENV）
	Env string `yaml:"-"`
}

// Load 使用统一配置中心加载配置，环境变量覆盖优先级最高
func Load() (*Config, error) {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	var cfg Config
	if err := config.Decode(env, configDir, &cfg); err != nil {
		return nil, err
	}
	cfg.Env = env

	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideStoreFromEnv(&cfg.Store)
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideLLMFromEnv(&cfg.LLM)
	config.OverrideGmailFromEnv(&cfg.Gmail)
	config.OverrideOtelFromEnv(&cfg.Otel)

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8000"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "smartmail.db"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 5432
	}
	if c.Redis.DedupTTL <= 0 {
		c.Redis.DedupTTL = 24 * time.Hour
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gemini-2.5-flash"
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 60 * time.Second
	}
	if c.Gmail.Mailbox == "" {
		c.Gmail.Mailbox = "INBOX"
	}
	if c.Classifier.DefaultLimit <= 0 {
		c.Classifier.DefaultLimit = 5
	}
	if c.Classifier.Delay < 0 {
		c.Classifier.Delay = 0
	}
}

// Validate 检查启动必需的配置项
func (c *Config) Validate() error {
	var errs []error
	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm.api_key is required (GEMINI_API_KEY)"))
	}
	switch c.Store.Driver {
	case "postgres":
		if c.DB.Host == "" {
			errs = append(errs, errors.New("db.host is required for the postgres store"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("db.name is required for the postgres store"))
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	return errors.Join(errs...)
}
