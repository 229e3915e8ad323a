package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DBConfig PostgreSQL 配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// StoreConfig 存储后端配置
type StoreConfig struct {
	Driver               string `yaml:"driver"` // postgres | sqlite
	SQLitePath           string `yaml:"sqlite_path"`
	ClassificationPolicy string `yaml:"classification_policy"` // preserve | reset_on_change
}

// MQConfig 消息队列配置
type MQConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Enabled  bool          `yaml:"enabled"`
	DedupTTL time.Duration `yaml:"dedup_ttl"`
}

// JWTConfig JWT配置，secret 为空时不启用鉴权
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port string `yaml:"port"`
}

// LLMConfig Gemini 配置
type LLMConfig struct {
	APIKey                string        `yaml:"api_key"`
	Model                 string        `yaml:"model"`
	BaseURL               string        `yaml:"base_url"`
	Timeout               time.Duration `yaml:"timeout"`
	ClassifierTemperature float64       `yaml:"classifier_temperature"`
	ResponderTemperature  float64       `yaml:"responder_temperature"`
}

// GmailConfig Gmail API 配置
type GmailConfig struct {
	CredentialsFile  string `yaml:"credentials_file"`
	TokenFile        string `yaml:"token_file"`
	Mailbox          string `yaml:"mailbox"`
	FetchAttachments bool   `yaml:"fetch_attachments"`
}

// ClassifierConfig 分类批处理配置
type ClassifierConfig struct {
	DefaultLimit int           `yaml:"default_limit"`
	Delay        time.Duration `yaml:"delay"`
}

// OtelConfig OpenTelemetry 配置
type OtelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"` // 0 或 >=1 表示全部采样
}

// OverrideDBFromEnv 从环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

// OverrideStoreFromEnv 从环境变量覆盖存储配置
func OverrideStoreFromEnv(cfg *StoreConfig) {
	if driver := os.Getenv("STORE_DRIVER"); driver != "" {
		cfg.Driver = driver
	}
	if path := os.Getenv("SQLITE_PATH"); path != "" {
		cfg.SQLitePath = path
	}
	if policy := os.Getenv("CLASSIFICATION_POLICY"); policy != "" {
		cfg.ClassificationPolicy = policy
	}
}

// OverrideMQFromEnv 从环境变量覆盖MQ配置
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
		cfg.Enabled = true
	}
}

// OverrideRedisFromEnv 从环境变量覆盖Redis配置
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
		cfg.Enabled = true
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideJWTFromEnv 从环境变量覆盖JWT配置
func OverrideJWTFromEnv(cfg *JWTConfig) {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Secret = secret
	}
}

// OverrideServerFromEnv 从环境变量覆盖服务器配置
func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
}

// OverrideLLMFromEnv 从环境变量覆盖 LLM 配置
func OverrideLLMFromEnv(cfg *LLMConfig) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		cfg.Model = model
	}
}

// OverrideGmailFromEnv 从环境变量覆盖 Gmail 配置
func OverrideGmailFromEnv(cfg *GmailConfig) {
	if creds := os.Getenv("GMAIL_CREDENTIALS_FILE"); creds != "" {
		cfg.CredentialsFile = creds
	}
	if token := os.Getenv("GMAIL_TOKEN_FILE"); token != "" {
		cfg.TokenFile = token
	}
}

// OverrideOtelFromEnv 从环境变量覆盖 OpenTelemetry 配置
func OverrideOtelFromEnv(cfg *OtelConfig) {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")
		cfg.Enabled = true
	}
}
