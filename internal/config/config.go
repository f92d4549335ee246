// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	Store  StoreConfig  `mapstructure:"store"`
	Chat   ChatConfig   `mapstructure:"chat"`
	LLM    LLMConfig    `mapstructure:"llm"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// StoreConfig 存储助手数据源的配置。
// Driver 可选 memory（默认，模拟后端）、mysql、redis。
type StoreConfig struct {
	Driver            string        `mapstructure:"driver"`
	MySQL             MySQLConfig   `mapstructure:"mysql"`
	Redis             RedisConfig   `mapstructure:"redis"`
	Latency           LatencyConfig `mapstructure:"latency"`
	DeleteFailureRate float64       `mapstructure:"delete_failure_rate"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LatencyConfig 是模拟后端每个操作的人为延迟。
type LatencyConfig struct {
	List   time.Duration `mapstructure:"list"`
	Get    time.Duration `mapstructure:"get"`
	Create time.Duration `mapstructure:"create"`
	Update time.Duration `mapstructure:"update"`
	Delete time.Duration `mapstructure:"delete"`
}

// ChatConfig 存储聊天模拟器相关的配置。
type ChatConfig struct {
	// Responder 可选 mock（默认）或 openai。
	Responder       string        `mapstructure:"responder"`
	MinDelay        time.Duration `mapstructure:"min_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay"`
	FailureRate     float64       `mapstructure:"failure_rate"`
	FallbackMessage string        `mapstructure:"fallback_message"`
	ResetConfirmTTL time.Duration `mapstructure:"reset_confirm_ttl"`
	ConfirmSecret   string        `mapstructure:"confirm_secret"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.latency.list", 300*time.Millisecond)
	v.SetDefault("store.latency.get", 200*time.Millisecond)
	v.SetDefault("store.latency.create", 400*time.Millisecond)
	v.SetDefault("store.latency.update", 400*time.Millisecond)
	v.SetDefault("store.latency.delete", 500*time.Millisecond)
	v.SetDefault("store.delete_failure_rate", 0.0)

	v.SetDefault("chat.responder", "mock")
	v.SetDefault("chat.min_delay", time.Second)
	v.SetDefault("chat.max_delay", 2*time.Second)
	v.SetDefault("chat.fallback_message", "Lo siento, hubo un error al procesar tu mensaje.")
	v.SetDefault("chat.reset_confirm_ttl", 2*time.Minute)

	v.SetDefault("kafka.topic", "assistant-events")
	v.SetDefault("kafka.group_id", "assistant-console-go")
}

// Load 从指定路径读取 YAML 配置并解析为 Config。
// 环境变量以 CONSOLE_ 为前缀覆盖同名键，例如 CONSOLE_STORE_DRIVER。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CONSOLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}
	return &cfg, nil
}

// Validate 检查配置中相互约束的字段。
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "mysql", "redis":
	default:
		return fmt.Errorf("不支持的 store.driver: %q", c.Store.Driver)
	}
	if c.Store.Driver == "mysql" && c.Store.MySQL.DSN == "" {
		return fmt.Errorf("store.mysql.dsn 不能为空")
	}
	if c.Store.Driver == "redis" && c.Store.Redis.Addr == "" {
		return fmt.Errorf("store.redis.addr 不能为空")
	}
	if c.Store.DeleteFailureRate < 0 || c.Store.DeleteFailureRate > 1 {
		return fmt.Errorf("store.delete_failure_rate 必须在 [0, 1] 之间")
	}
	if c.Chat.FailureRate < 0 || c.Chat.FailureRate > 1 {
		return fmt.Errorf("chat.failure_rate 必须在 [0, 1] 之间")
	}
	if c.Chat.MaxDelay < c.Chat.MinDelay {
		return fmt.Errorf("chat.max_delay 不能小于 chat.min_delay")
	}
	switch c.Chat.Responder {
	case "mock":
	case "openai":
		if c.LLM.BaseURL == "" || c.LLM.Model == "" {
			return fmt.Errorf("chat.responder=openai 需要配置 llm.base_url 与 llm.model")
		}
	default:
		return fmt.Errorf("不支持的 chat.responder: %q", c.Chat.Responder)
	}
	if c.Chat.ConfirmSecret == "" {
		return fmt.Errorf("chat.confirm_secret 不能为空")
	}
	if c.Kafka.Enabled && c.Kafka.Brokers == "" {
		return fmt.Errorf("kafka.enabled=true 时 kafka.brokers 不能为空")
	}
	return nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}
