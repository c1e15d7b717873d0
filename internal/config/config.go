package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 配置
type Config struct {
	Service    ServiceConfig    `yaml:"service" json:"service"`
	Postgres   PostgresConfig   `yaml:"postgres" json:"postgres"`
	Redis      RedisConfig      `yaml:"redis" json:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka" json:"kafka"`
	Chains     ChainsConfig     `yaml:"chains" json:"chains"`
	Settlement SettlementConfig `yaml:"settlement" json:"settlement"`
	Worker     WorkerConfig     `yaml:"worker" json:"worker"`
	Log        LogConfig        `yaml:"log" json:"log"`
}

// ServiceConfig 服务配置
type ServiceConfig struct {
	Name        string `yaml:"name" json:"name"`
	MetricsPort int    `yaml:"metrics_port" json:"metrics_port"`
	Env         string `yaml:"env" json:"env"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port"`
	Database        string `yaml:"database" json:"database"`
	User            string `yaml:"user" json:"user"`
	Password        string `yaml:"password" json:"password"`
	MaxConnections  int    `yaml:"max_connections" json:"max_connections"`
	MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addresses []string `yaml:"addresses" json:"addresses"`
	Password  string   `yaml:"password" json:"password"`
	DB        int      `yaml:"db" json:"db"`
	PoolSize  int      `yaml:"pool_size" json:"pool_size"`
}

// KafkaConfig Kafka 配置 (可选，留空则不发事件通知)
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers" json:"brokers"`
	ClientID string   `yaml:"client_id" json:"client_id"`
}

// ChainsConfig 链 ID 到 RPC 端点的映射
//
// 未配置的链回退到内置的公共端点表；两者都没有的链 ID 直接拒绝。
type ChainsConfig struct {
	RPCURLs map[int64]string `yaml:"rpc_urls" json:"rpc_urls"`
}

// SettlementConfig 结算配置
type SettlementConfig struct {
	DeveloperSharePercent int `yaml:"developer_share_percent" json:"developer_share_percent"`
	VerifyTimeout         int `yaml:"verify_timeout" json:"verify_timeout"` // 秒
	MaxBlockAge           int `yaml:"max_block_age" json:"max_block_age"`   // 区块数

	// 信任去重窗口 (秒)
	ImpressionDedupWindow int `yaml:"impression_dedup_window" json:"impression_dedup_window"`
	ClickDedupWindow      int `yaml:"click_dedup_window" json:"click_dedup_window"`
	ConversionDedupWindow int `yaml:"conversion_dedup_window" json:"conversion_dedup_window"`

	// 链上身份去重窗口 (小时)
	SwapperDedupWindow int `yaml:"swapper_dedup_window" json:"swapper_dedup_window"`

	MaxSearchResults int `yaml:"max_search_results" json:"max_search_results"`
}

// WorkerConfig 对账 worker 配置
type WorkerConfig struct {
	Interval  int `yaml:"interval" json:"interval"` // 秒
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	LockTTL   int `yaml:"lock_ttl" json:"lock_ttl"` // 秒
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Load 加载配置
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// 环境变量替换
	content := string(data)
	content = expandEnvVars(content)

	var cfg Config
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, err
	}

	// 设置默认值
	setDefaults(&cfg)

	return &cfg, nil
}

// expandEnvVars 展开环境变量 ${VAR:default}
func expandEnvVars(s string) string {
	result := s
	for {
		start := strings.Index(result, "${")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start

		expr := result[start+2 : end]
		parts := strings.SplitN(expr, ":", 2)
		varName := parts[0]
		defaultVal := ""
		if len(parts) > 1 {
			defaultVal = parts[1]
		}

		value := os.Getenv(varName)
		if value == "" {
			value = defaultVal
		}

		result = result[:start] + value + result[end+1:]
	}
	return result
}

// setDefaults 设置默认值
func setDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "eidos-ads"
	}
	if cfg.Service.MetricsPort == 0 {
		cfg.Service.MetricsPort = 9104
	}
	if cfg.Service.Env == "" {
		cfg.Service.Env = "dev"
	}

	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.MaxConnections == 0 {
		cfg.Postgres.MaxConnections = 50
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 10
	}
	if cfg.Postgres.ConnMaxLifetime == 0 {
		cfg.Postgres.ConnMaxLifetime = 3600
	}

	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 50
	}

	if cfg.Settlement.DeveloperSharePercent == 0 {
		cfg.Settlement.DeveloperSharePercent = 70
	}
	if cfg.Settlement.VerifyTimeout == 0 {
		cfg.Settlement.VerifyTimeout = 5
	}
	if cfg.Settlement.MaxBlockAge == 0 {
		cfg.Settlement.MaxBlockAge = 7200
	}
	if cfg.Settlement.ImpressionDedupWindow == 0 {
		cfg.Settlement.ImpressionDedupWindow = 60
	}
	if cfg.Settlement.ClickDedupWindow == 0 {
		cfg.Settlement.ClickDedupWindow = 300
	}
	if cfg.Settlement.ConversionDedupWindow == 0 {
		cfg.Settlement.ConversionDedupWindow = 3600
	}
	if cfg.Settlement.SwapperDedupWindow == 0 {
		cfg.Settlement.SwapperDedupWindow = 24
	}
	if cfg.Settlement.MaxSearchResults == 0 {
		cfg.Settlement.MaxSearchResults = 3
	}

	if cfg.Worker.Interval == 0 {
		cfg.Worker.Interval = 60
	}
	if cfg.Worker.BatchSize == 0 {
		cfg.Worker.BatchSize = 50
	}
	if cfg.Worker.LockTTL == 0 {
		cfg.Worker.LockTTL = 120
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// GetEnvInt 获取环境变量整数值
func GetEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetEnvString 获取环境变量字符串值
func GetEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
