package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Enabled     bool
	Broker      string
	ClientID    string
	Username    string
	Password    string
	QoS         byte
	UplinkTopic    string        // 上行报文主题，如 "trackers/+/+/up"（协议/设备号）
	DownTopic      string        // 下行报文主题模板，如 "trackers/%s/%s/down"
	PublishTimeout time.Duration // 单次发布的等待上限
}

// Config 服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 接入服务器配置
	Server struct {
		// 协议端口映射，如 "gt06=5023,t800x=5026"
		ProtocolPorts map[string]int
		ReadTimeout   time.Duration // 单连接读超时
		WriteTimeout  time.Duration
	}

	// 会话配置
	Session struct {
		Grace         time.Duration // 断线宽限期，超过后派发离线事件
		SweepInterval time.Duration
	}

	// 事件处理配置
	Handler struct {
		SpeedLimitKnots float64 // 全局超速阈值（节），0 表示禁用
	}

	// 通知配置
	Notification struct {
		Workers int           // 异步派发并发度
		Timeout time.Duration // 单次通知发送超时
	}

	// 地理编码配置
	Geocoder struct {
		Enabled bool
		URL     string // Nominatim 服务地址
		Timeout time.Duration
	}

	// 事件转发配置
	Forwarder struct {
		Enabled bool
		Stream  string // Redis Stream 键名
		MaxLen  int64
	}

	// 管理接口配置
	API struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "fleettrack")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 25)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Enabled = getEnvBool("MQTT_ENABLED", false)
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "fleettrack-ingest")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(getEnvInt("MQTT_QOS", 1))
	cfg.MQTT.UplinkTopic = getEnv("MQTT_UPLINK_TOPIC", "trackers/+/+/up")
	cfg.MQTT.DownTopic = getEnv("MQTT_DOWNLINK_TOPIC", "trackers/%s/%s/down")
	cfg.MQTT.PublishTimeout = getEnvDuration("MQTT_PUBLISH_TIMEOUT", 10*time.Second)

	ports, err := parseProtocolPorts(getEnv("SERVER_PROTOCOLS", "gt06=5023,t800x=5026"))
	if err != nil {
		return nil, err
	}
	cfg.Server.ProtocolPorts = ports
	cfg.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 5*time.Minute)
	cfg.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second)

	cfg.Session.Grace = getEnvDuration("SESSION_GRACE", 10*time.Minute)
	cfg.Session.SweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", 30*time.Second)

	cfg.Handler.SpeedLimitKnots = getEnvFloat("HANDLER_SPEED_LIMIT_KNOTS", 0)

	cfg.Notification.Workers = getEnvInt("NOTIFICATION_WORKERS", 8)
	cfg.Notification.Timeout = getEnvDuration("NOTIFICATION_TIMEOUT", 10*time.Second)

	cfg.Geocoder.Enabled = getEnvBool("GEOCODER_ENABLED", false)
	cfg.Geocoder.URL = getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org")
	cfg.Geocoder.Timeout = getEnvDuration("GEOCODER_TIMEOUT", 5*time.Second)

	cfg.Forwarder.Enabled = getEnvBool("FORWARDER_ENABLED", false)
	cfg.Forwarder.Stream = getEnv("FORWARDER_STREAM", "fleettrack:events")
	cfg.Forwarder.MaxLen = int64(getEnvInt("FORWARDER_MAXLEN", 10000))

	cfg.API.Addr = getEnv("API_ADDR", ":8082")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// parseProtocolPorts 解析 "name=port,name=port" 形式的协议端口映射
func parseProtocolPorts(spec string) (map[string]int, error) {
	ports := make(map[string]int)
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, portStr, found := strings.Cut(entry, "=")
		if !found {
			return nil, fmt.Errorf("invalid protocol port entry %q", entry)
		}
		port, err := strconv.Atoi(strings.TrimSpace(portStr))
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid port in protocol entry %q", entry)
		}
		ports[strings.TrimSpace(name)] = port
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("no protocol ports configured")
	}
	return ports, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
