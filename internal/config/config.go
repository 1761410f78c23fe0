package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppName string `mapstructure:"APP_NAME"`
	Env     string `mapstructure:"APP_ENV"`
	Host    string `mapstructure:"HTTP_HOST"`
	Port    int    `mapstructure:"HTTP_PORT"`
	Debug   bool   `mapstructure:"DEBUG"`

	LogLevel       string `mapstructure:"LOG_LEVEL"`
	CORSOriginsRaw string `mapstructure:"CORS_ORIGINS"`
	CORSOrigins    []string

	// Persistence: sqlite | postgres | mongo
	DBDriver         string `mapstructure:"DB_DRIVER"`
	SQLitePath       string `mapstructure:"SQLITE_PATH"`
	PostgresHost     string `mapstructure:"POSTGRES_HOST"`
	PostgresPort     string `mapstructure:"POSTGRES_PORT"`
	PostgresUser     string `mapstructure:"POSTGRES_USER"`
	PostgresPassword string `mapstructure:"POSTGRES_PASSWORD"`
	PostgresDB       string `mapstructure:"POSTGRES_DB"`
	MongoURI         string `mapstructure:"MONGO_URI"`
	MongoDB          string `mapstructure:"MONGO_DB"`

	JWTSecret          string `mapstructure:"JWT_SECRET"`
	AccessTokenMinutes int    `mapstructure:"ACCESS_TOKEN_EXPIRE_MINUTES"`
	SessionCookieName  string `mapstructure:"SESSION_COOKIE_NAME"`

	MaxMessageLength  int `mapstructure:"MAX_MESSAGE_LENGTH"`
	SendRatePerMinute int `mapstructure:"SEND_RATE_PER_MINUTE"`

	// Push fan-out: none | memory | redis | nats | kafka
	EventBroker   string `mapstructure:"EVENT_BROKER"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisChannel  string `mapstructure:"REDIS_CHANNEL"`
	NatsURL       string `mapstructure:"NATS_URL"`
	NatsSubject   string `mapstructure:"NATS_SUBJECT"`
	KafkaBrokers  string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic    string `mapstructure:"KAFKA_TOPIC"`
	KafkaGroupID  string `mapstructure:"KAFKA_GROUP_ID"`
}

var defaults = map[string]any{
	"APP_NAME":                    "Direct Messages API",
	"APP_ENV":                     "development",
	"HTTP_HOST":                   "0.0.0.0",
	"HTTP_PORT":                   8000,
	"DEBUG":                       true,
	"LOG_LEVEL":                   "info",
	"CORS_ORIGINS":                "http://localhost:3000,http://localhost:5173",
	"DB_DRIVER":                   "sqlite",
	"SQLITE_PATH":                 "dm.db",
	"POSTGRES_HOST":               "localhost",
	"POSTGRES_PORT":               "5432",
	"POSTGRES_USER":               "postgres",
	"POSTGRES_PASSWORD":           "postgres",
	"POSTGRES_DB":                 "dm",
	"MONGO_URI":                   "mongodb://localhost:27017",
	"MONGO_DB":                    "dm",
	"JWT_SECRET":                  "",
	"ACCESS_TOKEN_EXPIRE_MINUTES": 60 * 24,
	"SESSION_COOKIE_NAME":         "session_token",
	"MAX_MESSAGE_LENGTH":          5000,
	"SEND_RATE_PER_MINUTE":        120,
	"EVENT_BROKER":                "memory",
	"REDIS_ADDR":                  "localhost:6379",
	"REDIS_PASSWORD":              "",
	"REDIS_DB":                    0,
	"REDIS_CHANNEL":               "dm:events",
	"NATS_URL":                    "nats://127.0.0.1:4222",
	"NATS_SUBJECT":                "dm.events",
	"KAFKA_BROKERS":               "localhost:9092",
	"KAFKA_TOPIC":                 "dm-events",
	"KAFKA_GROUP_ID":              "",
}

// Load reads configuration from the environment, optionally layered over a
// YAML/JSON file named by CONFIG_FILE.
func Load() (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOriginsRaw)
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.EventBroker = strings.ToLower(strings.TrimSpace(cfg.EventBroker))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.DBDriver {
	case "sqlite", "postgres", "mongo":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.EventBroker {
	case "", "none", "memory", "redis", "nats", "kafka":
	default:
		return fmt.Errorf("unsupported EVENT_BROKER %q", c.EventBroker)
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     fmt.Sprintf("%s:%s", c.PostgresHost, c.PostgresPort),
		Path:     c.PostgresDB,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenMinutes) * time.Minute
}

func (c *Config) KafkaBrokerList() []string {
	return splitList(c.KafkaBrokers)
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Debug
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
