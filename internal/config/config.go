package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                  string        `mapstructure:"ENV"`
	Port                 string        `mapstructure:"PORT"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	AutoMigrate          bool          `mapstructure:"AUTO_MIGRATE"`
	JWTSecret            string        `mapstructure:"JWT_SECRET"`
	JWTTTL               time.Duration `mapstructure:"JWT_TTL"`
	ServiceKey           string        `mapstructure:"SERVICE_KEY"`
	CORSAllowed          string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout       time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
	AMQPURL              string        `mapstructure:"AMQP_URL"`
	AMQPExchange         string        `mapstructure:"AMQP_EXCHANGE"`
	AMQPMessagesExchange string        `mapstructure:"AMQP_MESSAGES_EXCHANGE"`
	AMQPQueue            string        `mapstructure:"AMQP_QUEUE"`
	AMQPWorkers          int           `mapstructure:"AMQP_WORKERS"`
	ReconcileInterval    time.Duration `mapstructure:"RECONCILE_INTERVAL"`
	UrgencySweepInterval time.Duration `mapstructure:"URGENCY_SWEEP_INTERVAL"`
	TransferredClaim     string        `mapstructure:"TRANSFERRED_CLAIM_POLICY"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("AUTO_MIGRATE", true)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_TTL", "12h")
	v.SetDefault("SERVICE_KEY", "")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_EXCHANGE", "attendance.events")
	v.SetDefault("AMQP_MESSAGES_EXCHANGE", "chat.messages")
	v.SetDefault("AMQP_QUEUE", "attendance-router.messages")
	v.SetDefault("AMQP_WORKERS", 4)
	v.SetDefault("RECONCILE_INTERVAL", "5m")
	v.SetDefault("URGENCY_SWEEP_INTERVAL", "1m")
	v.SetDefault("TRANSFERRED_CLAIM_POLICY", "department")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// InMemory reports whether the process runs without PostgreSQL.
func (c Config) InMemory() bool {
	return c.DatabaseURL == ""
}
