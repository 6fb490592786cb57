package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Auth      AuthConfig
	Ticket    TicketConfig
	Scheduler SchedulerConfig
	Outbox    OutboxConfig
	Email     EmailConfig
	LogDir    string
	LogLevel  string
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	DSN            string
	MaxOpenConns   int
	MaxIdleConns   int
	MaxLifetime    time.Duration
	ConnectRetries int
	MigrationsDir  string
	AutoMigrate    bool
}

type RedisConfig struct {
	Addr     string
	StatsTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
	Enabled bool
}

// TopicConfig maps each notification kind to its topic.
type TopicConfig struct {
	TicketIssued          string
	PaymentApproved       string
	PaymentRejected       string
	RegistrationCancelled string
	EventPublished        string
}

func (t TopicConfig) All() []string {
	return []string{t.TicketIssued, t.PaymentApproved, t.PaymentRejected, t.RegistrationCancelled, t.EventPublished}
}

type AuthConfig struct {
	OIDCIssuer string
	// DevMode trusts unverified bearer tokens. Never enable outside local setups.
	DevMode bool
}

type TicketConfig struct {
	QRSecret string
	QRSize   int
}

type SchedulerConfig struct {
	Interval        time.Duration
	PerEventTimeout time.Duration
}

type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	From         string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8084"),
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Database: DatabaseConfig{
			DSN:            getEnv("POSTGRES_DSN", ""),
			MaxOpenConns:   getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:   getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:    time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			ConnectRetries: getEnvInt("DB_CONNECT_RETRIES", 5),
			MigrationsDir:  getEnv("MIGRATIONS_DIR", "./migrations"),
			AutoMigrate:    getEnvBool("DB_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			StatsTTL: getEnvDuration("ATTENDANCE_STATS_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID: getEnv("KAFKA_GROUP_ID", "fest-notifier"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				TicketIssued:          getEnv("KAFKA_TOPIC_TICKET_ISSUED", "fest.notifications.ticket-issued"),
				PaymentApproved:       getEnv("KAFKA_TOPIC_PAYMENT_APPROVED", "fest.notifications.payment-approved"),
				PaymentRejected:       getEnv("KAFKA_TOPIC_PAYMENT_REJECTED", "fest.notifications.payment-rejected"),
				RegistrationCancelled: getEnv("KAFKA_TOPIC_REGISTRATION_CANCELLED", "fest.notifications.registration-cancelled"),
				EventPublished:        getEnv("KAFKA_TOPIC_EVENT_PUBLISHED", "fest.notifications.event-published"),
			},
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
			DevMode:    getEnvBool("AUTH_DEV_MODE", false),
		},
		Ticket: TicketConfig{
			QRSecret: getEnv("QR_SECRET_KEY", ""),
			QRSize:   getEnvInt("QR_SIZE", 256),
		},
		Scheduler: SchedulerConfig{
			Interval:        getEnvDuration("LIFECYCLE_INTERVAL", time.Minute),
			PerEventTimeout: getEnvDuration("LIFECYCLE_EVENT_TIMEOUT", 10*time.Second),
		},
		Outbox: OutboxConfig{
			PollInterval: getEnvDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize:    getEnvInt("OUTBOX_BATCH_SIZE", 100),
			MaxRetries:   getEnvInt("OUTBOX_MAX_RETRIES", 5),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			From:         getEnv("SMTP_FROM", "no-reply@fest.local"),
		},
		LogDir:   getEnv("LOG_DIR", "logs"),
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, e.g. KAFKA_BROKERS=kafka-1:9092,kafka-2:9092
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
