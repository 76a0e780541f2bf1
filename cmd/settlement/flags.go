package main

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	Address            string `env:"RUN_ADDRESS" envDefault:"localhost:8080"`
	LogLevel           string `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFile            string `env:"LOG_FILE"`
	DatabaseConnection string `env:"DATABASE_URI"`
	JWTSecret          string `env:"JWT_SECRET"`

	PaystackSecretKey string        `env:"PAYSTACK_SECRET_KEY"`
	PaystackBaseURL   string        `env:"PAYSTACK_BASE_URL" envDefault:"https://api.paystack.co"`
	PaystackTimeout   time.Duration `env:"PAYSTACK_TIMEOUT" envDefault:"10s"`
	PaystackRPS       float64       `env:"PAYSTACK_RPS" envDefault:"50"`
	CallbackURL       string        `env:"PAYMENT_CALLBACK_URL"`
	Currency          string        `env:"CURRENCY" envDefault:"NGN"`
	BankInstructions  string        `env:"BANK_TRANSFER_INSTRUCTIONS" envDefault:"Pay by bank transfer and quote your order reference."`
	OpayInstructions  string        `env:"OPAY_INSTRUCTIONS" envDefault:"Pay with OPay and quote your order reference."`

	ReconcileWorkers  int           `env:"RECONCILE_WORKERS" envDefault:"4"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	ReconcileAge      time.Duration `env:"RECONCILE_AGE" envDefault:"15m"`

	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	EventsBackend string   `env:"EVENTS_BACKEND" envDefault:"none"`
	RabbitMQURL   string   `env:"RABBITMQ_URL"`
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic    string   `env:"KAFKA_TOPIC" envDefault:"settlement.events"`
}

func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	address := flag.String("a", cfg.Address, "{Host:port} for server")
	loglevel := flag.String("l", cfg.LogLevel, "Log level for server")
	logFile := flag.String("f", cfg.LogFile, "Rotated log file path")
	databaseConnection := flag.String("d", cfg.DatabaseConnection, "Database connection string")
	reconcileWorkers := flag.Int("w", cfg.ReconcileWorkers, "Size of reconcile worker pool")
	reconcileInterval := flag.Duration("i", cfg.ReconcileInterval, "Reconcile sweep interval")
	reconcileAge := flag.Duration("g", cfg.ReconcileAge, "Age after which a pending payment is re-verified")
	eventsBackend := flag.String("e", cfg.EventsBackend, "Settlement events backend: none, rabbitmq, kafka")

	flag.Parse()

	cfg.Address = *address
	cfg.LogLevel = *loglevel
	cfg.LogFile = *logFile
	cfg.DatabaseConnection = *databaseConnection
	cfg.ReconcileWorkers = *reconcileWorkers
	cfg.ReconcileInterval = *reconcileInterval
	cfg.ReconcileAge = *reconcileAge
	cfg.EventsBackend = *eventsBackend

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("ENV JWT_SECRET must be set"))
	}
	if c.PaystackSecretKey == "" {
		errs = append(errs, errors.New("ENV PAYSTACK_SECRET_KEY must be set"))
	}
	if c.ReconcileWorkers < 1 {
		errs = append(errs, fmt.Errorf("reconcile workers must be positive, got %d", c.ReconcileWorkers))
	}
	if c.ReconcileInterval <= 0 {
		errs = append(errs, fmt.Errorf("reconcile interval must be positive, got %s", c.ReconcileInterval))
	}
	switch c.EventsBackend {
	case "none", "":
	case "rabbitmq":
		if c.RabbitMQURL == "" {
			errs = append(errs, errors.New("ENV RABBITMQ_URL must be set for the rabbitmq events backend"))
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("ENV KAFKA_BROKERS must be set for the kafka events backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown events backend %q", c.EventsBackend))
	}
	return errors.Join(errs...)
}
