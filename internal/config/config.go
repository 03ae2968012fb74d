package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates the payments service configuration.
type Config struct {
	HTTP     HTTPConfig
	GRPC     GRPCConfig
	Payments PaymentsConfig
	Auth     AuthConfig
	Context  ServiceEndpoint
	Storage  ServiceEndpoint
	Store    StoreConfig
	Events   EventsConfig
	Logging  LoggingConfig
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type GRPCConfig struct {
	Addr        string
	MetricsAddr string
}

// PaymentsConfig holds the coordinator toggles.
type PaymentsConfig struct {
	Provider          string
	RequireApproval   bool
	MockWebhookSecret string
}

type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Disabled bool
}

// ServiceEndpoint is a downstream host/port pair. An empty Host means not configured.
type ServiceEndpoint struct {
	Host string
	Port string
}

func (e ServiceEndpoint) Configured() bool { return e.Host != "" }

func (e ServiceEndpoint) BaseURL() string {
	return fmt.Sprintf("http://%s:%s", e.Host, e.Port)
}

type StoreConfig struct {
	Backend     string // memory|postgres
	DatabaseURL string
}

type EventsConfig struct {
	Sink    string // none|http|kafka
	Brokers []string
	Topic   string
	GroupID string
}

type LoggingConfig struct {
	Level  string
	Format string // text|json
}

const (
	defaultHTTPAddr        = ":8089"
	defaultGRPCAddr        = ":9091"
	defaultMetricsAddr     = ":9101"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultEventsTopic     = "payments.events"
	defaultRelayGroup      = "payments-events-relay"
)

// Load reads configuration from the environment, applying defaults. A .env
// file in the working directory is loaded first when present.
func Load() (Config, error) {
	cfg, err := read()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadWorker is Load for the event relay, which needs brokers and the
// context service but neither auth nor a registry.
func LoadWorker() (Config, error) {
	cfg, err := read()
	if err != nil {
		return Config{}, err
	}
	if len(cfg.Events.Brokers) == 0 {
		return Config{}, fmt.Errorf("KAFKA_BROKERS is required for the event relay")
	}
	if !cfg.Context.Configured() {
		return Config{}, fmt.Errorf("UNISON_CONTEXT_HOST is required for the event relay")
	}
	return cfg, nil
}

func read() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTP: HTTPConfig{
			Addr:            getEnv("HTTP_ADDR", defaultHTTPAddr),
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			IdleTimeout:     defaultIdleTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		GRPC: GRPCConfig{
			Addr:        getEnv("GRPC_ADDR", defaultGRPCAddr),
			MetricsAddr: getEnv("METRICS_ADDR", defaultMetricsAddr),
		},
		Payments: PaymentsConfig{
			Provider:          getEnv("UNISON_PAYMENTS_PROVIDER", "mock"),
			RequireApproval:   parseFlag(os.Getenv("UNISON_REQUIRE_PAYMENT_APPROVAL"), true),
			MockWebhookSecret: os.Getenv("PAYMENTS_MOCK_WEBHOOK_SECRET"),
		},
		Auth: AuthConfig{
			Secret:   os.Getenv("UNISON_AUTH_SECRET"),
			Issuer:   getEnv("UNISON_AUTH_ISSUER", "unison-auth"),
			Audience: getEnv("UNISON_AUTH_AUDIENCE", "unison-internal"),
			Disabled: parseFlag(os.Getenv("DISABLE_AUTH_FOR_TESTS"), false),
		},
		Context: ServiceEndpoint{
			Host: os.Getenv("UNISON_CONTEXT_HOST"),
			Port: getEnv("UNISON_CONTEXT_PORT", "8081"),
		},
		Storage: ServiceEndpoint{
			Host: os.Getenv("UNISON_STORAGE_HOST"),
			Port: getEnv("UNISON_STORAGE_PORT", "8082"),
		},
		Store: StoreConfig{
			Backend:     strings.ToLower(getEnv("PAYMENTS_STORE", "memory")),
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		Events: EventsConfig{
			Sink:    strings.ToLower(getEnv("PAYMENTS_EVENT_SINK", "none")),
			Brokers: splitCSV(getEnv("KAFKA_BROKERS", "kafka:9092")),
			Topic:   getEnv("KAFKA_EVENTS_TOPIC", defaultEventsTopic),
			GroupID: getEnv("KAFKA_RELAY_GROUP", defaultRelayGroup),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SERVER_READ_TIMEOUT", &cfg.HTTP.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout},
		{"SERVER_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout},
	}
	for _, d := range durations {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when PAYMENTS_STORE=postgres")
		}
	default:
		return fmt.Errorf("unsupported PAYMENTS_STORE %q", c.Store.Backend)
	}

	switch c.Events.Sink {
	case "none", "":
	case "http":
		if !c.Context.Configured() {
			return fmt.Errorf("UNISON_CONTEXT_HOST is required when PAYMENTS_EVENT_SINK=http")
		}
	case "kafka":
		if len(c.Events.Brokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when PAYMENTS_EVENT_SINK=kafka")
		}
	default:
		return fmt.Errorf("unsupported PAYMENTS_EVENT_SINK %q", c.Events.Sink)
	}

	if !c.Auth.Disabled && c.Auth.Secret == "" {
		return fmt.Errorf("UNISON_AUTH_SECRET is required for payments auth")
	}
	return nil
}

func getEnv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// parseFlag accepts 1/true/yes/on (case-insensitive); empty means fallback.
func parseFlag(v string, fallback bool) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return fallback
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v == "yes" || v == "on"
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
