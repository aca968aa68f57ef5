package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Paymob   PaymobConfig   `yaml:"paymob"`
	Bank     BankConfig     `yaml:"bank"`
	Auth     AuthConfig     `yaml:"auth"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingEventsTopic string   `yaml:"booking_events_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type PaymobConfig struct {
	BaseURL           string `yaml:"base_url"`
	APIKey            string `yaml:"api_key"`
	IntegrationID     int64  `yaml:"integration_id"`
	IframeID          int64  `yaml:"iframe_id"`
	HMACSecret        string `yaml:"hmac_secret"`
	SessionTTLSeconds int    `yaml:"session_ttl_seconds"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
}

type BankConfig struct {
	AccountName     string `yaml:"account_name"`
	IBAN            string `yaml:"iban"`
	BankName        string `yaml:"bank_name"`
	ReferenceFormat string `yaml:"reference_format"`
	WebhookSecret   string `yaml:"webhook_secret"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type WorkerConfig struct {
	FulfillmentSweepMinutes int `yaml:"fulfillment_sweep_minutes"`
	SweepBatchSize          int `yaml:"sweep_batch_size"`
}

type LogConfig struct {
	Env string `yaml:"env"`
}

// LoadConfig reads a YAML file, expanding ${VAR} references from the environment.
// A .env file next to the binary is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Paymob.BaseURL == "" {
		c.Paymob.BaseURL = "https://accept.paymob.com"
	}
	if c.Paymob.SessionTTLSeconds == 0 {
		c.Paymob.SessionTTLSeconds = 3600
	}
	if c.Paymob.TimeoutSeconds == 0 {
		c.Paymob.TimeoutSeconds = 15
	}
	if c.Bank.ReferenceFormat == "" {
		c.Bank.ReferenceFormat = "<booking id>-bank"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Worker.FulfillmentSweepMinutes == 0 {
		c.Worker.FulfillmentSweepMinutes = 10
	}
	if c.Worker.SweepBatchSize == 0 {
		c.Worker.SweepBatchSize = 100
	}
	if c.Log.Env == "" {
		c.Log.Env = "development"
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Database.Host == "" || c.Database.Name == "" {
		errs = append(errs, errors.New("database host and name are required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Bank.IBAN == "" || c.Bank.AccountName == "" {
		errs = append(errs, errors.New("bank account name and iban are required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
