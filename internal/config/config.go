package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string           `yaml:"listen_addr" env:"READINESS_LISTEN_ADDR"`
	DB         DBConfig         `yaml:"db"`
	Evaluators EvaluatorsConfig `yaml:"evaluators"`
	ShiftCodes []string         `yaml:"shift_codes" env:"READINESS_SHIFT_CODES" envSeparator:","`
	SigningKey SigningKeyConfig `yaml:"signing_key"`
	Auth       AuthConfig       `yaml:"auth"`
	OTel       OTelConfig       `yaml:"otel"`
}

type DBConfig struct {
	Driver string `yaml:"driver" env:"READINESS_DB_DRIVER"`
	DSN    string `yaml:"dsn" env:"READINESS_DB_DSN"`
}

type EvaluatorsConfig struct {
	Legal    EvaluatorConfig `yaml:"legal" envPrefix:"READINESS_LEGAL_"`
	Ops      EvaluatorConfig `yaml:"ops" envPrefix:"READINESS_OPS_"`
	MaxTries int             `yaml:"max_tries" env:"READINESS_EVALUATOR_MAX_TRIES"`
}

type EvaluatorConfig struct {
	URL     string        `yaml:"url" env:"URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Token   string        `yaml:"token" env:"TOKEN"`
	// FlagPath overrides the JSON path of the flag in evaluator responses.
	FlagPath string `yaml:"flag_path" env:"FLAG_PATH"`
}

type SigningKeyConfig struct {
	KeyID          string `yaml:"key_id" env:"READINESS_SIGNING_KEY_ID"`
	PrivateKeyPath string `yaml:"private_key_path" env:"READINESS_SIGNING_KEY_PATH"`
}

type AuthConfig struct {
	DevToken  string `yaml:"dev_token" env:"READINESS_DEV_TOKEN"`
	DevOrgID  string `yaml:"dev_org_id" env:"READINESS_DEV_ORG_ID"`
	DevSiteID string `yaml:"dev_site_id" env:"READINESS_DEV_SITE_ID"`
	JWTSecret string `yaml:"jwt_secret" env:"READINESS_JWT_SECRET"`
	JWTIssuer string `yaml:"jwt_issuer" env:"READINESS_JWT_ISSUER"`
}

type OTelConfig struct {
	Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
}

const defaultEvaluatorTimeout = 5 * time.Second

// Load reads the YAML file at path and applies overrides from the process
// environment.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, nil)
}

// LoadWithEnv is Load with an explicit environment; nil means the process
// environment.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.Expand(string(raw), func(key string) string {
		if environ != nil {
			return environ[key]
		}
		return os.Getenv(key)
	})
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	if c.DB.Driver == "" {
		c.DB.Driver = "memory"
	}
	if c.Evaluators.Legal.Timeout == 0 {
		c.Evaluators.Legal.Timeout = defaultEvaluatorTimeout
	}
	if c.Evaluators.Ops.Timeout == 0 {
		c.Evaluators.Ops.Timeout = defaultEvaluatorTimeout
	}
	if c.OTel.ServiceName == "" {
		c.OTel.ServiceName = "readiness-gateway"
	}
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}

	switch c.DB.Driver {
	case "", "memory":
	case "sqlite", "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required when db.driver is %s", c.DB.Driver)
		}
	default:
		return fmt.Errorf("db.driver %q is not supported", c.DB.Driver)
	}

	if c.Evaluators.Legal.URL == "" || c.Evaluators.Ops.URL == "" {
		return fmt.Errorf("evaluators.legal.url and evaluators.ops.url are required")
	}
	if c.Evaluators.MaxTries < 0 {
		return fmt.Errorf("evaluators.max_tries must not be negative")
	}

	if (c.SigningKey.KeyID == "") != (c.SigningKey.PrivateKeyPath == "") {
		return fmt.Errorf("signing_key.key_id and signing_key.private_key_path must be set together")
	}

	if c.Auth.DevToken == "" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.dev_token or auth.jwt_secret is required")
	}
	if c.Auth.DevToken != "" && c.Auth.DevOrgID == "" {
		return fmt.Errorf("auth.dev_org_id is required when auth.dev_token is set")
	}

	return nil
}
