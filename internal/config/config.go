// Package config loads the engineering policy and the service settings from one YAML
// file, with the environment taking precedence for deployment secrets and addresses.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"Wallcheck/internal/calc/api579"
	"Wallcheck/internal/calc/corrosion"
	"Wallcheck/internal/calc/geometry"
	"Wallcheck/internal/calc/material"
	"Wallcheck/internal/calc/rbi"
	"Wallcheck/internal/errs"
)

// Environment overrides.
const (
	EnvConfig   = "WALLCHECK_CONFIG"
	EnvDSN      = "DATABASE_URL"
	EnvDriver   = "DATABASE_DRIVER"
	EnvTokenKey = "TOKEN_KEY"
	EnvAddr     = "LISTEN_ADDR"
	EnvNATS     = "NATS_URL"
	EnvTLSCert  = "TLS_CERT"
	EnvTLSKey   = "TLS_KEY"
)

type Config struct {
	Assessment api579.Policy `yaml:"assessment"`
	Geometry   Geometry      `yaml:"geometry"`
	Confidence Confidence    `yaml:"confidence"`
	RBI        rbi.Config    `yaml:"rbi"`
	Server     Server        `yaml:"server"`
	Database   Database      `yaml:"database"`
	Queue      Queue         `yaml:"queue"`
}

type Geometry struct {
	// Internal radius in inches above which thin-shell results carry a warning.
	RadiusLimit decimal.Decimal `yaml:"radius_limit"`
}

type Confidence struct {
	CountHalfSaturation decimal.Decimal `yaml:"count_half_saturation"`
	VarianceScale       decimal.Decimal `yaml:"variance_scale"`
}

type Server struct {
	Addr     string `yaml:"addr"`
	TLSCert  string `yaml:"tls_cert"`
	TLSKey   string `yaml:"tls_key"`
	TokenKey string `yaml:"-"`
	// Requests per second and burst per client host.
	RateLimit    float64       `yaml:"rate_limit"`
	RateBurst    int           `yaml:"rate_burst"`
	SecureCookie bool          `yaml:"secure_cookie"`
	BatchWorkers int           `yaml:"batch_workers"`
	Shutdown     time.Duration `yaml:"shutdown_timeout"`
}

// TLS reports whether both halves of a certificate pair are configured.
func (s Server) TLS() bool { return s.TLSCert != "" && s.TLSKey != "" }

type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"-"`
}

type Queue struct {
	URL        string        `yaml:"url"`
	Stream     string        `yaml:"stream"`
	Durable    string        `yaml:"durable"`
	AckWait    time.Duration `yaml:"ack_wait"`
	MaxDeliver int           `yaml:"max_deliver"`
}

func Default() Config {
	return Config{
		Assessment: api579.DefaultPolicy(),
		Geometry:   Geometry{RadiusLimit: geometry.DefaultRadiusLimit},
		Confidence: Confidence{
			CountHalfSaturation: corrosion.DefaultCountHalfSaturation,
			VarianceScale:       corrosion.DefaultVarianceScale,
		},
		RBI: rbi.DefaultConfig(),
		Server: Server{
			Addr:         ":8080",
			RateLimit:    1,
			RateBurst:    3,
			SecureCookie: true,
			BatchWorkers: 4,
			Shutdown:     5 * time.Second,
		},
		Database: Database{Driver: "postgres"},
		Queue: Queue{
			Stream:     "WALLCHECK",
			Durable:    "wallcheck-assess",
			AckWait:    30 * time.Second,
			MaxDeliver: 5,
		},
	}
}

// Load starts from Default, applies the YAML file at path when there is one and then
// the environment. An empty path falls back to WALLCHECK_CONFIG; a missing .env is
// fine, a missing named config file is not.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, errs.Wrap(err, "load .env")
	}
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errs.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, errs.Validationf("config", "parse %s: %v", path, err)
		}
	}
	cfg.applyEnv()
	// The interval service bands RSF with the assessment thresholds.
	cfg.RBI.CriticalRSF = cfg.Assessment.CriticalRSF
	cfg.RBI.AcceptanceRSF = cfg.Assessment.AcceptanceRSF
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Database.DSN, EnvDSN)
	set(&c.Database.Driver, EnvDriver)
	set(&c.Server.TokenKey, EnvTokenKey)
	set(&c.Server.Addr, EnvAddr)
	set(&c.Server.TLSCert, EnvTLSCert)
	set(&c.Server.TLSKey, EnvTLSKey)
	set(&c.Queue.URL, EnvNATS)
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	var list []*errs.Error
	list = append(list, errs.Fields(c.Assessment.Validate())...)
	list = append(list, errs.Fields(c.RBI.Validate())...)
	if !c.RBI.CriticalRSF.Equal(c.Assessment.CriticalRSF) || !c.RBI.AcceptanceRSF.Equal(c.Assessment.AcceptanceRSF) {
		list = append(list, errs.Validation("rbi", "RSF thresholds must match the assessment section"))
	}
	if _, err := c.Engine(); err != nil {
		list = append(list, errs.Fields(err)...)
	}
	if !c.Geometry.RadiusLimit.IsPositive() {
		list = append(list, errs.Validation("geometry.radius_limit", "must be positive"))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		list = append(list, errs.Validationf("database.driver", "unsupported driver %q (postgres or sqlite)", c.Database.Driver))
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 1 {
		list = append(list, errs.Validation("server.rate_limit", "rate must be non-negative and burst at least 1"))
	}
	if c.Server.BatchWorkers < 1 {
		list = append(list, errs.Validation("server.batch_workers", "must be at least 1"))
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		list = append(list, errs.Validation("server.tls", "certificate and key must be set together"))
	}
	if c.Queue.MaxDeliver < 1 || c.Queue.AckWait <= 0 {
		list = append(list, errs.Validation("queue", "max_deliver and ack_wait must be positive"))
	}
	return errs.Join(list...)
}

func (c Config) Engine() (*corrosion.Engine, error) {
	return corrosion.NewEngine(c.Confidence.CountHalfSaturation, c.Confidence.VarianceScale)
}

// Components are the calculation services built from one configuration. They are
// read-only after Build and shared by the server, the CLI and the worker.
type Components struct {
	Materials  *material.Resolver
	Geometry   *geometry.Resolver
	Engine     *corrosion.Engine
	Calculator *api579.Calculator
	Intervals  *rbi.Service
}

// Build wires the calculation services over the builtin material table.
func (c Config) Build() (Components, error) {
	out := Components{
		Materials: material.NewResolver(nil),
		Geometry:  geometry.NewResolver(c.Geometry.RadiusLimit),
	}
	var err error
	if out.Engine, err = c.Engine(); err != nil {
		return Components{}, err
	}
	if out.Calculator, err = api579.NewCalculator(c.Assessment, out.Materials, out.Geometry); err != nil {
		return Components{}, err
	}
	if out.Intervals, err = rbi.NewService(c.RBI); err != nil {
		return Components{}, err
	}
	return out, nil
}
