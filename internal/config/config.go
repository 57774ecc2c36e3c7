// Package config loads relay settings from an optional YAML file, then the
// environment, then validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/imrishuroy/insurance-relay/internal/validation"
)

// Directory sources.
const (
	SourceFile     = "file"
	SourceDynamoDB = "dynamodb"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the top-level relay configuration.
type Config struct {
	InputQueueURL     string        `yaml:"input_queue_url" validate:"required"`
	OutputQueueURL    string        `yaml:"output_queue_url" validate:"required"`
	OutputFIFO        *bool         `yaml:"output_fifo"`
	LongPollWait      time.Duration `yaml:"long_poll_wait" validate:"min=0,max=20s"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout" validate:"min=0,max=12h"`
	PollInterval      time.Duration `yaml:"poll_interval" validate:"gt=0"`
	CycleTimeout      time.Duration `yaml:"cycle_timeout" validate:"min=0"`
	RunOnStart        bool          `yaml:"run_on_start"`
	AuditLog          string        `yaml:"audit_log" validate:"required"`
	Directory         Directory     `yaml:"directory"`
	Metrics           Metrics       `yaml:"metrics"`
	HealthAddr        string        `yaml:"health_addr"`
	LogLevel          string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat         string        `yaml:"log_format" validate:"oneof=json console"`
	AWS               AWS           `yaml:"aws"`
}

// Directory selects where insurance data comes from.
type Directory struct {
	Source   string        `yaml:"source" validate:"oneof=file dynamodb"`
	Path     string        `yaml:"path"`
	Table    string        `yaml:"table"`
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"min=0"`
}

// Metrics enables CloudWatch publishing when Namespace is set.
type Metrics struct {
	Namespace string `yaml:"namespace"`
}

// AWS overrides the default credential chain settings.
type AWS struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		LongPollWait: 20 * time.Second,
		PollInterval: 3 * time.Second,
		CycleTimeout: time.Minute,
		RunOnStart:   true,
		AuditLog:     "Project2Service.log",
		Directory: Directory{
			Source: SourceFile,
			Path:   "InsuranceDatabase.json",
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FIFO reports whether the output queue should get group and dedup ids.
func (c Config) FIFO(inferred bool) bool {
	if c.OutputFIFO != nil {
		return *c.OutputFIFO
	}
	return inferred
}

var validate = newValidator()

func newValidator() *validatorv10.Validate {
	v := validation.New()
	v.RegisterStructValidation(configStructValidation, Config{})
	return v
}

// configStructValidation checks rules that span fields.
func configStructValidation(sl validatorv10.StructLevel) {
	c := sl.Current().Interface().(Config)

	if c.CycleTimeout > 0 && c.CycleTimeout <= c.LongPollWait {
		sl.ReportError(c.CycleTimeout, "cycle_timeout", "CycleTimeout", "gtfield", "long_poll_wait")
	}
	switch c.Directory.Source {
	case SourceFile:
		if c.Directory.Path == "" {
			sl.ReportError(c.Directory.Path, "directory.path", "Path", "required", "")
		}
	case SourceDynamoDB:
		if c.Directory.Table == "" {
			sl.ReportError(c.Directory.Table, "directory.table", "Table", "required", "")
		}
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	if err := validation.Struct(validate, c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"RELAY_INPUT_QUEUE_URL":   &c.InputQueueURL,
		"RELAY_OUTPUT_QUEUE_URL":  &c.OutputQueueURL,
		"RELAY_AUDIT_LOG":         &c.AuditLog,
		"RELAY_DIRECTORY_SOURCE":  &c.Directory.Source,
		"RELAY_DIRECTORY_PATH":    &c.Directory.Path,
		"RELAY_DIRECTORY_TABLE":   &c.Directory.Table,
		"RELAY_METRICS_NAMESPACE": &c.Metrics.Namespace,
		"RELAY_HEALTH_ADDR":       &c.HealthAddr,
		"RELAY_LOG_LEVEL":         &c.LogLevel,
		"RELAY_LOG_FORMAT":        &c.LogFormat,
		"AWS_REGION":              &c.AWS.Region,
		"AWS_ENDPOINT_OVERRIDE":   &c.AWS.Endpoint,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"RELAY_LONG_POLL_WAIT":      &c.LongPollWait,
		"RELAY_VISIBILITY_TIMEOUT":  &c.VisibilityTimeout,
		"RELAY_POLL_INTERVAL":       &c.PollInterval,
		"RELAY_CYCLE_TIMEOUT":       &c.CycleTimeout,
		"RELAY_DIRECTORY_CACHE_TTL": &c.Directory.CacheTTL,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
		}
		*dst = d
	}

	bools := map[string]func(bool){
		"RELAY_RUN_ON_START": func(b bool) { c.RunOnStart = b },
		"RELAY_OUTPUT_FIFO":  func(b bool) { c.OutputFIFO = &b },
	}
	for key, set := range bools {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
		}
		set(b)
	}
	return nil
}
