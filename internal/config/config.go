// Package config loads the poller configuration from an optional YAML file
// and environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure returned by Load.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete configuration of the lrowait command.
type Config struct {
	ServiceName string          `yaml:"serviceName" validate:"required"`
	Poll        PollConfig      `yaml:"poll"`
	HTTP        HTTPConfig      `yaml:"http"`
	Log         LogConfig       `yaml:"log"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Database    DatabaseConfig  `yaml:"database"`
}

// PollConfig controls the polling loop.
type PollConfig struct {
	// Interval is the minimum delay between two status checks.
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
	// Timeout bounds the whole wait. Zero means no bound.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// HTTPConfig controls the status-check HTTP client.
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
	RetryMax     int           `yaml:"retryMax" validate:"gte=0,lte=10"`
	RetryWaitMin time.Duration `yaml:"retryWaitMin" validate:"gt=0"`
	RetryWaitMax time.Duration `yaml:"retryWaitMax" validate:"gtefield=RetryWaitMin"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint" validate:"required_if=Enabled true"`
	SampleRatio float64 `yaml:"sampleRatio" validate:"gte=0,lte=1"`
}

// DatabaseConfig locates the operations table for the Postgres source.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
	// MigrationsSource is a golang-migrate source URL such as
	// "file:///srv/migrations". Empty uses the migrations built into the binary.
	MigrationsSource string `yaml:"migrationsSource"`
	RunMigrations    bool   `yaml:"runMigrations"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		ServiceName: "lropoller",
		Poll: PollConfig{
			Interval: time.Second,
		},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			RetryMax:     3,
			RetryWaitMin: time.Second,
			RetryWaitMax: 30 * time.Second,
		},
		Log: LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			SampleRatio: 1,
		},
	}
}

// Load builds the configuration from the defaults, the YAML file at path
// (skipped when path is empty) and the process environment, in that order.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with a custom environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("LROPOLLER_SERVICE_NAME", &cfg.ServiceName)
	str("LROPOLLER_LOG_LEVEL", &cfg.Log.Level)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.Endpoint)
	str("DATABASE_URL", &cfg.Database.DSN)

	if err := dur("LROPOLLER_POLL_INTERVAL", &cfg.Poll.Interval); err != nil {
		return err
	}
	if err := dur("LROPOLLER_POLL_TIMEOUT", &cfg.Poll.Timeout); err != nil {
		return err
	}
	if err := dur("LROPOLLER_HTTP_TIMEOUT", &cfg.HTTP.Timeout); err != nil {
		return err
	}

	if v, ok := lookup("LROPOLLER_HTTP_RETRY_MAX"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing LROPOLLER_HTTP_RETRY_MAX: %w", err)
		}
		cfg.HTTP.RetryMax = n
	}
	if v, ok := lookup("LROPOLLER_TELEMETRY_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing LROPOLLER_TELEMETRY_ENABLED: %w", err)
		}
		cfg.Telemetry.Enabled = b
	}
	return nil
}

// Validate checks cfg and returns an error wrapping ErrInvalidConfig that
// lists every problem found.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, msg := range verrs.Translate(translator) {
		msgs = append(msgs, msg)
	}
	sort.Strings(msgs)
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	translator, _ = uni.GetTranslator("en")

	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := entranslations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(fmt.Sprintf("registering validation translations: %v", err))
	}
}
