package observability

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/subtrack/internal/config"
	"github.com/smallbiznis/subtrack/internal/observability/logger"
	"github.com/smallbiznis/subtrack/internal/observability/metrics"
	"github.com/smallbiznis/subtrack/internal/observability/tracing"
)

// Config is the resolved logging and telemetry setup of one process. The
// application config supplies the defaults; OTEL_* and LOG_* variables win.
type Config struct {
	Service ServiceInfo
	Log     LogSettings
	Otel    OtelSettings
}

type ServiceInfo struct {
	Name        string
	Environment string
	Version     string
}

type LogSettings struct {
	Level  string
	Format string
	File   string
}

type OtelSettings struct {
	Enabled       bool
	Endpoint      string
	Protocol      string
	SamplingRatio float64
}

const (
	protocolGRPC = "grpc"
	protocolHTTP = "http/protobuf"
)

var logLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true, "dpanic": true, "panic": true, "fatal": true,
}

func LoadConfig(cfg config.Config) (Config, error) {
	return loadConfig(cfg, env(os.LookupEnv))
}

func loadConfig(cfg config.Config, e env) (Config, error) {
	service := ServiceInfo{
		Name:        e.first(firstNonEmpty(cfg.AppName, "subtrack"), "OTEL_SERVICE_NAME"),
		Environment: e.first(cfg.Environment, "DEPLOYMENT_ENV"),
		Version:     e.first(cfg.AppVersion, "SERVICE_VERSION"),
	}

	// Local runs read better in the console encoder.
	defaultFormat := "json"
	if isDevEnv(service.Environment) {
		defaultFormat = "console"
	}
	log := LogSettings{
		Level:  strings.ToLower(e.first("info", "LOG_LEVEL")),
		Format: strings.ToLower(e.first(defaultFormat, "LOG_FORMAT")),
		File:   strings.TrimSpace(cfg.LogFile),
	}
	if !logLevels[log.Level] {
		return Config{}, fmt.Errorf("observability: unknown LOG_LEVEL %q", log.Level)
	}

	enabled, err := e.boolean("OTEL_ENABLED", false)
	if err != nil {
		return Config{}, err
	}
	disabled, err := e.boolean("OTEL_SDK_DISABLED", false)
	if err != nil {
		return Config{}, err
	}
	enabled = enabled && !disabled

	protocol, err := normalizeProtocol(e.first(protocolGRPC, "OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "OTEL_EXPORTER_OTLP_PROTOCOL"))
	if err != nil {
		return Config{}, err
	}

	ratio, err := e.ratio(0.1, "OTEL_TRACES_SAMPLER_ARG", "OTEL_SAMPLING_RATIO")
	if err != nil {
		return Config{}, err
	}

	return Config{
		Service: service,
		Log:     log,
		Otel: OtelSettings{
			Enabled:       enabled,
			Endpoint:      e.first(cfg.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT"),
			Protocol:      protocol,
			SamplingRatio: ratio,
		},
	}, nil
}

// Debug enables verbose request logging and stack traces.
func (c Config) Debug() bool {
	return c.Log.Level == "debug" || isDevEnv(c.Service.Environment)
}

func (c Config) LoggerConfig() logger.Config {
	return logger.Config{
		ServiceName:         c.Service.Name,
		Environment:         c.Service.Environment,
		Version:             c.Service.Version,
		Level:               c.Log.Level,
		Format:              c.Log.Format,
		Debug:               c.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: c.Debug(),
		FilePath:            c.Log.File,
	}
}

func (c Config) TracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:          c.Otel.Enabled,
		ServiceName:      c.Service.Name,
		ServiceVersion:   c.Service.Version,
		Environment:      c.Service.Environment,
		ExporterEndpoint: c.Otel.Endpoint,
		ExporterProtocol: c.Otel.Protocol,
		SamplingRatio:    c.Otel.SamplingRatio,
	}
}

func (c Config) MetricsConfig() metrics.Config {
	return metrics.Config{
		Enabled:          c.Otel.Enabled,
		ExporterEndpoint: c.Otel.Endpoint,
		ExporterProtocol: c.Otel.Protocol,
		ServiceName:      c.Service.Name,
		Environment:      c.Service.Environment,
	}
}

func normalizeProtocol(raw string) (string, error) {
	switch p := strings.ToLower(strings.TrimSpace(raw)); p {
	case "", "grpc", "grpc/protobuf":
		return protocolGRPC, nil
	case "http", "http/protobuf":
		return protocolHTTP, nil
	default:
		return "", fmt.Errorf("observability: unsupported OTLP protocol %q", raw)
	}
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// env reads variables through a lookup so tests need not touch the process.
type env func(key string) (string, bool)

// first returns the first non-blank value among keys, else def.
func (e env) first(def string, keys ...string) string {
	for _, key := range keys {
		if v, ok := e(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return strings.TrimSpace(def)
}

func (e env) boolean(key string, def bool) (bool, error) {
	raw := e.first("", key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(raw) {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off":
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("observability: %s: %w", key, err)
	}
	return v, nil
}

func (e env) ratio(def float64, keys ...string) (float64, error) {
	for _, key := range keys {
		raw := e.first("", key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("observability: %s: %w", key, err)
		}
		if v < 0 || v > 1 {
			return 0, fmt.Errorf("observability: %s must be within [0, 1], got %v", key, v)
		}
		return v, nil
	}
	return def, nil
}
