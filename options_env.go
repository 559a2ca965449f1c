package godi

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment keys read by OptionsFromEnv.
const (
	EnvEmptyServices     = "GODI_EMPTY_SERVICES"     // fail | allow
	EnvValidateLifetimes = "GODI_VALIDATE_LIFETIMES" // bool
	EnvValidateGraph     = "GODI_VALIDATE_GRAPH"     // bool
	EnvTrackTransients   = "GODI_TRACK_TRANSIENTS"   // bool
	EnvDisposeTimeout    = "GODI_DISPOSE_TIMEOUT"    // duration, e.g. 5s
	EnvLogLevel          = "GODI_LOG_LEVEL"          // debug | info | warn | error
)

// OptionsFromEnv builds registry options from GODI_* variables. The given
// .env files are read first and the process environment overrides them.
// Files that do not exist are skipped. Unset keys keep their defaults.
//
// Example:
//
//	opts, err := godi.OptionsFromEnv(".env")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	reg, err := collection.Build(opts...)
func OptionsFromEnv(files ...string) ([]Option, error) {
	values := make(map[string]string)

	for _, file := range files {
		read, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", file, err)
		}

		for k, v := range read {
			values[k] = v
		}
	}

	for _, key := range []string{EnvEmptyServices, EnvValidateLifetimes, EnvValidateGraph, EnvTrackTransients, EnvDisposeTimeout, EnvLogLevel} {
		if v, ok := os.LookupEnv(key); ok {
			values[key] = v
		}
	}

	return optionsFromValues(values)
}

func optionsFromValues(values map[string]string) ([]Option, error) {
	var opts []Option

	if v := strings.TrimSpace(values[EnvEmptyServices]); v != "" {
		switch strings.ToLower(v) {
		case "fail":
			opts = append(opts, WithEmptyServicesPolicy(FailOnEmpty))
		case "allow":
			opts = append(opts, WithEmptyServicesPolicy(AllowEmpty))
		default:
			return nil, fmt.Errorf("%s: unknown policy %q", EnvEmptyServices, v)
		}
	}

	if v := strings.TrimSpace(values[EnvValidateLifetimes]); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvValidateLifetimes, err)
		}
		opts = append(opts, WithLifetimeValidation(b))
	}

	if v := strings.TrimSpace(values[EnvValidateGraph]); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvValidateGraph, err)
		}
		opts = append(opts, WithDependencyValidation(b))
	}

	if v := strings.TrimSpace(values[EnvTrackTransients]); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvTrackTransients, err)
		}
		opts = append(opts, WithTransientTracking(b))
	}

	if v := strings.TrimSpace(values[EnvDisposeTimeout]); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvDisposeTimeout, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("%s: negative duration %s", EnvDisposeTimeout, d)
		}
		opts = append(opts, WithDisposeTimeout(d))
	}

	if v := strings.TrimSpace(values[EnvLogLevel]); v != "" {
		level, err := zapcore.ParseLevel(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvLogLevel, err)
		}

		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)

		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvLogLevel, err)
		}
		opts = append(opts, WithLogger(logger))
	}

	return opts, nil
}
