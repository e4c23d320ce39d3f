package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"main.secretkey", "SECRET_KEY", nil},
		{"main.debug", "BRAINTUMOR_DEBUG", validateEnvBool},
		{"main.profile", "BRAINTUMOR_PROFILE", validateEnvProfile},

		{"database.url", "DATABASE_URL", validateEnvDatabaseURL},

		{"upload.dir", "UPLOAD_FOLDER", nil},
		{"upload.maxsize", "MAX_CONTENT_LENGTH", validateEnvPositiveInt},

		{"model.path", "MODEL_PATH", nil},
		{"model.threads", "MODEL_THREADS", validateEnvNonNegativeInt},
		{"model.onnxlib", "ONNXRUNTIME_LIB", nil},

		{"webserver.port", "PORT", validateEnvPort},

		{"sentry.dsn", "SENTRY_DSN", nil},
	}
}

// bindEnvVars binds each variable and validates any value already set.
// Problems are collected and returned together; they never stop startup.
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value: %v", binding.EnvVar, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvPrefix("BRAINTUMOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	return bindEnvVars()
}

// loadDotEnv loads variables from a .env file without overriding the real environment.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvProfile(value string) error {
	switch value {
	case ProfileDevelopment, ProfileProduction, ProfileTesting:
		return nil
	}
	return fmt.Errorf("must be one of %s, %s, %s", ProfileDevelopment, ProfileProduction, ProfileTesting)
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fmt.Errorf("must be zero or a positive integer")
	}
	return nil
}

func validateEnvPort(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("must be a port number between 1 and 65535")
	}
	return nil
}

func validateEnvDatabaseURL(value string) error {
	return validateDatabaseURL(value)
}

// validateDatabaseURL accepts sqlite:// and mysql:// URLs.
func validateDatabaseURL(value string) error {
	switch {
	case strings.HasPrefix(value, "sqlite://"):
		if strings.TrimPrefix(value, "sqlite://") == "" {
			return fmt.Errorf("sqlite URL needs a path or :memory:")
		}
		return nil
	case strings.HasPrefix(value, "mysql://"):
		u, err := url.Parse(value)
		if err != nil {
			return fmt.Errorf("malformed database URL")
		}
		if u.Host == "" || strings.Trim(u.Path, "/") == "" {
			return fmt.Errorf("mysql URL needs host and database name")
		}
		return nil
	default:
		return fmt.Errorf("unsupported database URL, expected sqlite:// or mysql://")
	}
}
