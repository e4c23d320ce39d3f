package conf

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct and reports every problem at once.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateMainSettings,
		validateDatabaseSettings,
		validateUploadSettings,
		validateModelSettings,
		validateWebServerSettings,
		validateSentrySettings,
		validateMQTTSettings,
	}

	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateMainSettings(s *Settings) error {
	switch s.Main.Profile {
	case ProfileDevelopment, ProfileProduction, ProfileTesting:
		return nil
	}
	return fmt.Errorf("main.profile must be %s, %s or %s, got %q",
		ProfileDevelopment, ProfileProduction, ProfileTesting, s.Main.Profile)
}

func validateDatabaseSettings(s *Settings) error {
	if err := validateDatabaseURL(s.Database.URL); err != nil {
		return fmt.Errorf("database.url: %w", err)
	}
	if s.Database.MaxOpenConns < 0 || s.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database connection pool sizes must not be negative")
	}
	return nil
}

func validateUploadSettings(s *Settings) error {
	var problems []string

	if strings.TrimSpace(s.Upload.Dir) == "" {
		problems = append(problems, "upload.dir must be set")
	}
	if s.Upload.MaxSize <= 0 {
		problems = append(problems, "upload.maxsize must be positive")
	}
	if len(s.Upload.AllowedExtensions) == 0 {
		problems = append(problems, "upload.allowedextensions must not be empty")
	}
	for _, ext := range s.Upload.AllowedExtensions {
		if ext == "" || strings.ContainsAny(ext, "./\\") {
			problems = append(problems, fmt.Sprintf("upload.allowedextensions contains invalid entry %q", ext))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func validateModelSettings(s *Settings) error {
	var problems []string

	if s.Model.ImageSize <= 0 || s.Model.ImageSize > 4096 {
		problems = append(problems, "model.imagesize must be between 1 and 4096")
	}
	if len(s.Model.Classes) < 2 {
		problems = append(problems, "model.classes needs at least two labels")
	}
	if s.Model.Threads < 0 {
		problems = append(problems, "model.threads must not be negative")
	}
	if !slices.Contains([]string{"auto", "probabilities", "logits"}, s.Model.Outputs) {
		problems = append(problems, fmt.Sprintf("model.outputs must be auto, probabilities or logits, got %q", s.Model.Outputs))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func validateWebServerSettings(s *Settings) error {
	if s.WebServer.Listen == "" && s.WebServer.Port == 0 {
		return fmt.Errorf("webserver.listen or webserver.port must be set")
	}
	if s.WebServer.Port < 0 || s.WebServer.Port > 65535 {
		return fmt.Errorf("webserver.port must be between 1 and 65535")
	}
	if s.WebServer.AutoTLS && s.WebServer.Host == "" {
		return fmt.Errorf("webserver.host is required when webserver.autotls is enabled")
	}
	if s.WebServer.RateLimit < 0 {
		return fmt.Errorf("webserver.ratelimit must not be negative")
	}
	for _, proxy := range s.WebServer.TrustedProxies {
		if _, _, err := net.ParseCIDR(proxy); err != nil && net.ParseIP(proxy) == nil {
			return fmt.Errorf("webserver.trustedproxies entry %q is not an IP address or CIDR range", proxy)
		}
	}
	return nil
}

func validateSentrySettings(s *Settings) error {
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		return fmt.Errorf("sentry.dsn is required when sentry is enabled")
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	if !s.MQTT.Enabled {
		return nil
	}
	if s.MQTT.Broker == "" || s.MQTT.Topic == "" {
		return fmt.Errorf("mqtt.broker and mqtt.topic are required when mqtt is enabled")
	}
	return nil
}
