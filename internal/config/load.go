package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config.yaml in the working directory. Absence is fine;
	// everything can come from the environment.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables with TASKHIVE_ prefix override everything,
	// e.g. TASKHIVE_DATABASE_URL maps to database.url.
	v.SetEnvPrefix("TASKHIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("directory.user_target", "user.rpc")
	v.SetDefault("directory.request_timeout", "5s")
}

// bindEnvKeys makes AutomaticEnv see keys that have no default and do not
// appear in a config file. Viper only consults the environment for keys it
// already knows about.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"database.url",
		"auth.jwt_secret",
	} {
		// BindEnv with one argument only errors on an empty key.
		_ = v.BindEnv(key)
	}
}
