package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix      = "ROOMRELAY"
	envConfigDir   = "ROOMRELAY_CONFIG_DIR"
	configFileName = "config.yaml"
)

// Load resolves the configuration and the file it came from.
// Later sources win: built-in defaults, the YAML file, ROOMRELAY_* variables.
// A missing file is created from the defaults so operators have something to edit.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()
	path := configPath(explicitPath)

	v := newViper(cfg)
	v.SetConfigFile(path)
	if err := readOrCreate(v, path, cfg, logger); err != nil {
		return cfg, path, err
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, path, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, path, fmt.Errorf("validate config: %w", err)
	}
	return cfg, path, nil
}

// newViper registers every key with its default; AutomaticEnv only
// binds keys viper already knows about.
func newViper(cfg Config) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults := map[string]any{
		"addr":                 cfg.Addr,
		"read_header_timeout":  cfg.ReadHeaderTimeout,
		"shutdown_timeout":     cfg.ShutdownTimeout,
		"log_level":            cfg.LogLevel,
		"log_format":           cfg.LogFormat,
		"default_room":         cfg.DefaultRoom,
		"outbox_limit":         cfg.OutboxLimit,
		"outbox_overflow":      cfg.OutboxOverflow,
		"rename_policy":        cfg.RenamePolicy,
		"max_message_bytes":    cfg.MaxMessageBytes,
		"insecure_skip_verify": cfg.InsecureSkipVerify,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func readOrCreate(v *viper.Viper, path string, cfg Config, logger *zerolog.Logger) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	if err := saveConfig(path, cfg); err != nil {
		// Defaults and env still apply without a file.
		if logger != nil {
			logger.Warn().Err(err).Str("path", path).Msg("cannot write default config")
		}
		return nil
	}
	if logger != nil {
		logger.Info().Str("path", path).Msg("wrote default config")
	}
	if err := v.ReadInConfig(); err != nil && logger != nil {
		logger.Warn().Err(err).Str("path", path).Msg("cannot read freshly written config")
	}
	return nil
}

// configPath picks the explicit path, then $ROOMRELAY_CONFIG_DIR, then the working directory.
func configPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if dir := os.Getenv(envConfigDir); dir != "" {
		return filepath.Join(dir, configFileName)
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, configFileName)
	}
	return configFileName
}

func saveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
