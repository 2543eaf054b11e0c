package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rowjay/s3backup/internal/cryptoutil"
)

const (
	envPrefix = "S3BACKUP"
	// KeyEnv names the variable holding the key of an encrypted config file.
	KeyEnv = "S3BACKUP_CONFIG_KEY"
)

var candidates = []string{
	"s3backup.yaml",
	"s3backup.yml",
	"s3backup.toml",
	"s3backup.json",
}

// Load reads configuration from a file (optionally encrypted), env vars, and
// defaults, then validates it.
func Load(path string) (*Config, error) {
	vp := viper.New()
	vp.SetEnvPrefix(envPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}
	if resolved == "" {
		return nil, errors.New("no config file found; pass --config or set S3BACKUP_CONFIG")
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if isEncryptedPath(resolved) {
		key, source := os.Getenv(KeyEnv), KeyEnv
		if key == "" {
			key, source = vp.GetString("global.config_passphrase"), "global.config_passphrase"
		}
		if key == "" {
			return nil, fmt.Errorf("config file is encrypted but %s is not set", KeyEnv)
		}
		data, err = cryptoutil.DecryptConfig(data, key)
		if err != nil {
			return nil, fmt.Errorf("decrypt config with key from %s: %w", source, err)
		}
	}
	vp.SetConfigType(configTypeFromPath(resolved))
	if err := vp.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	expandEnv(&cfg)
	applyPostLoadDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return path, nil
	}
	if envPath := os.Getenv("S3BACKUP_CONFIG"); envPath != "" {
		return envPath, nil
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	configDir, err := os.UserConfigDir()
	if err == nil {
		base := filepath.Join(configDir, "s3backup")
		for _, c := range candidates {
			for _, p := range []string{filepath.Join(base, c), filepath.Join(base, c+".enc")} {
				if _, err := os.Stat(p); err == nil {
					return p, nil
				}
			}
		}
	}

	return "", nil
}

func isEncryptedPath(path string) bool {
	return strings.HasSuffix(path, ".enc") || strings.HasSuffix(path, ".encrypted")
}

func configTypeFromPath(path string) string {
	path = strings.TrimSuffix(strings.TrimSuffix(path, ".enc"), ".encrypted")
	switch filepath.Ext(path) {
	case ".toml":
		return "toml"
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}

func setDefaults(vp *viper.Viper) {
	vp.SetDefault("global.log_level", "info")
	vp.SetDefault("global.log_format", "json")
	vp.SetDefault("global.log_max_size_mb", 50)
	vp.SetDefault("global.log_max_backups", 5)
	vp.SetDefault("global.log_max_age_days", 30)
	vp.SetDefault("global.operation_timeout", "12h")
	vp.SetDefault("global.command_timeout", "0s")
	vp.SetDefault("global.verify_artifacts", true)
	vp.SetDefault("remote.driver", "minio")
	vp.SetDefault("remote.path_style", "path")
	vp.SetDefault("remote.use_ssl", true)
	vp.SetDefault("backup.upload_retries", 3)
	vp.SetDefault("backup.retry_backoff", "10s")
}

func applyPostLoadDefaults(cfg *Config) {
	cfg.Remote.Driver = strings.ToLower(cfg.Remote.Driver)
	cfg.Remote.PathStyle = strings.ToLower(cfg.Remote.PathStyle)
	if cfg.Backup.RetryBackoff == 0 {
		cfg.Backup.RetryBackoff = 10 * time.Second
	}
	if cfg.Global.OperationTimeout == 0 {
		cfg.Global.OperationTimeout = 12 * time.Hour
	}
	if cfg.Global.LockFile == "" && cfg.BackupDir != "" {
		cfg.Global.LockFile = filepath.Join(cfg.BackupDir, ".s3backup.lock")
	}
	for i := range cfg.ElementConfigs {
		cfg.ElementConfigs[i].Target.Type = strings.ToLower(cfg.ElementConfigs[i].Target.Type)
		cfg.ElementConfigs[i].RemoteFolder = strings.Trim(cfg.ElementConfigs[i].RemoteFolder, "/")
	}
}

// envRef matches ${NAME}. Bare $NAME is left alone so secrets containing "$"
// survive loading unchanged.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}

func expandEnv(cfg *Config) {
	cfg.BackupDir = expandVars(cfg.BackupDir)
	cfg.Remote.AccessKey = expandVars(cfg.Remote.AccessKey)
	cfg.Remote.SecretKey = expandVars(cfg.Remote.SecretKey)
	cfg.Remote.SessionToken = expandVars(cfg.Remote.SessionToken)
	for i := range cfg.ElementConfigs {
		t := &cfg.ElementConfigs[i].Target
		t.User = expandVars(t.User)
		t.Password = expandVars(t.Password)
		t.Path = expandVars(t.Path)
	}
	cfg.Notifications = expandNotificationEnv(cfg.Notifications)
}

func expandNotificationEnv(cfg NotificationsConfig) NotificationsConfig {
	for i := range cfg.Webhooks {
		cfg.Webhooks[i].URL = expandVars(cfg.Webhooks[i].URL)
	}
	for i := range cfg.Mattermost {
		cfg.Mattermost[i].URL = expandVars(cfg.Mattermost[i].URL)
	}
	for i := range cfg.Matrix {
		cfg.Matrix[i].ServerURL = expandVars(cfg.Matrix[i].ServerURL)
		cfg.Matrix[i].AccessToken = expandVars(cfg.Matrix[i].AccessToken)
		cfg.Matrix[i].RoomID = expandVars(cfg.Matrix[i].RoomID)
	}
	return cfg
}
