package config

import "time"

// Config is the root configuration schema.
type Config struct {
	Global         GlobalConfig        `mapstructure:"global"`
	Remote         RemoteConfig        `mapstructure:"remote"`
	BackupDir      string              `mapstructure:"backup_dir" validate:"required"`
	Backup         BackupConfig        `mapstructure:"backup"`
	ElementConfigs []ElementConfig     `mapstructure:"elements" validate:"required,min=1,unique=Title,dive"`
	Schedule       ScheduleConfig      `mapstructure:"schedule"`
	Metrics        MetricsConfig       `mapstructure:"metrics"`
	Notifications  NotificationsConfig `mapstructure:"notifications"`
}

type GlobalConfig struct {
	LogLevel         string        `mapstructure:"log_level"`
	LogFormat        string        `mapstructure:"log_format" validate:"omitempty,oneof=json console"`
	LogFile          string        `mapstructure:"log_file"`
	LogMaxSizeMB     int           `mapstructure:"log_max_size_mb" validate:"gte=0"`
	LogMaxBackups    int           `mapstructure:"log_max_backups" validate:"gte=0"`
	LogMaxAgeDays    int           `mapstructure:"log_max_age_days" validate:"gte=0"`
	LockFile         string        `mapstructure:"lock_file"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	// CommandTimeout bounds each external command; zero means no bound.
	CommandTimeout   time.Duration `mapstructure:"command_timeout"`
	VerifyArtifacts  bool          `mapstructure:"verify_artifacts"`
	ConfigPassphrase string        `mapstructure:"config_passphrase"`
}

// RemoteConfig selects and configures the object store driver.
type RemoteConfig struct {
	Driver          string `mapstructure:"driver" validate:"oneof=minio aws filesystem"`
	Endpoint        string `mapstructure:"endpoint" validate:"required_if=Driver minio"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket" validate:"required_unless=Driver filesystem"`
	AccessKey       string `mapstructure:"access_key"`
	SecretKey       string `mapstructure:"secret_key"`
	SessionToken    string `mapstructure:"session_token"`
	PathStyle       string `mapstructure:"path_style" validate:"oneof=path virtual-host"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	TLSInsecureSkip bool   `mapstructure:"tls_insecure_skip"`
	// LocalPath is the root directory of the filesystem driver.
	LocalPath string `mapstructure:"local_path" validate:"required_if=Driver filesystem"`
}

type BackupConfig struct {
	UploadRetries int           `mapstructure:"upload_retries" validate:"gte=0"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

type ElementConfig struct {
	Title               string       `mapstructure:"title" validate:"required,pathcomponent"`
	RemoteFolder        string       `mapstructure:"remote_folder" validate:"required"`
	LocalRetentionDays  int          `mapstructure:"local_retention_days" validate:"gte=0"`
	RemoteRetentionDays int          `mapstructure:"remote_retention_days" validate:"gte=0"`
	Target              TargetConfig `mapstructure:"target"`
}

// TargetConfig is the flat on-disk form of a backup target. Which fields are
// required depends on Type; see validateTarget.
type TargetConfig struct {
	Type      string `mapstructure:"type" validate:"omitempty,oneof=postgresql postgresql_docker mysql mysql_docker mongodb mongodb_docker folder"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	DBName    string `mapstructure:"db_name"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	Container string `mapstructure:"container"`
	Path      string `mapstructure:"path"`
}

type ScheduleConfig struct {
	Cron     string `mapstructure:"cron"`
	Timezone string `mapstructure:"timezone"`
}

type MetricsConfig struct {
	// Textfile is written in the node_exporter textfile collector format.
	Textfile string `mapstructure:"textfile"`
}

type NotificationsConfig struct {
	Webhooks   []WebhookConfig  `mapstructure:"webhooks" validate:"dive"`
	Mattermost []MattermostHook `mapstructure:"mattermost" validate:"dive"`
	Matrix     []MatrixConfig   `mapstructure:"matrix" validate:"dive"`
}

type WebhookConfig struct {
	Name    string            `mapstructure:"name"`
	URL     string            `mapstructure:"url" validate:"required,url"`
	Headers map[string]string `mapstructure:"headers"`
}

type MattermostHook struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url" validate:"required,url"`
}

type MatrixConfig struct {
	Name        string `mapstructure:"name"`
	ServerURL   string `mapstructure:"server_url" validate:"required,url"`
	AccessToken string `mapstructure:"access_token" validate:"required"`
	RoomID      string `mapstructure:"room_id" validate:"required"`
}
