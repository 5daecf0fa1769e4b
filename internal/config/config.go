package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/marianozunino/bucket/internal/model"
	"github.com/marianozunino/bucket/internal/policy"
)

// Config represents the application configuration. Extension lists are
// space-separated, the same shape admins type into the settings form.
type Config struct {
	Port       int    `mapstructure:"port"`
	BaseURL    string `mapstructure:"base_url"`
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	LogLevel   string `mapstructure:"log_level"`
	AuthSecret string `mapstructure:"auth_secret"`

	TTLHours             int    `mapstructure:"ttl_hours"`
	DeleteOnDownload     bool   `mapstructure:"delete_on_download"`
	SweepIntervalMinutes int    `mapstructure:"sweep_interval_min"`
	UseBlocklist         bool   `mapstructure:"use_blocklist"`
	AllowedExtensions    string `mapstructure:"allowed_extensions"`
	BlockedExtensions    string `mapstructure:"blocked_extensions"`
	PermissiveExtensions string `mapstructure:"permissive_extensions"`

	MaxFileSizeMB int    `mapstructure:"max_filesize_mb"`
	ListPageLimit int    `mapstructure:"list_page_limit"`
	Description   string `mapstructure:"description"`

	RedisAddr       string `mapstructure:"redis_addr"`
	RedisPassword   string `mapstructure:"redis_password"`
	RedisDB         int    `mapstructure:"redis_db"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_sec"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("base_url", "http://localhost:8080/")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("sqlite_path", "./data/bucket.db")
	v.SetDefault("log_level", "info")

	v.SetDefault("ttl_hours", 48)
	v.SetDefault("delete_on_download", false)
	v.SetDefault("sweep_interval_min", 60)
	v.SetDefault("use_blocklist", false)

	v.SetDefault("max_filesize_mb", 20)
	v.SetDefault("list_page_limit", 500)
	v.SetDefault("description",
		"Files are kept for [ttl_hours] hours. Deleted after first download: [delete_on_download].")

	v.SetDefault("cache_ttl_sec", 30)
}

// Load reads the configuration from an optional file plus BUCKET_*
// environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BUCKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only surfaces keys viper already knows about. Keys
	// without a default must be bound explicitly or their env overrides
	// vanish.
	for _, key := range []string{
		"auth_secret",
		"allowed_extensions",
		"blocked_extensions",
		"permissive_extensions",
		"redis_addr",
		"redis_password",
		"redis_db",
	} {
		v.MustBindEnv(key)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("bucket")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the invariants the lifecycle engine relies on.
func (c *Config) Validate() error {
	if c.TTLHours <= 0 {
		return fmt.Errorf("ttl_hours must be greater than 0")
	}
	if c.SweepIntervalMinutes <= 0 {
		return fmt.Errorf("sweep_interval_min must be greater than 0")
	}
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("max_filesize_mb must be greater than 0")
	}
	if c.ListPageLimit <= 0 {
		return fmt.Errorf("list_page_limit must be greater than 0")
	}
	return nil
}

// ExtensionPolicy returns the immutable policy snapshot for one upload
// evaluation.
func (c *Config) ExtensionPolicy() policy.ExtensionPolicy {
	if c.UseBlocklist {
		return policy.ExtensionPolicy{
			Mode:       policy.Blocklist,
			Blocked:    policy.ParseList(c.BlockedExtensions),
			Permissive: policy.ParseList(c.PermissiveExtensions),
		}
	}
	return policy.ExtensionPolicy{
		Mode:    policy.Allowlist,
		Allowed: policy.ParseList(c.AllowedExtensions),
	}
}

// ExpiryPolicy returns the immutable policy snapshot for one sweep.
func (c *Config) ExpiryPolicy() model.ExpiryPolicy {
	return model.ExpiryPolicy{
		TTLHours:         c.TTLHours,
		DeleteOnDownload: c.DeleteOnDownload,
	}
}

// MaxFileSizeBytes converts the per-file limit.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// ExpandDescription substitutes the [ttl_hours] and [delete_on_download]
// tokens admins may use in the description text.
func (c *Config) ExpandDescription() string {
	onDownload := "No"
	if c.DeleteOnDownload {
		onDownload = "Immediate"
	}
	return strings.NewReplacer(
		"[ttl_hours]", fmt.Sprintf("%d", c.TTLHours),
		"[delete_on_download]", onDownload,
	).Replace(c.Description)
}
