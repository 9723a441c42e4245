// Package config loads the service configuration from flags, environment
// variables, an optional .env file and an optional YAML file.
//
// Precedence, highest first: explicitly set CLI flags, YOURFILES_*
// environment variables, the config file, defaults.
package config

import (
	"errors"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "YOURFILES"

// Backends.
const (
	BackendS3    = "s3"
	BackendMinio = "minio"
)

// Keys shared by viper, env vars (upper-cased, prefixed) and CLI flags.
const (
	KeyBackend         = "backend"
	KeyBucket          = "bucket"
	KeyRegion          = "region"
	KeyEndpoint        = "endpoint"
	KeyPathStyle       = "path_style"
	KeyRootPrefix      = "root_prefix"
	KeyBigDataPrefix   = "big_data_prefix"
	KeySharedPrefixes  = "shared_prefixes"
	KeyCredentialsURL  = "credentials_url"
	KeyAccessKey       = "access_key"
	KeySecretKey       = "secret_key"
	KeySessionToken    = "session_token"
	KeyCreateTableURL  = "create_table_url"
	KeyListenAddr      = "listen_addr"
	KeyDownloadExpiry  = "download_expiry"
	KeyDeleteRateLimit = "delete_rate_limit"
	KeyDeleteBurst     = "delete_burst"
	KeyLogLevel        = "log_level"
	KeyLogPretty       = "log_pretty"
	KeyCookieSecure    = "cookie_secure"
)

// Config is the validated service configuration. It is built once at
// start-up and never mutated.
type Config struct {
	Backend        string
	Bucket         string
	Region         string
	Endpoint       string
	ForcePathStyle bool

	RootPrefix     string
	BigDataPrefix  string
	SharedPrefixes []string
	CreateTableURL string

	// CredentialsURL serves short-lived credentials. When empty the static
	// AccessKey/SecretKey pair is used.
	CredentialsURL string
	AccessKey      string
	SecretKey      string
	SessionToken   string

	ListenAddr      string
	DownloadExpiry  time.Duration
	DeleteRateLimit float64
	DeleteBurst     int

	LogLevel     string
	LogPretty    bool
	CookieSecure bool
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config: " + e.Field + ": " + e.Message
}

// NewViper returns a viper instance with defaults and env binding applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyBackend, BackendS3)
	v.SetDefault(KeyBigDataPrefix, "big-data")
	v.SetDefault(KeyListenAddr, ":8080")
	v.SetDefault(KeyDownloadExpiry, 15*time.Minute)
	v.SetDefault(KeyDeleteBurst, 1)
	v.SetDefault(KeyLogLevel, "info")
	return v
}

// LoadDotEnv loads variables from path into the process environment.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ReadFile merges a YAML (or any viper-supported) config file into v.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	return v.ReadInConfig()
}

// FromViper builds and validates a Config.
//
// The big-data prefix is relative to the root prefix unless it starts with
// "/", in which case it is a full key prefix.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Backend:         strings.ToLower(strings.TrimSpace(v.GetString(KeyBackend))),
		Bucket:          v.GetString(KeyBucket),
		Region:          v.GetString(KeyRegion),
		Endpoint:        v.GetString(KeyEndpoint),
		ForcePathStyle:  v.GetBool(KeyPathStyle),
		RootPrefix:      v.GetString(KeyRootPrefix),
		SharedPrefixes:  stringList(v, KeySharedPrefixes),
		CreateTableURL:  v.GetString(KeyCreateTableURL),
		CredentialsURL:  v.GetString(KeyCredentialsURL),
		AccessKey:       v.GetString(KeyAccessKey),
		SecretKey:       v.GetString(KeySecretKey),
		SessionToken:    v.GetString(KeySessionToken),
		ListenAddr:      v.GetString(KeyListenAddr),
		DownloadExpiry:  v.GetDuration(KeyDownloadExpiry),
		DeleteRateLimit: v.GetFloat64(KeyDeleteRateLimit),
		DeleteBurst:     v.GetInt(KeyDeleteBurst),
		LogLevel:        v.GetString(KeyLogLevel),
		LogPretty:       v.GetBool(KeyLogPretty),
		CookieSecure:    v.GetBool(KeyCookieSecure),
	}

	bigData := v.GetString(KeyBigDataPrefix)
	switch {
	case bigData == "":
	case strings.HasPrefix(bigData, "/"):
		cfg.BigDataPrefix = strings.TrimLeft(bigData, "/")
	default:
		cfg.BigDataPrefix = joinPrefix(cfg.RootPrefix, bigData)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	if c.Backend != BackendS3 && c.Backend != BackendMinio {
		return &ConfigError{Field: KeyBackend, Message: `must be "s3" or "minio"`}
	}
	if c.Bucket == "" {
		return &ConfigError{Field: KeyBucket, Message: "bucket name is required"}
	}
	if c.Backend == BackendMinio && c.Endpoint == "" {
		return &ConfigError{Field: KeyEndpoint, Message: "endpoint is required for the minio backend"}
	}
	if c.BigDataPrefix == "" {
		return &ConfigError{Field: KeyBigDataPrefix, Message: "big-data prefix is required"}
	}
	if c.CredentialsURL != "" {
		if err := checkURL(c.CredentialsURL); err != nil {
			return &ConfigError{Field: KeyCredentialsURL, Message: err.Error()}
		}
	} else if c.AccessKey == "" || c.SecretKey == "" {
		if c.Backend == BackendMinio || c.AccessKey != "" || c.SecretKey != "" {
			return &ConfigError{
				Field:   KeyAccessKey + "/" + KeySecretKey,
				Message: "both access key and secret key must be provided when no credentials URL is set",
			}
		}
	}
	if c.CreateTableURL != "" {
		if err := checkURL(c.CreateTableURL); err != nil {
			return &ConfigError{Field: KeyCreateTableURL, Message: err.Error()}
		}
	}
	if c.DownloadExpiry <= 0 || c.DownloadExpiry > 7*24*time.Hour {
		return &ConfigError{Field: KeyDownloadExpiry, Message: "must be between 1s and 7 days"}
	}
	if c.DeleteRateLimit < 0 {
		return &ConfigError{Field: KeyDeleteRateLimit, Message: "must not be negative"}
	}
	return nil
}

// UsesStaticCredentials reports whether requests are signed with a fixed key
// pair rather than credentials from CredentialsURL.
func (c *Config) UsesStaticCredentials() bool {
	return c.CredentialsURL == "" && c.AccessKey != ""
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must be an http or https URL")
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

// stringList reads a list that may come from YAML or a comma separated env var.
func stringList(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func joinPrefix(root, child string) string {
	root = strings.Trim(root, "/")
	child = strings.Trim(child, "/")
	if root == "" {
		return child + "/"
	}
	return root + "/" + child + "/"
}
