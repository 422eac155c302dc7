package filestore

import (
	"fmt"
	"os"
	"time"

	"github.com/koustreak/objectfs/internal/errs"
	"go.yaml.in/yaml/v3"
)

// Provider identifies the object storage backend.
type Provider string

const (
	ProviderMinIO  Provider = "minio"
	ProviderS3     Provider = "s3"
	ProviderMemory Provider = "memory"
)

const (
	DefaultTimeout        = 3600 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// Config holds all settings needed to connect to an object storage backend.
type Config struct {
	// Provider is the storage backend (e.g. ProviderMinIO).
	Provider Provider `yaml:"provider"`

	// Endpoint is the host:port (MinIO) or URL (S3-compatible) of the server.
	// Example: "localhost:9000" for local MinIO. Empty means AWS for ProviderS3.
	Endpoint string `yaml:"endpoint"`

	// AccessKey is the access key ID.
	AccessKey string `yaml:"access_key"`

	// SecretKey is the secret access key.
	SecretKey string `yaml:"secret_key"`

	// SessionToken is an optional STS token for temporary credentials.
	SessionToken string `yaml:"session_token"`

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool `yaml:"use_ssl"`

	// Region is used by region-aware backends (e.g. AWS S3).
	Region string `yaml:"region"`

	// Bucket is the bucket every filesystem operation targets.
	Bucket string `yaml:"bucket"`

	// CNAME means Endpoint is a custom domain already bound to Bucket,
	// so requests use virtual-host style addressing.
	CNAME bool `yaml:"cname"`

	// ForcePathStyle addresses buckets as endpoint/bucket/key.
	ForcePathStyle bool `yaml:"force_path_style"`

	// Timeout bounds a single request/response exchange.
	Timeout time.Duration `yaml:"timeout"`

	// ConnectTimeout bounds establishing a TCP connection.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// DefaultConfig returns a sensible local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:       ProviderMinIO,
		Endpoint:       endpoint,
		AccessKey:      accessKey,
		SecretKey:      secretKey,
		UseSSL:         false,
		Timeout:        DefaultTimeout,
		ConnectTimeout: DefaultConnectTimeout,
	}
}

// LoadConfig reads a YAML config file. ${VAR} references are expanded from
// the environment before parsing, so credentials need not live in the file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read config", err).WithPath(path)
	}
	return ParseConfig(raw)
}

// ParseConfig decodes YAML config bytes and applies defaults.
func ParseConfig(raw []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to parse config", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderMinIO
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
}

// Validate checks that the config names a known provider and a bucket.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errs.New(errs.ErrKindInvalidInput, "bucket is required")
	}
	switch c.Provider {
	case ProviderMinIO:
		if c.Endpoint == "" {
			return errs.New(errs.ErrKindInvalidInput, "endpoint is required for minio")
		}
	case ProviderS3, ProviderMemory:
	default:
		return errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown provider %q", c.Provider))
	}
	return nil
}
