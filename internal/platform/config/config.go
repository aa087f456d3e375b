// Package config resolves server configuration from defaults, an optional
// TOML file, LABELCHECK_* environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string
}

// Database configures the optional durable store.
type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Redis configures the optional pub/sub notification relay.
type Redis struct {
	URL          string
	Channel      string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the optional notification topic relay.
type Kafka struct {
	Brokers    []string
	Topic      string
	Partitions int
	Replicas   int
}

// Auth configures actor token validation.
type Auth struct {
	JWTSigningKey string
	Disabled      bool
}

// Batch configures the batch pipeline and its upload surface.
type Batch struct {
	Workers         int
	MaxAttempts     int
	MaxItems        int
	RetryInitial    time.Duration
	RetryMax        time.Duration
	StagingDir      string
	UploadDir       string
	ImageDir        string
	MaxUploadBytes  int64
	MaxArchiveFiles int
	MaxArchiveBytes int64
}

// Config is the fully resolved server configuration.
type Config struct {
	Server          Server
	Database        Database
	Redis           Redis
	Kafka           Kafka
	Auth            Auth
	Batch           Batch
	LockTimeout     time.Duration
	SSEHeartbeat    time.Duration
	NotifyBuffer    int
	BreakerFailures int
	BreakerCooldown time.Duration
}

// Default returns a Config suitable for local development: in-memory
// storage, no relays and authentication through signed tokens.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
			LogLevel:        "info",
			LogFormat:       "json",
		},
		Database: Database{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: Redis{
			Channel:      "labelcheck:notifications",
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{
			Topic:      "labelcheck.notifications",
			Partitions: 3,
			Replicas:   1,
		},
		Auth: Auth{
			JWTSigningKey: "dev-secret-key-change-in-production",
		},
		Batch: Batch{
			Workers:         4,
			MaxAttempts:     3,
			MaxItems:        500,
			RetryInitial:    200 * time.Millisecond,
			RetryMax:        5 * time.Second,
			MaxUploadBytes:  256 << 20,
			MaxArchiveFiles: 5000,
			MaxArchiveBytes: 2 << 30,
		},
		LockTimeout:     10 * time.Second,
		SSEHeartbeat:    15 * time.Second,
		NotifyBuffer:    256,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// Validate checks the configuration for errors and fills derived defaults.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	switch strings.ToLower(c.Server.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log format %q must be json or text", c.Server.LogFormat))
	}
	if !c.Auth.Disabled && c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("jwt signing key is required unless auth is disabled"))
	}
	if c.Batch.Workers <= 0 {
		errs = append(errs, errors.New("batch workers must be positive"))
	}
	if c.Batch.MaxAttempts <= 0 || c.Batch.MaxAttempts > 3 {
		errs = append(errs, errors.New("batch max attempts must be between 1 and 3"))
	}
	if c.Batch.MaxItems <= 0 || c.Batch.MaxItems > 500 {
		errs = append(errs, errors.New("batch max items must be between 1 and 500"))
	}
	if c.Batch.RetryMax < c.Batch.RetryInitial {
		errs = append(errs, errors.New("batch retry max must not be below retry initial"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka topic is required when brokers are set"))
	}
	if c.LockTimeout <= 0 {
		errs = append(errs, errors.New("lock timeout must be positive"))
	}

	root := filepath.Join(os.TempDir(), "labelcheck")
	if c.Batch.StagingDir == "" {
		c.Batch.StagingDir = filepath.Join(root, "staging")
	}
	if c.Batch.UploadDir == "" {
		c.Batch.UploadDir = filepath.Join(root, "uploads")
	}
	if c.Batch.ImageDir == "" {
		c.Batch.ImageDir = filepath.Join(root, "images")
	}
	return errors.Join(errs...)
}

// RedactedURL masks credentials embedded in a connection URL for logging.
func RedactedURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return raw
	}
	user, _, _ := strings.Cut(creds, ":")
	return scheme + "://" + user + ":*****@" + host
}
