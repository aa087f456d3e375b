package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// File mirrors Config with TOML friendly types: durations are strings and
// booleans are pointers so an absent key leaves the default in place.
type File struct {
	Addr            string   `toml:"addr"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`
	LogLevel        string   `toml:"log_level"`
	LogFormat       string   `toml:"log_format"`
	LockTimeout     string   `toml:"lock_timeout"`
	SSEHeartbeat    string   `toml:"sse_heartbeat"`
	NotifyBuffer    int      `toml:"notify_buffer"`
	BreakerFailures int      `toml:"breaker_failures"`
	BreakerCooldown string   `toml:"breaker_cooldown"`
	Database        FileDB   `toml:"database"`
	Redis           FileKV   `toml:"redis"`
	Kafka           FileMQ   `toml:"kafka"`
	Auth            FileAuth `toml:"auth"`
	Batch           FileJob  `toml:"batch"`
}

type FileDB struct {
	URL             string `toml:"url"`
	MaxOpenConns    int    `toml:"max_open_conns"`
	MaxIdleConns    int    `toml:"max_idle_conns"`
	ConnMaxLifetime string `toml:"conn_max_lifetime"`
}

type FileKV struct {
	URL     string `toml:"url"`
	Channel string `toml:"channel"`
}

type FileMQ struct {
	Brokers    []string `toml:"brokers"`
	Topic      string   `toml:"topic"`
	Partitions int      `toml:"partitions"`
	Replicas   int      `toml:"replicas"`
}

type FileAuth struct {
	JWTSigningKey string `toml:"jwt_signing_key"`
	Disabled      *bool  `toml:"disabled"`
}

type FileJob struct {
	Workers         int    `toml:"workers"`
	MaxAttempts     int    `toml:"max_attempts"`
	MaxItems        int    `toml:"max_items"`
	RetryInitial    string `toml:"retry_initial"`
	RetryMax        string `toml:"retry_max"`
	StagingDir      string `toml:"staging_dir"`
	UploadDir       string `toml:"upload_dir"`
	ImageDir        string `toml:"image_dir"`
	MaxUploadBytes  int64  `toml:"max_upload_bytes"`
	MaxArchiveFiles int    `toml:"max_archive_files"`
	MaxArchiveBytes int64  `toml:"max_archive_bytes"`
}

// LoadFile reads and parses a TOML config file. A missing file yields a zero
// File and no error.
func LoadFile(path string) (File, error) {
	var fc File
	if path == "" {
		return fc, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fc, nil
	}
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("parse config file: %w", err)
	}
	return fc, nil
}

// ApplyFile layers file values over cfg, skipping fields whose flag was set.
func ApplyFile(cfg *Config, fc File, changed map[string]bool) error {
	s := newSetter(changed)

	s.setString("addr", fc.Addr, &cfg.Server.Addr)
	s.setString("log-level", fc.LogLevel, &cfg.Server.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.Server.LogFormat)
	s.setString("database-url", fc.Database.URL, &cfg.Database.URL)
	s.setString("redis-url", fc.Redis.URL, &cfg.Redis.URL)
	s.setString("redis-channel", fc.Redis.Channel, &cfg.Redis.Channel)
	s.setList("kafka-brokers", fc.Kafka.Brokers, &cfg.Kafka.Brokers)
	s.setString("kafka-topic", fc.Kafka.Topic, &cfg.Kafka.Topic)
	s.setString("jwt-signing-key", fc.Auth.JWTSigningKey, &cfg.Auth.JWTSigningKey)
	s.setBool("auth-disabled", fc.Auth.Disabled, &cfg.Auth.Disabled)
	s.setString("staging-dir", fc.Batch.StagingDir, &cfg.Batch.StagingDir)
	s.setString("upload-dir", fc.Batch.UploadDir, &cfg.Batch.UploadDir)
	s.setString("image-dir", fc.Batch.ImageDir, &cfg.Batch.ImageDir)

	s.setInt("notify-buffer", fc.NotifyBuffer, &cfg.NotifyBuffer)
	s.setInt("breaker-failures", fc.BreakerFailures, &cfg.BreakerFailures)
	s.setInt("db-max-open-conns", fc.Database.MaxOpenConns, &cfg.Database.MaxOpenConns)
	s.setInt("db-max-idle-conns", fc.Database.MaxIdleConns, &cfg.Database.MaxIdleConns)
	s.setInt("kafka-partitions", fc.Kafka.Partitions, &cfg.Kafka.Partitions)
	s.setInt("kafka-replicas", fc.Kafka.Replicas, &cfg.Kafka.Replicas)
	s.setInt("workers", fc.Batch.Workers, &cfg.Batch.Workers)
	s.setInt("max-attempts", fc.Batch.MaxAttempts, &cfg.Batch.MaxAttempts)
	s.setInt("max-items", fc.Batch.MaxItems, &cfg.Batch.MaxItems)
	s.setInt("max-archive-files", fc.Batch.MaxArchiveFiles, &cfg.Batch.MaxArchiveFiles)
	s.setInt64("max-upload-bytes", fc.Batch.MaxUploadBytes, &cfg.Batch.MaxUploadBytes)
	s.setInt64("max-archive-bytes", fc.Batch.MaxArchiveBytes, &cfg.Batch.MaxArchiveBytes)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"shutdown-timeout", fc.ShutdownTimeout, &cfg.Server.ShutdownTimeout},
		{"lock-timeout", fc.LockTimeout, &cfg.LockTimeout},
		{"sse-heartbeat", fc.SSEHeartbeat, &cfg.SSEHeartbeat},
		{"breaker-cooldown", fc.BreakerCooldown, &cfg.BreakerCooldown},
		{"db-conn-max-lifetime", fc.Database.ConnMaxLifetime, &cfg.Database.ConnMaxLifetime},
		{"retry-initial", fc.Batch.RetryInitial, &cfg.Batch.RetryInitial},
		{"retry-max", fc.Batch.RetryMax, &cfg.Batch.RetryMax},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}
	return nil
}
