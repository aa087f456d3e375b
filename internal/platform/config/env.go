package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every environment variable the server reads.
const EnvPrefix = "LABELCHECK_"

// LoadDotEnv populates the process environment from a .env file. Variables
// already present in the environment win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv layers LABELCHECK_* variables over cfg, skipping fields whose
// flag was set.
func ApplyEnv(cfg *Config, changed map[string]bool) error {
	return applyEnv(cfg, changed, os.Getenv)
}

func applyEnv(cfg *Config, changed map[string]bool, getenv func(string) string) error {
	s := newSetter(changed)
	env := func(key string) string { return getenv(EnvPrefix + key) }

	s.setString("addr", env("ADDR"), &cfg.Server.Addr)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.Server.LogLevel)
	s.setString("log-format", env("LOG_FORMAT"), &cfg.Server.LogFormat)
	s.setString("database-url", env("DATABASE_URL"), &cfg.Database.URL)
	s.setString("redis-url", env("REDIS_URL"), &cfg.Redis.URL)
	s.setString("redis-channel", env("REDIS_CHANNEL"), &cfg.Redis.Channel)
	if raw := env("KAFKA_BROKERS"); raw != "" {
		s.setList("kafka-brokers", strings.Split(raw, ","), &cfg.Kafka.Brokers)
	}
	s.setString("kafka-topic", env("KAFKA_TOPIC"), &cfg.Kafka.Topic)
	s.setString("jwt-signing-key", env("JWT_SIGNING_KEY"), &cfg.Auth.JWTSigningKey)
	s.setBoolFromString("auth-disabled", env("AUTH_DISABLED"), &cfg.Auth.Disabled)
	s.setString("staging-dir", env("STAGING_DIR"), &cfg.Batch.StagingDir)
	s.setString("upload-dir", env("UPLOAD_DIR"), &cfg.Batch.UploadDir)
	s.setString("image-dir", env("IMAGE_DIR"), &cfg.Batch.ImageDir)

	ints := []struct {
		flag string
		key  string
		dst  *int
	}{
		{"notify-buffer", "NOTIFY_BUFFER", &cfg.NotifyBuffer},
		{"breaker-failures", "BREAKER_FAILURES", &cfg.BreakerFailures},
		{"db-max-open-conns", "DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns},
		{"db-max-idle-conns", "DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns},
		{"kafka-partitions", "KAFKA_PARTITIONS", &cfg.Kafka.Partitions},
		{"kafka-replicas", "KAFKA_REPLICAS", &cfg.Kafka.Replicas},
		{"workers", "WORKERS", &cfg.Batch.Workers},
		{"max-attempts", "MAX_ATTEMPTS", &cfg.Batch.MaxAttempts},
		{"max-items", "MAX_ITEMS", &cfg.Batch.MaxItems},
		{"max-archive-files", "MAX_ARCHIVE_FILES", &cfg.Batch.MaxArchiveFiles},
	}
	for _, i := range ints {
		if err := s.setIntFromString(i.flag, env(i.key), i.dst); err != nil {
			return err
		}
	}
	if err := s.setInt64FromString("max-upload-bytes", env("MAX_UPLOAD_BYTES"), &cfg.Batch.MaxUploadBytes); err != nil {
		return err
	}
	if err := s.setInt64FromString("max-archive-bytes", env("MAX_ARCHIVE_BYTES"), &cfg.Batch.MaxArchiveBytes); err != nil {
		return err
	}

	durations := []struct {
		flag string
		key  string
		dst  *time.Duration
	}{
		{"shutdown-timeout", "SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout},
		{"lock-timeout", "LOCK_TIMEOUT", &cfg.LockTimeout},
		{"sse-heartbeat", "SSE_HEARTBEAT", &cfg.SSEHeartbeat},
		{"breaker-cooldown", "BREAKER_COOLDOWN", &cfg.BreakerCooldown},
		{"db-conn-max-lifetime", "DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime},
		{"retry-initial", "RETRY_INITIAL", &cfg.Batch.RetryInitial},
		{"retry-max", "RETRY_MAX", &cfg.Batch.RetryMax},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, env(d.key), d.dst); err != nil {
			return err
		}
	}
	return nil
}
