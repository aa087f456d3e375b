package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// BindFlags registers command line flags writing straight into cfg. Flag
// defaults come from cfg, so call it with Default().
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Server.Addr, "addr", cfg.Server.Addr, "HTTP listen address")
	fs.DurationVar(&cfg.Server.ShutdownTimeout, "shutdown-timeout", cfg.Server.ShutdownTimeout, "graceful shutdown deadline")
	fs.StringVar(&cfg.Server.LogLevel, "log-level", cfg.Server.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.Server.LogFormat, "log-format", cfg.Server.LogFormat, "log format (json, text)")

	fs.StringVar(&cfg.Database.URL, "database-url", cfg.Database.URL, "Postgres URL; empty keeps state in memory only")
	fs.IntVar(&cfg.Database.MaxOpenConns, "db-max-open-conns", cfg.Database.MaxOpenConns, "maximum open database connections")
	fs.IntVar(&cfg.Database.MaxIdleConns, "db-max-idle-conns", cfg.Database.MaxIdleConns, "maximum idle database connections")
	fs.DurationVar(&cfg.Database.ConnMaxLifetime, "db-conn-max-lifetime", cfg.Database.ConnMaxLifetime, "maximum database connection lifetime")

	fs.StringVar(&cfg.Redis.URL, "redis-url", cfg.Redis.URL, "Redis URL for the notification relay")
	fs.StringVar(&cfg.Redis.Channel, "redis-channel", cfg.Redis.Channel, "Redis pub/sub channel for notifications")
	fs.StringSliceVar(&cfg.Kafka.Brokers, "kafka-brokers", cfg.Kafka.Brokers, "Kafka seed brokers for the notification relay")
	fs.StringVar(&cfg.Kafka.Topic, "kafka-topic", cfg.Kafka.Topic, "Kafka topic for notifications")
	fs.IntVar(&cfg.Kafka.Partitions, "kafka-partitions", cfg.Kafka.Partitions, "partitions when creating the notification topic")
	fs.IntVar(&cfg.Kafka.Replicas, "kafka-replicas", cfg.Kafka.Replicas, "replication factor when creating the notification topic")

	fs.StringVar(&cfg.Auth.JWTSigningKey, "jwt-signing-key", cfg.Auth.JWTSigningKey, "HMAC key for actor tokens")
	fs.BoolVar(&cfg.Auth.Disabled, "auth-disabled", cfg.Auth.Disabled, "trust X-Actor-ID and X-Actor-Role headers instead of tokens")

	fs.IntVar(&cfg.Batch.Workers, "workers", cfg.Batch.Workers, "concurrent batch item workers")
	fs.IntVar(&cfg.Batch.MaxAttempts, "max-attempts", cfg.Batch.MaxAttempts, "attempts per batch item (1-3)")
	fs.IntVar(&cfg.Batch.MaxItems, "max-items", cfg.Batch.MaxItems, "maximum items per batch")
	fs.DurationVar(&cfg.Batch.RetryInitial, "retry-initial", cfg.Batch.RetryInitial, "first retry delay")
	fs.DurationVar(&cfg.Batch.RetryMax, "retry-max", cfg.Batch.RetryMax, "retry delay ceiling")
	fs.StringVar(&cfg.Batch.StagingDir, "staging-dir", cfg.Batch.StagingDir, "directory for extracted archives")
	fs.StringVar(&cfg.Batch.UploadDir, "upload-dir", cfg.Batch.UploadDir, "directory for spooled uploads")
	fs.StringVar(&cfg.Batch.ImageDir, "image-dir", cfg.Batch.ImageDir, "root of the content addressed image store")
	fs.Int64Var(&cfg.Batch.MaxUploadBytes, "max-upload-bytes", cfg.Batch.MaxUploadBytes, "maximum archive upload size")
	fs.IntVar(&cfg.Batch.MaxArchiveFiles, "max-archive-files", cfg.Batch.MaxArchiveFiles, "maximum entries in an archive")
	fs.Int64Var(&cfg.Batch.MaxArchiveBytes, "max-archive-bytes", cfg.Batch.MaxArchiveBytes, "maximum uncompressed archive size")

	fs.DurationVar(&cfg.LockTimeout, "lock-timeout", cfg.LockTimeout, "per application lock wait")
	fs.DurationVar(&cfg.SSEHeartbeat, "sse-heartbeat", cfg.SSEHeartbeat, "notification stream keep-alive interval")
	fs.IntVar(&cfg.NotifyBuffer, "notify-buffer", cfg.NotifyBuffer, "per subscriber notification buffer")
	fs.IntVar(&cfg.BreakerFailures, "breaker-failures", cfg.BreakerFailures, "durable store failures before the breaker opens")
	fs.DurationVar(&cfg.BreakerCooldown, "breaker-cooldown", cfg.BreakerCooldown, "time the breaker stays open")
}

// Changed reports which flags were set on the command line.
func Changed(fs *pflag.FlagSet) map[string]bool {
	changed := map[string]bool{}
	fs.Visit(func(f *pflag.Flag) { changed[f.Name] = true })
	return changed
}

// Resolve layers the TOML file and the environment under the flags already
// parsed into cfg, then validates the result.
func Resolve(cfg *Config, fs *pflag.FlagSet, filePath string) error {
	changed := Changed(fs)
	fc, err := LoadFile(filePath)
	if err != nil {
		return err
	}
	if err := ApplyFile(cfg, fc, changed); err != nil {
		return fmt.Errorf("apply config file: %w", err)
	}
	if err := ApplyEnv(cfg, changed); err != nil {
		return fmt.Errorf("apply environment: %w", err)
	}
	return cfg.Validate()
}
