package config

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/dtool-irods/internal/logger"
	"github.com/marmos91/dtool-irods/internal/ratelimiter"
	"github.com/marmos91/dtool-irods/pkg/cache"
	"github.com/marmos91/dtool-irods/pkg/metrics"
	"github.com/marmos91/dtool-irods/pkg/remote"
	"github.com/marmos91/dtool-irods/pkg/remote/badger"
	"github.com/marmos91/dtool-irods/pkg/remote/icommands"
	remoteS3 "github.com/marmos91/dtool-irods/pkg/remote/s3"
	"github.com/mitchellh/mapstructure"
)

// ICommandsConfig is the remote.icommands section.
type ICommandsConfig struct {
	// CommandPrefix is prepended to every icommand, e.g.
	// "docker exec -i irods". Split with shell quoting rules.
	CommandPrefix string `mapstructure:"command_prefix"`

	// Timeout bounds each icommand. Zero means no limit.
	Timeout time.Duration `mapstructure:"timeout"`

	// Timezone is the zone `ils -l` prints timestamps in.
	Timezone string `mapstructure:"timezone"`

	// RateLimit caps how fast icommands are started.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Env is added to the environment of every icommand
	// (e.g. IRODS_ENVIRONMENT_FILE).
	Env map[string]string `mapstructure:"env"`
}

// RateLimitConfig configures a token bucket. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond uint `mapstructure:"requests_per_second"`
	Burst             uint `mapstructure:"burst"`
}

// BadgerConfig is the remote.badger section.
type BadgerConfig struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
}

// S3Config is the remote.s3 section.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// decode decodes a type-specific section, accepting durations as strings
// and loosely typed scalars from environment variables.
func decode(options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(options)
}

func decodeICommandsConfig(options map[string]any) (ICommandsConfig, error) {
	var cfg ICommandsConfig
	if err := decode(options, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode icommands config: %w", err)
	}
	return cfg, nil
}

func decodeBadgerConfig(options map[string]any) (BadgerConfig, error) {
	var cfg BadgerConfig
	if err := decode(options, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode badger config: %w", err)
	}
	return cfg, nil
}

func decodeS3Config(options map[string]any) (S3Config, error) {
	var cfg S3Config
	if err := decode(options, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode S3 config: %w", err)
	}
	return cfg, nil
}

// CreateRemote creates the remote store selected by cfg.Type.
//
// This factory function uses the Type field to determine which implementation
// to create, then decodes the type-specific configuration from the
// corresponding map and passes it to the implementation's constructor.
//
// Supported types:
//   - "icommands": pkg/remote/icommands (iRODS through its command-line clients)
//   - "badger": pkg/remote/badger (embedded store, offline use)
//   - "s3": pkg/remote/s3 (Amazon S3 or compatible storage)
//
// Remotes holding local resources (badger) implement io.Closer; callers
// should close them when done.
func CreateRemote(ctx context.Context, cfg *RemoteConfig, m metrics.RemoteMetrics) (remote.Remote, error) {
	if m == nil {
		m = metrics.NewNoopRemoteMetrics()
	}

	switch cfg.Type {
	case "icommands":
		return createICommandsRemote(cfg.ICommands, m)
	case "badger":
		return createBadgerRemote(ctx, cfg.Badger, m)
	case "s3":
		return createS3Remote(ctx, cfg.S3, m)
	default:
		return nil, fmt.Errorf("unknown remote type: %q", cfg.Type)
	}
}

// createICommandsRemote creates a remote driving the iRODS icommands.
func createICommandsRemote(options map[string]any, m metrics.RemoteMetrics) (remote.Remote, error) {
	cfg, err := decodeICommandsConfig(options)
	if err != nil {
		return nil, err
	}

	prefix, err := icommands.ParseCommandPrefix(cfg.CommandPrefix)
	if err != nil {
		return nil, fmt.Errorf("icommands: invalid command_prefix: %w", err)
	}

	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("icommands: invalid timezone: %w", err)
	}

	gateway := icommands.NewGateway(
		icommands.NewProcessExecutor(cfg.Env),
		icommands.WithCommandPrefix(prefix),
		icommands.WithTimeout(cfg.Timeout),
		icommands.WithRateLimiter(ratelimiter.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)),
		icommands.WithMetrics(m),
	)

	logger.Debug("icommands remote initialized: prefix=%q, timeout=%s, timezone=%s",
		cfg.CommandPrefix, cfg.Timeout, loc)

	return icommands.NewClient(gateway, icommands.ParserV4{Location: loc}), nil
}

// createBadgerRemote creates an embedded BadgerDB remote.
func createBadgerRemote(ctx context.Context, options map[string]any, m metrics.RemoteMetrics) (remote.Remote, error) {
	cfg, err := decodeBadgerConfig(options)
	if err != nil {
		return nil, err
	}

	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("badger remote: path is required")
	}

	store, err := badger.New(ctx, badger.Config{
		Path:     cfg.Path,
		InMemory: cfg.InMemory,
		Metrics:  m,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger remote: %w", err)
	}

	return store, nil
}

// createS3Remote creates an S3-backed remote.
func createS3Remote(ctx context.Context, options map[string]any, m metrics.RemoteMetrics) (remote.Remote, error) {
	cfg, err := decodeS3Config(options)
	if err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 remote: bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("S3 remote: region is required")
	}

	client, err := remoteS3.NewClient(ctx, remoteS3.ClientConfig{
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		MaxAttempts:     cfg.MaxRetries,
	})
	if err != nil {
		return nil, err
	}

	store, err := remoteS3.New(ctx, remoteS3.Config{
		Client:    client,
		Bucket:    cfg.Bucket,
		KeyPrefix: cfg.KeyPrefix,
		Metrics:   m,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 remote: %w", err)
	}

	logger.Info("S3 remote initialized: bucket=%s, region=%s, prefix=%s",
		cfg.Bucket, cfg.Region, cfg.KeyPrefix)

	return store, nil
}

// CreateCache creates the local item cache.
func CreateCache(cfg *CacheConfig, m metrics.CacheMetrics) (*cache.Cache, error) {
	var opts []cache.Option
	if m != nil {
		opts = append(opts, cache.WithMetrics(m))
	}

	c, err := cache.New(cfg.Directory, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create item cache: %w", err)
	}
	return c, nil
}
