package factory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/eavcache"
	"github.com/lychee-technology/eavcache/internal"
	"go.uber.org/zap"
)

// AttributeFactory builds an empty attribute for a model identifier.
type AttributeFactory func() eavcache.Attribute

// Runtime owns the adapters shared by every metadata cache instance of a process:
// the metadata source, the secondary cache, the attribute model registry and the invalidator.
type Runtime struct {
	source      eavcache.MetadataSource
	secondary   eavcache.SecondaryCache
	models      *internal.AttributeModelRegistry
	invalidator *internal.CacheInvalidator
	closers     []func() error
}

// NewRuntime wires the metadata source and secondary cache selected by config.
// pool may be nil when config.Source.Kind is "file".
//
// Usage:
//
//	config, err := eavcache.LoadConfig("eavcache.yaml")
//	pool, err := factory.NewPool(ctx, config.Database)
//	rt, err := factory.NewRuntime(ctx, config, pool, nil)
//	defer rt.Close()
//
//	cache, release := rt.NewMetadataCache()
//	defer release()
//	attr, err := cache.GetAttribute(ctx, eavcache.EntityTypeCode("catalog_product"), eavcache.AttributeCode("sku"))
func NewRuntime(ctx context.Context, config *eavcache.Config, pool *pgxpool.Pool, models map[string]AttributeFactory) (*Runtime, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	registry, err := NewAttributeModelRegistry(config.Models, models)
	if err != nil {
		return nil, err
	}

	source, err := NewMetadataSource(config, pool)
	if err != nil {
		return nil, err
	}

	secondary, closer, err := NewSecondaryCache(ctx, config)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		source:      source,
		secondary:   secondary,
		models:      registry,
		invalidator: internal.NewCacheInvalidator(secondary),
	}
	if closer != nil {
		rt.closers = append(rt.closers, closer)
	}

	zap.S().Infow("metadata cache runtime ready",
		"source", config.Source.Kind,
		"cache_backend", config.Cache.Backend,
		"cache_enabled", secondary.Enabled(),
		"models", registry.Models())
	return rt, nil
}

// NewMetadataCache returns a fresh cache instance registered with the runtime's invalidator.
// Callers scope an instance to a request or process and call release when done with it.
func (r *Runtime) NewMetadataCache() (eavcache.MetadataCache, func()) {
	cache := internal.NewMetadataCache(r.source, r.secondary, r.models)
	return cache, r.invalidator.Register(cache)
}

// Invalidator clears every registered cache and the secondary cache on schema changes.
func (r *Runtime) Invalidator() eavcache.Invalidator {
	return r.invalidator
}

// SecondaryCache returns the guarded secondary cache shared by the runtime's instances.
func (r *Runtime) SecondaryCache() eavcache.SecondaryCache {
	return r.secondary
}

// Close releases backend connections.
func (r *Runtime) Close() error {
	var errs []error
	for _, closeFn := range r.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// NewMetadataSource builds the source named by config.Source.Kind.
func NewMetadataSource(config *eavcache.Config, pool *pgxpool.Pool) (eavcache.MetadataSource, error) {
	switch config.Source.Kind {
	case eavcache.SourceKindPostgres:
		if pool == nil {
			return nil, eavcache.NewConfigurationError("source.kind", "the postgres source requires a connection pool")
		}
		return internal.NewPostgresMetadataSource(pool, config.Database.TableNames), nil
	case eavcache.SourceKindFile:
		if config.Source.File == "" {
			return nil, eavcache.NewConfigurationError("source.file", "is required for the file source")
		}
		return internal.NewFileMetadataSource(config.Source.File), nil
	default:
		return nil, eavcache.NewConfigurationError("source.kind", fmt.Sprintf("unsupported source %q", config.Source.Kind))
	}
}

// NewSecondaryCache builds the configured backend wrapped with the enabled flag, a circuit
// breaker and the per-call timeout. The returned closer may be nil.
func NewSecondaryCache(ctx context.Context, config *eavcache.Config) (eavcache.SecondaryCache, func() error, error) {
	cc := config.Cache
	var (
		backend eavcache.SecondaryCache
		closer  func() error
	)

	switch cc.Backend {
	case eavcache.CacheBackendNone:
		return internal.NewDisabledSecondaryCache(), nil, nil
	case eavcache.CacheBackendMemory:
		backend = internal.NewMemorySecondaryCache(config.Memory, cc.KeyPrefix, cc.TTL)
	case eavcache.CacheBackendRedis:
		redisCache, err := internal.NewRedisSecondaryCache(ctx, config.Redis, cc.KeyPrefix, cc.TTL)
		if err != nil {
			return nil, nil, err
		}
		backend, closer = redisCache, redisCache.Close
	case eavcache.CacheBackendS3:
		client, err := internal.NewS3Client(ctx, config.S3)
		if err != nil {
			return nil, nil, err
		}
		backend = internal.NewS3SecondaryCache(client, config.S3.Bucket, config.S3.Prefix, cc.KeyPrefix)
	default:
		return nil, nil, eavcache.NewConfigurationError("cache.backend", fmt.Sprintf("unsupported backend %q", cc.Backend))
	}

	breaker := internal.NewCircuitBreaker(cc.BreakerThreshold, cc.BreakerWindow, cc.BreakerOpenDuration)
	return internal.NewGuardedSecondaryCache(backend, cc.Enabled, breaker, cc.Timeout), closer, nil
}

// NewAttributeModelRegistry registers the base model under the configured default and every
// extra factory, then checks that each model listed in cfg.Required is available.
func NewAttributeModelRegistry(cfg eavcache.ModelsConfig, models map[string]AttributeFactory) (*internal.AttributeModelRegistry, error) {
	defaultModel := cfg.Default
	if defaultModel == "" {
		defaultModel = eavcache.DefaultAttributeModel
	}

	factories := make(map[string]internal.AttributeFactory, len(models)+1)
	factories[defaultModel] = internal.BaseAttributeFactory(defaultModel)
	for name, fn := range models {
		if fn == nil {
			return nil, eavcache.NewConfigurationError("models", fmt.Sprintf("attribute model %q has no factory", name))
		}
		factories[name] = internal.AttributeFactory(fn)
	}

	registry, err := internal.NewAttributeModelRegistry(defaultModel, factories)
	if err != nil {
		return nil, err
	}
	if err := registry.Validate(cfg.Required...); err != nil {
		return nil, err
	}
	return registry, nil
}

// NewPool opens a pgx pool for cfg. With UseIAM set, each new connection authenticates with an
// Aurora DSQL token generated from the default AWS credential chain.
func NewPool(ctx context.Context, cfg eavcache.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(ConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(min(cfg.MaxIdleConns, max(cfg.MaxConnections, 1)))
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
	if cfg.Timeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.Timeout
	}

	if cfg.UseIAM {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		poolConfig.BeforeConnect = dsqlTokenHook(cfg, awsCfg)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return pool, nil
}

func dsqlTokenHook(cfg eavcache.DatabaseConfig, awsCfg aws.Config) func(context.Context, *pgx.ConnConfig) error {
	endpoint := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	return func(ctx context.Context, cc *pgx.ConnConfig) error {
		token, err := auth.GenerateDbConnectAuthToken(ctx, endpoint, awsCfg.Region, awsCfg.Credentials)
		if err != nil {
			return fmt.Errorf("generate dsql auth token: %w", err)
		}
		cc.Password = token
		zap.S().Debugw("generated IAM auth token for Postgres connection (dsql)", "endpoint", endpoint)
		return nil
	}
}

// ConnectionString renders cfg as a postgres URL.
func ConnectionString(cfg eavcache.DatabaseConfig) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Database,
	}
	if cfg.Password != "" && !cfg.UseIAM {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	} else if cfg.Username != "" {
		u.User = url.User(cfg.Username)
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{cfg.SSLMode}}.Encode()
	}
	return u.String()
}

// RegisterTelemetryEmitter installs fn as the receiver of population latency and secondary
// cache outcome measurements. A nil fn restores the no-op emitter.
func RegisterTelemetryEmitter(fn func(ctx context.Context, name string, labels map[string]string, value any)) {
	internal.RegisterTelemetryEmitter(fn)
}
