package eavcache

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Secondary cache backends.
const (
	CacheBackendNone   = "none"
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
	CacheBackendS3     = "s3"
)

// Metadata source kinds.
const (
	SourceKindPostgres = "postgres"
	SourceKindFile     = "file"
)

// DefaultAttributeModel is the attribute model used when neither the row nor the entity type names one.
const DefaultAttributeModel = "eav/entity_attribute"

// Config consolidates settings for the metadata cache and its adapters
type Config struct {
	Database DatabaseConfig `json:"database" mapstructure:"database"`
	Source   SourceConfig   `json:"source" mapstructure:"source"`
	Cache    CacheConfig    `json:"cache" mapstructure:"cache"`
	Memory   MemoryConfig   `json:"memory" mapstructure:"memory"`
	Redis    RedisConfig    `json:"redis" mapstructure:"redis"`
	S3       S3Config       `json:"s3" mapstructure:"s3"`
	Models   ModelsConfig   `json:"models" mapstructure:"models"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	Database        string        `json:"database" mapstructure:"database"`
	Username        string        `json:"username" mapstructure:"username"`
	Password        string        `json:"password" mapstructure:"password"`
	SSLMode         string        `json:"sslMode" mapstructure:"sslmode"`
	MaxConnections  int           `json:"maxConnections" mapstructure:"maxconnections"`
	MaxIdleConns    int           `json:"maxIdleConns" mapstructure:"maxidleconns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" mapstructure:"connmaxlifetime"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime" mapstructure:"connmaxidletime"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
	// UseIAM generates an AWS DSQL auth token instead of using Password.
	UseIAM     bool       `json:"useIAM" mapstructure:"useiam"`
	Region     string     `json:"region" mapstructure:"region"`
	TableNames TableNames `json:"tableNames" mapstructure:"tablenames"`
}

// TableNames names the relational tables that hold EAV schema metadata.
type TableNames struct {
	EntityType      string `json:"entityType" mapstructure:"entitytype"`
	AttributeSet    string `json:"attributeSet" mapstructure:"attributeset"`
	Attribute       string `json:"attribute" mapstructure:"attribute"`
	EntityAttribute string `json:"entityAttribute" mapstructure:"entityattribute"`
}

// SourceConfig selects where raw metadata rows come from
type SourceConfig struct {
	Kind string `json:"kind" mapstructure:"kind"`
	File string `json:"file" mapstructure:"file"`
}

// CacheConfig contains secondary cache settings
type CacheConfig struct {
	Enabled   bool          `json:"enabled" mapstructure:"enabled"`
	Backend   string        `json:"backend" mapstructure:"backend"`
	KeyPrefix string        `json:"keyPrefix" mapstructure:"keyprefix"`
	TTL       time.Duration `json:"ttl" mapstructure:"ttl"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`

	BreakerThreshold    int           `json:"breakerThreshold" mapstructure:"breakerthreshold"`
	BreakerWindow       time.Duration `json:"breakerWindow" mapstructure:"breakerwindow"`
	BreakerOpenDuration time.Duration `json:"breakerOpenDuration" mapstructure:"breakeropenduration"`
}

// MemoryConfig configures the in-process sturdyc backend
type MemoryConfig struct {
	Capacity           int `json:"capacity" mapstructure:"capacity"`
	NumShards          int `json:"numShards" mapstructure:"numshards"`
	EvictionPercentage int `json:"evictionPercentage" mapstructure:"evictionpercentage"`
}

// RedisConfig configures the Redis backend
type RedisConfig struct {
	Addr     string `json:"addr" mapstructure:"addr"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db" mapstructure:"db"`
}

// S3Config configures the S3 backend
type S3Config struct {
	Bucket       string `json:"bucket" mapstructure:"bucket"`
	Prefix       string `json:"prefix" mapstructure:"prefix"`
	Region       string `json:"region" mapstructure:"region"`
	Endpoint     string `json:"endpoint" mapstructure:"endpoint"`
	AccessKey    string `json:"accessKey" mapstructure:"accesskey"`
	SecretKey    string `json:"secretKey" mapstructure:"secretkey"`
	UsePathStyle bool   `json:"usePathStyle" mapstructure:"usepathstyle"`
}

// ModelsConfig lists attribute model identifiers that must be registered at startup
type ModelsConfig struct {
	Default  string   `json:"default" mapstructure:"default"`
	Required []string `json:"required" mapstructure:"required"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "eav",
			Username:        "postgres",
			SSLMode:         "disable",
			MaxConnections:  10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			Timeout:         30 * time.Second,
			TableNames: TableNames{
				EntityType:      "eav_entity_type",
				AttributeSet:    "eav_attribute_set",
				Attribute:       "eav_attribute",
				EntityAttribute: "eav_entity_attribute",
			},
		},
		Source: SourceConfig{
			Kind: SourceKindPostgres,
		},
		Cache: CacheConfig{
			Enabled:             true,
			Backend:             CacheBackendMemory,
			KeyPrefix:           "eavcache:",
			TTL:                 24 * time.Hour,
			Timeout:             2 * time.Second,
			BreakerThreshold:    5,
			BreakerWindow:       time.Minute,
			BreakerOpenDuration: 30 * time.Second,
		},
		Memory: MemoryConfig{
			Capacity:           64,
			NumShards:          4,
			EvictionPercentage: 10,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		S3: S3Config{
			Prefix: "eavcache",
			Region: "us-east-1",
		},
		Models: ModelsConfig{
			Default: DefaultAttributeModel,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceKindPostgres:
		if c.Database.MaxConnections <= 0 {
			return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
		}
		tn := c.Database.TableNames
		if tn.EntityType == "" || tn.AttributeSet == "" || tn.Attribute == "" || tn.EntityAttribute == "" {
			return &ConfigError{Field: "database.tableNames", Message: "all table names are required"}
		}
	case SourceKindFile:
		if c.Source.File == "" {
			return &ConfigError{Field: "source.file", Message: "is required for the file source"}
		}
	default:
		return &ConfigError{Field: "source.kind", Message: fmt.Sprintf("unsupported source %q", c.Source.Kind)}
	}

	switch c.Cache.Backend {
	case CacheBackendNone:
	case CacheBackendMemory:
		if c.Memory.Capacity <= 0 {
			return &ConfigError{Field: "memory.capacity", Message: "must be greater than 0"}
		}
		if c.Memory.NumShards <= 0 {
			return &ConfigError{Field: "memory.numShards", Message: "must be greater than 0"}
		}
		if c.Memory.EvictionPercentage < 1 || c.Memory.EvictionPercentage > 100 {
			return &ConfigError{Field: "memory.evictionPercentage", Message: "must be between 1 and 100"}
		}
	case CacheBackendRedis:
		if c.Redis.Addr == "" {
			return &ConfigError{Field: "redis.addr", Message: "is required for the redis backend"}
		}
	case CacheBackendS3:
		if c.S3.Bucket == "" {
			return &ConfigError{Field: "s3.bucket", Message: "is required for the s3 backend"}
		}
		if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
			return &ConfigError{Field: "s3.accessKey", Message: "accessKey and secretKey must be provided together"}
		}
	default:
		return &ConfigError{Field: "cache.backend", Message: fmt.Sprintf("unsupported backend %q", c.Cache.Backend)}
	}

	if c.Cache.TTL < 0 {
		return &ConfigError{Field: "cache.ttl", Message: "must not be negative"}
	}
	if c.Cache.BreakerThreshold <= 0 {
		return &ConfigError{Field: "cache.breakerThreshold", Message: "must be greater than 0"}
	}
	if c.Models.Default == "" {
		return &ConfigError{Field: "models.default", Message: "is required"}
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}

// LoadConfig reads configuration from an optional file and EAVCACHE_* environment variables
// on top of DefaultConfig. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("EAVCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.database", d.Database.Database)
	v.SetDefault("database.username", d.Database.Username)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("database.maxconnections", d.Database.MaxConnections)
	v.SetDefault("database.maxidleconns", d.Database.MaxIdleConns)
	v.SetDefault("database.connmaxlifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.connmaxidletime", d.Database.ConnMaxIdleTime)
	v.SetDefault("database.timeout", d.Database.Timeout)
	v.SetDefault("database.useiam", d.Database.UseIAM)
	v.SetDefault("database.region", d.Database.Region)
	v.SetDefault("database.tablenames.entitytype", d.Database.TableNames.EntityType)
	v.SetDefault("database.tablenames.attributeset", d.Database.TableNames.AttributeSet)
	v.SetDefault("database.tablenames.attribute", d.Database.TableNames.Attribute)
	v.SetDefault("database.tablenames.entityattribute", d.Database.TableNames.EntityAttribute)

	v.SetDefault("source.kind", d.Source.Kind)
	v.SetDefault("source.file", d.Source.File)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.keyprefix", d.Cache.KeyPrefix)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.timeout", d.Cache.Timeout)
	v.SetDefault("cache.breakerthreshold", d.Cache.BreakerThreshold)
	v.SetDefault("cache.breakerwindow", d.Cache.BreakerWindow)
	v.SetDefault("cache.breakeropenduration", d.Cache.BreakerOpenDuration)

	v.SetDefault("memory.capacity", d.Memory.Capacity)
	v.SetDefault("memory.numshards", d.Memory.NumShards)
	v.SetDefault("memory.evictionpercentage", d.Memory.EvictionPercentage)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)

	v.SetDefault("s3.bucket", d.S3.Bucket)
	v.SetDefault("s3.prefix", d.S3.Prefix)
	v.SetDefault("s3.region", d.S3.Region)
	v.SetDefault("s3.endpoint", d.S3.Endpoint)
	v.SetDefault("s3.accesskey", d.S3.AccessKey)
	v.SetDefault("s3.secretkey", d.S3.SecretKey)
	v.SetDefault("s3.usepathstyle", d.S3.UsePathStyle)

	v.SetDefault("models.default", d.Models.Default)
	v.SetDefault("models.required", d.Models.Required)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}
