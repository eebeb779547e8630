package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	PostgresUser     string `mapstructure:"POSTGRES_USER"`
	PostgresPassword string `mapstructure:"POSTGRES_PASSWORD"`
	PostgresDB       string `mapstructure:"POSTGRES_DB"`
	PostgresHost     string `mapstructure:"POSTGRES_HOST"`
	PostgresPort     string `mapstructure:"POSTGRES_PORT"`

	RedisHost string `mapstructure:"REDIS_HOST"`
	RedisPort string `mapstructure:"REDIS_PORT"`

	S3Endpoint  string `mapstructure:"S3_ENDPOINT"`
	S3AccessKey string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey string `mapstructure:"S3_SECRET_KEY"`
	S3Secure    bool   `mapstructure:"S3_SECURE"`

	// DataLakeBucket holds the source super-tile GeoTIFFs, TileCacheBucket
	// is the CDN origin for rendered tiles.
	DataLakeBucket  string `mapstructure:"DATA_LAKE_BUCKET"`
	TileCacheBucket string `mapstructure:"TILE_CACHE_BUCKET"`

	// TileCacheURL is the public base URL of the tile CDN, used by the
	// upstream-tile-cache raster source and the WMTS/ESRI descriptors.
	TileCacheURL string `mapstructure:"TILE_CACHE_URL"`

	GeostoreURL string `mapstructure:"GEOSTORE_URL"`

	BackendPort string `mapstructure:"BACKEND_PORT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	// DefaultDateRangeDays is the rolling window applied when no explicit
	// date range is requested.
	DefaultDateRangeDays int `mapstructure:"DEFAULT_DATE_RANGE_DAYS"`
	MaxDateRangeDays     int `mapstructure:"MAX_DATE_RANGE_DAYS"`
	DefaultTCD           int `mapstructure:"DEFAULT_TCD"`

	QueryTimeoutSeconds int `mapstructure:"QUERY_TIMEOUT_SECONDS"`
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDB,
	)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

func Load() *Config {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	// Explicitly bind environment variables
	viper.BindEnv("POSTGRES_USER")
	viper.BindEnv("POSTGRES_PASSWORD")
	viper.BindEnv("POSTGRES_DB")
	viper.BindEnv("POSTGRES_HOST")
	viper.BindEnv("POSTGRES_PORT")
	viper.BindEnv("REDIS_HOST")
	viper.BindEnv("REDIS_PORT")
	viper.BindEnv("S3_ENDPOINT")
	viper.BindEnv("S3_ACCESS_KEY")
	viper.BindEnv("S3_SECRET_KEY")
	viper.BindEnv("S3_SECURE")
	viper.BindEnv("DATA_LAKE_BUCKET")
	viper.BindEnv("TILE_CACHE_BUCKET")
	viper.BindEnv("TILE_CACHE_URL")
	viper.BindEnv("GEOSTORE_URL")
	viper.BindEnv("BACKEND_PORT")
	viper.BindEnv("LOG_LEVEL")
	viper.BindEnv("DEFAULT_DATE_RANGE_DAYS")
	viper.BindEnv("MAX_DATE_RANGE_DAYS")
	viper.BindEnv("DEFAULT_TCD")
	viper.BindEnv("QUERY_TIMEOUT_SECONDS")

	// Defaults
	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", "5432")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("S3_ENDPOINT", "localhost:9000")
	viper.SetDefault("S3_SECURE", false)
	viper.SetDefault("DATA_LAKE_BUCKET", "data-lake")
	viper.SetDefault("TILE_CACHE_BUCKET", "tile-cache")
	viper.SetDefault("BACKEND_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DEFAULT_DATE_RANGE_DAYS", 7)
	viper.SetDefault("MAX_DATE_RANGE_DAYS", 90)
	viper.SetDefault("DEFAULT_TCD", 30)
	viper.SetDefault("QUERY_TIMEOUT_SECONDS", 60)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: no .env file found, using environment variables")
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		log.Fatalf("Failed to unmarshal config: %v", err)
	}

	return cfg
}
