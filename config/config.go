package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

type Config struct {
	Mode     string `mapstructure:"mode"`
	Dotenv   string `mapstructure:"dotenv"`
	Handlers struct {
		Prometheus struct {
			Port string `mapstructure:"port"`
		} `mapstructure:"prometheus"`
	} `mapstructure:"handlers"`
	Repositories struct {
		Postgres struct {
			Enabled           bool   `mapstructure:"enabled"`
			Host              string `mapstructure:"host"`
			Password          string `mapstructure:"password"`
			Port              string `mapstructure:"port"`
			Username          string `mapstructure:"username"`
			DB                string `mapstructure:"db"`
			SSLMODE           string `mapstructure:"SSLMODE"`
			MAXCONWAITINGTIME int    `mapstructure:"MAXCONWAITINGTIME"`
		} `mapstructure:"postgres"`
	} `mapstructure:"repositories"`
	Server struct {
		HTTPPort        string        `mapstructure:"HTTPPort"`
		Timeout         time.Duration `mapstructure:"HTTPTimeout"`
		SearchRateLimit int           `mapstructure:"searchRateLimit"`
		AllowedOrigins  []string      `mapstructure:"allowedOrigins"`
	} `mapstructure:"server"`
	Tracing struct {
		ServiceName string `mapstructure:"serviceName"`
	} `mapstructure:"tracing"`
	Location LocationConfig `mapstructure:"location"`
}

// LocationConfig holds the recognized options of the resolution engine.
type LocationConfig struct {
	APIKey             string        `mapstructure:"apiKey"`
	BaseURL            string        `mapstructure:"baseUrl"`
	CountriesURL       string        `mapstructure:"countriesUrl"`
	CacheTimeout       time.Duration `mapstructure:"cacheTimeout"`
	MaxCacheSize       int           `mapstructure:"maxCacheSize"`
	SourceCacheTimeout time.Duration `mapstructure:"sourceCacheTimeout"`
	SourceCacheSize    int           `mapstructure:"sourceCacheSize"`
	SourceTimeout      time.Duration `mapstructure:"sourceTimeout"`
	FallbackToStatic   bool          `mapstructure:"fallbackToStatic"`
	DefaultCountry     string        `mapstructure:"defaultCountry"`
	GazetteerFile      string        `mapstructure:"gazetteerFile"`
	WatchGazetteer     bool          `mapstructure:"watchGazetteer"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "development")
	v.SetDefault("server.HTTPPort", "8000")
	v.SetDefault("server.HTTPTimeout", 15*time.Second)
	v.SetDefault("server.searchRateLimit", 120)
	v.SetDefault("handlers.prometheus.port", "8084")
	v.SetDefault("tracing.serviceName", "location-resolver")

	v.SetDefault("location.baseUrl", "http://api.geonames.org")
	v.SetDefault("location.countriesUrl", "https://restcountries.com/v3.1")
	v.SetDefault("location.cacheTimeout", 5*time.Minute)
	v.SetDefault("location.maxCacheSize", 1000)
	v.SetDefault("location.sourceCacheTimeout", 24*time.Hour)
	v.SetDefault("location.sourceCacheSize", 100)
	v.SetDefault("location.sourceTimeout", 4*time.Second)
	v.SetDefault("location.fallbackToStatic", true)
	v.SetDefault("location.defaultCountry", "India")
	v.SetDefault("location.watchGazetteer", false)
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()
	setDefaults(v)

	// Add file-based config paths
	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Secrets never live in the file.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("location.apiKey", "GEONAMES_USERNAME")
	_ = v.BindEnv("repositories.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("repositories.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("mode", "APP_ENV")

	// Try to load file-based config
	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %s", err)
		}
	}

	// Unmarshal the config into the Config struct
	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %s", err)
	}
	if err = config.Location.Validate(); err != nil {
		return Config{}, err
	}
	fmt.Println("Successfully loaded app configs...")
	return config, nil
}

// Validate rejects settings the engine cannot be built with.
func (c LocationConfig) Validate() error {
	switch {
	case c.CacheTimeout <= 0:
		return fmt.Errorf("location.cacheTimeout must be positive, got %s", c.CacheTimeout)
	case c.MaxCacheSize <= 0:
		return fmt.Errorf("location.maxCacheSize must be positive, got %d", c.MaxCacheSize)
	case c.SourceCacheTimeout <= 0:
		return fmt.Errorf("location.sourceCacheTimeout must be positive, got %s", c.SourceCacheTimeout)
	case c.SourceCacheSize <= 0:
		return fmt.Errorf("location.sourceCacheSize must be positive, got %d", c.SourceCacheSize)
	case c.SourceTimeout <= 0:
		return fmt.Errorf("location.sourceTimeout must be positive, got %s", c.SourceTimeout)
	case strings.TrimSpace(c.DefaultCountry) == "":
		return fmt.Errorf("location.defaultCountry is required")
	}
	return nil
}
