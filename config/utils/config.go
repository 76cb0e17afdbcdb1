// Package config provides utilities to load environment variables & set config structs, it includes app, marketplace, redis cache, db, message queue, ledger and logger environment variables.
package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// AppConfig contains environment variables for the application, database, cache, message queue, ledger gateway and marketplace tuning knobs
type (
	AppConfig struct {
		App         *App         `mapstructure:"app"`
		Redis       *Redis       `mapstructure:"redis"`
		Logger      *Logger      `mapstructure:"logger"`
		DB          *DB          `mapstructure:"db"`
		MQ          *MQ          `mapstructure:"mq"`
		Ledger      *Ledger      `mapstructure:"ledger"`
		Marketplace *Marketplace `mapstructure:"marketplace"`
	}

	// App contains all the environment variables for the application
	App struct {
		Name        string `mapstructure:"name"`
		Env         string `mapstructure:"env"`
		Owner       string `mapstructure:"owner"`
		MetricsPort string `mapstructure:"metricsPort"`
	}

	// Redis contains all the environment variables for the provider directory
	Redis struct {
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	}

	// DB contains all the environment variables for the database
	DB struct {
		Connection string `mapstructure:"connection"`
		Database   string `mapstructure:"database"`
		Host       string `mapstructure:"host"`
		Port       string `mapstructure:"port"`
		User       string `mapstructure:"user"`
		Password   string `mapstructure:"password"`
		Name       string `mapstructure:"name"`
	}

	// MQ contains all the environment variables for the message broker
	MQ struct {
		Host  string `mapstructure:"host"`
		Port  string `mapstructure:"port"`
		User  string `mapstructure:"user"`
		Pass  string `mapstructure:"pass"`
		Vhost string `mapstructure:"vhost"`
	}

	// Ledger contains all the environment variables for the value-transfer
	// network gateway
	Ledger struct {
		BaseURL string        `mapstructure:"baseUrl"`
		Timeout time.Duration `mapstructure:"timeout"`
	}

	// Marketplace contains the tuning knobs of the matching and settlement
	// engine. Everything here is external configuration, not core logic.
	Marketplace struct {
		BalanceCacheTTL        time.Duration `mapstructure:"balanceCacheTtl"`
		BroadcastInterval      time.Duration `mapstructure:"broadcastInterval"`
		DispatchInterval       time.Duration `mapstructure:"dispatchInterval"`
		MaxReassignments       int           `mapstructure:"maxReassignments"`
		OverProvisionThreshold float64       `mapstructure:"overProvisionThreshold"`

		// Cost-benefit score weights; must sum to 1.0
		CostWeight        float64 `mapstructure:"costWeight"`
		DurationWeight    float64 `mapstructure:"durationWeight"`
		ReliabilityWeight float64 `mapstructure:"reliabilityWeight"`

		// Fallback durations (seconds) per job type when no benchmark exists
		HeuristicDurations map[string]int `mapstructure:"heuristicDurations"`

		// Scaling exponents per workload parameter: epochs/dataset linear,
		// resolution quadratic by default
		ParamExponents map[string]float64 `mapstructure:"paramExponents"`
	}

	// Logger contains all the environment variables for the logger
	Logger struct {
		Level             string                `mapstructure:"level"`
		Development       bool                  `mapstructure:"development"`
		DisableStacktrace bool                  `mapstructure:"disableStacktrace"`
		Encoding          string                `mapstructure:"encoding"`
		EncoderConfig     zapcore.EncoderConfig `mapstructure:"encoderConfig"`
	}
)

// addZapEncoderConfig fills encoder config with zapcore types
func addZapEncoderConfig(cfg *zapcore.EncoderConfig) {
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.SecondsDurationEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	cfg.EncodeName = func(s string, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString("[" + s + "]")
	}
}

// setMarketplaceDefaults registers the baseline tuning values so a minimal
// config file still yields a working broker
func setMarketplaceDefaults() {
	viper.SetDefault("marketplace.balanceCacheTtl", 30*time.Second)
	viper.SetDefault("marketplace.broadcastInterval", 5*time.Second)
	viper.SetDefault("marketplace.dispatchInterval", 3*time.Second)
	viper.SetDefault("marketplace.maxReassignments", 3)
	viper.SetDefault("marketplace.overProvisionThreshold", 3.0)
	viper.SetDefault("marketplace.costWeight", 0.4)
	viper.SetDefault("marketplace.durationWeight", 0.4)
	viper.SetDefault("marketplace.reliabilityWeight", 0.2)
	viper.SetDefault("marketplace.heuristicDurations", map[string]int{
		"training":  300,
		"inference": 120,
		"rendering": 900,
		"custom":    1200,
	})
	viper.SetDefault("marketplace.paramExponents", map[string]float64{
		"epochs":       1,
		"dataset_size": 1,
		"resolution":   2,
	})
	viper.SetDefault("ledger.timeout", 5*time.Second)
	viper.SetDefault("app.metricsPort", "9091")
}

// New creates a new AppConfig instance
func New() *AppConfig {
	// Set up viper to read the config.yaml file
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/secrets/")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("env")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setMarketplaceDefaults()

	// Read the config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Fatalf("config file not found: %v", err)
		} else {
			log.Fatalf("error reading config file: %v", err)
		}
	}

	// Bind the app.name key to the APP_NAME environment variable
	if err := viper.BindEnv("app.name", "APP_NAME"); err != nil {
		log.Fatalf("error finding APP_NAME env variable")
	}

	// Bind DB variables
	viper.BindEnv("db.host", "PG_HOST")
	viper.BindEnv("db.port", "PG_PORT")
	viper.BindEnv("db.user", "PG_USER")
	viper.BindEnv("db.password", "PG_PASS")
	viper.BindEnv("db.name", "PG_DB")

	// Bind Redis variables
	viper.BindEnv("redis.addr", "REDIS_ADDR")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Bind message queue variables
	viper.BindEnv("mq.host", "MQ_HOST")
	viper.BindEnv("mq.port", "MQ_PORT")
	viper.BindEnv("mq.user", "MQ_USER")
	viper.BindEnv("mq.pass", "MQ_PASS")

	// Bind ledger gateway variables
	viper.BindEnv("ledger.baseUrl", "LEDGER_BASE_URL")

	// Create an instance of AppConfig
	var config *AppConfig
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("unable to decode into struct: %v", err)
	}
	addZapEncoderConfig(&config.Logger.EncoderConfig)

	return config
}
