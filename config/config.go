package config

import (
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env               string           `mapstructure:"env"`
	LogLevel          string           `mapstructure:"log_level"`
	LogType           string           `mapstructure:"log_type"`
	ServiceName       string           `mapstructure:"service_name"`
	Port              string           `mapstructure:"port"`
	Version           string           `mapstructure:"version"`
	SchedulerSettings *SchedulerConfig `mapstructure:"scheduler"`
	DiscoverySettings *DiscoveryConfig `mapstructure:"discovery"`
	CacheSettings     *CacheConfig     `mapstructure:"cache"`
	DbSettings        *DatabaseConfig  `mapstructure:"database"`
	KafkaSettings     *KafkaConfig     `mapstructure:"kafka"`
	S3Settings        *S3Config        `mapstructure:"s3"`
}

type SchedulerConfig struct {
	Concurrency   int     `mapstructure:"concurrency"`
	QueueSize     int     `mapstructure:"queue_size"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	RateBurst     int     `mapstructure:"rate_burst"`
}

type DiscoveryConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

type CacheConfig struct {
	Type         string        `mapstructure:"type"`
	Servers      string        `mapstructure:"servers"`
	TtlForResult time.Duration `mapstructure:"ttl_for_result"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
}

type KafkaConfig struct {
	Enabled  bool            `mapstructure:"enabled"`
	Producer *ProducerConfig `mapstructure:"producer"`
}

type ProducerConfig struct {
	Addr           string        `mapstructure:"addr"`
	WriteTopicName string        `mapstructure:"write_topic_name"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BatchSize      int           `mapstructure:"batch_size"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequiredAsks   int           `mapstructure:"required_acks"`
	Async          bool          `mapstructure:"async"`
}

type S3Config struct {
	Enabled         bool   `mapstructure:"enabled"`
	AwsAccessKey    string `mapstructure:"aws_access_key"`
	AwsSecretKey    string `mapstructure:"aws_secret_key"`
	AwsBaseEndpoint string `mapstructure:"aws_base_endpoint"`
	Region          string `mapstructure:"region"`
	BucketName      string `mapstructure:"bucket_name"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

func MustLoad() *Config {
	viper.AddConfigPath(path.Join("."))
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		slog.Error("can't initialize config file.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("error unmarshalling viper config.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	return &cfg
}
