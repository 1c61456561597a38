// config/config.go
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// --- Sub-structs mirroring the YAML layout ---

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	AllowedOrigins  []string      `mapstructure:"allowedOrigins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StorageConfig struct {
	// Driver is "mongo" or "memory".
	Driver string `mapstructure:"driver"`
	Seed   bool   `mapstructure:"seed"`
}

type MongoConfig struct {
	URI     string        `mapstructure:"uri"`
	DBName  string        `mapstructure:"dbName"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
	Issuer     string        `mapstructure:"issuer"`
}

type FabricConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ChannelName       string `mapstructure:"channelName"`
	ChaincodeName     string `mapstructure:"chaincodeName"`
	OrgName           string `mapstructure:"orgName"`
	UserName          string `mapstructure:"userName"`
	ConnectionProfile string `mapstructure:"connectionProfile"`
	UserCertPath      string `mapstructure:"userCertPath"`
	UserKeyDir        string `mapstructure:"userKeyDir"`
	WalletPath        string `mapstructure:"walletPath"`
}

type S3Config struct {
	Enabled          bool   `mapstructure:"enabled"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	AccessKeyID      string `mapstructure:"accessKeyID"`
	SecretAccessKey  string `mapstructure:"secretAccessKey"`
	CloudFrontDomain string `mapstructure:"cloudFrontDomain"`
	MaxUploadBytes   int64  `mapstructure:"maxUploadBytes"`
}

type SNSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Region   string `mapstructure:"region"`
	SenderID string `mapstructure:"senderID"`
}

type GeocodeConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	UserAgent string        `mapstructure:"userAgent"`
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheTTL  time.Duration `mapstructure:"cacheTTL"`
}

type RetryConfig struct {
	MaxAttempts        int           `mapstructure:"maxAttempts"`
	InitialInterval    time.Duration `mapstructure:"initialInterval"`
	BackoffCoefficient float64       `mapstructure:"backoffCoefficient"`
	MaxInterval        time.Duration `mapstructure:"maxInterval"`
	IdempotencyTTL     time.Duration `mapstructure:"idempotencyTTL"`
}

// --- Main Config struct ---

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Storage StorageConfig `mapstructure:"storage"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Fabric  FabricConfig  `mapstructure:"fabric"`
	S3      S3Config      `mapstructure:"s3"`
	SNS     SNSConfig     `mapstructure:"sns"`
	Geocode GeocodeConfig `mapstructure:"geocode"`
	Retry   RetryConfig   `mapstructure:"retry"`
}

var envBindings = map[string]string{
	"server.port":              "SERVER_PORT",
	"server.allowedOrigins":    "SERVER_ALLOWED_ORIGINS",
	"log.level":                "LOG_LEVEL",
	"log.format":               "LOG_FORMAT",
	"storage.driver":           "STORAGE_DRIVER",
	"storage.seed":             "STORAGE_SEED",
	"mongo.uri":                "MONGO_URI",
	"mongo.dbName":             "MONGO_DBNAME",
	"redis.enabled":            "REDIS_ENABLED",
	"redis.addr":               "REDIS_ADDR",
	"redis.password":           "REDIS_PASSWORD",
	"redis.db":                 "REDIS_DB",
	"kafka.enabled":            "KAFKA_ENABLED",
	"kafka.brokers":            "KAFKA_BROKERS",
	"kafka.topic":              "KAFKA_TOPIC",
	"jwt.secret":               "JWT_SECRET",
	"jwt.expiration":           "JWT_EXPIRATION",
	"fabric.enabled":           "FABRIC_ENABLED",
	"fabric.connectionProfile": "FABRIC_CONNECTION_PROFILE",
	"s3.enabled":               "S3_ENABLED",
	"s3.bucket":                "S3_BUCKET",
	"s3.region":                "S3_REGION",
	"s3.accessKeyID":           "S3_ACCESS_KEY_ID",
	"s3.secretAccessKey":       "S3_SECRET_ACCESS_KEY",
	"s3.cloudFrontDomain":      "S3_CLOUDFRONT_DOMAIN",
	"sns.enabled":              "SNS_ENABLED",
	"sns.region":               "SNS_REGION",
	"sns.senderID":             "SNS_SENDER_ID",
	"geocode.endpoint":         "GEOCODE_ENDPOINT",
	"geocode.userAgent":        "GEOCODE_USER_AGENT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("storage.driver", "mongo")
	v.SetDefault("storage.seed", true)
	v.SetDefault("mongo.dbName", "shiptrack")
	v.SetDefault("mongo.timeout", "10s")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.channel", "shiptrack:realtime")
	v.SetDefault("kafka.topic", "shipment-events")
	v.SetDefault("jwt.expiration", "24h")
	v.SetDefault("jwt.issuer", "shiptrack")
	v.SetDefault("fabric.walletPath", "wallet")
	v.SetDefault("s3.maxUploadBytes", 10<<20)
	v.SetDefault("geocode.endpoint", "https://nominatim.openstreetmap.org/reverse")
	v.SetDefault("geocode.userAgent", "shiptrack-api-server")
	v.SetDefault("geocode.timeout", "5s")
	v.SetDefault("geocode.cacheTTL", "24h")
	v.SetDefault("retry.maxAttempts", 3)
	v.SetDefault("retry.initialInterval", "100ms")
	v.SetDefault("retry.backoffCoefficient", 2.0)
	v.SetDefault("retry.maxInterval", "2s")
	v.SetDefault("retry.idempotencyTTL", "24h")
}

// LoadConfig reads config.yaml from path, then overrides it with a .env file
// and environment variables. A missing config file is not an error.
func LoadConfig(path string) (config Config, err error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	for key, env := range envBindings {
		if err = v.BindEnv(key, env); err != nil {
			return
		}
	}

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}
	err = config.Validate()
	return
}

func (c Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	switch c.Storage.Driver {
	case "memory":
	case "mongo":
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("mongo.uri is required for the mongo storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q must be mongo or memory", c.Storage.Driver))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	if c.S3.Enabled && (c.S3.Bucket == "" || c.S3.Region == "") {
		errs = append(errs, errors.New("s3.bucket and s3.region are required when s3 is enabled"))
	}
	if c.SNS.Enabled && c.SNS.Region == "" {
		errs = append(errs, errors.New("sns.region is required when sns is enabled"))
	}
	if c.Fabric.Enabled && c.Fabric.ConnectionProfile == "" {
		errs = append(errs, errors.New("fabric.connectionProfile is required when fabric is enabled"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.maxAttempts must be at least 1"))
	}
	return errors.Join(errs...)
}
