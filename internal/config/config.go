package config

import (
	"log"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Database struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"ssl-mode"`
}

type KafkaWriter struct {
	BatchSize      int `mapstructure:"batch-size"`
	BatchTimeoutMs int `mapstructure:"batch-timeout-ms"`
}

type KafkaBroker struct {
	URL string `mapstructure:"url"`
}

type KafkaTopic struct {
	PaymentNotices string `mapstructure:"payment-notices"`
}

type KafkaReader struct {
	GroupID string `mapstructure:"group-id"`
}

type Kafka struct {
	Writer KafkaWriter `mapstructure:"writer"`
	Broker KafkaBroker `mapstructure:"broker"`
	Topic  KafkaTopic  `mapstructure:"topic"`
	Reader KafkaReader `mapstructure:"reader"`
}

// Webpay holds the purchase token settings shared with the payment processor.
type Webpay struct {
	Key              string `mapstructure:"key"`
	Secret           string `mapstructure:"secret"`
	Aud              string `mapstructure:"aud"`
	Typ              string `mapstructure:"typ"`
	PostbackTyp      string `mapstructure:"postback-typ"`
	ChargebackTyp    string `mapstructure:"chargeback-typ"`
	SigningServerURL string `mapstructure:"signing-server-url"`
	SigningTimeoutMs int    `mapstructure:"signing-timeout-ms"`
}

type Site struct {
	URL       string `mapstructure:"url"`
	Domain    string `mapstructure:"domain"`
	StaticURL string `mapstructure:"static-url"`
	IconSizes []int  `mapstructure:"icon-sizes"`
}

type Server struct {
	Port string `mapstructure:"port"`
}

type Metrics struct {
	URL          string `mapstructure:"url"`
	IntervalMs   int    `mapstructure:"interval-ms"`
	CommonLabels string `mapstructure:"common-labels"`
}

type Logs struct {
	URL   string `mapstructure:"url"`
	Level string `mapstructure:"level"`
}

type Config struct {
	Database Database `mapstructure:"database"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Webpay   Webpay   `mapstructure:"webpay"`
	Site     Site     `mapstructure:"site"`
	Server   Server   `mapstructure:"server"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Logs     Logs     `mapstructure:"logs"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.ssl-mode", "disable")
	v.SetDefault("kafka.writer.batch-size", 100)
	v.SetDefault("kafka.writer.batch-timeout-ms", 100)
	v.SetDefault("kafka.topic.payment-notices", "payment-notices")
	v.SetDefault("kafka.reader.group-id", "webpay-service")
	v.SetDefault("webpay.typ", "mozilla/payments/pay/v1")
	v.SetDefault("webpay.postback-typ", "mozilla/payments/pay/postback/v1")
	v.SetDefault("webpay.chargeback-typ", "mozilla/payments/pay/chargeback/v1")
	v.SetDefault("webpay.signing-timeout-ms", 10_000)
	v.SetDefault("site.domain", "marketplace-dev")
	v.SetDefault("site.icon-sizes", []int{16, 32, 48, 64, 128})
	v.SetDefault("server.port", "8080")
	v.SetDefault("metrics.interval-ms", 10_000)
	v.SetDefault("logs.level", "info")
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func MustLoadConfig(path string) *Config {
	config, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return config
}

// Validate checks the settings without which no purchase token can be issued.
func (c *Config) Validate() error {
	switch {
	case c.Webpay.Key == "":
		return errors.New("webpay.key is required")
	case c.Webpay.Aud == "":
		return errors.New("webpay.aud is required")
	case c.Webpay.Typ == "":
		return errors.New("webpay.typ is required")
	case c.Webpay.Secret == "":
		// notices from the processor are always verified locally, even with a signing server
		return errors.New("webpay.secret is required")
	case c.Site.URL == "":
		return errors.New("site.url is required")
	}
	return nil
}
