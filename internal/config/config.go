package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the run configuration. Values come from an optional config
// file with environment variables taking precedence.
type Config struct {
	ProductsFile  string `mapstructure:"products-file"`
	SalesFile     string `mapstructure:"sales-file"`
	CustomersFile string `mapstructure:"customers-file"`

	DatabaseDSN string `mapstructure:"database-dsn"`

	APIURL         string `mapstructure:"api-url"`
	APIPageSize    int    `mapstructure:"api-page-size"`
	APIMaxAttempts int    `mapstructure:"api-max-attempts"`

	StateDir                 string `mapstructure:"state-dir"`
	BuyerWindowDays          int    `mapstructure:"buyer-window-days"`
	DropUnknownCustomerSales bool   `mapstructure:"drop-unknown-customer-sales"`

	KafkaBootstrap string `mapstructure:"kafka-bootstrap"`
	ManifestTopic  string `mapstructure:"manifest-topic"`

	MetricsAddr string `mapstructure:"metrics-addr"`
	LogMode     string `mapstructure:"log-mode"`
}

// Load reads configuration from path (optional) and the environment.
// Environment keys use underscores: PRODUCTS_FILE, DATABASE_DSN, API_URL...
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("products-file", "products.csv")
	v.SetDefault("sales-file", "sales.csv")
	v.SetDefault("customers-file", "customers.csv")
	v.SetDefault("api-page-size", 50)
	v.SetDefault("api-max-attempts", 3)
	v.SetDefault("state-dir", "./state")
	v.SetDefault("buyer-window-days", 0)
	v.SetDefault("manifest-topic", "etl.manifest")
	v.SetDefault("log-mode", "dev")

	// Keys without a meaningful default still need registering, otherwise
	// Unmarshal never sees their env values.
	v.SetDefault("database-dsn", "")
	v.SetDefault("api-url", "")
	v.SetDefault("drop-unknown-customer-sales", false)
	v.SetDefault("kafka-bootstrap", "")
	v.SetDefault("metrics-addr", "")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}
	if cfg.APIPageSize <= 0 {
		return nil, fmt.Errorf("api-page-size must be positive, got %d", cfg.APIPageSize)
	}
	if cfg.APIMaxAttempts <= 0 {
		return nil, fmt.Errorf("api-max-attempts must be positive, got %d", cfg.APIMaxAttempts)
	}
	return &cfg, nil
}
