package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/brigadepos/edgelink/internal/api/http"
	"github.com/brigadepos/edgelink/internal/auth"
)

type Config struct {
	Log       LogConfig
	Http      http.Config
	Jwt       auth.JWTConfig
	Storage   StorageConfig
	Operator  OperatorConfig
	Heartbeat HeartbeatConfig
	Store     StoreConfig
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type OperatorConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type HeartbeatConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	CloudBaseUrl    string `mapstructure:"cloud_base_url"`
}

// StoreConfig carries the non-secret hints shown to the cloud operator
// during pairing confirmation.
type StoreConfig struct {
	Name     string `mapstructure:"name"`
	Address  string `mapstructure:"address"`
	Timezone string `mapstructure:"timezone"`
}

var config Config

func InitConfig() {
	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/edgelink-onsite")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	if err := viper.Unmarshal(&config); err != nil {
		panic(err)
	}

	// Initialize logger with configured log level
	initLogger(config.Log.Level)

	// Pretty print config as JSON (only at DEBUG level)
	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		configJSON, err := json.MarshalIndent(config, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}
