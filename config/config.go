package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	Relay    RelayConfig    `mapstructure:"relay"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Database DatabaseConfig `mapstructure:"database"`
	Game     GameConfig     `mapstructure:"game"`
}

type RelayConfig struct {
	HTTPAddress string `mapstructure:"http_address"`
	RPCAddress  string `mapstructure:"rpc_address"`
}

type MonitorConfig struct {
	Address string `mapstructure:"address"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// GameConfig carries the table-level tuning knobs. Zero values fall back
// to the defaults below so a minimal config file still works.
type GameConfig struct {
	StartingCoins int `mapstructure:"starting_coins"`
	MinStake      int `mapstructure:"min_stake"`
	MaxStake      int `mapstructure:"max_stake"`
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("game.starting_coins", 100)
	viper.SetDefault("game.min_stake", 10)
	viper.SetDefault("game.max_stake", 500)

	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
