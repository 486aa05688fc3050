package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Server     struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	// Program holds the incentive program parameters. They are read once at
	// startup; changing them requires a restart followed by a full re-sync
	// sweep so stage awards converge to the new targets.
	Program struct {
		LaunchDate                 string  `mapstructure:"LAUNCH_DATE"`
		PoolDays                   int     `mapstructure:"POOL_DAYS"`
		PoolRatePerUnit            float64 `mapstructure:"POOL_RATE_PER_UNIT"`
		NewBuyerBonus              float64 `mapstructure:"NEW_BUYER_BONUS"`
		AvgWindowMonths            int     `mapstructure:"AVG_WINDOW_MONTHS"`
		AvgUpliftPct               int     `mapstructure:"AVG_UPLIFT_PCT"`
		AvgIgnoreInitialZeroMonths int     `mapstructure:"AVG_IGNORE_INITIAL_ZERO_MONTHS"`
		SweepHour                  int     `mapstructure:"SWEEP_HOUR"`
	} `mapstructure:"PROGRAM"`
}

// LaunchDateValue parses Program.LaunchDate, falling back to the zero time
// so an unset launch date never suppresses awards.
func (c *Config) LaunchDateValue() time.Time {
	if c.Program.LaunchDate == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", c.Program.LaunchDate)
	if err != nil {
		zap.L().Warn("invalid PROGRAM.LAUNCH_DATE, ignoring", zap.String("value", c.Program.LaunchDate))
		return time.Time{}
	}
	return t
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}

	return &cfg
}
