/*
Package config loads server configuration from file and environment.

Lookup order: defaults, then the optional config file, then APP_*
environment variables (APP_HTTP_ADDR, APP_DB_PATH, ...).
*/
package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Env string `mapstructure:"env"`
	} `mapstructure:"app"`

	HTTP struct {
		Addr            string `mapstructure:"addr"`
		ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // seconds
	} `mapstructure:"http"`

	DB struct {
		Path string `mapstructure:"path"` // ":memory:" for ephemeral
	} `mapstructure:"db"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"` // json or text
	} `mapstructure:"log"`
}

// Load reads configuration. An empty path skips the file and uses
// defaults plus environment only; a named file that is missing is an
// error.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("app.env", "development")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 30)
	v.SetDefault("db.path", "inventory.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return c, err
			}
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}
