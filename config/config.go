// rawwebapi/config/config.go
package config

import (
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	ConverterBin       string        `mapstructure:"CONVERTER_BIN"`
	ConverterArgs      string        `mapstructure:"CONVERTER_ARGS"`
	ConverterTimeout   time.Duration `mapstructure:"CONVERTER_TIMEOUT"`
	InstallDir         string        `mapstructure:"INSTALL_DIR"`
	InstallURL         string        `mapstructure:"INSTALL_URL"`
	DownloadTimeout    time.Duration `mapstructure:"DOWNLOAD_TIMEOUT"`
	StagingDir         string        `mapstructure:"STAGING_DIR"`
	UniqueStagingNames bool          `mapstructure:"UNIQUE_STAGING_NAMES"`
	MaxInputSize       int64         `mapstructure:"MAX_INPUT_SIZE"`
	OutputLifetime     time.Duration `mapstructure:"OUTPUT_LOCAL_LIFETIME"`
	ThrottleFreeDisk   int64         `mapstructure:"THROTTLE_FREEDISK"`
	ThrottleFreeMem    int64         `mapstructure:"THROTTLE_FREEMEM"`
	AuthEnable         bool          `mapstructure:"AUTH_ENABLE"`
	AuthKey            string        `mapstructure:"AUTH_KEY"`
	Port               string        `mapstructure:"PORT"`
	BaseURL            string        `mapstructure:"BASE"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	LogFormat          string        `mapstructure:"LOG_FORMAT"`
}

// OutputDir is where converted files land, nested under the staging dir.
func (c *Config) OutputDir() string {
	return filepath.Join(c.StagingDir, "converted")
}

// stringToDurationHookFunc parses Go duration strings such as "10m".
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc parses human-readable sizes such as "2GB".
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(data.(string))); err != nil {
			// Not a size string, let the weak decoder have a go.
			return data, nil
		}
		return int64(size.Bytes()), nil
	}
}

func Load() (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	vp := viper.New()

	vp.SetDefault("CONVERTER_BIN", "ThermoRawFileParser")
	vp.SetDefault("CONVERTER_ARGS", "")
	vp.SetDefault("CONVERTER_TIMEOUT", "0s")
	vp.SetDefault("INSTALL_DIR", "ThermoRawFileParser_bin")
	vp.SetDefault("INSTALL_URL", "")
	vp.SetDefault("DOWNLOAD_TIMEOUT", "10m")
	vp.SetDefault("STAGING_DIR", "temp_files")
	vp.SetDefault("UNIQUE_STAGING_NAMES", false)
	vp.SetDefault("MAX_INPUT_SIZE", "2GB")
	vp.SetDefault("OUTPUT_LOCAL_LIFETIME", "0s")
	vp.SetDefault("THROTTLE_FREEDISK", "0")
	vp.SetDefault("THROTTLE_FREEMEM", "0")
	vp.SetDefault("AUTH_ENABLE", false)
	vp.SetDefault("AUTH_KEY", "123456")
	vp.SetDefault("PORT", "8080")
	vp.SetDefault("BASE", "")
	vp.SetDefault("LOG_LEVEL", "info")
	vp.SetDefault("LOG_FORMAT", "text")

	vp.SetConfigName("rawwebapi_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/rawwebapi/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	vp.SetEnvPrefix("RAWWEBAPI")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	// Hooks run in order; the duration hook must see strings before the size hook.
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
