// Package config loads the node's TOML configuration file, mirroring
// spec.md's table layout. Grounded on the teacher's pkg/config loader
// (struct-of-structs + viper.Unmarshal) but switched to TOML.
package config

import (
	"github.com/shog-ai/shoggoth/internal/errs"
	"github.com/spf13/viper"
)

// Config is the unified configuration for a Shoggoth node.
type Config struct {
	Network struct {
		Host                string `mapstructure:"host"`
		Port                int    `mapstructure:"port"`
		PublicHost          string `mapstructure:"public_host"`
		AllowPrivateNetwork bool   `mapstructure:"allow_private_network"`
	} `mapstructure:"network"`

	API struct {
		Enable               bool   `mapstructure:"enable"`
		RateLimiterRequests  int    `mapstructure:"rate_limiter_requests"`
		RateLimiterDuration  int    `mapstructure:"rate_limiter_duration"`
	} `mapstructure:"api"`

	Peers struct {
		BootstrapPeers []string `mapstructure:"bootstrap_peers"`
	} `mapstructure:"peers"`

	Storage struct {
		MaxProfileSize float64 `mapstructure:"max_profile_size"` // MB
		Limit          float64 `mapstructure:"limit"`            // GB
	} `mapstructure:"storage"`

	Explorer struct {
		Enable bool `mapstructure:"enable"`
	} `mapstructure:"explorer"`

	DB struct {
		Host       string `mapstructure:"host"`
		Port       int    `mapstructure:"port"`
		BinaryPath string `mapstructure:"binary_path"` // defaults to <runtime>/bin/shog-store
	} `mapstructure:"db"`

	DHT struct {
		EnableUpdater    bool `mapstructure:"enable_updater"`
		UpdaterFrequency int  `mapstructure:"updater_frequency"` // seconds
	} `mapstructure:"dht"`

	Pins struct {
		AllowPublish        bool `mapstructure:"allow_publish"`
		EnableDownloader    bool `mapstructure:"enable_downloader"`
		DownloaderFrequency int  `mapstructure:"downloader_frequency"`
		EnableUpdater       bool `mapstructure:"enable_updater"`
		UpdaterFrequency    int  `mapstructure:"updater_frequency"`
	} `mapstructure:"pins"`

	Update struct {
		Enable bool   `mapstructure:"enable"`
		ID     string `mapstructure:"id"`
	} `mapstructure:"update"`
}

// Default returns a Config populated with the reference implementation's
// conservative defaults, to be overridden by whatever the TOML file sets.
func Default() Config {
	var c Config
	c.Network.Host = "0.0.0.0"
	c.Network.Port = 7513
	c.API.Enable = true
	c.API.RateLimiterRequests = 100
	c.API.RateLimiterDuration = 60
	c.Storage.MaxProfileSize = 500  // MB
	c.Storage.Limit = 20            // GB
	c.DB.Host = "127.0.0.1"
	c.DB.Port = 6380
	c.DHT.EnableUpdater = true
	c.DHT.UpdaterFrequency = 60
	c.Pins.AllowPublish = true
	c.Pins.EnableDownloader = true
	c.Pins.DownloaderFrequency = 120
	c.Pins.EnableUpdater = true
	c.Pins.UpdaterFrequency = 300
	return c
}

// Load reads the TOML file at path and merges it onto the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, errs.ConfigError("read config file "+path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.ConfigError("unmarshal config file "+path, err)
	}
	return &cfg, nil
}
