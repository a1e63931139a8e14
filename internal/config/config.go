// Package config loads the bridge player's configuration via viper,
// adapted from the teacher's config loader: same SetDefault/AddConfigPath/
// AutomaticEnv shape, trimmed to the sections a decoder-bridge-driven
// player actually needs (audio output, replay gain, local storage,
// network fetch tuning) and stripped of the teacher's UI/search/download
// sections, which have no component in this engine.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/outpost-audio/bridge/internal/platform"
)

// Config is the root configuration object, unmarshalled from YAML/env
// by viper.
type Config struct {
	Debug bool `mapstructure:"debug"`

	Audio struct {
		SampleRate      int     `mapstructure:"sample_rate"`
		Channels        int     `mapstructure:"channels"`
		BufferSize      int     `mapstructure:"buffer_size"`
		DefaultVolume   float64 `mapstructure:"default_volume"`
		LowLatencyMode  bool    `mapstructure:"low_latency_mode"`
		PlatformOptimal bool    `mapstructure:"platform_optimal"`
	} `mapstructure:"audio"`

	ReplayGain struct {
		Mode          string  `mapstructure:"mode"` // "off", "track", "album"
		Preamp        float64 `mapstructure:"preamp_db"`
		MissingPreamp float64 `mapstructure:"missing_preamp_db"`
		Limit         bool    `mapstructure:"limit"`
	} `mapstructure:"replaygain"`

	Storage struct {
		DatabasePath     string `mapstructure:"database_path"`
		PlaylistStateDir string `mapstructure:"playlist_state_dir"`
		EnableWAL        bool   `mapstructure:"enable_wal"`
	} `mapstructure:"storage"`

	Network struct {
		Timeout           int `mapstructure:"timeout_seconds"`
		Retries           int `mapstructure:"retries"`
		RequestsPerSecond int `mapstructure:"requests_per_second"`
		BurstSize         int `mapstructure:"burst_size"`
	} `mapstructure:"network"`
}

// Load reads configuration from configPath (if set) or the platform
// config directory / ./configs / cwd, falling back entirely to
// defaults when no file is found.
func Load(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		configDir, err := platform.GetConfigDir()
		if err != nil {
			return nil, err
		}
		viper.AddConfigPath(configDir)
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("BRIDGEPLAYER")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, err
	}

	optimizeForPlatform(&cfg)

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("debug", false)

	dataDir, _ := platform.GetDataDir()

	viper.SetDefault("audio.sample_rate", 44100)
	viper.SetDefault("audio.channels", 2)
	viper.SetDefault("audio.buffer_size", getDefaultBufferSize())
	viper.SetDefault("audio.default_volume", 0.7)
	viper.SetDefault("audio.low_latency_mode", false)
	viper.SetDefault("audio.platform_optimal", true)

	viper.SetDefault("replaygain.mode", "off")
	viper.SetDefault("replaygain.preamp_db", 0.0)
	viper.SetDefault("replaygain.missing_preamp_db", 0.0)
	viper.SetDefault("replaygain.limit", true)

	viper.SetDefault("storage.database_path", filepath.Join(dataDir, "diagnostics.db"))
	viper.SetDefault("storage.playlist_state_dir", dataDir)
	viper.SetDefault("storage.enable_wal", true)

	viper.SetDefault("network.timeout_seconds", 30)
	viper.SetDefault("network.retries", 3)
	viper.SetDefault("network.requests_per_second", 100)
	viper.SetDefault("network.burst_size", 10)
}

func getDefaultBufferSize() int {
	switch runtime.GOOS {
	case "linux":
		return 16384
	case "windows", "darwin":
		return 8192
	default:
		return 16384
	}
}

func optimizeForPlatform(cfg *Config) {
	if !cfg.Audio.PlatformOptimal {
		return
	}

	switch runtime.GOOS {
	case "linux":
		if cfg.Audio.BufferSize < 8192 {
			cfg.Audio.BufferSize = 16384
		}
	case "windows", "darwin":
		if cfg.Audio.LowLatencyMode {
			cfg.Audio.BufferSize = 4096
		}
	}
}

func ensureDirectories(cfg *Config) error {
	dirs := []string{
		filepath.Dir(cfg.Storage.DatabasePath),
		cfg.Storage.PlaylistStateDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}

// Save persists the current viper state back to the platform config
// directory.
func (c *Config) Save() error {
	configDir, err := platform.GetConfigDir()
	if err != nil {
		return err
	}

	configFile := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configFile)
}
