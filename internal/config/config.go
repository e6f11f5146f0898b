package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Host         string        `mapstructure:"host"`
	HTTPPort     int           `mapstructure:"http_port"`
	WSPort       int           `mapstructure:"ws_port"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ICEURLs      []string      `mapstructure:"ice_urls"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("http_port", 8080)
	v.SetDefault("ws_port", 8081)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("ice_urls", []string{"stun:stun.l.google.com:19302"})

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// ICEServers maps the configured URLs into the shape WebRTC clients
// expect from GET /webrtc/config. STUN-only by default; TURN entries
// would carry credentials through the same list.
func (c *Config) ICEServers() []webrtc.ICEServer {
	if len(c.ICEURLs) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: c.ICEURLs}}
}

func (c *Config) AdminAddr() string { return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort) }
func (c *Config) WSAddr() string    { return fmt.Sprintf("%s:%d", c.Host, c.WSPort) }
