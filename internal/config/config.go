package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`
	LogLevel   string `mapstructure:"log_level"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	RateBurst  int           `mapstructure:"rate_burst"`

	GraceWindow      time.Duration `mapstructure:"grace_window"`
	TokenTTL         time.Duration `mapstructure:"token_ttl"`
	TokenRetention   time.Duration `mapstructure:"token_retention"`
	PresenceInterval time.Duration `mapstructure:"presence_interval"`
	MatchMediaPrefs  bool          `mapstructure:"match_media_prefs"`
	SearchTimeout    time.Duration `mapstructure:"search_timeout"`

	TokenStore string      `mapstructure:"token_store"`
	Redis      RedisConfig `mapstructure:"redis"`
	ICEServers []ICEServer `mapstructure:"ice_servers"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

// WebRTCICEServers converts the configured servers into the form browsers
// expect in RTCConfiguration.iceServers.
func (c *Config) WebRTCICEServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, srv)
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")

	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("rate_limit", 50)
	v.SetDefault("rate_burst", 100)

	v.SetDefault("grace_window", "10s")
	v.SetDefault("token_ttl", "60s")
	v.SetDefault("token_retention", "10m")
	v.SetDefault("presence_interval", "2s")
	v.SetDefault("match_media_prefs", false)
	v.SetDefault("search_timeout", "0s")

	v.SetDefault("token_store", "memory")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "roulette:tokens:")
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
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
	v.SetEnvPrefix("ROULETTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("token_store", cfg.TokenStore).
		Dur("grace_window", cfg.GraceWindow).
		Dur("token_ttl", cfg.TokenTTL).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.GraceWindow <= 0 {
		return fmt.Errorf("grace_window must be positive, got %s", c.GraceWindow)
	}
	if c.TokenTTL < c.GraceWindow {
		return fmt.Errorf("token_ttl (%s) must not be shorter than grace_window (%s)", c.TokenTTL, c.GraceWindow)
	}
	if c.PingPeriod >= c.PongWait {
		return fmt.Errorf("ping_period (%s) must be shorter than pong_wait (%s)", c.PingPeriod, c.PongWait)
	}
	switch c.TokenStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown token_store %q", c.TokenStore)
	}
	return nil
}
