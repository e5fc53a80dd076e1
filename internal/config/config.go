package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Mode       string `mapstructure:"mode"`
	ListenAddr string `mapstructure:"listen_addr"`
	LogLevel   string `mapstructure:"log_level"`

	APIBaseURL    string        `mapstructure:"api_base_url"`
	RealtimeURL   string        `mapstructure:"realtime_url"`
	RealtimeModel string        `mapstructure:"realtime_model"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	STUNServers   []string      `mapstructure:"stun_servers"`

	AuthToken string `mapstructure:"auth_token"`
	TokenPath string `mapstructure:"token_path"`

	StoryID   string `mapstructure:"story_id"`
	StoryType string `mapstructure:"story_type"`

	MicPath     string `mapstructure:"mic_path"`
	SpeakerPath string `mapstructure:"speaker_path"`
	Simulator   bool   `mapstructure:"simulator"`

	TranscriptionModel string        `mapstructure:"transcription_model"`
	VADThreshold       float64       `mapstructure:"vad_threshold"`
	VADPrefixPadding   time.Duration `mapstructure:"vad_prefix_padding"`
	VADSilence         time.Duration `mapstructure:"vad_silence"`

	PingPeriod time.Duration `mapstructure:"ping_period"`
}

// Load reads configuration from a .env file (if present), an optional YAML
// file named by SARATHI_CONFIG, and SARATHI_* environment variables.
// Environment variables take precedence over file values.
func Load() (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SARATHI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if file := os.Getenv("SARATHI_CONFIG"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// AutomaticEnv yields comma separated strings for slices.
	cfg.STUNServers = splitList(v.GetStringSlice("stun_servers"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("listen_addr", "127.0.0.1:8787")
	v.SetDefault("log_level", "info")

	v.SetDefault("api_base_url", "https://api.divinesarathi.in")
	v.SetDefault("realtime_url", "https://api.openai.com/v1/realtime/calls")
	v.SetDefault("realtime_model", "gpt-realtime")
	v.SetDefault("http_timeout", "10s")
	v.SetDefault("stun_servers", []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
	})

	v.SetDefault("auth_token", "")
	v.SetDefault("token_path", defaultTokenPath())

	v.SetDefault("story_id", "")
	v.SetDefault("story_type", "")

	v.SetDefault("mic_path", "mic.ogg")
	v.SetDefault("speaker_path", "speaker.ogg")
	v.SetDefault("simulator", false)

	v.SetDefault("transcription_model", "whisper-1")
	v.SetDefault("vad_threshold", 0.5)
	v.SetDefault("vad_prefix_padding", "300ms")
	v.SetDefault("vad_silence", "200ms")

	v.SetDefault("ping_period", "30s")
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("SARATHI_LISTEN_ADDR must not be empty")
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("SARATHI_API_BASE_URL must not be empty")
	}
	if c.RealtimeURL == "" {
		return fmt.Errorf("SARATHI_REALTIME_URL must not be empty")
	}
	if c.VADThreshold < 0 || c.VADThreshold > 1 {
		return fmt.Errorf("SARATHI_VAD_THRESHOLD must be within [0,1], got %v", c.VADThreshold)
	}
	if c.PingPeriod <= 0 {
		return fmt.Errorf("SARATHI_PING_PERIOD must be positive")
	}
	return nil
}

func defaultTokenPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".sarathi-token"
	}
	return dir + "/sarathi/token"
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
