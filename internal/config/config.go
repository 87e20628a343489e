// Package config loads go-wayfinder settings from defaults, an optional
// YAML file, a .env file and WAYFINDER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/teslashibe/go-wayfinder/internal/httpc"
	"github.com/teslashibe/go-wayfinder/pkg/camera"
	"github.com/teslashibe/go-wayfinder/pkg/framegate"
	"github.com/teslashibe/go-wayfinder/pkg/netcheck"
	"github.com/teslashibe/go-wayfinder/pkg/pipeline"
	"github.com/teslashibe/go-wayfinder/pkg/speech"
)

// EnvPrefix prefixes every environment override, e.g. WAYFINDER_MAX_FPS.
const EnvPrefix = "WAYFINDER"

// Known provider names.
const (
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderElevenLabs = "elevenlabs"
)

// Config is the full application configuration.
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// MaxFPS bounds how often frames are admitted for analysis.
	MaxFPS float64 `mapstructure:"max_fps"`

	// AutoStart starts the pipeline without waiting for the dashboard.
	AutoStart bool `mapstructure:"auto_start"`

	Camera    camera.Config   `mapstructure:"camera"`
	Vision    VisionConfig    `mapstructure:"vision"`
	TTS       TTSConfig       `mapstructure:"tts"`
	Speech    SpeechConfig    `mapstructure:"speech"`
	Pipeline  pipeline.Config `mapstructure:"pipeline"`
	Network   NetworkConfig   `mapstructure:"network"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// VisionConfig selects and tunes the vision providers. Providers are tried
// in order; API keys always come from the environment.
type VisionConfig struct {
	Providers        []string      `mapstructure:"providers"`
	GeminiModel      string        `mapstructure:"gemini_model"`
	OpenAIModel      string        `mapstructure:"openai_model"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	ReadWriteTimeout time.Duration `mapstructure:"read_write_timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
}

// TTSConfig selects the speech synthesis providers and the audio player.
// An empty provider list disables speech.
type TTSConfig struct {
	Providers       []string `mapstructure:"providers"`
	OpenAIVoice     string   `mapstructure:"openai_voice"`
	ElevenLabsVoice string   `mapstructure:"elevenlabs_voice"`
	Speed           float64  `mapstructure:"speed"`
	PlayerCommand   string   `mapstructure:"player_command"`
}

// SpeechConfig tunes the speech gate.
type SpeechConfig struct {
	MaxUtterance time.Duration `mapstructure:"max_utterance"`
}

// NetworkConfig tunes the connectivity probe.
type NetworkConfig struct {
	ProbeAddress string        `mapstructure:"probe_address"`
	Timeout      time.Duration `mapstructure:"timeout"`
	TTL          time.Duration `mapstructure:"ttl"`
}

// DashboardConfig controls the local web dashboard.
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    string `mapstructure:"port"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		MaxFPS:    framegate.DefaultMaxFPS,
		AutoStart: true,
		Camera:    camera.DefaultConfig(),
		Vision: VisionConfig{
			Providers:        []string{ProviderGemini},
			GeminiModel:      "gemini-2.5-flash",
			OpenAIModel:      "gpt-4o-mini",
			ConnectTimeout:   httpc.DefaultConnectTimeout,
			ReadWriteTimeout: httpc.DefaultReadWriteTimeout,
			MaxRetries:       1,
		},
		TTS: TTSConfig{
			Providers:       []string{ProviderOpenAI},
			OpenAIVoice:     "nova",
			ElevenLabsVoice: "21m00Tcm4TlvDq8ikWAM",
			Speed:           1.0,
			PlayerCommand:   "aplay -q -f S16_LE -r {rate} -c {channels} -",
		},
		Speech: SpeechConfig{
			MaxUtterance: speech.DefaultMaxUtterance,
		},
		Pipeline: pipeline.DefaultConfig(),
		Network: NetworkConfig{
			ProbeAddress: netcheck.DefaultAddress,
			Timeout:      netcheck.DefaultTimeout,
			TTL:          netcheck.DefaultTTL,
		},
		Dashboard: DashboardConfig{
			Enabled: true,
			Port:    "8080",
		},
	}
}

// Load reads configuration. path may be empty, in which case only defaults,
// .env and the environment apply.
func Load(path string) (Config, error) {
	// A missing .env file is normal.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("max_fps", d.MaxFPS)
	v.SetDefault("auto_start", d.AutoStart)

	v.SetDefault("camera.source", d.Camera.Source)
	v.SetDefault("camera.device", d.Camera.Device)
	v.SetDefault("camera.url", d.Camera.URL)
	v.SetDefault("camera.producer", d.Camera.Producer)
	v.SetDefault("camera.dir", d.Camera.Dir)
	v.SetDefault("camera.loop", d.Camera.Loop)
	v.SetDefault("camera.width", d.Camera.Width)
	v.SetDefault("camera.height", d.Camera.Height)
	v.SetDefault("camera.framerate", d.Camera.Framerate)
	v.SetDefault("camera.quality", d.Camera.Quality)

	v.SetDefault("vision.providers", d.Vision.Providers)
	v.SetDefault("vision.gemini_model", d.Vision.GeminiModel)
	v.SetDefault("vision.openai_model", d.Vision.OpenAIModel)
	v.SetDefault("vision.connect_timeout", d.Vision.ConnectTimeout)
	v.SetDefault("vision.read_write_timeout", d.Vision.ReadWriteTimeout)
	v.SetDefault("vision.max_retries", d.Vision.MaxRetries)

	v.SetDefault("tts.providers", d.TTS.Providers)
	v.SetDefault("tts.openai_voice", d.TTS.OpenAIVoice)
	v.SetDefault("tts.elevenlabs_voice", d.TTS.ElevenLabsVoice)
	v.SetDefault("tts.speed", d.TTS.Speed)
	v.SetDefault("tts.player_command", d.TTS.PlayerCommand)

	v.SetDefault("speech.max_utterance", d.Speech.MaxUtterance)

	v.SetDefault("pipeline.dedupe_window", d.Pipeline.DedupeWindow)
	v.SetDefault("pipeline.analysis_timeout", d.Pipeline.AnalysisTimeout)

	v.SetDefault("network.probe_address", d.Network.ProbeAddress)
	v.SetDefault("network.timeout", d.Network.Timeout)
	v.SetDefault("network.ttl", d.Network.TTL)

	v.SetDefault("dashboard.enabled", d.Dashboard.Enabled)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
}

func (c *Config) normalize() {
	c.Vision.Providers = normalizeNames(c.Vision.Providers)
	c.TTS.Providers = normalizeNames(c.TTS.Providers)
}

func normalizeNames(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate reports the first set of problems found in c.
func (c *Config) Validate() error {
	var errs []error

	if c.MaxFPS < 0 {
		errs = append(errs, errors.New("max_fps must not be negative"))
	}
	for _, msg := range c.Camera.Validate() {
		errs = append(errs, fmt.Errorf("camera: %s", msg))
	}

	if len(c.Vision.Providers) == 0 {
		errs = append(errs, errors.New("vision.providers is required"))
	}
	for _, p := range c.Vision.Providers {
		if !slices.Contains([]string{ProviderGemini, ProviderOpenAI}, p) {
			errs = append(errs, fmt.Errorf("vision.providers: unknown provider %q", p))
		}
	}
	for _, p := range c.TTS.Providers {
		if !slices.Contains([]string{ProviderOpenAI, ProviderElevenLabs}, p) {
			errs = append(errs, fmt.Errorf("tts.providers: unknown provider %q", p))
		}
	}
	if c.TTS.Speed < 0.25 || c.TTS.Speed > 4.0 {
		errs = append(errs, errors.New("tts.speed must be between 0.25 and 4.0"))
	}
	if c.Dashboard.Enabled && strings.TrimSpace(c.Dashboard.Port) == "" {
		errs = append(errs, errors.New("dashboard.port is required when the dashboard is enabled"))
	}

	return errors.Join(errs...)
}
