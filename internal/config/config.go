package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// QualityPreset is one entry of the closed video-quality enumeration.
type QualityPreset struct {
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	VideoBitrate string `yaml:"videoBitrate"`
}

type APIConfig struct {
	Port          string `yaml:"port"`
	MaxJobs       int    `yaml:"maxJobs"`
	MaxTextLength int    `yaml:"maxTextLength"`
	JobTimeoutSec int    `yaml:"jobTimeoutSec"` // 0 = no per-job timeout
}

type TTSConfig struct {
	ServerURL  string  `yaml:"serverURL"`
	Language   string  `yaml:"language"`
	Voice      string  `yaml:"voice"`
	SpeechRate float64 `yaml:"speechRate"`
}

type WhisperConfig struct {
	Language string `yaml:"language"`
}

type VideoConfig struct {
	HorizontalDir     string                   `yaml:"horizontalDir"`
	VerticalDir       string                   `yaml:"verticalDir"`
	MaxLengthPerVideo float64                  `yaml:"maxLengthPerVideo"` // seconds contributed per segment
	AllowedExtensions []string                 `yaml:"allowedExtensions"`
	FPS               int                      `yaml:"fps"`
	AvailableTypes    []string                 `yaml:"availableTypes"`
	Qualities         map[string]QualityPreset `yaml:"qualities"`
	DefaultType       string                   `yaml:"defaultType"`
	DefaultQuality    string                   `yaml:"defaultQuality"`
}

type AudioConfig struct {
	AllowedExtensions []string `yaml:"allowedExtensions"`
}

type FFmpegConfig struct {
	VideoCodec   string `yaml:"videoCodec"`
	VideoFormat  string `yaml:"videoFormat"`
	PixelFormat  string `yaml:"pixelFormat"`
	AudioBitrate string `yaml:"audioBitrate"`

	// Audio utility settings (normalization and silence detection).
	AudioCodec          string  `yaml:"audioCodec"`
	AudioFormat         string  `yaml:"audioFormat"`
	SampleRate          int     `yaml:"sampleRate"`
	Channels            int     `yaml:"channels"`
	NormalizationFilter string  `yaml:"normalizationFilter"`
	SilenceThreshold    float64 `yaml:"silenceThreshold"` // linear amplitude, not dB
}

type CaptionsConfig struct {
	PerLine  int    `yaml:"perLine"`
	FontName string `yaml:"fontName"`
}

type Config struct {
	StorePath string         `yaml:"storePath"`
	API       APIConfig      `yaml:"api"`
	TTS       TTSConfig      `yaml:"tts"`
	Whisper   WhisperConfig  `yaml:"whisper"`
	Video     VideoConfig    `yaml:"video"`
	Audio     AudioConfig    `yaml:"audio"`
	FFmpeg    FFmpegConfig   `yaml:"ffmpeg"`
	Captions  CaptionsConfig `yaml:"captions"`

	// Env-only settings (secrets and deployment concerns).
	OpenAIKey          string `yaml:"-"`
	BackendAPIKey      string `yaml:"-"`
	CorsAllowedOrigins string `yaml:"-"`
}

// Default returns the baked-in configuration, matching the shipped
// configs.yaml.
func Default() *Config {
	return &Config{
		StorePath: "./jobs",
		API: APIConfig{
			Port:          "8080",
			MaxJobs:       1,
			MaxTextLength: 6500,
			JobTimeoutSec: 0,
		},
		TTS: TTSConfig{
			ServerURL:  "http://localhost:8880",
			Language:   "en-us",
			Voice:      "af_nova",
			SpeechRate: 1.0,
		},
		Whisper: WhisperConfig{
			Language: "en",
		},
		Video: VideoConfig{
			HorizontalDir:     "./assets/videos/horizontal",
			VerticalDir:       "./assets/videos/vertical",
			MaxLengthPerVideo: 5,
			AllowedExtensions: []string{".mp4", ".avi", ".mov", ".mkv"},
			FPS:               30,
			AvailableTypes:    []string{"Horizontal", "Vertical"},
			Qualities: map[string]QualityPreset{
				"4K":    {Width: 3840, Height: 2160, VideoBitrate: "12000k"},
				"1080p": {Width: 1920, Height: 1080, VideoBitrate: "5000k"},
				"720p":  {Width: 1280, Height: 720, VideoBitrate: "2500k"},
				"480p":  {Width: 854, Height: 480, VideoBitrate: "1000k"},
			},
			DefaultType:    "Horizontal",
			DefaultQuality: "1080p",
		},
		Audio: AudioConfig{
			AllowedExtensions: []string{".wav", ".mp3", ".ogg", ".flac"},
		},
		FFmpeg: FFmpegConfig{
			VideoCodec:          "libx264",
			VideoFormat:         "mp4",
			PixelFormat:         "yuv420p",
			AudioBitrate:        "256k",
			AudioCodec:          "libmp3lame",
			AudioFormat:         "mp3",
			SampleRate:          44100,
			Channels:            2,
			NormalizationFilter: "loudnorm",
			SilenceThreshold:    0.01,
		},
		Captions: CaptionsConfig{
			PerLine:  4,
			FontName: "Barlow Condensed",
		},
	}
}

// Load builds the configuration in three layers: baked-in defaults,
// the YAML file (CONFIG_FILE, default ./configs.yaml, missing file is
// fine), then environment variables. A .env file is honored when
// present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	path := getEnv("CONFIG_FILE", "configs.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.API.Port = getEnv("API_PORT", c.API.Port)
	c.API.MaxJobs = getEnvInt("MAX_JOBS", c.API.MaxJobs)
	c.API.MaxTextLength = getEnvInt("MAX_TEXT_LENGTH", c.API.MaxTextLength)
	c.API.JobTimeoutSec = getEnvInt("JOB_TIMEOUT_SEC", c.API.JobTimeoutSec)
	c.StorePath = getEnv("STORE_PATH", c.StorePath)
	c.TTS.ServerURL = getEnv("TTS_SERVER_URL", c.TTS.ServerURL)
	c.OpenAIKey = getEnv("OPENAI_API_KEY", "")
	c.BackendAPIKey = getEnv("BACKEND_API_KEY", "")
	c.CorsAllowedOrigins = getEnv("CORS_ALLOWED_ORIGINS", "")
}

func (c *Config) validate() error {
	if c.API.MaxJobs < 1 {
		return fmt.Errorf("api.maxJobs must be at least 1, got %d", c.API.MaxJobs)
	}
	if c.API.MaxTextLength < 1 {
		return fmt.Errorf("api.maxTextLength must be positive, got %d", c.API.MaxTextLength)
	}
	if c.Video.MaxLengthPerVideo <= 0 {
		return fmt.Errorf("video.maxLengthPerVideo must be positive, got %v", c.Video.MaxLengthPerVideo)
	}
	if _, ok := c.Video.Qualities[c.Video.DefaultQuality]; !ok {
		return fmt.Errorf("video.defaultQuality %q is not in video.qualities", c.Video.DefaultQuality)
	}
	if c.FFmpeg.SilenceThreshold <= 0 {
		return fmt.Errorf("ffmpeg.silenceThreshold must be positive, got %v", c.FFmpeg.SilenceThreshold)
	}
	if !contains(c.Video.AvailableTypes, c.Video.DefaultType) {
		return fmt.Errorf("video.defaultType %q is not in video.availableTypes", c.Video.DefaultType)
	}
	return nil
}

// Resolution returns the output dimensions for a quality preset under
// the given video type. Vertical output swaps width and height.
func (c *Config) Resolution(quality, videoType string) (int, int, error) {
	preset, ok := c.Video.Qualities[quality]
	if !ok {
		return 0, 0, fmt.Errorf("unknown video quality %q", quality)
	}
	if videoType == "Vertical" {
		return preset.Height, preset.Width, nil
	}
	return preset.Width, preset.Height, nil
}

// QualityNames lists the configured quality presets.
func (c *Config) QualityNames() []string {
	names := make([]string, 0, len(c.Video.Qualities))
	for name := range c.Video.Qualities {
		names = append(names, name)
	}
	return names
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
