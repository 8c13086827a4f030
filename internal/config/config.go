package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Version is the release of the speakr daemon
const Version = "1.3.0"

// Speed bounds accepted by the synthesis services
const (
	MinSpeed = 0.25
	MaxSpeed = 4.0
)

// Voices lists the synthesis voices offered in the menu
var Voices = []string{
	"alloy",
	"ash",
	"ballad",
	"coral",
	"echo",
	"fable",
	"nova",
	"onyx",
	"sage",
	"shimmer",
}

// SpeedPresets lists the speed choices offered in the menu
var SpeedPresets = []float64{1.0, 1.15, 1.30, 1.45, 1.6}

// Provider names
const (
	ProviderAzure    = "azure"
	ProviderOpenAI   = "openai"
	ProviderDeepgram = "deepgram"
)

// Config holds all configuration for the speakr daemon
type Config struct {
	// Speech-to-text (HTTP endpoint, Azure style)
	STTProvider      string `envconfig:"STT_PROVIDER" default:"azure"` // azure, openai, deepgram
	AzureSTTEndpoint string `envconfig:"AZURE_STT_ENDPOINT"`
	AzureSTTAPIKey   string `envconfig:"AZURE_STT_API_KEY"`

	// Text-to-speech
	TTSProvider      string  `envconfig:"TTS_PROVIDER" default:"azure"` // azure, openai
	AzureTTSEndpoint string  `envconfig:"AZURE_TTS_ENDPOINT"`
	AzureTTSAPIKey   string  `envconfig:"AZURE_TTS_API_KEY"`
	TTSVoiceDefault  string  `envconfig:"AZURE_TTS_VOICE_DEFAULT" default:"alloy"`
	TTSSpeedDefault  float64 `envconfig:"AZURE_TTS_SPEED_DEFAULT" default:"1.0"`
	TTSModel         string  `envconfig:"TTS_MODEL" default:"tts-hd"`
	TTSMaxChunkLen   int     `envconfig:"TTS_MAX_CHUNK_LEN" default:"400"`
	TTSWorkers       int     `envconfig:"TTS_WORKERS" default:"2"`
	TTSTimeout       int     `envconfig:"TTS_TIMEOUT_SECONDS" default:"30"` // seconds

	// OpenAI-compatible services
	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL  string `envconfig:"OPENAI_BASE_URL"`
	OpenAISTTModel string `envconfig:"OPENAI_STT_MODEL" default:"whisper-1"`

	// Deepgram prerecorded transcription
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"` // nova-2, enhanced, base
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// Audio capture
	AudioHostAPI            string   `envconfig:"AUDIO_HOST_API"` // empty picks the platform's low-latency API
	AudioPreferredDevices   []string `envconfig:"AUDIO_PREFERRED_DEVICES" default:"samson,usb sound card"`
	AudioSampleRates        []int    `envconfig:"AUDIO_SAMPLE_RATES" default:"44100,48000,16000,8000"`
	AudioFallbackSampleRate int      `envconfig:"AUDIO_FALLBACK_SAMPLE_RATE" default:"16000"`
	AudioFramesPerBuffer    int      `envconfig:"AUDIO_FRAMES_PER_BUFFER" default:"1024"`
	RecordMaxSeconds        int      `envconfig:"RECORD_MAX_SECONDS" default:"60"`
	RecordMinSeconds        float64  `envconfig:"RECORD_MIN_SECONDS" default:"1.0"`

	// Desktop integration
	SoundsDir            string `envconfig:"SOUNDS_DIR" default:"sounds"`
	EchoMode             bool   `envconfig:"ECHO_MODE" default:"false"`
	ClipboardCopyDelayMS int    `envconfig:"CLIPBOARD_COPY_DELAY_MS" default:"150"`
	HotkeyQueueSize      int    `envconfig:"HOTKEY_QUEUE_SIZE" default:"64"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF_MS" default:"200"`
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF_MS" default:"1000"`

	// Local control surface
	ControlAddr    string `envconfig:"CONTROL_ADDR" default:"127.0.0.1:7733"` // empty disables
	GRPCHealthAddr string `envconfig:"GRPC_HEALTH_ADDR"`                      // empty disables

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"` // debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"true"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`

	// Warnings collected while normalizing values; logged once the logger is up
	Warnings []string `ignored:"true"`
}

// Load reads configuration from environment variables.
// A .env file next to the executable is loaded first, then one in the
// working directory; variables already set in the environment win.
func Load() (*Config, error) {
	if dir := ExecutableDir(); dir != "" {
		_ = godotenv.Load(filepath.Join(dir, ".env"))
	}
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load a .env file
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// normalize repairs recoverable values instead of rejecting them
func (c *Config) normalize() {
	c.STTProvider = strings.ToLower(strings.TrimSpace(c.STTProvider))
	c.TTSProvider = strings.ToLower(strings.TrimSpace(c.TTSProvider))

	voice := strings.ToLower(strings.TrimSpace(c.TTSVoiceDefault))
	if !IsVoice(voice) {
		c.Warnings = append(c.Warnings, fmt.Sprintf("invalid AZURE_TTS_VOICE_DEFAULT %q; falling back to alloy", c.TTSVoiceDefault))
		voice = "alloy"
	}
	c.TTSVoiceDefault = voice

	if math.IsNaN(c.TTSSpeedDefault) {
		c.Warnings = append(c.Warnings, "invalid AZURE_TTS_SPEED_DEFAULT; falling back to 1.0")
		c.TTSSpeedDefault = 1.0
	}
	c.TTSSpeedDefault = ClampSpeed(c.TTSSpeedDefault)

	if c.TTSWorkers > 2 {
		c.TTSWorkers = 2
	}

	if c.AudioHostAPI == "" {
		c.AudioHostAPI = DefaultHostAPI(runtime.GOOS)
	}

	for i, name := range c.AudioPreferredDevices {
		c.AudioPreferredDevices[i] = strings.ToLower(strings.TrimSpace(name))
	}
}

// Validate checks values that cannot be repaired
func (c *Config) Validate() error {
	switch c.STTProvider {
	case ProviderAzure, ProviderOpenAI, ProviderDeepgram:
	default:
		return fmt.Errorf("STT_PROVIDER must be one of azure, openai, deepgram (got %q)", c.STTProvider)
	}
	switch c.TTSProvider {
	case ProviderAzure, ProviderOpenAI:
	default:
		return fmt.Errorf("TTS_PROVIDER must be one of azure, openai (got %q)", c.TTSProvider)
	}

	if c.TTSMaxChunkLen <= 0 {
		return fmt.Errorf("TTS_MAX_CHUNK_LEN must be positive")
	}
	if c.TTSWorkers <= 0 {
		return fmt.Errorf("TTS_WORKERS must be positive")
	}
	if c.TTSTimeout <= 0 {
		return fmt.Errorf("TTS_TIMEOUT_SECONDS must be positive")
	}
	if c.RecordMaxSeconds <= 0 {
		return fmt.Errorf("RECORD_MAX_SECONDS must be positive")
	}
	if c.AudioFramesPerBuffer <= 0 {
		return fmt.Errorf("AUDIO_FRAMES_PER_BUFFER must be positive")
	}
	if c.AudioFallbackSampleRate <= 0 {
		return fmt.Errorf("AUDIO_FALLBACK_SAMPLE_RATE must be positive")
	}
	if c.HotkeyQueueSize <= 0 {
		return fmt.Errorf("HOTKEY_QUEUE_SIZE must be positive")
	}

	return nil
}

// STTConfigured reports whether the selected transcription provider has credentials
func (c *Config) STTConfigured() bool {
	switch c.STTProvider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey != ""
	case ProviderDeepgram:
		return c.DeepgramAPIKey != ""
	default:
		return c.AzureSTTEndpoint != "" && c.AzureSTTAPIKey != ""
	}
}

// TTSConfigured reports whether the selected synthesis provider has credentials
func (c *Config) TTSConfigured() bool {
	if c.TTSProvider == ProviderOpenAI {
		return c.OpenAIAPIKey != ""
	}
	return c.AzureTTSEndpoint != "" && c.AzureTTSAPIKey != ""
}

// ResolvePath resolves an asset path relative to the executable directory
func (c *Config) ResolvePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if dir := ExecutableDir(); dir != "" {
		return filepath.Join(dir, name)
	}
	return name
}

// IsVoice reports whether voice is one of the supported synthesis voices
func IsVoice(voice string) bool {
	for _, v := range Voices {
		if v == voice {
			return true
		}
	}
	return false
}

// ClampSpeed bounds a playback speed to what the synthesis services accept
func ClampSpeed(speed float64) float64 {
	return math.Max(MinSpeed, math.Min(MaxSpeed, speed))
}

// DefaultHostAPI returns the low-latency audio host API name for an OS
func DefaultHostAPI(goos string) string {
	switch goos {
	case "windows":
		return "Windows WASAPI"
	case "darwin":
		return "Core Audio"
	default:
		return "ALSA"
	}
}

// ExecutableDir returns the directory holding the running binary, or "" if unknown
func ExecutableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Dir(exe)
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
