package config

import (
	"testing"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.STTProvider != ProviderAzure {
		t.Errorf("Expected default STTProvider 'azure', got '%s'", cfg.STTProvider)
	}

	if cfg.TTSProvider != ProviderAzure {
		t.Errorf("Expected default TTSProvider 'azure', got '%s'", cfg.TTSProvider)
	}

	if cfg.TTSVoiceDefault != "alloy" {
		t.Errorf("Expected default voice 'alloy', got '%s'", cfg.TTSVoiceDefault)
	}

	if cfg.TTSSpeedDefault != 1.0 {
		t.Errorf("Expected default speed 1.0, got %f", cfg.TTSSpeedDefault)
	}

	if cfg.TTSMaxChunkLen != 400 {
		t.Errorf("Expected default TTSMaxChunkLen 400, got %d", cfg.TTSMaxChunkLen)
	}

	if cfg.TTSTimeout != 30 {
		t.Errorf("Expected default TTSTimeout 30, got %d", cfg.TTSTimeout)
	}

	if cfg.RecordMaxSeconds != 60 {
		t.Errorf("Expected default RecordMaxSeconds 60, got %d", cfg.RecordMaxSeconds)
	}

	if cfg.RecordMinSeconds != 1.0 {
		t.Errorf("Expected default RecordMinSeconds 1.0, got %f", cfg.RecordMinSeconds)
	}

	wantRates := []int{44100, 48000, 16000, 8000}
	if len(cfg.AudioSampleRates) != len(wantRates) {
		t.Fatalf("Expected %d sample rates, got %v", len(wantRates), cfg.AudioSampleRates)
	}
	for i, rate := range wantRates {
		if cfg.AudioSampleRates[i] != rate {
			t.Errorf("Expected sample rate %d at %d, got %d", rate, i, cfg.AudioSampleRates[i])
		}
	}

	if len(cfg.AudioPreferredDevices) != 2 || cfg.AudioPreferredDevices[0] != "samson" || cfg.AudioPreferredDevices[1] != "usb sound card" {
		t.Errorf("Unexpected preferred devices: %v", cfg.AudioPreferredDevices)
	}

	if cfg.AudioHostAPI == "" {
		t.Error("Expected a platform host API default")
	}

	if cfg.ControlAddr != "127.0.0.1:7733" {
		t.Errorf("Expected default ControlAddr '127.0.0.1:7733', got '%s'", cfg.ControlAddr)
	}
}

func TestLoadFromEnv_InvalidVoiceFallsBack(t *testing.T) {
	t.Setenv("AZURE_TTS_VOICE_DEFAULT", "robot")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.TTSVoiceDefault != "alloy" {
		t.Errorf("Expected fallback voice 'alloy', got '%s'", cfg.TTSVoiceDefault)
	}
	if len(cfg.Warnings) == 0 {
		t.Error("Expected a warning for the invalid voice")
	}
}

func TestLoadFromEnv_VoiceIsCaseInsensitive(t *testing.T) {
	t.Setenv("AZURE_TTS_VOICE_DEFAULT", "Nova")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.TTSVoiceDefault != "nova" {
		t.Errorf("Expected voice 'nova', got '%s'", cfg.TTSVoiceDefault)
	}
}

func TestLoadFromEnv_SpeedClamped(t *testing.T) {
	tests := []struct {
		value string
		want  float64
	}{
		{"0.1", 0.25},
		{"9", 4.0},
		{"1.3", 1.3},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("AZURE_TTS_SPEED_DEFAULT", tt.value)

			cfg, err := LoadFromEnv()
			if err != nil {
				t.Fatalf("LoadFromEnv() failed: %v", err)
			}
			if cfg.TTSSpeedDefault != tt.want {
				t.Errorf("Expected speed %f, got %f", tt.want, cfg.TTSSpeedDefault)
			}
		})
	}
}

func TestLoadFromEnv_UnknownProvider(t *testing.T) {
	t.Setenv("STT_PROVIDER", "carrier-pigeon")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error for unknown STT provider")
	}
}

func TestLoadFromEnv_WorkersCapped(t *testing.T) {
	t.Setenv("TTS_WORKERS", "8")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}
	if cfg.TTSWorkers != 2 {
		t.Errorf("Expected workers capped at 2, got %d", cfg.TTSWorkers)
	}
}

func TestConfigured(t *testing.T) {
	cfg := &Config{STTProvider: ProviderAzure, TTSProvider: ProviderAzure}
	if cfg.STTConfigured() || cfg.TTSConfigured() {
		t.Error("Expected unconfigured services without credentials")
	}

	cfg.AzureSTTEndpoint = "https://stt.example"
	cfg.AzureSTTAPIKey = "key"
	if !cfg.STTConfigured() {
		t.Error("Expected STT configured with endpoint and key")
	}

	cfg.TTSProvider = ProviderOpenAI
	cfg.OpenAIAPIKey = "sk-test"
	if !cfg.TTSConfigured() {
		t.Error("Expected OpenAI TTS configured with API key")
	}
}

func TestDefaultHostAPI(t *testing.T) {
	if got := DefaultHostAPI("windows"); got != "Windows WASAPI" {
		t.Errorf("Expected 'Windows WASAPI', got '%s'", got)
	}
	if got := DefaultHostAPI("darwin"); got != "Core Audio" {
		t.Errorf("Expected 'Core Audio', got '%s'", got)
	}
	if got := DefaultHostAPI("linux"); got != "ALSA" {
		t.Errorf("Expected 'ALSA', got '%s'", got)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("SPEAKR_TEST_VAR", "test-value")

	if got := GetEnv("SPEAKR_TEST_VAR", "default"); got != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", got)
	}

	if got := GetEnv("SPEAKR_NON_EXISTENT_VAR", "default"); got != "default" {
		t.Errorf("Expected 'default', got '%s'", got)
	}
}
