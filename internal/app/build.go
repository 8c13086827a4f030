package app

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/speakr/speakr/internal/audio"
	"github.com/speakr/speakr/internal/capture"
	"github.com/speakr/speakr/internal/clipboard"
	"github.com/speakr/speakr/internal/config"
	"github.com/speakr/speakr/internal/feedback"
	"github.com/speakr/speakr/internal/hotkey"
	"github.com/speakr/speakr/internal/observability"
	"github.com/speakr/speakr/internal/resilience"
	"github.com/speakr/speakr/internal/stt"
	"github.com/speakr/speakr/internal/transport"
	"github.com/speakr/speakr/internal/tts"
)

// sttHTTPTimeout bounds a single transcription request
const sttHTTPTimeout = 60 * time.Second

// Build creates the application from configuration. driver and player are
// the platform audio host.
func Build(cfg *config.Config, driver audio.Driver, player audio.Player) *App {
	logger := observability.Component("app")

	alerts := feedback.NewNotifier(observability.Component("feedback"), cfg.ResolvePath("icon.png"))
	cues := feedback.LoadCues(cfg.ResolvePath(cfg.SoundsDir), player, observability.Component("feedback"))

	session := capture.NewSession(driver, alerts, captureConfig(cfg), observability.Component("capture"))

	synth, synthConfigured := newSynthesizer(cfg)
	breaker := newBreaker("tts", cfg)
	pipeline := tts.NewPipeline(synth, player, alerts, cues, breaker, pipelineConfig(cfg), observability.Component("tts"))

	sttLogger := observability.Component("stt")
	backend := newTranscriber(cfg, sttLogger)
	echo := stt.NewEchoTranscriber(player, sttLogger)
	service := stt.NewService(cfg.STTProvider, backend, echo, alerts, cfg.EchoMode, sttLogger)

	clip := clipboard.New(time.Duration(cfg.ClipboardCopyDelayMS)*time.Millisecond, observability.Component("clipboard"))

	a := New(Deps{
		Session:               session,
		Pipeline:              pipeline,
		STT:                   service,
		Clipboard:             clip,
		Alerts:                alerts,
		Cues:                  cues,
		Hub:                   NewHub(0, observability.Component("events")),
		SynthesizerConfigured: synthConfigured,
		Breaker:               breaker,
		Hotkeys: hotkey.Options{
			MinDuration: time.Duration(cfg.RecordMinSeconds * float64(time.Second)),
		},
	}, logger)

	logger.Info().
		Str("stt_provider", cfg.STTProvider).
		Bool("stt_configured", service.Configured()).
		Str("tts_provider", cfg.TTSProvider).
		Bool("tts_configured", synthConfigured()).
		Bool("echo_mode", cfg.EchoMode).
		Msg("Application assembled")

	return a
}

func captureConfig(cfg *config.Config) capture.Config {
	return capture.Config{
		HostAPI:          cfg.AudioHostAPI,
		PreferredDevices: cfg.AudioPreferredDevices,
		SampleRates:      cfg.AudioSampleRates,
		FallbackRate:     cfg.AudioFallbackSampleRate,
		FramesPerBuffer:  cfg.AudioFramesPerBuffer,
		MaxDuration:      time.Duration(cfg.RecordMaxSeconds) * time.Second,
	}
}

func pipelineConfig(cfg *config.Config) tts.Config {
	return tts.Config{
		Voice:       cfg.TTSVoiceDefault,
		Speed:       cfg.TTSSpeedDefault,
		MaxChunkLen: cfg.TTSMaxChunkLen,
		Workers:     cfg.TTSWorkers,
		Timeout:     time.Duration(cfg.TTSTimeout) * time.Second,
	}
}

// newSynthesizer picks the speech backend for TTS_PROVIDER
func newSynthesizer(cfg *config.Config) (tts.Synthesizer, func() bool) {
	client := transport.NewHTTPClient(time.Duration(cfg.TTSTimeout) * time.Second)

	if cfg.TTSProvider == config.ProviderOpenAI {
		s := tts.NewOpenAISynthesizer(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.TTSModel, client)
		return s, s.Configured
	}
	s := tts.NewHTTPSynthesizer(cfg.AzureTTSEndpoint, cfg.AzureTTSAPIKey, cfg.TTSModel, client, observability.Component("tts"))
	return s, s.Configured
}

// newTranscriber picks the transcription backend for STT_PROVIDER
func newTranscriber(cfg *config.Config, logger zerolog.Logger) stt.Transcriber {
	client := transport.NewHTTPClient(sttHTTPTimeout)

	switch cfg.STTProvider {
	case config.ProviderOpenAI:
		return stt.NewOpenAITranscriber(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAISTTModel, client)
	case config.ProviderDeepgram:
		return stt.NewDeepgramTranscriber(cfg.DeepgramAPIKey, cfg.DeepgramModel, cfg.DeepgramLanguage)
	default:
		retry := resilience.DefaultRetryConfig()
		if cfg.RetryMaxAttempts > 0 {
			retry.MaxAttempts = cfg.RetryMaxAttempts
		}
		if cfg.RetryInitialBackoff > 0 {
			retry.InitialBackoff = time.Duration(cfg.RetryInitialBackoff) * time.Millisecond
		}
		return stt.NewHTTPTranscriber(cfg.AzureSTTEndpoint, cfg.AzureSTTAPIKey, client, retry, logger)
	}
}

// newBreaker creates a circuit breaker whose state is exported as a metric
func newBreaker(service string, cfg *config.Config) *resilience.CircuitBreaker {
	cb := resilience.NewCircuitBreaker(service, cfg.CircuitBreakerMaxFailures, time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second)
	logger := observability.Component("resilience")
	cb.OnStateChange(func(name string, from, to resilience.CircuitState) {
		logger.Warn().Str("service", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		observability.UpdateCircuitBreakerState(name, int(to))
		if to == resilience.StateOpen {
			observability.IncrementCircuitBreakerFailures(name)
		}
	})
	observability.UpdateCircuitBreakerState(service, int(resilience.StateClosed))
	return cb
}

// ReconnectConfig builds the keyboard hook restart policy
func ReconnectConfig(cfg *config.Config) *resilience.ReconnectConfig {
	rc := resilience.DefaultReconnectConfig()
	if cfg.ReconnectMaxAttempts > 0 {
		rc.MaxAttempts = cfg.ReconnectMaxAttempts
	}
	if cfg.ReconnectBackoff > 0 {
		rc.Backoff = time.Duration(cfg.ReconnectBackoff) * time.Millisecond
	}
	return rc
}
