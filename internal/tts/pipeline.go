package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/speakr/speakr/internal/audio"
	"github.com/speakr/speakr/internal/config"
	"github.com/speakr/speakr/internal/feedback"
	"github.com/speakr/speakr/internal/observability"
	"github.com/speakr/speakr/internal/resilience"
)

const maxWorkers = 2

// Config tunes chunking and synthesis concurrency
type Config struct {
	Voice       string
	Speed       float64
	MaxChunkLen int
	Workers     int
	Timeout     time.Duration
}

// DefaultConfig returns the desktop defaults
func DefaultConfig() Config {
	return Config{
		Voice:       "alloy",
		Speed:       1.0,
		MaxChunkLen: DefaultMaxChunkLen,
		Workers:     maxWorkers,
		Timeout:     30 * time.Second,
	}
}

// stream is one speak invocation
type stream struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

// playback is ownership of the in-flight output
type playback struct {
	cancel context.CancelFunc
}

// Pipeline synthesizes text chunk by chunk and plays results in order
type Pipeline struct {
	synth   Synthesizer
	player  audio.Player
	alerts  Alerter
	cues    CuePlayer
	breaker *resilience.CircuitBreaker
	cfg     Config
	logger  zerolog.Logger

	settingsMu sync.RWMutex
	voice      string
	speed      float64

	// speakMu serializes streams; seq lets the latest Speak win
	speakMu sync.Mutex
	seq     atomic.Uint64

	playMu  sync.Mutex
	playing bool
	handle  *playback
	active  *stream

	eventMu sync.RWMutex
	onEvent func(Event)
}

// NewPipeline creates a pipeline; breaker may be nil
func NewPipeline(synth Synthesizer, player audio.Player, alerts Alerter, cues CuePlayer, breaker *resilience.CircuitBreaker, cfg Config, logger zerolog.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.MaxChunkLen <= 0 {
		cfg.MaxChunkLen = def.MaxChunkLen
	}
	if cfg.Workers <= 0 || cfg.Workers > maxWorkers {
		cfg.Workers = maxWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	voice := strings.ToLower(cfg.Voice)
	if !config.IsVoice(voice) {
		voice = def.Voice
	}

	return &Pipeline{
		synth:   synth,
		player:  player,
		alerts:  alerts,
		cues:    cues,
		breaker: breaker,
		cfg:     cfg,
		logger:  logger,
		voice:   voice,
		speed:   config.ClampSpeed(cfg.Speed),
	}
}

// SetEventHandler registers an observer for speak lifecycle events
func (p *Pipeline) SetEventHandler(fn func(Event)) {
	p.eventMu.Lock()
	p.onEvent = fn
	p.eventMu.Unlock()
}

func (p *Pipeline) emit(e Event) {
	p.eventMu.RLock()
	fn := p.onEvent
	p.eventMu.RUnlock()
	if fn != nil {
		fn(e)
	}
}

// Voices returns the selectable voices
func (p *Pipeline) Voices() []string {
	return append([]string(nil), config.Voices...)
}

// Voice returns the current voice
func (p *Pipeline) Voice() string {
	p.settingsMu.RLock()
	defer p.settingsMu.RUnlock()
	return p.voice
}

// SetVoice changes the voice used by subsequent requests
func (p *Pipeline) SetVoice(voice string) error {
	voice = strings.ToLower(strings.TrimSpace(voice))
	if !config.IsVoice(voice) {
		p.logger.Warn().Str("voice", voice).Strs("available", config.Voices).Msg("Invalid voice")
		return fmt.Errorf("%w: %q", ErrUnknownVoice, voice)
	}

	p.settingsMu.Lock()
	p.voice = voice
	p.settingsMu.Unlock()

	p.logger.Info().Str("voice", voice).Msg("TTS voice set")
	return nil
}

// Speed returns the current speaking rate
func (p *Pipeline) Speed() float64 {
	p.settingsMu.RLock()
	defer p.settingsMu.RUnlock()
	return p.speed
}

// SetSpeed clamps and stores the speaking rate, returning the stored value
func (p *Pipeline) SetSpeed(speed float64) float64 {
	speed = config.ClampSpeed(speed)

	p.settingsMu.Lock()
	p.speed = speed
	p.settingsMu.Unlock()

	p.logger.Info().Float64("speed", speed).Msg("TTS speed set")
	return speed
}

// IsPlaying reports whether speech is playing or a stream is in progress
func (p *Pipeline) IsPlaying() bool {
	p.playMu.Lock()
	defer p.playMu.Unlock()
	return p.playing || p.active != nil
}

// Stop cancels the active stream and any playback. State is cleared
// immediately; the stream goroutine exits on its next cancellation check.
func (p *Pipeline) Stop() {
	p.playMu.Lock()
	st := p.active
	h := p.handle
	wasPlaying := p.playing || st != nil
	p.active = nil
	p.handle = nil
	p.playing = false
	p.playMu.Unlock()

	if st != nil {
		st.cancel()
	}
	if h != nil {
		h.cancel()
	}

	if wasPlaying {
		p.logger.Info().Msg("TTS playback stopped")
	} else {
		p.logger.Debug().Msg("No TTS audio is currently playing")
	}
}

// Play renders one payload asynchronously. It is a no-op returning false
// when something is already playing.
func (p *Pipeline) Play(payload []byte) bool {
	p.playMu.Lock()
	if p.playing || p.active != nil {
		p.playMu.Unlock()
		p.logger.Info().Msg("Audio is already playing, skipping")
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &playback{cancel: cancel}
	p.playing = true
	p.handle = h
	p.playMu.Unlock()

	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().Interface("panic", r).Msg("Playback panicked")
			}
			p.playMu.Lock()
			if p.handle == h {
				p.playing = false
				p.handle = nil
			}
			p.playMu.Unlock()
		}()

		p.play(ctx, payload)
	}()
	return true
}

// Speak chunks text and streams it to the output device, blocking until
// the stream finishes or is stopped. A newer Speak stops an older one.
func (p *Pipeline) Speak(text string) {
	chunks := Chunk(text, p.cfg.MaxChunkLen)
	if len(chunks) == 0 {
		p.logger.Info().Msg("No text to speak")
		return
	}

	ticket := p.seq.Add(1)
	p.Stop()

	p.speakMu.Lock()
	defer p.speakMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id := observability.NewCorrelationID()
	st := &stream{
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		logger: observability.WithCorrelationID(p.logger, id),
	}

	p.playMu.Lock()
	if p.seq.Load() != ticket {
		p.playMu.Unlock()
		st.logger.Debug().Msg("Speak superseded before start")
		return
	}
	p.active = st
	p.playMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			st.logger.Error().Interface("panic", r).Msg("Speech stream panicked")
			observability.RecordError("stream_panic", "tts")
		}
		p.playMu.Lock()
		if p.active == st {
			p.active = nil
			p.playing = false
			p.handle = nil
		}
		p.playMu.Unlock()
		p.emit(Event{Type: EventSpeakingFinished, CorrelationID: st.id})
	}()

	st.logger.Info().Int("chunks", len(chunks)).Int("chars", len(text)).Msg("Speaking text")
	p.emit(Event{Type: EventSpeakingStarted, CorrelationID: st.id, Detail: fmt.Sprintf("%d chunks", len(chunks))})

	p.run(st, chunks)
}

// run synthesizes chunks on a bounded worker pool and drains results in
// index order, checking for cancellation before each play and each wait
func (p *Pipeline) run(st *stream, chunks []TextChunk) {
	workers := p.cfg.Workers
	if workers > len(chunks) {
		workers = len(chunks)
	}

	jobs := make(chan TextChunk, len(chunks))
	for _, c := range chunks {
		jobs <- c
	}
	close(jobs)

	results := make(chan Result, len(chunks))
	voice, speed := p.Voice(), p.Speed()
	var notConfigured sync.Once

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				results <- p.synthesizeChunk(st, c, voice, speed, &notConfigured)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	pending := make(map[int]Result, len(chunks))
	next := 0

	for next < len(chunks) {
		select {
		case <-st.ctx.Done():
			st.logger.Debug().Int("next_index", next).Msg("Speech stream cancelled")
			return
		case r, ok := <-results:
			if !ok {
				return
			}
			pending[r.Index] = r
		}

		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			if st.ctx.Err() != nil {
				st.logger.Debug().Int("next_index", next).Msg("Speech stream cancelled")
				return
			}
			delete(pending, next)

			if r.Outcome == OutcomeAudio {
				p.playChunk(st, r)
			} else {
				st.logger.Debug().Int("index", next).Str("outcome", r.Outcome.String()).Msg("Skipping empty audio chunk")
			}
			next++
		}
	}
}

func (p *Pipeline) synthesizeChunk(st *stream, c TextChunk, voice string, speed float64, notConfigured *sync.Once) (res Result) {
	res = Result{Index: c.Index, Outcome: OutcomeFailed}
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			st.logger.Error().Interface("panic", r).Int("index", c.Index).Msg("Synthesis worker panicked")
			res = Result{Index: c.Index, Outcome: OutcomeFailed, Err: fmt.Errorf("panic: %v", r)}
		}
		observability.RecordSynthesisChunk(res.Outcome.String(), time.Since(started))
	}()

	if st.ctx.Err() != nil {
		res.Outcome = OutcomeCancelled
		return res
	}

	ctx, cancel := context.WithTimeout(st.ctx, p.cfg.Timeout)
	defer cancel()

	st.logger.Debug().Int("index", c.Index).Str("voice", voice).Float64("speed", speed).Msg("Sending TTS request")

	var data []byte
	var synthErr error
	call := func() error {
		data, synthErr = p.synth.Synthesize(ctx, c.Text, voice, speed)
		// Missing credentials and user cancellation say nothing about endpoint health
		if errors.Is(synthErr, ErrNotConfigured) || errors.Is(synthErr, context.Canceled) {
			return nil
		}
		return synthErr
	}

	var err error
	if p.breaker != nil {
		err = p.breaker.Call(call)
	} else {
		err = call()
	}
	if err == nil {
		err = synthErr
	}

	switch {
	case err == nil && len(data) > 0:
		st.logger.Debug().Int("index", c.Index).Int("bytes", len(data)).Msg("TTS response received")
		res.Outcome = OutcomeAudio
		res.Audio = data
	case err == nil:
		res.Outcome = OutcomeEmpty
	case st.ctx.Err() != nil:
		res.Outcome = OutcomeCancelled
		res.Err = err
	case errors.Is(err, ErrNotConfigured):
		res.Err = err
		notConfigured.Do(func() {
			st.logger.Warn().Msg("Azure TTS not configured")
			p.alerts.Notify("TTS Error", "Azure TTS not configured. Please set AZURE_TTS_ENDPOINT and AZURE_TTS_API_KEY.")
		})
	case errors.Is(err, context.DeadlineExceeded):
		res.Err = err
		secs := int(p.cfg.Timeout / time.Second)
		st.logger.Warn().Int("index", c.Index).Int("timeout_seconds", secs).Msg("TTS request timed out")
		observability.RecordError("timeout", "tts")
		p.cues.PlayCue(feedback.CueCancel)
		p.alerts.Notify("TTS Error", fmt.Sprintf("Request timed out after %d seconds. Please try again.", secs))
	default:
		res.Err = err
		st.logger.Error().Err(err).Int("index", c.Index).Msg("TTS request failed")
		observability.RecordError("synthesis", "tts")
		p.cues.PlayCue(feedback.CueCancel)
		p.alerts.Notify("TTS Error", fmt.Sprintf("Failed to synthesize speech: %v", err))
	}
	return res
}

// playChunk plays one result while the stream still owns playback
func (p *Pipeline) playChunk(st *stream, r Result) {
	ctx, cancel := context.WithCancel(st.ctx)
	defer cancel()
	h := &playback{cancel: cancel}

	p.playMu.Lock()
	if p.active != st {
		p.playMu.Unlock()
		return
	}
	p.playing = true
	p.handle = h
	p.playMu.Unlock()

	p.play(ctx, r.Audio)

	p.playMu.Lock()
	if p.handle == h {
		p.playing = false
		p.handle = nil
	}
	p.playMu.Unlock()
}

func (p *Pipeline) play(ctx context.Context, payload []byte) {
	err := p.player.Play(ctx, payload)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	p.logger.Error().Err(err).Msg("Error playing TTS audio")
	observability.RecordError("playback", "tts")
	p.alerts.Notify("TTS Playback Error", fmt.Sprintf("Failed to play audio: %v", err))
}
