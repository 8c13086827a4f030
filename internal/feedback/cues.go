package feedback

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/speakr/speakr/internal/audio"
)

// Cue names a short feedback sound
type Cue string

const (
	CueStart  Cue = "start"
	CueStop   Cue = "stop"
	CueCancel Cue = "cancel"
	CueSend   Cue = "send"
)

// AllCues lists the cues loaded at startup
var AllCues = []Cue{CueStart, CueStop, CueCancel, CueSend}

const cueTimeout = 5 * time.Second

// Cues holds preloaded feedback sounds and plays them on the output device.
// Cue playback does not take part in speech playback exclusivity.
type Cues struct {
	player audio.Player
	logger zerolog.Logger

	mu     sync.RWMutex
	sounds map[Cue][]byte
	wg     sync.WaitGroup
}

// NewCues creates a cue player from already loaded sounds
func NewCues(player audio.Player, sounds map[Cue][]byte, logger zerolog.Logger) *Cues {
	if sounds == nil {
		sounds = make(map[Cue][]byte)
	}
	return &Cues{player: player, sounds: sounds, logger: logger}
}

// LoadCues reads <dir>/<cue>.wav for every cue. Missing files are logged.
func LoadCues(dir string, player audio.Player, logger zerolog.Logger) *Cues {
	sounds := make(map[Cue][]byte, len(AllCues))
	for _, cue := range AllCues {
		path := filepath.Join(dir, string(cue)+".wav")
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Cue sound not loaded")
			continue
		}
		sounds[cue] = data
	}
	logger.Info().Int("loaded", len(sounds)).Str("dir", dir).Msg("Cue sounds loaded")
	return NewCues(player, sounds, logger)
}

// Loaded reports whether a cue has a sound
func (c *Cues) Loaded(kind Cue) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sounds[kind]
	return ok
}

// PlayCue plays kind asynchronously, falling back to the start cue
func (c *Cues) PlayCue(kind Cue) {
	c.mu.RLock()
	data, ok := c.sounds[kind]
	if !ok {
		data, ok = c.sounds[CueStart]
	}
	c.mu.RUnlock()

	if !ok {
		c.logger.Debug().Str("cue", string(kind)).Msg("No sound for cue")
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				c.logger.Error().Interface("panic", p).Str("cue", string(kind)).Msg("Cue playback panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), cueTimeout)
		defer cancel()
		if err := c.player.Play(ctx, data); err != nil {
			c.logger.Warn().Err(err).Str("cue", string(kind)).Msg("Cue playback failed")
		}
	}()
}

// Wait blocks until in-flight cues finish
func (c *Cues) Wait() {
	c.wg.Wait()
}
