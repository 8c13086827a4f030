package clipboard

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
	"github.com/rs/zerolog"
)

// Keystroker sends a modifier+key shortcut to the focused window
type Keystroker interface {
	Copy() error
	Paste() error
}

// Store reads and writes clipboard text
type Store interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// systemStore is the OS clipboard
type systemStore struct{}

func (systemStore) ReadAll() (string, error)   { return clipboard.ReadAll() }
func (systemStore) WriteAll(text string) error { return clipboard.WriteAll(text) }

// Clipboard implements selection copy, text writes and paste
type Clipboard struct {
	store      Store
	keys       Keystroker
	copyDelay  time.Duration
	pasteDelay time.Duration
	logger     zerolog.Logger
}

// New creates a clipboard bound to the system clipboard and keyboard
func New(copyDelay time.Duration, logger zerolog.Logger) *Clipboard {
	return NewWith(systemStore{}, NewKeyboard(runtime.GOOS), copyDelay, logger)
}

// NewWith creates a clipboard from explicit collaborators
func NewWith(store Store, keys Keystroker, copyDelay time.Duration, logger zerolog.Logger) *Clipboard {
	return &Clipboard{
		store:      store,
		keys:       keys,
		copyDelay:  copyDelay,
		pasteDelay: 80 * time.Millisecond,
		logger:     logger,
	}
}

// Text returns the trimmed clipboard text. With copySelection it first
// sends the copy shortcut so the current selection lands on the clipboard.
// ok is false when there is no text.
func (c *Clipboard) Text(copySelection bool) (string, bool) {
	var text string
	var err error

	if copySelection {
		original, _ := c.store.ReadAll()
		if err := c.keys.Copy(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to send copy shortcut")
		}
		time.Sleep(c.copyDelay)

		text, err = c.store.ReadAll()
		if err == nil && text == original {
			c.logger.Info().Msg("No text was selected, using existing clipboard content")
		}
	} else {
		text, err = c.store.ReadAll()
	}

	if err != nil {
		c.logger.Error().Err(err).Msg("Error reading clipboard")
		return "", false
	}

	text = strings.TrimSpace(text)
	return text, text != ""
}

// SetText replaces the clipboard contents
func (c *Clipboard) SetText(text string) error {
	if err := c.store.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}

// Paste sends the paste shortcut to the focused window
func (c *Clipboard) Paste() error {
	time.Sleep(c.pasteDelay)
	if err := c.keys.Paste(); err != nil {
		return fmt.Errorf("failed to send paste shortcut: %w", err)
	}
	return nil
}

// Keyboard sends shortcuts through a virtual keyboard device
type Keyboard struct {
	useSuper bool
}

// NewKeyboard uses Cmd on macOS and Ctrl elsewhere
func NewKeyboard(goos string) *Keyboard {
	return &Keyboard{useSuper: goos == "darwin"}
}

// Copy sends Ctrl+C (Cmd+C on macOS)
func (k *Keyboard) Copy() error {
	return k.send(keybd_event.VK_C)
}

// Paste sends Ctrl+V (Cmd+V on macOS)
func (k *Keyboard) Paste() error {
	return k.send(keybd_event.VK_V)
}

func (k *Keyboard) send(key int) error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return err
	}
	if k.useSuper {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	kb.SetKeys(key)
	return kb.Launching()
}
