package hotkey

import "unicode"

// Key is a canonical key symbol. Left and right variants share one symbol.
type Key int

const (
	KeyUnknown Key = iota
	KeyCtrl
	KeyAlt
	KeySuper
	KeyB
	KeyEscape
)

func (k Key) String() string {
	switch k {
	case KeyCtrl:
		return "ctrl"
	case KeyAlt:
		return "alt"
	case KeySuper:
		return "super"
	case KeyB:
		return "b"
	case KeyEscape:
		return "esc"
	default:
		return "unknown"
	}
}

// Virtual key codes reported by the keyboard hook
const (
	vcEscape uint16 = 0x0001
	vcB      uint16 = 0x0030
	vcAltL   uint16 = 0x0038
	vcCtrlL  uint16 = 0x001D
	vcCtrlR  uint16 = 0x0E1D
	vcAltR   uint16 = 0x0E38
	vcMetaL  uint16 = 0x0E5B
	vcMetaR  uint16 = 0x0E5C
)

// RawEvent is one key transition from the keyboard hook
type RawEvent struct {
	Code uint16
	Char rune
	Down bool
}

// Normalize maps a hook key code, or the typed character when the code is
// unknown, to a canonical key
func Normalize(code uint16, char rune) Key {
	switch code {
	case vcCtrlL, vcCtrlR:
		return KeyCtrl
	case vcAltL, vcAltR:
		return KeyAlt
	case vcMetaL, vcMetaR:
		return KeySuper
	case vcB:
		return KeyB
	case vcEscape:
		return KeyEscape
	}
	if unicode.ToLower(char) == 'b' {
		return KeyB
	}
	return KeyUnknown
}

// tracked reports whether k takes part in a chord
func tracked(k Key) bool {
	return k == KeyCtrl || k == KeyAlt || k == KeySuper || k == KeyB
}
