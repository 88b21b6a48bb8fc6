package webdriver

import "strings"

// Special keys (W3C key codes in the Unicode private use area).
const (
	KeyNull       = "\uE000"
	KeyCancel     = "\uE001"
	KeyHelp       = "\uE002"
	KeyBackspace  = "\uE003"
	KeyTab        = "\uE004"
	KeyClear      = "\uE005"
	KeyReturn     = "\uE006"
	KeyEnter      = "\uE007"
	KeyShift      = "\uE008"
	KeyControl    = "\uE009"
	KeyAlt        = "\uE00A"
	KeyPause      = "\uE00B"
	KeyEscape     = "\uE00C"
	KeySpace      = "\uE00D"
	KeyPageUp     = "\uE00E"
	KeyPageDown   = "\uE00F"
	KeyEnd        = "\uE010"
	KeyHome       = "\uE011"
	KeyArrowLeft  = "\uE012"
	KeyArrowUp    = "\uE013"
	KeyArrowRight = "\uE014"
	KeyArrowDown  = "\uE015"
	KeyInsert     = "\uE016"
	KeyDelete     = "\uE017"
	KeyF1         = "\uE031"
	KeyF5         = "\uE035"
	KeyF12        = "\uE03C"
	KeyMeta       = "\uE03D"
)

var namedKeys = map[string]string{
	"BACKSPACE":   KeyBackspace,
	"TAB":         KeyTab,
	"CLEAR":       KeyClear,
	"RETURN":      KeyReturn,
	"ENTER":       KeyEnter,
	"SHIFT":       KeyShift,
	"CONTROL":     KeyControl,
	"CTRL":        KeyControl,
	"ALT":         KeyAlt,
	"PAUSE":       KeyPause,
	"ESCAPE":      KeyEscape,
	"ESC":         KeyEscape,
	"SPACE":       KeySpace,
	"PAGE_UP":     KeyPageUp,
	"PAGE_DOWN":   KeyPageDown,
	"END":         KeyEnd,
	"HOME":        KeyHome,
	"LEFT":        KeyArrowLeft,
	"ARROW_LEFT":  KeyArrowLeft,
	"UP":          KeyArrowUp,
	"ARROW_UP":    KeyArrowUp,
	"RIGHT":       KeyArrowRight,
	"ARROW_RIGHT": KeyArrowRight,
	"DOWN":        KeyArrowDown,
	"ARROW_DOWN":  KeyArrowDown,
	"INSERT":      KeyInsert,
	"DELETE":      KeyDelete,
	"F1":          KeyF1,
	"F5":          KeyF5,
	"F12":         KeyF12,
	"META":        KeyMeta,
	"COMMAND":     KeyMeta,
	"CANCEL":      KeyCancel,
	"HELP":        KeyHelp,
}

// KeyByName resolves a key name such as "ENTER" or "Page Down". Chords are
// joined with '+', e.g. "CTRL+A".
func KeyByName(name string) (string, bool) {
	parts := strings.Split(name, "+")
	var b strings.Builder
	for _, part := range parts {
		norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(part), " ", "_"))
		if k, ok := namedKeys[norm]; ok {
			b.WriteString(k)
			continue
		}
		if len([]rune(strings.TrimSpace(part))) == 1 {
			b.WriteString(strings.ToLower(strings.TrimSpace(part)))
			continue
		}
		return "", false
	}
	if len(parts) > 1 {
		b.WriteString(KeyNull) // release modifiers
	}
	return b.String(), true
}
