// Package kb provides keyboard mappings for Chrome DOM Keys for use with
// input events. The Key struct and the Encode/EncodeUnidentified encoding
// follow the teacher's kb package (CDP keycode wire data is not domain
// logic to rewrite); the key table itself is hand-assembled here, covering
// the printable ASCII range plus the named keys the press method accepts.
// Only dispatch's press/type handlers call into this package, in place of
// the teacher's own KeyAction/KeyActionNode.
package kb

import (
	"runtime"
	"unicode"

	"github.com/chromedp/cdproto/input"
)

// Key contains information for generating a key press based off the
// unicode value or a DOM key name.
type Key struct {
	// Code is the key code: "Enter", "Comma", "KeyA", "ArrowDown".
	Code string
	// Key is the key value: "Enter", ",", "a"/"A", "ArrowDown".
	Key string
	// Text is the text for printable keys.
	Text string
	// Unmodified is the unmodified text for printable keys.
	Unmodified string
	// Native is the native scan code.
	Native int64
	// Windows is the windows scan code.
	Windows int64
	// Shift indicates whether the Shift modifier should be sent.
	Shift bool
	// Print indicates whether the character is printable (emits a char event).
	Print bool
}

// EncodeUnidentified encodes a keyDown, char, and keyUp sequence for a rune
// with no known DOM key mapping.
func EncodeUnidentified(r rune) []*input.DispatchKeyEventParams {
	keyDown := input.DispatchKeyEventParams{Key: "Unidentified"}
	keyUp := keyDown
	keyDown.Type, keyUp.Type = input.KeyDown, input.KeyUp
	if unicode.IsPrint(r) {
		keyChar := keyDown
		keyChar.Type = input.KeyChar
		keyChar.Text = string(r)
		keyChar.UnmodifiedText = string(r)
		return []*input.DispatchKeyEventParams{&keyDown, &keyChar, &keyUp}
	}
	return []*input.DispatchKeyEventParams{&keyDown, &keyUp}
}

// Encode encodes a keyDown, char, and keyUp sequence for the specified rune.
func Encode(r rune) []*input.DispatchKeyEventParams {
	if r == '\n' {
		r = '\r'
	}
	v, ok := Keys[r]
	if !ok {
		return EncodeUnidentified(r)
	}
	return encodeKey(v, int64(r))
}

// EncodeName encodes a keyDown and keyUp sequence for a DOM key name
// ("Enter", "Tab", "ArrowDown", "Escape", ...), with a char event between
// them for named keys that produce text (Enter, Space), the shape the Action
// Dispatcher's press method needs (spec §4.6: "press:
// Input.dispatchKeyEvent keyDown+keyUp for the named key").
func EncodeName(name string) ([]*input.DispatchKeyEventParams, bool) {
	v, ok := NamedKeys[name]
	if !ok {
		return nil, false
	}
	return encodeKey(v, v.Native), true
}

func encodeKey(v *Key, nativeForChar int64) []*input.DispatchKeyEventParams {
	keyDown := input.DispatchKeyEventParams{
		Key:                   v.Key,
		Code:                  v.Code,
		NativeVirtualKeyCode:  v.Native,
		WindowsVirtualKeyCode: v.Windows,
	}
	if runtime.GOOS == "darwin" {
		keyDown.NativeVirtualKeyCode = 0
	}
	if v.Shift {
		keyDown.Modifiers |= input.ModifierShift
	}
	keyUp := keyDown
	keyDown.Type, keyUp.Type = input.KeyDown, input.KeyUp
	if v.Print {
		keyChar := keyDown
		keyChar.Type = input.KeyChar
		keyChar.Text = v.Text
		keyChar.UnmodifiedText = v.Unmodified
		keyChar.NativeVirtualKeyCode = nativeForChar
		keyChar.WindowsVirtualKeyCode = nativeForChar
		return []*input.DispatchKeyEventParams{&keyDown, &keyChar, &keyUp}
	}
	return []*input.DispatchKeyEventParams{&keyDown, &keyUp}
}

func letter(lower, upper rune, code string, native int64) {
	Keys[lower] = &Key{Code: code, Key: string(lower), Text: string(lower), Unmodified: string(lower), Native: native, Windows: native, Print: true}
	Keys[upper] = &Key{Code: code, Key: string(upper), Text: string(upper), Unmodified: string(lower), Native: native, Windows: native, Shift: true, Print: true}
}

func digit(r rune, code string, native int64) {
	Keys[r] = &Key{Code: code, Key: string(r), Text: string(r), Unmodified: string(r), Native: native, Windows: native, Print: true}
}

// Keys is the map of unicode characters to their DOM key data, used by
// Encode for single-rune key events.
var Keys = map[rune]*Key{
	'\b': {Code: "Backspace", Key: "Backspace", Native: 0x08, Windows: 0x08},
	'\t': {Code: "Tab", Key: "Tab", Native: 0x09, Windows: 0x09},
	'\r': {Code: "Enter", Key: "Enter", Text: "\r", Unmodified: "\r", Native: 0x0d, Windows: 0x0d, Print: true},
	' ':  {Code: "Space", Key: " ", Text: " ", Unmodified: " ", Native: 0x20, Windows: 0x20, Print: true},
}

func init() {
	for i, r := 0, 'a'; r <= 'z'; i, r = i+1, r+1 {
		letter(r, unicode.ToUpper(r), "Key"+string(unicode.ToUpper(r)), int64(0x41+i))
	}
	digitCodes := []string{"Digit0", "Digit1", "Digit2", "Digit3", "Digit4", "Digit5", "Digit6", "Digit7", "Digit8", "Digit9"}
	for i, r := 0, '0'; r <= '9'; i, r = i+1, r+1 {
		digit(r, digitCodes[i], int64(0x30+i))
	}
	punct := []struct {
		r, shifted    rune
		code          string
		native        int64
	}{
		{'-', '_', "Minus", 0xbd},
		{'=', '+', "Equal", 0xbb},
		{'[', '{', "BracketLeft", 0xdb},
		{']', '}', "BracketRight", 0xdd},
		{'\\', '|', "Backslash", 0xdc},
		{';', ':', "Semicolon", 0xba},
		{'\'', '"', "Quote", 0xde},
		{',', '<', "Comma", 0xbc},
		{'.', '>', "Period", 0xbe},
		{'/', '?', "Slash", 0xbf},
		{'`', '~', "Backquote", 0xc0},
	}
	for _, p := range punct {
		Keys[p.r] = &Key{Code: p.code, Key: string(p.r), Text: string(p.r), Unmodified: string(p.r), Native: p.native, Windows: p.native, Print: true}
		Keys[p.shifted] = &Key{Code: p.code, Key: string(p.shifted), Text: string(p.shifted), Unmodified: string(p.r), Native: p.native, Windows: p.native, Shift: true, Print: true}
	}
}

// NamedKeys maps DOM key names to their encoding, consulted by EncodeName
// for the press method's named, typically non-printable keys.
var NamedKeys = map[string]*Key{
	"Enter":      {Code: "Enter", Key: "Enter", Text: "\r", Unmodified: "\r", Native: 0x0d, Windows: 0x0d, Print: true},
	"Tab":        {Code: "Tab", Key: "Tab", Native: 0x09, Windows: 0x09},
	"Backspace":  {Code: "Backspace", Key: "Backspace", Native: 0x08, Windows: 0x08},
	"Escape":     {Code: "Escape", Key: "Escape", Native: 0x1b, Windows: 0x1b},
	"Space":      {Code: "Space", Key: " ", Text: " ", Unmodified: " ", Native: 0x20, Windows: 0x20, Print: true},
	"ArrowLeft":  {Code: "ArrowLeft", Key: "ArrowLeft", Native: 0x25, Windows: 0x25},
	"ArrowUp":    {Code: "ArrowUp", Key: "ArrowUp", Native: 0x26, Windows: 0x26},
	"ArrowRight": {Code: "ArrowRight", Key: "ArrowRight", Native: 0x27, Windows: 0x27},
	"ArrowDown":  {Code: "ArrowDown", Key: "ArrowDown", Native: 0x28, Windows: 0x28},
	"Delete":     {Code: "Delete", Key: "Delete", Native: 0x2e, Windows: 0x2e},
	"Home":       {Code: "Home", Key: "Home", Native: 0x24, Windows: 0x24},
	"End":        {Code: "End", Key: "End", Native: 0x23, Windows: 0x23},
	"PageUp":     {Code: "PageUp", Key: "PageUp", Native: 0x21, Windows: 0x21},
	"PageDown":   {Code: "PageDown", Key: "PageDown", Native: 0x22, Windows: 0x22},
	"Shift":      {Code: "ShiftLeft", Key: "Shift", Native: 0x10, Windows: 0x10},
	"Control":    {Code: "ControlLeft", Key: "Control", Native: 0x11, Windows: 0x11},
	"Alt":        {Code: "AltLeft", Key: "Alt", Native: 0x12, Windows: 0x12},
	"Meta":       {Code: "MetaLeft", Key: "Meta", Native: 0x5b, Windows: 0x5b},
	"CapsLock":   {Code: "CapsLock", Key: "CapsLock", Native: 0x14, Windows: 0x14},
	"Insert":     {Code: "Insert", Key: "Insert", Native: 0x2d, Windows: 0x2d},
	"F1":         {Code: "F1", Key: "F1", Native: 0x70, Windows: 0x70},
	"F2":         {Code: "F2", Key: "F2", Native: 0x71, Windows: 0x71},
	"F3":         {Code: "F3", Key: "F3", Native: 0x72, Windows: 0x72},
	"F4":         {Code: "F4", Key: "F4", Native: 0x73, Windows: 0x73},
	"F5":         {Code: "F5", Key: "F5", Native: 0x74, Windows: 0x74},
	"F6":         {Code: "F6", Key: "F6", Native: 0x75, Windows: 0x75},
	"F7":         {Code: "F7", Key: "F7", Native: 0x76, Windows: 0x76},
	"F8":         {Code: "F8", Key: "F8", Native: 0x77, Windows: 0x77},
	"F9":         {Code: "F9", Key: "F9", Native: 0x78, Windows: 0x78},
	"F10":        {Code: "F10", Key: "F10", Native: 0x79, Windows: 0x79},
	"F11":        {Code: "F11", Key: "F11", Native: 0x7a, Windows: 0x7a},
	"F12":        {Code: "F12", Key: "F12", Native: 0x7b, Windows: 0x7b},
}
