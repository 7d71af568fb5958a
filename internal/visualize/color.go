// Package visualize turns a flat list of spans into the pieces a waterfall view needs:
// a shared time-scaled layout, per-service colors and trace-level summary facts.
//
// Everything here is pure. Functions take spans already normalized to microsecond
// (Start, End) pairs and never perform I/O.
package visualize

import "unicode/utf16"

// Color is a CSS hex color such as "#EF4444".
type Color string

var palette = []Color{
	"#EF4444", // red
	"#3B82F6", // blue
	"#10B981", // green
	"#F59E0B", // amber
	"#8B5CF6", // violet
	"#EC4899", // pink
	"#6366F1", // indigo
	"#22D3EE", // cyan
}

// Palette returns a copy of the ordered service palette.
func Palette() []Color {
	out := make([]Color, len(palette))
	copy(out, palette)
	return out
}

// ColorFor maps a service name to a palette color. Equal names always get the same color,
// in the list view and the waterfall alike.
func ColorFor(serviceName string) Color {
	return palette[ColorIndex(serviceName)]
}

// ColorIndex returns the palette index used for serviceName.
func ColorIndex(serviceName string) int {
	h := serviceHash(serviceName)
	if h < 0 {
		h = -h
	}
	return int(h % int64(len(palette)))
}

// serviceHash folds UTF-16 code units with hash = c + ((hash << 5) - hash).
//
// The shift sees only the low 32 bits of the running value (signed, wrapping), while the
// subtraction and addition are exact. This reproduces the browser implementation the colors
// were first assigned with, including values that drift past the int32 range.
func serviceHash(name string) int64 {
	var h int64
	for _, c := range utf16.Encode([]rune(name)) {
		shifted := int64(int32(uint32(h) << 5))
		h = int64(c) + (shifted - h)
	}
	return h
}
