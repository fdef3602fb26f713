package subtitle

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// Style describes how burned-in subtitles are rendered.
type Style struct {
	Font         string  `json:"font" mapstructure:"font"`
	FontSize     int     `json:"font_size" mapstructure:"font_size"`
	PrimaryColor string  `json:"primary_color" mapstructure:"primary_color"`
	OutlineColor string  `json:"outline_color" mapstructure:"outline_color"`
	OutlineWidth float64 `json:"outline_width" mapstructure:"outline_width"`
	Bold         bool    `json:"bold" mapstructure:"bold"`
	Italic       bool    `json:"italic" mapstructure:"italic"`

	Position  string `json:"position" mapstructure:"position"`   // top, middle, bottom
	Alignment string `json:"alignment" mapstructure:"alignment"` // left, center, right
	MarginV   int    `json:"margin_v" mapstructure:"margin_v"`
	MarginH   int    `json:"margin_h" mapstructure:"margin_h"`

	BackgroundEnabled bool    `json:"background_enabled" mapstructure:"background_enabled"`
	BackgroundColor   string  `json:"background_color" mapstructure:"background_color"`
	BackgroundOpacity float64 `json:"background_opacity" mapstructure:"background_opacity"`
	TextOpacity       float64 `json:"text_opacity" mapstructure:"text_opacity"`
	ShadowEnabled     bool    `json:"shadow_enabled" mapstructure:"shadow_enabled"`
	ShadowColor       string  `json:"shadow_color" mapstructure:"shadow_color"`
	ShadowDepth       float64 `json:"shadow_depth" mapstructure:"shadow_depth"`
}

// stylePresets holds the built-in render styles, keyed by preset name.
var stylePresets = map[string]Style{
	"default": {
		Font: "Arial", FontSize: 24,
		PrimaryColor: "white", OutlineColor: "black", OutlineWidth: 1,
		Position: "bottom", Alignment: "center", MarginV: 30, MarginH: 20,
		BackgroundColor: "black", BackgroundOpacity: 0.5, TextOpacity: 1,
		ShadowColor: "black", ShadowDepth: 1,
	},
	"lecture": {
		Font: "Arial", FontSize: 28,
		PrimaryColor: "white", OutlineColor: "black", OutlineWidth: 2, Bold: true,
		Position: "bottom", Alignment: "center", MarginV: 40, MarginH: 20,
		BackgroundEnabled: true, BackgroundColor: "black", BackgroundOpacity: 0.6,
		TextOpacity: 1, ShadowColor: "black", ShadowDepth: 1,
	},
	"tutorial": {
		Font: "Arial", FontSize: 22,
		PrimaryColor: "white", OutlineColor: "black", OutlineWidth: 1.5,
		Position: "top", Alignment: "left", MarginV: 20, MarginH: 40,
		BackgroundEnabled: true, BackgroundColor: "#003366", BackgroundOpacity: 0.7,
		TextOpacity: 1, ShadowEnabled: true, ShadowColor: "black", ShadowDepth: 2,
	},
	"documentary": {
		Font: "Verdana", FontSize: 26,
		PrimaryColor: "#F5F5F5", OutlineColor: "#333333", OutlineWidth: 1.8,
		Position: "bottom", Alignment: "center", MarginV: 35, MarginH: 30,
		BackgroundColor: "black", TextOpacity: 1,
		ShadowEnabled: true, ShadowColor: "black", ShadowDepth: 2,
	},
	"minimal": {
		Font: "Helvetica", FontSize: 20,
		PrimaryColor: "white", OutlineColor: "black", OutlineWidth: 0.8,
		Position: "bottom", Alignment: "center", MarginV: 25, MarginH: 20,
		BackgroundColor: "black", TextOpacity: 1, ShadowColor: "black",
	},
	"highContrast": {
		Font: "Arial", FontSize: 28,
		PrimaryColor: "yellow", OutlineColor: "black", OutlineWidth: 2.5, Bold: true,
		Position: "bottom", Alignment: "center", MarginV: 40, MarginH: 20,
		BackgroundColor: "black", TextOpacity: 1,
		ShadowEnabled: true, ShadowColor: "black", ShadowDepth: 3,
	},
}

// PresetNames returns the available style preset names.
func PresetNames() []string {
	names := make([]string, 0, len(stylePresets))
	for name := range stylePresets {
		names = append(names, name)
	}
	return names
}

// ResolveStyle looks up a preset by name. Unknown names fall back to the
// default preset so a bad job payload still renders.
func ResolveStyle(name string) Style {
	if s, ok := stylePresets[name]; ok {
		return s
	}
	if name != "" {
		log.Warn().Str("style", name).Msg("Unknown subtitle style preset, using default")
	}
	return stylePresets["default"]
}

// ResolveStyleOverride merges the set fields of partial over the default
// preset, so a caller can change one knob without restating a full style.
// Zero-valued fields inherit the default.
func ResolveStyleOverride(partial Style) Style {
	s := stylePresets["default"]
	if partial.Font != "" {
		s.Font = partial.Font
	}
	if partial.FontSize != 0 {
		s.FontSize = partial.FontSize
	}
	if partial.PrimaryColor != "" {
		s.PrimaryColor = partial.PrimaryColor
	}
	if partial.OutlineColor != "" {
		s.OutlineColor = partial.OutlineColor
	}
	if partial.OutlineWidth != 0 {
		s.OutlineWidth = partial.OutlineWidth
	}
	if partial.Bold {
		s.Bold = true
	}
	if partial.Italic {
		s.Italic = true
	}
	if partial.Position != "" {
		s.Position = partial.Position
	}
	if partial.Alignment != "" {
		s.Alignment = partial.Alignment
	}
	if partial.MarginV != 0 {
		s.MarginV = partial.MarginV
	}
	if partial.MarginH != 0 {
		s.MarginH = partial.MarginH
	}
	if partial.BackgroundEnabled {
		s.BackgroundEnabled = true
	}
	if partial.BackgroundColor != "" {
		s.BackgroundColor = partial.BackgroundColor
	}
	if partial.BackgroundOpacity != 0 {
		s.BackgroundOpacity = partial.BackgroundOpacity
	}
	if partial.TextOpacity != 0 {
		s.TextOpacity = partial.TextOpacity
	}
	if partial.ShadowEnabled {
		s.ShadowEnabled = true
	}
	if partial.ShadowColor != "" {
		s.ShadowColor = partial.ShadowColor
	}
	if partial.ShadowDepth != 0 {
		s.ShadowDepth = partial.ShadowDepth
	}
	return s
}

// namedColors maps common color names to hex so presets can use readable
// color names.
var namedColors = map[string]string{
	"white":   "FFFFFF",
	"black":   "000000",
	"yellow":  "FFFF00",
	"red":     "FF0000",
	"green":   "00FF00",
	"blue":    "0000FF",
	"cyan":    "00FFFF",
	"magenta": "FF00FF",
	"gray":    "808080",
	"orange":  "FFA500",
}

var hexColorRegex = regexp.MustCompile(`^[0-9A-Fa-f]{6}$`)

// normalizeHex resolves a color name or hex string to a bare 6-digit hex
// value. Invalid input returns the given fallback and logs a warning.
func normalizeHex(color, fallback string) string {
	if hex, ok := namedColors[strings.ToLower(strings.TrimSpace(color))]; ok {
		return hex
	}

	hex := strings.TrimPrefix(strings.TrimSpace(color), "#")
	if len(hex) == 3 {
		var b strings.Builder
		for _, c := range hex {
			b.WriteRune(c)
			b.WriteRune(c)
		}
		hex = b.String()
	}

	if !hexColorRegex.MatchString(hex) {
		log.Warn().Str("color", color).Str("fallback", fallback).Msg("Invalid color, using fallback")
		return fallback
	}
	return strings.ToUpper(hex)
}

// toASSColor converts a color and opacity to the ASS &HAABBGGRR form, where
// AA is an inverted alpha (00 opaque, FF transparent).
func toASSColor(color string, opacity float64, fallback string) string {
	hex := normalizeHex(color, fallback)

	r := hex[0:2]
	g := hex[2:4]
	b := hex[4:6]

	if opacity < 0 {
		opacity = 0
	}
	if opacity > 1 {
		opacity = 1
	}
	alpha := int((1-opacity)*255 + 0.5)

	return fmt.Sprintf("&H%02X%s%s%s", alpha, b, g, r)
}

// ForceStyleString renders the style as an ffmpeg subtitles filter
// force_style argument.
func (s Style) ForceStyleString() string {
	var b strings.Builder

	fmt.Fprintf(&b, "FontName=%s,FontSize=%d,", s.Font, s.FontSize)
	fmt.Fprintf(&b, "PrimaryColour=%s,", toASSColor(s.PrimaryColor, s.TextOpacity, "FFFFFF"))
	fmt.Fprintf(&b, "OutlineColour=%s,", toASSColor(s.OutlineColor, s.TextOpacity, "FFFFFF"))

	if s.BackgroundEnabled && s.BackgroundOpacity > 0 {
		fmt.Fprintf(&b, "BackColour=%s,", toASSColor(s.BackgroundColor, s.BackgroundOpacity, "000000"))
	}

	if s.ShadowEnabled && s.ShadowDepth > 0 {
		fmt.Fprintf(&b, "ShadowColour=%s,", toASSColor(s.ShadowColor, s.TextOpacity, "FFFFFF"))
		fmt.Fprintf(&b, "Shadow=%g,", s.ShadowDepth)
	} else {
		b.WriteString("Shadow=0,")
	}

	fmt.Fprintf(&b, "Bold=%s,", boolFlag(s.Bold))
	fmt.Fprintf(&b, "Italic=%s,", boolFlag(s.Italic))
	fmt.Fprintf(&b, "BorderStyle=3,Outline=%g,", s.OutlineWidth)

	b.WriteString(s.positionString())

	return b.String()
}

// positionString encodes vertical position and horizontal alignment as ASS
// margins plus an Alignment code (1-3 bottom, 4-6 middle, 7-9 top; within
// each row: left, center, right).
func (s Style) positionString() string {
	var b strings.Builder

	switch s.Position {
	case "top":
		fmt.Fprintf(&b, ":MarginV=%d", defaultInt(s.MarginV, 20))
	case "middle":
		b.WriteString(":MarginV=0")
	default:
		fmt.Fprintf(&b, ":MarginV=%d", defaultInt(s.MarginV, 30))
	}

	switch s.Alignment {
	case "left":
		fmt.Fprintf(&b, ":MarginL=%d", defaultInt(s.MarginH, 20))
	case "right":
		fmt.Fprintf(&b, ":MarginR=%d", defaultInt(s.MarginH, 20))
	}

	row := 1 // bottom
	switch s.Position {
	case "top":
		row = 7
	case "middle":
		row = 4
	}

	col := 1 // center
	switch s.Alignment {
	case "left":
		col = 0
	case "right":
		col = 2
	}

	fmt.Fprintf(&b, ":Alignment=%d", row+col)
	return b.String()
}

func boolFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func defaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
