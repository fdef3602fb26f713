package subtitle

import (
	"fmt"
	"strings"
	"testing"
)

func TestResolveStyle(t *testing.T) {
	for _, name := range PresetNames() {
		t.Run(name, func(t *testing.T) {
			s := ResolveStyle(name)
			if s.Font == "" || s.FontSize == 0 {
				t.Errorf("preset %q missing font settings: %+v", name, s)
			}
			if s.Position == "" || s.Alignment == "" {
				t.Errorf("preset %q missing position settings: %+v", name, s)
			}
		})
	}
}

func TestResolveStyle_UnknownFallsBack(t *testing.T) {
	s := ResolveStyle("nonexistent")
	if s != stylePresets["default"] {
		t.Errorf("unknown preset should resolve to default, got %+v", s)
	}
}

func TestResolveStyleOverride(t *testing.T) {
	merged := ResolveStyleOverride(Style{FontSize: 42})

	want := stylePresets["default"]
	want.FontSize = 42
	if merged != want {
		t.Errorf("merged style = %+v, want %+v", merged, want)
	}

	// Every display field the default preset sets must come out populated
	if merged.Font == "" || merged.PrimaryColor == "" || merged.OutlineColor == "" ||
		merged.OutlineWidth == 0 || merged.Position == "" || merged.Alignment == "" ||
		merged.MarginV == 0 || merged.MarginH == 0 ||
		merged.BackgroundColor == "" || merged.BackgroundOpacity == 0 ||
		merged.TextOpacity == 0 || merged.ShadowColor == "" || merged.ShadowDepth == 0 {
		t.Errorf("single-field override left fields unset: %+v", merged)
	}
}

func TestResolveStyleOverride_MultipleFields(t *testing.T) {
	merged := ResolveStyleOverride(Style{Position: "top", Bold: true, PrimaryColor: "yellow"})

	if merged.Position != "top" || !merged.Bold || merged.PrimaryColor != "yellow" {
		t.Errorf("override fields not applied: %+v", merged)
	}
	if merged.Font != "Arial" || merged.FontSize != 24 {
		t.Errorf("unset fields should keep default values: %+v", merged)
	}
}

func TestResolveStyleOverride_Empty(t *testing.T) {
	if got := ResolveStyleOverride(Style{}); got != stylePresets["default"] {
		t.Errorf("empty override should resolve to the default preset, got %+v", got)
	}
}

func TestToASSColor(t *testing.T) {
	tests := []struct {
		name     string
		color    string
		opacity  float64
		fallback string
		expected string
	}{
		{"opaque white", "#FFFFFF", 1, "FFFFFF", "&H00FFFFFF"},
		{"named white", "white", 1, "FFFFFF", "&H00FFFFFF"},
		{"named yellow", "yellow", 1, "FFFFFF", "&H0000FFFF"},
		{"red channel order", "#FF0000", 1, "FFFFFF", "&H000000FF"},
		{"half transparent black", "#000000", 0.5, "000000", "&H80000000"},
		{"short hex", "#abc", 1, "FFFFFF", "&H00CCBBAA"},
		{"invalid falls back", "not-a-color", 1, "FFFFFF", "&H00FFFFFF"},
		{"invalid background falls back", "zzz", 0.5, "000000", "&H80000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toASSColor(tt.color, tt.opacity, tt.fallback)
			if got != tt.expected {
				t.Errorf("toASSColor(%q, %f) = %s, expected %s", tt.color, tt.opacity, got, tt.expected)
			}
		})
	}
}

func TestForceStyleString(t *testing.T) {
	s := ResolveStyle("lecture")
	out := s.ForceStyleString()

	for _, want := range []string{
		"FontName=Arial",
		"FontSize=28",
		"Bold=1",
		"BorderStyle=3",
		"BackColour=",
		"Alignment=2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in style string: %s", want, out)
		}
	}
}

func TestForceStyleString_NoBackgroundWhenDisabled(t *testing.T) {
	s := ResolveStyle("default")
	out := s.ForceStyleString()

	if strings.Contains(out, "BackColour=") {
		t.Errorf("default preset has no background, got: %s", out)
	}
	if !strings.Contains(out, "Shadow=0") {
		t.Errorf("shadow should be disabled: %s", out)
	}
}

func TestPositionString_AlignmentCodes(t *testing.T) {
	tests := []struct {
		position  string
		alignment string
		code      int
	}{
		{"bottom", "left", 1},
		{"bottom", "center", 2},
		{"bottom", "right", 3},
		{"middle", "left", 4},
		{"middle", "center", 5},
		{"middle", "right", 6},
		{"top", "left", 7},
		{"top", "center", 8},
		{"top", "right", 9},
	}

	for _, tt := range tests {
		t.Run(tt.position+"_"+tt.alignment, func(t *testing.T) {
			s := Style{Position: tt.position, Alignment: tt.alignment, MarginV: 30, MarginH: 20}
			out := s.positionString()
			want := fmt.Sprintf(":Alignment=%d", tt.code)
			if !strings.Contains(out, want) {
				t.Errorf("expected %s in %s", want, out)
			}
		})
	}
}

func TestPositionString_Margins(t *testing.T) {
	top := Style{Position: "top", Alignment: "left"}
	if out := top.positionString(); !strings.Contains(out, ":MarginV=20") || !strings.Contains(out, ":MarginL=20") {
		t.Errorf("top-left defaults wrong: %s", out)
	}

	middle := Style{Position: "middle", Alignment: "center"}
	if out := middle.positionString(); !strings.Contains(out, ":MarginV=0") {
		t.Errorf("middle position must zero the vertical margin: %s", out)
	}

	bottom := Style{Position: "bottom", Alignment: "right", MarginH: 44}
	if out := bottom.positionString(); !strings.Contains(out, ":MarginR=44") {
		t.Errorf("explicit horizontal margin not applied: %s", out)
	}
}
