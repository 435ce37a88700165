package overlay

import (
	"maps"
	"runtime"

	"github.com/nerrad567/printcast/internal/obs"
)

// Kind is the kind of OBS input a descriptor creates.
type Kind int

// Input kinds.
const (
	KindText Kind = iota
	KindImage
	KindVideo
	KindColor
)

// Canvas dimensions and frame rate printcast lays the scene out for.
const (
	VideoWidth  = 1920
	VideoHeight = 1080
	VideoFPS    = 30
)

// InputKind returns the OBS input kind identifier.
func (k Kind) InputKind() string {
	switch k {
	case KindText:
		if runtime.GOOS == "windows" {
			return "text_gdiplus_v3"
		}
		return "text_ft2_source_v2"
	case KindImage:
		return "image_source"
	case KindVideo:
		return "ffmpeg_source"
	case KindColor:
		return "color_source_v3"
	default:
		return ""
	}
}

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindColor:
		return "color"
	default:
		return "unknown"
	}
}

// Bounds fits a source into a box.
type Bounds struct {
	Type   string
	Width  float64
	Height float64
}

// Descriptor is the desired state of one input.
type Descriptor struct {
	// Name is the OBS input name and the idempotency key.
	Name string
	Kind Kind

	PositionX float64
	PositionY float64

	// Scale applies to both axes. Zero leaves OBS's default.
	Scale float64

	Bounds *Bounds
	ZIndex int

	// Settings are merged over the kind's defaults at creation.
	Settings map[string]any

	// IconPath is the image shown for image inputs, and the "off" image for
	// toggle icons. EnabledIconPath is the "on" image.
	IconPath        string
	EnabledIconPath string
}

// inputSettings returns the settings used to create the input.
func (d Descriptor) inputSettings() map[string]any {
	s := map[string]any{}
	switch d.Kind {
	case KindText:
		s["text"] = ""
		s["font"] = map[string]any{
			"face":  "Arial",
			"size":  36,
			"style": "regular",
		}
	case KindImage:
		s["file"] = d.IconPath
		s["linear_alpha"] = true
		s["unload"] = true
	}
	maps.Copy(s, d.Settings)
	return s
}

// transform returns the scene item transform for the descriptor.
func (d Descriptor) transform() obs.Transform {
	t := obs.Transform{
		"positionX": d.PositionX,
		"positionY": d.PositionY,
	}
	if d.Scale > 0 {
		t["scaleX"] = d.Scale
		t["scaleY"] = d.Scale
	}
	if d.Bounds != nil {
		t["boundsType"] = d.Bounds.Type
		t["boundsAlignment"] = 0
		t["boundsWidth"] = d.Bounds.Width
		t["boundsHeight"] = d.Bounds.Height
	}
	return t
}

// Handle refers to a provisioned input and remembers what was last applied to it.
type Handle struct {
	Name       string
	Descriptor Descriptor

	settings map[string]any
}

// Setting returns the last known value of a setting key.
func (h *Handle) Setting(key string) (any, bool) {
	if h == nil {
		return nil, false
	}
	v, ok := h.settings[key]
	return v, ok
}
